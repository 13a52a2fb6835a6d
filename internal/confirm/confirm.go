// Package confirm is the operator decision port used before a session is
// approved or a signing request is executed.
package confirm

import (
	"context"
)

type Kind string

const (
	KindSession Kind = "session"
	KindRequest Kind = "request"
)

// Prompt describes one decision put to the operator.
type Prompt struct {
	Kind      Kind   `json:"kind"`
	RequestID int64  `json:"requestId,omitempty"`
	Topic     string `json:"topic,omitempty"`
	ChainID   string `json:"chainId,omitempty"`
	Method    string `json:"method,omitempty"`
	Peer      string `json:"peer,omitempty"`
	Summary   string `json:"summary"`
}

// Port resolves a prompt to approve (true) or reject (false). An error or a
// cancelled ctx counts as a rejection for the caller.
type Port interface {
	Confirm(ctx context.Context, p Prompt) (bool, error)
}

type Func func(ctx context.Context, p Prompt) (bool, error)

func (f Func) Confirm(ctx context.Context, p Prompt) (bool, error) { return f(ctx, p) }

// Always answers every prompt with approve. Used for tests and --auto-approve.
func Always(approve bool) Port {
	return Func(func(context.Context, Prompt) (bool, error) { return approve, nil })
}
