package walletkit

import "context"

// Connection is an open protocol client. Events is closed when the connection
// is closed.
type Connection interface {
	Pair(ctx context.Context, uri string) error
	ApproveSession(ctx context.Context, proposalID int64, namespaces map[string]Namespace) (Session, error)
	RejectSession(ctx context.Context, proposalID int64, reason SDKError) error
	Respond(ctx context.Context, topic string, resp Response) error

	ActiveSessions() []Session
	Pairings() []Pairing
	DisconnectSession(ctx context.Context, topic string, reason SDKError) error
	DisconnectPairing(ctx context.Context, topic string, reason SDKError) error

	Events() <-chan Event
	Close() error
}

// Dialer opens a Connection for a project id.
type Dialer interface {
	Dial(ctx context.Context, projectID string) (Connection, error)
}

type DialerFunc func(ctx context.Context, projectID string) (Connection, error)

func (f DialerFunc) Dial(ctx context.Context, projectID string) (Connection, error) {
	return f(ctx, projectID)
}
