// Package walletkit describes the pairing/session protocol as seen by the
// wallet: the events it consumes, the calls it makes and the payload shapes.
package walletkit

import (
	"encoding/json"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
)

// Namespace is an approved capability group for one namespace key.
// Accounts hold one "chainId:address" entry per chain.
type Namespace struct {
	Chains   []string `json:"chains"`
	Methods  []string `json:"methods"`
	Events   []string `json:"events"`
	Accounts []string `json:"accounts"`
}

// ProposalNamespace is what a peer asks for in one namespace.
type ProposalNamespace struct {
	Chains  []string `json:"chains,omitempty"`
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

type Metadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url,omitempty"`
	Icons       []string `json:"icons,omitempty"`
}

type Proposal struct {
	ID                 int64                        `json:"id"`
	PairingTopic       string                       `json:"pairingTopic,omitempty"`
	Proposer           Metadata                     `json:"proposer"`
	RequiredNamespaces map[string]ProposalNamespace `json:"requiredNamespaces"`
	OptionalNamespaces map[string]ProposalNamespace `json:"optionalNamespaces,omitempty"`
}

type Request struct {
	ID      int64           `json:"id"`
	Topic   string          `json:"topic"`
	ChainID string          `json:"chainId"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response is JSON-RPC 2.0 shaped. Build it with Success or Failure so exactly
// one of Result and Error is set.
type Response struct {
	ID      int64     `json:"id"`
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

func Success(id int64, result any) Response {
	if result == nil {
		result = struct{}{}
	}
	return Response{ID: id, JSONRPC: "2.0", Result: result}
}

func Failure(id int64, code int, message string) Response {
	return Response{ID: id, JSONRPC: "2.0", Error: &RPCError{Code: code, Message: message}}
}

// FailureFromError maps err through walleterr.Reason.
func FailureFromError(id int64, err error) Response {
	code, msg := walleterr.Reason(err)
	return Failure(id, code, msg)
}

func (r Response) IsSuccess() bool { return r.Error == nil }

type Session struct {
	Topic        string               `json:"topic"`
	PairingTopic string               `json:"pairingTopic,omitempty"`
	Peer         Metadata             `json:"peer"`
	Namespaces   map[string]Namespace `json:"namespaces,omitempty"`
}

type Pairing struct {
	Topic  string `json:"topic"`
	Active bool   `json:"active"`
}

type EventKind string

const (
	EventSessionProposal EventKind = "session_proposal"
	EventSessionRequest  EventKind = "session_request"
	EventSessionDelete   EventKind = "session_delete"
	EventPairingDelete   EventKind = "pairing_delete"
	EventSessionPing     EventKind = "session_ping"
)

// Event is delivered by a Connection. Proposal is set for session_proposal,
// Request for session_request, Topic for the rest.
type Event struct {
	Kind     EventKind
	Proposal *Proposal
	Request  *Request
	Topic    string
}
