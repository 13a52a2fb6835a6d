// Package session owns the wallet lifecycle: the stored vault record, the
// unlocked signers and the open protocol connection.
package session

import (
	"github.com/quantumauth-io/hedera-wallet-agent/internal/walletkit"
)

type State string

const (
	Uninitialized State = "uninitialized"
	Locked        State = "locked"
	Unlocked      State = "unlocked"
)

var allStates = []string{string(Uninitialized), string(Locked), string(Unlocked)}

// Storage slots.
const (
	KeyVaultRecord    = "encryptedWalletData"
	KeyPasswordMarker = "walletPasswordHash"
)

// Status is a point-in-time view for the operator. It never carries secrets.
type Status struct {
	State                State               `json:"state"`
	Network              string              `json:"network,omitempty"`
	EVMAddress           string              `json:"evmAddress,omitempty"`
	EVMAccountID         string              `json:"evmAccountId,omitempty"`
	LedgerAccountID      string              `json:"ledgerAccountId,omitempty"`
	HasStoredCredentials bool                `json:"hasStoredCredentials"`
	HasSessionMarker     bool                `json:"hasSessionMarker"`
	ActiveSessions       int                 `json:"activeSessions"`
	Sessions             []walletkit.Session `json:"sessions,omitempty"`
	Pairings             []walletkit.Pairing `json:"pairings,omitempty"`
}
