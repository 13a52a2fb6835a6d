package vault

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
)

const (
	NetworkTestnet = "testnet"
	NetworkMainnet = "mainnet"
)

// Bundle holds the operator credentials. It only lives in memory while the
// session is unlocked and is serialized solely as vault ciphertext.
type Bundle struct {
	EVMAccountID     string `json:"ecdsaAccountId"`
	EVMPrivateKey    string `json:"ecdsaPrivateKey"`
	LedgerAccountID  string `json:"ed25519AccountId"`
	LedgerPrivateKey string `json:"ed25519PrivateKey"`
	Network          string `json:"network"`
	ProjectID        string `json:"projectId"`
}

// Validate checks that both accounts are fully specified.
func (b Bundle) Validate() error {
	if strings.TrimSpace(b.EVMAccountID) == "" || strings.TrimSpace(b.EVMPrivateKey) == "" ||
		strings.TrimSpace(b.LedgerAccountID) == "" || strings.TrimSpace(b.LedgerPrivateKey) == "" {
		return walleterr.Validation("both ECDSA and Ed25519 accounts are required")
	}
	if !IsNetwork(b.Network) {
		return walleterr.Validation("unknown network %q", b.Network)
	}
	if strings.TrimSpace(b.ProjectID) == "" {
		return walleterr.Validation("project id is required")
	}
	return nil
}

// IsNetwork reports whether n is testnet or mainnet.
func IsNetwork(n string) bool {
	return n == NetworkTestnet || n == NetworkMainnet
}

// SealBundle validates b and encrypts its JSON form under password.
func SealBundle(b Bundle, password string) (string, error) {
	if err := b.Validate(); err != nil {
		return "", err
	}
	plain, err := json.Marshal(b)
	if err != nil {
		return "", errors.Wrap(err, "marshal bundle")
	}
	return Encrypt(string(plain), password)
}

// OpenBundle decrypts a record and decodes the bundle inside it.
func OpenBundle(record, password string) (Bundle, error) {
	plain, err := Decrypt(record, password)
	if err != nil {
		return Bundle{}, err
	}

	var b Bundle
	if err := json.Unmarshal([]byte(plain), &b); err != nil {
		return Bundle{}, errors.Mark(errors.Wrap(err, "unmarshal bundle"), walleterr.ErrDecryption)
	}
	if err := b.Validate(); err != nil {
		return Bundle{}, err
	}
	return b, nil
}
