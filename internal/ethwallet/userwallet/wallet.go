// Package userwallet holds an operator-supplied secp256k1 key in memory.
package userwallet

import (
	"context"
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/ethwallet/wtypes"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
)

type Wallet struct {
	addr common.Address
	key  *ecdsa.PrivateKey
}

var _ wtypes.Wallet = (*Wallet)(nil)

// FromPrivateKeyHex parses a 32-byte hex key, with or without 0x prefix.
func FromPrivateKeyHex(hexKey string) (*Wallet, error) {
	hexKey = strings.TrimSpace(hexKey)
	if len(hexKey) >= 2 && (hexKey[0:2] == "0x" || hexKey[0:2] == "0X") {
		hexKey = hexKey[2:]
	}
	// must be 32 bytes for secp256k1 private key
	if len(hexKey) != 64 {
		return nil, walleterr.Validation("invalid ECDSA private key length: got %d hex chars, want 64", len(hexKey))
	}

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, walleterr.Validation("invalid ECDSA private key: %v", err)
	}
	return &Wallet{
		addr: crypto.PubkeyToAddress(key.PublicKey),
		key:  key,
	}, nil
}

func (w *Wallet) Address() common.Address { return w.addr }

// PrivateKey is used by transaction signers that need the key itself.
func (w *Wallet) PrivateKey() *ecdsa.PrivateKey { return w.key }

func (w *Wallet) SignHash(ctx context.Context, digest32 []byte) ([]byte, error) {
	_ = ctx // keeps interface symmetric with remote signers

	if err := wtypes.EnsureDigest32(digest32); err != nil {
		return nil, err
	}
	return crypto.Sign(digest32, w.key) // returns V=0/1
}
