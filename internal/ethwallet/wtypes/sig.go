// Package wtypes holds the signer contract shared by the EVM wallet and the
// eip155 adapter.
package wtypes

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
)

const (
	DigestLen    = 32
	SignatureLen = 65
)

// Wallet signs 32-byte digests. SignHash returns R || S || V with V in {0, 1},
// the go-ethereum crypto.Sign layout.
type Wallet interface {
	Address() common.Address
	SignHash(ctx context.Context, digest32 []byte) ([]byte, error)
}

func EnsureDigest32(d []byte) error {
	if len(d) != DigestLen {
		return errors.Newf("digest must be %d bytes, got %d", DigestLen, len(d))
	}
	return nil
}

// SigToV27 returns a copy of sig with V shifted to 27/28, the form returned to
// dApps for personal_sign and typed data. 27/28 input is passed through.
func SigToV27(sig []byte) ([]byte, error) {
	if len(sig) != SignatureLen {
		return nil, errors.Newf("signature must be %d bytes, got %d", SignatureLen, len(sig))
	}
	out := append([]byte(nil), sig...)
	switch v := out[SignatureLen-1]; v {
	case 0, 1:
		out[SignatureLen-1] = v + 27
	case 27, 28:
	default:
		return nil, errors.Newf("unexpected recovery id %d", v)
	}
	return out, nil
}
