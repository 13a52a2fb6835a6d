package hedera

import (
	"bytes"
	"encoding/hex"
	"strings"

	hsdk "github.com/hashgraph/hedera-sdk-go/v2"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
)

const (
	seedSize      = 32
	publicKeySize = 32
)

// ParsePrivateKey accepts a hex Ed25519 key as a 32-byte seed, a 64-byte
// seed||public key, or DER.
func ParsePrivateKey(s string) (hsdk.PrivateKey, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) == 0 {
		return hsdk.PrivateKey{}, walleterr.Validation("ed25519 private key must be hex")
	}

	key, err := hsdk.PrivateKeyFromStringEd25519(s)
	if err != nil {
		return hsdk.PrivateKey{}, walleterr.Validation("unsupported ed25519 private key: %v", err)
	}
	pub := key.PublicKey().BytesRaw()
	if len(pub) != publicKeySize {
		return hsdk.PrivateKey{}, walleterr.Validation("not an ed25519 private key")
	}
	if len(raw) == seedSize+publicKeySize && !bytes.Equal(raw[seedSize:], pub) {
		return hsdk.PrivateKey{}, walleterr.Validation("ed25519 private key does not match its public half")
	}
	return key, nil
}
