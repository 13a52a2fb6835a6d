package walletkit

import (
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
)

// PairingURI is the parsed form of "wc:<topic>@<version>?relay-protocol=..&symKey=..".
type PairingURI struct {
	Topic         string
	Version       string
	RelayProtocol string
	SymKey        string
}

// ParsePairingURI validates a version 2 pairing string.
func ParsePairingURI(raw string) (PairingURI, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "wc:") {
		return PairingURI{}, walleterr.Validation("pairing uri must start with wc:")
	}

	rest := strings.TrimPrefix(raw, "wc:")
	path, query, _ := strings.Cut(rest, "?")
	topic, version, ok := strings.Cut(path, "@")
	if !ok || topic == "" {
		return PairingURI{}, walleterr.Validation("pairing uri is missing a topic")
	}
	if version != "2" {
		return PairingURI{}, walleterr.Validation("unsupported pairing uri version %q", version)
	}

	params, err := url.ParseQuery(query)
	if err != nil {
		return PairingURI{}, walleterr.Validation("invalid pairing uri query: %v", err)
	}

	out := PairingURI{
		Topic:         topic,
		Version:       version,
		RelayProtocol: params.Get("relay-protocol"),
		SymKey:        params.Get("symKey"),
	}
	if out.RelayProtocol == "" {
		return PairingURI{}, walleterr.Validation("pairing uri is missing relay-protocol")
	}
	if b, err := hex.DecodeString(out.SymKey); err != nil || len(b) != 32 {
		return PairingURI{}, walleterr.Validation("pairing uri has an invalid symKey")
	}
	return out, nil
}
