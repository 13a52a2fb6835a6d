package http

import (
	"crypto/rand"
	"encoding/base64"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/confirm"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
)

func isLoopbackRequest(r *http.Request) bool {
	ra := r.RemoteAddr

	h, _, err := net.SplitHostPort(ra)
	if err != nil {
		ip := net.ParseIP(ra)
		return ip != nil && ip.IsLoopback()
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

// isSafeLocalHost blocks DNS rebinding: the Host header must name loopback.
func isSafeLocalHost(hostport string) bool {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	host = strings.ToLower(host)
	return host == "127.0.0.1" || host == "localhost" || host == "::1"
}

func normalizeOrigin(in string) string {
	u, err := url.Parse(strings.TrimSpace(in))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

func newSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(b), nil
}

// statusFor maps the wallet error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, walleterr.ErrState):
		return http.StatusConflict
	case errors.Is(err, walleterr.ErrDecryption):
		return http.StatusUnauthorized
	case errors.Is(err, walleterr.ErrValidation), errors.Is(err, walleterr.ErrInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, confirm.ErrUnknownPrompt):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
