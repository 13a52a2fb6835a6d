package walletkit

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
)

const validURI = "wc:7f6e504bfad60b485450578e05678ed3e8e8c4751d3c6160be17160d63ec90f9@2?relay-protocol=irn&symKey=587d5484ce2a2a6ee3ba1962fdd7e8588e06200c46823bd18fbd67def96ad303"

func TestParsePairingURI(t *testing.T) {
	u, err := ParsePairingURI(validURI)
	require.NoError(t, err)
	assert.Equal(t, "7f6e504bfad60b485450578e05678ed3e8e8c4751d3c6160be17160d63ec90f9", u.Topic)
	assert.Equal(t, "2", u.Version)
	assert.Equal(t, "irn", u.RelayProtocol)

	bad := []string{
		"",
		"https://example.com",
		"wc:@2?relay-protocol=irn&symKey=587d5484ce2a2a6ee3ba1962fdd7e8588e06200c46823bd18fbd67def96ad303",
		"wc:abcd@1?relay-protocol=irn&symKey=587d5484ce2a2a6ee3ba1962fdd7e8588e06200c46823bd18fbd67def96ad303",
		"wc:abcd@2?symKey=587d5484ce2a2a6ee3ba1962fdd7e8588e06200c46823bd18fbd67def96ad303",
		"wc:abcd@2?relay-protocol=irn&symKey=nothex",
	}
	for _, raw := range bad {
		_, err := ParsePairingURI(raw)
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, walleterr.ErrValidation))
	}
}

func TestResponseShapes(t *testing.T) {
	ok := Success(7, "0xabc")
	assert.True(t, ok.IsSuccess())
	b, err := json.Marshal(ok)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7,"jsonrpc":"2.0","result":"0xabc"}`, string(b))

	fail := FailureFromError(8, walleterr.ErrUserRejected)
	assert.False(t, fail.IsSuccess())
	assert.Nil(t, fail.Result)
	b, err = json.Marshal(fail)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":8,"jsonrpc":"2.0","error":{"code":5000,"message":"User rejected."}}`, string(b))

	empty := Success(9, nil)
	assert.NotNil(t, empty.Result)
}
