package namespaces

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/eip155"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/hedera"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/walletkit"
)

const (
	evmAddress = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
	ledgerID   = "0.0.5005"
)

func TestNegotiateNetworks(t *testing.T) {
	tests := []struct {
		network     string
		evmChain    string
		ledgerChain string
		foreign     []string
	}{
		{"testnet", "eip155:296", "hedera:testnet", []string{"eip155:295", "hedera:mainnet"}},
		{"mainnet", "eip155:295", "hedera:mainnet", []string{"eip155:296", "hedera:testnet"}},
	}
	for _, tt := range tests {
		t.Run(tt.network, func(t *testing.T) {
			got, err := Negotiate(tt.network, evmAddress, ledgerID, walletkit.Proposal{})
			require.NoError(t, err)
			require.Len(t, got, 2)

			evm := got[eip155.Namespace]
			assert.Equal(t, []string{tt.evmChain}, evm.Chains)
			assert.Equal(t, eip155.Methods(), evm.Methods)
			assert.Equal(t, []string{"accountsChanged", "chainChanged"}, evm.Events)
			assert.Equal(t, []string{tt.evmChain + ":" + evmAddress}, evm.Accounts)

			ledger := got[hedera.Namespace]
			assert.Equal(t, []string{tt.ledgerChain}, ledger.Chains)
			assert.Equal(t, hedera.Methods(), ledger.Methods)
			assert.Equal(t, []string{tt.ledgerChain + ":" + ledgerID}, ledger.Accounts)

			for _, ns := range got {
				assert.Len(t, ns.Accounts, len(ns.Chains))
				for _, acct := range ns.Accounts {
					for _, f := range tt.foreign {
						assert.False(t, strings.HasPrefix(acct, f+":"), acct)
					}
				}
			}
		})
	}
}

func TestNegotiateIgnoresProposal(t *testing.T) {
	narrow := walletkit.Proposal{RequiredNamespaces: map[string]walletkit.ProposalNamespace{
		"eip155": {Chains: []string{"eip155:296"}, Methods: []string{"personal_sign"}},
	}}
	a, err := Negotiate("testnet", evmAddress, ledgerID, narrow)
	require.NoError(t, err)
	b, err := Negotiate("testnet", evmAddress, ledgerID, walletkit.Proposal{})
	require.NoError(t, err)
	assert.Equal(t, b, a)
}

func TestNegotiateRejectsBadInput(t *testing.T) {
	_, err := Negotiate("previewnet", evmAddress, ledgerID, walletkit.Proposal{})
	assert.True(t, errors.Is(err, walleterr.ErrValidation))

	_, err = Negotiate("testnet", "0x1234", ledgerID, walletkit.Proposal{})
	assert.True(t, errors.Is(err, walleterr.ErrValidation))

	_, err = Negotiate("testnet", evmAddress, "not-an-account", walletkit.Proposal{})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	approved, err := Negotiate("testnet", evmAddress, ledgerID, walletkit.Proposal{})
	require.NoError(t, err)

	tests := []struct {
		name     string
		required map[string]walletkit.ProposalNamespace
		want     *walletkit.SDKError
	}{
		{"nothing required", nil, nil},
		{"supported", map[string]walletkit.ProposalNamespace{
			"eip155": {Chains: []string{"eip155:296"}, Methods: []string{"personal_sign"}, Events: []string{"chainChanged"}},
			"hedera": {Chains: []string{"hedera:testnet"}, Methods: []string{"hedera_signMessage"}},
		}, nil},
		{"chain as key", map[string]walletkit.ProposalNamespace{
			"eip155:296": {Methods: []string{"eth_sendTransaction"}},
		}, nil},
		{"unknown namespace", map[string]walletkit.ProposalNamespace{
			"solana": {Chains: []string{"solana:mainnet"}},
		}, &walletkit.ErrUnsupportedNamespaceKey},
		{"mainnet chain on testnet", map[string]walletkit.ProposalNamespace{
			"eip155": {Chains: []string{"eip155:295"}},
		}, &walletkit.ErrUnsupportedChains},
		{"unknown method", map[string]walletkit.ProposalNamespace{
			"eip155": {Chains: []string{"eip155:296"}, Methods: []string{"wallet_switchEthereumChain"}},
		}, &walletkit.ErrUnsupportedMethods},
		{"unknown event", map[string]walletkit.ProposalNamespace{
			"hedera": {Chains: []string{"hedera:testnet"}, Events: []string{"disconnect"}},
		}, &walletkit.ErrUnsupportedEvents},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(walletkit.Proposal{RequiredNamespaces: tt.required}, approved)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, *tt.want, RejectReason(err))
		})
	}
}

func TestDescribe(t *testing.T) {
	approved, err := Negotiate("testnet", evmAddress, ledgerID, walletkit.Proposal{})
	require.NoError(t, err)

	s := Describe(walletkit.Proposal{
		Proposer: walletkit.Metadata{Name: "Demo dApp", URL: "https://demo.example"},
		RequiredNamespaces: map[string]walletkit.ProposalNamespace{
			"hedera": {Chains: []string{"hedera:testnet"}},
		},
	}, approved)
	assert.Contains(t, s, "Demo dApp (https://demo.example)")
	assert.Contains(t, s, "hedera[hedera:testnet]")
	assert.Contains(t, s, "hedera:testnet:0.0.5005")
	assert.Contains(t, s, "eip155:296:"+evmAddress)

	assert.Equal(t, walletkit.ErrUserRejected, RejectReason(errors.New("other")))
}
