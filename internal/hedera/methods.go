// Package hedera signs and submits on behalf of the operator's native ledger
// account.
package hedera

import (
	"slices"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
)

const Namespace = "hedera"

const (
	MainnetChainID = "hedera:mainnet"
	TestnetChainID = "hedera:testnet"
)

const (
	MethodGetNodeAddresses          = "hedera_getNodeAddresses"
	MethodExecuteTransaction        = "hedera_executeTransaction"
	MethodSignMessage               = "hedera_signMessage"
	MethodSignAndExecuteQuery       = "hedera_signAndExecuteQuery"
	MethodSignAndExecuteTransaction = "hedera_signAndExecuteTransaction"
	MethodSignTransaction           = "hedera_signTransaction"
)

var methods = []string{
	MethodGetNodeAddresses,
	MethodExecuteTransaction,
	MethodSignMessage,
	MethodSignAndExecuteQuery,
	MethodSignAndExecuteTransaction,
	MethodSignTransaction,
}

var events = []string{"accountsChanged", "chainChanged"}

func Methods() []string { return slices.Clone(methods) }

func Events() []string { return slices.Clone(events) }

func IsMethod(method string) bool { return slices.Contains(methods, method) }

func ChainForNetwork(network string) (string, error) {
	switch network {
	case "testnet":
		return TestnetChainID, nil
	case "mainnet":
		return MainnetChainID, nil
	default:
		return "", walleterr.Validation("unknown network %q", network)
	}
}
