// Package eip155 signs and broadcasts on behalf of the operator's EVM account.
package eip155

import "slices"

const Namespace = "eip155"

const (
	MethodPersonalSign       = "personal_sign"
	MethodEthSign            = "eth_sign"
	MethodSignTransaction    = "eth_signTransaction"
	MethodSignTypedData      = "eth_signTypedData"
	MethodSignTypedDataV3    = "eth_signTypedData_v3"
	MethodSignTypedDataV4    = "eth_signTypedData_v4"
	MethodSendRawTransaction = "eth_sendRawTransaction"
	MethodSendTransaction    = "eth_sendTransaction"
)

const (
	EventAccountsChanged = "accountsChanged"
	EventChainChanged    = "chainChanged"
)

var methods = []string{
	MethodPersonalSign,
	MethodEthSign,
	MethodSignTransaction,
	MethodSignTypedData,
	MethodSignTypedDataV3,
	MethodSignTypedDataV4,
	MethodSendRawTransaction,
	MethodSendTransaction,
}

var events = []string{EventAccountsChanged, EventChainChanged}

// Methods returns the supported method list in a stable order.
func Methods() []string { return slices.Clone(methods) }

func Events() []string { return slices.Clone(events) }

func IsMethod(method string) bool { return slices.Contains(methods, method) }
