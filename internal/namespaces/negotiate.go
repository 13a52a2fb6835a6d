// Package namespaces turns a peer's session proposal into the capability set
// the wallet approves.
package namespaces

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/eip155"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/hedera"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/walletkit"
)

// Negotiate returns the full set of namespaces supported on network, with one
// account per chain. The proposal never narrows the result; whether to accept
// it is decided by Validate and the operator.
func Negotiate(network, evmAddress, ledgerAccountID string, _ walletkit.Proposal) (map[string]walletkit.Namespace, error) {
	evmChain, err := eip155.ChainForNetwork(network)
	if err != nil {
		return nil, err
	}
	ledgerChain, err := hedera.ChainForNetwork(network)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(evmAddress) {
		return nil, walleterr.Validation("invalid EVM address %q", evmAddress)
	}
	ledgerAccount, err := hedera.ParseAccountID(ledgerAccountID)
	if err != nil {
		return nil, err
	}

	return map[string]walletkit.Namespace{
		eip155.Namespace: build([]string{evmChain}, eip155.Methods(), eip155.Events(),
			common.HexToAddress(evmAddress).Hex()),
		hedera.Namespace: build([]string{ledgerChain}, hedera.Methods(), hedera.Events(),
			ledgerAccount.String()),
	}, nil
}

func build(chains, methods, events []string, address string) walletkit.Namespace {
	accounts := make([]string, 0, len(chains))
	for _, c := range chains {
		accounts = append(accounts, c+":"+address)
	}
	return walletkit.Namespace{Chains: chains, Methods: methods, Events: events, Accounts: accounts}
}

// Validate reports the first required namespace, chain, method or event that
// approved does not cover. The returned error wraps the matching
// walletkit.SDKError.
func Validate(proposal walletkit.Proposal, approved map[string]walletkit.Namespace) error {
	for _, key := range sortedKeys(proposal.RequiredNamespaces) {
		req := proposal.RequiredNamespaces[key]
		name, chains := splitKey(key, req.Chains)

		ns, ok := approved[name]
		if !ok {
			return errors.Wrapf(walletkit.ErrUnsupportedNamespaceKey, "namespace %q", name)
		}
		for _, c := range chains {
			if !slices.Contains(ns.Chains, c) {
				return errors.Wrapf(walletkit.ErrUnsupportedChains, "chain %q", c)
			}
		}
		for _, m := range req.Methods {
			if !slices.Contains(ns.Methods, m) {
				return errors.Wrapf(walletkit.ErrUnsupportedMethods, "method %q", m)
			}
		}
		for _, e := range req.Events {
			if !slices.Contains(ns.Events, e) {
				return errors.Wrapf(walletkit.ErrUnsupportedEvents, "event %q", e)
			}
		}
	}
	return nil
}

// RejectReason extracts the SDK reason from a Validate error.
func RejectReason(err error) walletkit.SDKError {
	var sdk walletkit.SDKError
	if errors.As(err, &sdk) {
		return sdk
	}
	return walletkit.ErrUserRejected
}

// splitKey handles the "eip155:296" form where a key names a single chain.
func splitKey(key string, chains []string) (string, []string) {
	name, _, ok := strings.Cut(key, ":")
	if ok && len(chains) == 0 {
		return name, []string{key}
	}
	return name, chains
}

// Describe renders what the peer asked for and what would be shared.
func Describe(proposal walletkit.Proposal, approved map[string]walletkit.Namespace) string {
	var b strings.Builder
	peer := proposal.Proposer.Name
	if peer == "" {
		peer = "unknown peer"
	}
	fmt.Fprintf(&b, "%s", peer)
	if proposal.Proposer.URL != "" {
		fmt.Fprintf(&b, " (%s)", proposal.Proposer.URL)
	}
	b.WriteString(" wants to connect.")

	if len(proposal.RequiredNamespaces) > 0 {
		b.WriteString(" Requires:")
		for _, key := range sortedKeys(proposal.RequiredNamespaces) {
			req := proposal.RequiredNamespaces[key]
			_, chains := splitKey(key, req.Chains)
			fmt.Fprintf(&b, " %s[%s]", key, strings.Join(chains, ","))
		}
		b.WriteString(".")
	}

	b.WriteString(" Shares:")
	for _, name := range sortedKeys(approved) {
		fmt.Fprintf(&b, " %s", strings.Join(approved[name].Accounts, ","))
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
