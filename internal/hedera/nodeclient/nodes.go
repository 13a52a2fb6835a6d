package nodeclient

import (
	"sort"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/hedera"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
)

// NodeConfig is one configured node as it appears in the config file.
type NodeConfig struct {
	AccountID string `mapstructure:"accountId"`
	Address   string `mapstructure:"address"`
}

var defaultNodes = map[string][]NodeConfig{
	"testnet": {
		{AccountID: "0.0.3", Address: "0.testnet.hedera.com:50211"},
		{AccountID: "0.0.4", Address: "1.testnet.hedera.com:50211"},
		{AccountID: "0.0.5", Address: "2.testnet.hedera.com:50211"},
		{AccountID: "0.0.6", Address: "3.testnet.hedera.com:50211"},
	},
	"mainnet": {
		{AccountID: "0.0.3", Address: "35.237.200.180:50211"},
		{AccountID: "0.0.4", Address: "35.186.191.247:50211"},
		{AccountID: "0.0.5", Address: "35.192.2.25:50211"},
		{AccountID: "0.0.6", Address: "35.199.161.108:50211"},
	},
}

// ResolveNodes returns overrides when given, otherwise the built-in table for
// network. The result is ordered by node account number.
func ResolveNodes(network string, overrides []NodeConfig) ([]hedera.Node, error) {
	cfgs := overrides
	if len(cfgs) == 0 {
		var ok bool
		if cfgs, ok = defaultNodes[network]; !ok {
			return nil, walleterr.Validation("no ledger nodes known for network %q", network)
		}
	}

	nodes := make([]hedera.Node, 0, len(cfgs))
	seen := make(map[hedera.AccountID]bool, len(cfgs))
	for _, c := range cfgs {
		id, err := hedera.ParseAccountID(c.AccountID)
		if err != nil {
			return nil, err
		}
		if c.Address == "" {
			return nil, walleterr.Validation("node %s has no address", id)
		}
		if seen[id] {
			return nil, walleterr.Validation("node %s is listed twice", id)
		}
		seen[id] = true
		nodes = append(nodes, hedera.Node{AccountID: id, Address: c.Address})
	}
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i].AccountID, nodes[j].AccountID
		if a.Shard != b.Shard {
			return a.Shard < b.Shard
		}
		if a.Realm != b.Realm {
			return a.Realm < b.Realm
		}
		return a.Num < b.Num
	})
	return nodes, nil
}
