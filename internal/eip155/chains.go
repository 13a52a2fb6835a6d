package eip155

import (
	"context"
	"math/big"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
)

const (
	MainnetChainID = "eip155:295"
	TestnetChainID = "eip155:296"
)

// Chain is one entry of the chain id to endpoint table.
type Chain struct {
	ID     string `mapstructure:"id"`
	RPCURL string `mapstructure:"rpcUrl"`
}

func DefaultChains() map[string]Chain {
	return map[string]Chain{
		MainnetChainID: {ID: MainnetChainID, RPCURL: "https://mainnet.hashio.io/api"},
		TestnetChainID: {ID: TestnetChainID, RPCURL: "https://testnet.hashio.io/api"},
	}
}

// ChainForNetwork maps a wallet network name to its single chain id.
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

// ParseChainID returns the numeric part of "eip155:<n>".
func ParseChainID(chainID string) (*big.Int, error) {
	ref, ok := strings.CutPrefix(chainID, Namespace+":")
	if !ok {
		return nil, walleterr.Network(nil, "chain %q is not an eip155 chain", chainID)
	}
	n, err := strconv.ParseUint(ref, 10, 64)
	if err != nil {
		return nil, walleterr.Network(err, "invalid chain reference %q", chainID)
	}
	return new(big.Int).SetUint64(n), nil
}

// ChainClient is the slice of ethclient.Client the adapter needs.
type ChainClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

type DialFunc func(ctx context.Context, rpcURL string) (ChainClient, error)

func dialEthClient(ctx context.Context, rpcURL string) (ChainClient, error) {
	return ethclient.DialContext(ctx, rpcURL)
}

// Clients dials RPC endpoints lazily and caches one client per chain.
type Clients struct {
	mu     sync.Mutex
	chains map[string]Chain
	dial   DialFunc
	cache  map[string]ChainClient
}

func NewClients(chains map[string]Chain, dial DialFunc) *Clients {
	if len(chains) == 0 {
		chains = DefaultChains()
	}
	if dial == nil {
		dial = dialEthClient
	}
	return &Clients{
		chains: chains,
		dial:   dial,
		cache:  make(map[string]ChainClient),
	}
}

// Resolve returns the client and numeric chain id for chainID.
func (c *Clients) Resolve(ctx context.Context, chainID string) (ChainClient, *big.Int, error) {
	chain, ok := c.chains[chainID]
	if !ok {
		return nil, nil, walleterr.Network(nil, "no RPC endpoint for chain %q", chainID)
	}
	id, err := ParseChainID(chainID)
	if err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cl, ok := c.cache[chainID]; ok {
		return cl, id, nil
	}
	cl, err := c.dial(ctx, chain.RPCURL)
	if err != nil {
		return nil, nil, walleterr.Network(err, "dial %s", chain.RPCURL)
	}
	c.cache[chainID] = cl
	log.Info("EVM RPC client connected", "chainId", chainID, "url", chain.RPCURL)
	return cl, id, nil
}

func (c *Clients) Known(chainID string) bool {
	_, ok := c.chains[chainID]
	return ok
}

func (c *Clients) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, cl := range c.cache {
		if closer, ok := cl.(interface{ Close() }); ok {
			closer.Close()
		}
		delete(c.cache, id)
	}
}
