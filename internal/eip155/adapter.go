package eip155

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/ethwallet/wtypes"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/walletkit"
)

const DefaultReceiptTimeout = 2 * time.Minute

type prepareFunc func(a *Adapter, method, chainID string, params json.RawMessage) (walletkit.Call, error)

var dispatch = map[string]prepareFunc{
	MethodPersonalSign:       (*Adapter).prepareMessage,
	MethodEthSign:            (*Adapter).prepareMessage,
	MethodSignTypedData:      (*Adapter).prepareTypedData,
	MethodSignTypedDataV3:    (*Adapter).prepareTypedData,
	MethodSignTypedDataV4:    (*Adapter).prepareTypedData,
	MethodSignTransaction:    (*Adapter).prepareTransaction,
	MethodSendTransaction:    (*Adapter).prepareTransaction,
	MethodSendRawTransaction: (*Adapter).prepareRawTransaction,
}

// Adapter is the EVM signer. It borrows the wallet and the RPC clients for the
// lifetime of one unlocked session.
type Adapter struct {
	wallet         wtypes.Wallet
	clients        *Clients
	receiptTimeout time.Duration
}

type Config struct {
	Wallet         wtypes.Wallet
	Clients        *Clients
	ReceiptTimeout time.Duration
}

func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.Wallet == nil {
		return nil, walleterr.Validation("eip155: wallet is required")
	}
	if cfg.Clients == nil {
		cfg.Clients = NewClients(nil, nil)
	}
	return &Adapter{
		wallet:         cfg.Wallet,
		clients:        cfg.Clients,
		receiptTimeout: cfg.ReceiptTimeout,
	}, nil
}

func (a *Adapter) Namespace() string { return Namespace }

func (a *Adapter) Address() string { return a.wallet.Address().Hex() }

func (a *Adapter) Supports(method string) bool {
	_, ok := dispatch[method]
	return ok
}

// Prepare validates params for method. Nothing is signed until Execute.
func (a *Adapter) Prepare(method, chainID string, params json.RawMessage) (walletkit.Call, error) {
	prepare, ok := dispatch[method]
	if !ok {
		return nil, walleterr.UnsupportedMethod(method)
	}
	return prepare(a, method, chainID, params)
}

// Close releases cached RPC clients.
func (a *Adapter) Close() { a.clients.Close() }

type call struct {
	summary string
	run     func(ctx context.Context) (any, error)
}

func (c *call) Describe() string                         { return c.summary }
func (c *call) Execute(ctx context.Context) (any, error) { return c.run(ctx) }

func (a *Adapter) prepareMessage(method, chainID string, params json.RawMessage) (walletkit.Call, error) {
	msg, err := parseMessage(method, params)
	if err != nil {
		return nil, err
	}
	return &call{
		summary: fmt.Sprintf("%s on %s as %s: sign message %q", method, chainID, a.Address(), preview(msg)),
		run: func(ctx context.Context) (any, error) {
			return signDigest(ctx, a.wallet, personalDigest(msg))
		},
	}, nil
}

func (a *Adapter) prepareTypedData(method, chainID string, params json.RawMessage) (walletkit.Call, error) {
	td, err := parseTypedData(method, params)
	if err != nil {
		return nil, err
	}
	// hash up front so malformed structs fail before the operator is asked
	digest, err := typedDataDigest(td)
	if err != nil {
		return nil, walleterr.InvalidParams("invalid typed data: %v", err)
	}
	return &call{
		summary: fmt.Sprintf("%s on %s as %s: sign %s for %s", method, chainID, a.Address(), td.PrimaryType, domainLabel(td.Domain)),
		run: func(ctx context.Context) (any, error) {
			return signDigest(ctx, a.wallet, digest)
		},
	}, nil
}

func (a *Adapter) prepareTransaction(method, chainID string, params json.RawMessage) (walletkit.Call, error) {
	args, err := parseTxArgs(method, params)
	if err != nil {
		return nil, err
	}
	if !a.clients.Known(chainID) {
		return nil, walleterr.Network(nil, "no RPC endpoint for chain %q", chainID)
	}

	send := method == MethodSendTransaction
	return &call{
		summary: fmt.Sprintf("%s on %s as %s: %s", method, chainID, a.Address(), describeArgs(args)),
		run: func(ctx context.Context) (any, error) {
			client, id, err := a.clients.Resolve(ctx, chainID)
			if err != nil {
				return nil, err
			}
			tx, err := populate(ctx, client, a.wallet, id, args)
			if err != nil {
				return nil, err
			}
			signed, err := signTx(ctx, a.wallet, id, tx)
			if err != nil {
				return nil, err
			}
			if send {
				return broadcast(ctx, client, signed, a.receiptTimeout)
			}
			raw, err := signed.MarshalBinary()
			if err != nil {
				return nil, err
			}
			return hexutil.Encode(raw), nil
		},
	}, nil
}

func (a *Adapter) prepareRawTransaction(method, chainID string, params json.RawMessage) (walletkit.Call, error) {
	tx, err := parseRawTx(params)
	if err != nil {
		return nil, err
	}
	if !a.clients.Known(chainID) {
		return nil, walleterr.Network(nil, "no RPC endpoint for chain %q", chainID)
	}
	return &call{
		summary: fmt.Sprintf("%s on %s: broadcast %s", method, chainID, tx.Hash().Hex()),
		run: func(ctx context.Context) (any, error) {
			client, _, err := a.clients.Resolve(ctx, chainID)
			if err != nil {
				return nil, err
			}
			return broadcast(ctx, client, tx, a.receiptTimeout)
		},
	}, nil
}

func preview(msg []byte) string {
	const limit = 120
	s := string(msg)
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}

func domainLabel(d apitypes.TypedDataDomain) string {
	switch {
	case d.Name != "" && d.VerifyingContract != "":
		return d.Name + " (" + d.VerifyingContract + ")"
	case d.Name != "":
		return d.Name
	case d.VerifyingContract != "":
		return d.VerifyingContract
	default:
		return "unnamed domain"
	}
}

func describeArgs(args txArgs) string {
	to := "contract creation"
	if args.To != nil {
		to = "to " + args.To.Hex()
	}
	value := new(big.Int)
	if args.Value != nil {
		value = args.Value.ToInt()
	}
	return fmt.Sprintf("%s value %s wei, %d bytes of data", to, value, len(args.data()))
}
