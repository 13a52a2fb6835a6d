package hedera

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/hashgraph/hedera-protobufs-go/services"
	hsdk "github.com/hashgraph/hedera-sdk-go/v2"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/walletkit"
)

const messagePrefix = "\x19Hedera Signed Message:\n"

type prepareFunc func(a *Adapter, method, chainID string, params json.RawMessage) (walletkit.Call, error)

var dispatch = map[string]prepareFunc{
	MethodGetNodeAddresses:          (*Adapter).prepareGetNodeAddresses,
	MethodExecuteTransaction:        (*Adapter).prepareExecuteTransaction,
	MethodSignMessage:               (*Adapter).prepareSignMessage,
	MethodSignAndExecuteQuery:       (*Adapter).prepareSignAndExecuteQuery,
	MethodSignAndExecuteTransaction: (*Adapter).prepareSignAndExecuteTransaction,
	MethodSignTransaction:           (*Adapter).prepareSignTransaction,
}

// Adapter is the ledger signer for one account.
type Adapter struct {
	account AccountID
	key     hsdk.PrivateKey
	chainID string
	network Network
}

type Config struct {
	AccountID  string
	PrivateKey string
	// Network is "testnet" or "mainnet".
	Network string
	Nodes   Network
}

func NewAdapter(cfg Config) (*Adapter, error) {
	account, err := ParseAccountID(cfg.AccountID)
	if err != nil {
		return nil, err
	}
	key, err := ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	chainID, err := ChainForNetwork(cfg.Network)
	if err != nil {
		return nil, err
	}
	if cfg.Nodes == nil {
		return nil, walleterr.Validation("hedera: node network is required")
	}
	return &Adapter{account: account, key: key, chainID: chainID, network: cfg.Nodes}, nil
}

func (a *Adapter) Namespace() string { return Namespace }

func (a *Adapter) AccountID() string { return a.account.String() }

func (a *Adapter) PublicKey() ed25519.PublicKey { return ed25519.PublicKey(a.key.PublicKey().BytesRaw()) }

func (a *Adapter) Supports(method string) bool {
	_, ok := dispatch[method]
	return ok
}

// Prepare decodes params for method. Every decoding failure is InvalidParams
// and happens before any signature is produced.
func (a *Adapter) Prepare(method, chainID string, params json.RawMessage) (walletkit.Call, error) {
	prepare, ok := dispatch[method]
	if !ok {
		return nil, walleterr.UnsupportedMethod(method)
	}
	return prepare(a, method, chainID, params)
}

func (a *Adapter) Close() {
	if c, ok := a.network.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn("closing ledger node connections", "error", err)
		}
	}
}

type call struct {
	summary string
	run     func(ctx context.Context) (any, error)
}

func (c *call) Describe() string                         { return c.summary }
func (c *call) Execute(ctx context.Context) (any, error) { return c.run(ctx) }

type NodeAddressesResult struct {
	Nodes []string `json:"nodes"`
}

type ExecuteResult struct {
	NodeID          string `json:"nodeId"`
	TransactionHash string `json:"transactionHash"`
	TransactionID   string `json:"transactionId"`
}

type SignatureMapResult struct {
	SignatureMap string `json:"signatureMap"`
}

type QueryResult struct {
	Response string `json:"response"`
}

type preparedTx struct {
	tx     *services.Transaction
	signed signedTransaction
	body   bodyInfo
}

func (a *Adapter) prepareGetNodeAddresses(method, chainID string, params json.RawMessage) (walletkit.Call, error) {
	if p := bytes.TrimSpace(params); len(p) > 0 && !bytes.Equal(p, []byte("null")) {
		return nil, walleterr.InvalidParams("%s takes no params", method)
	}
	return &call{
		summary: fmt.Sprintf("%s on %s: list node addresses", method, chainID),
		run: func(context.Context) (any, error) {
			nodes := a.network.Nodes()
			out := NodeAddressesResult{Nodes: make([]string, 0, len(nodes))}
			for _, n := range nodes {
				out.Nodes = append(out.Nodes, n.AccountID.String())
			}
			return out, nil
		},
	}, nil
}

func (a *Adapter) prepareExecuteTransaction(method, chainID string, params json.RawMessage) (walletkit.Call, error) {
	var p struct {
		TransactionList string `json:"transactionList"`
	}
	if err := decodeObject(method, params, &p); err != nil {
		return nil, err
	}
	txs, err := decodeTransactionListParam(p.TransactionList)
	if err != nil {
		return nil, err
	}
	return &call{
		summary: fmt.Sprintf("%s on %s: submit transaction %s", method, chainID, txs[0].body.txID),
		run: func(ctx context.Context) (any, error) {
			return a.submit(ctx, txs)
		},
	}, nil
}

func (a *Adapter) prepareSignMessage(method, chainID string, params json.RawMessage) (walletkit.Call, error) {
	var p struct {
		SignerAccountID string `json:"signerAccountId"`
		Message         string `json:"message"`
	}
	if err := decodeObject(method, params, &p); err != nil {
		return nil, err
	}
	if err := a.checkSigner(p.SignerAccountID); err != nil {
		return nil, err
	}
	return &call{
		summary: fmt.Sprintf("%s on %s as %s: sign message %q", method, chainID, a.account, p.Message),
		run: func(context.Context) (any, error) {
			return a.signatureMapResult(prefixMessage(p.Message))
		},
	}, nil
}

func (a *Adapter) prepareSignTransaction(method, chainID string, params json.RawMessage) (walletkit.Call, error) {
	var p struct {
		SignerAccountID string `json:"signerAccountId"`
		TransactionBody string `json:"transactionBody"`
	}
	if err := decodeObject(method, params, &p); err != nil {
		return nil, err
	}
	if err := a.checkSigner(p.SignerAccountID); err != nil {
		return nil, err
	}
	body, err := decodeB64("transactionBody", p.TransactionBody)
	if err != nil {
		return nil, err
	}
	info, err := decodeBody(body)
	if err != nil {
		return nil, walleterr.InvalidParams("transactionBody does not decode: %v", err)
	}
	return &call{
		summary: fmt.Sprintf("%s on %s as %s: sign %s transaction %s", method, chainID, a.account, info.kindName, info.txID),
		run: func(context.Context) (any, error) {
			return a.signatureMapResult(body)
		},
	}, nil
}

func (a *Adapter) prepareSignAndExecuteTransaction(method, chainID string, params json.RawMessage) (walletkit.Call, error) {
	var p struct {
		SignerAccountID string `json:"signerAccountId"`
		TransactionList string `json:"transactionList"`
	}
	if err := decodeObject(method, params, &p); err != nil {
		return nil, err
	}
	if err := a.checkSigner(p.SignerAccountID); err != nil {
		return nil, err
	}
	txs, err := decodeTransactionListParam(p.TransactionList)
	if err != nil {
		return nil, err
	}
	return &call{
		summary: fmt.Sprintf("%s on %s as %s: sign and submit transaction %s", method, chainID, a.account, txs[0].body.txID),
		run: func(ctx context.Context) (any, error) {
			signed, err := a.signAll(txs)
			if err != nil {
				return nil, err
			}
			return a.submit(ctx, signed)
		},
	}, nil
}

func (a *Adapter) prepareSignAndExecuteQuery(method, chainID string, params json.RawMessage) (walletkit.Call, error) {
	var p struct {
		SignerAccountID string `json:"signerAccountId"`
		Query           string `json:"query"`
	}
	if err := decodeObject(method, params, &p); err != nil {
		return nil, err
	}
	if err := a.checkSigner(p.SignerAccountID); err != nil {
		return nil, err
	}
	raw, err := decodeB64("query", p.Query)
	if err != nil {
		return nil, err
	}
	q, err := decodeQuery(raw)
	if err != nil {
		return nil, walleterr.InvalidParams("query does not decode: %v", err)
	}

	var payment *preparedTx
	if pay := q.payment(); pay != nil {
		ptx, err := prepareTx(pay)
		if err != nil {
			return nil, walleterr.InvalidParams("query payment does not decode: %v", err)
		}
		payment = &ptx
	}

	return &call{
		summary: fmt.Sprintf("%s on %s as %s: run query %s", method, chainID, a.account, q.kindName),
		run: func(ctx context.Context) (any, error) {
			node, ok := a.firstNode()
			if !ok {
				return nil, walleterr.Network(nil, "no ledger nodes configured")
			}
			query := q.query
			if payment != nil {
				signed, err := a.signAll([]preparedTx{*payment})
				if err != nil {
					return nil, err
				}
				query = q.withPayment(signed[0].tx)
				node = payment.body.node
			}
			resp, err := a.network.Query(ctx, node, q.kind, query)
			if err != nil {
				return nil, walleterr.Network(err, "query node %s", node)
			}
			b, err := marshal.Marshal(resp)
			if err != nil {
				return nil, errors.Wrap(err, "encode query response")
			}
			return QueryResult{Response: encodeB64(b)}, nil
		},
	}, nil
}

// signAll adds this account's signature to every transaction.
func (a *Adapter) signAll(txs []preparedTx) ([]preparedTx, error) {
	out := make([]preparedTx, 0, len(txs))
	for _, tx := range txs {
		stx, err := tx.signed.addSignature(a.key)
		if err != nil {
			return nil, errors.Wrap(err, "sign transaction")
		}
		ptx, err := prepareTx(stx)
		if err != nil {
			return nil, errors.Wrap(err, "re-decode signed transaction")
		}
		out = append(out, ptx)
	}
	return out, nil
}

// submit sends the first transaction whose node is configured. A node that is
// unreachable or busy moves on to the next entry; any other precheck status
// ends the attempt.
func (a *Adapter) submit(ctx context.Context, txs []preparedTx) (ExecuteResult, error) {
	known := make(map[AccountID]bool)
	for _, n := range a.network.Nodes() {
		known[n.AccountID] = true
	}

	var lastErr error
	for _, tx := range txs {
		if !known[tx.body.node] {
			continue
		}
		err := a.network.Submit(ctx, tx.body.node, tx.body.kind, tx.tx)
		if err == nil {
			res := ExecuteResult{
				NodeID:          tx.body.node.String(),
				TransactionHash: transactionHash(tx.signed.raw),
				TransactionID:   tx.body.txID,
			}
			log.Info("ledger transaction submitted", "node", res.NodeID, "transactionId", res.TransactionID)
			return res, nil
		}

		var pe *PrecheckError
		if errors.As(err, &pe) && pe.Code != services.ResponseCodeEnum_BUSY {
			return ExecuteResult{}, walleterr.Network(err, "submit transaction %s", tx.body.txID)
		}
		log.Warn("ledger node submission failed, trying next node", "node", tx.body.node.String(), "error", err)
		lastErr = err
	}
	if lastErr == nil {
		return ExecuteResult{}, walleterr.Network(nil, "no transaction in the list targets a configured node")
	}
	return ExecuteResult{}, walleterr.Network(lastErr, "submit transaction")
}

func (a *Adapter) firstNode() (AccountID, bool) {
	nodes := a.network.Nodes()
	if len(nodes) == 0 {
		return AccountID{}, false
	}
	return nodes[0].AccountID, true
}

// checkSigner requires signerAccountId to name this wallet's account, with or
// without the "hedera:<net>:" prefix.
func (a *Adapter) checkSigner(signer string) error {
	if signer == "" {
		return walleterr.InvalidParams("signerAccountId is required")
	}
	if i := strings.LastIndex(signer, ":"); i >= 0 && signer[:i] != a.chainID {
		return walleterr.InvalidParams("signerAccountId %q is not on %s", signer, a.chainID)
	}
	id, err := ParseAccountID(signer)
	if err != nil {
		return walleterr.InvalidParams("invalid signerAccountId %q", signer)
	}
	if id != a.account {
		return walleterr.InvalidParams("signerAccountId %s is not controlled by this wallet", id)
	}
	return nil
}

func (a *Adapter) signatureMapResult(msg []byte) (SignatureMapResult, error) {
	b, err := marshal.Marshal(signatureMap(a.key.PublicKey().BytesRaw(), a.key.Sign(msg)))
	if err != nil {
		return SignatureMapResult{}, errors.Wrap(err, "encode signature map")
	}
	return SignatureMapResult{SignatureMap: encodeB64(b)}, nil
}

func prefixMessage(msg string) []byte {
	return []byte(messagePrefix + strconv.Itoa(len(msg)) + msg)
}

func prepareTx(tx *services.Transaction) (preparedTx, error) {
	signed, err := decodeTransaction(tx)
	if err != nil {
		return preparedTx{}, err
	}
	body, err := decodeBody(signed.signed.GetBodyBytes())
	if err != nil {
		return preparedTx{}, err
	}
	return preparedTx{tx: tx, signed: signed, body: body}, nil
}

func decodeTransactionListParam(s string) ([]preparedTx, error) {
	raw, err := decodeB64("transactionList", s)
	if err != nil {
		return nil, err
	}
	list, err := decodeTransactionList(raw)
	if err != nil {
		return nil, walleterr.InvalidParams("transactionList does not decode: %v", err)
	}
	out := make([]preparedTx, 0, len(list))
	for i, tx := range list {
		ptx, err := prepareTx(tx)
		if err != nil {
			return nil, walleterr.InvalidParams("transaction %d does not decode: %v", i, err)
		}
		out = append(out, ptx)
	}
	return out, nil
}

// decodeObject requires params to be a JSON object whose fields have the
// declared types.
func decodeObject(method string, params json.RawMessage, dst any) error {
	p := bytes.TrimSpace(params)
	if len(p) == 0 || p[0] != '{' {
		return walleterr.InvalidParams("%s params must be an object", method)
	}
	if err := json.Unmarshal(p, dst); err != nil {
		return walleterr.InvalidParams("%s params: %v", method, err)
	}
	return nil
}

func decodeB64(name, s string) ([]byte, error) {
	if s == "" {
		return nil, walleterr.InvalidParams("%s is required", name)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, walleterr.InvalidParams("%s is not base64", name)
	}
	return b, nil
}

func encodeB64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }
