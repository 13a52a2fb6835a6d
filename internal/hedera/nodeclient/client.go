// Package nodeclient talks gRPC to ledger consensus nodes.
package nodeclient

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashgraph/hedera-protobufs-go/services"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/quantumauth-io/quantum-go-utils/retry"
	"github.com/sony/gobreaker"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/hedera"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultBusyBackoff    = 250 * time.Millisecond
)

var errBusy = errors.New("node busy")

type Config struct {
	Nodes          []hedera.Node
	RequestTimeout time.Duration
	BusyBackoff    time.Duration
	DialOptions    []grpc.DialOption
}

// Client keeps one lazily created connection and one circuit breaker per node.
type Client struct {
	nodes    []hedera.Node
	timeout  time.Duration
	backoff  time.Duration
	dialOpts []grpc.DialOption

	mu       sync.Mutex
	conns    map[hedera.AccountID]*grpc.ClientConn
	breakers map[hedera.AccountID]*gobreaker.CircuitBreaker
}

var _ hedera.Network = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if len(cfg.Nodes) == 0 {
		return nil, walleterr.Validation("nodeclient: at least one node is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.BusyBackoff <= 0 {
		cfg.BusyBackoff = DefaultBusyBackoff
	}
	if len(cfg.DialOptions) == 0 {
		cfg.DialOptions = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	return &Client{
		nodes:    cfg.Nodes,
		timeout:  cfg.RequestTimeout,
		backoff:  cfg.BusyBackoff,
		dialOpts: cfg.DialOptions,
		conns:    make(map[hedera.AccountID]*grpc.ClientConn),
		breakers: make(map[hedera.AccountID]*gobreaker.CircuitBreaker),
	}, nil
}

func (c *Client) Nodes() []hedera.Node {
	out := make([]hedera.Node, len(c.nodes))
	copy(out, c.nodes)
	return out
}

// Submit sends a Transaction and checks the TransactionResponse precheck code.
func (c *Client) Submit(ctx context.Context, node hedera.AccountID, kind protoreflect.FieldNumber, tx *services.Transaction) error {
	method, ok := transactionMethods[kind]
	if !ok {
		return walleterr.InvalidParams("unsupported transaction kind %d", kind)
	}
	_, err := c.invoke(ctx, node, method, tx, func() proto.Message { return &services.TransactionResponse{} }, transactionPrecheck)
	return err
}

// Query sends a Query and returns the node's Response.
func (c *Client) Query(ctx context.Context, node hedera.AccountID, kind protoreflect.FieldNumber, query *services.Query) (*services.Response, error) {
	method, ok := queryMethods[kind]
	if !ok {
		return nil, walleterr.InvalidParams("unsupported query kind %d", kind)
	}
	resp, err := c.invoke(ctx, node, method, query, func() proto.Message { return &services.Response{} }, queryPrecheck)
	if err != nil {
		return nil, err
	}
	return resp.(*services.Response), nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs error
	for id, conn := range c.conns {
		if err := conn.Close(); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "close node %s", id))
		}
		delete(c.conns, id)
	}
	return errs
}

// invoke calls method on node, retrying while the node answers BUSY. Transport
// failures are not retried here; they count against the node's breaker and the
// caller moves on to another node.
func (c *Client) invoke(ctx context.Context, node hedera.AccountID, method string, req proto.Message,
	newResp func() proto.Message, precheck func(proto.Message) services.ResponseCodeEnum) (proto.Message, error) {
	conn, cb, err := c.connFor(node)
	if err != nil {
		return nil, err
	}

	cfg := retry.DefaultConfig()
	cfg.InitialDelayBeforeRetrying = c.backoff
	cfg.MaxDelayBeforeRetrying = c.backoff * 8

	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		resp     proto.Message
		finalErr error
		attempts int
	)
	_, retryErr := retry.Retry(rctx, cfg,
		func(ctx context.Context) ([]interface{}, error) {
			attempts++
			out, err := cb.Execute(func() (interface{}, error) {
				out := newResp()
				if err := conn.Invoke(ctx, method, req, out); err != nil {
					return nil, err
				}
				return out, nil
			})
			if err != nil {
				finalErr = errors.Wrapf(err, "call %s on node %s", method, node)
				return nil, nil
			}
			resp = out.(proto.Message)
			code := precheck(resp)
			if code == services.ResponseCodeEnum_BUSY {
				return nil, errBusy
			}
			finalErr = nil
			if code != services.ResponseCodeEnum_OK {
				finalErr = &hedera.PrecheckError{Node: node, Code: code}
			}
			return nil, nil
		},
		nil,
		"ledger node "+method)
	if retryErr != nil {
		log.Warn("ledger node stayed busy", "node", node.String(), "method", method, "attempts", attempts)
		return nil, &hedera.PrecheckError{Node: node, Code: services.ResponseCodeEnum_BUSY}
	}
	if finalErr != nil {
		return nil, finalErr
	}
	return resp, nil
}

func (c *Client) connFor(id hedera.AccountID) (*grpc.ClientConn, *gobreaker.CircuitBreaker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns[id]; ok {
		return conn, c.breakers[id], nil
	}

	var node *hedera.Node
	for i := range c.nodes {
		if c.nodes[i].AccountID == id {
			node = &c.nodes[i]
			break
		}
	}
	if node == nil {
		return nil, nil, walleterr.Network(nil, "node %s is not configured", id)
	}

	conn, err := grpc.NewClient(node.Address, c.dialOpts...)
	if err != nil {
		return nil, nil, walleterr.Network(err, "connect to node %s at %s", id, node.Address)
	}
	c.conns[id] = conn
	if _, ok := c.breakers[id]; !ok {
		c.breakers[id] = newCircuitBreaker(id)
	}
	return conn, c.breakers[id], nil
}

func newCircuitBreaker(id hedera.AccountID) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "ledger-node-" + id.String(),
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				log.Warn("ledger node seems down, stop sending requests", "breaker", name)
			}
			if from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed {
				log.Info("ledger node seems ok, resume sending requests", "breaker", name)
			}
		},
	})
}

// transactionPrecheck reads TransactionResponse.nodeTransactionPrecheckCode.
func transactionPrecheck(resp proto.Message) services.ResponseCodeEnum {
	r, _ := resp.(*services.TransactionResponse)
	return r.GetNodeTransactionPrecheckCode()
}

// queryPrecheck reads Response.<kind>.header.nodeTransactionPrecheckCode. A
// response without a header counts as OK.
func queryPrecheck(resp proto.Message) services.ResponseCodeEnum {
	m := resp.ProtoReflect()
	fd := m.WhichOneof(m.Descriptor().Oneofs().ByName("response"))
	if fd == nil {
		return services.ResponseCodeEnum_OK
	}
	inner := m.Get(fd).Message()
	hfd := inner.Descriptor().Fields().ByName("header")
	if hfd == nil || !inner.Has(hfd) {
		return services.ResponseCodeEnum_OK
	}
	header, _ := inner.Get(hfd).Message().Interface().(*services.ResponseHeader)
	return header.GetNodeTransactionPrecheckCode()
}
