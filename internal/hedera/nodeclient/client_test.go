package nodeclient

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashgraph/hedera-protobufs-go/services"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/hedera"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
)

type call struct {
	method string
	body   []byte
}

// fakeNode answers every method with the next queued response.
type fakeNode struct {
	mu        sync.Mutex
	calls     []call
	responses [][]byte
	fallback  []byte
}

func (f *fakeNode) handle(_ any, stream grpc.ServerStream) error {
	method, _ := grpc.MethodFromServerStream(stream)
	var req []byte
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}

	f.mu.Lock()
	f.calls = append(f.calls, call{method: method, body: req})
	resp := f.fallback
	if len(f.responses) > 0 {
		resp, f.responses = f.responses[0], f.responses[1:]
	}
	f.mu.Unlock()

	return stream.SendMsg(&resp)
}

func (f *fakeNode) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func startNode(t *testing.T, node *fakeNode) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer(
		grpc.ForceServerCodec(rawCodec{}),
		grpc.UnknownServiceHandler(node.handle),
	)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

func encode(t *testing.T, m proto.Message) []byte {
	t.Helper()
	b, err := proto.Marshal(m)
	require.NoError(t, err)
	return b
}

func precheck(t *testing.T, code services.ResponseCodeEnum) []byte {
	t.Helper()
	return encode(t, &services.TransactionResponse{NodeTransactionPrecheckCode: code})
}

func transfer() *services.Transaction {
	return &services.Transaction{SignedTransactionBytes: []byte{0x0a, 0x02, 0x72, 0x00}}
}

func newTestClient(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := New(Config{
		Nodes:          []hedera.Node{{AccountID: hedera.AccountID{Num: 3}, Address: addr}},
		RequestTimeout: 2 * time.Second,
		BusyBackoff:    time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

var node3 = hedera.AccountID{Num: 3}

func TestSubmitRoutesByTransactionKind(t *testing.T) {
	node := &fakeNode{fallback: precheck(t, services.ResponseCodeEnum_OK)}
	c := newTestClient(t, startNode(t, node))

	tx := transfer()
	require.NoError(t, c.Submit(context.Background(), node3, 14, tx))
	require.NoError(t, c.Submit(context.Background(), node3, 27, tx))

	calls := node.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, "/proto.CryptoService/cryptoTransfer", calls[0].method)
	assert.Equal(t, "/proto.ConsensusService/submitMessage", calls[1].method)

	var got services.Transaction
	require.NoError(t, proto.Unmarshal(calls[0].body, &got))
	assert.True(t, proto.Equal(tx, &got))
}

func TestSubmitRetriesWhileBusy(t *testing.T) {
	node := &fakeNode{
		responses: [][]byte{precheck(t, services.ResponseCodeEnum_BUSY), precheck(t, services.ResponseCodeEnum_BUSY)},
		fallback:  precheck(t, services.ResponseCodeEnum_OK),
	}
	c := newTestClient(t, startNode(t, node))

	require.NoError(t, c.Submit(context.Background(), node3, 14, transfer()))
	assert.Len(t, node.recorded(), 3)
}

func TestSubmitPrecheckFailure(t *testing.T) {
	node := &fakeNode{fallback: precheck(t, services.ResponseCodeEnum_INVALID_SIGNATURE)}
	c := newTestClient(t, startNode(t, node))

	err := c.Submit(context.Background(), node3, 14, transfer())
	var pe *hedera.PrecheckError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, services.ResponseCodeEnum_INVALID_SIGNATURE, pe.Code)
	assert.Contains(t, err.Error(), "INVALID_SIGNATURE")
	assert.Len(t, node.recorded(), 1)
}

func TestSubmitStaysBusy(t *testing.T) {
	node := &fakeNode{fallback: precheck(t, services.ResponseCodeEnum_BUSY)}
	c, err := New(Config{
		Nodes:          []hedera.Node{{AccountID: node3, Address: startNode(t, node)}},
		RequestTimeout: 100 * time.Millisecond,
		BusyBackoff:    5 * time.Millisecond,
	})
	require.NoError(t, err)
	defer c.Close()

	err = c.Submit(context.Background(), node3, 14, transfer())
	var pe *hedera.PrecheckError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, services.ResponseCodeEnum_BUSY, pe.Code)
}

func balanceResponse(code services.ResponseCodeEnum, balance uint64) *services.Response {
	return &services.Response{Response: &services.Response_CryptogetAccountBalance{
		CryptogetAccountBalance: &services.CryptoGetAccountBalanceResponse{
			Header:  &services.ResponseHeader{NodeTransactionPrecheckCode: code},
			Balance: balance,
		},
	}}
}

func balanceQuery() *services.Query {
	return &services.Query{Query: &services.Query_CryptogetAccountBalance{
		CryptogetAccountBalance: &services.CryptoGetAccountBalanceQuery{Header: &services.QueryHeader{}},
	}}
}

func TestQueryReturnsResponse(t *testing.T) {
	want := balanceResponse(services.ResponseCodeEnum_OK, 42)
	node := &fakeNode{fallback: encode(t, want)}
	c := newTestClient(t, startNode(t, node))

	out, err := c.Query(context.Background(), node3, 7, balanceQuery())
	require.NoError(t, err)
	assert.True(t, proto.Equal(want, out))
	assert.Equal(t, uint64(42), out.GetCryptogetAccountBalance().GetBalance())
	assert.Equal(t, "/proto.CryptoService/cryptoGetBalance", node.recorded()[0].method)
}

func TestQueryPrecheckFailure(t *testing.T) {
	node := &fakeNode{fallback: encode(t, balanceResponse(services.ResponseCodeEnum_INSUFFICIENT_TX_FEE, 0))}
	c := newTestClient(t, startNode(t, node))

	_, err := c.Query(context.Background(), node3, 7, balanceQuery())
	var pe *hedera.PrecheckError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, services.ResponseCodeEnum_INSUFFICIENT_TX_FEE, pe.Code)
}

func TestUnknownKindsAndNodes(t *testing.T) {
	c := newTestClient(t, "127.0.0.1:1")

	err := c.Submit(context.Background(), node3, 999, nil)
	assert.True(t, errors.Is(err, walleterr.ErrInvalidParams))

	_, err = c.Query(context.Background(), node3, 999, nil)
	assert.True(t, errors.Is(err, walleterr.ErrInvalidParams))

	err = c.Submit(context.Background(), hedera.AccountID{Num: 42}, 14, nil)
	assert.True(t, errors.Is(err, walleterr.ErrNetwork))
}

func TestBreakerOpensOnUnreachableNode(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	c := newTestClient(t, addr)
	for i := 0; i < 3; i++ {
		require.Error(t, c.Submit(context.Background(), node3, 14, transfer()))
	}
	err = c.Submit(context.Background(), node3, 14, transfer())
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState), "got %v", err)
}

func TestResolveNodes(t *testing.T) {
	nodes, err := ResolveNodes("testnet", nil)
	require.NoError(t, err)
	require.Len(t, nodes, 4)
	assert.Equal(t, "0.0.3", nodes[0].AccountID.String())
	assert.Equal(t, "0.testnet.hedera.com:50211", nodes[0].Address)

	nodes, err = ResolveNodes("mainnet", []NodeConfig{
		{AccountID: "0.0.9", Address: "10.0.0.9:50211"},
		{AccountID: "0.0.4", Address: "10.0.0.4:50211"},
	})
	require.NoError(t, err)
	assert.Equal(t, "0.0.4", nodes[0].AccountID.String())

	_, err = ResolveNodes("previewnet", nil)
	assert.True(t, errors.Is(err, walleterr.ErrValidation))

	_, err = ResolveNodes("testnet", []NodeConfig{{AccountID: "0.0.3", Address: "a:1"}, {AccountID: "0.0.3", Address: "b:1"}})
	assert.True(t, errors.Is(err, walleterr.ErrValidation))
}
