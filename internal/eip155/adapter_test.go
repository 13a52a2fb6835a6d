package eip155

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/ethwallet/userwallet"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
)

const (
	testKey     = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testAddress = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
)

const mailTypedData = `{
  "types": {
    "EIP712Domain": [
      {"name": "name", "type": "string"},
      {"name": "version", "type": "string"},
      {"name": "chainId", "type": "uint256"},
      {"name": "verifyingContract", "type": "address"}
    ],
    "Person": [
      {"name": "name", "type": "string"},
      {"name": "wallet", "type": "address"}
    ],
    "Mail": [
      {"name": "from", "type": "Person"},
      {"name": "to", "type": "Person"},
      {"name": "contents", "type": "string"}
    ]
  },
  "primaryType": "Mail",
  "domain": {
    "name": "Ether Mail",
    "version": "1",
    "chainId": "1",
    "verifyingContract": "0xCcCCccccCCCCcCCCCCCcCcCccCcCCCcCcccccccC"
  },
  "message": {
    "from": {"name": "Cow", "wallet": "0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826"},
    "to": {"name": "Bob", "wallet": "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB"},
    "contents": "Hello, Bob!"
  }
}`

type fakeClient struct {
	mu            sync.Mutex
	nonce         uint64
	gasEstimate   uint64
	baseFee       *big.Int
	tip           *big.Int
	gasPrice      *big.Int
	receiptStatus uint64
	sendErr       error
	sent          []*types.Transaction
	estimates     []ethereum.CallMsg
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		nonce:         7,
		gasEstimate:   21_000,
		baseFee:       big.NewInt(10_000_000_000),
		tip:           big.NewInt(1_000_000_000),
		gasPrice:      big.NewInt(5_000_000_000),
		receiptStatus: types.ReceiptStatusSuccessful,
	}
}

func (f *fakeClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeClient) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.estimates = append(f.estimates, msg)
	return f.gasEstimate, nil
}

func (f *fakeClient) SuggestGasPrice(context.Context) (*big.Int, error) { return f.gasPrice, nil }

func (f *fakeClient) SuggestGasTipCap(context.Context) (*big.Int, error) { return f.tip, nil }

func (f *fakeClient) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(100), BaseFee: f.baseFee}, nil
}

func (f *fakeClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeClient) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: f.receiptStatus, TxHash: h, BlockNumber: big.NewInt(101)}, nil
}

func (f *fakeClient) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return nil, nil
}

func newTestAdapter(t *testing.T, client *fakeClient) *Adapter {
	t.Helper()
	w, err := userwallet.FromPrivateKeyHex(testKey)
	require.NoError(t, err)

	clients := NewClients(DefaultChains(), func(context.Context, string) (ChainClient, error) {
		return client, nil
	})
	a, err := NewAdapter(Config{Wallet: w, Clients: clients, ReceiptTimeout: 5 * time.Second})
	require.NoError(t, err)
	return a
}

func execute(t *testing.T, a *Adapter, method, chainID, params string) (any, error) {
	t.Helper()
	c, err := a.Prepare(method, chainID, json.RawMessage(params))
	if err != nil {
		return nil, err
	}
	assert.NotEmpty(t, c.Describe())
	return c.Execute(context.Background())
}

func recoverSigner(t *testing.T, digest []byte, sigHex string) common.Address {
	t.Helper()
	sig, err := hexutil.Decode(sigHex)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	require.Contains(t, []byte{27, 28}, sig[64])
	sig[64] -= 27
	pub, err := crypto.SigToPub(digest, sig)
	require.NoError(t, err)
	return crypto.PubkeyToAddress(*pub)
}

func TestMethodSet(t *testing.T) {
	assert.Len(t, Methods(), 8)
	for _, m := range Methods() {
		assert.True(t, IsMethod(m))
	}
	assert.False(t, IsMethod("hedera_signMessage"))
	assert.False(t, IsMethod("eth_accounts"))
	assert.Equal(t, []string{"accountsChanged", "chainChanged"}, Events())
}

func TestPersonalSign(t *testing.T) {
	a := newTestAdapter(t, newFakeClient())

	res, err := execute(t, a, MethodPersonalSign, TestnetChainID,
		`["0x48656c6c6f", "0xAbCdEF0123456789abcdef0123456789ABCDEF01"]`)
	require.NoError(t, err)

	sig, ok := res.(string)
	require.True(t, ok)
	assert.Len(t, sig, 132)
	assert.Equal(t, common.HexToAddress(testAddress), recoverSigner(t, accounts.TextHash([]byte("Hello")), sig))
}

func TestEthSignTakesMessageAfterAddress(t *testing.T) {
	a := newTestAdapter(t, newFakeClient())

	res, err := execute(t, a, MethodEthSign, TestnetChainID, `["`+testAddress+`", "plain text"]`)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), recoverSigner(t, accounts.TextHash([]byte("plain text")), res.(string)))
}

func TestTypedDataVariantsShareDigest(t *testing.T) {
	a := newTestAdapter(t, newFakeClient())

	var asObject map[string]any
	require.NoError(t, json.Unmarshal([]byte(mailTypedData), &asObject))
	objParam, err := json.Marshal([]any{testAddress, asObject})
	require.NoError(t, err)
	strParam, err := json.Marshal([]any{testAddress, mailTypedData})
	require.NoError(t, err)

	// drop the domain type to check it is derived from the domain fields
	delete(asObject["types"].(map[string]any), "EIP712Domain")
	derivedParam, err := json.Marshal([]any{testAddress, asObject})
	require.NoError(t, err)

	want := common.FromHex("0xbe609aee343fb3c4b28e1df9e632fca64fcfaede20f02e86244efddf30957bd2")

	tests := []struct {
		method string
		params string
	}{
		{MethodSignTypedData, string(strParam)},
		{MethodSignTypedDataV3, string(objParam)},
		{MethodSignTypedDataV4, string(objParam)},
		{MethodSignTypedDataV4, string(derivedParam)},
	}
	for _, tt := range tests {
		res, err := execute(t, a, tt.method, TestnetChainID, tt.params)
		require.NoError(t, err, tt.method)
		assert.Equal(t, common.HexToAddress(testAddress), recoverSigner(t, want, res.(string)), tt.method)
	}
}

func TestInvalidParams(t *testing.T) {
	a := newTestAdapter(t, newFakeClient())

	tests := []struct {
		name   string
		method string
		params string
	}{
		{"no params", MethodPersonalSign, ``},
		{"object params", MethodPersonalSign, `{"message":"hi"}`},
		{"empty list", MethodEthSign, `[]`},
		{"numeric message", MethodPersonalSign, `[42]`},
		{"typed data not json", MethodSignTypedDataV4, `["` + testAddress + `", "not json"]`},
		{"typed data unknown primary", MethodSignTypedDataV4, `["` + testAddress + `", {"types":{"A":[]},"primaryType":"B","domain":{},"message":{}}]`},
		{"tx without target", MethodSignTransaction, `[{"value":"0x1"}]`},
		{"tx bad quantity", MethodSendTransaction, `[{"to":"` + testAddress + `","value":"ten"}]`},
		{"raw tx not hex", MethodSendRawTransaction, `["zz"]`},
		{"raw tx garbage", MethodSendRawTransaction, `["0xdeadbeef"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Prepare(tt.method, TestnetChainID, json.RawMessage(tt.params))
			require.Error(t, err)
			assert.True(t, errors.Is(err, walleterr.ErrInvalidParams), "got %v", err)
		})
	}
}

func TestUnknownChainIsNetworkError(t *testing.T) {
	a := newTestAdapter(t, newFakeClient())

	_, err := a.Prepare(MethodSendTransaction, "eip155:1", json.RawMessage(`[{"to":"`+testAddress+`"}]`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, walleterr.ErrNetwork))

	_, err = a.Prepare("eth_accounts", TestnetChainID, nil)
	assert.True(t, errors.Is(err, walleterr.ErrUnsupportedMethod))
}

func TestSignTransactionPopulatesFields(t *testing.T) {
	client := newFakeClient()
	a := newTestAdapter(t, client)

	res, err := execute(t, a, MethodSignTransaction, TestnetChainID,
		`[{"from":"0x0000000000000000000000000000000000000001","to":"0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB","value":"0x2386f26fc10000"}]`)
	require.NoError(t, err)

	raw, err := hexutil.Decode(res.(string))
	require.NoError(t, err)
	tx := new(types.Transaction)
	require.NoError(t, tx.UnmarshalBinary(raw))

	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(23_100), tx.Gas())
	assert.Equal(t, big.NewInt(1_000_000_000), tx.GasTipCap())
	assert.Equal(t, big.NewInt(21_000_000_000), tx.GasFeeCap())
	assert.Equal(t, big.NewInt(296), tx.ChainId())

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(296)), tx)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), from)

	require.Len(t, client.estimates, 1)
	assert.Equal(t, common.HexToAddress(testAddress), client.estimates[0].From)
	assert.Empty(t, client.sent)
}

func TestSignTransactionLegacyWithoutBaseFee(t *testing.T) {
	client := newFakeClient()
	client.baseFee = nil
	a := newTestAdapter(t, client)

	res, err := execute(t, a, MethodSignTransaction, TestnetChainID,
		`[{"to":"0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB","gas":"0x5208","nonce":"0x1"}]`)
	require.NoError(t, err)

	tx := new(types.Transaction)
	require.NoError(t, tx.UnmarshalBinary(common.FromHex(res.(string))))
	assert.Equal(t, uint8(types.LegacyTxType), tx.Type())
	assert.Equal(t, uint64(1), tx.Nonce())
	assert.Equal(t, uint64(21_000), tx.Gas())
	assert.Equal(t, big.NewInt(5_000_000_000), tx.GasPrice())
	assert.Empty(t, client.estimates)
}

func TestSendTransaction(t *testing.T) {
	client := newFakeClient()
	a := newTestAdapter(t, client)

	res, err := execute(t, a, MethodSendTransaction, MainnetChainID,
		`[{"to":"0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB","value":"0x1"}]`)
	require.NoError(t, err)

	require.Len(t, client.sent, 1)
	assert.Equal(t, client.sent[0].Hash().Hex(), res)
	assert.Equal(t, big.NewInt(295), client.sent[0].ChainId())
}

func TestSendTransactionFailures(t *testing.T) {
	t.Run("reverted", func(t *testing.T) {
		client := newFakeClient()
		client.receiptStatus = types.ReceiptStatusFailed
		a := newTestAdapter(t, client)

		_, err := execute(t, a, MethodSendTransaction, TestnetChainID,
			`[{"to":"0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB"}]`)
		require.Error(t, err)
		assert.True(t, errors.Is(err, walleterr.ErrNetwork))
	})

	t.Run("rejected by node", func(t *testing.T) {
		client := newFakeClient()
		client.sendErr = errors.New("insufficient funds for gas * price + value")
		a := newTestAdapter(t, client)

		_, err := execute(t, a, MethodSendTransaction, TestnetChainID,
			`[{"to":"0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB"}]`)
		require.Error(t, err)
		assert.True(t, errors.Is(err, walleterr.ErrNetwork))
	})
}

func TestSendRawTransaction(t *testing.T) {
	client := newFakeClient()
	a := newTestAdapter(t, client)

	key, err := crypto.HexToECDSA(testKey[2:])
	require.NoError(t, err)
	to := common.HexToAddress("0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB")
	tx, err := types.SignNewTx(key, types.LatestSignerForChainID(big.NewInt(296)), &types.DynamicFeeTx{
		ChainID:   big.NewInt(296),
		Nonce:     3,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21_000,
		To:        &to,
		Value:     big.NewInt(1),
	})
	require.NoError(t, err)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	res, err := execute(t, a, MethodSendRawTransaction, TestnetChainID, `["`+hexutil.Encode(raw)+`"]`)
	require.NoError(t, err)
	assert.Equal(t, tx.Hash().Hex(), res)
	require.Len(t, client.sent, 1)
}

func TestParseChainID(t *testing.T) {
	id, err := ParseChainID(TestnetChainID)
	require.NoError(t, err)
	assert.Equal(t, int64(296), id.Int64())

	_, err = ParseChainID("hedera:testnet")
	assert.True(t, errors.Is(err, walleterr.ErrNetwork))

	chain, err := ChainForNetwork("mainnet")
	require.NoError(t, err)
	assert.Equal(t, MainnetChainID, chain)
	_, err = ChainForNetwork("previewnet")
	assert.True(t, errors.Is(err, walleterr.ErrValidation))
}
