package eip155

import (
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
)

func paramList(raw json.RawMessage) ([]json.RawMessage, error) {
	var list []json.RawMessage
	if len(raw) == 0 {
		return nil, walleterr.InvalidParams("params are required")
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, walleterr.InvalidParams("params must be an array")
	}
	return list, nil
}

func asString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// pickNonAddress returns the first param that is not an address. When every
// param looks like an address it falls back to index fallback.
func pickNonAddress(list []json.RawMessage, fallback int) json.RawMessage {
	for _, p := range list {
		if s, ok := asString(p); ok && common.IsHexAddress(s) {
			continue
		}
		return p
	}
	if fallback < 0 {
		fallback = len(list) - 1
	}
	return list[fallback]
}

// parseMessage extracts the bytes to sign for personal_sign and eth_sign.
// Hex strings are decoded, anything else is signed as UTF-8.
func parseMessage(method string, raw json.RawMessage) ([]byte, error) {
	list, err := paramList(raw)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, walleterr.InvalidParams("%s expects a message param", method)
	}

	fallback := 0
	if method == MethodEthSign {
		fallback = -1
	}
	msg, ok := asString(pickNonAddress(list, fallback))
	if !ok {
		return nil, walleterr.InvalidParams("%s message must be a string", method)
	}
	if strings.HasPrefix(msg, "0x") || strings.HasPrefix(msg, "0X") {
		if b, err := hexutil.Decode(msg); err == nil {
			return b, nil
		}
	}
	return []byte(msg), nil
}

// parseTypedData accepts [address, data] where data is a JSON string or object.
func parseTypedData(method string, raw json.RawMessage) (apitypes.TypedData, error) {
	var td apitypes.TypedData

	list, err := paramList(raw)
	if err != nil {
		return td, err
	}
	if len(list) == 0 {
		return td, walleterr.InvalidParams("%s expects typed data", method)
	}

	data := pickNonAddress(list, -1)
	if s, ok := asString(data); ok {
		data = json.RawMessage(s)
	}
	if err := json.Unmarshal(data, &td); err != nil {
		return td, walleterr.InvalidParams("invalid typed data: %v", err)
	}
	if td.PrimaryType == "" || len(td.Types) == 0 {
		return td, walleterr.InvalidParams("typed data needs types and primaryType")
	}
	if _, ok := td.Types[td.PrimaryType]; !ok {
		return td, walleterr.InvalidParams("primaryType %q is not declared", td.PrimaryType)
	}
	return td, nil
}

// txArgs is the transaction object of eth_signTransaction and
// eth_sendTransaction. From is accepted but never used for signing.
type txArgs struct {
	From                 *common.Address `json:"from"`
	To                   *common.Address `json:"to"`
	Gas                  *hexutil.Uint64 `json:"gas"`
	GasLimit             *hexutil.Uint64 `json:"gasLimit"`
	GasPrice             *hexutil.Big    `json:"gasPrice"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Value                *hexutil.Big    `json:"value"`
	Nonce                *hexutil.Uint64 `json:"nonce"`
	Data                 *hexutil.Bytes  `json:"data"`
	Input                *hexutil.Bytes  `json:"input"`
}

func (a txArgs) data() []byte {
	if a.Input != nil {
		return *a.Input
	}
	if a.Data != nil {
		return *a.Data
	}
	return nil
}

func (a txArgs) gas() (uint64, bool) {
	if a.Gas != nil {
		return uint64(*a.Gas), true
	}
	if a.GasLimit != nil {
		return uint64(*a.GasLimit), true
	}
	return 0, false
}

func parseTxArgs(method string, raw json.RawMessage) (txArgs, error) {
	var args txArgs

	list, err := paramList(raw)
	if err != nil {
		return args, err
	}
	if len(list) == 0 {
		return args, walleterr.InvalidParams("%s expects a transaction object", method)
	}
	if err := json.Unmarshal(list[0], &args); err != nil {
		return args, walleterr.InvalidParams("invalid transaction object: %v", err)
	}
	if args.To == nil && len(args.data()) == 0 {
		return args, walleterr.InvalidParams("transaction needs a recipient or contract data")
	}
	args.From = nil
	return args, nil
}

func parseRawTx(raw json.RawMessage) (*types.Transaction, error) {
	list, err := paramList(raw)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, walleterr.InvalidParams("%s expects raw transaction bytes", MethodSendRawTransaction)
	}
	s, ok := asString(list[0])
	if !ok {
		return nil, walleterr.InvalidParams("raw transaction must be a hex string")
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, walleterr.InvalidParams("raw transaction is not hex: %v", err)
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(b); err != nil {
		return nil, walleterr.InvalidParams("raw transaction does not decode: %v", err)
	}
	return tx, nil
}
