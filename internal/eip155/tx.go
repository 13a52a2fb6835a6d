package eip155

import (
	"context"
	"math/big"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/ethwallet/wtypes"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
)

const minGasLimit = 21_000

// populate fills nonce, gas and fees that the caller left out, then builds an
// EIP-1559 transaction when the chain reports a base fee and a legacy one
// otherwise.
func populate(ctx context.Context, client ChainClient, w wtypes.Wallet, chainID *big.Int, args txArgs) (*types.Transaction, error) {
	from := w.Address()

	var nonce uint64
	if args.Nonce != nil {
		nonce = uint64(*args.Nonce)
	} else {
		n, err := client.PendingNonceAt(ctx, from)
		if err != nil {
			return nil, walleterr.Network(err, "pending nonce for %s", from.Hex())
		}
		nonce = n
	}

	value := new(big.Int)
	if args.Value != nil {
		value = args.Value.ToInt()
	}
	data := args.data()

	gas, ok := args.gas()
	if !ok {
		est, err := client.EstimateGas(ctx, ethereum.CallMsg{
			From:  from,
			To:    args.To,
			Value: value,
			Data:  data,
		})
		if err != nil {
			return nil, walleterr.Network(err, "estimate gas")
		}
		gas = est + est/10
		if gas < minGasLimit {
			gas = minGasLimit
		}
	}

	if args.GasPrice != nil {
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: args.GasPrice.ToInt(),
			Gas:      gas,
			To:       args.To,
			Value:    value,
			Data:     data,
		}), nil
	}

	tip, feeCap, dynamic, err := suggestFees(ctx, client, args)
	if err != nil {
		return nil, err
	}
	if !dynamic {
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: feeCap,
			Gas:      gas,
			To:       args.To,
			Value:    value,
			Data:     data,
		}), nil
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        args.To,
		Value:     value,
		Data:      data,
	}), nil
}

// suggestFees prefers caller-supplied EIP-1559 caps, then the chain head's base
// fee (feeCap = 2*baseFee + tip), then the legacy gas price.
func suggestFees(ctx context.Context, client ChainClient, args txArgs) (tip, feeCap *big.Int, dynamic bool, err error) {
	if args.MaxFeePerGas != nil || args.MaxPriorityFeePerGas != nil {
		if args.MaxPriorityFeePerGas != nil {
			tip = args.MaxPriorityFeePerGas.ToInt()
		} else if tip, err = client.SuggestGasTipCap(ctx); err != nil {
			return nil, nil, false, walleterr.Network(err, "suggest gas tip cap")
		}
		if args.MaxFeePerGas != nil {
			feeCap = args.MaxFeePerGas.ToInt()
		} else {
			feeCap = new(big.Int).Mul(tip, big.NewInt(2))
		}
		return tip, feeCap, true, nil
	}

	hdr, hdrErr := client.HeaderByNumber(ctx, nil)
	if hdrErr == nil && hdr != nil && hdr.BaseFee != nil {
		if tip, err = client.SuggestGasTipCap(ctx); err == nil {
			feeCap = new(big.Int).Mul(hdr.BaseFee, big.NewInt(2))
			feeCap.Add(feeCap, tip)
			return tip, feeCap, true, nil
		}
	}

	gp, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, nil, false, walleterr.Network(err, "suggest gas price")
	}
	return nil, gp, false, nil
}

func signTx(ctx context.Context, w wtypes.Wallet, chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	signer := types.LatestSignerForChainID(chainID)
	h := signer.Hash(tx)
	sig, err := w.SignHash(ctx, h[:])
	if err != nil {
		return nil, errors.Wrap(err, "sign transaction")
	}
	return tx.WithSignature(signer, sig)
}

// broadcast sends tx and waits up to timeout for its receipt. A receipt that is
// not observed in time is logged and the hash is still returned; a reverted
// receipt is a network error.
func broadcast(ctx context.Context, client ChainClient, tx *types.Transaction, timeout time.Duration) (string, error) {
	if err := client.SendTransaction(ctx, tx); err != nil {
		return "", walleterr.Network(err, "send transaction")
	}
	hash := tx.Hash().Hex()
	log.Info("EVM transaction broadcast", "txHash", hash)

	if timeout <= 0 {
		return hash, nil
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	receipt, err := bind.WaitMined(wctx, client, tx)
	if err != nil {
		log.Warn("EVM receipt not observed", "txHash", hash, "error", err)
		return hash, nil
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return "", walleterr.Network(nil, "transaction %s reverted in block %s", hash, receipt.BlockNumber)
	}
	return hash, nil
}
