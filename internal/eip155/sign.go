package eip155

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/ethwallet/wtypes"
)

const eip712DomainType = "EIP712Domain"

// signDigest signs a 32-byte digest and returns 0x-hex with V=27/28.
func signDigest(ctx context.Context, w wtypes.Wallet, digest []byte) (string, error) {
	sig, err := w.SignHash(ctx, digest)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	sig, err = wtypes.SigToV27(sig)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

// personalDigest is keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg).
func personalDigest(msg []byte) []byte {
	return accounts.TextHash(msg)
}

// withDomainType declares EIP712Domain from the domain's populated fields when
// the caller left it out.
func withDomainType(td apitypes.TypedData) apitypes.TypedData {
	if _, ok := td.Types[eip712DomainType]; ok {
		return td
	}

	var fields []apitypes.Type
	if td.Domain.Name != "" {
		fields = append(fields, apitypes.Type{Name: "name", Type: "string"})
	}
	if td.Domain.Version != "" {
		fields = append(fields, apitypes.Type{Name: "version", Type: "string"})
	}
	if td.Domain.ChainId != nil {
		fields = append(fields, apitypes.Type{Name: "chainId", Type: "uint256"})
	}
	if td.Domain.VerifyingContract != "" {
		fields = append(fields, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	if td.Domain.Salt != "" {
		fields = append(fields, apitypes.Type{Name: "salt", Type: "bytes32"})
	}

	types := make(apitypes.Types, len(td.Types)+1)
	for k, v := range td.Types {
		types[k] = v
	}
	types[eip712DomainType] = fields
	td.Types = types
	return td
}

// typedDataDigest is keccak256(0x19 0x01 || domainSeparator || hashStruct(message)).
func typedDataDigest(td apitypes.TypedData) ([]byte, error) {
	td = withDomainType(td)

	domainSeparator, err := td.HashStruct(eip712DomainType, td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("domain hash: %w", err)
	}
	msgHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("message hash: %w", err)
	}

	d := crypto.Keccak256([]byte{0x19, 0x01}, domainSeparator, msgHash)
	if err := wtypes.EnsureDigest32(d); err != nil {
		return nil, err
	}
	return d, nil
}
