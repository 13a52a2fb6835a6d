package hedera

import (
	"bytes"
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/hashgraph/hedera-protobufs-go/sdk"
	"github.com/hashgraph/hedera-protobufs-go/services"
	hsdk "github.com/hashgraph/hedera-sdk-go/v2"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

var marshal = proto.MarshalOptions{Deterministic: true}

func decodeTransactionList(b []byte) ([]*services.Transaction, error) {
	var list sdk.TransactionList
	if err := proto.Unmarshal(b, &list); err != nil {
		return nil, err
	}
	if len(list.GetTransactionList()) == 0 {
		return nil, errors.New("transaction list is empty")
	}
	return list.GetTransactionList(), nil
}

// signedTransaction is a Transaction reduced to its SignedTransaction. raw is
// what the transaction hash is taken over.
type signedTransaction struct {
	raw    []byte
	signed *services.SignedTransaction
}

func decodeTransaction(tx *services.Transaction) (signedTransaction, error) {
	raw := tx.GetSignedTransactionBytes()
	if len(raw) == 0 {
		// pre-0.11 layout: body and signatures directly on Transaction
		if len(tx.GetBodyBytes()) == 0 {
			return signedTransaction{}, errors.New("transaction carries no signed transaction bytes")
		}
		st := &services.SignedTransaction{BodyBytes: tx.GetBodyBytes(), SigMap: tx.GetSigMap()}
		b, err := marshal.Marshal(st)
		if err != nil {
			return signedTransaction{}, errors.Wrap(err, "encode legacy transaction")
		}
		return signedTransaction{raw: b, signed: st}, nil
	}

	st := &services.SignedTransaction{}
	if err := proto.Unmarshal(raw, st); err != nil {
		return signedTransaction{}, err
	}
	if len(st.GetBodyBytes()) == 0 {
		return signedTransaction{}, errors.New("signed transaction has no body bytes")
	}
	return signedTransaction{raw: raw, signed: st}, nil
}

// addSignature signs the body and returns a Transaction carrying the updated
// signature map. An existing pair for the same key is replaced.
func (s signedTransaction) addSignature(key hsdk.PrivateKey) (*services.Transaction, error) {
	st := proto.Clone(s.signed).(*services.SignedTransaction)
	st.SigMap = mergeSignatureMap(st.GetSigMap(), key.PublicKey().BytesRaw(), key.Sign(st.GetBodyBytes()))
	b, err := marshal.Marshal(st)
	if err != nil {
		return nil, errors.Wrap(err, "encode signed transaction")
	}
	return &services.Transaction{SignedTransactionBytes: b}, nil
}

func signatureMap(pub, sig []byte) *services.SignatureMap {
	return &services.SignatureMap{SigPair: []*services.SignaturePair{{
		PubKeyPrefix: pub,
		Signature:    &services.SignaturePair_Ed25519{Ed25519: sig},
	}}}
}

func mergeSignatureMap(existing *services.SignatureMap, pub, sig []byte) *services.SignatureMap {
	out := &services.SignatureMap{}
	for _, pair := range existing.GetSigPair() {
		if bytes.Equal(pair.GetPubKeyPrefix(), pub) {
			continue
		}
		out.SigPair = append(out.SigPair, pair)
	}
	out.SigPair = append(out.SigPair, signatureMap(pub, sig).SigPair...)
	return out
}

// transactionHash is the hex SHA-384 of the signed transaction bytes.
func transactionHash(signed []byte) string {
	sum := sha512.Sum384(signed)
	return hex.EncodeToString(sum[:])
}

// bodyInfo is what the wallet needs from a TransactionBody. kind is the field
// number of the data oneof.
type bodyInfo struct {
	txID     string
	payer    AccountID
	node     AccountID
	kind     protoreflect.FieldNumber
	kindName protoreflect.Name
}

func decodeBody(b []byte) (bodyInfo, error) {
	body := &services.TransactionBody{}
	if err := proto.Unmarshal(b, body); err != nil {
		return bodyInfo{}, err
	}
	m := body.ProtoReflect()
	fd := m.WhichOneof(m.Descriptor().Oneofs().ByName("data"))
	if fd == nil {
		return bodyInfo{}, errors.New("transaction body has no data")
	}
	id := body.GetTransactionID()
	return bodyInfo{
		txID:     formatTransactionID(id),
		payer:    accountFromProto(id.GetAccountID()),
		node:     accountFromProto(body.GetNodeAccountID()),
		kind:     fd.Number(),
		kindName: fd.Name(),
	}, nil
}

// formatTransactionID renders "shard.realm.num@seconds.nanos".
func formatTransactionID(id *services.TransactionID) string {
	start := id.GetTransactionValidStart()
	return fmt.Sprintf("%s@%d.%09d", accountFromProto(id.GetAccountID()), start.GetSeconds(), start.GetNanos())
}

// queryParts is a Query with its oneof resolved. header is nil for query
// kinds sent without one.
type queryParts struct {
	query    *services.Query
	kind     protoreflect.FieldNumber
	kindName protoreflect.Name
	header   *services.QueryHeader
}

func decodeQuery(b []byte) (queryParts, error) {
	q := &services.Query{}
	if err := proto.Unmarshal(b, q); err != nil {
		return queryParts{}, err
	}
	fd, header := queryHeader(q)
	if fd == nil {
		return queryParts{}, errors.New("query has no body")
	}
	return queryParts{query: q, kind: fd.Number(), kindName: fd.Name(), header: header}, nil
}

func queryHeader(q *services.Query) (protoreflect.FieldDescriptor, *services.QueryHeader) {
	m := q.ProtoReflect()
	fd := m.WhichOneof(m.Descriptor().Oneofs().ByName("query"))
	if fd == nil {
		return nil, nil
	}
	inner := m.Get(fd).Message()
	hfd := inner.Descriptor().Fields().ByName("header")
	if hfd == nil || !inner.Has(hfd) {
		return fd, nil
	}
	header, _ := inner.Get(hfd).Message().Interface().(*services.QueryHeader)
	return fd, header
}

// payment is the query's payment transaction, nil when it carries none.
func (q queryParts) payment() *services.Transaction {
	p := q.header.GetPayment()
	if p == nil || proto.Size(p) == 0 {
		return nil
	}
	return p
}

// withPayment returns a copy of the query paying with tx.
func (q queryParts) withPayment(tx *services.Transaction) *services.Query {
	out := proto.Clone(q.query).(*services.Query)
	if _, header := queryHeader(out); header != nil {
		header.Payment = tx
	}
	return out
}
