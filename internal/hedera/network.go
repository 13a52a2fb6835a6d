package hedera

import (
	"context"
	"fmt"

	"github.com/hashgraph/hedera-protobufs-go/services"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Node is one consensus node the wallet may submit to.
type Node struct {
	AccountID AccountID
	Address   string
}

// Network submits transactions and queries to ledger nodes. kind is the field
// number of the transaction body data or query oneof, used to pick the service
// method.
type Network interface {
	Nodes() []Node
	Submit(ctx context.Context, node AccountID, kind protoreflect.FieldNumber, tx *services.Transaction) error
	Query(ctx context.Context, node AccountID, kind protoreflect.FieldNumber, query *services.Query) (*services.Response, error)
}

// PrecheckError is a node refusing a transaction or query before consensus.
type PrecheckError struct {
	Node AccountID
	Code services.ResponseCodeEnum
}

func (e *PrecheckError) Error() string {
	return fmt.Sprintf("node %s precheck failed: %s", e.Node, e.Code)
}
