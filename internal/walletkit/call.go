package walletkit

import "context"

// Call is a validated signing request ready to run. Describe is shown to the
// operator before Execute is allowed.
type Call interface {
	Describe() string
	Execute(ctx context.Context) (any, error)
}
