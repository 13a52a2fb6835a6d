// Package router dispatches signing requests to the signer that owns the
// method and turns every outcome into exactly one response.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/confirm"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/eip155"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/hedera"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/metrics"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/walletkit"
)

// Signer is one account's adapter.
type Signer interface {
	Namespace() string
	Supports(method string) bool
	Prepare(method, chainID string, params json.RawMessage) (walletkit.Call, error)
}

// Targets are the signers borrowed for one request.
type Targets struct {
	EVM    Signer
	Ledger Signer
}

type Router struct {
	metrics *metrics.Metrics
}

func New(m *metrics.Metrics) *Router {
	return &Router{metrics: m}
}

// Classify returns the namespace owning method, or "" when neither does.
func Classify(method string) string {
	switch {
	case eip155.IsMethod(method):
		return eip155.Namespace
	case hedera.IsMethod(method):
		return hedera.Namespace
	default:
		return ""
	}
}

// Route never panics and always answers req. Cancelling ctx while the operator
// is deciding answers with a state error; once approved, the call runs to
// completion regardless of ctx.
func (r *Router) Route(ctx context.Context, req walletkit.Request, targets Targets, port confirm.Port) (resp walletkit.Response) {
	started := time.Now()
	ns := Classify(req.Method)
	outcome := metrics.OutcomeFailure

	defer func() {
		if p := recover(); p != nil {
			log.Error("signing request panicked", "id", req.ID, "method", req.Method, "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
			resp = walletkit.Failure(req.ID, walleterr.CodeInternal, "internal error")
			outcome = metrics.OutcomePanic
		}
		r.metrics.ObserveRequest(ns, req.Method, outcome, started)
	}()

	var target Signer
	switch ns {
	case eip155.Namespace:
		target = targets.EVM
	case hedera.Namespace:
		target = targets.Ledger
	default:
		outcome = metrics.OutcomeUnsupported
		return walletkit.FailureFromError(req.ID, walleterr.UnsupportedMethod(req.Method))
	}
	if target == nil {
		return walletkit.FailureFromError(req.ID, walleterr.State("no %s signer while locked", ns))
	}

	call, err := target.Prepare(req.Method, req.ChainID, req.Params)
	if err != nil {
		if errors.Is(err, walleterr.ErrInvalidParams) || errors.Is(err, walleterr.ErrValidation) {
			outcome = metrics.OutcomeInvalid
		}
		log.Warn("rejecting malformed signing request", "id", req.ID, "method", req.Method, "error", err)
		return walletkit.FailureFromError(req.ID, err)
	}

	approved, err := port.Confirm(ctx, confirm.Prompt{
		Kind:      confirm.KindRequest,
		RequestID: req.ID,
		Topic:     req.Topic,
		ChainID:   req.ChainID,
		Method:    req.Method,
		Summary:   call.Describe(),
	})
	if ctx.Err() != nil {
		outcome = metrics.OutcomeCancelled
		return walletkit.FailureFromError(req.ID, walleterr.State("session locked before the request was approved"))
	}
	if err != nil {
		log.Warn("confirmation failed, treating as rejected", "id", req.ID, "error", err)
	}
	if err != nil || !approved {
		outcome = metrics.OutcomeRejected
		return walletkit.FailureFromError(req.ID, walleterr.ErrUserRejected)
	}

	result, err := call.Execute(context.WithoutCancel(ctx))
	if err != nil {
		log.Warn("signing request failed", "id", req.ID, "method", req.Method, "error", err)
		return walletkit.FailureFromError(req.ID, err)
	}
	outcome = metrics.OutcomeSuccess
	return walletkit.Success(req.ID, result)
}
