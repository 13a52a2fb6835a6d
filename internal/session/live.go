package session

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/quantumauth-io/quantum-go-utils/log"
	"golang.org/x/sync/semaphore"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/confirm"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/eip155"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/hedera"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/namespaces"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/router"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/vault"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/walletkit"
)

// live is everything that exists only while unlocked. Handlers hold a lease
// on it; ctx is cancelled when a transition starts tearing it down.
type live struct {
	network      string
	evmAccountID string
	evm          *eip155.Adapter
	ledger       *hedera.Adapter
	conn         walletkit.Connection

	ctx    context.Context
	cancel context.CancelFunc
	sem    *semaphore.Weighted

	mu       sync.Mutex
	closing  bool
	leases   sync.WaitGroup
	running  bool
	loopDone chan struct{}
}

func newLive(b vault.Bundle, evm *eip155.Adapter, ledger *hedera.Adapter, conn walletkit.Connection, maxInFlight int64) *live {
	ctx, cancel := context.WithCancel(context.Background())
	return &live{
		network:      b.Network,
		evmAccountID: b.EVMAccountID,
		evm:          evm,
		ledger:       ledger,
		conn:         conn,
		ctx:          ctx,
		cancel:       cancel,
		sem:          semaphore.NewWeighted(maxInFlight),
		loopDone:     make(chan struct{}),
	}
}

// lease reports false once teardown has begun.
func (l *live) lease() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closing {
		return false
	}
	l.leases.Add(1)
	return true
}

func (l *live) release() { l.leases.Done() }

// quiesce stops new leases, fails waiting confirmations and waits for
// dispatched work, bounded by DrainTimeout.
func (m *Manager) quiesce(ctx context.Context, l *live) {
	l.mu.Lock()
	l.closing = true
	l.mu.Unlock()
	l.cancel()

	drained := make(chan struct{})
	go func() {
		l.leases.Wait()
		close(drained)
	}()

	timer := time.NewTimer(m.cfg.DrainTimeout)
	defer timer.Stop()
	select {
	case <-drained:
	case <-timer.C:
		log.Warn("in-flight requests still running after drain timeout, closing anyway", "timeout", m.cfg.DrainTimeout)
	case <-ctx.Done():
		log.Warn("teardown cancelled while draining requests, closing anyway", "error", ctx.Err())
	}
}

// closeLive closes the connection, waits for the event loop and releases the
// signers.
func (m *Manager) closeLive(ctx context.Context, l *live) {
	l.mu.Lock()
	l.closing = true
	l.mu.Unlock()
	l.cancel()

	if err := l.conn.Close(); err != nil {
		log.Warn("closing protocol connection failed", "error", err)
	}
	if l.running {
		select {
		case <-l.loopDone:
		case <-ctx.Done():
		case <-time.After(m.cfg.RespondTimeout):
			log.Warn("protocol event loop did not stop")
		}
	}
	l.evm.Close()
	l.ledger.Close()
}

func closeNetwork(n hedera.Network) {
	if c, ok := n.(io.Closer); ok {
		_ = c.Close()
	}
}

func (m *Manager) eventLoop(l *live) {
	defer close(l.loopDone)

	for ev := range l.conn.Events() {
		switch ev.Kind {
		case walletkit.EventSessionProposal:
			if ev.Proposal == nil {
				continue
			}
			if !l.lease() {
				continue
			}
			go func(p walletkit.Proposal) {
				defer l.release()
				m.handleProposal(l, p)
			}(*ev.Proposal)

		case walletkit.EventSessionRequest:
			if ev.Request == nil {
				continue
			}
			req := *ev.Request
			if !l.lease() {
				m.respond(l, req.Topic, walletkit.FailureFromError(req.ID, walleterr.State("wallet is locking")))
				continue
			}
			// The loop must keep draining events while handlers are busy:
			// acknowledgements for their own responses arrive on the same
			// connection.
			go func() {
				defer l.release()
				if err := l.sem.Acquire(l.ctx, 1); err != nil {
					m.respond(l, req.Topic, walletkit.FailureFromError(req.ID, walleterr.State("wallet is locking")))
					return
				}
				defer l.sem.Release(1)
				m.cfg.Metrics.RequestStarted()
				defer m.cfg.Metrics.RequestDone()
				m.handleRequest(l, req)
			}()

		case walletkit.EventSessionDelete:
			log.Info("peer deleted session", "topic", ev.Topic)
		case walletkit.EventPairingDelete:
			log.Info("peer deleted pairing", "topic", ev.Topic)
		case walletkit.EventSessionPing:
			log.Info("session ping", "topic", ev.Topic)
		}
	}
}

func (m *Manager) handleProposal(l *live, p walletkit.Proposal) {
	approved, err := namespaces.Negotiate(l.network, l.evm.Address(), l.ledger.AccountID(), p)
	if err != nil {
		log.Error("negotiating namespaces failed", "proposal", p.ID, "error", err)
		m.reject(l, p, walletkit.ErrUserRejected, "error")
		return
	}
	if err := namespaces.Validate(p, approved); err != nil {
		log.Warn("proposal requires unsupported capabilities", "proposal", p.ID, "peer", p.Proposer.Name, "error", err)
		m.reject(l, p, namespaces.RejectReason(err), "unsupported")
		return
	}

	ok, err := m.cfg.Confirm.Confirm(l.ctx, confirm.Prompt{
		Kind:    confirm.KindSession,
		Topic:   p.PairingTopic,
		Peer:    p.Proposer.Name,
		Summary: namespaces.Describe(p, approved),
	})
	if err != nil {
		log.Warn("session confirmation failed, rejecting", "proposal", p.ID, "error", err)
	}
	if err != nil || !ok {
		m.reject(l, p, walletkit.ErrUserRejectedMethods, "rejected")
		return
	}

	ctx, cancel := m.respondContext(l)
	defer cancel()
	s, err := l.conn.ApproveSession(ctx, p.ID, approved)
	if err != nil {
		log.Error("approving session failed", "proposal", p.ID, "error", err)
		m.cfg.Metrics.Proposal("error")
		return
	}
	m.cfg.Metrics.Proposal("approved")
	log.Info("session approved", "topic", s.Topic, "peer", p.Proposer.Name)
}

func (m *Manager) reject(l *live, p walletkit.Proposal, reason walletkit.SDKError, outcome string) {
	ctx, cancel := m.respondContext(l)
	defer cancel()
	if err := l.conn.RejectSession(ctx, p.ID, reason); err != nil {
		log.Warn("rejecting session failed", "proposal", p.ID, "error", err)
	}
	m.cfg.Metrics.Proposal(outcome)
}

func (m *Manager) handleRequest(l *live, req walletkit.Request) {
	resp := m.router.Route(l.ctx, req, router.Targets{EVM: l.evm, Ledger: l.ledger}, m.cfg.Confirm)
	m.respond(l, req.Topic, resp)
}

func (m *Manager) respond(l *live, topic string, resp walletkit.Response) {
	ctx, cancel := m.respondContext(l)
	defer cancel()
	if err := l.conn.Respond(ctx, topic, resp); err != nil {
		log.Warn("sending response failed", "id", resp.ID, "topic", topic, "error", err)
	}
}

// respondContext outlives the lease ctx so answers still go out while locking.
func (m *Manager) respondContext(l *live) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(l.ctx), m.cfg.RespondTimeout)
}
