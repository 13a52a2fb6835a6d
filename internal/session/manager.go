package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/confirm"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/eip155"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/ethwallet/userwallet"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/hedera"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/hedera/nodeclient"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/kvstore"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/metrics"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/router"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/vault"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/walletkit"
)

const (
	DefaultMaxInFlight    = 16
	DefaultRespondTimeout = 15 * time.Second
	DefaultDrainTimeout   = 3 * time.Minute
)

// LedgerNetworkFunc builds the node client for a network name.
type LedgerNetworkFunc func(network string) (hedera.Network, error)

type Config struct {
	// Persistent holds the vault record across restarts.
	Persistent kvstore.Store
	// Volatile holds the session marker. Defaults to memory.
	Volatile kvstore.Store
	Dialer   walletkit.Dialer
	Confirm  confirm.Port

	Chains        map[string]eip155.Chain
	EVMDial       eip155.DialFunc
	LedgerNetwork LedgerNetworkFunc

	ReceiptTimeout time.Duration
	MaxInFlight    int64
	RespondTimeout time.Duration
	DrainTimeout   time.Duration

	Metrics *metrics.Metrics
}

// Manager serializes every lifecycle transition behind one mutex. Signing
// requests run concurrently on leases of the live session and are drained
// before a transition tears it down.
type Manager struct {
	cfg    Config
	router *router.Router

	mu    sync.Mutex
	state State
	live  *live
}

func New(cfg Config) (*Manager, error) {
	if cfg.Persistent == nil {
		return nil, walleterr.Validation("session: persistent store is required")
	}
	if cfg.Dialer == nil {
		return nil, walleterr.Validation("session: protocol dialer is required")
	}
	if cfg.Confirm == nil {
		return nil, walleterr.Validation("session: confirmation port is required")
	}
	if cfg.Volatile == nil {
		cfg.Volatile = kvstore.NewMemoryStore()
	}
	if cfg.LedgerNetwork == nil {
		cfg.LedgerNetwork = DefaultLedgerNetwork
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.RespondTimeout <= 0 {
		cfg.RespondTimeout = DefaultRespondTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = eip155.DefaultReceiptTimeout
	}

	m := &Manager{cfg: cfg, router: router.New(cfg.Metrics)}
	has, err := m.hasRecord()
	if err != nil {
		return nil, err
	}
	m.setState(Uninitialized)
	if has {
		m.setState(Locked)
	}
	return m, nil
}

// DefaultLedgerNetwork dials the built-in node table for network.
func DefaultLedgerNetwork(network string) (hedera.Network, error) {
	nodes, err := nodeclient.ResolveNodes(network, nil)
	if err != nil {
		return nil, err
	}
	return nodeclient.New(nodeclient.Config{Nodes: nodes})
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Initialize unlocks the wallet with bundle. With a non-empty password the
// bundle is also sealed into the persistent store, replacing any previous
// record. It is a no-op while already unlocked.
func (m *Manager) Initialize(ctx context.Context, bundle vault.Bundle, password string) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() { m.cfg.Metrics.Transition("initialize", err) }()

	if m.state == Unlocked {
		log.Info("wallet already unlocked, initialize ignored")
		return nil
	}
	if err := bundle.Validate(); err != nil {
		return err
	}

	var record string
	if password != "" {
		if record, err = vault.SealBundle(bundle, password); err != nil {
			return err
		}
	}

	l, err := m.open(ctx, bundle)
	if err != nil {
		return err
	}

	if record != "" {
		if err := m.cfg.Persistent.Set(KeyVaultRecord, record); err != nil {
			m.closeLive(ctx, l)
			return errors.Wrap(err, "persist vault record")
		}
		m.setMarker(password)
	}

	m.activate(l)
	log.Info("wallet initialized", "network", bundle.Network, "evmAddress", l.evm.Address(),
		"ledgerAccount", l.ledger.AccountID(), "persisted", record != "")
	return nil
}

// Unlock decrypts the stored record and opens the session. A wrong password
// leaves the wallet locked.
func (m *Manager) Unlock(ctx context.Context, password string) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() { m.cfg.Metrics.Transition("unlock", err) }()

	if m.state != Locked {
		return walleterr.State("cannot unlock while %s", m.state)
	}
	record, err := m.cfg.Persistent.Get(KeyVaultRecord)
	if errors.Is(err, kvstore.ErrNotFound) {
		return walleterr.State("no stored credentials to unlock")
	}
	if err != nil {
		return errors.Wrap(err, "load vault record")
	}

	bundle, err := vault.OpenBundle(record, password)
	if err != nil {
		log.Warn("unlock failed", "error", err)
		return err
	}

	l, err := m.open(ctx, bundle)
	if err != nil {
		return err
	}
	m.setMarker(password)
	m.activate(l)
	log.Info("wallet unlocked", "network", bundle.Network, "evmAddress", l.evm.Address(),
		"ledgerAccount", l.ledger.AccountID())
	return nil
}

// Lock answers requests still awaiting the operator with a state error, waits
// for dispatched ones, then closes the connection and drops the signers. A
// wallet with no stored record ends Uninitialized rather than Locked, see
// settle.
func (m *Manager) Lock(ctx context.Context) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() { m.cfg.Metrics.Transition("lock", err) }()

	if m.state != Unlocked {
		return walleterr.State("cannot lock while %s", m.state)
	}
	l := m.deactivate()
	m.quiesce(ctx, l)
	m.closeLive(ctx, l)
	return m.settle()
}

// DisconnectAll ends every session and pairing with USER_DISCONNECTED, then
// tears down like Lock. Disconnect failures are returned after teardown.
func (m *Manager) DisconnectAll(ctx context.Context) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() { m.cfg.Metrics.Transition("disconnect", err) }()

	if m.state != Unlocked || m.live == nil {
		return walleterr.State("no open connection")
	}
	l := m.deactivate()
	m.quiesce(ctx, l)

	var errs error
	for _, s := range l.conn.ActiveSessions() {
		if err := l.conn.DisconnectSession(ctx, s.Topic, walletkit.ErrUserDisconnected); err != nil {
			log.Warn("disconnect session failed", "topic", s.Topic, "error", err)
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "disconnect session %s", s.Topic))
		}
	}
	for _, p := range l.conn.Pairings() {
		if err := l.conn.DisconnectPairing(ctx, p.Topic, walletkit.ErrUserDisconnected); err != nil {
			log.Warn("disconnect pairing failed", "topic", p.Topic, "error", err)
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "disconnect pairing %s", p.Topic))
		}
	}

	m.closeLive(ctx, l)
	if err := m.settle(); err != nil {
		errs = errors.CombineErrors(errs, err)
	}
	return errs
}

// Pair hands a pairing uri to the open connection.
func (m *Manager) Pair(ctx context.Context, uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Unlocked {
		return walleterr.State("cannot pair while %s", m.state)
	}
	parsed, err := walletkit.ParsePairingURI(uri)
	if err != nil {
		return err
	}
	if err := m.live.conn.Pair(ctx, uri); err != nil {
		return err
	}
	log.Info("paired", "topic", parsed.Topic)
	return nil
}

// ChangePassword re-seals the stored record under newPassword.
func (m *Manager) ChangePassword(ctx context.Context, oldPassword, newPassword string) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() { m.cfg.Metrics.Transition("change_password", err) }()

	if m.state == Uninitialized {
		return walleterr.State("no stored credentials")
	}
	record, err := m.cfg.Persistent.Get(KeyVaultRecord)
	if errors.Is(err, kvstore.ErrNotFound) {
		return walleterr.State("no stored credentials")
	}
	if err != nil {
		return errors.Wrap(err, "load vault record")
	}
	bundle, err := vault.OpenBundle(record, oldPassword)
	if err != nil {
		return err
	}
	fresh, err := vault.SealBundle(bundle, newPassword)
	if err != nil {
		return err
	}
	if err := m.cfg.Persistent.Set(KeyVaultRecord, fresh); err != nil {
		return errors.Wrap(err, "persist vault record")
	}
	if m.state == Unlocked {
		m.setMarker(newPassword)
	}
	log.Info("wallet password changed")
	return nil
}

// ClearData deletes the stored record. The wallet must not be unlocked.
func (m *Manager) ClearData(ctx context.Context) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() { m.cfg.Metrics.Transition("clear", err) }()

	if m.state == Unlocked {
		return walleterr.State("lock the wallet before clearing its data")
	}
	if err := m.cfg.Persistent.Delete(KeyVaultRecord); err != nil {
		return errors.Wrap(err, "delete vault record")
	}
	if err := m.cfg.Volatile.Delete(KeyPasswordMarker); err != nil {
		log.Warn("clearing session marker failed", "error", err)
	}
	m.setState(Uninitialized)
	log.Info("wallet data cleared")
	return nil
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	has, err := m.hasRecord()
	if err != nil {
		log.Warn("reading vault record failed", "error", err)
	}
	_, markerErr := m.cfg.Volatile.Get(KeyPasswordMarker)

	st := Status{
		State:                m.state,
		HasStoredCredentials: has,
		HasSessionMarker:     markerErr == nil,
	}
	if l := m.live; l != nil {
		st.Network = l.network
		st.EVMAddress = l.evm.Address()
		st.EVMAccountID = l.evmAccountID
		st.LedgerAccountID = l.ledger.AccountID()
		st.Sessions = l.conn.ActiveSessions()
		st.Pairings = l.conn.Pairings()
		st.ActiveSessions = len(st.Sessions)
	}
	return st
}

// Shutdown locks an unlocked wallet so nothing is left running.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.State() != Unlocked {
		return nil
	}
	err := m.Lock(ctx)
	if errors.Is(err, walleterr.ErrState) {
		return nil
	}
	return err
}

// open builds both signers and dials the connection. Nothing is left open on
// failure.
func (m *Manager) open(ctx context.Context, b vault.Bundle) (*live, error) {
	w, err := userwallet.FromPrivateKeyHex(b.EVMPrivateKey)
	if err != nil {
		return nil, err
	}
	evm, err := eip155.NewAdapter(eip155.Config{
		Wallet:         w,
		Clients:        eip155.NewClients(m.cfg.Chains, m.cfg.EVMDial),
		ReceiptTimeout: m.cfg.ReceiptTimeout,
	})
	if err != nil {
		return nil, err
	}

	network, err := m.cfg.LedgerNetwork(b.Network)
	if err != nil {
		evm.Close()
		return nil, err
	}
	ledger, err := hedera.NewAdapter(hedera.Config{
		AccountID:  b.LedgerAccountID,
		PrivateKey: b.LedgerPrivateKey,
		Network:    b.Network,
		Nodes:      network,
	})
	if err != nil {
		evm.Close()
		closeNetwork(network)
		return nil, err
	}

	conn, err := m.cfg.Dialer.Dial(ctx, b.ProjectID)
	if err != nil {
		evm.Close()
		ledger.Close()
		return nil, walleterr.Network(err, "open protocol connection")
	}
	return newLive(b, evm, ledger, conn, m.cfg.MaxInFlight), nil
}

func (m *Manager) activate(l *live) {
	m.live = l
	m.setState(Unlocked)
	l.running = true
	go m.eventLoop(l)
}

func (m *Manager) deactivate() *live {
	l := m.live
	m.live = nil
	return l
}

// settle drops the marker and picks the resting state after a teardown.
func (m *Manager) settle() error {
	if err := m.cfg.Volatile.Delete(KeyPasswordMarker); err != nil {
		log.Warn("clearing session marker failed", "error", err)
	}
	has, err := m.hasRecord()
	if err != nil {
		m.setState(Locked)
		return err
	}
	if has {
		m.setState(Locked)
	} else {
		// Initialized without a password: nothing on disk can be unlocked,
		// so the wallet has to be initialized again.
		m.setState(Uninitialized)
	}
	return nil
}

func (m *Manager) setMarker(password string) {
	if password == "" {
		return
	}
	if err := m.cfg.Volatile.Set(KeyPasswordMarker, vault.HashPassword(password)); err != nil {
		log.Warn("storing session marker failed", "error", err)
	}
}

func (m *Manager) setState(s State) {
	m.state = s
	m.cfg.Metrics.SetState(string(s), allStates...)
}

func (m *Manager) hasRecord() (bool, error) {
	_, err := m.cfg.Persistent.Get(KeyVaultRecord)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, kvstore.ErrNotFound):
		return false, nil
	default:
		return false, errors.Wrap(err, "read vault record")
	}
}
