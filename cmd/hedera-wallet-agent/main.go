package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	agentconfig "github.com/quantumauth-io/hedera-wallet-agent/cmd/hedera-wallet-agent/config"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/confirm"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/hedera"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/hedera/nodeclient"
	agenthttp "github.com/quantumauth-io/hedera-wallet-agent/internal/http"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/kvstore"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/metrics"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/relay"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/session"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal("hedera-wallet-agent failed", "error", err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           agentconfig.AppName,
		Short:         "Local wallet agent answering dApp signing requests for an EVM and a ledger account",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var unlock bool
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent and its loopback operator API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), unlock)
		},
	}
	serve.Flags().BoolVar(&unlock, "unlock", false, "prompt for the vault password on the terminal at startup")

	clearData := &cobra.Command{
		Use:   "clear-data",
		Short: "Delete the stored encrypted credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runClearData(cmd.Context())
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s (commit %s, built %s)\n",
				agentconfig.AppName, Version, Commit, BuildDate)
		},
	}

	root.AddCommand(serve, clearData, version)
	return root
}

func runServe(parent context.Context, unlock bool) error {
	log.Info(agentconfig.AppName,
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := agentconfig.Load()
	if err != nil {
		return errors.Wrap(err, "failed to parse config")
	}

	store, err := kvstore.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("store close failed", "error", err)
		}
	}()

	port, approvals := confirmPort(cfg)
	m := metrics.New()

	mgr, err := session.New(session.Config{
		Persistent:     store,
		Dialer:         relay.NewDialer(cfg.Relay.Endpoint),
		Confirm:        port,
		Chains:         cfg.ChainTable(),
		LedgerNetwork:  ledgerNetwork(cfg),
		ReceiptTimeout: cfg.Session.ReceiptTimeout,
		MaxInFlight:    cfg.Session.MaxInFlight,
		RespondTimeout: cfg.Session.RespondTimeout,
		DrainTimeout:   cfg.Session.DrainTimeout,
		Metrics:        m,
	})
	if err != nil {
		return errors.Wrap(err, "init session manager")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			log.Error("session shutdown failed", "error", err)
		}
	}()

	if unlock && mgr.State() == session.Locked {
		if err := unlockFromTerminal(ctx, mgr); err != nil {
			return err
		}
	}

	srv, err := agenthttp.NewServer(agenthttp.Config{
		Addr:           cfg.Addr(),
		Token:          cfg.Server.Token,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Wallet:         mgr,
		Approvals:      approvals,
		Metrics:        m,
	})
	if err != nil {
		return err
	}
	if cfg.Server.Token == "" {
		_, _ = fmt.Fprintf(os.Stderr, "operator token (%s): %s\n", agenthttp.AgentSessionHeader, srv.Token())
	}

	log.Info("wallet agent ready", "state", mgr.State(), "store", cfg.Store.Backend, "approval", cfg.Approval.Mode)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	return g.Wait()
}

func runClearData(ctx context.Context) error {
	cfg, err := agentconfig.Load()
	if err != nil {
		return errors.Wrap(err, "failed to parse config")
	}
	store, err := kvstore.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer store.Close()

	mgr, err := session.New(session.Config{
		Persistent: store,
		Dialer:     relay.NewDialer(cfg.Relay.Endpoint),
		Confirm:    confirm.Always(false),
	})
	if err != nil {
		return err
	}
	if err := mgr.ClearData(ctx); err != nil {
		return err
	}
	log.Info("stored credentials removed", "store", cfg.Store.Path)
	return nil
}

// confirmPort returns the port for the configured approval mode and, for the
// api mode, the queue the operator API decides on.
func confirmPort(cfg *agentconfig.Config) (confirm.Port, agenthttp.Approvals) {
	switch cfg.Approval.Mode {
	case agentconfig.ApprovalTerminal:
		return confirm.NewTerminal(os.Stdin, os.Stderr), nil
	case agentconfig.ApprovalAutoApprove:
		log.Warn("every session proposal and signing request will be approved without asking")
		return confirm.Always(true), nil
	case agentconfig.ApprovalAutoReject:
		return confirm.Always(false), nil
	default:
		q := confirm.NewQueue(cfg.Approval.Timeout)
		return q, q
	}
}

func ledgerNetwork(cfg *agentconfig.Config) session.LedgerNetworkFunc {
	return func(network string) (hedera.Network, error) {
		nodes, err := nodeclient.ResolveNodes(network, cfg.NodesFor(network))
		if err != nil {
			return nil, err
		}
		client, err := nodeclient.New(nodeclient.Config{Nodes: nodes})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func unlockFromTerminal(ctx context.Context, mgr *session.Manager) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("--unlock needs an interactive terminal")
	}
	_, _ = fmt.Fprint(os.Stderr, "Vault password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		return errors.Wrap(err, "password input failed")
	}
	if err := mgr.Unlock(ctx, string(pw)); err != nil {
		return errors.Wrap(err, "unlock")
	}
	return nil
}
