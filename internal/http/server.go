// Package http is the loopback operator API of the wallet agent.
package http

import (
	"context"
	"net"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/metrics"
)

type Config struct {
	Addr string
	// Token is the required X-Agent-Session value. Generated when empty.
	Token          string
	AllowedOrigins []string
	Wallet         Wallet
	Approvals      Approvals
	Metrics        *metrics.Metrics
}

type Server struct {
	token  string
	server *http.Server
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Wallet == nil {
		return nil, errors.New("http: wallet is required")
	}
	token := cfg.Token
	if token == "" {
		var err error
		if token, err = newSessionToken(); err != nil {
			return nil, errors.Wrap(err, "generate session token")
		}
	}

	var metricsHandler http.Handler
	if cfg.Metrics != nil {
		metricsHandler = cfg.Metrics.Handler()
	}
	router := NewRouter(NewHandler(cfg.Wallet, cfg.Approvals), token, cfg.AllowedOrigins, metricsHandler)

	return &Server{
		token: token,
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
		},
	}, nil
}

func (s *Server) Token() string { return s.token }

func (s *Server) Handler() http.Handler { return s.server.Handler }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.server.Addr)
	}
	log.Info("operator API listening", "addr", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "operator API")
	case <-ctx.Done():
	}

	log.Info("shutdown signal received, stopping operator API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "operator API shutdown")
	}
	log.Info("operator API gracefully stopped")
	return nil
}
