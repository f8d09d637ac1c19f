// Package bidder implements app.Runner for the earn-bid HTTP process.
package bidder

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apphttp "github.com/chainsafe/earn-bid/pkg/app/http"
	"github.com/chainsafe/earn-bid/pkg/approval"
	bidservice "github.com/chainsafe/earn-bid/pkg/bid/service"
	"github.com/chainsafe/earn-bid/pkg/config"
	"github.com/chainsafe/earn-bid/pkg/ethereum"
	"github.com/chainsafe/earn-bid/pkg/wallet"
)

// Server holds cfg to init the bid server.
type Server struct {
	cfg *config.BidderConfig
}

// NewServer initializes a new bid server.
func NewServer(cfg *config.BidderConfig) *Server {
	return &Server{cfg: cfg}
}

func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("bidder config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting earn-bid server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	ethClient, err := ethereum.Dial(ctx, &cfg.Ethereum, logger)
	if err != nil {
		return err
	}
	defer ethClient.Close()

	session := wallet.NewManager(s.keyedSessionFactory(ethClient, logger))
	if cfg.Wallet.AutoConnect {
		if err := session.Connect(); err != nil {
			logger.Warn("Wallet auto-connect failed", zap.Error(err))
		}
	}

	ledger := ethereum.NewClient(ethClient, session, logger)
	gate := approval.NewGate(ledger, approval.WithLogger(logger))

	svc := bidservice.NewService(bidservice.Config{
		EarnAddress:         common.HexToAddress(cfg.Ethereum.EarnContract),
		ConfirmationTimeout: cfg.Ethereum.ConfirmationTimeout,
		Labels:              cfg.Labels,
	}, session, gate, ledger, logger)

	router := s.setupRouter(bidservice.NewLog(svc, logger), logger)

	return apphttp.ServeAndWait(ctx, router, logger, &cfg.Server)
}

// keyedSessionFactory returns the Connect hook for the wallet manager. The key
// is read from the environment on every connect so it can be rotated.
func (s *Server) keyedSessionFactory(backend wallet.NonceSource, logger *zap.Logger) func() (wallet.Session, error) {
	return func() (wallet.Session, error) {
		key, ok := s.cfg.Wallet.PrivateKey()
		if !ok {
			return nil, fmt.Errorf("wallet private key not set: env=%s", s.cfg.Wallet.PrivateKeyEnv)
		}
		session, err := wallet.NewKeyedSession(key, wallet.KeyConfig{
			ChainID:     s.cfg.Ethereum.ChainID,
			GasLimit:    s.cfg.Ethereum.GasLimit,
			MaxGasPrice: s.cfg.Ethereum.MaxGasPrice,
		}, backend, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Wallet connected", zap.String("account", session.AccountAddress().Hex()))
		return session, nil
	}
}

func (s *Server) setupRouter(svc bidservice.Service, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if s.cfg.Monitoring.Enabled {
		r.Handle(s.cfg.Monitoring.MetricsPath, promhttp.Handler())
	}

	bidservice.RegisterRoutes(r, svc, logger)

	return r
}
