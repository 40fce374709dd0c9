// Command payonce-server runs one payment server over MCP. The variant
// decides whether retried payments are deduplicated: the non-idempotent
// flavor (default, demo port 8000) charges on every accepted call, the
// idempotent one (demo port 8001) applies each token exactly once.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/payonce/payonce"
	"github.com/payonce/payonce/config"
	"github.com/payonce/payonce/idempotency"
	"github.com/payonce/payonce/logging"
	"github.com/payonce/payonce/mcp"
	"github.com/payonce/payonce/metrics"
	"github.com/payonce/payonce/pkg/ginmw"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	configPath := flag.String("config", "", "path to a YAML config file")
	listen := flag.String("listen", "", "listen address, overrides config")
	variant := flag.String("variant", "", "server variant: idempotent or non-idempotent, overrides config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *variant != "" {
		cfg.Variant = *variant
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server failed")
	}
}

func run(cfg config.Config, log *logrus.Logger) error {
	ledger := payonce.NewLedger()
	for _, acc := range cfg.SeedAccounts {
		if err := ledger.CreateAccount(acc.ID, acc.BalanceMinorUnits); err != nil {
			return fmt.Errorf("failed to seed account %s: %w", acc.ID, err)
		}
		log.WithFields(logrus.Fields{
			"accountId":         acc.ID.String(),
			"balanceMinorUnits": acc.BalanceMinorUnits,
		}).Info("account seeded")
	}

	svc := payonce.NewService(ledger,
		payonce.WithPacer(payonce.NewPacer(cfg.SimulatedDelay)),
		payonce.WithLogger(log),
	)

	var processor payonce.Processor = svc
	serverName := "payment-server"
	if cfg.Idempotent() {
		serverName = "payment-server-idempotent"

		store, closeStore, err := buildStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		processor = idempotency.Wrap(svc,
			idempotency.WithStore(store),
			idempotency.WithLogger(log),
		)
	}

	m := metrics.New()
	server := mcp.NewServer(serverName, ledger, processor,
		mcp.WithVariant(cfg.Variant),
		mcp.WithLogger(log),
		mcp.WithMetrics(m),
	)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(
		ginmw.RequestLogger(log, ginmw.WithSkipPaths("/healthz", "/metrics")),
		ginmw.Recovery(log),
	)

	mcpHandler := gin.WrapH(server.Handler())
	router.POST("/mcp", mcpHandler)
	router.GET("/mcp", mcpHandler)
	router.DELETE("/mcp", mcpHandler)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "variant": cfg.Variant})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	httpServer := &http.Server{
		Addr:    cfg.Address(),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	log.WithFields(logrus.Fields{
		"addr":           cfg.Address(),
		"variant":        cfg.Variant,
		"simulatedDelay": cfg.SimulatedDelay.String(),
		"dedupBackend":   cfg.DedupBackend,
	}).Info("payment server listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	log.Info("server exited cleanly")
	return nil
}

// buildStore creates the configured idempotency store and a cleanup func.
func buildStore(cfg config.Config) (idempotency.Store, func(), error) {
	switch cfg.DedupBackend {
	case config.BackendRedis:
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		client := redis.NewClient(opt)

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
		}

		return idempotency.NewRedisStore(client, cfg.DedupTTL), func() { _ = client.Close() }, nil
	default:
		return idempotency.NewInMemoryStore(cfg.DedupTTL), func() {}, nil
	}
}
