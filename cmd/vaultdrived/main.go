// Command vaultdrived runs the vaultdrive HTTP server: it wires config,
// storage backend, quota ledger, hierarchy index and multipart coordinator
// into a chi router and serves it until a termination signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/glebarez/sqlite"

	"github.com/vaultdrive/vaultdrive/api"
	"github.com/vaultdrive/vaultdrive/clock"
	"github.com/vaultdrive/vaultdrive/config"
	"github.com/vaultdrive/vaultdrive/hierarchy"
	"github.com/vaultdrive/vaultdrive/multipart"
	"github.com/vaultdrive/vaultdrive/quota"
	"github.com/vaultdrive/vaultdrive/service"
	"github.com/vaultdrive/vaultdrive/storage"
	"github.com/vaultdrive/vaultdrive/storage/local"
	"github.com/vaultdrive/vaultdrive/storage/s3"
)

func main() {
	logger := logr.FromSlogHandler(slog.NewJSONHandler(os.Stdout, nil))

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: vaultdrived <init|start> [--config path]")
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		flags := flag.NewFlagSet("init", flag.ExitOnError)
		configPath := flags.String("config", "vaultdrive.yaml", "path to write the sample config file")
		_ = flags.Parse(os.Args[2:])
		err = runInit(*configPath)
	case "start":
		flags := flag.NewFlagSet("start", flag.ExitOnError)
		configPath := flags.String("config", "", "path to a YAML config file (defaults come from VAULTDRIVE_* env vars)")
		_ = flags.Parse(os.Args[2:])
		err = run(*configPath, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q; usage: vaultdrived <init|start> [--config path]\n", os.Args[1])
		os.Exit(1)
	}
	if err != nil {
		logger.Error(err, "vaultdrived exited with an error")
		os.Exit(1)
	}
}

// runInit writes a default config file an operator can edit in place,
// matching `dittofs init`'s role of seeding a starting-point YAML file.
func runInit(configPath string) error {
	cfg, err := config.Sample()
	if err != nil {
		return fmt.Errorf("building sample config: %w", err)
	}
	if err := config.SaveSample(cfg, configPath); err != nil {
		return fmt.Errorf("writing sample config: %w", err)
	}
	fmt.Printf("wrote sample config to %s\n", configPath)
	return nil
}

func run(configPath string, logger logr.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	if err := db.AutoMigrate(&quota.Tier{}, &quota.UserQuota{}, &hierarchy.FileNode{}, &multipart.Session{}); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	provider, err := openProvider(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("opening storage backend: %w", err)
	}

	defaultTierID, err := seedDefaultTier(ctx, db, cfg.Quota)
	if err != nil {
		return fmt.Errorf("seeding default quota tier: %w", err)
	}

	registry := prometheus.NewRegistry()
	clk := clock.Real{}
	ledger := quota.NewLedger(db)
	index := hierarchy.NewIndex(db)
	var sink service.EventSink = service.NoopSink{}
	if cfg.SyncEventsEnabled {
		sink = service.LogSink{Logger: logger}
	}
	storageService := service.New(provider, ledger, index, clk, sink, logger, service.NewMetrics(registry))

	signer, err := multipart.NewSigner(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return fmt.Errorf("building multipart signer: %w", err)
	}
	coordinator := multipart.New(db, provider, ledger, index, signer, clk, logger, multipart.NewMetrics(registry))
	sweeper := multipart.NewSweeper(db, provider, ledger, clk, logger, multipart.NewMetrics(registry))
	go sweeper.Run(ctx, cfg.Multipart.SweepInterval)

	verifier, err := api.NewSessionVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		return fmt.Errorf("building session verifier: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", api.NewRouter(storageService, coordinator, verifier, ledger, defaultTierID, logger))

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux}

	serveErrors := make(chan error, 1)
	go func() {
		logger.Info("vaultdrived listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrors <- err
		}
	}()

	select {
	case err := <-serveErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received, draining connections")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "postgres":
		return gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	case "sqlite":
		return gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func openProvider(cfg config.StorageConfig, logger logr.Logger) (storage.Provider, error) {
	switch cfg.Backend {
	case "local":
		return local.NewProvider(cfg.Local.RootDir, cfg.UploadBytesPerSecLimit, logger)
	case "s3":
		return s3.NewProvider(s3.ClientConfig{
			Endpoint:               cfg.S3.Endpoint,
			BucketName:             cfg.S3.BucketName,
			Region:                 cfg.S3.Region,
			AccessKey:              cfg.S3.AccessKey,
			SecretKey:              cfg.S3.SecretKey,
			UploadBytesPerSecLimit: cfg.UploadBytesPerSecLimit,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

// seedDefaultTier ensures the tier new users get provisioned into on
// first touch (api.AuthContext's EnsureUser call) exists, returning its ID.
func seedDefaultTier(ctx context.Context, db *gorm.DB, cfg config.QuotaConfig) (string, error) {
	var tier quota.Tier
	err := db.WithContext(ctx).
		Where(quota.Tier{Name: cfg.DefaultTierName}).
		Attrs(quota.Tier{ID: uuid.NewString(), LimitBytes: cfg.DefaultTierLimitBytes}).
		FirstOrCreate(&tier).Error
	if err != nil {
		return "", err
	}
	return tier.ID, nil
}
