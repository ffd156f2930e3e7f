package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/org/assetwatch/internal/api"
	"github.com/org/assetwatch/internal/auth"
	"github.com/org/assetwatch/internal/rbac"
	"github.com/org/assetwatch/internal/storage"
	"github.com/org/assetwatch/pkg/models"
)

type config struct {
	ListenAddr     string        `yaml:"listen_addr"`
	TLSCertFile    string        `yaml:"tls_cert"`
	TLSKeyFile     string        `yaml:"tls_key"`
	DBUrl          string        `yaml:"db_url"`
	MigrationsDir  string        `yaml:"migrations_dir"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	DurableTTL     time.Duration `yaml:"durable_session_ttl"`
	VolatileTTL    time.Duration `yaml:"volatile_session_ttl"`
	LogLevel       string        `yaml:"log_level"`
}

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load config
	cfgFile := "config.yaml"
	if v := os.Getenv("ASSETWATCH_CONFIG"); v != "" {
		cfgFile = v
	}

	cfg := config{
		ListenAddr:    ":8420",
		MigrationsDir: "migrations",
		LogLevel:      "info",
	}

	if data, err := os.ReadFile(cfgFile); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatal().Err(err).Msg("failed to parse config")
		}
	} else {
		log.Warn().Str("file", cfgFile).Msg("config file not found, using defaults")
	}

	// Env overrides
	if v := os.Getenv("ASSETWATCH_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DBUrl = v
	}
	if v := os.Getenv("ASSETWATCH_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = strings.Split(v, ",")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.DBUrl == "" {
		log.Fatal().Msg("db_url must be configured (or DATABASE_URL env var)")
	}

	ctx := context.Background()

	// Connect to database
	store, err := storage.NewPostgresBackend(ctx, cfg.DBUrl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer store.Close()

	// Run migrations
	if err := storage.RunMigrations(cfg.DBUrl, cfg.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	log.Info().Msg("migrations applied")

	if err := bootstrapAdmin(ctx, store); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap admin user")
	}

	// Create server
	srv := api.NewServer(store, api.Config{
		ListenAddr:     cfg.ListenAddr,
		TLSCertFile:    cfg.TLSCertFile,
		TLSKeyFile:     cfg.TLSKeyFile,
		DBUrl:          cfg.DBUrl,
		MigrationsDir:  cfg.MigrationsDir,
		AllowedOrigins: cfg.AllowedOrigins,
		DurableTTL:     cfg.DurableTTL,
		VolatileTTL:    cfg.VolatileTTL,
	})

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	log.Info().Str("addr", cfg.ListenAddr).Msg("server started")
	<-quit

	log.Info().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("server stopped")
}

// bootstrapAdmin seeds the first admin account on an empty install. The
// password comes from ASSETWATCH_ADMIN_PASSWORD; without it a fresh
// database has no way to log in.
func bootstrapAdmin(ctx context.Context, store storage.Backend) error {
	users, err := store.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}

	password := os.Getenv("ASSETWATCH_ADMIN_PASSWORD")
	if password == "" {
		log.Warn().Msg("no users exist and ASSETWATCH_ADMIN_PASSWORD is unset - nobody can log in")
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Username:     "admin",
		PasswordHash: hash,
		Role:         string(rbac.RoleAdmin),
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.CreateUser(ctx, user); err != nil {
		return err
	}
	log.Info().Str("username", user.Username).Msg("bootstrap admin user created")
	return nil
}
