package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"streak-backend/internal/config"
	"streak-backend/internal/repository"

	"cloud.google.com/go/civil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "streakd",
	Short:         "Daily mutual-interaction streaks between pairs of users",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(pointsCmd)
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

// Run executes the CLI and exits non-zero on failure
func Run() {
	if err := Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// loadConfig reads the config file and sets up logging. A missing file
// falls back to defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		def := config.Default()
		setupLogger(def.Log.Level)
		log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		return &def, nil
	}
	if err != nil {
		return nil, err
	}
	setupLogger(cfg.Log.Level)
	return cfg, nil
}

// openDB connects to the configured database and runs migrations
func openDB(ctx context.Context, cfg *config.Config) (*repository.DB, error) {
	opts := repository.Options{
		Timeout:     cfg.Database.Timeout,
		MaxAttempts: cfg.Database.MaxAttempts,
	}

	var (
		db  *repository.DB
		err error
	)
	switch cfg.Database.Driver {
	case "postgres":
		db, err = repository.OpenPostgres(ctx, cfg.Database.DSN(), opts)
	default:
		db, err = repository.OpenSQLite(ctx, cfg.Database.Path, opts)
	}
	if err != nil {
		return nil, err
	}

	log.Info().Str("driver", db.Driver()).Msg("Database connection established")
	return db, nil
}

// openRedis returns nil when redis is not configured
func openRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis connection established")
	return rdb, nil
}

// today returns the current calendar day in the streak timezone
func today(cfg *config.Config) civil.Date {
	return civil.DateOf(time.Now().In(cfg.Streak.Location()))
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
