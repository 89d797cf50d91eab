package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"streak-backend/internal/config"
	"streak-backend/internal/handlers"
	"streak-backend/internal/repository"
	"streak-backend/internal/services"

	"cloud.google.com/go/civil"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server and the decay sweep",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	policy := services.PolicyFromConfig(cfg.Streak)
	hub := services.NewWSHub()

	notifier, bus, err := buildNotifier(cfg, db, rdb, hub)
	if err != nil {
		return err
	}

	userService := services.NewUserService(db, cfg.JWT.Secret)
	streakService := services.NewStreakService(db, services.NewDailyCache(), notifier, policy)
	economyService := services.NewEconomyService(db, notifier, policy)
	requestService := services.NewRequestService(db, notifier)

	sweeper, _, err := buildSweeper(ctx, cfg, db, rdb)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: handlers.NewRouter(handlers.Services{
			Users:    userService,
			Streaks:  streakService,
			Economy:  economyService,
			Requests: requestService,
			Hub:      hub,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	if bus != nil {
		g.Go(func() error {
			return bus.Forward(gctx, hub)
		})
	}

	switch cfg.Sweep.Mode {
	case "cron":
		c, err := newSweepCron(cfg, func() {
			runSweep(gctx, sweeper, today(cfg))
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			c.Start()
			<-gctx.Done()
			c.Stop()
			return nil
		})
		log.Info().Str("schedule", cfg.Sweep.Schedule).Msg("Sweep scheduled")
	default:
		streakService.OnRollover(func(ctx context.Context, day civil.Date) {
			runSweep(ctx, sweeper, day)
		})
	}

	// rollover detection also runs while no interactions arrive
	g.Go(func() error {
		streakService.Tick(gctx)
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				streakService.Tick(gctx)
			}
		}
	})

	err = g.Wait()
	log.Info().Msg("Server exited")
	return err
}

// newSweepCron schedules fn on sweep.schedule, evaluated in the streak
// timezone so the job fires after the streak day has rolled over
func newSweepCron(cfg *config.Config, fn func()) (*cron.Cron, error) {
	c := cron.NewWithLocation(cfg.Streak.Location())
	if err := c.AddFunc(cfg.Sweep.Schedule, fn); err != nil {
		return nil, fmt.Errorf("invalid sweep.schedule: %w", err)
	}
	return c, nil
}

// buildNotifier assembles the event fan-out. With redis configured, events go
// through the bus so every instance reaches its own WebSocket clients.
func buildNotifier(cfg *config.Config, db *repository.DB, rdb *redis.Client, hub *services.WSHub) (services.Notifier, *services.RedisEventBus, error) {
	var (
		notifiers services.MultiNotifier
		bus       *services.RedisEventBus
	)
	if rdb != nil {
		bus = services.NewRedisEventBus(rdb, "")
		notifiers = append(notifiers, bus)
	} else {
		notifiers = append(notifiers, hub)
	}

	if cfg.APNs.KeyPath != "" {
		push, err := services.NewPushNotifier(services.APNsConfig{
			KeyPath:    cfg.APNs.KeyPath,
			KeyID:      cfg.APNs.KeyID,
			TeamID:     cfg.APNs.TeamID,
			Topic:      cfg.APNs.Topic,
			Production: cfg.APNs.Production,
		}, db)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create push notifier: %w", err)
		}
		notifiers = append(notifiers, push)
		log.Info().Str("topic", cfg.APNs.Topic).Msg("APNs push enabled")
	}
	return notifiers, bus, nil
}

// buildSweeper picks the lock and audit sink for the decay sweep. The S3
// auditor is nil when no bucket is configured.
func buildSweeper(ctx context.Context, cfg *config.Config, db *repository.DB, rdb *redis.Client) (*services.Sweeper, *services.S3Auditor, error) {
	var locker services.Locker
	if rdb != nil {
		locker = services.NewRedisLocker(rdb, "streak:")
	}

	var (
		auditor   services.Auditor
		s3Auditor *services.S3Auditor
	)
	if cfg.AWS.S3Bucket != "" {
		var err error
		s3Auditor, err = services.NewS3Auditor(ctx, services.S3AuditorConfig{
			Region:    cfg.AWS.Region,
			Bucket:    cfg.AWS.S3Bucket,
			AccessKey: cfg.AWS.AccessKey,
			SecretKey: cfg.AWS.SecretKey,
			Endpoint:  cfg.AWS.Endpoint,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create sweep auditor: %w", err)
		}
		auditor = s3Auditor
		log.Info().Str("bucket", cfg.AWS.S3Bucket).Msg("Sweep audit enabled")
	}

	return services.NewSweeper(db, locker, auditor, cfg.Sweep.LockTTL), s3Auditor, nil
}

func runSweep(ctx context.Context, sweeper *services.Sweeper, day civil.Date) {
	report, ran, err := sweeper.RunOnce(ctx, day)
	if err != nil {
		log.Error().Err(err).Str("date", day.String()).Msg("Sweep failed")
		return
	}
	if !ran {
		return
	}
	log.Info().
		Str("run_id", report.RunID).
		Int("scanned", report.Scanned).
		Int("reset", len(report.Reset)).
		Int("frozen", len(report.Frozen)).
		Int("anomalies", len(report.Anomalies)).
		Msg("Sweep finished")
}
