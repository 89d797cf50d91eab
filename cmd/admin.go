package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"streak-backend/internal/services"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		db, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		db.Close()
		log.Info().Msg("Migrations applied")
		return nil
	},
}

var sweepDate string

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the decay sweep for a date and print its report",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		asOf := today(cfg)
		if sweepDate != "" {
			asOf, err = civil.ParseDate(sweepDate)
			if err != nil {
				return fmt.Errorf("invalid --date: %w", err)
			}
		}

		ctx := cmd.Context()
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

		sweeper, s3Auditor, err := buildSweeper(ctx, cfg, db, rdb)
		if err != nil {
			return err
		}
		report, ran, err := sweeper.RunOnce(ctx, asOf)
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}
		if !ran {
			log.Info().Str("date", asOf.String()).Msg("Date already swept")
			return nil
		}

		if s3Auditor != nil {
			url, err := s3Auditor.ReportURL(ctx, asOf, time.Hour)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to sign report URL")
			} else {
				log.Info().Str("url", url).Msg("Sweep report stored")
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

var (
	pointsUser          string
	pointsDelta         int64
	pointsAllowNegative bool
)

var pointsCmd = &cobra.Command{
	Use:   "points",
	Short: "Manage user point balances",
}

var pointsAdjustCmd = &cobra.Command{
	Use:   "adjust",
	Short: "Add or remove points from a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx := cmd.Context()
		db, err := openDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		economy := services.NewEconomyService(db, nil, services.PolicyFromConfig(cfg.Streak))
		ok, err := economy.AdjustBalance(ctx, pointsUser, pointsDelta, pointsAllowNegative)
		if err != nil {
			return fmt.Errorf("failed to adjust balance: %w", err)
		}
		if !ok {
			return fmt.Errorf("refused: balance of %s would go negative", pointsUser)
		}

		balance, err := economy.Balance(ctx, pointsUser)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d\n", pointsUser, balance)
		return nil
	},
}

func init() {
	sweepCmd.Flags().StringVar(&sweepDate, "date", "", "date to sweep as YYYY-MM-DD (default today)")

	pointsAdjustCmd.Flags().StringVar(&pointsUser, "user", "", "user id")
	pointsAdjustCmd.Flags().Int64Var(&pointsDelta, "delta", 0, "points to add, negative to remove")
	pointsAdjustCmd.Flags().BoolVar(&pointsAllowNegative, "allow-negative", false, "permit the balance to go below zero")
	pointsAdjustCmd.MarkFlagRequired("user")
	pointsAdjustCmd.MarkFlagRequired("delta")
	pointsCmd.AddCommand(pointsAdjustCmd)
}
