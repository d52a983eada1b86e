package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/niroliyanage/instance-scheduler/internal/config"
	"github.com/niroliyanage/instance-scheduler/internal/scheduler"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run scheduling passes on the configured interval until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runner := scheduler.NewRunner(cfg)
		pass := func() {
			if _, err := runner.RunOnce(ctx); err != nil {
				log.Error().Err(err).Msg("scheduling pass failed")
			}
		}

		interval := cfg.IntervalMinutes
		if interval <= 0 {
			interval = config.DefaultIntervalMinutes
		}

		c := cron.New()
		if _, err := c.AddFunc(fmt.Sprintf("@every %dm", interval), pass); err != nil {
			return fmt.Errorf("scheduling periodic runs: %w", err)
		}

		log.Info().Int("interval_minutes", interval).Msg("daemon started")
		pass()
		c.Start()

		<-ctx.Done()
		log.Info().Msg("shutting down")
		<-c.Stop().Done()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
