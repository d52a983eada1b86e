package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/niroliyanage/instance-scheduler/internal/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one scheduling pass over all regions and services",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		results, err := scheduler.NewRunner(cfg).RunOnce(cmd.Context())
		for _, r := range results {
			log.Info().Str("service", r.Service).Int("instances", r.Instances).
				Int("started", len(r.Started)).Int("stopped", len(r.Stopped)).
				Int("resized", len(r.Resized)).Msg("run summary")
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
