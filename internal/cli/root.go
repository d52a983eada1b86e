// Package cli wires the command line surface of the scheduler.
package cli

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/niroliyanage/instance-scheduler/internal/config"
)

// Exit codes for different error types
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitConfigError  = 2
)

var (
	// Flags
	flagConfig  string
	flagVerbose bool
	flagJSON    bool

	// Version info
	version = "1.0.0"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "instance-scheduler",
	Short: "Start and stop AWS instances on tag-driven schedules",
	Long: `instance-scheduler starts and stops EC2 and RDS instances according to
schedules attached to them through tags.

Schedules are defined once in the configuration file and attached to any
number of instances by tagging them with the schedule's name. Periods use
temporal set expressions for weekdays, months and days of the month, so a
single schedule can express things like "office hours on the first Monday
of each month".

Examples:
  instance-scheduler run                  Run one scheduling pass
  instance-scheduler validate             Check the configuration
  instance-scheduler daemon               Run passes on the configured interval`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json-log", false, "Log JSON instead of console output")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func setupLogging() {
	level := zerolog.InfoLevel
	if flagVerbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if !flagJSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// loadConfig reads the configuration for the commands that need one.
func loadConfig() (*config.Config, error) {
	return config.Load(flagConfig)
}
