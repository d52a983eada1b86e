package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/niroliyanage/instance-scheduler/internal/config"
)

var flagDump bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration without touching any instance",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		snap, err := config.Build(cfg, time.Now())
		if err != nil {
			return fmt.Errorf("configuration is invalid:\n%w", err)
		}

		if flagDump {
			return dumpSchedules(cmd, snap)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %d schedules, %d regions, services: %v\n",
			len(snap.Schedules), len(snap.Regions), snap.Services)
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&flagDump, "dump", false, "Print the resolved schedules")
	rootCmd.AddCommand(validateCmd)
}

// resolvedSchedule is the printable form of a built schedule, with the set
// expressions already resolved against today's date.
type resolvedSchedule struct {
	Name     string           `yaml:"name"`
	Timezone string           `yaml:"timezone"`
	Override string           `yaml:"override_status,omitempty"`
	Enforced bool             `yaml:"enforced,omitempty"`
	Periods  []resolvedPeriod `yaml:"periods,omitempty"`
}

type resolvedPeriod struct {
	Name      string `yaml:"name"`
	BeginTime string `yaml:"begintime,omitempty"`
	EndTime   string `yaml:"endtime,omitempty"`
	Weekdays  string `yaml:"weekdays,omitempty"`
	Months    string `yaml:"months,omitempty"`
	MonthDays string `yaml:"monthdays,omitempty"`
}

func dumpSchedules(cmd *cobra.Command, snap *config.Snapshot) error {
	resolved := make([]resolvedSchedule, 0, len(snap.Schedules))
	for _, s := range snap.Schedules {
		rs := resolvedSchedule{
			Name:     s.Name,
			Timezone: s.Timezone,
			Override: string(s.Override),
			Enforced: s.Enforced,
		}
		for _, sp := range s.Periods {
			rp := resolvedPeriod{
				Name:      sp.Period.Name,
				Weekdays:  sp.Period.Weekdays.String(),
				Months:    sp.Period.Months.String(),
				MonthDays: sp.Period.MonthDays.String(),
			}
			if sp.Period.BeginTime != nil {
				rp.BeginTime = sp.Period.BeginTime.String()
			}
			if sp.Period.EndTime != nil {
				rp.EndTime = sp.Period.EndTime.String()
			}
			rs.Periods = append(rs.Periods, rp)
		}
		resolved = append(resolved, rs)
	}
	sort.Slice(resolved, func(i, j int) bool { return resolved[i].Name < resolved[j].Name })

	out, err := yaml.Marshal(resolved)
	if err != nil {
		return fmt.Errorf("rendering schedules: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}
