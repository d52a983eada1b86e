package services

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/niroliyanage/instance-scheduler/internal/schedule"
)

// ssmAPI is the subset of the SSM client used for maintenance windows.
type ssmAPI interface {
	DescribeMaintenanceWindows(ctx context.Context, input *ssm.DescribeMaintenanceWindowsInput, opts ...func(*ssm.Options)) (*ssm.DescribeMaintenanceWindowsOutput, error)
}

// MaintenanceWindows resolves SSM maintenance window names to synthesized
// window schedules. Windows are listed once per scheduling run and cached by
// name; a name that fails lookup is cached as not found so the error is
// logged only once per run. The cache must not outlive the run.
type MaintenanceWindows struct {
	client          ssmAPI
	intervalMinutes int

	loaded   bool
	windows  map[string]*schedule.Schedule
	notFound map[string]bool
}

// NewMaintenanceWindows creates a per-run maintenance window cache.
func NewMaintenanceWindows(cfg aws.Config, intervalMinutes int) *MaintenanceWindows {
	return newMaintenanceWindows(ssm.NewFromConfig(cfg), intervalMinutes)
}

func newMaintenanceWindows(client ssmAPI, intervalMinutes int) *MaintenanceWindows {
	return &MaintenanceWindows{
		client:          client,
		intervalMinutes: intervalMinutes,
		windows:         make(map[string]*schedule.Schedule),
		notFound:        make(map[string]bool),
	}
}

// Schedule returns the synthesized schedule for the named window, or nil
// when the window does not exist.
func (m *MaintenanceWindows) Schedule(ctx context.Context, name string) *schedule.Schedule {
	if !m.loaded {
		m.load(ctx)
	}
	if s, ok := m.windows[name]; ok {
		return s
	}
	if !m.notFound[name] {
		log.Error().Str("window", name).Msg("SSM maintenance window not found")
		m.notFound[name] = true
	}
	return nil
}

func (m *MaintenanceWindows) load(ctx context.Context) {
	m.loaded = true

	input := &ssm.DescribeMaintenanceWindowsInput{}
	for {
		resp, err := m.client.DescribeMaintenanceWindows(ctx, input)
		if err != nil {
			log.Error().Err(err).Msg("listing SSM maintenance windows failed")
			return
		}
		for _, w := range resp.WindowIdentities {
			name := aws.ToString(w.Name)
			next, err := parseExecutionTime(aws.ToString(w.NextExecutionTime))
			if err != nil {
				log.Warn().Str("window", name).Err(err).Msg("skipping maintenance window with unparsable execution time")
				continue
			}
			s := schedule.NewMaintenanceWindowSchedule(name, next, int(aws.ToInt32(w.Duration)), m.intervalMinutes)
			m.windows[name] = s
			log.Debug().
				Str("window", name).
				Time("next_execution", next).
				Msg("created schedule from SSM maintenance window")
		}
		if resp.NextToken == nil {
			return
		}
		input.NextToken = resp.NextToken
	}
}

// parseExecutionTime parses the NextExecutionTime strings returned by SSM,
// which may omit the seconds.
func parseExecutionTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04Z07:00", s)
}
