package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/niroliyanage/instance-scheduler/internal/auth"
	"github.com/niroliyanage/instance-scheduler/internal/config"
	"github.com/niroliyanage/instance-scheduler/internal/services"
)

// Runner fans one scheduling run out over all configured regions and
// services. Regions are processed sequentially; a region that fails does
// not stop the others.
type Runner struct {
	cfg *config.Config
}

// NewRunner creates a runner over the given configuration.
func NewRunner(cfg *config.Config) *Runner {
	return &Runner{cfg: cfg}
}

// RunOnce builds a configuration snapshot for the current time and runs
// one scheduling pass for every region and service. Configuration errors
// are fatal; per-region failures are joined and returned alongside the
// results of the regions that succeeded.
func (r *Runner) RunOnce(ctx context.Context) ([]*RunResult, error) {
	snap, err := config.Build(r.cfg, time.Now())
	if err != nil {
		return nil, fmt.Errorf("building configuration snapshot: %w", err)
	}

	regions := snap.Regions
	if len(regions) == 0 {
		// Fall back to the region of the environment's credentials.
		regions = []string{""}
	}

	var results []*RunResult
	var errs []error
	for _, region := range regions {
		regionResults, err := r.runRegion(ctx, snap, region)
		results = append(results, regionResults...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

func (r *Runner) runRegion(ctx context.Context, snap *config.Snapshot, region string) ([]*RunResult, error) {
	awsCfg, err := auth.LoadConfig(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("region %s: %w", region, err)
	}
	logger := log.With().Str("region", awsCfg.Region).Logger()

	var windows *services.MaintenanceWindows
	if usesMaintenanceWindows(snap) {
		windows = services.NewMaintenanceWindows(awsCfg, snap.IntervalMinutes)
	}

	var results []*RunResult
	var errs []error
	for _, name := range snap.Services {
		var sched *Scheduler
		switch name {
		case "ec2":
			svc := services.NewEC2Service(awsCfg, windows, snap.StateTagName)
			sched = New(svc, services.NewTagStateStore(svc))
		case "rds":
			svc := services.NewRDSService(awsCfg, snap.StateTagName)
			sched = New(svc, services.NewTagStateStore(svc))
		default:
			logger.Warn().Str("service", name).Msg("unknown service in configuration, skipping")
			continue
		}

		result, err := sched.Run(ctx, snap)
		if err != nil {
			errs = append(errs, fmt.Errorf("region %s: %w", awsCfg.Region, err))
			continue
		}
		logger.Info().Str("service", result.Service).Int("instances", result.Instances).
			Int("started", len(result.Started)).Int("stopped", len(result.Stopped)).
			Int("resized", len(result.Resized)).Msg("scheduling pass finished")
		results = append(results, result)
	}
	return results, errors.Join(errs...)
}

func usesMaintenanceWindows(snap *config.Snapshot) bool {
	for _, sched := range snap.Schedules {
		if sched.UseMaintenanceWindow {
			return true
		}
	}
	return false
}
