// Package scheduler evaluates every discovered instance against its
// schedule and drives the resulting start, stop and resize actions.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/niroliyanage/instance-scheduler/internal/config"
	"github.com/niroliyanage/instance-scheduler/internal/models"
	"github.com/niroliyanage/instance-scheduler/internal/schedule"
	"github.com/niroliyanage/instance-scheduler/internal/services"
)

// StateStore keeps the desired state recorded per instance between runs.
type StateStore interface {
	Load(instances []*models.Instance)
	Get(id string) schedule.DesiredState
	Set(id string, state schedule.DesiredState)
	Remove(id string)
	Flush(ctx context.Context) error
}

// RunResult summarizes what one pass over one service changed.
type RunResult struct {
	Service   string
	Instances int
	Started   []string
	Stopped   []string
	Resized   []string
}

// Scheduler runs scheduling passes for one service. A pass has two phases:
// first every instance is evaluated and planned into a start or stop list,
// then the lists are executed in batches and the confirmed transitions are
// recorded. No action happens during planning, so a planning error never
// leaves the fleet half transitioned.
type Scheduler struct {
	service services.Service
	states  StateStore

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a scheduler driving the given service, recording states in
// the given store.
func New(service services.Service, states StateStore) *Scheduler {
	return &Scheduler{service: service, states: states, now: time.Now}
}

// plan collects the actions one pass decided on.
type plan struct {
	start []*models.Instance
	stop  []*models.Instance
	// resize pairs an instance to start with the type it must change to
	// first.
	resize map[string]string
}

// Run performs one scheduling pass.
func (s *Scheduler) Run(ctx context.Context, snap *config.Snapshot) (*RunResult, error) {
	instances, err := s.service.SchedulableInstances(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("discovering %s instances: %w", s.service.ServiceName(), err)
	}
	s.states.Load(instances)

	now := s.now()
	p := &plan{resize: make(map[string]string)}
	for _, inst := range instances {
		s.planInstance(p, snap, inst, now)
	}

	result := &RunResult{Service: s.service.ServiceName(), Instances: len(instances)}
	s.apply(ctx, snap, p, result)

	if err := s.states.Flush(ctx); err != nil {
		log.Error().Err(err).Str("service", result.Service).Msg("recording instance states failed")
	}
	return result, nil
}

// planInstance decides what, if anything, must happen to one instance and
// records it in the plan.
func (s *Scheduler) planInstance(p *plan, snap *config.Snapshot, inst *models.Instance, now time.Time) {
	if inst.IsTerminated {
		log.Debug().Str("instance", inst.DisplayString()).Msg("removing state of terminated instance")
		s.states.Remove(inst.ID)
		return
	}

	sched := snap.Schedule(inst.ScheduleName)
	if sched == nil {
		log.Warn().Str("instance", inst.DisplayString()).Str("schedule", inst.ScheduleName).
			Msg("skipping instance with unknown schedule")
		return
	}

	decision := s.desiredState(sched, inst, now)
	last := s.states.Get(inst.ID)
	log.Debug().Str("instance", inst.DisplayString()).Str("schedule", sched.Name).
		Str("desired", string(decision.State)).Str("last", string(last)).
		Str("period", decision.PeriodName).Msg("evaluated instance")

	switch {
	case last == schedule.StateUnknown:
		// New instances that are running are optionally left alone so they
		// can finish initializing.
		if inst.IsRunning && decision.State == schedule.StateStopped && !sched.StopNewInstances {
			log.Debug().Str("instance", inst.DisplayString()).Msg("not stopping new instance")
			return
		}
		s.planTransition(p, inst, sched, decision, last)

	case sched.Enforced:
		// Enforced schedules correct manual drift between the actual state
		// and the desired state.
		if (inst.IsRunning && decision.State == schedule.StateStopped) ||
			(!inst.IsRunning && decision.State == schedule.StateRunning) {
			s.planTransition(p, inst, sched, decision, last)
		}

	case last != decision.State:
		s.planTransition(p, inst, sched, decision, last)
	}
}

// desiredState evaluates the schedule, letting an active maintenance window
// force the running state first.
func (s *Scheduler) desiredState(sched *schedule.Schedule, inst *models.Instance, now time.Time) schedule.Decision {
	if sched.UseMaintenanceWindow && inst.MaintenanceWindow != nil {
		decision := inst.MaintenanceWindow.DesiredState(now.UTC(), inst.Context())
		if decision.State == schedule.StateRunning {
			log.Info().Str("instance", inst.DisplayString()).
				Str("window", inst.MaintenanceWindow.Name).Msg("instance is in its maintenance window")
			return decision
		}
	}
	return sched.DesiredState(now, inst.Context())
}

// planTransition turns one decided state change into plan entries and state
// records.
func (s *Scheduler) planTransition(p *plan, inst *models.Instance, sched *schedule.Schedule, decision schedule.Decision, last schedule.DesiredState) {
	// An instance retained running keeps running through the rest of its
	// period; only the recorded state moves on.
	if last == schedule.StateRetainRunning {
		switch decision.State {
		case schedule.StateRunning:
		case schedule.StateStopped:
			log.Info().Str("instance", inst.DisplayString()).
				Msg("instance was already running at start of period and is retained, not stopping")
			s.states.Set(inst.ID, schedule.StateStopped)
		default:
			s.states.Set(inst.ID, decision.State)
		}
		return
	}

	switch decision.State {
	case schedule.StateRunning:
		if !inst.IsRunning {
			if newType, ok := s.needsResize(inst, decision); ok {
				p.resize[inst.ID] = newType
			}
			p.start = append(p.start, inst)
			return
		}
		if last == schedule.StateStopped {
			if sched.RetainRunning {
				s.states.Set(inst.ID, schedule.StateRetainRunning)
			} else {
				s.states.Set(inst.ID, schedule.StateRunning)
			}
		}

	case schedule.StateStopped, schedule.StateStoppedForResize:
		if inst.IsRunning {
			if decision.State == schedule.StateStoppedForResize {
				inst.Resized = true
			}
			p.stop = append(p.stop, inst)
			return
		}
		s.states.Set(inst.ID, schedule.StateStopped)

	default:
		s.states.Set(inst.ID, decision.State)
	}
}

// needsResize reports whether the instance must change type before it is
// started.
func (s *Scheduler) needsResize(inst *models.Instance, decision schedule.Decision) (string, bool) {
	if decision.InstanceType == "" || decision.InstanceType == inst.InstanceType {
		return "", false
	}
	if !inst.AllowResize {
		log.Warn().Str("instance", inst.DisplayString()).Str("type", inst.InstanceType).
			Msg("instance type does not match period but resizing is not supported")
		return "", false
	}
	return decision.InstanceType, true
}

// apply executes the planned actions and records the confirmed transitions.
func (s *Scheduler) apply(ctx context.Context, snap *config.Snapshot, p *plan, result *RunResult) {
	if len(p.start) > 0 {
		for _, inst := range p.start {
			newType, ok := p.resize[inst.ID]
			if !ok {
				continue
			}
			// A failed resize is logged and the instance started with its
			// current type; the type is corrected on a later stop cycle.
			if err := s.service.ResizeInstance(ctx, inst, newType); err != nil {
				log.Error().Err(err).Str("instance", inst.DisplayString()).Msg("resizing instance failed")
				continue
			}
			result.Resized = append(result.Resized, inst.ID)
		}

		log.Info().Strs("instances", displayStrings(p.start)).Msg("starting instances")
		for _, change := range s.service.StartInstances(ctx, snap, p.start) {
			s.states.Set(change.ID, change.State)
			result.Started = append(result.Started, change.ID)
		}
	}

	if len(p.stop) > 0 {
		log.Info().Strs("instances", displayStrings(p.stop)).Msg("stopping instances")
		for _, change := range s.service.StopInstances(ctx, snap, p.stop) {
			s.states.Set(change.ID, change.State)
			result.Stopped = append(result.Stopped, change.ID)
		}
	}
}

func displayStrings(instances []*models.Instance) []string {
	out := make([]string, 0, len(instances))
	for _, inst := range instances {
		out = append(out, inst.DisplayString())
	}
	return out
}
