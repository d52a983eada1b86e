package schedule

import (
	"time"
)

// OverrideStatus forces a schedule's desired state regardless of its
// periods.
type OverrideStatus string

const (
	OverrideNone    OverrideStatus = ""
	OverrideRunning OverrideStatus = "running"
	OverrideStopped OverrideStatus = "stopped"
)

// overridePeriodName is reported as the active period name when the
// override status decided the state.
const overridePeriodName = "override_status"

// SchedulePeriod pairs a running period with an optional instance type the
// instance should have while the period is active.
type SchedulePeriod struct {
	Period       *RunningPeriod
	InstanceType string
}

// Schedule aggregates running periods and policy flags into the desired
// state rules for a group of instances. A Schedule is built once per
// configuration snapshot and is read-only afterwards.
type Schedule struct {
	Name        string
	Description string
	Timezone    string
	Location    *time.Location
	Periods     []SchedulePeriod

	Override              OverrideStatus
	Enforced              bool
	Hibernate             bool
	RetainRunning         bool
	StopNewInstances      bool
	UseMaintenanceWindow  bool
	MaintenanceWindowName string
}

// InstanceContext carries the instance attributes the schedule evaluation
// needs to decide on resizing.
type InstanceContext struct {
	IsRunning    bool
	InstanceType string
	AllowResize  bool
}

// Decision is the outcome of evaluating a schedule for one instance.
type Decision struct {
	State        DesiredState
	InstanceType string
	PeriodName   string
}

// DesiredState evaluates the schedule at the given instant for an instance.
// The instant is converted to the schedule's timezone first. An override
// status short-circuits period evaluation entirely.
func (s *Schedule) DesiredState(at time.Time, inst InstanceContext) Decision {
	switch s.Override {
	case OverrideRunning:
		return Decision{State: StateRunning, PeriodName: overridePeriodName}
	case OverrideStopped:
		return Decision{State: StateStopped, PeriodName: overridePeriodName}
	}

	local := at.In(s.location())

	if d, ok := s.stateAt(local, inst); ok {
		return d
	}

	// A gap between two back-to-back periods must not stop the instance:
	// if a period was running a minute ago and another will be running a
	// minute from now the instance stays up.
	if len(s.Periods) > 1 {
		if prev, ok := s.stateAt(local.Add(-time.Minute), inst); ok && prev.State != StateAny {
			if next, ok := s.stateAt(local.Add(time.Minute), inst); ok && next.State != StateAny {
				// prev may carry a stop-for-resize verdict from its own
				// period; inside the gap the only job is to keep the
				// instance up.
				return Decision{State: StateRunning, PeriodName: prev.PeriodName}
			}
		}
	}

	return Decision{State: StateStopped}
}

// stateAt evaluates all periods at a local time. It reports no decision when
// every period is in a stopped state.
func (s *Schedule) stateAt(local time.Time, inst InstanceContext) (Decision, bool) {
	anyState := false
	for _, sp := range s.Periods {
		switch sp.Period.DesiredState(local) {
		case StateRunning:
			// The first active period in declaration order supplies the
			// instance type.
			d := Decision{State: StateRunning, PeriodName: sp.Period.Name}
			if inst.AllowResize {
				d.InstanceType = sp.InstanceType
			}
			if d.InstanceType != "" && inst.IsRunning && d.InstanceType != inst.InstanceType {
				d.State = StateStoppedForResize
			}
			return d, true
		case StateAny:
			anyState = true
		}
	}
	if anyState {
		return Decision{State: StateAny}, true
	}
	return Decision{}, false
}

func (s *Schedule) location() *time.Location {
	if s.Location != nil {
		return s.Location
	}
	return time.UTC
}
