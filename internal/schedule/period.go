package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DesiredState is the state an instance should be in according to its
// schedule.
type DesiredState string

const (
	// StateUnknown marks an instance the scheduler has not seen before.
	StateUnknown DesiredState = "unknown"
	// StateAny leaves the instance in whatever state it currently is.
	StateAny     DesiredState = "any"
	StateRunning DesiredState = "running"
	StateStopped DesiredState = "stopped"
	// StateStoppedForResize stops a running instance so it can be started
	// with the desired instance type on the next pass.
	StateStoppedForResize DesiredState = "stopped_for_resize"
	// StateRetainRunning marks an instance that was already running before
	// its period began and must not be stopped when the period ends.
	StateRetainRunning DesiredState = "retain-running"
)

// TimeOfDay is a clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses a "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	h, m, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return TimeOfDay{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in time %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in time %q", s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) minutes() int { return t.Hour*60 + t.Minute }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// RunningPeriod defines a period in which an instance should be running. A
// nil set leaves that dimension unrestricted; nil begin and end times mean
// the full day.
type RunningPeriod struct {
	Name      string
	BeginTime *TimeOfDay
	EndTime   *TimeOfDay
	Weekdays  Set
	Months    Set
	MonthDays Set
}

// DesiredState evaluates the period at the given local time. All restricted
// dimensions must match; the clock time check then decides between running,
// stopped and any. StateAny is returned outside a period that only has a
// begin or only an end time, meaning the instance is left as it is.
func (p *RunningPeriod) DesiredState(t time.Time) DesiredState {
	weekday := (int(t.Weekday()) + 6) % 7
	if !p.Weekdays.Contains(weekday) || !p.Months.Contains(int(t.Month())) || !p.MonthDays.Contains(t.Day()) {
		return StateStopped
	}

	now := TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}.minutes()
	switch {
	case p.BeginTime == nil && p.EndTime == nil:
		return StateRunning
	case p.BeginTime == nil:
		if now >= p.EndTime.minutes() {
			return StateStopped
		}
		return StateAny
	case p.EndTime == nil:
		if now >= p.BeginTime.minutes() {
			return StateRunning
		}
		return StateAny
	default:
		if now >= p.BeginTime.minutes() && now < p.EndTime.minutes() {
			return StateRunning
		}
		return StateStopped
	}
}

// IsActive reports whether the period requires the instance to run at the
// given local time.
func (p *RunningPeriod) IsActive(t time.Time) bool {
	return p.DesiredState(t) == StateRunning
}
