package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaintenanceWindow_SingleDay(t *testing.T) {
	next := time.Date(2026, time.August, 28, 10, 0, 0, 0, time.UTC)
	s := NewMaintenanceWindowSchedule("patching", next, 2, 5)

	require.Len(t, s.Periods, 1)
	assert.True(t, s.Enforced)
	assert.Equal(t, "patching-period", s.Periods[0].Period.Name)

	inst := InstanceContext{}
	// the lead time brings the instance up before the window opens
	assert.Equal(t, StateRunning, s.DesiredState(next.Add(-5*time.Minute), inst).State)
	assert.Equal(t, StateStopped, s.DesiredState(next.Add(-6*time.Minute), inst).State)
	assert.Equal(t, StateRunning, s.DesiredState(next.Add(time.Hour), inst).State)
	assert.Equal(t, StateStopped, s.DesiredState(next.Add(2*time.Hour), inst).State)
}

func TestMaintenanceWindow_LeadTimeIsCapped(t *testing.T) {
	next := time.Date(2026, time.August, 28, 10, 0, 0, 0, time.UTC)
	s := NewMaintenanceWindowSchedule("patching", next, 1, 30)

	inst := InstanceContext{}
	assert.Equal(t, StateRunning, s.DesiredState(next.Add(-10*time.Minute), inst).State)
	assert.Equal(t, StateStopped, s.DesiredState(next.Add(-11*time.Minute), inst).State)
}

func TestMaintenanceWindow_MidnightBoundaries(t *testing.T) {
	// 23:30 start, 2 hour duration, 10 minute lead: [23:20, 23:59] on the
	// start day and [00:00, 01:30) on the next
	next := time.Date(2026, time.August, 28, 23, 30, 0, 0, time.UTC)
	s := NewMaintenanceWindowSchedule("patching", next, 2, 10)

	require.Len(t, s.Periods, 2)
	first, second := s.Periods[0].Period, s.Periods[1].Period
	assert.Equal(t, TimeOfDay{Hour: 23, Minute: 20}, *first.BeginTime)
	assert.Equal(t, TimeOfDay{Hour: 23, Minute: 59}, *first.EndTime)
	assert.Equal(t, []int{28}, first.MonthDays.Values())
	assert.Equal(t, TimeOfDay{}, *second.BeginTime)
	assert.Equal(t, TimeOfDay{Hour: 1, Minute: 30}, *second.EndTime)
	assert.Equal(t, []int{29}, second.MonthDays.Values())
}

func TestMaintenanceWindow_CrossesMidnight(t *testing.T) {
	next := time.Date(2026, time.August, 28, 23, 30, 0, 0, time.UTC)
	s := NewMaintenanceWindowSchedule("patching", next, 2, 5)

	require.Len(t, s.Periods, 2)

	inst := InstanceContext{}
	assert.Equal(t, StateRunning, s.DesiredState(time.Date(2026, time.August, 28, 23, 26, 0, 0, time.UTC), inst).State)
	// past midnight the second period takes over
	assert.Equal(t, StateRunning, s.DesiredState(time.Date(2026, time.August, 29, 0, 30, 0, 0, time.UTC), inst).State)
	assert.Equal(t, StateRunning, s.DesiredState(time.Date(2026, time.August, 29, 1, 29, 0, 0, time.UTC), inst).State)
	assert.Equal(t, StateStopped, s.DesiredState(time.Date(2026, time.August, 29, 1, 30, 0, 0, time.UTC), inst).State)
	// the day before the window nothing runs
	assert.Equal(t, StateStopped, s.DesiredState(time.Date(2026, time.August, 27, 23, 45, 0, 0, time.UTC), inst).State)
}

func TestMaintenanceWindow_SpansMultipleDays(t *testing.T) {
	next := time.Date(2026, time.August, 28, 22, 0, 0, 0, time.UTC)
	s := NewMaintenanceWindowSchedule("long-window", next, 30, 5)

	require.Len(t, s.Periods, 3)

	inst := InstanceContext{}
	// the middle day runs all day
	assert.Equal(t, StateRunning, s.DesiredState(time.Date(2026, time.August, 29, 12, 0, 0, 0, time.UTC), inst).State)
	// the final day runs until the window closes at 04:00
	assert.Equal(t, StateRunning, s.DesiredState(time.Date(2026, time.August, 30, 3, 59, 0, 0, time.UTC), inst).State)
	assert.Equal(t, StateStopped, s.DesiredState(time.Date(2026, time.August, 30, 4, 0, 0, 0, time.UTC), inst).State)
}

func TestMaintenanceWindow_ConvertsToUTC(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	// 12:00 in Berlin during DST is 10:00 UTC
	next := time.Date(2026, time.August, 28, 12, 0, 0, 0, loc)
	s := NewMaintenanceWindowSchedule("patching", next, 1, 5)

	assert.Equal(t, "UTC", s.Timezone)
	inst := InstanceContext{}
	assert.Equal(t, StateRunning, s.DesiredState(time.Date(2026, time.August, 28, 10, 30, 0, 0, time.UTC), inst).State)
}
