package schedule

import (
	"fmt"
	"time"
)

// maintenanceWindowLeadMinutes caps how long before the window start the
// instances are brought up.
const maintenanceWindowLeadMinutes = 10

// NewMaintenanceWindowSchedule synthesizes a short-lived enforced schedule
// from an externally defined maintenance window, so instances are running
// when the window opens. Instances are started a lead time before the start
// of the window: the scheduling interval, capped at 10 minutes. Depending on
// how the window falls across calendar days the schedule has one, two or
// three periods, each restricted to its day and month.
func NewMaintenanceWindowSchedule(name string, nextExecution time.Time, durationHours int, intervalMinutes int) *Schedule {
	lead := intervalMinutes
	if lead > maintenanceWindowLeadMinutes {
		lead = maintenanceWindowLeadMinutes
	}
	start := nextExecution.UTC().Truncate(time.Minute)
	begin := start.Add(-time.Duration(lead) * time.Minute)
	end := start.Add(time.Duration(durationHours) * time.Hour)

	var periods []SchedulePeriod
	switch {
	case begin.Day() == end.Day() && begin.Month() == end.Month():
		periods = []SchedulePeriod{
			{Period: windowPeriod(fmt.Sprintf("%s-period", name), begin, timeOf(begin), timeOf(end))},
		}
	case end.Sub(begin) <= 24*time.Hour:
		periods = []SchedulePeriod{
			{Period: windowPeriod(fmt.Sprintf("%s-period-1", name), begin, timeOf(begin), &TimeOfDay{Hour: 23, Minute: 59})},
			{Period: windowPeriod(fmt.Sprintf("%s-period-2", name), end, &TimeOfDay{}, timeOf(end))},
		}
	default:
		periods = []SchedulePeriod{
			{Period: windowPeriod(fmt.Sprintf("%s-period-1", name), begin, timeOf(begin), &TimeOfDay{Hour: 23, Minute: 59})},
			{Period: windowPeriod(fmt.Sprintf("%s-period-2", name), end.AddDate(0, 0, -1), nil, nil)},
			{Period: windowPeriod(fmt.Sprintf("%s-period-3", name), end, &TimeOfDay{}, timeOf(end))},
		}
	}

	return &Schedule{
		Name:        name,
		Description: fmt.Sprintf("%s maintenance window", name),
		Timezone:    "UTC",
		Location:    time.UTC,
		Enforced:    true,
		Periods:     periods,
	}
}

// windowPeriod builds a period restricted to the calendar day of on.
func windowPeriod(name string, on time.Time, begin, end *TimeOfDay) *RunningPeriod {
	return &RunningPeriod{
		Name:      name,
		BeginTime: begin,
		EndTime:   end,
		MonthDays: NewSet(on.Day()),
		Months:    NewSet(int(on.Month())),
	}
}

func timeOf(t time.Time) *TimeOfDay {
	return &TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}
}
