package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/niroliyanage/instance-scheduler/internal/models"
	"github.com/niroliyanage/instance-scheduler/internal/schedule"
)

// Snapshot is the validated, immutable configuration a scheduling run works
// from. It is constructed once per run before any consumer sees it and
// requires no locking; invalidation is building a new snapshot.
type Snapshot struct {
	TagName         string
	StateTagName    string
	DefaultTimezone string
	Regions         []string
	Services        []string
	IntervalMinutes int

	Schedules   map[string]*schedule.Schedule
	StartedTags []models.Tag
	StoppedTags []models.Tag

	BuiltAt time.Time
}

// Schedule returns the schedule with the given name, nil when unknown.
func (s *Snapshot) Schedule(name string) *schedule.Schedule {
	return s.Schedules[name]
}

// Build validates the raw configuration and resolves it into a Snapshot.
// Temporal set expressions are built against the date of at, so occurrence
// forms like mon#2 and friL are evaluated for the day the run happens on.
// Configuration and parse errors are fatal and joined into one error.
func Build(cfg *Config, at time.Time) (*Snapshot, error) {
	var errs []error

	if cfg.TagName == "" {
		errs = append(errs, errors.New("tag_name must not be empty"))
	}

	day := at.UTC()

	periods := make(map[string]*schedule.RunningPeriod, len(cfg.Periods))
	for _, pc := range cfg.Periods {
		if pc.Name == "" {
			errs = append(errs, configErrorf("period", "name is missing"))
			continue
		}
		if _, ok := periods[pc.Name]; ok {
			errs = append(errs, configErrorf(pc.Name, "duplicate period name"))
			continue
		}
		p, err := buildPeriod(pc, day)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		periods[pc.Name] = p
	}

	schedules := make(map[string]*schedule.Schedule, len(cfg.Schedules))
	for _, sc := range cfg.Schedules {
		if sc.Name == "" {
			errs = append(errs, configErrorf("schedule", "name is missing"))
			continue
		}
		if _, ok := schedules[sc.Name]; ok {
			errs = append(errs, configErrorf(sc.Name, "duplicate schedule name"))
			continue
		}
		s, err := buildSchedule(sc, periods, cfg.DefaultTimezone)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		schedules[sc.Name] = s
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return &Snapshot{
		TagName:         cfg.TagName,
		StateTagName:    cfg.StateTagName,
		DefaultTimezone: cfg.DefaultTimezone,
		Regions:         cfg.Regions,
		Services:        cfg.Services,
		IntervalMinutes: cfg.IntervalMinutes,
		Schedules:       schedules,
		StartedTags:     BuildTagsFromTemplate(cfg.StartedTags, at),
		StoppedTags:     BuildTagsFromTemplate(cfg.StoppedTags, at),
		BuiltAt:         at,
	}, nil
}

func buildPeriod(pc PeriodConfig, day time.Time) (*schedule.RunningPeriod, error) {
	p := &schedule.RunningPeriod{Name: pc.Name}

	if pc.BeginTime != "" {
		t, err := schedule.ParseTimeOfDay(pc.BeginTime)
		if err != nil {
			return nil, configErrorf(pc.Name, "begintime: %v", err)
		}
		p.BeginTime = &t
	}
	if pc.EndTime != "" {
		t, err := schedule.ParseTimeOfDay(pc.EndTime)
		if err != nil {
			return nil, configErrorf(pc.Name, "endtime: %v", err)
		}
		p.EndTime = &t
	}
	if p.BeginTime != nil && p.EndTime != nil && !before(*p.BeginTime, *p.EndTime) {
		return nil, configErrorf(pc.Name, "begintime %s must be earlier than endtime %s", p.BeginTime, p.EndTime)
	}

	if pc.Weekdays != "" {
		set, err := schedule.NewWeekdaySetBuilderForDate(day.Year(), day.Month(), day.Day()).Build(pc.Weekdays)
		if err != nil {
			return nil, configErrorf(pc.Name, "weekdays: %v", err)
		}
		p.Weekdays = set
	}
	if pc.Months != "" {
		set, err := schedule.NewMonthSetBuilder().Build(pc.Months)
		if err != nil {
			return nil, configErrorf(pc.Name, "months: %v", err)
		}
		p.Months = set
	}
	if pc.MonthDays != "" {
		set, err := schedule.NewMonthdaySetBuilder(day.Year(), day.Month()).Build(pc.MonthDays)
		if err != nil {
			return nil, configErrorf(pc.Name, "monthdays: %v", err)
		}
		p.MonthDays = set
	}

	return p, nil
}

func before(a, b schedule.TimeOfDay) bool {
	return a.Hour*60+a.Minute < b.Hour*60+b.Minute
}

func buildSchedule(sc ScheduleConfig, periods map[string]*schedule.RunningPeriod, defaultTZ string) (*schedule.Schedule, error) {
	tz := sc.Timezone
	if tz == "" {
		tz = defaultTZ
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, configErrorf(sc.Name, "invalid timezone %q", tz)
	}

	var override schedule.OverrideStatus
	switch strings.ToLower(sc.OverrideStatus) {
	case "":
		override = schedule.OverrideNone
	case "running":
		override = schedule.OverrideRunning
	case "stopped":
		override = schedule.OverrideStopped
	default:
		return nil, configErrorf(sc.Name, "invalid override_status %q, valid values are running and stopped", sc.OverrideStatus)
	}

	s := &schedule.Schedule{
		Name:                  sc.Name,
		Description:           sc.Description,
		Timezone:              tz,
		Location:              loc,
		Override:              override,
		Enforced:              sc.Enforced,
		Hibernate:             sc.Hibernate,
		RetainRunning:         sc.RetainRunning,
		StopNewInstances:      sc.StopNewInstances,
		UseMaintenanceWindow:  sc.UseMaintenanceWindow,
		MaintenanceWindowName: sc.SSMMaintenanceWindow,
	}

	for _, ref := range sc.Periods {
		p, ok := periods[ref.Name]
		if !ok {
			return nil, configErrorf(sc.Name, "period %q is not defined", ref.Name)
		}
		s.Periods = append(s.Periods, schedule.SchedulePeriod{Period: p, InstanceType: ref.InstanceType})
	}

	return s, nil
}

// BuildTagsFromTemplate parses a "key=value,key=value" template into tags,
// substituting the date and scheduler placeholders in values. A list element
// without "=" is folded into the previous value, so values may contain
// commas. Provider-reserved keys (aws:, cloudformation:) are dropped.
func BuildTagsFromTemplate(template string, at time.Time) []models.Tag {
	if template == "" {
		return nil
	}

	dt := at.UTC()
	replacer := strings.NewReplacer(
		"{year}", fmt.Sprintf("%04d", dt.Year()),
		"{month}", fmt.Sprintf("%02d", int(dt.Month())),
		"{day}", fmt.Sprintf("%02d", dt.Day()),
		"{hour}", fmt.Sprintf("%02d", dt.Hour()),
		"{minute}", fmt.Sprintf("%02d", dt.Minute()),
		"{timezone}", "UTC",
		"{scheduler}", "instance-scheduler",
	)

	var tags []models.Tag
	for _, part := range strings.Split(template, ",") {
		if key, value, found := strings.Cut(part, "="); found {
			tags = append(tags, models.Tag{Key: key, Value: value})
		} else if len(tags) > 0 {
			tags[len(tags)-1].Value += "," + part
		}
	}

	valid := tags[:0]
	for _, t := range tags {
		if strings.HasPrefix(t.Key, "aws:") || strings.HasPrefix(t.Key, "cloudformation:") {
			continue
		}
		t.Value = replacer.Replace(t.Value)
		valid = append(valid, t)
	}
	return valid
}
