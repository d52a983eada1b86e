// Package config loads the scheduler configuration and builds the immutable
// per-run snapshot the scheduling engine works from.
package config

import (
	"fmt"
)

const (
	// DefaultTagName is the tag key that links an instance to its schedule.
	DefaultTagName = "Schedule"
	// DefaultStateTagName is the tag key the scheduler records the last
	// desired state under. All derived state lives in provider tags, there
	// is no private store.
	DefaultStateTagName = "ScheduleState"
	// DefaultTimezone applies to schedules without an explicit timezone.
	DefaultTimezone = "UTC"
	// DefaultIntervalMinutes is the scheduling interval in daemon mode; it
	// also bounds the maintenance window start lead.
	DefaultIntervalMinutes = 5
)

// Config is the raw scheduler configuration as loaded from file and
// environment. Build turns it into a validated Snapshot.
type Config struct {
	TagName         string   `mapstructure:"tag_name"`
	StateTagName    string   `mapstructure:"state_tag_name"`
	DefaultTimezone string   `mapstructure:"default_timezone"`
	Regions         []string `mapstructure:"regions"`
	Services        []string `mapstructure:"services"`

	// StartedTags and StoppedTags are comma separated key=value lists
	// applied to instances on start and stop transitions. Values may use
	// the {year} {month} {day} {hour} {minute} {timezone} {scheduler}
	// placeholders.
	StartedTags string `mapstructure:"started_tags"`
	StoppedTags string `mapstructure:"stopped_tags"`

	IntervalMinutes int `mapstructure:"interval_minutes"`

	Periods   []PeriodConfig   `mapstructure:"periods"`
	Schedules []ScheduleConfig `mapstructure:"schedules"`
}

// PeriodConfig defines one named running period.
type PeriodConfig struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	BeginTime   string `mapstructure:"begintime"`
	EndTime     string `mapstructure:"endtime"`
	Weekdays    string `mapstructure:"weekdays"`
	Months      string `mapstructure:"months"`
	MonthDays   string `mapstructure:"monthdays"`
}

// PeriodRef references a period from a schedule, optionally with the
// instance type instances should have while the period is active.
type PeriodRef struct {
	Name         string `mapstructure:"name"`
	InstanceType string `mapstructure:"instance_type"`
}

// ScheduleConfig defines one named schedule.
type ScheduleConfig struct {
	Name                 string      `mapstructure:"name"`
	Description          string      `mapstructure:"description"`
	Timezone             string      `mapstructure:"timezone"`
	OverrideStatus       string      `mapstructure:"override_status"`
	Enforced             bool        `mapstructure:"enforced"`
	Hibernate            bool        `mapstructure:"hibernate"`
	RetainRunning        bool        `mapstructure:"retain_running"`
	StopNewInstances     bool        `mapstructure:"stop_new_instances"`
	UseMaintenanceWindow bool        `mapstructure:"use_maintenance_window"`
	SSMMaintenanceWindow string      `mapstructure:"ssm_maintenance_window"`
	Periods              []PeriodRef `mapstructure:"periods"`
}

// ConfigError reports an invalid schedule or period definition. The error is
// fatal for the named item only.
type ConfigError struct {
	Item   string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration for %q: %s", e.Item, e.Reason)
}

func configErrorf(item, format string, args ...any) error {
	return &ConfigError{Item: item, Reason: fmt.Sprintf(format, args...)}
}
