// Package models holds the data types shared between the discovery,
// decision and action layers.
package models

import (
	"fmt"

	"github.com/niroliyanage/instance-scheduler/internal/schedule"
)

// Instance is one discovered provider instance, enriched with its resolved
// schedule information. Records are rebuilt on every discovery pass and
// never mutated across runs.
type Instance struct {
	ID           string
	Name         string
	Service      string
	StateName    string
	InstanceType string
	Tags         map[string]string

	ScheduleName string
	IsRunning    bool
	IsTerminated bool
	// Hibernate is set when the instance's schedule requests hibernation.
	Hibernate bool
	// Resized marks an instance stopped for a resize, which disqualifies
	// it from hibernation.
	Resized     bool
	AllowResize bool

	// MaintenanceWindow is the synthesized window schedule, when the
	// instance's schedule references one and the window was found.
	MaintenanceWindow *schedule.Schedule

	// LastDesiredState is the desired state recorded on the instance by the
	// previous scheduling run, StateUnknown for instances seen first.
	LastDesiredState schedule.DesiredState
}

// DisplayString identifies the instance in log output.
func (i *Instance) DisplayString() string {
	if i.Name != "" {
		return fmt.Sprintf("%s:%s (%s)", i.Service, i.ID, i.Name)
	}
	return fmt.Sprintf("%s:%s", i.Service, i.ID)
}

// Context returns the attributes schedule evaluation needs.
func (i *Instance) Context() schedule.InstanceContext {
	return schedule.InstanceContext{
		IsRunning:    i.IsRunning,
		InstanceType: i.InstanceType,
		AllowResize:  i.AllowResize,
	}
}

// StateChange reports the resulting state of one instance after a start or
// stop action was confirmed.
type StateChange struct {
	ID    string
	State schedule.DesiredState
}

// Tag is a provider tag applied to or removed from instances on state
// transitions.
type Tag struct {
	Key   string
	Value string
}
