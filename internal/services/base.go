// Package services implements the provider-facing side of the scheduler:
// instance discovery, batched start/stop/resize actions, autoscaling group
// coordination and maintenance window lookups.
package services

import (
	"context"

	"github.com/niroliyanage/instance-scheduler/internal/config"
	"github.com/niroliyanage/instance-scheduler/internal/models"
)

// Service is implemented for every AWS service type whose instances can be
// scheduled. Start and stop work through the whole list and report the
// confirmed transitions; failures local to a batch or instance are logged
// and never abort the remaining work.
type Service interface {
	// ServiceName returns the short name of the service, e.g. "ec2".
	ServiceName() string

	// SchedulableInstances returns the instances carrying the schedule tag
	// that are in a schedulable state, enriched with their resolved
	// schedule information.
	SchedulableInstances(ctx context.Context, snap *config.Snapshot) ([]*models.Instance, error)

	// StartInstances starts the given instances in batches and returns the
	// confirmed state changes.
	StartInstances(ctx context.Context, snap *config.Snapshot, instances []*models.Instance) []models.StateChange

	// StopInstances stops the given instances in batches, hibernating the
	// eligible ones, and returns the confirmed state changes.
	StopInstances(ctx context.Context, snap *config.Snapshot, instances []*models.Instance) []models.StateChange

	// ResizeInstance changes the instance type of a stopped instance.
	ResizeInstance(ctx context.Context, instance *models.Instance, instanceType string) error
}

// batches partitions instances into consecutive batches of at most size
// elements, preserving order. The batch is the unit of retry and failure
// isolation.
func batches(instances []*models.Instance, size int) [][]*models.Instance {
	var result [][]*models.Instance
	for len(instances) > size {
		result = append(result, instances[:size])
		instances = instances[size:]
	}
	if len(instances) > 0 {
		result = append(result, instances)
	}
	return result
}

func instanceIDs(instances []*models.Instance) []string {
	ids := make([]string, 0, len(instances))
	for _, i := range instances {
		ids = append(ids, i.ID)
	}
	return ids
}
