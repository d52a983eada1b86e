package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/rs/zerolog/log"

	"github.com/niroliyanage/instance-scheduler/internal/models"
)

// asgSettleDelay gives the autoscaling group time to register suspended or
// resumed processes before instances are acted on.
const asgSettleDelay = 10 * time.Second

// groupMembershipTag is set by the autoscaling service on group members.
const groupMembershipTag = "aws:autoscaling:groupName"

// suspendedProcesses are the scaling processes paused while group members
// are stopped, so the group does not launch replacements or terminate the
// detached instances' siblings.
var suspendedProcesses = []string{
	"Launch",
	"Terminate",
	"HealthCheck",
	"ReplaceUnhealthy",
	"AZRebalance",
	"AlarmNotification",
	"ScheduledActions",
	"AddToLoadBalancer",
}

// autoscalingAPI is the subset of the Auto Scaling client the coordinator
// uses.
type autoscalingAPI interface {
	DescribeAutoScalingInstances(ctx context.Context, input *autoscaling.DescribeAutoScalingInstancesInput, opts ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingInstancesOutput, error)
	SuspendProcesses(ctx context.Context, input *autoscaling.SuspendProcessesInput, opts ...func(*autoscaling.Options)) (*autoscaling.SuspendProcessesOutput, error)
	ResumeProcesses(ctx context.Context, input *autoscaling.ResumeProcessesInput, opts ...func(*autoscaling.Options)) (*autoscaling.ResumeProcessesOutput, error)
	DetachInstances(ctx context.Context, input *autoscaling.DetachInstancesInput, opts ...func(*autoscaling.Options)) (*autoscaling.DetachInstancesOutput, error)
	AttachInstances(ctx context.Context, input *autoscaling.AttachInstancesInput, opts ...func(*autoscaling.Options)) (*autoscaling.AttachInstancesOutput, error)
}

// GroupCoordinator detaches scheduled instances from their autoscaling
// group before they are stopped and reattaches them after they are started,
// so the autoscaler does not replace them mid-operation.
type GroupCoordinator struct {
	client      autoscalingAPI
	settleDelay time.Duration
}

// NewGroupCoordinator creates a coordinator for the configured region.
func NewGroupCoordinator(cfg aws.Config) *GroupCoordinator {
	return &GroupCoordinator{
		client:      autoscaling.NewFromConfig(cfg),
		settleDelay: asgSettleDelay,
	}
}

// GroupMemberships returns the autoscaling group name per instance, derived
// from the membership tag the autoscaling service maintains.
func GroupMemberships(instances []*models.Instance) map[string][]string {
	groups := make(map[string][]string)
	for _, inst := range instances {
		if group, ok := inst.Tags[groupMembershipTag]; ok && group != "" {
			groups[group] = append(groups[group], inst.ID)
		}
	}
	return groups
}

// confirmMembers filters ids down to the instances the autoscaling service
// currently reports as members of the group. The membership tag can go
// stale on instances that were detached out of band.
func (c *GroupCoordinator) confirmMembers(ctx context.Context, group string, ids []string) ([]string, error) {
	resp, err := c.client.DescribeAutoScalingInstances(ctx, &autoscaling.DescribeAutoScalingInstancesInput{
		InstanceIds: ids,
	})
	if err != nil {
		return nil, fmt.Errorf("describing autoscaling instances: %w", err)
	}

	var members []string
	for _, inst := range resp.AutoScalingInstances {
		if aws.ToString(inst.AutoScalingGroupName) == group {
			members = append(members, aws.ToString(inst.InstanceId))
		}
	}
	return members, nil
}

// Detach suspends the group's scaling processes and detaches the instances,
// then waits for the group to settle.
func (c *GroupCoordinator) Detach(ctx context.Context, group string, ids []string) error {
	members, err := c.confirmMembers(ctx, group, ids)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		log.Debug().Str("group", group).Msg("no instances currently in the group, nothing to detach")
		return nil
	}

	if _, err := c.client.SuspendProcesses(ctx, &autoscaling.SuspendProcessesInput{
		AutoScalingGroupName: aws.String(group),
		ScalingProcesses:     suspendedProcesses,
	}); err != nil {
		return fmt.Errorf("suspending processes of group %s: %w", group, err)
	}

	if _, err := c.client.DetachInstances(ctx, &autoscaling.DetachInstancesInput{
		AutoScalingGroupName:           aws.String(group),
		InstanceIds:                    members,
		ShouldDecrementDesiredCapacity: aws.Bool(true),
	}); err != nil {
		return fmt.Errorf("detaching instances from group %s: %w", group, err)
	}

	time.Sleep(c.settleDelay)
	return nil
}

// Attach reattaches started instances to their group and resumes its
// scaling processes.
func (c *GroupCoordinator) Attach(ctx context.Context, group string, ids []string) error {
	if _, err := c.client.AttachInstances(ctx, &autoscaling.AttachInstancesInput{
		AutoScalingGroupName: aws.String(group),
		InstanceIds:          ids,
	}); err != nil {
		return fmt.Errorf("attaching instances to group %s: %w", group, err)
	}

	if _, err := c.client.ResumeProcesses(ctx, &autoscaling.ResumeProcessesInput{
		AutoScalingGroupName: aws.String(group),
		ScalingProcesses:     suspendedProcesses,
	}); err != nil {
		return fmt.Errorf("resuming processes of group %s: %w", group, err)
	}

	return nil
}
