package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"

	"github.com/niroliyanage/instance-scheduler/internal/config"
	"github.com/niroliyanage/instance-scheduler/internal/models"
	"github.com/niroliyanage/instance-scheduler/internal/schedule"
)

const (
	// Starts go out in small batches so a single throttled or failed call
	// affects few instances; stops are cheap and batch larger.
	startBatchSize = 5
	stopBatchSize  = 50

	// Instances that do not confirm their transition in the API response are
	// re-polled a bounded number of times before being reported as missed.
	maxStatusPolls  = 3
	statusPollDelay = 5 * time.Second

	// asgAttachDelay gives started instances time to reach the running state
	// before they are attached back to their autoscaling group.
	asgAttachDelay = 30 * time.Second
)

// ec2API is the subset of the EC2 client the service uses. The paginator
// accepts it as well.
type ec2API interface {
	DescribeInstances(ctx context.Context, input *ec2.DescribeInstancesInput, opts ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	StartInstances(ctx context.Context, input *ec2.StartInstancesInput, opts ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
	StopInstances(ctx context.Context, input *ec2.StopInstancesInput, opts ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
	CreateTags(ctx context.Context, input *ec2.CreateTagsInput, opts ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
	DeleteTags(ctx context.Context, input *ec2.DeleteTagsInput, opts ...func(*ec2.Options)) (*ec2.DeleteTagsOutput, error)
	ModifyInstanceAttribute(ctx context.Context, input *ec2.ModifyInstanceAttributeInput, opts ...func(*ec2.Options)) (*ec2.ModifyInstanceAttributeOutput, error)
}

// HibernationRejectedError reports that the provider refused to hibernate a
// specific instance, typically because it was launched without hibernation
// support or its state has diverged. The instance can still be stopped
// without hibernation.
type HibernationRejectedError struct {
	InstanceID string
	Code       string
}

func (e *HibernationRejectedError) Error() string {
	return fmt.Sprintf("hibernation rejected for instance %s (%s)", e.InstanceID, e.Code)
}

var instanceIDPattern = regexp.MustCompile(`i-[0-9a-f]+`)

// asHibernationRejected converts the provider errors that signal a
// hibernation refusal into the typed error, nil for anything else.
func asHibernationRejected(err error) *HibernationRejectedError {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return nil
	}
	switch apiErr.ErrorCode() {
	case "UnsupportedHibernationConfiguration", "UnsupportedOperation":
	default:
		return nil
	}
	id := instanceIDPattern.FindString(apiErr.ErrorMessage())
	if id == "" {
		return nil
	}
	return &HibernationRejectedError{InstanceID: id, Code: apiErr.ErrorCode()}
}

// EC2Service discovers, starts, stops and resizes tagged EC2 instances.
type EC2Service struct {
	client      ec2API
	asg         *GroupCoordinator
	windows     *MaintenanceWindows
	stateTagKey string

	pollDelay   time.Duration
	attachDelay time.Duration
}

// NewEC2Service creates the EC2 service for one region. windows may be nil
// when no schedule references a maintenance window.
func NewEC2Service(cfg aws.Config, windows *MaintenanceWindows, stateTagKey string) *EC2Service {
	return &EC2Service{
		client:      ec2.NewFromConfig(cfg),
		asg:         NewGroupCoordinator(cfg),
		windows:     windows,
		stateTagKey: stateTagKey,
		pollDelay:   statusPollDelay,
		attachDelay: asgAttachDelay,
	}
}

// ApplyStateTag records the desired state on the instances.
func (s *EC2Service) ApplyStateTag(ctx context.Context, ids []string, state schedule.DesiredState) error {
	_, err := s.client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: ids,
		Tags: []ec2types.Tag{
			{Key: aws.String(s.stateTagKey), Value: aws.String(string(state))},
		},
	})
	return err
}

// RemoveStateTag clears the recorded state from the instances.
func (s *EC2Service) RemoveStateTag(ctx context.Context, ids []string) error {
	_, err := s.client.DeleteTags(ctx, &ec2.DeleteTagsInput{
		Resources: ids,
		Tags: []ec2types.Tag{
			{Key: aws.String(s.stateTagKey)},
		},
	})
	return err
}

func (s *EC2Service) ServiceName() string { return "ec2" }

// schedulableStates are the instance states a scheduling decision can act
// on. Transitional and terminated states are left alone until a later run.
var schedulableStates = map[ec2types.InstanceStateName]bool{
	ec2types.InstanceStateNameRunning: true,
	ec2types.InstanceStateNameStopped: true,
}

// SchedulableInstances lists the instances carrying the schedule tag. The
// tag key is filtered server side; the schedulable state check happens
// client side because the state filter cannot express it in one call.
func (s *EC2Service) SchedulableInstances(ctx context.Context, snap *config.Snapshot) ([]*models.Instance, error) {
	input := &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("tag-key"), Values: []string{snap.TagName}},
		},
	}

	var instances []*models.Instance
	paginator := ec2.NewDescribeInstancesPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describing instances: %w", err)
		}
		for _, reservation := range page.Reservations {
			for _, raw := range reservation.Instances {
				if raw.State == nil || !schedulableStates[raw.State.Name] {
					continue
				}
				instances = append(instances, s.fromProviderInstance(ctx, raw, snap))
			}
		}
	}

	log.Debug().Int("count", len(instances)).Msg("discovered schedulable ec2 instances")
	return instances, nil
}

func (s *EC2Service) fromProviderInstance(ctx context.Context, raw ec2types.Instance, snap *config.Snapshot) *models.Instance {
	tags := make(map[string]string, len(raw.Tags))
	for _, t := range raw.Tags {
		tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}

	state := raw.State.Name
	inst := &models.Instance{
		ID:               aws.ToString(raw.InstanceId),
		Name:             tags["Name"],
		Service:          s.ServiceName(),
		StateName:        string(state),
		InstanceType:     string(raw.InstanceType),
		Tags:             tags,
		ScheduleName:     tags[snap.TagName],
		IsRunning:        state == ec2types.InstanceStateNameRunning,
		IsTerminated:     state == ec2types.InstanceStateNameTerminated,
		AllowResize:      true,
		LastDesiredState: schedule.DesiredState(tags[snap.StateTagName]),
	}
	if inst.LastDesiredState == "" {
		inst.LastDesiredState = schedule.StateUnknown
	}
	if inst.LastDesiredState == schedule.StateStoppedForResize {
		inst.Resized = true
	}

	if sched := snap.Schedule(inst.ScheduleName); sched != nil {
		inst.Hibernate = sched.Hibernate
		if sched.UseMaintenanceWindow && s.windows != nil {
			inst.MaintenanceWindow = s.windows.Schedule(ctx, sched.MaintenanceWindowName)
		}
	}
	return inst
}

// StartInstances starts the instances in batches. A batch that fails to
// start is logged and skipped; instances whose transition is not confirmed
// by the API response are re-polled before being reported as missed.
func (s *EC2Service) StartInstances(ctx context.Context, snap *config.Snapshot, instances []*models.Instance) []models.StateChange {
	var started []*models.Instance
	for _, batch := range batches(instances, startBatchSize) {
		ids := instanceIDs(batch)
		resp, err := s.client.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: ids})
		if err != nil {
			log.Error().Err(err).Strs("instances", ids).Msg("starting instance batch failed")
			continue
		}

		pending := make(map[string]bool)
		for _, change := range resp.StartingInstances {
			id := aws.ToString(change.InstanceId)
			if change.CurrentState != nil && isStartedState(change.CurrentState.Name) {
				pending[id] = false
			} else {
				pending[id] = true
			}
		}
		confirmed := s.confirmTransitions(ctx, pending, isStartedState)
		for _, inst := range batch {
			if confirmed[inst.ID] {
				started = append(started, inst)
			} else {
				log.Warn().Str("instance", inst.DisplayString()).Msg("instance did not confirm start")
			}
		}
	}

	if len(started) == 0 {
		return nil
	}

	s.swapStateTags(ctx, instanceIDs(started), snap.StartedTags, snap.StoppedTags)
	s.reattachGroups(ctx, started)

	changes := make([]models.StateChange, 0, len(started))
	for _, inst := range started {
		changes = append(changes, models.StateChange{ID: inst.ID, State: schedule.StateRunning})
	}
	return changes
}

// StopInstances stops the instances in batches, hibernating those whose
// schedule requests it. Instances whose hibernation the provider rejects
// are stopped again without it, so a misconfigured instance still stops.
func (s *EC2Service) StopInstances(ctx context.Context, snap *config.Snapshot, instances []*models.Instance) []models.StateChange {
	var hibernating, plain []*models.Instance
	for _, inst := range instances {
		switch {
		case !inst.IsRunning:
			// Already stopped or on its way, nothing to do.
		case inst.Hibernate && inst.Resized:
			log.Warn().Str("instance", inst.DisplayString()).
				Msg("instance is stopped for resize, hibernation skipped")
			plain = append(plain, inst)
		case inst.Hibernate:
			hibernating = append(hibernating, inst)
		default:
			plain = append(plain, inst)
		}
	}
	if len(hibernating)+len(plain) == 0 {
		return nil
	}

	s.detachGroups(ctx, append(append([]*models.Instance{}, hibernating...), plain...))

	var stopped []*models.Instance
	for _, batch := range batches(hibernating, stopBatchSize) {
		confirmed, rejected := s.stopBatch(ctx, batch, true)
		stopped = append(stopped, confirmed...)
		plain = append(plain, rejected...)
	}
	for _, batch := range batches(plain, stopBatchSize) {
		confirmed, _ := s.stopBatch(ctx, batch, false)
		stopped = append(stopped, confirmed...)
	}

	if len(stopped) == 0 {
		return nil
	}

	s.swapStateTags(ctx, instanceIDs(stopped), snap.StoppedTags, snap.StartedTags)

	changes := make([]models.StateChange, 0, len(stopped))
	for _, inst := range stopped {
		state := schedule.StateStopped
		if inst.Resized {
			state = schedule.StateStoppedForResize
		}
		changes = append(changes, models.StateChange{ID: inst.ID, State: state})
	}
	return changes
}

// stopBatch stops one batch, retrying without the instances the provider
// rejects for hibernation. Rejected instances are returned so the caller
// can stop them without hibernation.
func (s *EC2Service) stopBatch(ctx context.Context, batch []*models.Instance, hibernate bool) (confirmed, rejected []*models.Instance) {
	remaining := batch
	for len(remaining) > 0 {
		ids := instanceIDs(remaining)
		resp, err := s.client.StopInstances(ctx, &ec2.StopInstancesInput{
			InstanceIds: ids,
			Hibernate:   aws.Bool(hibernate),
		})
		if err != nil {
			if hr := asHibernationRejected(err); hr != nil && hibernate {
				log.Info().Str("instance", hr.InstanceID).Str("code", hr.Code).
					Msg("hibernation rejected, instance will be stopped without it")
				var kept []*models.Instance
				for _, inst := range remaining {
					if inst.ID == hr.InstanceID {
						rejected = append(rejected, inst)
					} else {
						kept = append(kept, inst)
					}
				}
				if len(kept) == len(remaining) {
					// The rejected id is not ours, do not loop forever.
					log.Error().Err(err).Strs("instances", ids).Msg("stopping instance batch failed")
					return confirmed, rejected
				}
				remaining = kept
				continue
			}
			log.Error().Err(err).Strs("instances", ids).Msg("stopping instance batch failed")
			return confirmed, rejected
		}

		pending := make(map[string]bool)
		for _, change := range resp.StoppingInstances {
			id := aws.ToString(change.InstanceId)
			if change.CurrentState != nil && isStoppedState(change.CurrentState.Name) {
				pending[id] = false
			} else {
				pending[id] = true
			}
		}
		ok := s.confirmTransitions(ctx, pending, isStoppedState)
		for _, inst := range remaining {
			if ok[inst.ID] {
				confirmed = append(confirmed, inst)
			} else {
				log.Warn().Str("instance", inst.DisplayString()).Msg("instance did not confirm stop")
			}
		}
		return confirmed, rejected
	}
	return confirmed, rejected
}

// ResizeInstance changes the instance type of a stopped instance.
func (s *EC2Service) ResizeInstance(ctx context.Context, instance *models.Instance, instanceType string) error {
	_, err := s.client.ModifyInstanceAttribute(ctx, &ec2.ModifyInstanceAttributeInput{
		InstanceId:   aws.String(instance.ID),
		InstanceType: &ec2types.AttributeValue{Value: aws.String(instanceType)},
	})
	if err != nil {
		return fmt.Errorf("resizing instance %s to %s: %w", instance.ID, instanceType, err)
	}
	log.Info().Str("instance", instance.DisplayString()).Str("type", instanceType).Msg("instance resized")
	return nil
}

func isStartedState(state ec2types.InstanceStateName) bool {
	return state == ec2types.InstanceStateNamePending || state == ec2types.InstanceStateNameRunning
}

func isStoppedState(state ec2types.InstanceStateName) bool {
	return state == ec2types.InstanceStateNameStopping || state == ec2types.InstanceStateNameStopped
}

// confirmTransitions resolves the pending map (id to needs-repoll) into the
// set of confirmed ids, re-polling unconfirmed instances a bounded number
// of times. Instances still unconfirmed after the last poll stay false.
func (s *EC2Service) confirmTransitions(ctx context.Context, pending map[string]bool, reached func(ec2types.InstanceStateName) bool) map[string]bool {
	confirmed := make(map[string]bool, len(pending))
	var unconfirmed []string
	for id, repoll := range pending {
		if repoll {
			unconfirmed = append(unconfirmed, id)
		} else {
			confirmed[id] = true
		}
	}

	for attempt := 0; attempt < maxStatusPolls && len(unconfirmed) > 0; attempt++ {
		time.Sleep(s.pollDelay)
		resp, err := s.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: unconfirmed})
		if err != nil {
			log.Warn().Err(err).Msg("polling instance state failed")
			continue
		}
		var still []string
		for _, reservation := range resp.Reservations {
			for _, raw := range reservation.Instances {
				id := aws.ToString(raw.InstanceId)
				if raw.State != nil && reached(raw.State.Name) {
					confirmed[id] = true
				} else {
					still = append(still, id)
				}
			}
		}
		unconfirmed = still
	}
	return confirmed
}

// swapStateTags replaces the opposite transition's tags with the new ones.
// Keys shared between both sets are only overwritten, never deleted first.
// Tagging failures are logged and do not fail the transition.
func (s *EC2Service) swapStateTags(ctx context.Context, ids []string, add, remove []models.Tag) {
	addKeys := make(map[string]bool, len(add))
	for _, t := range add {
		addKeys[t.Key] = true
	}
	var deleteTags []ec2types.Tag
	for _, t := range remove {
		if !addKeys[t.Key] {
			deleteTags = append(deleteTags, ec2types.Tag{Key: aws.String(t.Key)})
		}
	}
	if len(deleteTags) > 0 {
		if _, err := s.client.DeleteTags(ctx, &ec2.DeleteTagsInput{
			Resources: ids,
			Tags:      deleteTags,
		}); err != nil {
			log.Warn().Err(err).Msg("removing transition tags failed")
		}
	}

	if len(add) == 0 {
		return
	}
	createTags := make([]ec2types.Tag, 0, len(add))
	for _, t := range add {
		createTags = append(createTags, ec2types.Tag{Key: aws.String(t.Key), Value: aws.String(t.Value)})
	}
	if _, err := s.client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: ids,
		Tags:      createTags,
	}); err != nil {
		log.Warn().Err(err).Msg("applying transition tags failed")
	}
}

// detachGroups takes autoscaling group members out of their group before
// they are stopped. Failures are logged; the instances are stopped anyway,
// which matches what the autoscaler would do with an unhealthy instance.
func (s *EC2Service) detachGroups(ctx context.Context, instances []*models.Instance) {
	for group, ids := range GroupMemberships(instances) {
		if err := s.asg.Detach(ctx, group, ids); err != nil {
			log.Warn().Err(err).Str("group", group).Msg("detaching instances from autoscaling group failed")
		}
	}
}

func (s *EC2Service) reattachGroups(ctx context.Context, instances []*models.Instance) {
	groups := GroupMemberships(instances)
	if len(groups) == 0 {
		return
	}
	time.Sleep(s.attachDelay)
	for group, ids := range groups {
		if err := s.asg.Attach(ctx, group, ids); err != nil {
			log.Warn().Err(err).Str("group", group).Msg("attaching instances to autoscaling group failed")
		}
	}
}
