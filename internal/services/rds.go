package services

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/rs/zerolog/log"

	"github.com/niroliyanage/instance-scheduler/internal/config"
	"github.com/niroliyanage/instance-scheduler/internal/models"
	"github.com/niroliyanage/instance-scheduler/internal/schedule"
)

// rdsAPI is the subset of the RDS client the service uses.
type rdsAPI interface {
	DescribeDBInstances(ctx context.Context, input *rds.DescribeDBInstancesInput, opts ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
	StartDBInstance(ctx context.Context, input *rds.StartDBInstanceInput, opts ...func(*rds.Options)) (*rds.StartDBInstanceOutput, error)
	StopDBInstance(ctx context.Context, input *rds.StopDBInstanceInput, opts ...func(*rds.Options)) (*rds.StopDBInstanceOutput, error)
	AddTagsToResource(ctx context.Context, input *rds.AddTagsToResourceInput, opts ...func(*rds.Options)) (*rds.AddTagsToResourceOutput, error)
	RemoveTagsFromResource(ctx context.Context, input *rds.RemoveTagsFromResourceInput, opts ...func(*rds.Options)) (*rds.RemoveTagsFromResourceOutput, error)
}

// RDSService discovers, starts and stops tagged RDS database instances.
// Database instances cannot hibernate or resize, and cluster members are
// skipped because clusters start and stop as a whole.
type RDSService struct {
	client      rdsAPI
	stateTagKey string

	// arns maps instance identifiers to their resource ARN, which the RDS
	// tagging calls require. Rebuilt on every discovery pass.
	arns map[string]string
}

// NewRDSService creates the RDS service for one region.
func NewRDSService(cfg aws.Config, stateTagKey string) *RDSService {
	return &RDSService{
		client:      rds.NewFromConfig(cfg),
		stateTagKey: stateTagKey,
		arns:        make(map[string]string),
	}
}

func (s *RDSService) ServiceName() string { return "rds" }

// rdsSchedulableStates are the database statuses a scheduling decision can
// act on.
var rdsSchedulableStates = map[string]bool{
	"available": true,
	"stopped":   true,
}

// SchedulableInstances lists the database instances carrying the schedule
// tag. RDS cannot filter on tags server side, so the tag check happens on
// the returned tag lists.
func (s *RDSService) SchedulableInstances(ctx context.Context, snap *config.Snapshot) ([]*models.Instance, error) {
	s.arns = make(map[string]string)

	var instances []*models.Instance
	paginator := rds.NewDescribeDBInstancesPaginator(s.client, &rds.DescribeDBInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describing db instances: %w", err)
		}
		for _, raw := range page.DBInstances {
			inst := s.fromProviderInstance(raw, snap)
			if inst == nil {
				continue
			}
			instances = append(instances, inst)
		}
	}

	log.Debug().Int("count", len(instances)).Msg("discovered schedulable rds instances")
	return instances, nil
}

func (s *RDSService) fromProviderInstance(raw rdstypes.DBInstance, snap *config.Snapshot) *models.Instance {
	tags := make(map[string]string, len(raw.TagList))
	for _, t := range raw.TagList {
		tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	scheduleName, ok := tags[snap.TagName]
	if !ok {
		return nil
	}

	id := aws.ToString(raw.DBInstanceIdentifier)
	if raw.DBClusterIdentifier != nil {
		log.Debug().Str("instance", id).Msg("skipping cluster member database")
		return nil
	}
	status := aws.ToString(raw.DBInstanceStatus)
	if !rdsSchedulableStates[status] {
		return nil
	}

	s.arns[id] = aws.ToString(raw.DBInstanceArn)

	inst := &models.Instance{
		ID:               id,
		Name:             id,
		Service:          s.ServiceName(),
		StateName:        status,
		InstanceType:     aws.ToString(raw.DBInstanceClass),
		Tags:             tags,
		ScheduleName:     scheduleName,
		IsRunning:        status == "available",
		LastDesiredState: schedule.DesiredState(tags[snap.StateTagName]),
	}
	if inst.LastDesiredState == "" {
		inst.LastDesiredState = schedule.StateUnknown
	}
	return inst
}

// StartInstances starts the databases one call per instance, which is all
// the RDS API offers. A failed start is logged and skipped.
func (s *RDSService) StartInstances(ctx context.Context, snap *config.Snapshot, instances []*models.Instance) []models.StateChange {
	var changes []models.StateChange
	for _, inst := range instances {
		_, err := s.client.StartDBInstance(ctx, &rds.StartDBInstanceInput{
			DBInstanceIdentifier: aws.String(inst.ID),
		})
		if err != nil {
			log.Error().Err(err).Str("instance", inst.DisplayString()).Msg("starting database failed")
			continue
		}
		s.swapStateTags(ctx, inst.ID, snap.StartedTags, snap.StoppedTags)
		changes = append(changes, models.StateChange{ID: inst.ID, State: schedule.StateRunning})
	}
	return changes
}

// StopInstances stops the databases one call per instance.
func (s *RDSService) StopInstances(ctx context.Context, snap *config.Snapshot, instances []*models.Instance) []models.StateChange {
	var changes []models.StateChange
	for _, inst := range instances {
		if !inst.IsRunning {
			continue
		}
		_, err := s.client.StopDBInstance(ctx, &rds.StopDBInstanceInput{
			DBInstanceIdentifier: aws.String(inst.ID),
		})
		if err != nil {
			log.Error().Err(err).Str("instance", inst.DisplayString()).Msg("stopping database failed")
			continue
		}
		s.swapStateTags(ctx, inst.ID, snap.StoppedTags, snap.StartedTags)
		changes = append(changes, models.StateChange{ID: inst.ID, State: schedule.StateStopped})
	}
	return changes
}

// ResizeInstance is not supported for databases; resize decisions never
// reach this service because its instances report AllowResize false.
func (s *RDSService) ResizeInstance(ctx context.Context, instance *models.Instance, instanceType string) error {
	return fmt.Errorf("resizing is not supported for rds instance %s", instance.ID)
}

// ApplyStateTag records the desired state on the databases.
func (s *RDSService) ApplyStateTag(ctx context.Context, ids []string, state schedule.DesiredState) error {
	tags := []rdstypes.Tag{
		{Key: aws.String(s.stateTagKey), Value: aws.String(string(state))},
	}
	for _, id := range ids {
		arn, ok := s.arns[id]
		if !ok {
			continue
		}
		if _, err := s.client.AddTagsToResource(ctx, &rds.AddTagsToResourceInput{
			ResourceName: aws.String(arn),
			Tags:         tags,
		}); err != nil {
			return err
		}
	}
	return nil
}

// RemoveStateTag clears the recorded state from the databases.
func (s *RDSService) RemoveStateTag(ctx context.Context, ids []string) error {
	for _, id := range ids {
		arn, ok := s.arns[id]
		if !ok {
			continue
		}
		if _, err := s.client.RemoveTagsFromResource(ctx, &rds.RemoveTagsFromResourceInput{
			ResourceName: aws.String(arn),
			TagKeys:      []string{s.stateTagKey},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *RDSService) swapStateTags(ctx context.Context, id string, add, remove []models.Tag) {
	arn, ok := s.arns[id]
	if !ok {
		return
	}

	addKeys := make(map[string]bool, len(add))
	for _, t := range add {
		addKeys[t.Key] = true
	}
	var removeKeys []string
	for _, t := range remove {
		if !addKeys[t.Key] {
			removeKeys = append(removeKeys, t.Key)
		}
	}
	if len(removeKeys) > 0 {
		if _, err := s.client.RemoveTagsFromResource(ctx, &rds.RemoveTagsFromResourceInput{
			ResourceName: aws.String(arn),
			TagKeys:      removeKeys,
		}); err != nil {
			log.Warn().Err(err).Str("instance", id).Msg("removing transition tags failed")
		}
	}
	if len(add) == 0 {
		return
	}
	tags := make([]rdstypes.Tag, 0, len(add))
	for _, t := range add {
		tags = append(tags, rdstypes.Tag{Key: aws.String(t.Key), Value: aws.String(t.Value)})
	}
	if _, err := s.client.AddTagsToResource(ctx, &rds.AddTagsToResourceInput{
		ResourceName: aws.String(arn),
		Tags:         tags,
	}); err != nil {
		log.Warn().Err(err).Str("instance", id).Msg("applying transition tags failed")
	}
}
