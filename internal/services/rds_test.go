package services

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niroliyanage/instance-scheduler/internal/config"
	"github.com/niroliyanage/instance-scheduler/internal/models"
	"github.com/niroliyanage/instance-scheduler/internal/schedule"
)

type fakeRDS struct {
	describeOut []*rds.DescribeDBInstancesOutput

	startCalls []string
	stopCalls  []string
	failStart  map[string]bool

	added   []*rds.AddTagsToResourceInput
	removed []*rds.RemoveTagsFromResourceInput
}

func (f *fakeRDS) DescribeDBInstances(ctx context.Context, input *rds.DescribeDBInstancesInput, opts ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
	if len(f.describeOut) == 0 {
		return &rds.DescribeDBInstancesOutput{}, nil
	}
	out := f.describeOut[0]
	f.describeOut = f.describeOut[1:]
	return out, nil
}

func (f *fakeRDS) StartDBInstance(ctx context.Context, input *rds.StartDBInstanceInput, opts ...func(*rds.Options)) (*rds.StartDBInstanceOutput, error) {
	id := aws.ToString(input.DBInstanceIdentifier)
	f.startCalls = append(f.startCalls, id)
	if f.failStart[id] {
		return nil, errors.New("InvalidDBInstanceState")
	}
	return &rds.StartDBInstanceOutput{}, nil
}

func (f *fakeRDS) StopDBInstance(ctx context.Context, input *rds.StopDBInstanceInput, opts ...func(*rds.Options)) (*rds.StopDBInstanceOutput, error) {
	f.stopCalls = append(f.stopCalls, aws.ToString(input.DBInstanceIdentifier))
	return &rds.StopDBInstanceOutput{}, nil
}

func (f *fakeRDS) AddTagsToResource(ctx context.Context, input *rds.AddTagsToResourceInput, opts ...func(*rds.Options)) (*rds.AddTagsToResourceOutput, error) {
	f.added = append(f.added, input)
	return &rds.AddTagsToResourceOutput{}, nil
}

func (f *fakeRDS) RemoveTagsFromResource(ctx context.Context, input *rds.RemoveTagsFromResourceInput, opts ...func(*rds.Options)) (*rds.RemoveTagsFromResourceOutput, error) {
	f.removed = append(f.removed, input)
	return &rds.RemoveTagsFromResourceOutput{}, nil
}

func testRDSService(client rdsAPI) *RDSService {
	return &RDSService{
		client:      client,
		stateTagKey: config.DefaultStateTagName,
		arns:        make(map[string]string),
	}
}

func dbInstance(identifier, status string, tags map[string]string) rdstypes.DBInstance {
	var tagList []rdstypes.Tag
	for k, v := range tags {
		tagList = append(tagList, rdstypes.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return rdstypes.DBInstance{
		DBInstanceIdentifier: aws.String(identifier),
		DBInstanceArn:        aws.String("arn:aws:rds:eu-west-1:123456789012:db:" + identifier),
		DBInstanceStatus:     aws.String(status),
		DBInstanceClass:      aws.String("db.t3.medium"),
		TagList:              tagList,
	}
}

func scheduledDB(identifier, status string) rdstypes.DBInstance {
	return dbInstance(identifier, status, map[string]string{config.DefaultTagName: "office"})
}

func TestRDSSchedulableInstances_FiltersAndEnriches(t *testing.T) {
	clusterMember := scheduledDB("db-cluster-member", "available")
	clusterMember.DBClusterIdentifier = aws.String("analytics")

	stopped := scheduledDB("db-reports", "stopped")
	stopped.TagList = append(stopped.TagList, rdstypes.Tag{
		Key: aws.String(config.DefaultStateTagName), Value: aws.String(string(schedule.StateStopped)),
	})

	client := &fakeRDS{describeOut: []*rds.DescribeDBInstancesOutput{
		{
			DBInstances: []rdstypes.DBInstance{
				scheduledDB("db-orders", "available"),
				dbInstance("db-untagged", "available", nil),
				clusterMember,
			},
			Marker: aws.String("page-2"),
		},
		{
			DBInstances: []rdstypes.DBInstance{
				scheduledDB("db-backing-up", "backing-up"),
				stopped,
			},
		},
	}}
	svc := testRDSService(client)

	instances, err := svc.SchedulableInstances(context.Background(), testSnapshot())
	require.NoError(t, err)
	require.Len(t, instances, 2)

	orders := instances[0]
	assert.Equal(t, "db-orders", orders.ID)
	assert.Equal(t, "rds", orders.Service)
	assert.Equal(t, "office", orders.ScheduleName)
	assert.Equal(t, "db.t3.medium", orders.InstanceType)
	assert.True(t, orders.IsRunning)
	assert.False(t, orders.AllowResize)
	assert.Equal(t, schedule.StateUnknown, orders.LastDesiredState)

	reports := instances[1]
	assert.Equal(t, "db-reports", reports.ID)
	assert.False(t, reports.IsRunning)
	assert.Equal(t, schedule.StateStopped, reports.LastDesiredState)

	// the ARN map only holds the schedulable instances
	assert.Len(t, svc.arns, 2)
	assert.Contains(t, svc.arns["db-orders"], "db:db-orders")
}

func TestRDSStartInstances_ContinuesPastFailure(t *testing.T) {
	client := &fakeRDS{failStart: map[string]bool{"db-02": true}}
	svc := testRDSService(client)

	changes := svc.StartInstances(context.Background(), testSnapshot(), []*models.Instance{
		{ID: "db-01", Service: "rds", Tags: map[string]string{}},
		{ID: "db-02", Service: "rds", Tags: map[string]string{}},
		{ID: "db-03", Service: "rds", Tags: map[string]string{}},
	})

	// every database gets its own call and one failure does not stop the rest
	assert.Equal(t, []string{"db-01", "db-02", "db-03"}, client.startCalls)
	require.Len(t, changes, 2)
	assert.Equal(t, "db-01", changes[0].ID)
	assert.Equal(t, "db-03", changes[1].ID)
	for _, c := range changes {
		assert.Equal(t, schedule.StateRunning, c.State)
	}
}

func TestRDSStartInstances_SwapsTagsThroughArn(t *testing.T) {
	client := &fakeRDS{}
	svc := testRDSService(client)
	svc.arns["db-01"] = "arn:db-01"

	svc.StartInstances(context.Background(), testSnapshot(), []*models.Instance{
		{ID: "db-01", Service: "rds", Tags: map[string]string{}},
	})

	// StoppedAt only exists in the stopped set, so it is removed; the
	// shared ScheduleStatus key is overwritten, never deleted
	require.Len(t, client.removed, 1)
	assert.Equal(t, "arn:db-01", aws.ToString(client.removed[0].ResourceName))
	assert.Equal(t, []string{"StoppedAt"}, client.removed[0].TagKeys)

	require.Len(t, client.added, 1)
	assert.Equal(t, "arn:db-01", aws.ToString(client.added[0].ResourceName))
	require.Len(t, client.added[0].Tags, 1)
	assert.Equal(t, "ScheduleStatus", aws.ToString(client.added[0].Tags[0].Key))
	assert.Equal(t, "started", aws.ToString(client.added[0].Tags[0].Value))
}

func TestRDSStopInstances_SkipsStoppedDatabases(t *testing.T) {
	client := &fakeRDS{}
	svc := testRDSService(client)
	svc.arns["db-01"] = "arn:db-01"

	changes := svc.StopInstances(context.Background(), testSnapshot(), []*models.Instance{
		{ID: "db-01", Service: "rds", IsRunning: true, Tags: map[string]string{}},
		{ID: "db-02", Service: "rds", IsRunning: false, Tags: map[string]string{}},
	})

	assert.Equal(t, []string{"db-01"}, client.stopCalls)
	require.Len(t, changes, 1)
	assert.Equal(t, "db-01", changes[0].ID)
	assert.Equal(t, schedule.StateStopped, changes[0].State)
}

func TestRDSStopInstances_UnknownArnSkipsTagging(t *testing.T) {
	// an instance that vanished from the ARN map is still stopped, the
	// tag bookkeeping is just skipped
	client := &fakeRDS{}
	svc := testRDSService(client)

	changes := svc.StopInstances(context.Background(), testSnapshot(), []*models.Instance{
		{ID: "db-01", Service: "rds", IsRunning: true, Tags: map[string]string{}},
	})

	require.Len(t, changes, 1)
	assert.Empty(t, client.added)
	assert.Empty(t, client.removed)
}

func TestRDSApplyStateTag_SkipsUnknownInstances(t *testing.T) {
	client := &fakeRDS{}
	svc := testRDSService(client)
	svc.arns["db-01"] = "arn:db-01"

	require.NoError(t, svc.ApplyStateTag(context.Background(), []string{"db-01", "db-gone"}, schedule.StateRunning))

	require.Len(t, client.added, 1)
	assert.Equal(t, "arn:db-01", aws.ToString(client.added[0].ResourceName))
	require.Len(t, client.added[0].Tags, 1)
	assert.Equal(t, config.DefaultStateTagName, aws.ToString(client.added[0].Tags[0].Key))
	assert.Equal(t, string(schedule.StateRunning), aws.ToString(client.added[0].Tags[0].Value))
}
