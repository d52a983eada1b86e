package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niroliyanage/instance-scheduler/internal/models"
)

func TestGroupMemberships(t *testing.T) {
	instances := []*models.Instance{
		{ID: "i-01", Tags: map[string]string{"aws:autoscaling:groupName": "web"}},
		{ID: "i-02", Tags: map[string]string{"aws:autoscaling:groupName": "web"}},
		{ID: "i-03", Tags: map[string]string{"aws:autoscaling:groupName": "workers"}},
		{ID: "i-04", Tags: map[string]string{}},
	}

	groups := GroupMemberships(instances)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"i-01", "i-02"}, groups["web"])
	assert.Equal(t, []string{"i-03"}, groups["workers"])
}

func TestGroupCoordinator_DetachSkipsStaleMembers(t *testing.T) {
	// the membership tag survives an out-of-band detach; the group itself
	// is the source of truth
	asg := newFakeASG()
	c := &GroupCoordinator{client: asg, settleDelay: 0}

	require.NoError(t, c.Detach(context.Background(), "web", []string{"i-01"}))
	assert.Empty(t, asg.detached)
}

func TestGroupCoordinator_DetachConfirmedMembers(t *testing.T) {
	asg := newFakeASG()
	asg.memberOf["i-01"] = "web"
	asg.memberOf["i-02"] = "workers"
	c := &GroupCoordinator{client: asg, settleDelay: 0}

	require.NoError(t, c.Detach(context.Background(), "web", []string{"i-01", "i-02"}))
	assert.Equal(t, []string{"i-01"}, asg.detached["web"])
}
