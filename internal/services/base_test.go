package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niroliyanage/instance-scheduler/internal/models"
)

func makeInstances(ids ...string) []*models.Instance {
	out := make([]*models.Instance, 0, len(ids))
	for _, id := range ids {
		out = append(out, &models.Instance{ID: id, Service: "ec2", IsRunning: true})
	}
	return out
}

func TestBatches(t *testing.T) {
	instances := makeInstances("i-01", "i-02", "i-03", "i-04", "i-05", "i-06", "i-07",
		"i-08", "i-09", "i-10", "i-11", "i-12")

	got := batches(instances, 5)
	require.Len(t, got, 3)
	assert.Len(t, got[0], 5)
	assert.Len(t, got[1], 5)
	assert.Len(t, got[2], 2)
	assert.Equal(t, "i-01", got[0][0].ID)
	assert.Equal(t, "i-12", got[2][1].ID)
}

func TestBatches_ExactAndEmpty(t *testing.T) {
	assert.Len(t, batches(makeInstances("a", "b"), 2), 1)
	assert.Empty(t, batches(nil, 5))
}

func TestInstanceIDs(t *testing.T) {
	assert.Equal(t, []string{"i-01", "i-02"}, instanceIDs(makeInstances("i-01", "i-02")))
}
