package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/niroliyanage/instance-scheduler/internal/models"
	"github.com/niroliyanage/instance-scheduler/internal/schedule"
)

// stateTagWriter writes or clears the desired-state tag on instances. Each
// service implements it with its own tagging API.
type stateTagWriter interface {
	ApplyStateTag(ctx context.Context, ids []string, state schedule.DesiredState) error
	RemoveStateTag(ctx context.Context, ids []string) error
}

// TagStateStore keeps the desired state recorded per instance between runs,
// persisted as a tag on the instance itself. There is no private store; the
// tag read back at discovery is the only memory a run inherits.
//
// Writes are buffered and flushed once per run; the flush batches all
// instances that share a state value into one tagging call.
type TagStateStore struct {
	writer stateTagWriter

	states  map[string]schedule.DesiredState
	dirty   map[string]schedule.DesiredState
	removed map[string]bool
}

// NewTagStateStore creates a store backed by the given writer.
func NewTagStateStore(writer stateTagWriter) *TagStateStore {
	return &TagStateStore{
		writer:  writer,
		states:  make(map[string]schedule.DesiredState),
		dirty:   make(map[string]schedule.DesiredState),
		removed: make(map[string]bool),
	}
}

// Load seeds the store with the states read from the discovered instances.
func (t *TagStateStore) Load(instances []*models.Instance) {
	for _, inst := range instances {
		if inst.LastDesiredState != schedule.StateUnknown {
			t.states[inst.ID] = inst.LastDesiredState
		}
	}
}

// Get returns the recorded state, StateUnknown when the instance has none.
func (t *TagStateStore) Get(id string) schedule.DesiredState {
	if state, ok := t.states[id]; ok {
		return state
	}
	return schedule.StateUnknown
}

// Set records a new desired state for the instance.
func (t *TagStateStore) Set(id string, state schedule.DesiredState) {
	if t.states[id] == state {
		return
	}
	t.states[id] = state
	t.dirty[id] = state
	delete(t.removed, id)
}

// Remove clears the recorded state, used when an instance left its schedule
// or was terminated.
func (t *TagStateStore) Remove(id string) {
	if _, ok := t.states[id]; !ok {
		return
	}
	delete(t.states, id)
	delete(t.dirty, id)
	t.removed[id] = true
}

// Flush writes the buffered changes, one tagging call per distinct state
// value plus one removal call. Partial failures leave the remaining writes
// untouched and are joined into the returned error.
func (t *TagStateStore) Flush(ctx context.Context) error {
	var errs []error

	byState := make(map[schedule.DesiredState][]string)
	for id, state := range t.dirty {
		byState[state] = append(byState[state], id)
	}
	for state, ids := range byState {
		if err := t.writer.ApplyStateTag(ctx, ids, state); err != nil {
			errs = append(errs, fmt.Errorf("recording state %s: %w", state, err))
			continue
		}
		for _, id := range ids {
			delete(t.dirty, id)
		}
	}

	if len(t.removed) > 0 {
		ids := make([]string, 0, len(t.removed))
		for id := range t.removed {
			ids = append(ids, id)
		}
		if err := t.writer.RemoveStateTag(ctx, ids); err != nil {
			errs = append(errs, fmt.Errorf("clearing recorded states: %w", err))
		} else {
			t.removed = make(map[string]bool)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	log.Debug().Msg("instance states flushed")
	return nil
}
