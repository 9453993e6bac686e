// Package tasktracker defines the contract for the external task tracker
// that task ids reference (spec.md §1 glossary: "an opaque identifier of a
// tracked work item from the external task tracker"). Only the contract
// and an in-memory reference implementation ship here.
package tasktracker

import (
	"context"
	"fmt"
)

// Task is the subset of tracker data Overstory needs: enough to populate a
// spec file and to validate a task id exists before spawning against it.
type Task struct {
	ID          string
	Title       string
	Description string
}

// Tracker is the contract an implementer plugs a real backend into.
type Tracker interface {
	Get(ctx context.Context, taskID string) (Task, error)
}

// InMemoryTracker is a reference Tracker backed by a map, useful for tests
// and for operation without a configured external tracker.
type InMemoryTracker struct {
	tasks map[string]Task
}

// NewInMemoryTracker returns a tracker seeded with tasks.
func NewInMemoryTracker(tasks ...Task) *InMemoryTracker {
	m := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		m[t.ID] = t
	}
	return &InMemoryTracker{tasks: m}
}

func (t *InMemoryTracker) Get(_ context.Context, taskID string) (Task, error) {
	task, ok := t.tasks[taskID]
	if !ok {
		return Task{}, fmt.Errorf("task %q not found", taskID)
	}
	return task, nil
}
