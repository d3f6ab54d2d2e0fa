package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for reads of unknown task ids.
	ErrNotFound = errors.New("task not found")

	// ErrDependencyNotReady is returned when a dependent stage is created
	// against an upstream task that is missing, of the wrong kind, or not
	// yet completed. No record is created in that case.
	ErrDependencyNotReady = errors.New("upstream task dependency not ready")

	// ErrInvalidTransition indicates an attempted backward or
	// terminal-state mutation. This is an internal invariant violation,
	// not a caller error.
	ErrInvalidTransition = errors.New("invalid task status transition")
)

// Registry is the single source of truth for task records. It exclusively
// owns every record; stage executors mutate exactly one record each, through
// the transition methods. The registry has an explicit lifecycle: it is
// constructed in main and handed to the orchestrator and the API layer.
type Registry struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Task
	locks   *keyedMutex
}

func NewRegistry() *Registry {
	return &Registry{
		records: make(map[uuid.UUID]*Task),
		locks:   newKeyedMutex(),
	}
}

// Create allocates a new Pending record. Dependent kinds require inputRef to
// name an existing, completed task of the expected upstream kind; otherwise
// ErrDependencyNotReady is returned and nothing is created. The config
// snapshot is captured here and never rewritten.
func (r *Registry) Create(kind Kind, inputRef uuid.UUID, configSnapshot json.RawMessage) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if upstream, required := upstreamKind(kind); required {
		dep, ok := r.records[inputRef]
		if !ok {
			return Task{}, fmt.Errorf("%w: no task %s", ErrDependencyNotReady, inputRef)
		}

		// The upstream record may be mid-transition on its executor's
		// goroutine; its fields are only stable under its per-id lock.
		// Transition paths never wait on r.mu while holding a per-id
		// lock, so taking it here cannot deadlock.
		r.locks.Lock(inputRef.String())
		depKind, depStatus := dep.Kind, dep.Status
		r.locks.Unlock(inputRef.String())

		if depKind != upstream {
			return Task{}, fmt.Errorf("%w: task %s is a %s task, expected %s", ErrDependencyNotReady, inputRef, depKind, upstream)
		}
		if depStatus != StatusCompleted {
			return Task{}, fmt.Errorf("%w: task %s has status %s", ErrDependencyNotReady, inputRef, depStatus)
		}
	} else {
		inputRef = uuid.Nil
	}

	task := &Task{
		ID:             uuid.New(),
		Kind:           kind,
		Status:         StatusPending,
		CreatedAt:      time.Now().UTC(),
		InputRef:       inputRef,
		ConfigSnapshot: configSnapshot,
	}
	r.records[task.ID] = task

	return *task, nil
}

// Start moves a task from Pending to Running.
func (r *Registry) Start(id uuid.UUID) error {
	return r.update(id, func(t *Task) error {
		if t.Status != StatusPending {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, StatusRunning)
		}
		t.Status = StatusRunning
		return nil
	})
}

// Complete moves a Running task to Completed and attaches its result.
func (r *Registry) Complete(id uuid.UUID, result Result) error {
	return r.update(id, func(t *Task) error {
		if t.Status != StatusRunning {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, StatusCompleted)
		}
		now := time.Now().UTC()
		t.Status = StatusCompleted
		t.CompletedAt = &now
		t.Result = &result
		return nil
	})
}

// Fail moves a Running task to Failed and attaches the structured error.
func (r *Registry) Fail(id uuid.UUID, taskErr TaskError) error {
	return r.update(id, func(t *Task) error {
		if t.Status != StatusRunning {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, StatusFailed)
		}
		now := time.Now().UTC()
		if taskErr.Time.IsZero() {
			taskErr.Time = now
		}
		t.Status = StatusFailed
		t.CompletedAt = &now
		t.Error = &taskErr
		return nil
	})
}

// Get returns a snapshot copy of a task record. Result and error payloads
// are written once and never mutated afterwards, so sharing them with the
// caller is safe.
func (r *Registry) Get(id uuid.UUID) (Task, error) {
	r.mu.RLock()
	rec, ok := r.records[id]
	r.mu.RUnlock()
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	r.locks.Lock(id.String())
	task := *rec
	r.locks.Unlock(id.String())

	return task, nil
}

// List returns snapshots of all records, oldest first. An empty kind matches
// every task.
func (r *Registry) List(kind Kind) []Task {
	r.mu.RLock()
	out := make([]Task, 0, len(r.records))
	for _, rec := range r.records {
		if kind != "" && rec.Kind != kind {
			continue
		}
		r.locks.Lock(rec.ID.String())
		out = append(out, *rec)
		r.locks.Unlock(rec.ID.String())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *Registry) update(id uuid.UUID, fn func(*Task) error) error {
	r.mu.RLock()
	rec, ok := r.records[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	r.locks.Lock(id.String())
	defer r.locks.Unlock(id.String())

	return fn(rec)
}
