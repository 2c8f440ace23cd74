// Package jobs runs long computations in the background behind opaque handles.
package jobs

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"retail-analytics/metrics"
)

// State of a job
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Func is the work a job performs; it should stop when ctx is cancelled
type Func func(ctx context.Context) (interface{}, error)

// Status is a point-in-time view of a job
type Status struct {
	ID          string      `json:"id"`
	Kind        string      `json:"kind"`
	State       State       `json:"state"`
	Error       string      `json:"error,omitempty"`
	Result      interface{} `json:"-"`
	SubmittedAt time.Time   `json:"submitted_at"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
}

// Done reports whether the job reached a terminal state
func (s Status) Done() bool {
	return s.State == StateCompleted || s.State == StateFailed
}

type job struct {
	status Status
	err    error
	cancel context.CancelFunc
	done   chan struct{}
}

// DefaultRetention is how long finished jobs stay queryable
const DefaultRetention = time.Hour

// Manager tracks background jobs by handle
type Manager struct {
	mu        sync.RWMutex
	jobs      map[string]*job
	ctx       context.Context
	onDone    []func(Status)
	wg        sync.WaitGroup
	retention time.Duration
}

// NewManager creates a manager whose jobs are cancelled when ctx is done
func NewManager(ctx context.Context) *Manager {
	return &Manager{
		jobs:      make(map[string]*job),
		ctx:       ctx,
		retention: DefaultRetention,
	}
}

// SetRetention changes how long finished jobs are kept; d <= 0 keeps the default
func (m *Manager) SetRetention(d time.Duration) {
	if d <= 0 {
		d = DefaultRetention
	}
	m.mu.Lock()
	m.retention = d
	m.mu.Unlock()
}

// Prune forgets finished jobs older than the retention and returns how many it dropped
func (m *Manager) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneLocked(time.Now())
}

func (m *Manager) pruneLocked(now time.Time) int {
	dropped := 0
	for id, j := range m.jobs {
		if j.status.FinishedAt != nil && now.Sub(*j.status.FinishedAt) > m.retention {
			delete(m.jobs, id)
			dropped++
		}
	}
	return dropped
}

// OnDone registers a hook called once per finished job that was not discarded
func (m *Manager) OnDone(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDone = append(m.onDone, fn)
}

// Submit starts fn in the background and returns its handle
func (m *Manager) Submit(kind string, fn Func) string {
	ctx, cancel := context.WithCancel(m.ctx)
	j := &job{
		status: Status{
			ID:          uuid.NewString(),
			Kind:        kind,
			State:       StatePending,
			SubmittedAt: time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.pruneLocked(time.Now())
	m.jobs[j.status.ID] = j
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(ctx, j, fn)

	log.Printf("🚀 Job %s (%s) submitted", j.status.ID, kind)
	return j.status.ID
}

func (m *Manager) run(ctx context.Context, j *job, fn Func) {
	defer m.wg.Done()
	defer j.cancel()

	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	m.mu.Lock()
	j.status.State = StateRunning
	m.mu.Unlock()

	result, err := safeCall(ctx, fn)

	m.mu.Lock()
	now := time.Now()
	j.status.FinishedAt = &now
	if err != nil {
		j.status.State = StateFailed
		j.status.Error = err.Error()
		j.err = err
	} else {
		j.status.State = StateCompleted
		j.status.Result = result
	}
	_, tracked := m.jobs[j.status.ID]
	final := j.status
	hooks := append([]func(Status){}, m.onDone...)
	m.mu.Unlock()
	close(j.done)

	if !tracked {
		// Discarded while running; nobody is waiting for it
		return
	}

	if err != nil {
		log.Printf("❌ Job %s (%s) failed: %v", final.ID, final.Kind, err)
	} else {
		log.Printf("✅ Job %s (%s) completed in %v", final.ID, final.Kind, now.Sub(final.SubmittedAt).Round(time.Millisecond))
	}
	for _, hook := range hooks {
		hook(final)
	}
}

func safeCall(ctx context.Context, fn Func) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// Status returns the current view of a job
func (m *Manager) Status(id string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[id]
	if !ok {
		return Status{}, false
	}
	return j.status, true
}

// Await blocks until the job finishes or ctx is done and returns its result
func (m *Manager) Await(ctx context.Context, id string) (interface{}, error) {
	m.mu.RLock()
	j, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{ID: id}
	}

	select {
	case <-j.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.jobs[id]; !ok {
		return nil, &NotFoundError{ID: id}
	}
	return j.status.Result, j.err
}

// Discard cancels a job and forgets its handle. Partial results are never exposed.
func (m *Manager) Discard(id string) bool {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if ok {
		delete(m.jobs, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	j.cancel()
	log.Printf("🛑 Job %s (%s) discarded", id, j.status.Kind)
	return true
}

// List returns every tracked job, newest first
func (m *Manager) List() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Status, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out
}

// Wait blocks until every running job has returned
func (m *Manager) Wait() {
	m.wg.Wait()
}

// NotFoundError is returned for unknown or discarded handles
type NotFoundError struct {
	ID string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("job not found: %s", e.ID)
}
