package uploads

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"bitrel/media-api/internal/media"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

var (
	ErrTaskNotFound = errors.New("upload task not found")
	ErrClosed       = errors.New("coordinator is closed")
)

const (
	// How long a finished task stays visible so the UI can show the
	// completed state before it disappears
	defaultRemoveAfter = 5 * time.Second

	simInterval = 200 * time.Millisecond
	simCeiling  = 90.0
)

// Coordinator is the in-memory, session-scoped registry of upload
// tasks. It owns the task state machine and is the only shared mutable
// state in the pipeline
type Coordinator struct {
	mu     sync.RWMutex
	tasks  map[string]*task
	timers map[string]*time.Timer
	closed bool

	removeAfter time.Duration
}

func NewCoordinator(removeAfter time.Duration) *Coordinator {
	if removeAfter <= 0 {
		removeAfter = defaultRemoveAfter
	}

	return &Coordinator{
		tasks:       make(map[string]*task),
		timers:      make(map[string]*time.Timer),
		removeAfter: removeAfter,
	}
}

// Add validates the spec against its kind policy and registers a task
// in pending. It never blocks on anything; the transfer is driven
// elsewhere
func (c *Coordinator) Add(spec TaskSpec) (string, error) {
	policy, err := media.PolicyFor(spec.Kind)
	if err != nil {
		return "", err
	}

	if err := policy.Validate(spec.FileName, spec.MimeType, spec.Size); err != nil {
		return "", err
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to generate task ID, %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrClosed
	}

	c.tasks[id] = &task{
		ID:          id,
		AggregateID: spec.AggregateID,
		UserID:      spec.UserID,
		FileName:    spec.FileName,
		Kind:        spec.Kind,
		MimeType:    spec.MimeType,
		Size:        spec.Size,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}

	zap.L().Debug("Upload task registered",
		zap.String("task_id", id),
		zap.String("aggregate_id", spec.AggregateID),
		zap.String("file", spec.FileName))

	return id, nil
}

// MarkStatus applies a state transition, rejecting anything outside the
// transition table. Reaching success schedules the task's own removal
func (c *Coordinator) MarkStatus(id string, next Status, cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}

	if !slices.Contains(transitions[t.Status], next) {
		return fmt.Errorf("illegal transition %s -> %s for task %s", t.Status, next, id)
	}

	t.Status = next

	switch next {
	case StatusUploading:
		go c.simulate(id)
	case StatusSuccess:
		t.Error = ""
		c.scheduleRemovalLocked(id)
	case StatusError:
		if cause != nil {
			t.Error = cause.Error()
		} else {
			t.Error = "upload failed"
		}
	}

	return nil
}

// UpdateProgress records real progress. Regressions in uploadedBytes
// are logged and dropped so the UI never sees the bar move backwards
func (c *Coordinator) UpdateProgress(id string, uploadedBytes int64, speedBps float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}

	if uploadedBytes < t.UploadedBytes {
		zap.L().Warn("Dropping non-monotonic progress report",
			zap.String("task_id", id),
			zap.Int64("reported", uploadedBytes),
			zap.Int64("current", t.UploadedBytes))
		return nil
	}

	t.UploadedBytes = uploadedBytes
	t.SpeedBps = speedBps

	if t.Size > 0 {
		t.RealPercent = float64(uploadedBytes) / float64(t.Size) * 100
		if t.RealPercent > 100 {
			t.RealPercent = 100
		}
	}

	return nil
}

// Get returns a point-in-time view of one task
func (c *Coordinator) Get(id string) (View, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tasks[id]
	if !ok {
		return View{}, ErrTaskNotFound
	}

	return t.view(), nil
}

// ListForOwner returns views of every task belonging to an aggregate,
// oldest first
func (c *Coordinator) ListForOwner(aggregateID string) []View {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := []View{}
	for _, t := range c.tasks {
		if aggregateID == "" || t.AggregateID == aggregateID {
			out = append(out, t.view())
		}
	}

	slices.SortFunc(out, func(a, b View) int {
		switch {
		case a.CreatedAt < b.CreatedAt:
			return -1
		case a.CreatedAt > b.CreatedAt:
			return 1
		default:
			return 0
		}
	})

	return out
}

// Remove drops a task from the registry, aborting its transfer first if
// one is still running
func (c *Coordinator) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(id)
}

// Cancel aborts an in-flight transfer. The pipeline observes the
// context cancellation and moves the task to error, so the abort is
// visible rather than a silent disappearance
func (c *Coordinator) Cancel(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}

	if t.Status.Terminal() {
		return fmt.Errorf("task %s already finished", id)
	}

	if t.cancel != nil {
		t.cancel()
		return nil
	}

	// Browser-driven transfers have no server-side context to abort,
	// so the cancellation is recorded on the task itself
	c.failLocked(t, &TransportError{Reason: ReasonCanceled})
	return nil
}

// Dismiss is the UI's single removal entry point: terminal tasks are
// removed, running ones are canceled and left to surface their error
func (c *Coordinator) Dismiss(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}

	if !t.Status.Terminal() {
		if t.cancel != nil {
			t.cancel()
			return nil
		}
		c.failLocked(t, &TransportError{Reason: ReasonCanceled})
		return nil
	}

	c.removeLocked(id)
	return nil
}

// SweepTerminal removes terminal tasks older than maxAge. Backstop for
// removal timers lost across a snapshot restore
func (c *Coordinator) SweepTerminal(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for id, t := range c.tasks {
		if t.Status.Terminal() && time.Since(t.CreatedAt) > maxAge {
			c.removeLocked(id)
			n++
		}
	}

	return n
}

// Close cancels everything in flight and rejects further Adds
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	for id, t := range c.tasks {
		if t.cancel != nil {
			t.cancel()
		}
		c.removeLocked(id)
	}
}

// bindCancel attaches the pipeline's cancel func so Cancel/Dismiss can
// reach a running transfer
func (c *Coordinator) bindCancel(id string, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.tasks[id]; ok {
		t.cancel = cancel
	}
}

// SetStorageKey records the key issued for a task in the credential
// phase so retries and confirmation can find the blob
func (c *Coordinator) SetStorageKey(id, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.tasks[id]; ok {
		t.StorageKey = key
	}
}

// failLocked moves a non-terminal task to error under the held lock,
// stepping pending tasks through uploading so every hop stays legal
func (c *Coordinator) failLocked(t *task, cause error) {
	if t.Status == StatusPending {
		t.Status = StatusUploading
	}
	if t.Status == StatusUploading {
		t.Status = StatusError
		t.Error = cause.Error()
	}
}

func (c *Coordinator) removeLocked(id string) {
	if tm, ok := c.timers[id]; ok {
		tm.Stop()
		delete(c.timers, id)
	}
	delete(c.tasks, id)
}

func (c *Coordinator) scheduleRemovalLocked(id string) {
	c.timers[id] = time.AfterFunc(c.removeAfter, func() {
		c.Remove(id)
	})
}

// simulate drives the cosmetic progress source while no real bytes have
// been reported yet: an asymptotic crawl toward the ceiling that stands
// in for progress until the first real event supersedes it
func (c *Coordinator) simulate(id string) {
	ticker := time.NewTicker(simInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()

		t, ok := c.tasks[id]
		if !ok || t.Status != StatusUploading || t.UploadedBytes > 0 {
			c.mu.Unlock()
			return
		}

		t.SimPercent += (simCeiling - t.SimPercent) * 0.05

		c.mu.Unlock()
	}
}
