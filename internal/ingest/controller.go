package ingest

import (
	"strings"
	"sync"
	"time"
)

// taskControl is the cancellation handle for one running task.
type taskControl struct {
	cancelled chan struct{}
	once      sync.Once
	createdAt time.Time
}

// Controller tracks per-task cancellation flags. Ensure is idempotent;
// IsCancelled is polled by workers at stage boundaries; Cleanup removes the
// entry when the task reaches a terminal state.
type Controller struct {
	mu    sync.Mutex
	tasks map[string]*taskControl
}

// NewController creates an empty Controller.
func NewController() *Controller {
	return &Controller{tasks: map[string]*taskControl{}}
}

// Ensure registers the task if needed and returns whether it was known.
func (c *Controller) Ensure(taskID string) bool {
	tid := strings.TrimSpace(taskID)
	if tid == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tasks[tid]; ok {
		return true
	}

	c.tasks[tid] = &taskControl{
		cancelled: make(chan struct{}),
		createdAt: time.Now(),
	}

	return false
}

// Cancel flags the task for cooperative cancellation. Unknown tasks are
// registered first so a cancel racing the submit still lands.
func (c *Controller) Cancel(taskID string) {
	tid := strings.TrimSpace(taskID)
	if tid == "" {
		return
	}

	c.Ensure(tid)

	c.mu.Lock()
	ctrl := c.tasks[tid]
	c.mu.Unlock()

	ctrl.once.Do(func() { close(ctrl.cancelled) })
}

// IsCancelled reports whether the task was flagged.
func (c *Controller) IsCancelled(taskID string) bool {
	c.mu.Lock()
	ctrl, ok := c.tasks[strings.TrimSpace(taskID)]
	c.mu.Unlock()

	if !ok {
		return false
	}

	select {
	case <-ctrl.cancelled:
		return true
	default:
		return false
	}
}

// Cleanup drops the task's entry.
func (c *Controller) Cleanup(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.tasks, strings.TrimSpace(taskID))
}

// Active returns the number of tracked tasks.
func (c *Controller) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.tasks)
}
