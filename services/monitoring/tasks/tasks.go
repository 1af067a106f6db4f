package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/logging"
	"github.com/sirupsen/logrus"
)

// Task is a unit of background work run on a fixed interval.
type Task struct {
	ID       string
	Name     string
	Fn       func(context.Context) error
	Interval time.Duration

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

func (t *Task) LastRun() (time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastRun, t.lastErr
}

// TaskScheduler runs recurring tasks until Stop is called.
type TaskScheduler struct {
	tasks  map[string]*Task
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *logging.Logger
}

func NewTaskScheduler(logger *logging.Logger) *TaskScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskScheduler{
		tasks:  make(map[string]*Task),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// AddTask registers fn to run every interval once the scheduler is started.
func (ts *TaskScheduler) AddTask(id, name string, fn func(context.Context) error, interval time.Duration) (*Task, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("task %s needs a positive interval", id)
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	if _, exists := ts.tasks[id]; exists {
		return nil, fmt.Errorf("task with ID %s already exists", id)
	}

	task := &Task{
		ID:       id,
		Name:     name,
		Fn:       fn,
		Interval: interval,
	}
	ts.tasks[id] = task
	ts.logger.WithFields(logrus.Fields{
		"task":     id,
		"interval": interval.String(),
	}).Info("task registered")
	return task, nil
}

// Start launches one goroutine per registered task.
func (ts *TaskScheduler) Start() {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	for _, task := range ts.tasks {
		ts.wg.Add(1)
		go ts.loop(task)
	}
}

// RunTask executes a task once, synchronously.
func (ts *TaskScheduler) RunTask(id string) error {
	task, err := ts.GetTask(id)
	if err != nil {
		return err
	}
	return ts.run(task)
}

func (ts *TaskScheduler) loop(task *Task) {
	defer ts.wg.Done()

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ts.ctx.Done():
			return
		case <-ticker.C:
			_ = ts.run(task)
		}
	}
}

func (ts *TaskScheduler) run(task *Task) error {
	err := task.Fn(ts.ctx)

	task.mu.Lock()
	task.lastRun = time.Now()
	task.lastErr = err
	task.mu.Unlock()

	if err != nil {
		ts.logger.WithFields(logrus.Fields{
			"task":  task.ID,
			"error": err.Error(),
		}).Error("task failed")
	}
	return err
}

// Stop cancels all loops and waits for in-flight runs to return.
func (ts *TaskScheduler) Stop() {
	ts.cancel()
	ts.wg.Wait()
}

func (ts *TaskScheduler) GetTask(id string) (*Task, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	task, exists := ts.tasks[id]
	if !exists {
		return nil, fmt.Errorf("task with ID %s not found", id)
	}
	return task, nil
}
