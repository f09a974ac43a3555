package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rendis/callgraph/internal/logging"
	"github.com/rendis/callgraph/pkg/schema"
)

// StatusHook observes task status transitions.
type StatusHook func(ctx context.Context, taskID string, from, to schema.TaskStatus)

// ChainStatusHooks calls every non-nil hook in order.
func ChainStatusHooks(hooks ...StatusHook) StatusHook {
	return func(ctx context.Context, taskID string, from, to schema.TaskStatus) {
		for _, h := range hooks {
			if h != nil {
				h(ctx, taskID, from, to)
			}
		}
	}
}

// TaskInfo is a point-in-time view of a managed task.
type TaskInfo struct {
	ID          string            `json:"id"`
	Name        string            `json:"name,omitempty"`
	Status      schema.TaskStatus `json:"status"`
	Step        int64             `json:"step"`
	Halted      bool              `json:"halted,omitempty"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Nodes       []NodeInfo        `json:"nodes,omitempty"`
}

type managedTask struct {
	task        *Task
	status      schema.TaskStatus
	startedAt   *time.Time
	completedAt *time.Time
}

// Manager owns a set of tasks, the simulation step counter, the shared
// signal bus and the worker pool behind Host.Go. All task mutation happens
// under the manager's lock; completions reported by components are queued
// and applied on the next Tick, Emit or Continue.
type Manager struct {
	mu    sync.Mutex
	tasks map[string]*managedTask
	order []string
	step  int64

	ctx    context.Context
	cancel context.CancelFunc
	pool   *WorkerPool
	bus    *SignalBus
	disp   *dispatcher
	fsm    *TaskFSM

	appender EventAppender
	hooks    Hooks
	onStatus StatusHook
	logger   *slog.Logger
	poolSize int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithPoolSize bounds concurrent asynchronous component work. Default 8.
func WithPoolSize(n int) ManagerOption { return func(m *Manager) { m.poolSize = n } }

// WithLogger sets the manager logger, shared by its tasks.
func WithLogger(l *slog.Logger) ManagerOption { return func(m *Manager) { m.logger = l } }

// WithManagerHooks installs hooks on every task added to the manager.
func WithManagerHooks(h Hooks) ManagerOption { return func(m *Manager) { m.hooks = h } }

// WithAppender persists task and node events.
func WithAppender(a EventAppender) ManagerOption { return func(m *Manager) { m.appender = a } }

// WithStatusHook observes task status transitions.
func WithStatusHook(fn StatusHook) ManagerOption { return func(m *Manager) { m.onStatus = fn } }

// NewManager creates a Manager. Call Close to release its worker pool.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		tasks:    make(map[string]*managedTask),
		logger:   logging.Discard(),
		poolSize: 8,
	}
	for _, o := range opts {
		o(m)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.pool = NewWorkerPool(m.poolSize)
	m.bus = NewSignalBus()
	m.disp = newDispatcher(m.ctx, m.pool, m.bus)
	m.fsm = NewTaskFSM(m.appender)

	if m.appender != nil {
		rec := NewEventRecorder(m.appender, m.logger)
		m.hooks = ChainHooks(rec.Hooks(), m.hooks)
		m.bus.OnEmit = rec.RecordSignal
	}
	return m
}

// Close stops every running task and waits for in-flight asynchronous work.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	for _, id := range m.order {
		mt := m.tasks[id]
		if mt.status == schema.TaskStatusRunning || mt.status == schema.TaskStatusSuspended {
			_ = m.transition(ctx, mt, schema.TaskStatusStopped)
			_ = mt.task.Stop(ctx, m.step)
		}
	}
	m.mu.Unlock()

	m.cancel()
	m.pool.Shutdown()
}

// Signals returns the bus shared by all tasks of this manager.
func (m *Manager) Signals() *SignalBus { return m.bus }

// Step returns the current simulation step.
func (m *Manager) Step() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

// PoolMetrics returns the worker pool counters.
func (m *Manager) PoolMetrics() PoolMetrics { return m.pool.Metrics() }

// Add binds a task to the manager's host, hooks and logger. The task must
// not have started yet.
func (m *Manager) Add(t *Task) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[t.id]; exists {
		return "", schema.NewErrorf(schema.ErrCodeConflict, "task %q already registered", t.id)
	}
	t.attach(m.disp)
	t.hooks = ChainHooks(m.hooks, t.hooks)
	t.logger = m.logger
	m.tasks[t.id] = &managedTask{task: t, status: schema.TaskStatusIdle}
	m.order = append(m.order, t.id)
	return t.id, nil
}

// Remove stops a task if needed and forgets it.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.get(id)
	if err != nil {
		return err
	}
	if mt.status == schema.TaskStatusRunning || mt.status == schema.TaskStatusSuspended {
		if err := m.transition(ctx, mt, schema.TaskStatusStopped); err != nil {
			return err
		}
		_ = mt.task.Stop(ctx, m.step)
	}
	delete(m.tasks, id)
	for i, x := range m.order {
		if x == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Task returns a registered task.
func (m *Manager) Task(id string) (*Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, ok := m.tasks[id]
	if !ok {
		return nil, false
	}
	return mt.task, true
}

// Start begins a new step and triggers the task's entry node.
func (m *Manager) Start(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.get(id)
	if err != nil {
		return err
	}
	if mt.task.EntryNode() == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "task %s has no entry node", id)
	}
	if err := m.transition(ctx, mt, schema.TaskStatusRunning); err != nil {
		return err
	}
	now := time.Now().UTC()
	mt.startedAt, mt.completedAt = &now, nil

	m.step++
	ctx = logging.WithTaskID(ctx, id)
	m.logger.InfoContext(ctx, "task started", "step", m.step)
	if err := mt.task.Start(ctx, m.step); err != nil {
		return err
	}
	m.checkCompleted(ctx, mt)
	return nil
}

// Stop stops a running or suspended task.
func (m *Manager) Stop(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.get(id)
	if err != nil {
		return err
	}
	if err := m.transition(ctx, mt, schema.TaskStatusStopped); err != nil {
		return err
	}
	return mt.task.Stop(ctx, m.step)
}

// Suspend suspends a running task. Suspended tasks are not updated and
// their completions stay queued.
func (m *Manager) Suspend(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.get(id)
	if err != nil {
		return err
	}
	if err := m.transition(ctx, mt, schema.TaskStatusSuspended); err != nil {
		return err
	}
	return mt.task.Suspend(ctx, m.step)
}

// Resume resumes a suspended task.
func (m *Manager) Resume(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.get(id)
	if err != nil {
		return err
	}
	if mt.status != schema.TaskStatusSuspended {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition, "task %s is %s, not suspended", id, mt.status)
	}
	if err := m.transition(ctx, mt, schema.TaskStatusRunning); err != nil {
		return err
	}
	return mt.task.Resume(ctx, m.step)
}

// Continue resumes a node held by a breakpoint, in a new step.
func (m *Manager) Continue(ctx context.Context, id string, node NodeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, err := m.get(id)
	if err != nil {
		return err
	}
	if mt.status != schema.TaskStatusRunning {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition, "task %s is %s", id, mt.status)
	}
	m.step++
	if err := mt.task.Continue(ctx, node, m.step); err != nil {
		return err
	}
	m.drain(ctx, m.step)
	m.checkCompleted(ctx, mt)
	return nil
}

// Emit broadcasts a signal to every subscribed component, then applies the
// completions it caused.
func (m *Manager) Emit(ctx context.Context, name string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.step++
	m.bus.Emit(ctx, schema.Signal{Name: name, Payload: payload, Step: m.step})
	m.drain(ctx, m.step)
	m.checkAll(ctx)
}

// Tick advances the simulation by one step: queued completions are applied,
// running components are updated by delta, queued triggers replay once and
// finished tasks are marked completed.
func (m *Manager) Tick(ctx context.Context, delta time.Duration) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.step++
	step := m.step
	m.drain(ctx, step)
	for _, id := range m.order {
		if mt := m.tasks[id]; mt.status == schema.TaskStatusRunning {
			mt.task.Update(logging.WithTaskID(ctx, id), step, delta)
		}
	}
	for _, id := range m.order {
		if mt := m.tasks[id]; mt.status == schema.TaskStatusRunning {
			mt.task.StartPending(logging.WithTaskID(ctx, id), step)
		}
	}
	m.checkAll(ctx)
	return step
}

// Status describes one task.
func (m *Manager) Status(id string) (TaskInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, err := m.get(id)
	if err != nil {
		return TaskInfo{}, err
	}
	return m.info(mt), nil
}

// Graph describes the nodes and edges of one task.
func (m *Manager) Graph(id string) (TaskGraph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, err := m.get(id)
	if err != nil {
		return TaskGraph{}, err
	}
	return mt.task.Graph(), nil
}

// List describes every task in registration order, without node detail.
func (m *Manager) List() []TaskInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TaskInfo, 0, len(m.order))
	for _, id := range m.order {
		info := m.info(m.tasks[id])
		info.Nodes = nil
		out = append(out, info)
	}
	return out
}

func (m *Manager) info(mt *managedTask) TaskInfo {
	return TaskInfo{
		ID:          mt.task.id,
		Name:        mt.task.name,
		Status:      mt.status,
		Step:        m.step,
		Halted:      mt.task.Halted(),
		StartedAt:   mt.startedAt,
		CompletedAt: mt.completedAt,
		Nodes:       mt.task.Snapshot(),
	}
}

func (m *Manager) get(id string) (*managedTask, error) {
	mt, ok := m.tasks[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "task %q not found", id)
	}
	return mt, nil
}

func (m *Manager) transition(ctx context.Context, mt *managedTask, to schema.TaskStatus) error {
	from := mt.status
	if err := m.fsm.Transition(ctx, mt.task.id, from, to); err != nil {
		return err
	}
	mt.status = to
	if m.onStatus != nil {
		m.onStatus(ctx, mt.task.id, from, to)
	}
	return nil
}

// drain applies queued completions to running tasks. Completions for
// suspended or halted tasks stay queued; those for other tasks are dropped.
func (m *Manager) drain(ctx context.Context, step int64) {
	var keep []resolution
	for _, r := range m.disp.drain() {
		mt, ok := m.tasks[r.taskID]
		if !ok {
			continue
		}
		switch {
		case mt.status == schema.TaskStatusSuspended || (mt.status == schema.TaskStatusRunning && mt.task.Halted()):
			keep = append(keep, r)
		case mt.status == schema.TaskStatusRunning:
			mt.task.apply(logging.WithTaskID(ctx, r.taskID), r, step)
		}
	}
	m.disp.requeue(keep)
}

func (m *Manager) checkAll(ctx context.Context) {
	for _, id := range m.order {
		m.checkCompleted(ctx, m.tasks[id])
	}
}

func (m *Manager) checkCompleted(ctx context.Context, mt *managedTask) {
	if mt.status != schema.TaskStatusRunning || mt.task.Busy() || m.disp.pendingFor(mt.task.id) > 0 {
		return
	}
	if err := m.transition(ctx, mt, schema.TaskStatusCompleted); err != nil {
		m.logger.ErrorContext(ctx, "complete task", "task_id", mt.task.id, "error", err)
		return
	}
	now := time.Now().UTC()
	mt.completedAt = &now
	m.logger.InfoContext(logging.WithTaskID(ctx, mt.task.id), "task completed", "step", m.step)
}
