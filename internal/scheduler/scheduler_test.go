package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/callgraph/internal/engine"
	"github.com/rendis/callgraph/internal/nodes"
	"github.com/rendis/callgraph/pkg/schema"
)

// mockDriver records ticks and starts.
type mockDriver struct {
	mu       sync.Mutex
	deltas   []time.Duration
	started  []string
	statuses map[string]schema.TaskStatus
	startErr error
}

func newMockDriver() *mockDriver {
	return &mockDriver{statuses: make(map[string]schema.TaskStatus)}
}

func (d *mockDriver) Tick(_ context.Context, delta time.Duration) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deltas = append(d.deltas, delta)
	return int64(len(d.deltas))
}

func (d *mockDriver) Start(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.started = append(d.started, id)
	d.statuses[id] = schema.TaskStatusRunning
	return nil
}

func (d *mockDriver) Status(id string) (engine.TaskInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.statuses[id]
	if !ok {
		return engine.TaskInfo{}, schema.NewErrorf(schema.ErrCodeNotFound, "task %q not found", id)
	}
	return engine.TaskInfo{ID: id, Status: st}, nil
}

func (d *mockDriver) tickCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.deltas)
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestScheduler(d Driver) *Scheduler {
	s := NewScheduler(d, 10*time.Millisecond, testLogger())
	s.now = func() time.Time { return base }
	return s
}

func TestNewScheduler_DefaultInterval(t *testing.T) {
	s := NewScheduler(newMockDriver(), 0, testLogger())
	assert.Equal(t, DefaultInterval, s.Interval())
}

func TestTick_DeltaIsElapsedTime(t *testing.T) {
	d := newMockDriver()
	s := newTestScheduler(d)
	ctx := context.Background()

	assert.Equal(t, int64(1), s.tick(ctx, base))
	s.tick(ctx, base.Add(250*time.Millisecond))
	s.tick(ctx, base.Add(300*time.Millisecond))
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 250 * time.Millisecond, 50 * time.Millisecond}, d.deltas)
}

func TestAddSchedule(t *testing.T) {
	s := newTestScheduler(newMockDriver())

	require.NoError(t, s.AddSchedule("b", "*/5 * * * *"))
	require.NoError(t, s.AddSchedule("a", "@hourly"))

	entries := s.Schedules()
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].TaskID)
	assert.Equal(t, base.Add(5*time.Minute), entries[0].NextRunAt)
	assert.Equal(t, base.Add(time.Hour), entries[1].NextRunAt)

	err := s.AddSchedule("c", "whenever")
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	assert.True(t, s.RemoveSchedule("a"))
	assert.False(t, s.RemoveSchedule("a"))
	assert.Len(t, s.Schedules(), 1)
}

func TestTick_StartsDueTasks(t *testing.T) {
	d := newMockDriver()
	d.statuses["job"] = schema.TaskStatusIdle
	s := newTestScheduler(d)
	require.NoError(t, s.AddSchedule("job", "*/5 * * * *"))
	ctx := context.Background()

	s.tick(ctx, base.Add(time.Minute))
	assert.Empty(t, d.started)

	due := base.Add(5 * time.Minute)
	s.tick(ctx, due)
	assert.Equal(t, []string{"job"}, d.started)

	entry := s.Schedules()[0]
	require.NotNil(t, entry.LastRunAt)
	assert.Equal(t, due, *entry.LastRunAt)
	assert.Equal(t, base.Add(10*time.Minute), entry.NextRunAt)
	assert.Empty(t, entry.LastError)
}

func TestTick_SkipsActiveTasks(t *testing.T) {
	d := newMockDriver()
	d.statuses["job"] = schema.TaskStatusSuspended
	s := newTestScheduler(d)
	require.NoError(t, s.AddSchedule("job", "@every 1m"))

	s.tick(context.Background(), base.Add(time.Minute))
	assert.Empty(t, d.started)
	assert.Equal(t, base.Add(2*time.Minute), s.Schedules()[0].NextRunAt)
}

func TestTick_RecordsStartErrors(t *testing.T) {
	d := newMockDriver()
	s := newTestScheduler(d)
	require.NoError(t, s.AddSchedule("ghost", "@every 1m"))

	s.tick(context.Background(), base.Add(time.Minute))
	assert.Contains(t, s.Schedules()[0].LastError, "not found")

	d.statuses["ghost"] = schema.TaskStatusCompleted
	d.startErr = errors.New("boom")
	s.tick(context.Background(), base.Add(2*time.Minute))
	assert.Equal(t, "boom", s.Schedules()[0].LastError)
	assert.Equal(t, 2, d.tickCount())
}

func TestCalculateNextRun(t *testing.T) {
	next, err := CalculateNextRun("0 12 * * *", base)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), next)

	next, err = CalculateNextRun("30 * * * * *", base)
	require.NoError(t, err)
	assert.Equal(t, base.Add(30*time.Second), next)

	_, err = CalculateNextRun("not a cron", base)
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	d := newMockDriver()
	s := NewScheduler(d, 5*time.Millisecond, testLogger())
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	assert.True(t, schema.HasCode(s.Start(ctx), schema.ErrCodeConflict))

	assert.Eventually(t, func() bool { return d.tickCount() >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())

	n := d.tickCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, d.tickCount())
}

func TestStop_OnContextCancel(t *testing.T) {
	s := NewScheduler(newMockDriver(), 5*time.Millisecond, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()
	require.NoError(t, s.Stop())
}

func TestScheduler_DrivesManager(t *testing.T) {
	m := engine.NewManager()
	t.Cleanup(func() { m.Close(context.Background()) })

	reg, err := nodes.NewRegistry(nodes.Config{})
	require.NoError(t, err)
	task, err := engine.BuildTask(&schema.TaskDefinition{
		Name: "pause",
		Nodes: []schema.NodeDefinition{
			{ID: "wait", Kind: nodes.KindDelay, Inputs: map[string]any{"Duration": "20ms"}},
		},
	}, reg)
	require.NoError(t, err)
	id, err := m.Add(task)
	require.NoError(t, err)

	s := NewScheduler(m, 5*time.Millisecond, testLogger())
	require.NoError(t, m.Start(context.Background(), id))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })

	assert.Eventually(t, func() bool {
		info, err := m.Status(id)
		return err == nil && info.Status == schema.TaskStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)
}
