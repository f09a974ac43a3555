// Package service is the facade the CLI, the MCP server and the HTTP panel
// drive: it loads task definitions into a Manager and forwards lifecycle
// commands to it.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/rendis/callgraph/internal/component"
	"github.com/rendis/callgraph/internal/engine"
	"github.com/rendis/callgraph/internal/logging"
	"github.com/rendis/callgraph/internal/scheduler"
	"github.com/rendis/callgraph/internal/store"
	"github.com/rendis/callgraph/internal/validation"
	"github.com/rendis/callgraph/pkg/schema"
)

// Scheduler keeps the cron schedules of loaded tasks. *scheduler.Scheduler
// implements it.
type Scheduler interface {
	AddSchedule(taskID, spec string) error
	RemoveSchedule(taskID string) bool
	Schedules() []scheduler.Entry
}

// Deps holds the collaborators of a Service. Store and Scheduler are
// optional.
type Deps struct {
	Manager   *engine.Manager
	Registry  *component.Registry
	Validator *validation.TaskValidator
	Store     store.Store
	Scheduler Scheduler
	Logger    *slog.Logger
}

// LoadResult reports a loaded task.
type LoadResult struct {
	TaskID    string                   `json:"task_id"`
	Name      string                   `json:"name"`
	Scheduled bool                     `json:"scheduled,omitempty"`
	Warnings  []schema.ValidationIssue `json:"warnings,omitempty"`
}

// SignalResult reports an emitted signal.
type SignalResult struct {
	Name      string `json:"name"`
	Delivered int    `json:"delivered"`
	Step      int64  `json:"step"`
}

// Service loads and controls tasks.
type Service struct {
	manager   *engine.Manager
	registry  *component.Registry
	validator *validation.TaskValidator
	store     store.Store
	scheduler Scheduler
	logger    *slog.Logger
}

// New creates a Service. A missing validator is built over the registry.
func New(deps Deps) (*Service, error) {
	if deps.Manager == nil || deps.Registry == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "service needs a manager and a registry")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Validator == nil {
		v, err := validation.NewTaskValidator(deps.Registry)
		if err != nil {
			return nil, err
		}
		deps.Validator = v
	}
	return &Service{
		manager:   deps.Manager,
		registry:  deps.Registry,
		validator: deps.Validator,
		store:     deps.Store,
		scheduler: deps.Scheduler,
		logger:    deps.Logger,
	}, nil
}

// Manager returns the managed engine.
func (s *Service) Manager() *engine.Manager { return s.manager }

// Registry returns the component registry tasks are built from.
func (s *Service) Registry() *component.Registry { return s.registry }

// Validate runs the validation pipeline on def.
func (s *Service) Validate(def *schema.TaskDefinition) *schema.ValidationResult {
	return s.validator.Validate(def)
}

// Load validates def, builds its task and registers it with the manager.
// The run is persisted when a store is configured, and scheduled when the
// definition carries a schedule and a scheduler is configured.
func (s *Service) Load(ctx context.Context, def *schema.TaskDefinition) (*LoadResult, error) {
	result := s.validator.Validate(def)
	if err := result.ToError(); err != nil {
		return nil, err
	}

	task, err := engine.BuildTask(def, s.registry)
	if err != nil {
		return nil, err
	}
	id, err := s.manager.Add(task)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithTaskID(ctx, id)

	if s.store != nil {
		now := time.Now().UTC()
		run := &store.Run{
			ID:         id,
			Name:       def.Name,
			Definition: *def,
			Status:     schema.TaskStatusIdle,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.store.CreateRun(ctx, run); err != nil {
			s.rollback(ctx, id, false)
			return nil, err
		}
	}

	out := &LoadResult{TaskID: id, Name: def.Name, Warnings: result.Warnings}
	if def.Schedule != "" && s.scheduler != nil {
		if err := s.scheduler.AddSchedule(id, def.Schedule); err != nil {
			s.rollback(ctx, id, s.store != nil)
			return nil, err
		}
		out.Scheduled = true
	}

	s.logger.InfoContext(ctx, "task loaded", "name", def.Name, "nodes", len(def.Nodes), "warnings", len(result.Warnings))
	return out, nil
}

// rollback undoes a partial Load: the task leaves the manager and, when
// persisted, its run is deleted.
func (s *Service) rollback(ctx context.Context, id string, persisted bool) {
	if err := s.manager.Remove(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "rollback: remove task", "error", err)
	}
	if !persisted {
		return
	}
	if err := s.store.DeleteRun(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "rollback: delete run", "error", err)
	}
}

// Unload stops a task, drops its schedule and forgets it. The persisted
// run stays.
func (s *Service) Unload(ctx context.Context, id string) error {
	if s.scheduler != nil {
		s.scheduler.RemoveSchedule(id)
	}
	return s.manager.Remove(ctx, id)
}

// Start starts or restarts a task.
func (s *Service) Start(ctx context.Context, id string) (engine.TaskInfo, error) {
	if err := s.manager.Start(ctx, id); err != nil {
		return engine.TaskInfo{}, err
	}
	return s.manager.Status(id)
}

// Control applies a lifecycle command. Continue needs the halted node.
func (s *Service) Control(ctx context.Context, id string, action schema.ControlAction, node string) (engine.TaskInfo, error) {
	var err error
	switch action {
	case schema.ControlStop:
		err = s.manager.Stop(ctx, id)
	case schema.ControlSuspend:
		err = s.manager.Suspend(ctx, id)
	case schema.ControlResume:
		err = s.manager.Resume(ctx, id)
	case schema.ControlContinue:
		if node == "" {
			return engine.TaskInfo{}, schema.NewError(schema.ErrCodeValidation, "continue needs a node id")
		}
		err = s.manager.Continue(ctx, id, engine.NodeID(node))
	default:
		return engine.TaskInfo{}, schema.NewErrorf(schema.ErrCodeValidation, "unknown control action %q", action)
	}
	if err != nil {
		return engine.TaskInfo{}, err
	}
	return s.manager.Status(id)
}

// Signal broadcasts a signal to every task of the manager.
func (s *Service) Signal(ctx context.Context, name string, payload any) (SignalResult, error) {
	if name == "" {
		return SignalResult{}, schema.NewError(schema.ErrCodeValidation, "signal name is required")
	}
	delivered := s.manager.Signals().Subscribers(name)
	s.manager.Emit(ctx, name, payload)
	return SignalResult{Name: name, Delivered: delivered, Step: s.manager.Step()}, nil
}

// Status describes one task with its nodes.
func (s *Service) Status(id string) (engine.TaskInfo, error) {
	return s.manager.Status(id)
}

// List describes every loaded task.
func (s *Service) List() []engine.TaskInfo {
	return s.manager.List()
}

// Schedules lists the cron schedules, if a scheduler is configured.
func (s *Service) Schedules() []scheduler.Entry {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Schedules()
}

// Events returns the persisted events of a run after sequence since.
func (s *Service) Events(ctx context.Context, id string, since int64) ([]*store.Event, error) {
	if s.store == nil {
		return nil, schema.NewError(schema.ErrCodeStore, "no store configured")
	}
	return s.store.GetEvents(ctx, id, since)
}

// Runs lists persisted runs.
func (s *Service) Runs(ctx context.Context, filter store.RunFilter) ([]*store.Run, error) {
	if s.store == nil {
		return nil, schema.NewError(schema.ErrCodeStore, "no store configured")
	}
	return s.store.ListRuns(ctx, filter)
}
