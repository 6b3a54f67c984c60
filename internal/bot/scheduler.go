package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/edgard/narratorbot/internal/bot/tasks"
	"github.com/edgard/narratorbot/internal/config"
)

// Scheduler runs the housekeeping tasks listed under scheduler.tasks on
// their cron schedules. Runs of the same task never overlap, and every run
// sees a context that is cancelled when the scheduler stops.
type Scheduler struct {
	cron    gocron.Scheduler
	logger  *slog.Logger
	cfg     *config.SchedulerConfig
	taskMap map[string]tasks.ScheduledTaskFunc

	mu      sync.Mutex
	running bool
	runCtx  context.Context
	stopRun context.CancelFunc
}

// NewScheduler prepares a scheduler for the configured tasks. Nothing runs
// until Start.
func NewScheduler(logger *slog.Logger, cfg *config.SchedulerConfig, taskMap map[string]tasks.ScheduledTaskFunc) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create cron scheduler: %w", err)
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron,
		logger:  logger.With("component", "scheduler"),
		cfg:     cfg,
		taskMap: taskMap,
		runCtx:  runCtx,
		stopRun: stopRun,
	}, nil
}

// Start registers every enabled task that has an implementation and starts
// the cron loop. It returns how many tasks were registered. A task with an
// invalid schedule aborts Start.
func (s *Scheduler) Start() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return 0, fmt.Errorf("scheduler is already running")
	}

	registered := 0
	if s.cfg != nil {
		for name, taskCfg := range s.cfg.Tasks {
			ok, err := s.register(name, taskCfg)
			if err != nil {
				return registered, err
			}
			if ok {
				registered++
			}
		}
	}
	if registered == 0 {
		s.logger.Warn("No housekeeping tasks registered")
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("Scheduler started", "tasks", registered)
	return registered, nil
}

// register adds one task to the cron loop. It reports false for tasks that
// are disabled or not available in this deployment.
func (s *Scheduler) register(name string, taskCfg config.TaskConfig) (bool, error) {
	if !taskCfg.Enabled {
		s.logger.Info("Task disabled", "task", name)
		return false, nil
	}
	run, ok := s.taskMap[name]
	if !ok {
		s.logger.Debug("Task has no implementation in this deployment", "task", name)
		return false, nil
	}

	_, err := s.cron.NewJob(
		gocron.CronJob(taskCfg.Schedule, true),
		gocron.NewTask(s.runTask, name, run),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return false, fmt.Errorf("failed to schedule task %s with %q: %w", name, taskCfg.Schedule, err)
	}

	s.logger.Info("Task registered", "task", name, "schedule", taskCfg.Schedule)
	return true, nil
}

func (s *Scheduler) runTask(name string, run tasks.ScheduledTaskFunc) {
	startTime := time.Now()
	if err := run(s.runCtx); err != nil {
		s.logger.Error("Task run failed", "task", name, "error", err, "duration", time.Since(startTime))
		return
	}
	s.logger.Debug("Task run finished", "task", name, "duration", time.Since(startTime))
}

// Stop cancels running tasks and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	s.stopRun()
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	s.logger.Info("Scheduler stopped")
	return nil
}
