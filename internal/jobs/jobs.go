package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"

	"github.com/8by8-org/challenge-api/internal/logging"
	"github.com/8by8-org/challenge-api/internal/services"
)

// Task is a maintenance job that deletes rows and reports how many.
type Task struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) (int64, error)
}

// OTPPurge removes expired and consumed passcodes.
func OTPPurge(otp *services.OTPService, every time.Duration) Task {
	return Task{Name: "otp-purge", Every: every, Run: otp.PurgeExpired}
}

// LogRetention removes system_logs rows older than retention.
func LogRetention(db *gorm.DB, retention, every time.Duration) Task {
	return Task{
		Name:  "log-retention",
		Every: every,
		Run: func(ctx context.Context) (int64, error) {
			return logging.PurgeSystemLogs(ctx, db, retention)
		},
	}
}

type Scheduler struct {
	sched  gocron.Scheduler
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// New registers tasks on a gocron scheduler. Each task runs once at start
// and then every Task.Every; a run never overlaps the previous one.
func New(logger *slog.Logger, tasks ...Task) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{sched: sched, ctx: ctx, cancel: cancel, logger: logger}
	for _, t := range tasks {
		_, err := sched.NewJob(
			gocron.DurationJob(t.Every),
			gocron.NewTask(s.run, t),
			gocron.WithName(t.Name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			cancel()
			_ = sched.Shutdown()
			return nil, fmt.Errorf("register %s: %w", t.Name, err)
		}
	}
	return s, nil
}

func (s *Scheduler) run(t Task) {
	start := time.Now()
	n, err := t.Run(s.ctx)
	if err != nil {
		s.logger.Error("maintenance job failed", "component", "jobs", "job", t.Name, "error", err)
		return
	}
	s.logger.Info("maintenance job finished", "component", "jobs", "job", t.Name,
		"deleted", n, "latency_ms", time.Since(start).Milliseconds())
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

// Shutdown cancels running tasks and waits for them to return.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	return s.sched.Shutdown()
}
