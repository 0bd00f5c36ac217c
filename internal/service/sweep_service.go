package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/carepath-api/pkg/jobs"
)

// Job types understood by the sweep queue.
const (
	SweepOverdue = "sweep.overdue"
	SweepMissed  = "sweep.missed"
)

type overdueSweeper interface {
	SweepOverdue(ctx context.Context) (int, error)
}

type missedSweeper interface {
	SweepMissed(ctx context.Context) (int, error)
}

// SweepConfig tunes the background sweep queue.
type SweepConfig struct {
	Interval   time.Duration
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// SweepService runs the overdue and missed sweeps, either on demand or on a schedule.
type SweepService struct {
	prescriptions overdueSweeper
	sessions      missedSweeper
	cfg           SweepConfig
	logger        *zap.Logger
	queue         *jobs.Queue
}

func NewSweepService(prescriptions overdueSweeper, sessions missedSweeper, cfg SweepConfig, logger *zap.Logger) *SweepService {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SweepService{prescriptions: prescriptions, sessions: sessions, cfg: cfg, logger: logger}
	s.queue = jobs.NewQueue("sweeps", s.Handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Run executes one sweep by job type and returns the number of rows changed.
func (s *SweepService) Run(ctx context.Context, sweep string) (int, error) {
	switch sweep {
	case SweepOverdue:
		return s.prescriptions.SweepOverdue(ctx)
	case SweepMissed:
		return s.sessions.SweepMissed(ctx)
	}
	return 0, fmt.Errorf("unknown sweep %q", sweep)
}

// Handle adapts Run to the job queue.
func (s *SweepService) Handle(ctx context.Context, job jobs.Job) error {
	updated, err := s.Run(ctx, job.Type)
	if err != nil {
		return err
	}
	s.logger.Info("sweep completed", zap.String("sweep", job.Type), zap.Int("updated", updated), zap.Int("attempt", job.Attempt))
	return nil
}

// Start launches the workers and the ticker. It returns immediately; cancel ctx
// and call Stop to shut down.
func (s *SweepService) Start(ctx context.Context) {
	s.queue.Start(ctx)
	go jobs.Schedule(ctx, s.queue, s.cfg.Interval, s.logger, SweepOverdue, SweepMissed)
}

func (s *SweepService) Stop() {
	s.queue.Stop()
}
