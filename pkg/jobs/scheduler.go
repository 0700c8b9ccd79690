package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pass is one run of a periodic background task.
type Pass func(context.Context) error

// SchedulerConfig configures a periodic pass.
type SchedulerConfig struct {
	Interval time.Duration
	// RunOnStart triggers a pass as soon as the scheduler starts.
	RunOnStart bool
	Logger     *zap.Logger
}

// Scheduler runs a named pass on a ticker. Passes never overlap: a trigger that
// arrives while a pass is running is coalesced into at most one follow-up run.
type Scheduler struct {
	name       string
	pass       Pass
	interval   time.Duration
	runOnStart bool
	logger     *zap.Logger

	trigger chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewScheduler builds a scheduler for the given pass.
func NewScheduler(name string, pass Pass, cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Scheduler{
		name:       name,
		pass:       pass,
		interval:   cfg.Interval,
		runOnStart: cfg.RunOnStart,
		logger:     cfg.Logger,
		trigger:    make(chan struct{}, 1),
	}
}

// Name returns the scheduler name.
func (s *Scheduler) Name() string {
	return s.name
}

// Start begins the ticker loop. Safe to call once.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop()
	s.started = true
	s.logger.Sugar().Infow("scheduler started", "scheduler", s.name, "interval", s.interval.String())
}

// Stop cancels the running pass and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.started = false
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Sugar().Infow("scheduler stopped", "scheduler", s.name)
}

// Trigger requests an immediate pass. It never blocks.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if s.runOnStart {
		s.run()
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.run()
		case <-s.trigger:
			s.run()
		}
	}
}

func (s *Scheduler) run() {
	if s.ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := s.pass(s.ctx); err != nil {
		s.logger.Sugar().Errorw("scheduled pass failed", "scheduler", s.name, "duration", time.Since(start).String(), "error", err)
		return
	}
	s.logger.Sugar().Debugw("scheduled pass completed", "scheduler", s.name, "duration", time.Since(start).String())
}
