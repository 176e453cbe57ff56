package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/dealflow/internal/application/retention"
)

// RetentionWorkerConfig holds configuration for the retention worker
type RetentionWorkerConfig struct {
	Interval     time.Duration
	SweepTimeout time.Duration
}

// DefaultRetentionWorkerConfig returns default configuration
func DefaultRetentionWorkerConfig() RetentionWorkerConfig {
	return RetentionWorkerConfig{
		Interval:     5 * time.Minute,
		SweepTimeout: time.Minute,
	}
}

// RetentionWorker runs the retention sweeper on a fixed interval
type RetentionWorker struct {
	config  RetentionWorkerConfig
	sweeper retention.Sweeper
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	runs      int
	failures  int
	lastRun   time.Time
	lastError error
}

// NewRetentionWorker creates a new retention worker
func NewRetentionWorker(config RetentionWorkerConfig, sweeper retention.Sweeper, logger *zap.Logger) *RetentionWorker {
	if config.Interval <= 0 {
		config.Interval = DefaultRetentionWorkerConfig().Interval
	}
	if config.SweepTimeout <= 0 {
		config.SweepTimeout = DefaultRetentionWorkerConfig().SweepTimeout
	}
	return &RetentionWorker{
		config:  config,
		sweeper: sweeper,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the sweep loop. The first sweep runs immediately.
func (w *RetentionWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("retention worker already running")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.isRunning = true
	w.mu.Unlock()

	w.logger.Info("RetentionWorker started", zap.Duration("interval", w.config.Interval))

	go w.loop(w.ctx, w.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep to return
func (w *RetentionWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.mu.RLock()
	w.logger.Info("RetentionWorker stopped", zap.Int("runs", w.runs), zap.Int("failures", w.failures))
	w.mu.RUnlock()
	return nil
}

// Name returns the worker name for identification
func (w *RetentionWorker) Name() string {
	return "RetentionWorker"
}

// Status reports the worker's runtime state
func (w *RetentionWorker) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()

	status := Status{
		Running:  w.isRunning,
		Runs:     w.runs,
		Failures: w.failures,
	}
	if w.lastError != nil {
		status.LastError = w.lastError.Error()
	}
	return status
}

func (w *RetentionWorker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepOnce(ctx)
		}
	}
}

func (w *RetentionWorker) sweepOnce(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, w.config.SweepTimeout)
	defer cancel()

	_, err := w.sweeper.Sweep(sweepCtx, w.now())

	w.mu.Lock()
	defer w.mu.Unlock()
	w.runs++
	w.lastRun = w.now()
	w.lastError = err
	if err != nil {
		w.failures++
		w.logger.Error("Retention sweep failed", zap.Error(err))
	}
}
