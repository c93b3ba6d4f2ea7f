// Package worker runs periodic jobs whose cycles never overlap: a tick that
// arrives while the previous cycle is still running is dropped.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tokenpay_worker_cycles_total",
		Help: "Completed worker cycles by loop and result",
	}, []string{"loop", "result"})

	skippedTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tokenpay_worker_skipped_ticks_total",
		Help: "Ticks dropped because the previous cycle was still running",
	}, []string{"loop"})

	cycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tokenpay_worker_cycle_duration_seconds",
		Help:    "Worker cycle duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"loop"})
)

type Task func(ctx context.Context) error

type Loop struct {
	name     string
	interval time.Duration
	task     Task
	logger   *zap.Logger

	running sync.Mutex
	wg      sync.WaitGroup
}

func New(name string, interval time.Duration, task Task, logger *zap.Logger) *Loop {
	return &Loop{
		name:     name,
		interval: interval,
		task:     task,
		logger:   logger.With(zap.String("loop", name)),
	}
}

// Run starts a cycle every interval until ctx is done, then waits for the
// cycle in flight.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	defer l.wg.Wait()

	l.logger.Info("loop started", zap.Duration("interval", l.interval))
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("loop stopped")
			return nil
		case <-ticker.C:
			l.wg.Add(1)
			go func() {
				defer l.wg.Done()
				l.Trigger(ctx)
			}()
		}
	}
}

// Trigger runs one cycle now unless one is already running. It reports
// whether the cycle ran.
func (l *Loop) Trigger(ctx context.Context) bool {
	if !l.running.TryLock() {
		skippedTicks.WithLabelValues(l.name).Inc()
		l.logger.Debug("previous cycle still running, tick skipped")
		return false
	}
	defer l.running.Unlock()

	start := time.Now()
	err := l.runTask(ctx)
	cycleDuration.WithLabelValues(l.name).Observe(time.Since(start).Seconds())
	if err != nil {
		cyclesTotal.WithLabelValues(l.name, "error").Inc()
		l.logger.Error("cycle failed", zap.Error(err))
		return true
	}
	cyclesTotal.WithLabelValues(l.name, "ok").Inc()
	return true
}

func (l *Loop) runTask(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return l.task(ctx)
}
