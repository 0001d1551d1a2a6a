package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/router/clock"
	"github.com/xraph/router/dispatcher"
	"github.com/xraph/router/store"
)

// cronParser supports standard 5-field cron and descriptors like "@every 5m".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// janitor runs scheduled maintenance: a full expiry sweep, a dispatch
// pass over every queue, and a closed-job retention purge. It is the
// reconciliation backstop under the dispatcher's event-driven loops, and
// the only path that re-arms offers persisted by a previous process.
type janitor struct {
	d         *dispatcher.Dispatcher
	store     store.Store
	sched     cronlib.Schedule
	retention time.Duration
	clk       clock.Clock
	logger    *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newJanitor(d *dispatcher.Dispatcher, st store.Store, schedule string, retention time.Duration, clk clock.Clock, logger *slog.Logger) (*janitor, error) {
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return nil, err
	}
	return &janitor{
		d:         d,
		store:     st,
		sched:     sched,
		retention: retention,
		clk:       clk,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}, nil
}

// Start launches the maintenance loop. The first run fires immediately so
// a restarted process reconciles persisted state without waiting a full
// schedule interval.
func (jn *janitor) Start() {
	jn.wg.Add(1)
	go jn.loop()
}

// Stop signals the loop and waits for it to finish.
func (jn *janitor) Stop() {
	close(jn.stopCh)
	jn.wg.Wait()
}

func (jn *janitor) loop() {
	defer jn.wg.Done()

	jn.runOnce(context.Background())

	for {
		now := time.Now()
		timer := time.NewTimer(jn.sched.Next(now).Sub(now))
		select {
		case <-jn.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			jn.runOnce(context.Background())
		}
	}
}

// runOnce performs one maintenance cycle.
func (jn *janitor) runOnce(ctx context.Context) {
	if err := jn.d.SweepExpired(ctx); err != nil {
		jn.logger.Error("janitor: expiry sweep failed", slog.String("error", err.Error()))
	}
	if err := jn.d.PassAll(ctx); err != nil {
		jn.logger.Error("janitor: dispatch pass failed", slog.String("error", err.Error()))
	}

	if jn.retention <= 0 {
		return
	}
	cutoff := jn.clk.Now().Add(-jn.retention)
	purged, err := jn.store.PurgeFinishedJobs(ctx, cutoff)
	if err != nil {
		jn.logger.Error("janitor: purge failed", slog.String("error", err.Error()))
		return
	}
	if purged > 0 {
		jn.logger.Info("janitor: purged finished jobs", slog.Int64("count", purged))
	}
}
