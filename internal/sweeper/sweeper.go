// Package sweeper closes polls whose deadline has passed. Votes on an
// expired poll are already rejected at read time; the sweeper makes the
// closed state durable so clients see it without voting first.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"chatsphere/pkg/logger"
	"chatsphere/pkg/mutate"
	"chatsphere/pkg/store"
)

// Start launches the poll sweep scheduler. Returns a cancel func. An empty
// cron expression maps to every five minutes.
func Start(ctx context.Context, cronExpr string) (context.CancelFunc, error) {
	if cronExpr == "" {
		cronExpr = "*/5 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid poll sweep cron expression: %s", cronExpr)
	}

	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr)
	logger.Info("poll_sweeper_started", "cron", cronExpr)
	return cancel, nil
}

func runScheduler(ctx context.Context, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("poll_sweeper_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("poll_sweep_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			logger.Info("poll_sweeper_stopping")
			return
		}

		if err := RunOnce(); err != nil {
			logger.Error("poll_sweep_error", "error", err)
		}
	}
}

// RunOnce scans the feed and closes every open poll past its deadline.
// Exported so admin triggers and tests can sweep on demand.
func RunOnce() error {
	msgs, err := store.ListMessages()
	if err != nil {
		return err
	}
	now := time.Now().UTC().UnixNano()
	closed := 0
	for i := range msgs {
		m := &msgs[i]
		if !m.IsPoll() || m.Closed {
			continue
		}
		if m.Settings == nil || m.Settings.EndsAt == 0 || m.Settings.EndsAt > now {
			continue
		}
		if err := mutate.ClosePoll(m.ID); err != nil {
			logger.Warn("poll_sweep_close_failed", "poll", m.ID, "error", err)
			continue
		}
		closed++
	}
	if closed > 0 {
		logger.Info("poll_sweep_done", "closed", closed)
	}
	return nil
}
