package reminder

import (
	"context"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/domain"
	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/notify"
	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/timeutil"
	"github.com/jalenchen0/taskforce-bot/logger"
)

const (
	DefaultPollInterval = time.Minute
	Title               = "🔔 Reminder"
)

var (
	clk = clock.New()
)

// Gateway is the part of the persistence gateway the scheduler needs.
type Gateway interface {
	GetDueReminders(ctx context.Context, w timeutil.Window) ([]domain.Reminder, error)
	DeleteReminder(ctx context.Context, id string) error
}

// PollResult describes one completed poll.
type PollResult struct {
	At        time.Time
	Window    timeutil.Window
	Due       int
	Delivered int
	Deleted   int
	Err       error
}

// Scheduler periodically delivers due reminders and deletes them afterwards.
// Delivery is at most once: a reminder is deleted even if its delivery
// failed.
type Scheduler struct {
	db       Gateway
	sink     notify.Sink
	logger   *zap.SugaredLogger
	interval time.Duration
	clk      clock.Clock

	cron   *cron.Cron
	cancel context.CancelFunc

	pollMu sync.Mutex // one poll at a time

	mu     sync.Mutex
	anchor time.Time // end of the last successful window
	last   PollResult
}

// NewScheduler creates a scheduler polling every interval (one minute if
// interval isn't positive).
func NewScheduler(d Gateway, sink notify.Sink, interval time.Duration, l *zap.SugaredLogger) *Scheduler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Scheduler{
		db:       d,
		sink:     sink,
		logger:   l,
		interval: interval,
		clk:      clk,
	}
}

// Start schedules polls every interval until Stop is called. The first poll
// happens one interval after Start.
func (s *Scheduler) Start() error {
	ctx, cancel := context.WithCancel(context.Background())

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc("@every "+s.interval.String(), func() {
		_, _ = s.Poll(ctx)
	})
	if err != nil {
		cancel()
		return errors.Wrap(err, "failed scheduling reminder polls")
	}

	s.cron = c
	s.cancel = cancel
	c.Start()

	s.logger.Infof("polling reminders every %v", s.interval)
	return nil
}

// Stop stops scheduling polls and waits for the one in flight, if any. When
// ctx expires first, the in-flight poll is cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	defer s.cancel()

	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll runs a single poll: it fetches the reminders due in the current
// window, delivers all of them, then deletes all of them. Failures of single
// deliveries or deletions are logged and don't stop the batch.
//
// The window starts where the last successful one ended, so consecutive
// windows are contiguous. The first window is one interval long. A failed
// fetch leaves the start where it was, and the next poll covers the gap.
// While the clock is behind the last window, polls are skipped.
func (s *Scheduler) Poll(ctx context.Context) (PollResult, error) {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	now := s.clk.Now().UTC()

	s.mu.Lock()
	start := s.anchor
	s.mu.Unlock()

	res := PollResult{At: now, Window: timeutil.WindowBetween(start, now)}
	switch {
	case start.IsZero():
		res.Window = timeutil.WindowEnding(now, s.interval)
	case start.After(now):
		res.Window = timeutil.WindowBetween(start, start)
		s.logger.Warnw("clock went back past the last window; skipping poll", "anchor", start, "now", now)
	}

	if res.Window.Length() <= 0 {
		s.record(res, false)
		return res, nil
	}

	due, err := s.db.GetDueReminders(ctx, res.Window)
	if err != nil {
		res.Err = err
		s.logger.Errorw("failed fetching due reminders", "window", res.Window, "err", err)
		s.record(res, false)
		return res, err
	}
	res.Due = len(due)

	for _, r := range due {
		if ctx.Err() != nil {
			break
		}

		_, err := s.sink.Deliver(ctx, r.OwnerID, notify.Content{Title: Title, Body: r.Message})
		if err != nil {
			logger.ForUser(s.logger, r.OwnerID).Errorw("failed delivering reminder", "id", r.ID, "err", err)
			continue
		}
		res.Delivered++
	}

	// cancelled mid-batch: leave the window unconsumed
	if err := ctx.Err(); err != nil {
		res.Err = err
		s.record(res, false)
		return res, err
	}

	for _, r := range due {
		if err := s.db.DeleteReminder(ctx, r.ID); err != nil {
			logger.ForUser(s.logger, r.OwnerID).Errorw("failed deleting reminder", "id", r.ID, "err", err)
			continue
		}
		res.Deleted++
	}

	if res.Due > 0 {
		s.logger.Infow("reminders polled", "window", res.Window,
			"due", res.Due, "delivered", res.Delivered, "deleted", res.Deleted)
	}

	s.record(res, true)
	return res, nil
}

// LastPoll returns the result of the latest poll, if there was one.
func (s *Scheduler) LastPoll() (PollResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, !s.last.At.IsZero()
}

func (s *Scheduler) record(res PollResult, advance bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.last = res
	if advance {
		s.anchor = res.Window.End
	}
}
