package pomodoro

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"

	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/domain"
	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/notify"
	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/timeutil"
	"github.com/jalenchen0/taskforce-bot/logger"
)

const (
	DefaultTick         = time.Second
	DefaultRefreshEvery = 5

	stopHint = "Type /pomodoro stop to end your session"
)

var (
	clk = clock.New()

	ErrShuttingDown = domain.NewError(domain.ErrCodeConflict, "pomodoro is shutting down")
)

// Gateway is the part of the persistence gateway the engine needs.
type Gateway interface {
	GetPomodoroSettings(ctx context.Context, usr int64) (*domain.PomodoroSettings, error)
}

type Config struct {
	Tick         time.Duration // length of one countdown second
	RefreshEvery int           // status refresh period, in ticks
	Cycle        Cycle
}

// Engine runs one countdown goroutine per active session.
type Engine struct {
	db     Gateway
	sink   notify.Sink
	logger *zap.SugaredLogger
	cfg    Config
	clk    clock.Clock

	root   context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[int64]*session
	closed   bool
}

func NewEngine(d Gateway, sink notify.Sink, cfg Config, l *zap.SugaredLogger) *Engine {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.RefreshEvery <= 0 {
		cfg.RefreshEvery = DefaultRefreshEvery
	}

	root, cancel := context.WithCancel(context.Background())
	return &Engine{
		db:       d,
		sink:     sink,
		logger:   l,
		cfg:      cfg,
		clk:      clk,
		root:     root,
		cancel:   cancel,
		sessions: make(map[int64]*session),
	}
}

// Start begins a work phase for usr with the user's saved settings, or the
// defaults if there are none or they can't be loaded.
func (e *Engine) Start(ctx context.Context, usr int64) (Status, error) {
	if err := e.checkStart(usr); err != nil {
		return Status{}, err
	}

	settings := e.loadSettings(ctx, usr)

	e.mu.Lock()
	defer e.mu.Unlock()

	// a concurrent Start may have won while settings were loading
	if e.closed {
		return Status{}, ErrShuttingDown
	}
	if _, ok := e.sessions[usr]; ok {
		return Status{}, domain.ErrSessionActive
	}

	s := newSession(usr, settings, e.cfg.Cycle, e.clk.Now(), e.cfg.Tick)
	sctx, cancel := context.WithCancel(e.root)
	s.cancel = cancel
	e.sessions[usr] = s

	go e.run(sctx, s)

	logger.ForUser(e.logger, usr).Infow("pomodoro started", "settings", settings)
	return s.status(e.clk.Now()), nil
}

// Stop ends the session of usr. Once Stop returns, the session makes no more
// deliveries.
func (e *Engine) Stop(usr int64) error {
	e.mu.Lock()
	s, ok := e.sessions[usr]
	if ok {
		delete(e.sessions, usr)
	}
	e.mu.Unlock()

	if !ok {
		return domain.ErrNoSession
	}

	s.cancel()
	<-s.done

	logger.ForUser(e.logger, usr).Infow("pomodoro stopped", "completed", s.status(e.clk.Now()).Completed)
	return nil
}

func (e *Engine) Status(usr int64) (Status, error) {
	e.mu.Lock()
	s, ok := e.sessions[usr]
	e.mu.Unlock()

	if !ok {
		return Status{}, domain.ErrNoSession
	}
	return s.status(e.clk.Now()), nil
}

// Active returns the number of live sessions.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// Shutdown cancels every session and waits for them to finish or for ctx to
// expire. No session can be started afterwards.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	sessions := e.sessions
	e.sessions = make(map[int64]*session)
	e.mu.Unlock()

	e.cancel()

	for _, s := range sessions {
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if len(sessions) > 0 {
		e.logger.Infof("stopped %d pomodoro session(s)", len(sessions))
	}
	return nil
}

func (e *Engine) checkStart(usr int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrShuttingDown
	}
	if _, ok := e.sessions[usr]; ok {
		return domain.ErrSessionActive
	}
	return nil
}

func (e *Engine) loadSettings(ctx context.Context, usr int64) domain.PomodoroSettings {
	s, err := e.db.GetPomodoroSettings(ctx, usr)
	if err != nil {
		logger.ForUser(e.logger, usr).Warnw("failed loading pomodoro settings; using defaults", "err", err)
		return domain.DefaultPomodoroSettings(usr)
	}
	if s == nil {
		return domain.DefaultPomodoroSettings(usr)
	}
	if err := s.Validate(); err != nil {
		logger.ForUser(e.logger, usr).Warnw("stored pomodoro settings are invalid; using defaults", "err", err)
		return domain.DefaultPomodoroSettings(usr)
	}
	return *s
}

// run counts the session down phase after phase until ctx is cancelled.
// Every wake-up reads the time left off the phase deadline, so a slow sink
// delays messages but never the countdown.
func (e *Engine) run(ctx context.Context, s *session) {
	defer close(s.done)

	for {
		for ctx.Err() == nil && s.expired(e.clk.Now()) {
			e.announce(ctx, s, s.advance())
		}

		if s.dueRefresh(e.clk.Now(), e.cfg.RefreshEvery) {
			e.refresh(ctx, s)
		}

		t := e.clk.NewTimer(s.untilNextSecond(e.clk.Now()))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// refresh edits the status message in place, or sends a new one if there is
// none yet or it can't be edited anymore.
func (e *Engine) refresh(ctx context.Context, s *session) {
	if ctx.Err() != nil {
		return
	}

	c := StatusContent(s.status(e.clk.Now()))
	l := logger.ForUser(e.logger, s.owner)

	if h := s.lastHandle(); h != nil {
		nh, err := e.sink.Edit(ctx, *h, c)
		if err == nil {
			s.setHandle(nh)
			return
		}
		l.Debugw("failed editing pomodoro status; sending a new one", "err", err)
	}

	if ctx.Err() != nil {
		return
	}
	h, err := e.sink.Deliver(ctx, s.owner, c)
	if err != nil {
		l.Errorw("failed delivering pomodoro status", "err", domain.DeliveryFailure(err))
		return
	}
	s.setHandle(h)
}

func (e *Engine) announce(ctx context.Context, s *session, tr transition) {
	if ctx.Err() != nil {
		return
	}

	l := logger.ForUser(e.logger, s.owner)
	l.Infow("pomodoro phase changed", "from", tr.from, "to", tr.to, "completed", tr.completed)

	if _, err := e.sink.Deliver(ctx, s.owner, TransitionContent(s.settings, tr.from, tr.to)); err != nil {
		l.Errorw("failed delivering pomodoro announcement", "err", domain.DeliveryFailure(err))
	}
}

// StatusContent renders the live countdown message.
func StatusContent(st Status) notify.Content {
	secs := int(st.Remaining / time.Second)
	return notify.Content{
		Title: st.Phase.Title(),
		Body: fmt.Sprintf("%s %s remaining\n%s",
			st.Phase.Emoji(), timeutil.FormatRemaining(secs), timeutil.ProgressBar(st.Progress, timeutil.DefaultBarWidth)),
		Footer: stopHint,
	}.WithField("Completed Sessions", fmt.Sprintf("%d/%d", st.Completed, st.SessionsBeforeLongBreak), true)
}

// TransitionContent renders the one-shot message sent when a phase ends.
func TransitionContent(s domain.PomodoroSettings, from, to Phase) notify.Content {
	var c notify.Content
	if from == Working {
		c = notify.Content{Title: "✅ Work Session Complete!", Body: "Time for a break!"}
	} else {
		c = notify.Content{Title: "🔔 Break Time Over!", Body: "Time to get back to work!"}
	}
	return c.WithField("Next", NextLabel(s, to), false)
}

// NextLabel describes a phase together with its length, e.g.
// "Short break: 5 minutes".
func NextLabel(s domain.PomodoroSettings, p Phase) string {
	minutes := int(Duration(s, p) / time.Minute)
	switch p {
	case ShortBreak:
		return fmt.Sprintf("Short break: %d minutes", minutes)
	case LongBreak:
		return fmt.Sprintf("Long break: %d minutes", minutes)
	}
	return fmt.Sprintf("Work session: %d minutes", minutes)
}
