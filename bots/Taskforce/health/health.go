package health

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/fasthttp/router"
	"github.com/jmhodges/clock"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/reminder"
)

const (
	Path = "/healthz"

	DefaultPingTimeout = 2 * time.Second

	statusOK       = "ok"
	statusDegraded = "degraded"
)

var clk = clock.New()

type Pinger interface {
	Ping(ctx context.Context) error
}

type Sessions interface {
	Active() int
}

type Polls interface {
	LastPoll() (reminder.PollResult, bool)
}

// Report is the body of the health endpoint.
type Report struct {
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Store     StoreReport      `json:"store"`
	Pomodoro  PomodoroReport   `json:"pomodoro"`
	Reminders *RemindersReport `json:"reminders,omitempty"`
}

type StoreReport struct {
	Online bool   `json:"online"`
	Error  string `json:"error,omitempty"`
}

type PomodoroReport struct {
	ActiveSessions int `json:"active_sessions"`
}

// RemindersReport describes the last poll.
type RemindersReport struct {
	At          time.Time `json:"at"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Due         int       `json:"due"`
	Delivered   int       `json:"delivered"`
	Deleted     int       `json:"deleted"`
	Error       string    `json:"error,omitempty"`
}

// Server exposes GET /healthz. It answers 200 while the store pings and 503
// otherwise.
type Server struct {
	store    Pinger
	sessions Sessions
	polls    Polls
	logger   *zap.SugaredLogger
	clk      clock.Clock

	PingTimeout time.Duration

	srv *fasthttp.Server
}

func NewServer(store Pinger, sessions Sessions, polls Polls, l *zap.SugaredLogger) *Server {
	s := &Server{
		store:       store,
		sessions:    sessions,
		polls:       polls,
		logger:      l,
		clk:         clk,
		PingTimeout: DefaultPingTimeout,
	}

	r := router.New()
	r.GET(Path, s.Check)

	s.srv = &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  time.Minute,
		Name:         "taskforce",
	}
	return s
}

// Start listens on addr and serves in the background. Bind errors are
// returned right away.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "failed listening for health checks")
	}

	s.logger.Infof("health endpoint is listening on %s%s", ln.Addr(), Path)
	go s.Serve(ln)
	return nil
}

// Serve blocks serving ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	if err := s.srv.Serve(ln); err != nil {
		s.logger.Errorw("health endpoint stopped", "err", err)
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}

func (s *Server) Check(ctx *fasthttp.RequestCtx) {
	report := s.Report(ctx)

	status := http.StatusOK
	if !report.Store.Online {
		status = http.StatusServiceUnavailable
	}

	body, err := json.Marshal(report)
	if err != nil {
		s.logger.Errorw("failed encoding health report", "err", err)
		ctx.SetStatusCode(http.StatusInternalServerError)
		return
	}

	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}

// Report gathers the current state.
func (s *Server) Report(ctx context.Context) Report {
	r := Report{
		Status:    statusOK,
		Timestamp: s.clk.Now().UTC(),
		Store:     StoreReport{Online: true},
	}

	pctx, cancel := context.WithTimeout(ctx, s.PingTimeout)
	defer cancel()
	if err := s.store.Ping(pctx); err != nil {
		r.Status = statusDegraded
		r.Store = StoreReport{Online: false, Error: err.Error()}
	}

	if s.sessions != nil {
		r.Pomodoro.ActiveSessions = s.sessions.Active()
	}

	if s.polls != nil {
		if last, ok := s.polls.LastPoll(); ok {
			r.Reminders = &RemindersReport{
				At:          last.At.UTC(),
				WindowStart: last.Window.Start,
				WindowEnd:   last.Window.End,
				Due:         last.Due,
				Delivered:   last.Delivered,
				Deleted:     last.Deleted,
			}
			if last.Err != nil {
				r.Reminders.Error = last.Err.Error()
			}
		}
	}
	return r
}
