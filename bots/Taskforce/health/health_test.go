package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap"

	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/reminder"
	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/timeutil"
)

var t0 = time.Date(2025, 7, 9, 23, 31, 0, 0, time.UTC)

type fakeStore struct{ err error }

func (s fakeStore) Ping(context.Context) error { return s.err }

type fakeSessions int

func (n fakeSessions) Active() int { return int(n) }

type fakePolls struct {
	res reminder.PollResult
	ok  bool
}

func (p fakePolls) LastPoll() (reminder.PollResult, bool) { return p.res, p.ok }

func serve(t *testing.T, s *Server) *fasthttp.Client {
	t.Helper()

	ln := fasthttputil.NewInmemoryListener()
	go s.Serve(ln)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})

	return &fasthttp.Client{
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	}
}

func get(t *testing.T, c *fasthttp.Client, path string) (int, []byte) {
	t.Helper()

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://health" + path)
	require.NoError(t, c.DoTimeout(req, resp, time.Second))

	return resp.StatusCode(), append([]byte(nil), resp.Body()...)
}

func newTestServer(store Pinger, sessions Sessions, polls Polls) *Server {
	s := NewServer(store, sessions, polls, zap.NewNop().Sugar())

	fc := clock.NewFake()
	fc.Set(t0)
	s.clk = fc
	return s
}

func TestHealthy(t *testing.T) {
	polls := fakePolls{ok: true, res: reminder.PollResult{
		At:        t0,
		Window:    timeutil.WindowBetween(t0.Add(-time.Minute), t0),
		Due:       3,
		Delivered: 2,
		Deleted:   3,
	}}
	c := serve(t, newTestServer(fakeStore{}, fakeSessions(2), polls))

	status, body := get(t, c, Path)
	assert.Equal(t, http.StatusOK, status)

	var r Report
	require.NoError(t, json.Unmarshal(body, &r))
	assert.Equal(t, Report{
		Status:    statusOK,
		Timestamp: t0,
		Store:     StoreReport{Online: true},
		Pomodoro:  PomodoroReport{ActiveSessions: 2},
		Reminders: &RemindersReport{
			At:          t0,
			WindowStart: t0.Add(-time.Minute),
			WindowEnd:   t0,
			Due:         3,
			Delivered:   2,
			Deleted:     3,
		},
	}, r)
}

func TestStoreDown(t *testing.T) {
	c := serve(t, newTestServer(fakeStore{err: errors.New("connection refused")}, fakeSessions(0), fakePolls{}))

	status, body := get(t, c, Path)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.JSONEq(t, `{
		"status": "degraded",
		"timestamp": "2025-07-09T23:31:00Z",
		"store": {"online": false, "error": "connection refused"},
		"pomodoro": {"active_sessions": 0}
	}`, string(body))
}

func TestFailedPollIsReported(t *testing.T) {
	polls := fakePolls{ok: true, res: reminder.PollResult{
		At:     t0,
		Window: timeutil.WindowBetween(t0.Add(-time.Minute), t0),
		Err:    errors.New("timeout"),
	}}
	s := newTestServer(fakeStore{}, fakeSessions(0), polls)

	r := s.Report(context.Background())
	require.NotNil(t, r.Reminders)
	assert.Equal(t, "timeout", r.Reminders.Error)
	assert.Equal(t, statusOK, r.Status)
}

func TestUnknownPath(t *testing.T) {
	c := serve(t, newTestServer(fakeStore{}, fakeSessions(0), fakePolls{}))

	status, _ := get(t, c, "/nope")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestStartOnBusyAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s := newTestServer(fakeStore{}, fakeSessions(0), fakePolls{})
	assert.Error(t, s.Start(ln.Addr().String()))
}
