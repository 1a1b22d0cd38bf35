package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/domain"
	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/notify"
	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/timeutil"
)

type fakeGateway struct {
	mu        sync.Mutex
	reminders map[string]domain.Reminder
	windows   []timeutil.Window
	fetchErr  error
	deleteErr map[string]error
}

func newFakeGateway(rs ...domain.Reminder) *fakeGateway {
	g := &fakeGateway{reminders: map[string]domain.Reminder{}, deleteErr: map[string]error{}}
	for _, r := range rs {
		g.reminders[r.ID] = r
	}
	return g
}

func (g *fakeGateway) GetDueReminders(_ context.Context, w timeutil.Window) ([]domain.Reminder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.windows = append(g.windows, w)
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}

	var due []domain.Reminder
	for _, r := range g.reminders {
		if w.Contains(r.RemindAt) {
			due = append(due, r)
		}
	}
	return due, nil
}

func (g *fakeGateway) DeleteReminder(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.deleteErr[id]; err != nil {
		return err
	}
	delete(g.reminders, id)
	return nil
}

func (g *fakeGateway) left() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.reminders)
}

type delivery struct {
	owner int64
	c     notify.Content
}

type fakeSink struct {
	mu        sync.Mutex
	delivered []delivery
	failFor   map[int64]bool
}

func (s *fakeSink) Deliver(_ context.Context, owner int64, c notify.Content) (notify.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failFor[owner] {
		return notify.Handle{}, errors.New("chat not found")
	}
	s.delivered = append(s.delivered, delivery{owner: owner, c: c})
	return notify.Handle{ChatID: owner, MessageID: len(s.delivered)}, nil
}

func (s *fakeSink) Edit(_ context.Context, h notify.Handle, _ notify.Content) (notify.Handle, error) {
	return h, nil
}

var t0 = time.Date(2025, 7, 9, 23, 30, 0, 0, time.UTC)

func newTestScheduler(g Gateway, sink notify.Sink) (*Scheduler, clock.FakeClock) {
	fc := clock.NewFake()
	fc.Set(t0)

	s := NewScheduler(g, sink, time.Minute, zap.NewNop().Sugar())
	s.clk = fc
	return s, fc
}

func reminderAt(id string, owner int64, at time.Time) domain.Reminder {
	return domain.Reminder{ID: id, OwnerID: owner, Message: "msg " + id, RemindAt: at}
}

func TestPollDeliversAndDeletes(t *testing.T) {
	g := newFakeGateway(
		reminderAt("a", 1, t0.Add(-30*time.Second)),
		reminderAt("b", 2, t0.Add(time.Hour)),
	)
	sink := &fakeSink{}
	s, _ := newTestScheduler(g, sink)

	res, err := s.Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, timeutil.WindowBetween(t0.Add(-time.Minute), t0), res.Window)
	assert.Equal(t, 1, res.Due)
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 1, res.Deleted)

	require.Len(t, sink.delivered, 1)
	assert.Equal(t, int64(1), sink.delivered[0].owner)
	assert.Equal(t, notify.Content{Title: Title, Body: "msg a"}, sink.delivered[0].c)
	assert.Equal(t, 1, g.left())
}

func TestConsecutiveWindowsAreContiguous(t *testing.T) {
	// exactly on the boundary between the first two windows
	g := newFakeGateway(reminderAt("edge", 1, t0))
	sink := &fakeSink{}
	s, fc := newTestScheduler(g, sink)

	_, err := s.Poll(context.Background())
	require.NoError(t, err)

	// jitter shouldn't open a gap or an overlap
	fc.Add(time.Minute + 3*time.Second)
	_, err = s.Poll(context.Background())
	require.NoError(t, err)

	require.Len(t, g.windows, 2)
	assert.Equal(t, timeutil.WindowBetween(t0.Add(-time.Minute), t0), g.windows[0])
	assert.Equal(t, timeutil.WindowBetween(t0, t0.Add(time.Minute+3*time.Second)), g.windows[1])
	assert.Len(t, sink.delivered, 1)
}

func TestFailedFetchDoesNotAdvance(t *testing.T) {
	g := newFakeGateway(reminderAt("a", 1, t0.Add(30*time.Second)))
	sink := &fakeSink{}
	s, fc := newTestScheduler(g, sink)

	_, err := s.Poll(context.Background())
	require.NoError(t, err)

	g.mu.Lock()
	g.fetchErr = errors.New("connection refused")
	g.mu.Unlock()

	fc.Add(time.Minute)
	res, err := s.Poll(context.Background())
	assert.Error(t, err)
	assert.Error(t, res.Err)

	last, ok := s.LastPoll()
	require.True(t, ok)
	assert.Equal(t, res, last)

	g.mu.Lock()
	g.fetchErr = nil
	g.mu.Unlock()

	fc.Add(time.Minute)
	res, err = s.Poll(context.Background())
	require.NoError(t, err)

	// covers both the failed span and the current one
	assert.Equal(t, timeutil.WindowBetween(t0, t0.Add(2*time.Minute)), res.Window)
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 0, g.left())
	assert.Len(t, sink.delivered, 1)
}

func TestClockGoingBackSkipsPolls(t *testing.T) {
	g := newFakeGateway(reminderAt("a", 1, t0.Add(-30*time.Second)))
	g.deleteErr["a"] = errors.New("timeout")
	sink := &fakeSink{}
	s, fc := newTestScheduler(g, sink)

	_, err := s.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, sink.delivered, 1)
	require.Equal(t, 1, g.left())

	// back into the consumed window
	fc.Set(t0.Add(-10 * time.Second))
	res, err := s.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Window.Length())
	assert.Zero(t, res.Due)
	assert.Len(t, g.windows, 1)
	assert.Len(t, sink.delivered, 1)

	// resumes where the last window ended
	fc.Set(t0.Add(time.Minute))
	res, err = s.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, timeutil.WindowBetween(t0, t0.Add(time.Minute)), res.Window)
	assert.Len(t, sink.delivered, 1)
}

func TestDeliveryFailureDoesNotAbortBatch(t *testing.T) {
	g := newFakeGateway(
		reminderAt("a", 1, t0.Add(-10*time.Second)),
		reminderAt("b", 2, t0.Add(-20*time.Second)),
		reminderAt("c", 3, t0.Add(-40*time.Second)),
	)
	sink := &fakeSink{failFor: map[int64]bool{2: true}}
	s, _ := newTestScheduler(g, sink)

	res, err := s.Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Due)
	assert.Equal(t, 2, res.Delivered)
	assert.Equal(t, 3, res.Deleted)
	assert.Equal(t, 0, g.left())
}

func TestDeleteFailureDoesNotAbortBatch(t *testing.T) {
	g := newFakeGateway(
		reminderAt("a", 1, t0.Add(-10*time.Second)),
		reminderAt("b", 2, t0.Add(-20*time.Second)),
	)
	g.deleteErr["a"] = errors.New("timeout")
	sink := &fakeSink{}
	s, _ := newTestScheduler(g, sink)

	res, err := s.Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Delivered)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 1, g.left())
}

func TestCancelledPollKeepsReminders(t *testing.T) {
	g := newFakeGateway(reminderAt("a", 1, t0.Add(-10*time.Second)))
	s, _ := newTestScheduler(g, &fakeSink{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Poll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, g.left())
}

func TestNoPollYet(t *testing.T) {
	s, _ := newTestScheduler(newFakeGateway(), &fakeSink{})

	_, ok := s.LastPoll()
	assert.False(t, ok)
}

func TestStartStop(t *testing.T) {
	s, _ := newTestScheduler(newFakeGateway(), &fakeSink{})

	require.NoError(t, s.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

func TestStopWithoutStart(t *testing.T) {
	s, _ := newTestScheduler(newFakeGateway(), &fakeSink{})
	assert.NoError(t, s.Stop(context.Background()))
}
