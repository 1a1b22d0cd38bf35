package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmhodges/clock"
	"github.com/pkg/errors"

	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/domain"
	"github.com/jalenchen0/taskforce-bot/bots/Taskforce/timeutil"
)

var clk = clock.New()

// Database translates domain operations into store queries. It keeps no
// state of its own and never retries; every failure comes back as a
// persistence failure carrying the cause.
type Database struct {
	store   Store
	Timeout time.Duration
	clk     clock.Clock
	newID   func() string
}

// NewDatabase wraps a store. A non-positive timeout disables the per-call
// bound.
func NewDatabase(s Store, timeout time.Duration) *Database {
	return &Database{
		store:   s,
		Timeout: timeout,
		clk:     clk,
		newID:   uuid.NewString,
	}
}

func (d *Database) GetTasks(ctx context.Context, usr int64) ([]domain.Task, error) {
	rows, err := d.do(ctx, Query{
		Collection: CollectionTasks,
		Verb:       VerbRead,
		Filters:    []Filter{Eq("user_id", usr)},
		OrderBy:    "created_at",
	}, "failed fetching tasks")
	if err != nil {
		return nil, err
	}
	return decode[domain.Task](rows)
}

func (d *Database) AddTask(ctx context.Context, usr int64, text string, priority int) (domain.Task, error) {
	t := domain.Task{
		ID:        d.newID(),
		OwnerID:   usr,
		Text:      text,
		Priority:  priority,
		CreatedAt: d.now(),
	}

	_, err := d.do(ctx, Query{
		Collection: CollectionTasks,
		Verb:       VerbCreate,
		Payload: Row{
			"id":         t.ID,
			"user_id":    t.OwnerID,
			"task":       t.Text,
			"priority":   t.Priority,
			"created_at": t.CreatedAt,
		},
	}, "failed adding task")
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// DeleteTask removes the task. A missing id is not an error.
func (d *Database) DeleteTask(ctx context.Context, id string) error {
	_, err := d.do(ctx, Query{
		Collection: CollectionTasks,
		Verb:       VerbDelete,
		Filters:    []Filter{Eq("id", id)},
	}, "failed deleting task")
	return err
}

func (d *Database) GetReminders(ctx context.Context, usr int64) ([]domain.Reminder, error) {
	rows, err := d.do(ctx, Query{
		Collection: CollectionReminders,
		Verb:       VerbRead,
		Filters:    []Filter{Eq("user_id", usr)},
		OrderBy:    "remind_at",
	}, "failed fetching reminders")
	if err != nil {
		return nil, err
	}
	return decodeReminders(rows)
}

func (d *Database) AddReminder(ctx context.Context, usr int64, message string, at time.Time) (domain.Reminder, error) {
	r := domain.Reminder{
		ID:        d.newID(),
		OwnerID:   usr,
		Message:   message,
		RemindAt:  at.UTC(),
		CreatedAt: d.now(),
	}

	_, err := d.do(ctx, Query{
		Collection: CollectionReminders,
		Verb:       VerbCreate,
		Payload: Row{
			"id":         r.ID,
			"user_id":    r.OwnerID,
			"message":    r.Message,
			"remind_at":  r.RemindAt,
			"created_at": r.CreatedAt,
		},
	}, "failed adding reminder")
	if err != nil {
		return domain.Reminder{}, err
	}
	return r, nil
}

// DeleteReminder removes the reminder. A missing id is not an error.
func (d *Database) DeleteReminder(ctx context.Context, id string) error {
	_, err := d.do(ctx, Query{
		Collection: CollectionReminders,
		Verb:       VerbDelete,
		Filters:    []Filter{Eq("id", id)},
	}, "failed deleting reminder")
	return err
}

// GetDueReminders returns reminders with remind_at in (w.Start, w.End].
func (d *Database) GetDueReminders(ctx context.Context, w timeutil.Window) ([]domain.Reminder, error) {
	rows, err := d.do(ctx, Query{
		Collection: CollectionReminders,
		Verb:       VerbRead,
		Filters: []Filter{
			{Field: "remind_at", Op: OpGt, Value: w.Start.UTC()},
			{Field: "remind_at", Op: OpLte, Value: w.End.UTC()},
		},
		OrderBy: "remind_at",
	}, "failed fetching due reminders")
	if err != nil {
		return nil, err
	}
	return decodeReminders(rows)
}

// GetTimezoneOffset returns the stored offset, or 0 if there's none.
func (d *Database) GetTimezoneOffset(ctx context.Context, usr int64) (int, error) {
	rows, err := d.do(ctx, Query{
		Collection: CollectionTimezones,
		Verb:       VerbRead,
		Filters:    []Filter{Eq("user_id", usr)},
	}, "failed fetching time zone")
	if err != nil {
		return 0, err
	}

	tz, err := decode[domain.TimezoneOffset](rows)
	if err != nil || len(tz) == 0 {
		return 0, err
	}
	return tz[0].UTCOffset, nil
}

func (d *Database) SetTimezoneOffset(ctx context.Context, usr int64, offset int) error {
	_, err := d.do(ctx, Query{
		Collection:  CollectionTimezones,
		Verb:        VerbUpsert,
		ConflictKey: "user_id",
		Payload:     Row{"user_id": usr, "utc_offset": offset},
	}, "failed updating time zone")
	return err
}

// GetPomodoroSettings returns nil if the user never saved any settings.
func (d *Database) GetPomodoroSettings(ctx context.Context, usr int64) (*domain.PomodoroSettings, error) {
	rows, err := d.do(ctx, Query{
		Collection: CollectionPomodoroSettings,
		Verb:       VerbRead,
		Filters:    []Filter{Eq("user_id", usr)},
	}, "failed fetching pomodoro settings")
	if err != nil {
		return nil, err
	}

	settings, err := decode[domain.PomodoroSettings](rows)
	if err != nil || len(settings) == 0 {
		return nil, err
	}
	return &settings[0], nil
}

func (d *Database) SavePomodoroSettings(ctx context.Context, s domain.PomodoroSettings) error {
	_, err := d.do(ctx, Query{
		Collection:  CollectionPomodoroSettings,
		Verb:        VerbUpsert,
		ConflictKey: "user_id",
		Payload: Row{
			"user_id":                    s.OwnerID,
			"work_duration":              s.WorkMinutes,
			"break_duration":             s.ShortBreakMinutes,
			"long_break_duration":        s.LongBreakMinutes,
			"sessions_before_long_break": s.SessionsBeforeLongBreak,
		},
	}, "failed saving pomodoro settings")
	return err
}

// Ping reports whether the store is reachable.
func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	if err := d.store.Ping(ctx); err != nil {
		return domain.PersistenceFailure(errors.Wrap(err, "failed pinging store"))
	}
	return nil
}

func (d *Database) do(ctx context.Context, q Query, msg string) ([]Row, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	rows, err := d.store.Do(ctx, q)
	if err != nil {
		return nil, domain.PersistenceFailure(errors.Wrap(err, msg))
	}
	return rows, nil
}

func (d *Database) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.Timeout)
}

func (d *Database) now() time.Time {
	return d.clk.Now().UTC()
}

// decode maps loosely typed rows onto a domain type through its JSON tags,
// which every backend's values (native, text or JSON numbers) survive.
func decode[T any](rows []Row) ([]T, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	raw, err := json.Marshal(rows)
	if err != nil {
		return nil, domain.PersistenceFailure(errors.Wrap(err, "failed encoding rows"))
	}

	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, domain.PersistenceFailure(errors.Wrap(err, "failed decoding rows"))
	}
	return out, nil
}

func decodeReminders(rows []Row) ([]domain.Reminder, error) {
	reminders, err := decode[domain.Reminder](rows)
	if err != nil {
		return nil, err
	}
	for i := range reminders {
		reminders[i].RemindAt = reminders[i].RemindAt.UTC()
		reminders[i].CreatedAt = reminders[i].CreatedAt.UTC()
	}
	return reminders, nil
}
