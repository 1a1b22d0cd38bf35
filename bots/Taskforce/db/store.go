package db

import (
	"context"
	"fmt"
	"slices"

	"github.com/pkg/errors"
)

const (
	CollectionTasks            = "tasks"
	CollectionReminders        = "reminders"
	CollectionTimezones        = "timezones"
	CollectionPomodoroSettings = "pomodoro_settings"
)

// Verb is the kind of request sent to a store.
type Verb int

const (
	VerbRead Verb = iota
	VerbCreate
	VerbDelete
	VerbUpsert
)

func (v Verb) String() string {
	switch v {
	case VerbRead:
		return "read"
	case VerbCreate:
		return "create"
	case VerbDelete:
		return "delete"
	case VerbUpsert:
		return "upsert"
	}
	return fmt.Sprintf("verb(%d)", int(v))
}

// Op is a filter operator. The values match PostgREST's operator names.
type Op string

const (
	OpEq  Op = "eq"
	OpGt  Op = "gt"
	OpLte Op = "lte"
)

func (o Op) sql() string {
	switch o {
	case OpGt:
		return ">"
	case OpLte:
		return "<="
	default:
		return "="
	}
}

// Filter restricts a request to rows where Field Op Value holds.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Eq is shorthand for an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

// Row is a single record keyed by column name.
type Row = map[string]any

// Query is one independent request against a single collection.
type Query struct {
	Collection  string
	Verb        Verb
	Filters     []Filter
	Payload     Row
	ConflictKey string
	OrderBy     string
}

// Store executes queries. Implementations never retry.
type Store interface {
	Do(ctx context.Context, q Query) ([]Row, error)
	Ping(ctx context.Context) error
	Close() error
}

type table struct {
	columns []string
	key     string
}

var schema = map[string]table{
	CollectionTasks: {
		columns: []string{"id", "user_id", "task", "priority", "created_at"},
		key:     "id",
	},
	CollectionReminders: {
		columns: []string{"id", "user_id", "message", "remind_at", "created_at"},
		key:     "id",
	},
	CollectionTimezones: {
		columns: []string{"user_id", "utc_offset"},
		key:     "user_id",
	},
	CollectionPomodoroSettings: {
		columns: []string{"user_id", "work_duration", "break_duration", "long_break_duration", "sessions_before_long_break"},
		key:     "user_id",
	},
}

func (t table) has(column string) bool {
	return slices.Contains(t.columns, column)
}

var errBadQuery = errors.New("malformed query")

// validate checks the query against the schema, so nothing unknown ever
// reaches a backend as an identifier.
func (q Query) validate() (table, error) {
	t, ok := schema[q.Collection]
	if !ok {
		return table{}, errors.Wrapf(errBadQuery, "unknown collection %q", q.Collection)
	}

	for _, f := range q.Filters {
		if !t.has(f.Field) {
			return table{}, errors.Wrapf(errBadQuery, "unknown field %q in %s", f.Field, q.Collection)
		}
		switch f.Op {
		case OpEq, OpGt, OpLte:
		default:
			return table{}, errors.Wrapf(errBadQuery, "unknown operator %q", f.Op)
		}
	}

	for col := range q.Payload {
		if !t.has(col) {
			return table{}, errors.Wrapf(errBadQuery, "unknown field %q in %s", col, q.Collection)
		}
	}

	if q.OrderBy != "" && !t.has(q.OrderBy) {
		return table{}, errors.Wrapf(errBadQuery, "unknown order field %q", q.OrderBy)
	}

	switch q.Verb {
	case VerbRead:
	case VerbCreate:
		if len(q.Payload) == 0 {
			return table{}, errors.Wrap(errBadQuery, "create without payload")
		}
	case VerbUpsert:
		if len(q.Payload) == 0 {
			return table{}, errors.Wrap(errBadQuery, "upsert without payload")
		}
		if q.ConflictKey == "" || !t.has(q.ConflictKey) {
			return table{}, errors.Wrapf(errBadQuery, "upsert needs a conflict key, got %q", q.ConflictKey)
		}
		if _, ok := q.Payload[q.ConflictKey]; !ok {
			return table{}, errors.Wrapf(errBadQuery, "upsert payload lacks %q", q.ConflictKey)
		}
	case VerbDelete:
		// an unfiltered delete would wipe the collection
		if len(q.Filters) == 0 {
			return table{}, errors.Wrap(errBadQuery, "delete without filters")
		}
	default:
		return table{}, errors.Wrapf(errBadQuery, "unknown verb %s", q.Verb)
	}

	return t, nil
}
