package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRead(t *testing.T) {
	start := time.Date(2025, 7, 9, 23, 30, 0, 0, time.UTC)
	end := start.Add(time.Minute)

	sql, args, err := postgresDialect.build(Query{
		Collection: CollectionReminders,
		Verb:       VerbRead,
		Filters: []Filter{
			{Field: "remind_at", Op: OpGt, Value: start},
			{Field: "remind_at", Op: OpLte, Value: end},
		},
		OrderBy: "remind_at",
	})
	require.NoError(t, err)

	assert.Equal(t, "SELECT id, user_id, message, remind_at, created_at FROM reminders "+
		"WHERE remind_at > $1 AND remind_at <= $2 ORDER BY remind_at ASC", sql)
	assert.Equal(t, []any{start, end}, args)
}

func TestBuildCreate(t *testing.T) {
	sql, args, err := postgresDialect.build(Query{
		Collection: CollectionTimezones,
		Verb:       VerbCreate,
		Payload:    Row{"utc_offset": 3, "user_id": int64(7)},
	})
	require.NoError(t, err)

	assert.Equal(t, "INSERT INTO timezones (user_id, utc_offset) VALUES ($1, $2) "+
		"RETURNING user_id, utc_offset", sql)
	assert.Equal(t, []any{int64(7), 3}, args)
}

func TestBuildUpsert(t *testing.T) {
	sql, _, err := postgresDialect.build(Query{
		Collection:  CollectionTimezones,
		Verb:        VerbUpsert,
		ConflictKey: "user_id",
		Payload:     Row{"utc_offset": 3, "user_id": int64(7)},
	})
	require.NoError(t, err)

	assert.Equal(t, "INSERT INTO timezones (user_id, utc_offset) VALUES ($1, $2) "+
		"ON CONFLICT (user_id) DO UPDATE SET utc_offset = excluded.utc_offset "+
		"RETURNING user_id, utc_offset", sql)
}

func TestBuildUpsertKeyOnly(t *testing.T) {
	sql, _, err := postgresDialect.build(Query{
		Collection:  CollectionTimezones,
		Verb:        VerbUpsert,
		ConflictKey: "user_id",
		Payload:     Row{"user_id": int64(7)},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "ON CONFLICT (user_id) DO NOTHING")
}

func TestBuildDeleteSQLite(t *testing.T) {
	sql, args, err := sqliteDialect.build(Query{
		Collection: CollectionTasks,
		Verb:       VerbDelete,
		Filters:    []Filter{Eq("id", "abc")},
	})
	require.NoError(t, err)

	assert.Equal(t, "DELETE FROM tasks WHERE id = ?", sql)
	assert.Equal(t, []any{"abc"}, args)
}

func TestSQLiteTimesAreFixedWidth(t *testing.T) {
	_, args, err := sqliteDialect.build(Query{
		Collection: CollectionReminders,
		Verb:       VerbRead,
		Filters: []Filter{
			{Field: "remind_at", Op: OpGt, Value: time.Date(2025, 7, 9, 23, 30, 0, 0, time.UTC)},
			{Field: "remind_at", Op: OpLte, Value: time.Date(2025, 7, 9, 23, 30, 0, 5, time.FixedZone("", 3600))},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []any{
		"2025-07-09T23:30:00.000000000Z",
		"2025-07-09T22:30:00.000000005Z",
	}, args)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]Query{
		"unknown collection": {Collection: "users"},
		"unknown filter field": {
			Collection: CollectionTasks,
			Filters:    []Filter{Eq("owner", 1)},
		},
		"unknown operator": {
			Collection: CollectionTasks,
			Filters:    []Filter{{Field: "id", Op: "like", Value: "x"}},
		},
		"unknown payload field": {
			Collection: CollectionTasks,
			Verb:       VerbCreate,
			Payload:    Row{"drop table": 1},
		},
		"unknown order": {Collection: CollectionTasks, OrderBy: "rowid"},
		"create without payload": {
			Collection: CollectionTasks,
			Verb:       VerbCreate,
		},
		"upsert without key": {
			Collection: CollectionTimezones,
			Verb:       VerbUpsert,
			Payload:    Row{"user_id": 1},
		},
		"upsert payload lacks key": {
			Collection:  CollectionTimezones,
			Verb:        VerbUpsert,
			ConflictKey: "user_id",
			Payload:     Row{"utc_offset": 1},
		},
		"unfiltered delete": {
			Collection: CollectionTasks,
			Verb:       VerbDelete,
		},
		"unknown verb": {Collection: CollectionTasks, Verb: Verb(42)},
	}

	for name, q := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := postgresDialect.build(q)
			assert.ErrorIs(t, err, errBadQuery)
		})
	}
}
