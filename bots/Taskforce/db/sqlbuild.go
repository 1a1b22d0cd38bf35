package db

import (
	"maps"
	"slices"
	"strconv"
	"strings"
)

// dialect captures what differs between the SQL backends.
type dialect struct {
	bind  func(n int) string
	value func(v any) any
}

var postgresDialect = dialect{
	bind:  func(n int) string { return "$" + strconv.Itoa(n) },
	value: func(v any) any { return v },
}

var sqliteDialect = dialect{
	bind:  func(int) string { return "?" },
	value: sqliteValue,
}

// build renders q as a single SQL statement with positional args.
func (d dialect) build(q Query) (string, []any, error) {
	t, err := q.validate()
	if err != nil {
		return "", nil, err
	}

	var (
		sb   strings.Builder
		args []any
	)

	returning := strings.Join(t.columns, ", ")

	switch q.Verb {
	case VerbRead:
		sb.WriteString("SELECT ")
		sb.WriteString(returning)
		sb.WriteString(" FROM ")
		sb.WriteString(q.Collection)
		args = d.where(&sb, q.Filters, args)
		if q.OrderBy != "" {
			sb.WriteString(" ORDER BY ")
			sb.WriteString(q.OrderBy)
			sb.WriteString(" ASC")
		}

	case VerbCreate, VerbUpsert:
		cols := slices.Sorted(maps.Keys(q.Payload))
		binds := make([]string, len(cols))
		for i, c := range cols {
			args = append(args, d.value(q.Payload[c]))
			binds[i] = d.bind(len(args))
		}

		sb.WriteString("INSERT INTO ")
		sb.WriteString(q.Collection)
		sb.WriteString(" (")
		sb.WriteString(strings.Join(cols, ", "))
		sb.WriteString(") VALUES (")
		sb.WriteString(strings.Join(binds, ", "))
		sb.WriteString(")")

		if q.Verb == VerbUpsert {
			var sets []string
			for _, c := range cols {
				if c != q.ConflictKey {
					sets = append(sets, c+" = excluded."+c)
				}
			}
			sb.WriteString(" ON CONFLICT (")
			sb.WriteString(q.ConflictKey)
			if len(sets) == 0 {
				sb.WriteString(") DO NOTHING")
			} else {
				sb.WriteString(") DO UPDATE SET ")
				sb.WriteString(strings.Join(sets, ", "))
			}
		}

		sb.WriteString(" RETURNING ")
		sb.WriteString(returning)

	case VerbDelete:
		sb.WriteString("DELETE FROM ")
		sb.WriteString(q.Collection)
		args = d.where(&sb, q.Filters, args)
	}

	return sb.String(), args, nil
}

func (d dialect) where(sb *strings.Builder, filters []Filter, args []any) []any {
	for i, f := range filters {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		args = append(args, d.value(f.Value))
		sb.WriteString(f.Field)
		sb.WriteString(" ")
		sb.WriteString(f.Op.sql())
		sb.WriteString(" ")
		sb.WriteString(d.bind(len(args)))
	}
	return args
}
