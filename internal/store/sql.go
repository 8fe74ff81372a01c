package store

import (
	"context"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

// SQL builds statements in the SQLite dialect.
var SQL = entsql.Dialect(dialect.SQLite)

// Exec runs a built statement on a driver or transaction.
func Exec(ctx context.Context, x dialect.ExecQuerier, b entsql.Querier) error {
	query, args := b.Query()
	return x.Exec(ctx, query, args, nil)
}

// Scan runs a built query and calls scan once per row.
func Scan(ctx context.Context, x dialect.ExecQuerier, b entsql.Querier, scan func(*entsql.Rows) error) error {
	query, args := b.Query()
	rows := &entsql.Rows{}
	if err := x.Query(ctx, query, args, rows); err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Strings runs a single-column query and collects its values.
func Strings(ctx context.Context, x dialect.ExecQuerier, b entsql.Querier) ([]string, error) {
	var out []string
	err := Scan(ctx, x, b, func(rows *entsql.Rows) error {
		var s string
		if err := rows.Scan(&s); err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}
