package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// core holds the table-agnostic read/write primitives shared by every accessor.
// It applies no scoping of its own.
type core[T any, PT interface {
	*T
	Model
}] struct {
	spec    TableSpec
	q       Querier
	dialect Dialect
}

func newCore[T any, PT interface {
	*T
	Model
}](q Querier, dialect Dialect) core[T, PT] {
	return core[T, PT]{spec: specOf[T, PT](), q: q, dialect: dialect}
}

func (c core[T, PT]) get(ctx context.Context, f Filter) (*T, error) {
	query, args, err := newBuilder(c.spec, c.dialect).selectQuery(f.Take(1))
	if err != nil {
		return nil, err
	}
	var v T
	if err := c.q.QueryRowContext(ctx, query, args...).Scan(PT(&v).Pointers()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", c.spec.Name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s: %w", c.spec.Name, err)
	}
	return &v, nil
}

func (c core[T, PT]) find(ctx context.Context, f Filter) ([]*T, error) {
	query, args, err := newBuilder(c.spec, c.dialect).selectQuery(f)
	if err != nil {
		return nil, err
	}
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.spec.Name, err)
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		var v T
		if err := rows.Scan(PT(&v).Pointers()...); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", c.spec.Name, err)
		}
		out = append(out, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", c.spec.Name, err)
	}
	return out, nil
}

func (c core[T, PT]) count(ctx context.Context, f Filter) (int64, error) {
	query, args, err := newBuilder(c.spec, c.dialect).countQuery(f)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := c.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", c.spec.Name, err)
	}
	return n, nil
}

func (c core[T, PT]) insert(ctx context.Context, v *T) error {
	query, args, err := newBuilder(c.spec, c.dialect).insertQuery(PT(v).Values())
	if err != nil {
		return err
	}
	if _, err := c.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert %s: %w", c.spec.Name, err)
	}
	return nil
}

func (c core[T, PT]) update(ctx context.Context, f Filter, set []Assignment) (int64, error) {
	query, args, err := newBuilder(c.spec, c.dialect).updateQuery(f, set)
	if err != nil {
		return 0, err
	}
	res, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", c.spec.Name, err)
	}
	return rowsAffected(res)
}

func (c core[T, PT]) delete(ctx context.Context, f Filter) (int64, error) {
	query, args, err := newBuilder(c.spec, c.dialect).deleteQuery(f)
	if err != nil {
		return 0, err
	}
	res, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", c.spec.Name, err)
	}
	return rowsAffected(res)
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}
