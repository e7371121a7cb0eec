package storage

import (
	"fmt"
	"strings"
)

type condOp int

const (
	opEq condOp = iota
	opNotEq
	opIsNull
	opNotNull
	opIn
	opEqOrNull
	opLt
)

// Cond is a single predicate on a column. Conditions in a Filter are ANDed.
type Cond struct {
	Column string
	op     condOp
	values []any
}

// Eq matches rows where column = value
func Eq(column string, value any) Cond {
	return Cond{Column: column, op: opEq, values: []any{value}}
}

// NotEq matches rows where column <> value
func NotEq(column string, value any) Cond {
	return Cond{Column: column, op: opNotEq, values: []any{value}}
}

// IsNull matches rows where column IS NULL
func IsNull(column string) Cond {
	return Cond{Column: column, op: opIsNull}
}

// NotNull matches rows where column IS NOT NULL
func NotNull(column string) Cond {
	return Cond{Column: column, op: opNotNull}
}

// In matches rows where column is one of values. An empty list matches nothing.
func In(column string, values ...any) Cond {
	return Cond{Column: column, op: opIn, values: values}
}

// Lt matches rows where column < value
func Lt(column string, value any) Cond {
	return Cond{Column: column, op: opLt, values: []any{value}}
}

// eqOrNull is used for shared-row reads
func eqOrNull(column string, value any) Cond {
	return Cond{Column: column, op: opEqOrNull, values: []any{value}}
}

// Filter selects rows
type Filter struct {
	Where   []Cond
	OrderBy []OrderTerm
	Limit   int
}

// OrderTerm is one ORDER BY column
type OrderTerm struct {
	Column string
	Desc   bool
}

// Where builds a filter from conditions
func Where(conds ...Cond) Filter {
	return Filter{Where: conds}
}

// Order returns a copy of f ordered by the given columns (ascending)
func (f Filter) Order(columns ...string) Filter {
	return f.order(false, columns)
}

// OrderDesc returns a copy of f ordered by the given columns, descending
func (f Filter) OrderDesc(columns ...string) Filter {
	return f.order(true, columns)
}

func (f Filter) order(desc bool, columns []string) Filter {
	terms := append([]OrderTerm(nil), f.OrderBy...)
	for _, col := range columns {
		terms = append(terms, OrderTerm{Column: col, Desc: desc})
	}
	f.OrderBy = terms
	return f
}

// Take returns a copy of f limited to n rows
func (f Filter) Take(n int) Filter {
	f.Limit = n
	return f
}

// prepend returns a copy of f with conds placed before the caller's conditions
func (f Filter) prepend(conds ...Cond) Filter {
	where := make([]Cond, 0, len(conds)+len(f.Where))
	where = append(where, conds...)
	where = append(where, f.Where...)
	f.Where = where
	return f
}

// Assignment is one column update in an UPDATE statement
type Assignment struct {
	Column string
	Value  any
}

// Assign sets column to value
func Assign(column string, value any) Assignment {
	return Assignment{Column: column, Value: value}
}

// builder renders SQL for one table in one dialect
type builder struct {
	spec    TableSpec
	dialect Dialect
	args    []any
}

func newBuilder(spec TableSpec, dialect Dialect) *builder {
	return &builder{spec: spec, dialect: dialect}
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.dialect.Placeholder(len(b.args))
}

func (b *builder) checkColumn(col string) error {
	if !b.spec.HasColumn(col) {
		return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, b.spec.Name, col)
	}
	return nil
}

func (b *builder) where(f Filter) (string, error) {
	if len(f.Where) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(f.Where))
	for _, c := range f.Where {
		if err := b.checkColumn(c.Column); err != nil {
			return "", err
		}
		switch c.op {
		case opEq:
			parts = append(parts, c.Column+" = "+b.bind(c.values[0]))
		case opNotEq:
			parts = append(parts, c.Column+" <> "+b.bind(c.values[0]))
		case opLt:
			parts = append(parts, c.Column+" < "+b.bind(c.values[0]))
		case opIsNull:
			parts = append(parts, c.Column+" IS NULL")
		case opNotNull:
			parts = append(parts, c.Column+" IS NOT NULL")
		case opEqOrNull:
			parts = append(parts, "("+c.Column+" = "+b.bind(c.values[0])+" OR "+c.Column+" IS NULL)")
		case opIn:
			if len(c.values) == 0 {
				parts = append(parts, "1 = 0")
				continue
			}
			marks := make([]string, len(c.values))
			for i, v := range c.values {
				marks[i] = b.bind(v)
			}
			parts = append(parts, c.Column+" IN ("+strings.Join(marks, ", ")+")")
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

func (b *builder) tail(f Filter) (string, error) {
	var sb strings.Builder
	if len(f.OrderBy) > 0 {
		terms := make([]string, len(f.OrderBy))
		for i, term := range f.OrderBy {
			if err := b.checkColumn(term.Column); err != nil {
				return "", err
			}
			terms[i] = term.Column
			if term.Desc {
				terms[i] += " DESC"
			}
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(terms, ", "))
	}
	if f.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", f.Limit)
	}
	return sb.String(), nil
}

func (b *builder) selectQuery(f Filter) (string, []any, error) {
	where, err := b.where(f)
	if err != nil {
		return "", nil, err
	}
	tail, err := b.tail(f)
	if err != nil {
		return "", nil, err
	}
	query := "SELECT " + strings.Join(b.spec.Columns, ", ") + " FROM " + b.spec.Name + where + tail
	return query, b.args, nil
}

func (b *builder) countQuery(f Filter) (string, []any, error) {
	where, err := b.where(f)
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) FROM " + b.spec.Name + where, b.args, nil
}

func (b *builder) insertQuery(values []any) (string, []any, error) {
	if len(values) != len(b.spec.Columns) {
		return "", nil, fmt.Errorf("%s: %d values for %d columns", b.spec.Name, len(values), len(b.spec.Columns))
	}
	marks := make([]string, len(values))
	for i, v := range values {
		marks[i] = b.bind(v)
	}
	query := "INSERT INTO " + b.spec.Name + " (" + strings.Join(b.spec.Columns, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
	return query, b.args, nil
}

func (b *builder) updateQuery(f Filter, set []Assignment) (string, []any, error) {
	if len(set) == 0 {
		return "", nil, ErrEmptyUpdate
	}
	sets := make([]string, len(set))
	for i, a := range set {
		if err := b.checkColumn(a.Column); err != nil {
			return "", nil, err
		}
		sets[i] = a.Column + " = " + b.bind(a.Value)
	}
	where, err := b.where(f)
	if err != nil {
		return "", nil, err
	}
	return "UPDATE " + b.spec.Name + " SET " + strings.Join(sets, ", ") + where, b.args, nil
}

func (b *builder) deleteQuery(f Filter) (string, []any, error) {
	where, err := b.where(f)
	if err != nil {
		return "", nil, err
	}
	return "DELETE FROM " + b.spec.Name + where, b.args, nil
}
