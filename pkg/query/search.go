package query

import (
	"strings"

	"github.com/plaenen/iamcore/pkg/domain"
)

// Limits applied to every search. Requests above maxLimit are rejected,
// requests without a limit get defaultLimit.
const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Column names a projection table column for filters and sorting.
type Column struct {
	Table string
	Name  string
}

func (c Column) identifier() string {
	if c.Table == "" {
		return c.Name
	}
	return c.Table + "." + c.Name
}

// SearchRequest is the paging and sorting envelope of a search.
type SearchRequest struct {
	Offset        uint64
	Limit         uint64
	SortingColumn Column
	Asc           bool
}

// Filter is a node in the condition tree. Filters only ever emit
// parameterized SQL; values never end up in the statement text.
type Filter interface {
	appendTo(b *strings.Builder, args *[]any)
}

type comparison struct {
	column Column
	op     string
	value  any
}

func (f comparison) appendTo(b *strings.Builder, args *[]any) {
	b.WriteString(f.column.identifier())
	b.WriteString(f.op)
	b.WriteString("?")
	*args = append(*args, f.value)
}

// TextEquals matches the exact value.
func TextEquals(column Column, value string) Filter {
	return comparison{column: column, op: " = ", value: value}
}

// TextEqualsIgnoreCase matches the value case-insensitively.
func TextEqualsIgnoreCase(column Column, value string) Filter {
	return likeFilter{column: column, pattern: escapeLike(value)}
}

// TextContains matches values containing the substring, case-insensitively.
func TextContains(column Column, value string) Filter {
	return likeFilter{column: column, pattern: "%" + escapeLike(value) + "%"}
}

// TextStartsWith matches values with the prefix, case-insensitively.
func TextStartsWith(column Column, value string) Filter {
	return likeFilter{column: column, pattern: escapeLike(value) + "%"}
}

type likeFilter struct {
	column  Column
	pattern string
}

func (f likeFilter) appendTo(b *strings.Builder, args *[]any) {
	b.WriteString("LOWER(")
	b.WriteString(f.column.identifier())
	b.WriteString(`) LIKE LOWER(?) ESCAPE '\'`)
	*args = append(*args, f.pattern)
}

func escapeLike(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(value)
}

// NumberEquals matches the exact numeric value.
func NumberEquals(column Column, value int64) Filter {
	return comparison{column: column, op: " = ", value: value}
}

// NumberLess matches values below the bound.
func NumberLess(column Column, value int64) Filter {
	return comparison{column: column, op: " < ", value: value}
}

// NumberGreater matches values above the bound.
func NumberGreater(column Column, value int64) Filter {
	return comparison{column: column, op: " > ", value: value}
}

// InList matches any of the values. An empty list matches nothing.
func InList(column Column, values ...any) Filter {
	return inFilter{column: column, values: values}
}

type inFilter struct {
	column Column
	values []any
}

func (f inFilter) appendTo(b *strings.Builder, args *[]any) {
	if len(f.values) == 0 {
		b.WriteString("1 = 0")
		return
	}
	b.WriteString(f.column.identifier())
	b.WriteString(" IN (")
	for i, v := range f.values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("?")
		*args = append(*args, v)
	}
	b.WriteString(")")
}

// IsNull matches NULL values.
func IsNull(column Column) Filter {
	return nullFilter{column: column}
}

type nullFilter struct {
	column Column
}

func (f nullFilter) appendTo(b *strings.Builder, args *[]any) {
	b.WriteString(f.column.identifier())
	b.WriteString(" IS NULL")
}

// And requires all sub-filters.
func And(filters ...Filter) Filter { return junction{op: " AND ", filters: filters} }

// Or requires any sub-filter.
func Or(filters ...Filter) Filter { return junction{op: " OR ", filters: filters} }

type junction struct {
	op      string
	filters []Filter
}

func (f junction) appendTo(b *strings.Builder, args *[]any) {
	if len(f.filters) == 0 {
		b.WriteString("1 = 1")
		return
	}
	b.WriteString("(")
	for i, sub := range f.filters {
		if i > 0 {
			b.WriteString(f.op)
		}
		sub.appendTo(b, args)
	}
	b.WriteString(")")
}

// Not negates a filter.
func Not(filter Filter) Filter { return notFilter{inner: filter} }

type notFilter struct {
	inner Filter
}

func (f notFilter) appendTo(b *strings.Builder, args *[]any) {
	b.WriteString("NOT (")
	f.inner.appendTo(b, args)
	b.WriteString(")")
}

// assemble builds the WHERE/ORDER BY/LIMIT/OFFSET tail of a search. The
// instance filter is always prepended; tenant scoping is not optional.
func assemble(instanceColumn Column, instanceID string, req SearchRequest, filters ...Filter) (string, []any, error) {
	limit := req.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		return "", nil, domain.NewInvalidArgument(nil, "QUERY-lim01", "limit above maximum")
	}

	var (
		b    strings.Builder
		args []any
	)
	b.WriteString(" WHERE ")
	b.WriteString(instanceColumn.identifier())
	b.WriteString(" = ?")
	args = append(args, instanceID)

	for _, filter := range filters {
		b.WriteString(" AND ")
		filter.appendTo(&b, &args)
	}

	if req.SortingColumn.Name != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(req.SortingColumn.identifier())
		if !req.Asc {
			b.WriteString(" DESC")
		}
	}

	b.WriteString(" LIMIT ?")
	args = append(args, limit)
	if req.Offset > 0 {
		b.WriteString(" OFFSET ?")
		args = append(args, req.Offset)
	}
	return b.String(), args, nil
}
