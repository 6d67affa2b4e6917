package store

import "github.com/r3e-network/objectstore/expr"

// Pagination bounds a query page. Grounded on pkg/storage/crud.go's
// Pagination type; Cursor replaces Offset since query's pagination is
// cursor-based on tx_time, not offset-based.
type Pagination struct {
	Limit  int
	Cursor string // opaque; empty means "from the start"
}

// DefaultPagination mirrors pkg/storage/crud.go's default page size.
func DefaultPagination() Pagination {
	return Pagination{Limit: 50}
}

// Normalize clamps Limit into (0, maxLimit].
func (p Pagination) Normalize(maxLimit int) Pagination {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// Page wraps a query result page with its opaque continuation cursor. Per
// spec.md §4.4/§8, NextCursor is present iff the page was full.
type Page struct {
	Items      []Event
	NextCursor string
}

// QueryOptions combines a content filter, a type restriction, and
// pagination for Repository.Query.
type QueryOptions struct {
	TypeName   string
	Filter     expr.Node // nil means "no predicate"
	Pagination Pagination
}

// NewQueryOptions returns QueryOptions with default pagination.
func NewQueryOptions(typeName string) QueryOptions {
	return QueryOptions{TypeName: typeName, Pagination: DefaultPagination()}
}
