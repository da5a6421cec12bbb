package query

import (
	"context"
	"time"
)

type Request struct {
	SQL      string
	RowLimit int
}

// Result is one executed statement. Columns and Rows are empty, never nil,
// for statements that return no result set.
type Result struct {
	Columns      []string      `json:"columns"`
	Rows         [][]any       `json:"data"`
	RowsAffected int64         `json:"rows_affected,omitempty"`
	Duration     time.Duration `json:"-"`
}

func (r Result) HasRows() bool {
	return len(r.Rows) > 0
}

// ColumnIndex returns the position of the named column, or -1.
func (r Result) ColumnIndex(name string) int {
	for i, column := range r.Columns {
		if column == name {
			return i
		}
	}
	return -1
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
