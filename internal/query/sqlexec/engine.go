package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/detectql/detectql/internal/query"
)

var ErrNotAllowed = errors.New("only read-only statements are allowed")

// Engine executes generated SQL against the detection database.
type Engine struct {
	DB *sql.DB
	// ReadOnly rejects statements other than SELECT, WITH, SHOW, DESCRIBE
	// and EXPLAIN before they reach the database.
	ReadOnly bool
}

func NewEngine(db *sql.DB, readOnly bool) *Engine {
	return &Engine{DB: db, ReadOnly: readOnly}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if e.DB == nil {
		return query.Result{}, fmt.Errorf("database is required")
	}
	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	verb := leadingKeyword(sqlText)
	if e.ReadOnly && !isReadOnlyVerb(verb) {
		return query.Result{}, fmt.Errorf("%w: %q", ErrNotAllowed, verb)
	}

	start := time.Now()
	if !returnsRows(verb) {
		res, err := e.DB.ExecContext(ctx, sqlText)
		if err != nil {
			return query.Result{}, fmt.Errorf("execute statement: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			affected = 0
		}
		return query.Result{
			Columns:      []string{},
			Rows:         [][]any{},
			RowsAffected: affected,
			Duration:     time.Since(start),
		}, nil
	}

	if request.RowLimit > 0 && (verb == "select" || verb == "with") {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, request.RowLimit)
	}

	rows, err := e.DB.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	return query.Result{
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

// IsReadOnly reports whether sqlText starts with a statement the engine
// accepts in read-only mode.
func IsReadOnly(sqlText string) bool {
	return isReadOnlyVerb(leadingKeyword(sqlText))
}

func isReadOnlyVerb(verb string) bool {
	switch verb {
	case "select", "with", "show", "describe", "desc", "explain":
		return true
	}
	return false
}

func returnsRows(verb string) bool {
	return isReadOnlyVerb(verb) || verb == "pragma"
}

func leadingKeyword(sqlText string) string {
	trimmed := strings.TrimLeft(sqlText, " \t\r\n(")
	end := strings.IndexFunc(trimmed, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\r' || r == '\n' || r == '('
	})
	if end < 0 {
		end = len(trimmed)
	}
	return strings.ToLower(trimmed[:end])
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
