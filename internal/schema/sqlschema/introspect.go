// Package sqlschema reads table, column and foreign key metadata from
// information_schema so the rest of the pipeline can validate filters and
// prompt the language model with the real schema.
package sqlschema

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/detectql/detectql/internal/schema"
)

type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
	DialectDuckDB   Dialect = "duckdb"
)

// DialectForDriver maps a database/sql driver name to its dialect.
func DialectForDriver(driver string) Dialect {
	switch driver {
	case "pgx", "postgres":
		return DialectPostgres
	case "duckdb":
		return DialectDuckDB
	default:
		return DialectMySQL
	}
}

type Introspector struct {
	DB      *sql.DB
	Dialect Dialect
	// SchemaName is the information_schema table_schema to read: the
	// database name on MySQL, usually "public" on PostgreSQL and "main" on DuckDB.
	SchemaName string
	// MainTables restricts introspection to these tables when non-empty.
	MainTables []string
	// SampleRows is the number of rows fetched per table as sample data; 0
	// disables sampling.
	SampleRows int
	Logger     *slog.Logger
}

func (i *Introspector) Schema(ctx context.Context) (schema.Map, error) {
	if i.DB == nil {
		return schema.Map{}, fmt.Errorf("database is required")
	}
	tableNames, err := i.tableNames(ctx)
	if err != nil {
		return schema.Map{}, err
	}

	out := schema.Map{Tables: make([]schema.Table, 0, len(tableNames))}
	for _, name := range tableNames {
		table := schema.Table{Name: name, Relations: []schema.Relation{}, SampleData: []map[string]any{}}
		if table.Columns, err = i.columns(ctx, name); err != nil {
			return schema.Map{}, err
		}
		if table.Relations, err = i.relations(ctx, name); err != nil {
			return schema.Map{}, err
		}
		if i.SampleRows > 0 {
			sample, err := i.sample(ctx, name)
			if err != nil {
				if i.Logger != nil {
					i.Logger.Error("could not read sample rows", slog.String("table", name), slog.Any("error", err))
				}
			} else {
				table.SampleData = sample
			}
		}
		out.Tables = append(out.Tables, table)
	}
	return out, nil
}

func (i *Introspector) tableNames(ctx context.Context) ([]string, error) {
	args := []any{i.SchemaName}
	var b strings.Builder
	b.WriteString("SELECT table_name FROM information_schema.tables WHERE table_schema = ")
	b.WriteString(i.placeholder(1))
	if len(i.MainTables) > 0 {
		b.WriteString(" AND table_name IN (")
		for n, table := range i.MainTables {
			if n > 0 {
				b.WriteString(", ")
			}
			b.WriteString(i.placeholder(n + 2))
			args = append(args, table)
		}
		b.WriteString(")")
	}
	b.WriteString(" ORDER BY table_name")

	rows, err := i.DB.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return names, nil
}

func (i *Introspector) columns(ctx context.Context, table string) ([]schema.Column, error) {
	rows, err := i.DB.QueryContext(ctx, i.columnsQuery(), i.SchemaName, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columns := make([]schema.Column, 0)
	for rows.Next() {
		var name, dataType string
		var key sql.NullString
		if err := rows.Scan(&name, &dataType, &key); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", table, err)
		}
		columns = append(columns, schema.Column{Name: name, Type: dataType, Key: key.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns of %s: %w", table, err)
	}
	return columns, nil
}

func (i *Introspector) relations(ctx context.Context, table string) ([]schema.Relation, error) {
	queryText := i.relationsQuery()
	if queryText == "" {
		return []schema.Relation{}, nil
	}
	rows, err := i.DB.QueryContext(ctx, queryText, i.SchemaName, table)
	if err != nil {
		return nil, fmt.Errorf("list relations of %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	relations := make([]schema.Relation, 0)
	for rows.Next() {
		var relation schema.Relation
		if err := rows.Scan(&relation.Column, &relation.ReferencedTable, &relation.ReferencedColumn); err != nil {
			return nil, fmt.Errorf("scan relation of %s: %w", table, err)
		}
		relations = append(relations, relation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relations of %s: %w", table, err)
	}
	return relations, nil
}

func (i *Introspector) sample(ctx context.Context, table string) ([]map[string]any, error) {
	rows, err := i.DB.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", i.quoteIdent(table), i.SampleRows))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	sample := make([]map[string]any, 0, i.SampleRows)
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for n := range values {
			targets[n] = &values[n]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for n, column := range columns {
			if raw, ok := values[n].([]byte); ok {
				row[column] = string(raw)
				continue
			}
			row[column] = values[n]
		}
		sample = append(sample, row)
	}
	return sample, rows.Err()
}

func (i *Introspector) placeholder(n int) string {
	if i.Dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (i *Introspector) quoteIdent(name string) string {
	if i.Dialect == DialectMySQL || i.Dialect == "" {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

const (
	mysqlColumnsQuery = `SELECT column_name, data_type, column_key
FROM information_schema.columns
WHERE table_schema = ? AND table_name = ?
ORDER BY ordinal_position`

	postgresColumnsQuery = `SELECT c.column_name, c.data_type,
       CASE WHEN pk.column_name IS NOT NULL THEN 'PRI' ELSE '' END AS column_key
FROM information_schema.columns c
LEFT JOIN (
    SELECT kcu.column_name
    FROM information_schema.table_constraints tc
    JOIN information_schema.key_column_usage kcu
      ON tc.constraint_name = kcu.constraint_name
     AND tc.table_schema = kcu.table_schema
     AND tc.table_name = kcu.table_name
    WHERE tc.constraint_type = 'PRIMARY KEY'
      AND tc.table_schema = $1 AND tc.table_name = $2
) pk ON pk.column_name = c.column_name
WHERE c.table_schema = $1 AND c.table_name = $2
ORDER BY c.ordinal_position`

	duckdbColumnsQuery = `SELECT column_name, data_type, '' AS column_key
FROM information_schema.columns
WHERE table_schema = ? AND table_name = ?
ORDER BY ordinal_position`

	mysqlRelationsQuery = `SELECT column_name, referenced_table_name, referenced_column_name
FROM information_schema.key_column_usage
WHERE table_schema = ? AND table_name = ? AND referenced_table_name IS NOT NULL`

	postgresRelationsQuery = `SELECT kcu.column_name, ccu.table_name, ccu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name
 AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON ccu.constraint_name = tc.constraint_name
 AND ccu.table_schema = tc.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY'
  AND tc.table_schema = $1 AND tc.table_name = $2`
)

func (i *Introspector) columnsQuery() string {
	switch i.Dialect {
	case DialectPostgres:
		return postgresColumnsQuery
	case DialectDuckDB:
		return duckdbColumnsQuery
	default:
		return mysqlColumnsQuery
	}
}

// relationsQuery returns "" for dialects whose information_schema does not
// expose foreign keys.
func (i *Introspector) relationsQuery() string {
	switch i.Dialect {
	case DialectPostgres:
		return postgresRelationsQuery
	case DialectDuckDB:
		return ""
	default:
		return mysqlRelationsQuery
	}
}
