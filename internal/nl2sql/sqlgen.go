package nl2sql

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/detectql/detectql/internal/structured"
)

// SQLGenerator asks the model to write one SQL statement for a normalized
// structured query.
type SQLGenerator struct {
	Completer Completer
	// Dialect names the SQL flavor in the prompt, for example "MySQL".
	Dialect  string
	RowLimit int
}

func (g *SQLGenerator) Generate(ctx context.Context, q *structured.Query) (string, error) {
	if g.Completer == nil {
		return "", fmt.Errorf("completer is required")
	}
	if q == nil || strings.TrimSpace(q.Table) == "" {
		return "", fmt.Errorf("structured query has no table")
	}
	prompt, err := g.prompt(q)
	if err != nil {
		return "", err
	}
	answer, err := g.Completer.Complete(ctx, CompletionRequest{
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: floatPtr(0),
	})
	if err != nil {
		return "", fmt.Errorf("generate sql: %w", err)
	}
	sqlText := stripMarkdownSQL(answer)
	if sqlText == "" {
		return "", fmt.Errorf("model returned empty SQL")
	}
	return sqlText, nil
}

func (g *SQLGenerator) prompt(q *structured.Query) (string, error) {
	listColumns := q.Filters.ListColumns()
	plain := q.Filters.Clone()
	for _, column := range listColumns {
		plain.Delete(column)
	}
	filtersJSON, err := json.Marshal(plain)
	if err != nil {
		return "", fmt.Errorf("marshal filters: %w", err)
	}

	dialect := g.Dialect
	if dialect == "" {
		dialect = "MySQL"
	}
	limit := g.RowLimit
	if limit <= 0 {
		limit = 25
	}
	action := strings.ToLower(strings.TrimSpace(q.Action))

	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert SQL assistant for %s. Convert the following query structure into a valid SQL statement.\n\n", dialect)
	b.WriteString("Query Structure:\n")
	fmt.Fprintf(&b, "Table: %s\n", q.Table)
	fmt.Fprintf(&b, "Filters: %s\n", filtersJSON)
	fmt.Fprintf(&b, "Action: %s\n", action)
	for _, column := range listColumns {
		value, _ := q.Filters.Get(column)
		values, err := json.Marshal(value.List)
		if err != nil {
			return "", fmt.Errorf("marshal values of %s: %w", column, err)
		}
		fmt.Fprintf(&b, "Multiple values for column '%s': %s\n", column, values)
	}
	if action == "promedio" && q.Column != "" {
		fmt.Fprintf(&b, "Column for average: %s\n", q.Column)
	}

	b.WriteString("\nRules:\n")
	b.WriteString("- Si la acción es \"contar\" o \"count\", usar: SELECT ... COUNT(*)\n")
	b.WriteString("- Si existen múltiples valores para una columna, usar la cláusula IN\n")
	b.WriteString("- Si se necesitan agregaciones con múltiples valores, usar GROUP BY\n")
	b.WriteString("- Aplicar filtros en la cláusula WHERE\n")
	b.WriteString("- Para filtros de rango con operadores como \">=\" y \"<=\", usar la sintaxis correcta\n")
	b.WriteString("- Usar valores de marca de tiempo en milisegundos\n")
	fmt.Fprintf(&b, "- Limitar los resultados a %d registros\n", limit)
	b.WriteString("- Para consultas complejas con varias columnas de valores, hacer agregaciones y agrupar según sea necesario\n")

	if q.ColorQuery {
		b.WriteString(colorExamples(limit))
	} else {
		b.WriteString(genericExamples(limit))
	}
	b.WriteString("\nRespond only with the generated SQL query.\n")
	return b.String(), nil
}

func colorExamples(limit int) string {
	return fmt.Sprintf(`
Examples for color queries:
1. Colors available in the database:
SELECT DISTINCT description
FROM detections
WHERE attribute_id = 2
  AND init_time BETWEEN 1741132800000 AND 1741219199999
LIMIT %[1]d;

2. Counting detections by color:
SELECT description, COUNT(*) AS cantidad_detecciones
FROM detections
WHERE attribute_id = 2
  AND init_time BETWEEN 1741132800000 AND 1741219199999
GROUP BY description
LIMIT %[1]d;

3. Detections of one color:
SELECT *
FROM detections
WHERE attribute_id = 2
  AND description = 'red'
  AND init_time BETWEEN 1741132800000 AND 1741219199999
LIMIT %[1]d;
`, limit)
}

func genericExamples(limit int) string {
	return fmt.Sprintf(`
Examples:
-> Detections per camera:
SELECT LEFT(object_id, LENGTH(object_id) - 27) AS camera_id,
       attribute_id,
       COUNT(attribute_id)
FROM detections
GROUP BY 1, 2
LIMIT %[1]d;

-> Detections per camera in a time window:
SELECT LEFT(object_id, LENGTH(object_id) - 27) AS camera_id,
       attribute_id,
       COUNT(attribute_id)
FROM detections
WHERE init_time BETWEEN 1740614400000 AND 1740700799999
GROUP BY 1, 2
LIMIT %[1]d;
`, limit)
}
