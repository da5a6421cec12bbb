package nl2sql

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/spf13/cast"

	"github.com/detectql/detectql/internal/compare"
	"github.com/detectql/detectql/internal/query"
)

// NoResultsMessage is the reply when no usable result exists.
const NoResultsMessage = "No se encontraron resultados o hubo un problema con la consulta."

const narratorSystemPrompt = "Eres un asistente amigable y útil que explica información de bases de datos en términos sencillos para personas sin conocimientos técnicos. Para consultas comparativas, ofrece análisis detallado de las diferencias, proporciones y tendencias."

// DefaultPreviewRows caps the rows shown in a table summary.
const DefaultPreviewRows = 15

// Narrator turns result summaries into a friendly answer.
type Narrator struct {
	Completer Completer
}

// Narrate asks the model to rephrase summary. Callers fall back to the
// summary itself when it fails.
func (n *Narrator) Narrate(ctx context.Context, summary string) (string, error) {
	if n.Completer == nil {
		return "", fmt.Errorf("completer is required")
	}
	answer, err := n.Completer.Complete(ctx, CompletionRequest{
		Messages: []Message{
			{Role: "system", Content: narratorSystemPrompt},
			{Role: "user", Content: summary},
		},
		Temperature: floatPtr(0.2),
	})
	if err != nil {
		return "", fmt.Errorf("narrate result: %w", err)
	}
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("model returned an empty answer")
	}
	return answer, nil
}

func CountSummary(sqlText string, result query.Result) string {
	value := any(0)
	if len(result.Rows) > 0 && len(result.Rows[0]) > 0 {
		value = result.Rows[0][0]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "La consulta SQL usada fue: '%s'.\n", sqlText)
	fmt.Fprintf(&b, "En resumen, tenemos un total de %s registros que coinciden con tu búsqueda.", cellString(value))
	b.WriteString("\n\n¿Hay algo más en lo que pueda ayudarte?")
	return b.String()
}

func RowsSummary(sqlText string, result query.Result, preview int) string {
	if preview <= 0 {
		preview = DefaultPreviewRows
	}
	rows := result.Rows
	note := ""
	if len(rows) > preview {
		note = fmt.Sprintf("\n(Mostrando %d de %d resultados)", preview, len(rows))
		rows = rows[:preview]
	}

	var table strings.Builder
	table.WriteString(strings.Join(result.Columns, " | "))
	table.WriteByte('\n')
	width := 0
	for _, column := range result.Columns {
		width += len(column)
	}
	if len(result.Columns) > 1 {
		width += 3 * (len(result.Columns) - 1)
	}
	table.WriteString(strings.Repeat("-", width))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = cellString(cell)
		}
		table.WriteByte('\n')
		table.WriteString(strings.Join(cells, " | "))
	}
	table.WriteString(note)

	return fmt.Sprintf(
		"La consulta SQL usada fue: '%s'.\nAquí están los datos obtenidos:\n\n%s\n\n"+
			"Por favor, reformula esta información de manera clara y sencilla para alguien que no tiene conocimientos técnicos, "+
			"como si estuvieras explicándolo a un amigo. Hazlo en un tono accesible y amigable.",
		sqlText, table.String(),
	)
}

func ComparisonSummary(report compare.Report) string {
	var b strings.Builder
	b.WriteString("Análisis comparativo de categorías:\n\n")
	for _, entry := range report.Entries {
		fmt.Fprintf(&b, "- %s: %s (%s%%)\n", capitalize(entry.Category), formatNumber(entry.Value), formatNumber(entry.Percentage))
	}
	fmt.Fprintf(&b, "\nEn total se contabilizaron %s elementos en la base de datos.", formatNumber(report.Total))
	b.WriteString("\n\nPor favor, analiza estos datos comparativamente, destacando patrones, proporciones y posibles conclusiones entre las diferentes categorías.")
	return b.String()
}

func cellString(value any) string {
	if value == nil {
		return "NULL"
	}
	if text, err := cast.ToStringE(value); err == nil {
		return text
	}
	return fmt.Sprint(value)
}

func formatNumber(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func capitalize(value string) string {
	if value == "" {
		return value
	}
	runes := []rune(strings.ToLower(value))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
