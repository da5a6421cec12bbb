package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Describe renders m as plain text for prompts: one block per table with
// its columns, primary keys, sample rows and foreign keys.
func (m Map) Describe() string {
	var b strings.Builder
	for _, table := range m.Tables {
		fmt.Fprintf(&b, "Tabla: %s\n", table.Name)

		columns := make([]string, 0, len(table.Columns))
		for _, column := range table.Columns {
			label := fmt.Sprintf("%s (%s", column.Name, column.Type)
			if column.Key == "PRI" {
				label += " [PK]"
			}
			columns = append(columns, label+")")
		}
		fmt.Fprintf(&b, "Columnas: %s\n", strings.Join(columns, ", "))

		if len(table.SampleData) > 0 {
			b.WriteString("Filas de muestra:\n")
			for _, row := range table.SampleData {
				keys := make([]string, 0, len(row))
				for key := range row {
					keys = append(keys, key)
				}
				sort.Strings(keys)
				parts := make([]string, 0, len(keys))
				for _, key := range keys {
					parts = append(parts, fmt.Sprintf("%s: %v", key, row[key]))
				}
				b.WriteString(strings.Join(parts, ", "))
				b.WriteByte('\n')
			}
		}

		for _, relation := range table.Relations {
			fmt.Fprintf(&b, "FK en %s.%s -> %s.%s\n", table.Name, relation.Column, relation.ReferencedTable, relation.ReferencedColumn)
		}
		b.WriteString(strings.Repeat("-", 50))
		b.WriteByte('\n')
	}
	return b.String()
}
