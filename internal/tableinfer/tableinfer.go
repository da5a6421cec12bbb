// Package tableinfer picks the table a question is about when the
// interpretation step did not name one.
package tableinfer

import (
	"strings"

	"github.com/detectql/detectql/internal/schema"
	"github.com/detectql/detectql/internal/structured"
)

// InferTable matches text against the human table names of m. The first
// table whose full human name occurs in text wins; failing that, the first
// table with any single word of its human name in text; failing that, the
// first table of m. It returns false only when m has no tables.
func InferTable(text string, m schema.SemanticMap) (string, bool) {
	if len(m.Tables) == 0 {
		return "", false
	}
	lowered := strings.ToLower(text)

	for _, table := range m.Tables {
		if strings.Contains(lowered, humanName(table)) {
			return table.Name, true
		}
	}
	for _, table := range m.Tables {
		for _, word := range strings.Fields(humanName(table)) {
			if strings.Contains(lowered, word) {
				return table.Name, true
			}
		}
	}
	return m.Tables[0].Name, true
}

func humanName(table schema.SemanticTable) string {
	name := table.HumanName
	if strings.TrimSpace(name) == "" {
		name = table.Name
	}
	return strings.ToLower(name)
}

// Propagate fills in the table of every query that lacks one with the table
// inferred once from the original request text. It returns the inferred
// table, or "" when no query needed one or nothing could be inferred.
func Propagate(queries []*structured.Query, text string, m schema.SemanticMap) string {
	missing := false
	for _, query := range queries {
		if query != nil && strings.TrimSpace(query.Table) == "" {
			missing = true
			break
		}
	}
	if !missing {
		return ""
	}

	table, ok := InferTable(text, m)
	if !ok {
		return ""
	}
	for _, query := range queries {
		if query != nil && strings.TrimSpace(query.Table) == "" {
			query.Table = table
		}
	}
	return table
}
