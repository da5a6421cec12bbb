package api

import (
	"net/http"

	"github.com/detectql/detectql/internal/auth"
	"github.com/detectql/detectql/internal/schema"
)

type schemaColumn struct {
	Name      string `json:"name"`
	HumanName string `json:"human_name"`
	Type      string `json:"type"`
	Key       string `json:"key,omitempty"`
}

type schemaTable struct {
	Name      string            `json:"name"`
	HumanName string            `json:"human_name"`
	Columns   []schemaColumn    `json:"columns"`
	Relations []schema.Relation `json:"relations,omitempty"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema provider is not configured", false, nil)
		return
	}
	if !requireRole(w, r, auth.RoleChatUser) {
		return
	}

	m, err := deps.Schema.Schema(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "SCHEMA_FETCH_FAILED", "failed to load schema", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": describeTables(m, deps.SchemaRules)})
}

func describeTables(m schema.Map, rules map[schema.RuleKey]string) []schemaTable {
	semantic := schema.BuildSemanticMap(m, rules)
	tables := make([]schemaTable, 0, len(m.Tables))
	for _, table := range m.Tables {
		out := schemaTable{
			Name:      table.Name,
			HumanName: semantic.HumanTableName(table.Name),
			Columns:   make([]schemaColumn, 0, len(table.Columns)),
			Relations: table.Relations,
		}
		for _, column := range table.Columns {
			out.Columns = append(out.Columns, schemaColumn{
				Name:      column.Name,
				HumanName: semantic.HumanColumnName(table.Name, column.Name),
				Type:      column.Type,
				Key:       column.Key,
			})
		}
		tables = append(tables, out)
	}
	return tables
}
