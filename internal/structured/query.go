package structured

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyInterpretation = errors.New("structured: empty interpretation")

// Query is the intermediate action/table/filters form that sits between
// natural-language interpretation and SQL generation.
type Query struct {
	Action  string  `json:"accion"`
	Table   string  `json:"tabla,omitempty"`
	Filters Filters `json:"filtros"`
	Column  string  `json:"columna,omitempty"`

	// ColorQuery is set during normalization when the query targets vehicle colors.
	ColorQuery bool `json:"-"`
}

type wireQuery struct {
	Accion  string          `json:"accion"`
	Action  string          `json:"action"`
	Tabla   *string         `json:"tabla"`
	Table   *string         `json:"table"`
	Filtros json.RawMessage `json:"filtros"`
	Filters json.RawMessage `json:"filters"`
	Columna *string         `json:"columna"`
	Column  *string         `json:"column"`
}

func (q *Query) UnmarshalJSON(data []byte) error {
	var wire wireQuery
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*q = Query{
		Action: firstNonEmpty(wire.Accion, wire.Action),
		Table:  firstNonEmpty(deref(wire.Tabla), deref(wire.Table)),
		Column: firstNonEmpty(deref(wire.Columna), deref(wire.Column)),
	}
	rawFilters := wire.Filtros
	if len(bytes.TrimSpace(rawFilters)) == 0 {
		rawFilters = wire.Filters
	}
	if err := q.Filters.UnmarshalJSON(rawFilters); err != nil {
		return err
	}
	return nil
}

func (q *Query) Clone() *Query {
	clone := *q
	clone.Filters = q.Filters.Clone()
	return &clone
}

// Decode parses a model answer holding either one structured query object or
// an array of them (a comparative request).
func Decode(raw string) ([]*Query, error) {
	text := stripCodeFence(raw)
	if text == "" {
		return nil, ErrEmptyInterpretation
	}

	if strings.HasPrefix(text, "[") {
		var queries []*Query
		if err := json.Unmarshal([]byte(text), &queries); err != nil {
			return nil, fmt.Errorf("decode structured query list: %w", err)
		}
		out := make([]*Query, 0, len(queries))
		for _, item := range queries {
			if item != nil {
				out = append(out, item)
			}
		}
		if len(out) == 0 {
			return nil, ErrEmptyInterpretation
		}
		return out, nil
	}

	var single Query
	if err := json.Unmarshal([]byte(text), &single); err != nil {
		return nil, fmt.Errorf("decode structured query: %w", err)
	}
	return []*Query{&single}, nil
}

var countActions = map[string]struct{}{
	"contar":   {},
	"conteo":   {},
	"cantidad": {},
	"count":    {},
}

// IsCountAction reports whether action is one of the recognized count verbs.
func IsCountAction(action string) bool {
	_, ok := countActions[strings.ToLower(strings.TrimSpace(action))]
	return ok
}

func stripCodeFence(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	}
	return strings.TrimSpace(trimmed)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
