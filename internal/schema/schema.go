package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownTable = errors.New("schema: unknown table")

type Column struct {
	Name string `json:"-"`
	Type string `json:"type"`
	Key  string `json:"key"`
}

// IsTemporal reports whether the declared type names a date/time kind.
func (c Column) IsTemporal() bool {
	lowered := strings.ToLower(c.Type)
	return strings.Contains(lowered, "timestamp") || strings.Contains(lowered, "datetime") || strings.Contains(lowered, "date")
}

// IsTimestamp is the narrower check used for operator-value conversion; plain
// date columns are excluded.
func (c Column) IsTimestamp() bool {
	lowered := strings.ToLower(c.Type)
	return strings.Contains(lowered, "timestamp") || strings.Contains(lowered, "datetime")
}

type Relation struct {
	Column           string `json:"column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

// Table keeps columns in ordinal position order.
type Table struct {
	Name       string
	Columns    []Column
	Relations  []Relation
	SampleData []map[string]any
}

func (t Table) Column(name string) (Column, bool) {
	for _, column := range t.Columns {
		if column.Name == name {
			return column, true
		}
	}
	return Column{}, false
}

func (t Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// TemporalColumn returns the first temporal column in ordinal order.
func (t Table) TemporalColumn() (string, bool) {
	for _, column := range t.Columns {
		if column.IsTemporal() {
			return column.Name, true
		}
	}
	return "", false
}

func (t Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, column := range t.Columns {
		names = append(names, column.Name)
	}
	return names
}

func (t Table) MarshalJSON() ([]byte, error) {
	buf := bytes.NewBufferString(`{"columns":{`)
	for i, column := range t.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKeyValue(buf, column.Name, column); err != nil {
			return nil, err
		}
	}
	buf.WriteString(`},"relations":`)
	relations := t.Relations
	if relations == nil {
		relations = []Relation{}
	}
	encoded, err := json.Marshal(relations)
	if err != nil {
		return nil, err
	}
	buf.Write(encoded)
	buf.WriteString(`,"sample_data":`)
	samples := t.SampleData
	if samples == nil {
		samples = []map[string]any{}
	}
	encoded, err = json.Marshal(samples)
	if err != nil {
		return nil, err
	}
	buf.Write(encoded)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Map is the table -> columns/relations/sample data description of a
// database, in introspection order.
type Map struct {
	Tables []Table
}

func (m Map) Table(name string) (Table, bool) {
	for _, table := range m.Tables {
		if table.Name == name {
			return table, true
		}
	}
	return Table{}, false
}

func (m Map) TableNames() []string {
	names := make([]string, 0, len(m.Tables))
	for _, table := range m.Tables {
		names = append(names, table.Name)
	}
	return names
}

func (m Map) MarshalJSON() ([]byte, error) {
	buf := bytes.NewBufferString("{")
	for i, table := range m.Tables {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKeyValue(buf, table.Name, table); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string) error {
	encodedKey, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(encodedKey)
	buf.WriteByte(':')
	return nil
}

func writeKeyValue(buf *bytes.Buffer, key string, value any) error {
	if err := writeKey(buf, key); err != nil {
		return err
	}
	encodedValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", key, err)
	}
	buf.Write(encodedValue)
	return nil
}
