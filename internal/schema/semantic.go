package schema

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode"
)

type SemanticColumn struct {
	Name      string
	HumanName string
}

type SemanticTable struct {
	Name      string
	HumanName string
	Columns   []SemanticColumn
}

// SemanticMap translates technical table and column names into readable
// ones. Table order follows the schema it was built from.
type SemanticMap struct {
	Tables []SemanticTable
}

// RuleKey identifies a column whose readable name is overridden.
type RuleKey struct {
	Table  string
	Column string
}

// Humanize turns snake_case into capitalized words: "carros_venta" -> "Carros Venta".
func Humanize(name string) string {
	words := strings.Split(name, "_")
	for i, word := range words {
		words[i] = capitalize(word)
	}
	return strings.Join(words, " ")
}

func BuildSemanticMap(m Map, rules map[RuleKey]string) SemanticMap {
	out := SemanticMap{Tables: make([]SemanticTable, 0, len(m.Tables))}
	for _, table := range m.Tables {
		semantic := SemanticTable{
			Name:      table.Name,
			HumanName: Humanize(table.Name),
			Columns:   make([]SemanticColumn, 0, len(table.Columns)),
		}
		for _, column := range table.Columns {
			human, ok := rules[RuleKey{Table: table.Name, Column: column.Name}]
			if !ok {
				human = Humanize(column.Name)
			}
			semantic.Columns = append(semantic.Columns, SemanticColumn{Name: column.Name, HumanName: human})
		}
		out.Tables = append(out.Tables, semantic)
	}
	return out
}

func (s SemanticMap) HumanTableName(table string) string {
	for _, candidate := range s.Tables {
		if candidate.Name == table && candidate.HumanName != "" {
			return candidate.HumanName
		}
	}
	return Humanize(table)
}

func (s SemanticMap) HumanColumnName(table, column string) string {
	for _, candidate := range s.Tables {
		if candidate.Name != table {
			continue
		}
		for _, col := range candidate.Columns {
			if col.Name == column {
				return col.HumanName
			}
		}
	}
	return Humanize(column)
}

func (s SemanticMap) MarshalJSON() ([]byte, error) {
	buf := bytes.NewBufferString("{")
	for i, table := range s.Tables {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(buf, table.Name); err != nil {
			return nil, err
		}
		buf.WriteString(`{"human_name":`)
		encoded, err := json.Marshal(table.HumanName)
		if err != nil {
			return nil, err
		}
		buf.Write(encoded)
		buf.WriteString(`,"columns":{`)
		for j, column := range table.Columns {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeKeyValue(buf, column.Name, column.HumanName); err != nil {
				return nil, err
			}
		}
		buf.WriteString("}}")
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func capitalize(word string) string {
	if word == "" {
		return ""
	}
	runes := []rune(strings.ToLower(word))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
