package structured

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type Kind int

const (
	KindScalar Kind = iota
	KindList
	KindOperators
)

func (k Kind) String() string {
	switch k {
	case KindList:
		return "list"
	case KindOperators:
		return "operators"
	default:
		return "scalar"
	}
}

// FilterValue is the right-hand side of one filter: a scalar, a list of
// scalars rendered as IN (...) downstream, or an operator object such as
// {">=": v, "<=": v}.
type FilterValue struct {
	Kind      Kind
	Scalar    any
	List      []any
	Operators map[string]any
}

func ScalarValue(value any) FilterValue {
	return FilterValue{Kind: KindScalar, Scalar: value}
}

func ListValue(values ...any) FilterValue {
	list := make([]any, len(values))
	copy(list, values)
	return FilterValue{Kind: KindList, List: list}
}

func OperatorValue(operators map[string]any) FilterValue {
	copied := make(map[string]any, len(operators))
	for op, value := range operators {
		copied[op] = value
	}
	return FilterValue{Kind: KindOperators, Operators: copied}
}

func (v FilterValue) clone() FilterValue {
	switch v.Kind {
	case KindList:
		return ListValue(v.List...)
	case KindOperators:
		return OperatorValue(v.Operators)
	default:
		return v
	}
}

func (v FilterValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	case KindOperators:
		if v.Operators == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.Operators)
	default:
		return json.Marshal(v.Scalar)
	}
}

func (v *FilterValue) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return fmt.Errorf("decode filter value: %w", err)
	}
	switch typed := raw.(type) {
	case []any:
		*v = FilterValue{Kind: KindList, List: typed}
	case map[string]any:
		*v = FilterValue{Kind: KindOperators, Operators: typed}
	default:
		*v = FilterValue{Kind: KindScalar, Scalar: typed}
	}
	return nil
}

// Filters maps column names to filter values and keeps the order in which
// columns were first added.
type Filters struct {
	keys   []string
	values map[string]FilterValue
}

func NewFilters() Filters {
	return Filters{values: map[string]FilterValue{}}
}

func (f *Filters) Len() int {
	return len(f.keys)
}

func (f *Filters) Keys() []string {
	keys := make([]string, len(f.keys))
	copy(keys, f.keys)
	return keys
}

func (f *Filters) Get(column string) (FilterValue, bool) {
	if f.values == nil {
		return FilterValue{}, false
	}
	value, ok := f.values[column]
	return value, ok
}

func (f *Filters) Set(column string, value FilterValue) {
	if f.values == nil {
		f.values = map[string]FilterValue{}
	}
	if _, exists := f.values[column]; !exists {
		f.keys = append(f.keys, column)
	}
	f.values[column] = value
}

func (f *Filters) Delete(column string) {
	if _, exists := f.values[column]; !exists {
		return
	}
	delete(f.values, column)
	for i, key := range f.keys {
		if key == column {
			f.keys = append(f.keys[:i], f.keys[i+1:]...)
			break
		}
	}
}

func (f *Filters) Clone() Filters {
	out := NewFilters()
	for _, key := range f.keys {
		out.Set(key, f.values[key].clone())
	}
	return out
}

// ListColumns returns the columns whose filter is a list, in filter order.
func (f *Filters) ListColumns() []string {
	columns := make([]string, 0)
	for _, key := range f.keys {
		if f.values[key].Kind == KindList {
			columns = append(columns, key)
		}
	}
	return columns
}

func (f Filters) MarshalJSON() ([]byte, error) {
	buf := bytes.NewBufferString("{")
	for i, key := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodedKey, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		encodedValue, err := json.Marshal(f.values[key])
		if err != nil {
			return nil, fmt.Errorf("marshal filter %q: %w", key, err)
		}
		buf.Write(encodedKey)
		buf.WriteByte(':')
		buf.Write(encodedValue)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts either an object of column/value pairs or a list of
// {"columna": c, "valor": v} entries. List entries keep their value wrapped as
// {"valor": v} so comparison labels can still be read from them.
func (f *Filters) UnmarshalJSON(data []byte) error {
	*f = NewFilters()
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '[' {
		return f.unmarshalEntries(trimmed)
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	token, err := decoder.Token()
	if err != nil {
		return fmt.Errorf("decode filters: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("decode filters: expected object, got %v", token)
	}
	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return fmt.Errorf("decode filter column: %w", err)
		}
		column, ok := token.(string)
		if !ok {
			return fmt.Errorf("decode filter column: unexpected token %v", token)
		}
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			return fmt.Errorf("decode filter %q: %w", column, err)
		}
		var value FilterValue
		if err := value.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("decode filter %q: %w", column, err)
		}
		f.Set(column, value)
	}
	if _, err := decoder.Token(); err != nil {
		return fmt.Errorf("decode filters: %w", err)
	}
	return nil
}

func (f *Filters) unmarshalEntries(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var entries []map[string]any
	if err := decoder.Decode(&entries); err != nil {
		return fmt.Errorf("decode filter entries: %w", err)
	}
	for _, entry := range entries {
		column := ""
		for _, key := range []string{"columna", "column", "campo", "field"} {
			if name, ok := entry[key].(string); ok && strings.TrimSpace(name) != "" {
				column = strings.TrimSpace(name)
				break
			}
		}
		if column == "" {
			continue
		}
		value, hasValue := entry["valor"]
		if !hasValue {
			value, hasValue = entry["value"]
		}
		if !hasValue {
			continue
		}
		f.Set(column, OperatorValue(map[string]any{"valor": value}))
	}
	return nil
}
