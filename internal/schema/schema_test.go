package schema

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func detectionsSchema() Map {
	return Map{Tables: []Table{
		{
			Name: "detections",
			Columns: []Column{
				{Name: "id", Type: "int", Key: "PRI"},
				{Name: "object_id", Type: "varchar"},
				{Name: "attribute_id", Type: "int"},
				{Name: "description", Type: "varchar"},
				{Name: "init_time", Type: "bigint"},
				{Name: "created_at", Type: "DATETIME"},
				{Name: "updated_on", Type: "date"},
			},
			Relations: []Relation{{Column: "object_id", ReferencedTable: "object", ReferencedColumn: "id"}},
		},
		{Name: "object", Columns: []Column{{Name: "id", Type: "varchar", Key: "PRI"}}},
	}}
}

func TestTemporalColumnUsesOrdinalOrder(t *testing.T) {
	table, ok := detectionsSchema().Table("detections")
	if !ok {
		t.Fatal("detections table missing")
	}
	column, ok := table.TemporalColumn()
	if !ok || column != "created_at" {
		t.Fatalf("TemporalColumn() = %q, %v", column, ok)
	}
	updated, _ := table.Column("updated_on")
	if !updated.IsTemporal() || updated.IsTimestamp() {
		t.Fatalf("date column temporal/timestamp = %v/%v", updated.IsTemporal(), updated.IsTimestamp())
	}
	if _, ok := detectionsSchema().Table("missing"); ok {
		t.Fatal("unexpected table")
	}
}

func TestMapMarshalJSONKeepsOrder(t *testing.T) {
	m := Map{Tables: []Table{{Name: "b", Columns: []Column{{Name: "z", Type: "int"}, {Name: "a", Type: "text", Key: "PRI"}}}, {Name: "a"}}}
	encoded, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"b":{"columns":{"z":{"type":"int","key":""},"a":{"type":"text","key":"PRI"}},"relations":[],"sample_data":[]},"a":{"columns":{},"relations":[],"sample_data":[]}}`
	if string(encoded) != want {
		t.Fatalf("json = %s\nwant %s", encoded, want)
	}
}

func TestHumanize(t *testing.T) {
	cases := map[string]string{
		"carros_venta":   "Carros Venta",
		"fecha_CREACION": "Fecha Creacion",
		"detections":     "Detections",
		"":               "",
	}
	for input, want := range cases {
		if got := Humanize(input); got != want {
			t.Fatalf("Humanize(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestBuildSemanticMapAppliesRules(t *testing.T) {
	semantic := BuildSemanticMap(detectionsSchema(), map[RuleKey]string{
		{Table: "detections", Column: "description"}: "Color",
	})
	if len(semantic.Tables) != 2 || semantic.Tables[0].Name != "detections" {
		t.Fatalf("tables = %+v", semantic.Tables)
	}
	if got := semantic.HumanColumnName("detections", "description"); got != "Color" {
		t.Fatalf("HumanColumnName() = %q", got)
	}
	if got := semantic.HumanColumnName("detections", "init_time"); got != "Init Time" {
		t.Fatalf("HumanColumnName() = %q", got)
	}
	if got := semantic.HumanTableName("unknown_table"); got != "Unknown Table" {
		t.Fatalf("HumanTableName() = %q", got)
	}

	encoded, err := json.Marshal(SemanticMap{Tables: []SemanticTable{{Name: "object", HumanName: "Objeto", Columns: []SemanticColumn{{Name: "id", HumanName: "Id"}}}}})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(encoded) != `{"object":{"human_name":"Objeto","columns":{"id":"Id"}}}` {
		t.Fatalf("json = %s", encoded)
	}
}

type countingProvider struct {
	calls int
	err   error
}

func (p *countingProvider) Schema(context.Context) (Map, error) {
	p.calls++
	if p.err != nil {
		return Map{}, p.err
	}
	return detectionsSchema(), nil
}

func TestCachedProviderCachesSuccessOnly(t *testing.T) {
	source := &countingProvider{err: errors.New("db down")}
	provider := NewCachedProvider(source)
	if _, err := provider.Schema(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	source.err = nil
	for i := 0; i < 3; i++ {
		if _, err := provider.Schema(context.Background()); err != nil {
			t.Fatalf("Schema() error = %v", err)
		}
	}
	if source.calls != 2 {
		t.Fatalf("calls = %d, want 2", source.calls)
	}
	provider.Invalidate()
	if _, err := provider.Schema(context.Background()); err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	if source.calls != 3 {
		t.Fatalf("calls after invalidate = %d", source.calls)
	}
}

func TestDescribe(t *testing.T) {
	m := detectionsSchema()
	m.Tables[1].SampleData = []map[string]any{{"id": "car-1"}}
	text := m.Describe()
	for _, want := range []string{
		"Tabla: detections\n",
		"Columnas: id (int [PK]), object_id (varchar),",
		"FK en detections.object_id -> object.id\n",
		"Filas de muestra:\nid: car-1\n",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("Describe() missing %q in:\n%s", want, text)
		}
	}
}
