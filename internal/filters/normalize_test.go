package filters

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/detectql/detectql/internal/daterange"
	"github.com/detectql/detectql/internal/schema"
	"github.com/detectql/detectql/internal/structured"
)

var fixedNow = time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

func testSchema() schema.Map {
	return schema.Map{Tables: []schema.Table{
		{
			Name: "detections",
			Columns: []schema.Column{
				{Name: "id", Type: "int", Key: "PRI"},
				{Name: "object_id", Type: "varchar"},
				{Name: "attribute_id", Type: "int"},
				{Name: "description", Type: "varchar"},
				{Name: "init_time", Type: "bigint"},
				{Name: "created_at", Type: "timestamp"},
			},
		},
		{
			Name: "object",
			Columns: []schema.Column{
				{Name: "id", Type: "varchar", Key: "PRI"},
				{Name: "camera", Type: "varchar"},
			},
		},
	}}
}

func newTestNormalizer(logs *bytes.Buffer) *Normalizer {
	logger := slog.New(slog.NewTextHandler(logs, nil))
	dates := &daterange.Resolver{Logger: logger, Now: func() time.Time { return fixedNow }}
	return NewNormalizer(logger, dates)
}

func decodeOne(t *testing.T, raw string) *structured.Query {
	t.Helper()
	queries, err := structured.Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return queries[0]
}

func TestNormalizeDropsUnknownColumns(t *testing.T) {
	var logs bytes.Buffer
	normalizer := newTestNormalizer(&logs)
	var dropped []string
	normalizer.OnDroppedFilter = func(table, column string) { dropped = append(dropped, table+"."+column) }

	query := decodeOne(t, `{"accion":"contar","tabla":"detections","filtros":{"plate":"ABC123","description":"rojo"}}`)
	got, err := normalizer.Normalize(query, testSchema(), "")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if keys := got.Filters.Keys(); len(keys) != 1 || keys[0] != "description" {
		t.Fatalf("filter keys = %v", keys)
	}
	if len(dropped) != 1 || dropped[0] != "detections.plate" {
		t.Fatalf("dropped = %v", dropped)
	}
	if !strings.Contains(logs.String(), "plate") {
		t.Fatalf("expected warning for dropped column, logs = %q", logs.String())
	}
	if got.ColorQuery {
		t.Fatal("plain query marked as color query")
	}
}

func TestNormalizeUnknownTable(t *testing.T) {
	var logs bytes.Buffer
	normalizer := newTestNormalizer(&logs)

	for _, raw := range []string{
		`{"accion":"contar","tabla":"cars","filtros":{}}`,
		`{"accion":"contar","filtros":{}}`,
	} {
		_, err := normalizer.Normalize(decodeOne(t, raw), testSchema(), "")
		var tableErr *UnknownTableError
		if !errors.As(err, &tableErr) {
			t.Fatalf("Normalize(%s) error = %v, want UnknownTableError", raw, err)
		}
		if !errors.Is(err, schema.ErrUnknownTable) {
			t.Fatalf("error %v does not wrap ErrUnknownTable", err)
		}
	}
}

func TestNormalizeKeepsListValues(t *testing.T) {
	var logs bytes.Buffer
	normalizer := newTestNormalizer(&logs)

	query := decodeOne(t, `{"accion":"contar","tabla":"detections","filtros":{"description":["rojo","azul"],"not_a_column":[1,2]}}`)
	got, err := normalizer.Normalize(query, testSchema(), "")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	value, ok := got.Filters.Get("description")
	if !ok || value.Kind != structured.KindList || len(value.List) != 2 {
		t.Fatalf("description filter = %+v, %v", value, ok)
	}
	if _, ok := got.Filters.Get("not_a_column"); !ok {
		t.Fatal("list filter should be preserved without validation")
	}
	if columns := got.Filters.ListColumns(); len(columns) != 2 {
		t.Fatalf("ListColumns() = %v", columns)
	}
}

func TestNormalizeConvertsOperatorDates(t *testing.T) {
	var logs bytes.Buffer
	normalizer := newTestNormalizer(&logs)

	query := decodeOne(t, `{"accion":"contar","tabla":"detections","filtros":{"created_at":{">=":"01-03-2025","<=":"mañana"},"init_time":{">=":"01-03-2025"}}}`)
	got, err := normalizer.Normalize(query, testSchema(), "")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	created, _ := got.Filters.Get("created_at")
	want := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	if created.Operators[">="] != want {
		t.Fatalf("created_at >= = %#v, want %d", created.Operators[">="], want)
	}
	if created.Operators["<="] != "mañana" {
		t.Fatalf("unparseable date should be kept, got %#v", created.Operators["<="])
	}
	if !strings.Contains(logs.String(), "could not convert filter date") {
		t.Fatalf("expected conversion error log, logs = %q", logs.String())
	}

	initTime, _ := got.Filters.Get("init_time")
	if initTime.Operators[">="] != "01-03-2025" {
		t.Fatalf("non-timestamp column should not be converted, got %#v", initTime.Operators[">="])
	}
}

func TestNormalizeInjectsTimeRange(t *testing.T) {
	var logs bytes.Buffer
	normalizer := newTestNormalizer(&logs)

	query := decodeOne(t, `{"accion":"contar","tabla":"detections","filtros":{"created_at":{">=":0}}}`)
	got, err := normalizer.Normalize(query, testSchema(), "cuantos autos detectados hoy")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	created, ok := got.Filters.Get("created_at")
	if !ok || created.Kind != structured.KindOperators {
		t.Fatalf("created_at filter = %+v", created)
	}
	start := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC).UnixMilli()
	if created.Operators[">="] != start || created.Operators["<="] != start+86_399_999 {
		t.Fatalf("created_at operators = %#v", created.Operators)
	}

	// Tables without a temporal column get no time filter.
	objectQuery := decodeOne(t, `{"accion":"listar","tabla":"object","filtros":{}}`)
	got, err = normalizer.Normalize(objectQuery, testSchema(), "objetos detectados hoy")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got.Filters.Len() != 0 {
		t.Fatalf("object filters = %v", got.Filters.Keys())
	}
}

func TestNormalizeColorConvention(t *testing.T) {
	var logs bytes.Buffer
	normalizer := newTestNormalizer(&logs)

	query := decodeOne(t, `{"accion":"contar","tabla":"detections","filtros":{"description":"rojo"}}`)
	got, err := normalizer.Normalize(query, testSchema(), "cuantos autos de color rojo")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if !got.ColorQuery {
		t.Fatal("expected color query")
	}
	attr, ok := got.Filters.Get("attribute_id")
	if !ok || attr.Scalar != int64(2) {
		t.Fatalf("attribute_id = %+v, %v", attr, ok)
	}

	pinned := decodeOne(t, `{"accion":"contar","tabla":"detections","filtros":{"attribute_id":2}}`)
	got, err = normalizer.Normalize(pinned, testSchema(), "cuantos autos rojos")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if !got.ColorQuery {
		t.Fatal("attribute_id 2 should mark a color query")
	}

	plate := decodeOne(t, `{"accion":"contar","tabla":"detections","filtros":{"attribute_id":1}}`)
	got, err = normalizer.Normalize(plate, testSchema(), "patentes con color")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	attr, _ = got.Filters.Get("attribute_id")
	if attr.Scalar != json.Number("1") {
		t.Fatalf("explicit attribute_id must not be overridden, got %#v", attr.Scalar)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	var logs bytes.Buffer
	normalizer := newTestNormalizer(&logs)
	text := "cantidad de autos color azul detectados hoy"

	query := decodeOne(t, `{"accion":"contar","tabla":"detections","filtros":{"description":"azul","camera":"c1","object_id":["a","b"]}}`)
	first, err := normalizer.Normalize(query, testSchema(), text)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	firstJSON, _ := json.Marshal(first.Filters)

	second, err := normalizer.Normalize(first.Clone(), testSchema(), text)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	secondJSON, _ := json.Marshal(second.Filters)
	if string(firstJSON) != string(secondJSON) {
		t.Fatalf("second pass changed filters:\n%s\n%s", firstJSON, secondJSON)
	}
	if first.ColorQuery != second.ColorQuery {
		t.Fatal("color flag changed on second pass")
	}
}
