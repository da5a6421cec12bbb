package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/detectql/detectql/internal/daterange"
	"github.com/detectql/detectql/internal/filters"
	"github.com/detectql/detectql/internal/intent"
	"github.com/detectql/detectql/internal/nl2sql"
	"github.com/detectql/detectql/internal/query"
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
				{Name: "description", Type: "varchar"},
				{Name: "attribute_id", Type: "int"},
				{Name: "timestamp", Type: "bigint"},
				{Name: "created_at", Type: "timestamp"},
			},
		},
		{
			Name:    "cameras",
			Columns: []schema.Column{{Name: "id", Type: "int", Key: "PRI"}, {Name: "name", Type: "varchar"}},
		},
	}}
}

type fakeInterpreter struct {
	raw   string
	err   error
	calls int
}

func (f *fakeInterpreter) Interpret(_ context.Context, _ string, _ schema.Map, _ schema.SemanticMap) ([]*structured.Query, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return structured.Decode(f.raw)
}

// fakeSQL renders "SELECT <what> FROM <table> WHERE description = '<value>'"
// and fails for tables listed in failTables.
type fakeSQL struct {
	failTables map[string]bool
	queries    []*structured.Query
}

func (f *fakeSQL) Generate(_ context.Context, q *structured.Query) (string, error) {
	f.queries = append(f.queries, q)
	if f.failTables[q.Table] {
		return "", errors.New("model unavailable")
	}
	what := "*"
	if structured.IsCountAction(q.Action) {
		what = "COUNT(*)"
	}
	sqlText := fmt.Sprintf("SELECT %s FROM %s", what, q.Table)
	if value, ok := q.Filters.Get("description"); ok && value.Kind == structured.KindScalar {
		sqlText += fmt.Sprintf(" WHERE description = '%v'", value.Scalar)
	}
	return sqlText, nil
}

type fakeEngine struct {
	results  map[string]query.Result
	requests []query.Request
}

func (f *fakeEngine) Execute(_ context.Context, request query.Request) (query.Result, error) {
	f.requests = append(f.requests, request)
	result, ok := f.results[request.SQL]
	if !ok {
		return query.Result{}, fmt.Errorf("no such table")
	}
	return result, nil
}

type fakeNarrator struct {
	err       error
	summaries []string
}

func (f *fakeNarrator) Narrate(_ context.Context, summary string) (string, error) {
	f.summaries = append(f.summaries, summary)
	if f.err != nil {
		return "", f.err
	}
	return "narrated", nil
}

type fakeRecorder struct {
	responses []Response
	err       error
}

func (f *fakeRecorder) Record(_ context.Context, response Response) error {
	f.responses = append(f.responses, response)
	return f.err
}

type fixture struct {
	pipeline    *Pipeline
	interpreter *fakeInterpreter
	sql         *fakeSQL
	engine      *fakeEngine
	narrator    *fakeNarrator
	recorder    *fakeRecorder
}

func newFixture(raw string) *fixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		interpreter: &fakeInterpreter{raw: raw},
		sql:         &fakeSQL{failTables: map[string]bool{}},
		engine:      &fakeEngine{results: map[string]query.Result{}},
		narrator:    &fakeNarrator{},
		recorder:    &fakeRecorder{},
	}
	dates := &daterange.Resolver{Logger: logger, Now: func() time.Time { return fixedNow }}
	f.pipeline = &Pipeline{
		Schema:      schema.Static(testSchema()),
		Interpreter: f.interpreter,
		SQL:         f.sql,
		Engine:      f.engine,
		Narrator:    f.narrator,
		Normalizer:  filters.NewNormalizer(logger, dates),
		Recorder:    f.recorder,
		Logger:      logger,
		Location:    time.UTC,
		RowLimit:    25,
		Now:         func() time.Time { return fixedNow },
	}
	return f
}

func TestAnswerHelpRequestSkipsPipeline(t *testing.T) {
	f := newFixture(`{}`)
	response, err := f.pipeline.Answer(context.Background(), "Hola, ¿qué puedes hacer?")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !response.Help || response.Reply != intent.HelpMessage {
		t.Fatalf("response = %+v", response)
	}
	if f.interpreter.calls != 0 {
		t.Fatal("help request must not reach the interpreter")
	}
}

func TestAnswerRejectsEmptyPrompt(t *testing.T) {
	f := newFixture(`{}`)
	if _, err := f.pipeline.Answer(context.Background(), "   "); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("Answer() error = %v, want ErrEmptyPrompt", err)
	}
}

func TestAnswerComparativeBatch(t *testing.T) {
	f := newFixture(`[
		{"accion":"contar","filtros":{"description":"rojo"}},
		{"accion":"contar","filtros":{"description":"azul"}}
	]`)
	f.engine.results["SELECT COUNT(*) FROM detections WHERE description = 'rojo'"] = query.Result{Columns: []string{"COUNT(*)"}, Rows: [][]any{{int64(30)}}}
	f.engine.results["SELECT COUNT(*) FROM detections WHERE description = 'azul'"] = query.Result{Columns: []string{"COUNT(*)"}, Rows: [][]any{{int64(10)}}}

	response, err := f.pipeline.Answer(context.Background(), "compara autos rojos y azules de hoy en gráfico de barras")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if len(response.Queries) != 2 || response.Queries[0].Table != "detections" || response.Queries[1].Table != "detections" {
		t.Fatalf("queries = %+v", response.Queries)
	}
	timeFilter, ok := response.Queries[0].Filters.Get("created_at")
	if !ok || timeFilter.Kind != structured.KindOperators {
		t.Fatalf("expected injected time filter, filters = %v", response.Queries[0].Filters.Keys())
	}
	if timeFilter.Operators[">="] != time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC).UnixMilli() {
		t.Fatalf("time filter = %v", timeFilter.Operators)
	}

	if response.Comparison == nil {
		t.Fatal("expected comparison report")
	}
	if labels := response.Comparison.Labels(); len(labels) != 2 || labels[0] != "rojo" || labels[1] != "azul" {
		t.Fatalf("labels = %v", labels)
	}
	if response.Comparison.Entries[0].Percentage != 75 {
		t.Fatalf("entries = %+v", response.Comparison.Entries)
	}
	if len(f.narrator.summaries) != 1 || !strings.Contains(f.narrator.summaries[0], "- Rojo: 30 (75%)") {
		t.Fatalf("summaries = %q", f.narrator.summaries)
	}
	if response.Reply != "narrated\n\nGenerando gráfico de barras con los datos solicitados." {
		t.Fatalf("Reply = %q", response.Reply)
	}
	if response.Chart == nil || response.Chart.Type != intent.ChartBar {
		t.Fatalf("chart = %+v", response.Chart)
	}
	if len(response.Chart.Values) != 2 || response.Chart.Values[0] != 30 || response.Chart.Values[1] != 10 {
		t.Fatalf("chart values = %v", response.Chart.Values)
	}
	for _, request := range f.engine.requests {
		if request.RowLimit != 25 {
			t.Fatalf("RowLimit = %d", request.RowLimit)
		}
	}
	if len(f.recorder.responses) != 1 || f.recorder.responses[0].ID != response.ID {
		t.Fatalf("recorded = %+v", f.recorder.responses)
	}
	if !response.AnsweredAt.Equal(fixedNow) || response.ID == "" {
		t.Fatalf("ID/AnsweredAt = %q/%s", response.ID, response.AnsweredAt)
	}
}

func TestAnswerListingWithDailyAnalysisAndChart(t *testing.T) {
	f := newFixture(`{"accion":"listar","tabla":"detections","filtros":{}}`)
	day := func(d int) int64 { return time.Date(2025, 3, d, 12, 0, 0, 0, time.UTC).UnixMilli() }
	f.engine.results["SELECT * FROM detections"] = query.Result{
		Columns: []string{"timestamp", "confidence"},
		Rows:    [][]any{{day(1), 0.9}, {day(1), 0.7}, {day(3), 0.8}},
	}

	response, err := f.pipeline.Answer(context.Background(), "muestra detecciones del 01/03/2025 al 03/03/2025 visualizar en lineas")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if response.Comparison != nil {
		t.Fatalf("unexpected comparison %+v", response.Comparison)
	}
	if response.Analysis == nil || len(response.Analysis.Buckets) != 3 {
		t.Fatalf("analysis = %+v", response.Analysis)
	}
	if response.Chart == nil || response.Chart.Type != intent.ChartLine {
		t.Fatalf("chart = %+v", response.Chart)
	}
	if got := response.Chart.Values; len(got) != 3 || got[0] != 2 || got[1] != 0 || got[2] != 1 {
		t.Fatalf("chart values = %v", got)
	}
	if len(f.narrator.summaries) != 1 || !strings.Contains(f.narrator.summaries[0], "timestamp | confidence") {
		t.Fatalf("summaries = %q", f.narrator.summaries)
	}
	timeFilter, _ := response.Queries[0].Filters.Get("created_at")
	if timeFilter.Operators["<="] != time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC).UnixMilli()-1 {
		t.Fatalf("time filter = %v", timeFilter.Operators)
	}
}

func TestAnswerScopesFailuresToTheOffendingQuery(t *testing.T) {
	f := newFixture(`[
		{"accion":"contar","tabla":"plates","filtros":{}},
		{"accion":"contar","tabla":"cameras","filtros":{}},
		{"accion":"contar","tabla":"detections","filtros":{"description":"verde"}},
		{"accion":"contar","tabla":"detections","filtros":{"description":"negro"}}
	]`)
	f.sql.failTables["cameras"] = true
	f.engine.results["SELECT COUNT(*) FROM detections WHERE description = 'verde'"] = query.Result{Columns: []string{"COUNT(*)"}, Rows: [][]any{{int64(4)}}}

	response, err := f.pipeline.Answer(context.Background(), "cuantas detecciones verdes y negras hay en total")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if len(response.Errors) != 4 {
		t.Fatalf("errors = %q", response.Errors)
	}
	if response.Errors[0] == "" || response.SQL[0] != "" || response.Results[0] != nil {
		t.Fatalf("unknown table item = %q/%q/%v", response.Errors[0], response.SQL[0], response.Results[0])
	}
	if response.Errors[1] == "" || response.SQL[1] != "" {
		t.Fatalf("sql generation item = %q/%q", response.Errors[1], response.SQL[1])
	}
	if response.Errors[2] != "" || response.Results[2] == nil {
		t.Fatalf("successful item = %q/%v", response.Errors[2], response.Results[2])
	}
	if response.Errors[3] == "" || response.SQL[3] == "" || response.Results[3] != nil {
		t.Fatalf("execution item = %q/%q/%v", response.Errors[3], response.SQL[3], response.Results[3])
	}
	if response.Comparison != nil {
		t.Fatal("a single count must not produce a comparison")
	}
	if len(f.narrator.summaries) != 1 || !strings.Contains(f.narrator.summaries[0], "un total de 4 registros") {
		t.Fatalf("summaries = %q", f.narrator.summaries)
	}
	if response.Reply != "narrated" {
		t.Fatalf("Reply = %q", response.Reply)
	}
}

func TestAnswerFallsBackToSummaryWhenNarrationFails(t *testing.T) {
	f := newFixture(`{"accion":"contar","tabla":"detections","filtros":{}}`)
	f.narrator.err = errors.New("timeout")
	f.engine.results["SELECT COUNT(*) FROM detections"] = query.Result{Columns: []string{"COUNT(*)"}, Rows: [][]any{{int64(7)}}}

	response, err := f.pipeline.Answer(context.Background(), "cuantas detecciones hay registradas")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !strings.Contains(response.Reply, "un total de 7 registros") {
		t.Fatalf("Reply = %q", response.Reply)
	}
}

func TestAnswerWithoutUsableResults(t *testing.T) {
	f := newFixture(`{"accion":"contar","tabla":"plates","filtros":{}}`)
	f.recorder.err = errors.New("bucket gone")

	response, err := f.pipeline.Answer(context.Background(), "cuantas placas se registraron ayer")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if response.Reply != nl2sql.NoResultsMessage {
		t.Fatalf("Reply = %q", response.Reply)
	}
	if response.Answered() {
		t.Fatal("Answered() = true, want false")
	}
	if len(f.recorder.responses) != 1 {
		t.Fatal("expected exchange to be recorded even without results")
	}
	if len(f.narrator.summaries) != 0 {
		t.Fatal("narrator must not be called without results")
	}
}

func TestAnswerEmptyInterpretation(t *testing.T) {
	f := newFixture(`[]`)
	response, err := f.pipeline.Answer(context.Background(), "cuantos vehiculos pasaron por la entrada")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if response.Reply != nl2sql.NoResultsMessage {
		t.Fatalf("Reply = %q", response.Reply)
	}
}

func TestAnswerPropagatesUpstreamFailures(t *testing.T) {
	f := newFixture(`{}`)
	f.interpreter.err = errors.New("status 500")
	if _, err := f.pipeline.Answer(context.Background(), "cuantos vehiculos pasaron por la entrada"); err == nil {
		t.Fatal("expected interpretation error")
	}

	f = newFixture(`{}`)
	f.pipeline.Schema = failingSchema{}
	if _, err := f.pipeline.Answer(context.Background(), "cuantos vehiculos pasaron por la entrada"); err == nil {
		t.Fatal("expected schema error")
	}
	if f.interpreter.calls != 0 {
		t.Fatal("interpreter must not run without a schema")
	}
}

type failingSchema struct{}

func (failingSchema) Schema(context.Context) (schema.Map, error) {
	return schema.Map{}, errors.New("connection refused")
}
