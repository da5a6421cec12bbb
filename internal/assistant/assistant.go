// Package assistant answers a natural-language question about the detection
// database: it structures the question, renders and runs SQL for every
// structured query, recombines comparative batches and narrates the outcome.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/detectql/detectql/internal/analysis"
	"github.com/detectql/detectql/internal/compare"
	"github.com/detectql/detectql/internal/daterange"
	"github.com/detectql/detectql/internal/filters"
	"github.com/detectql/detectql/internal/intent"
	"github.com/detectql/detectql/internal/nl2sql"
	"github.com/detectql/detectql/internal/observability"
	"github.com/detectql/detectql/internal/query"
	"github.com/detectql/detectql/internal/schema"
	"github.com/detectql/detectql/internal/structured"
	"github.com/detectql/detectql/internal/tableinfer"
)

var ErrEmptyPrompt = errors.New("prompt is required")

// Reasons a structured query produced no result.
const (
	SkipUnknownTable = "unknown_table"
	SkipSQLGenerate  = "sql_generation"
	SkipExecution    = "execution"
)

// Comparison report kinds.
const (
	ReportBatch   = "batch"
	ReportGrouped = "grouped"
)

type Interpreter interface {
	Interpret(ctx context.Context, question string, m schema.Map, semantic schema.SemanticMap) ([]*structured.Query, error)
}

type SQLGenerator interface {
	Generate(ctx context.Context, q *structured.Query) (string, error)
}

type Narrator interface {
	Narrate(ctx context.Context, summary string) (string, error)
}

// Recorder persists answered exchanges. Failures are logged and never
// surface to the caller.
type Recorder interface {
	Record(ctx context.Context, response Response) error
}

// Chart describes the chart a question asked for, with the series to draw
// when one could be derived.
type Chart struct {
	Type    intent.ChartType `json:"type"`
	Name    string           `json:"name"`
	Request string           `json:"request"`
	Labels  []string         `json:"labels,omitempty"`
	Values  []float64        `json:"values,omitempty"`
}

// Response is the outcome of one question. Queries, SQL, Results and Errors
// are parallel: entry i of each belongs to structured query i. A skipped or
// failed query has an empty SQL and/or a nil result and a non-empty error.
type Response struct {
	ID         string              `json:"id"`
	Prompt     string              `json:"prompt"`
	AnsweredAt time.Time           `json:"answered_at"`
	Help       bool                `json:"help,omitempty"`
	Queries    []*structured.Query `json:"queries"`
	SQL        []string            `json:"sql"`
	Results    []*query.Result     `json:"results"`
	Errors     []string            `json:"errors"`
	Reply      string              `json:"reply"`
	Comparison *compare.Report     `json:"comparison,omitempty"`
	Analysis   *analysis.Daily     `json:"analysis,omitempty"`
	Chart      *Chart              `json:"chart,omitempty"`
}

// Answered reports whether at least one structured query produced a result.
func (r Response) Answered() bool {
	for _, result := range r.Results {
		if result != nil {
			return true
		}
	}
	return false
}

type Pipeline struct {
	Schema      schema.Provider
	Rules       map[schema.RuleKey]string
	Interpreter Interpreter
	SQL         SQLGenerator
	Engine      query.Engine
	Narrator    Narrator
	Normalizer  *filters.Normalizer
	Recorder    Recorder
	Logger      *slog.Logger
	// Location is the zone used for daily analysis buckets.
	Location    *time.Location
	RowLimit    int
	PreviewRows int
	Now         func() time.Time
}

// Answer runs prompt through the pipeline. Failures of an individual
// structured query are recorded in the response; an error is returned only
// when the schema or the interpretation step is unavailable.
func (p *Pipeline) Answer(ctx context.Context, prompt string) (Response, error) {
	start := time.Now()
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Response{}, ErrEmptyPrompt
	}
	logger := observability.LoggerFromContext(ctx, p.Logger)
	response := Response{
		ID:         uuid.NewString(),
		Prompt:     prompt,
		AnsweredAt: p.now(),
	}

	if intent.IsHelpRequest(prompt) {
		response.Help = true
		response.Reply = intent.HelpMessage
		observability.ObserveAnswer(observability.OutcomeHelp, time.Since(start))
		return response, nil
	}
	chartType, wantsChart := intent.ChartRequest(prompt)

	m, err := p.Schema.Schema(ctx)
	if err != nil {
		observability.ObserveAnswer(observability.OutcomeFailed, time.Since(start))
		return Response{}, fmt.Errorf("load schema: %w", err)
	}
	semantic := schema.BuildSemanticMap(m, p.Rules)

	queries, err := p.Interpreter.Interpret(ctx, prompt, m, semantic)
	if errors.Is(err, structured.ErrEmptyInterpretation) {
		logger.Warn("question produced no structured query", slog.String("prompt", prompt))
		response.Reply = nl2sql.NoResultsMessage
		p.finish(ctx, logger, &response, observability.OutcomeEmpty, start)
		return response, nil
	}
	if err != nil {
		observability.ObserveAnswer(observability.OutcomeFailed, time.Since(start))
		return Response{}, fmt.Errorf("interpret question: %w", err)
	}
	if inferred := tableinfer.Propagate(queries, prompt, semantic); inferred != "" {
		logger.Debug("table inferred from question", slog.String("table", inferred))
	}

	response.Queries = queries
	response.SQL = make([]string, len(queries))
	response.Results = make([]*query.Result, len(queries))
	response.Errors = make([]string, len(queries))
	for i, q := range queries {
		p.runQuery(ctx, logger, m, prompt, i, q, &response)
	}

	if !response.Answered() {
		response.Reply = nl2sql.NoResultsMessage
		p.attachChart(&response, chartType, wantsChart)
		p.finish(ctx, logger, &response, observability.OutcomeEmpty, start)
		return response, nil
	}

	response.Comparison = p.compare(response)
	response.Reply = p.reply(ctx, logger, response)
	response.Analysis = p.analyze(response)
	p.attachChart(&response, chartType, wantsChart)
	if wantsChart {
		response.Reply += fmt.Sprintf("\n\nGenerando %s con los datos solicitados.", chartType.Name())
	}
	p.finish(ctx, logger, &response, observability.OutcomeAnswered, start)
	return response, nil
}

func (p *Pipeline) runQuery(ctx context.Context, logger *slog.Logger, m schema.Map, prompt string, i int, q *structured.Query, response *Response) {
	if _, err := p.normalizer().Normalize(q, m, prompt); err != nil {
		logger.Warn("skipping structured query", slog.Int("index", i), slog.Any("error", err))
		p.skip(response, i, SkipUnknownTable, err)
		return
	}

	sqlText, err := p.SQL.Generate(ctx, q)
	if err != nil {
		logger.Error("sql generation failed", slog.Int("index", i), slog.String("table", q.Table), slog.Any("error", err))
		p.skip(response, i, SkipSQLGenerate, err)
		return
	}
	response.SQL[i] = sqlText

	execStart := time.Now()
	result, err := p.Engine.Execute(ctx, query.Request{SQL: sqlText, RowLimit: p.RowLimit})
	observability.ObserveSQLExecution(err, time.Since(execStart))
	if err != nil {
		logger.Error("sql execution failed", slog.Int("index", i), slog.String("sql", sqlText), slog.Any("error", err))
		p.skip(response, i, SkipExecution, err)
		return
	}
	logger.Info("sql executed",
		slog.Int("index", i),
		slog.String("table", q.Table),
		slog.Int("rows", len(result.Rows)),
		slog.Duration("duration", result.Duration),
	)
	response.Results[i] = &result
}

func (p *Pipeline) skip(response *Response, i int, reason string, err error) {
	observability.IncSkippedQuery(reason)
	response.Errors[i] = err.Error()
}

func (p *Pipeline) compare(response Response) *compare.Report {
	pairs := make([]compare.Pair, len(response.Queries))
	var single *query.Result
	results := 0
	for i, q := range response.Queries {
		pairs[i] = compare.Pair{Result: response.Results[i], Query: q, SQL: response.SQL[i]}
		if response.Results[i] != nil {
			single = response.Results[i]
			results++
		}
	}
	if report, ok := compare.Aggregate(pairs); ok {
		observability.IncComparisonReport(ReportBatch)
		return &report
	}
	if results == 1 {
		if report, ok := compare.AggregateGrouped(*single); ok {
			observability.IncComparisonReport(ReportGrouped)
			return &report
		}
	}
	return nil
}

// reply narrates the comparison when there is one, otherwise every result
// on its own, joined by blank lines.
func (p *Pipeline) reply(ctx context.Context, logger *slog.Logger, response Response) string {
	if response.Comparison != nil {
		return p.narrate(ctx, logger, nl2sql.ComparisonSummary(*response.Comparison))
	}
	var parts []string
	for i, result := range response.Results {
		if result == nil {
			continue
		}
		switch {
		case structured.IsCountAction(response.Queries[i].Action):
			parts = append(parts, p.narrate(ctx, logger, nl2sql.CountSummary(response.SQL[i], *result)))
		case !result.HasRows():
			parts = append(parts, nl2sql.NoResultsMessage)
		default:
			parts = append(parts, p.narrate(ctx, logger, nl2sql.RowsSummary(response.SQL[i], *result, p.PreviewRows)))
		}
	}
	return strings.Join(parts, "\n\n")
}

func (p *Pipeline) narrate(ctx context.Context, logger *slog.Logger, summary string) string {
	if p.Narrator == nil {
		return summary
	}
	answer, err := p.Narrator.Narrate(ctx, summary)
	if err != nil {
		logger.Warn("narration failed, replying with summary", slog.Any("error", err))
		return summary
	}
	return answer
}

func (p *Pipeline) analyze(response Response) *analysis.Daily {
	for _, result := range response.Results {
		if result == nil {
			continue
		}
		if daily, ok := analysis.DailyFromResult(*result, p.Location); ok {
			return &daily
		}
	}
	return nil
}

func (p *Pipeline) attachChart(response *Response, chartType intent.ChartType, wanted bool) {
	if !wanted {
		return
	}
	chart := &Chart{Type: chartType, Name: chartType.Name(), Request: response.Prompt}
	switch {
	case response.Comparison != nil:
		chart.Labels = response.Comparison.Labels()
		chart.Values = response.Comparison.Values()
	case response.Analysis != nil:
		chart.Labels = response.Analysis.Labels()
		chart.Values = response.Analysis.Counts()
	}
	response.Chart = chart
}

func (p *Pipeline) finish(ctx context.Context, logger *slog.Logger, response *Response, outcome string, start time.Time) {
	if p.Recorder != nil {
		err := p.Recorder.Record(ctx, *response)
		observability.IncArchivedExchange(err)
		if err != nil {
			logger.Warn("archiving exchange failed", slog.String("exchange_id", response.ID), slog.Any("error", err))
		}
	}
	observability.ObserveAnswer(outcome, time.Since(start))
}

func (p *Pipeline) normalizer() *filters.Normalizer {
	if p.Normalizer != nil {
		return p.Normalizer
	}
	return filters.NewNormalizer(p.Logger, daterange.NewResolver(p.Logger, p.Location))
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
