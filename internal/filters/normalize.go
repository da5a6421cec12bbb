package filters

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/detectql/detectql/internal/daterange"
	"github.com/detectql/detectql/internal/schema"
	"github.com/detectql/detectql/internal/structured"
)

// operatorDateLayout is the DD-MM-YYYY form the interpreter is asked to use
// inside operator objects.
const operatorDateLayout = "2-1-2006"

// Conventions holds the domain constants of the detection database:
// attribute_id 1 marks a plate detection and 2 a color detection.
type Conventions struct {
	AttributeColumn  string
	ColorAttributeID int64
	ColorKeywords    []string
}

func DefaultConventions() Conventions {
	return Conventions{
		AttributeColumn:  "attribute_id",
		ColorAttributeID: 2,
		ColorKeywords:    []string{"color"},
	}
}

type UnknownTableError struct {
	Table string
}

func (e *UnknownTableError) Error() string {
	if e.Table == "" {
		return "structured query has no table"
	}
	return fmt.Sprintf("table %q is not in the schema", e.Table)
}

func (e *UnknownTableError) Unwrap() error {
	return schema.ErrUnknownTable
}

type Normalizer struct {
	Logger      *slog.Logger
	Dates       *daterange.Resolver
	Conventions Conventions
	// OnDroppedFilter, when set, is called for every filter removed because
	// its column does not exist.
	OnDroppedFilter func(table, column string)
}

func NewNormalizer(logger *slog.Logger, dates *daterange.Resolver) *Normalizer {
	return &Normalizer{
		Logger:      logger,
		Dates:       dates,
		Conventions: DefaultConventions(),
	}
}

// Normalize validates and converts q.Filters against the schema of q.Table,
// replacing them in place. rawText is the original question; when it names a
// date and the table has a temporal column, a day-range filter on that column
// replaces any existing one. List filters are kept as they are.
func (n *Normalizer) Normalize(q *structured.Query, m schema.Map, rawText string) (*structured.Query, error) {
	table, ok := m.Table(q.Table)
	if q.Table == "" || !ok {
		return q, &UnknownTableError{Table: q.Table}
	}

	processed := structured.NewFilters()
	for _, column := range q.Filters.Keys() {
		value, _ := q.Filters.Get(column)
		if value.Kind == structured.KindList {
			processed.Set(column, value)
			continue
		}

		columnInfo, exists := table.Column(column)
		if !exists {
			n.warn("filter column not in table, dropping filter",
				slog.String("table", table.Name),
				slog.String("column", column),
			)
			if n.OnDroppedFilter != nil {
				n.OnDroppedFilter(table.Name, column)
			}
			continue
		}

		if value.Kind == structured.KindOperators && columnInfo.IsTimestamp() {
			value = n.convertOperatorDates(table.Name, column, value)
		}
		processed.Set(column, value)
	}

	if strings.TrimSpace(rawText) != "" {
		if ref, found := daterange.Extract(rawText); found {
			if column, hasTemporal := table.TemporalColumn(); hasTemporal {
				bounds := n.Dates.Resolve(ref)
				processed.Set(column, structured.OperatorValue(map[string]any{
					">=": bounds.StartMs,
					"<=": bounds.EndMs,
				}))
				n.info("time filter added",
					slog.String("table", table.Name),
					slog.String("column", column),
					slog.Int64("start_ms", bounds.StartMs),
					slog.Int64("end_ms", bounds.EndMs),
				)
			}
		}
	}

	q.Filters = processed
	n.markColorQuery(q, table, rawText)
	return q, nil
}

func (n *Normalizer) convertOperatorDates(table, column string, value structured.FilterValue) structured.FilterValue {
	converted := make(map[string]any, len(value.Operators))
	for op, operand := range value.Operators {
		text, isString := operand.(string)
		if !isString {
			converted[op] = operand
			continue
		}
		parsed, err := time.ParseInLocation(operatorDateLayout, strings.TrimSpace(text), n.location())
		if err != nil {
			if n.Logger != nil {
				n.Logger.Error("could not convert filter date, keeping original value",
					slog.String("table", table),
					slog.String("column", column),
					slog.String("operator", op),
					slog.Any("error", err),
				)
			}
			converted[op] = operand
			continue
		}
		converted[op] = parsed.UnixMilli()
	}
	return structured.OperatorValue(converted)
}

func (n *Normalizer) markColorQuery(q *structured.Query, table schema.Table, rawText string) {
	conv := n.Conventions
	if conv.AttributeColumn == "" {
		return
	}
	current, pinned := q.Filters.Get(conv.AttributeColumn)
	if pinned && current.Kind == structured.KindScalar {
		if id, err := cast.ToFloat64E(current.Scalar); err == nil && id == float64(conv.ColorAttributeID) {
			q.ColorQuery = true
			return
		}
	}

	lowered := strings.ToLower(rawText)
	for _, keyword := range conv.ColorKeywords {
		if keyword == "" || !strings.Contains(lowered, strings.ToLower(keyword)) {
			continue
		}
		q.ColorQuery = true
		if !pinned && table.HasColumn(conv.AttributeColumn) {
			q.Filters.Set(conv.AttributeColumn, structured.ScalarValue(conv.ColorAttributeID))
		}
		return
	}
}

func (n *Normalizer) location() *time.Location {
	if n.Dates != nil && n.Dates.Now != nil {
		return n.Dates.Now().Location()
	}
	return time.Local
}

func (n *Normalizer) warn(msg string, attrs ...any) {
	if n.Logger != nil {
		n.Logger.Warn(msg, attrs...)
	}
}

func (n *Normalizer) info(msg string, attrs ...any) {
	if n.Logger != nil {
		n.Logger.Info(msg, attrs...)
	}
}
