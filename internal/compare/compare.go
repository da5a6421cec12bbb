// Package compare turns several count results, or one grouped count result,
// into a ranked comparison with percentages.
package compare

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/detectql/detectql/internal/query"
	"github.com/detectql/detectql/internal/structured"
)

// Pair is one executed statement of a batch with the structured query and
// SQL text it came from. A nil Result marks a failed execution.
type Pair struct {
	Result *query.Result
	Query  *structured.Query
	SQL    string
}

type Entry struct {
	Category   string  `json:"category"`
	Value      float64 `json:"value"`
	Percentage float64 `json:"percentage"`
}

type Report struct {
	Entries []Entry `json:"entries"`
	Total   float64 `json:"total"`
}

// Labels returns the entry categories in rank order.
func (r Report) Labels() []string {
	labels := make([]string, len(r.Entries))
	for i, entry := range r.Entries {
		labels[i] = entry.Category
	}
	return labels
}

// Values returns the entry values in rank order.
func (r Report) Values() []float64 {
	values := make([]float64, len(r.Entries))
	for i, entry := range r.Entries {
		values[i] = entry.Value
	}
	return values
}

const minEntries = 2

// Aggregate builds a report from a batch of count results. Pairs that are not
// counts, have no rows, or whose first cell is not numeric are skipped. It
// returns false when fewer than two pairs qualify.
func Aggregate(pairs []Pair) (Report, bool) {
	if len(pairs) < minEntries {
		return Report{}, false
	}

	entries := make([]Entry, 0, len(pairs))
	for i, pair := range pairs {
		if pair.Result == nil || pair.Query == nil || !structured.IsCountAction(pair.Query.Action) {
			continue
		}
		if len(pair.Result.Rows) == 0 || len(pair.Result.Rows[0]) == 0 {
			continue
		}
		value, err := cast.ToFloat64E(pair.Result.Rows[0][0])
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Category: ExtractCategoryLabel(pair.Query, pair.SQL, i),
			Value:    value,
		})
	}
	if len(entries) < minEntries {
		return Report{}, false
	}
	return rank(entries), true
}

var countColumns = map[string]struct{}{
	"count":                {},
	"count(*)":             {},
	"cantidad":             {},
	"cantidad_detecciones": {},
	"conteo":               {},
	"total":                {},
}

const categoryColumn = "description"

// AggregateGrouped builds a report directly from a single grouped result,
// such as SELECT description, COUNT(*) ... GROUP BY description. The result
// must carry a count column and a category column; row order breaks ties.
func AggregateGrouped(result query.Result) (Report, bool) {
	countIndex := -1
	for i, column := range result.Columns {
		lowered := strings.ToLower(strings.TrimSpace(column))
		if _, ok := countColumns[lowered]; ok || strings.HasPrefix(lowered, "count(") {
			countIndex = i
			break
		}
	}
	if countIndex < 0 {
		return Report{}, false
	}

	labelIndex := -1
	for i, column := range result.Columns {
		if i != countIndex && strings.EqualFold(column, categoryColumn) {
			labelIndex = i
			break
		}
	}
	if labelIndex < 0 && len(result.Columns) == 2 {
		labelIndex = 1 - countIndex
	}
	if labelIndex < 0 || len(result.Rows) == 0 {
		return Report{}, false
	}

	entries := make([]Entry, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) <= countIndex || len(row) <= labelIndex {
			continue
		}
		value, err := cast.ToFloat64E(row[countIndex])
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Category: labelString(row[labelIndex]), Value: value})
	}
	if len(entries) == 0 {
		return Report{}, false
	}
	return rank(entries), true
}

func rank(entries []Entry) Report {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Value > entries[j].Value
	})
	total := 0.0
	for _, entry := range entries {
		total += entry.Value
	}
	for i := range entries {
		if total != 0 {
			entries[i].Percentage = round2(entries[i].Value / total * 100)
		}
	}
	return Report{Entries: entries, Total: total}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

// ExtractCategoryLabel names the category a count query measured: the last
// {"valor": v} filter of q, else the value of the first equality after WHERE
// in sqlText, else "Grupo <index+1>".
func ExtractCategoryLabel(q *structured.Query, sqlText string, index int) string {
	if q != nil {
		label := ""
		for _, column := range q.Filters.Keys() {
			value, _ := q.Filters.Get(column)
			if value.Kind != structured.KindOperators {
				continue
			}
			if v, ok := value.Operators["valor"]; ok {
				label = labelString(v)
			}
		}
		if label != "" {
			return label
		}
	}
	if label := equalityValueAfterWhere(sqlText); label != "" {
		return label
	}
	return fmt.Sprintf("Grupo %d", index+1)
}

var whereKeyword = regexp.MustCompile(`(?i)where`)

// equalityValueAfterWhere returns the operand of the first plain '=' after
// WHERE. Comparison operators containing '=' (>=, <=, !=, ==, :=) are skipped.
func equalityValueAfterWhere(sqlText string) string {
	loc := whereKeyword.FindStringIndex(sqlText)
	if loc == nil {
		return ""
	}
	clause := sqlText[loc[1]:]
	for i := 0; i < len(clause); i++ {
		if clause[i] != '=' {
			continue
		}
		if i > 0 && strings.ContainsRune("<>!:", rune(clause[i-1])) {
			continue
		}
		if i+1 < len(clause) && clause[i+1] == '=' {
			continue
		}
		return operandAt(clause[i+1:])
	}
	return ""
}

// operandAt reads the literal at the start of s: a quoted string up to its
// closing quote, or a bare token up to whitespace, ';' or ')'.
func operandAt(s string) string {
	s = strings.TrimLeft(s, " \t\r\n")
	if s == "" {
		return ""
	}
	if quote := s[0]; quote == '\'' || quote == '"' || quote == '`' {
		if end := strings.IndexByte(s[1:], quote); end >= 0 {
			return strings.TrimSpace(s[1 : end+1])
		}
		return strings.TrimSpace(strings.Trim(s, string(quote)))
	}
	end := strings.IndexAny(s, " \t\r\n;)")
	if end < 0 {
		end = len(s)
	}
	return strings.Trim(s[:end], `'"`)
}

func labelString(value any) string {
	if text, err := cast.ToStringE(value); err == nil {
		return text
	}
	return fmt.Sprint(value)
}
