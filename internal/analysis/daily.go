// Package analysis summarizes time-stamped result sets per calendar day.
package analysis

import (
	"time"

	"github.com/spf13/cast"

	"github.com/detectql/detectql/internal/query"
)

// TimestampColumn is the result column holding epoch milliseconds.
const TimestampColumn = "timestamp"

type Bucket struct {
	Day   time.Time `json:"day"`
	Count int       `json:"count"`
	Sum   float64   `json:"sum"`
	Mean  float64   `json:"mean"`
	Min   float64   `json:"min"`
	Max   float64   `json:"max"`
}

type Daily struct {
	ValueColumn string   `json:"value_column"`
	Buckets     []Bucket `json:"buckets"`
}

// Labels returns the bucket days formatted as YYYY-MM-DD.
func (d Daily) Labels() []string {
	labels := make([]string, len(d.Buckets))
	for i, bucket := range d.Buckets {
		labels[i] = bucket.Day.Format(time.DateOnly)
	}
	return labels
}

// Counts returns the number of values per bucket.
func (d Daily) Counts() []float64 {
	counts := make([]float64, len(d.Buckets))
	for i, bucket := range d.Buckets {
		counts[i] = float64(bucket.Count)
	}
	return counts
}

// DailyFromResult aggregates the first non-timestamp column of result per
// day of the timestamp column, in loc. Days between the first and last
// observation without values get empty buckets. Rows whose timestamp or value
// is not numeric are ignored.
func DailyFromResult(result query.Result, loc *time.Location) (Daily, bool) {
	if loc == nil {
		loc = time.UTC
	}
	tsIndex := result.ColumnIndex(TimestampColumn)
	if tsIndex < 0 {
		return Daily{}, false
	}
	valueIndex := -1
	for i := range result.Columns {
		if i != tsIndex {
			valueIndex = i
			break
		}
	}
	if valueIndex < 0 {
		return Daily{}, false
	}

	byDay := map[time.Time]*Bucket{}
	var first, last time.Time
	for _, row := range result.Rows {
		if len(row) <= tsIndex || len(row) <= valueIndex {
			continue
		}
		millis, err := cast.ToInt64E(row[tsIndex])
		if err != nil {
			continue
		}
		value, err := cast.ToFloat64E(row[valueIndex])
		if err != nil {
			continue
		}
		day := startOfDay(time.UnixMilli(millis).In(loc))
		bucket, ok := byDay[day]
		if !ok {
			bucket = &Bucket{Day: day, Min: value, Max: value}
			byDay[day] = bucket
		}
		bucket.Count++
		bucket.Sum += value
		bucket.Min = min(bucket.Min, value)
		bucket.Max = max(bucket.Max, value)

		if first.IsZero() || day.Before(first) {
			first = day
		}
		if last.IsZero() || day.After(last) {
			last = day
		}
	}
	if len(byDay) == 0 {
		return Daily{}, false
	}

	daily := Daily{ValueColumn: result.Columns[valueIndex]}
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		bucket, ok := byDay[day]
		if !ok {
			daily.Buckets = append(daily.Buckets, Bucket{Day: day})
			continue
		}
		bucket.Mean = bucket.Sum / float64(bucket.Count)
		daily.Buckets = append(daily.Buckets, *bucket)
	}
	return daily, true
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
