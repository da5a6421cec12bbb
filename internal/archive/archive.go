// Package archive stores every answered exchange as a Parquet object so
// questions, generated SQL and replies can be audited later.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/detectql/detectql/internal/assistant"
	"github.com/detectql/detectql/internal/storage"
)

const contentType = "application/vnd.apache.parquet"

// Row is one structured query of an exchange. Exchanges without structured
// queries, such as help requests, are stored as a single row with
// QueryIndex -1.
type Row struct {
	ExchangeID       string `parquet:"exchange_id" json:"exchange_id"`
	AnsweredAtUnixMs int64  `parquet:"answered_at_unix_ms" json:"answered_at_unix_ms"`
	Prompt           string `parquet:"prompt" json:"prompt"`
	Help             bool   `parquet:"help" json:"help"`
	QueryIndex       int32  `parquet:"query_index" json:"query_index"`
	QueryJSON        string `parquet:"query_json" json:"query_json"`
	SQL              string `parquet:"sql" json:"sql"`
	RowCount         int64  `parquet:"row_count" json:"row_count"`
	Error            string `parquet:"error" json:"error"`
	Reply            string `parquet:"reply" json:"reply"`
	ComparisonJSON   string `parquet:"comparison_json" json:"comparison_json"`
}

func Rows(response assistant.Response) ([]Row, error) {
	base := Row{
		ExchangeID:       response.ID,
		AnsweredAtUnixMs: response.AnsweredAt.UnixMilli(),
		Prompt:           response.Prompt,
		Help:             response.Help,
		QueryIndex:       -1,
		Reply:            response.Reply,
	}
	if response.Comparison != nil {
		encoded, err := json.Marshal(response.Comparison)
		if err != nil {
			return nil, fmt.Errorf("encode comparison: %w", err)
		}
		base.ComparisonJSON = string(encoded)
	}
	if len(response.Queries) == 0 {
		return []Row{base}, nil
	}

	rows := make([]Row, 0, len(response.Queries))
	for i, q := range response.Queries {
		row := base
		row.QueryIndex = int32(i)
		encoded, err := json.Marshal(q)
		if err != nil {
			return nil, fmt.Errorf("encode structured query %d: %w", i, err)
		}
		row.QueryJSON = string(encoded)
		if i < len(response.SQL) {
			row.SQL = response.SQL[i]
		}
		if i < len(response.Errors) {
			row.Error = response.Errors[i]
		}
		if i < len(response.Results) && response.Results[i] != nil {
			row.RowCount = int64(len(response.Results[i].Rows))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func Encode(response assistant.Response) ([]byte, error) {
	rows, err := Rows(response)
	if err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[Row](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Archive writes exchanges to an object store.
type Archive struct {
	Store  storage.ObjectStore
	Logger *slog.Logger
}

func New(store storage.ObjectStore, logger *slog.Logger) *Archive {
	return &Archive{Store: store, Logger: logger}
}

func (a *Archive) Record(ctx context.Context, response assistant.Response) error {
	key, err := storage.BuildExchangePath(response.AnsweredAt, response.ID)
	if err != nil {
		return err
	}
	data, err := Encode(response)
	if err != nil {
		return err
	}
	info, err := a.Store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("archive exchange %s: %w", response.ID, err)
	}
	if a.Logger != nil {
		a.Logger.DebugContext(ctx, "exchange archived",
			slog.String("exchange_id", response.ID),
			slog.String("key", info.Key),
			slog.Int64("bytes", info.Size),
		)
	}
	return nil
}

// Load reads back the rows of the exchange id answered at answeredAt.
func (a *Archive) Load(ctx context.Context, answeredAt time.Time, id string) ([]Row, error) {
	key, err := storage.BuildExchangePath(answeredAt, id)
	if err != nil {
		return nil, err
	}
	body, err := a.Store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read archived exchange %q: %w", key, err)
	}

	reader := parquet.NewGenericReader[Row](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()
	rows := make([]Row, reader.NumRows())
	count, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode archived exchange %q: %w", key, err)
	}
	return rows[:count], nil
}
