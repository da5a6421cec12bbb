package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var (
	pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)
	exchangeKeyPattern   = regexp.MustCompile(`^date=(\d{4}-\d{2}-\d{2})/hour=(\d{2})/exchange-([a-zA-Z0-9][a-zA-Z0-9._-]{0,127})\.parquet$`)
)

// BuildExchangePath returns the object key of one archived exchange,
// partitioned by the UTC day and hour it was answered.
func BuildExchangePath(answeredAt time.Time, exchangeID string) (string, error) {
	if err := validatePathComponent(exchangeID, "exchange id"); err != nil {
		return "", err
	}
	if answeredAt.IsZero() {
		return "", fmt.Errorf("answered at is required")
	}
	ts := answeredAt.UTC()
	return path.Join(
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("hour=%02d", ts.Hour()),
		fmt.Sprintf("exchange-%s.parquet", exchangeID),
	), nil
}

// ParseExchangePath is the inverse of BuildExchangePath. It returns the
// answer hour (UTC) and the exchange id encoded in key.
func ParseExchangePath(key string) (time.Time, string, error) {
	match := exchangeKeyPattern.FindStringSubmatch(key)
	if match == nil {
		return time.Time{}, "", fmt.Errorf("not an exchange key: %q", key)
	}
	hour, err := time.Parse("2006-01-02 15", match[1]+" "+match[2])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("exchange key %q: %w", key, err)
	}
	return hour, match[3], nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
