package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/carepath-api/internal/models"
	appErrors "github.com/noah-isme/carepath-api/pkg/errors"
)

const dateLayout = "2006-01-02"

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp and returns the UTC calendar day.
func ParseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return TruncateDay(t), nil
	}
	return time.Time{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must be a date in YYYY-MM-DD format", field))
}

// ParseOptionalDate returns nil for an empty value.
func ParseOptionalDate(field, raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := ParseDate(field, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ParseDateRange parses optional start and end days and rejects inverted ranges.
func ParseDateRange(start, end string) (models.DateRange, error) {
	from, err := ParseOptionalDate("startDate", start)
	if err != nil {
		return models.DateRange{}, err
	}
	to, err := ParseOptionalDate("endDate", end)
	if err != nil {
		return models.DateRange{}, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return models.DateRange{}, appErrors.Clone(appErrors.ErrValidation, "endDate must not be before startDate")
	}
	return models.DateRange{Start: from, End: to}, nil
}
