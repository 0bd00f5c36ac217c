package service

import (
	"fmt"
	"time"

	"github.com/noah-isme/carepath-api/internal/models"
	appErrors "github.com/noah-isme/carepath-api/pkg/errors"
)

// collectionThresholds is the minimum number of whole days between two collections.
var collectionThresholds = map[models.Frequency]int{
	models.FrequencyDaily:   1,
	models.FrequencyWeekly:  7,
	models.FrequencyMonthly: 30,
}

// IsEligibleForCollection reports whether a medication collected on last may be
// collected again on proposed. A nil last date is always eligible. Unknown
// frequencies are rejected rather than allowed.
func IsEligibleForCollection(frequency models.Frequency, last *time.Time, proposed time.Time) (bool, error) {
	threshold, ok := collectionThresholds[frequency]
	if !ok {
		return false, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown medication frequency %q", frequency))
	}
	if last == nil {
		return true, nil
	}
	return DaysBetween(*last, proposed) >= threshold, nil
}

// TruncateDay drops the time of day, in UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween is the whole-day difference to-from after truncating both to midnight.
func DaysBetween(from, to time.Time) int {
	return int(TruncateDay(to).Sub(TruncateDay(from)).Hours() / 24)
}
