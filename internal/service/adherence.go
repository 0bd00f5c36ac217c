package service

import (
	"fmt"
	"math"
	"strconv"

	"github.com/noah-isme/carepath-api/internal/models"
	appErrors "github.com/noah-isme/carepath-api/pkg/errors"
)

// AdherenceRate is the rounded share of attended sessions, 0 when there are none.
func AdherenceRate(sessions []models.Session) int {
	attended := 0
	for _, s := range sessions {
		if s.Status == models.SessionAttended {
			attended++
		}
	}
	return AdherencePercent(attended, len(sessions))
}

// AdherencePercent rounds half away from zero.
func AdherencePercent(attended, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(attended) / float64(total)))
}

// AdherenceSample is one patient's session tally.
type AdherenceSample struct {
	Attended int
	Total    int
}

// AverageAdherence averages per-patient rounded rates. Patients without sessions
// are left out of the denominator.
func AverageAdherence(samples []AdherenceSample) int {
	sum, n := 0, 0
	for _, s := range samples {
		if s.Total <= 0 {
			continue
		}
		sum += AdherencePercent(s.Attended, s.Total)
		n++
	}
	if n == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(n)))
}

// AdherenceMatcher turns the adherence list filter into a predicate: high (>=80),
// medium (50-79), low (<50) or a numeric minimum.
func AdherenceMatcher(filter string) (func(rate int) bool, error) {
	switch filter {
	case "":
		return func(int) bool { return true }, nil
	case "high":
		return func(rate int) bool { return rate >= 80 }, nil
	case "medium":
		return func(rate int) bool { return rate >= 50 && rate < 80 }, nil
	case "low":
		return func(rate int) bool { return rate < 50 }, nil
	}
	threshold, err := strconv.Atoi(filter)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid adherence filter %q", filter))
	}
	return func(rate int) bool { return rate >= threshold }, nil
}
