package export

import (
	"sort"
	"time"

	"github.com/yaghiashraf/answervault/internal/vault"
)

// StaleAnswer is an answer past its review threshold.
type StaleAnswer struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	LastReviewed string `json:"last_reviewed"`
	DaysStale    int    `json:"days_stale"`
}

// StaleEvidence is an evidence item past its update threshold.
type StaleEvidence struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	LastUpdated string `json:"last_updated"`
	DaysStale   int    `json:"days_stale"`
}

// StalenessReport lists library entries overdue for review.
type StalenessReport struct {
	StaleAnswers          []StaleAnswer   `json:"stale_answers"`
	StaleEvidence         []StaleEvidence `json:"stale_evidence"`
	GeneratedAt           string          `json:"generated_at"`
	AnswerThresholdDays   int             `json:"answer_threshold_days"`
	EvidenceThresholdDays int             `json:"evidence_threshold_days"`
}

// ComputeStaleness reports answers and evidence whose review dates are more
// than the given thresholds old. DaysStale counts days past the threshold,
// not since the review date. Entries with unparseable dates are skipped.
func ComputeStaleness(answers []vault.Answer, evidence []vault.Evidence, answerThresholdDays, evidenceThresholdDays int, now time.Time) StalenessReport {
	report := StalenessReport{
		StaleAnswers:          []StaleAnswer{},
		StaleEvidence:         []StaleEvidence{},
		GeneratedAt:           now.UTC().Format(time.RFC3339),
		AnswerThresholdDays:   answerThresholdDays,
		EvidenceThresholdDays: evidenceThresholdDays,
	}

	for _, a := range answers {
		reviewed, err := time.Parse("2006-01-02", a.LastReviewed)
		if err != nil {
			continue
		}
		stale := daysBetween(reviewed, now) - answerThresholdDays
		if stale <= 0 {
			continue
		}
		report.StaleAnswers = append(report.StaleAnswers, StaleAnswer{
			ID:           a.ID,
			Title:        a.Title,
			LastReviewed: a.LastReviewed,
			DaysStale:    stale,
		})
	}
	sort.Slice(report.StaleAnswers, func(i, j int) bool {
		return report.StaleAnswers[i].DaysStale > report.StaleAnswers[j].DaysStale
	})

	for _, e := range evidence {
		updated, err := time.Parse("2006-01-02", e.LastUpdated)
		if err != nil {
			continue
		}
		stale := daysBetween(updated, now) - evidenceThresholdDays
		if stale <= 0 {
			continue
		}
		report.StaleEvidence = append(report.StaleEvidence, StaleEvidence{
			ID:          e.ID,
			Title:       e.Title,
			LastUpdated: e.LastUpdated,
			DaysStale:   stale,
		})
	}
	sort.Slice(report.StaleEvidence, func(i, j int) bool {
		return report.StaleEvidence[i].DaysStale > report.StaleEvidence[j].DaysStale
	})

	return report
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
