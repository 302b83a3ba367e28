// Package search suggests library answers for questionnaire questions.
// Meilisearch is used when reachable; otherwise a keyword scorer over the
// in-memory answer list serves the same queries.
package search

import "github.com/yaghiashraf/answervault/internal/vault"

// Suggestion pairs a candidate answer with its relevance score.
type Suggestion struct {
	Answer vault.Answer `json:"answer"`
	Score  float64      `json:"score"`
}

// DefaultTopN bounds a suggestion response when the caller does not ask
// for a specific count.
const DefaultTopN = 3
