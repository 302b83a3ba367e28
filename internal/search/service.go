package search

import (
	"log"

	"github.com/yaghiashraf/answervault/internal/vault"
)

// Service is the facade that tries Meilisearch first and falls back to the
// keyword scorer over the caller-supplied answer list.
type Service struct {
	meili *Meili
}

// NewService creates a suggestion service. meili may be nil if Meilisearch
// is not configured.
func NewService(meili *Meili) *Service {
	return &Service{meili: meili}
}

// Suggest ranks library answers for a question. answers is the current
// library snapshot; it always backs the fallback path and, on the
// Meilisearch path, swaps indexed records for the full library entries.
func (s *Service) Suggest(questionText string, answers []vault.Answer, topN int) []Suggestion {
	if s.meili != nil && s.meili.Healthy() {
		suggestions, err := s.meili.Suggest(questionText, topN)
		if err == nil {
			return rehydrate(suggestions, answers)
		}
		log.Printf("search: meilisearch error, falling back to keyword scorer: %v", err)
	}
	return RankAnswers(questionText, answers, topN)
}

// IndexAnswers pushes the answer library to Meilisearch, fire and forget.
func (s *Service) IndexAnswers(answers []vault.Answer) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexAnswers(answers); err != nil {
			log.Printf("search: index answers: %v", err)
		}
	}()
}

// The index carries a trimmed record, so hits are mapped back to the full
// library answer when the library still has one with that ID.
func rehydrate(suggestions []Suggestion, answers []vault.Answer) []Suggestion {
	byID := make(map[string]vault.Answer, len(answers))
	for _, a := range answers {
		byID[a.ID] = a
	}
	out := make([]Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		if full, ok := byID[s.Answer.ID]; ok {
			s.Answer = full
		}
		out = append(out, s)
	}
	return out
}
