package search

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"github.com/yaghiashraf/answervault/internal/vault"
)

const idxAnswers = "answervault_answers"

// AnswerRecord is the indexed shape of a library answer.
type AnswerRecord struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	ShortAnswer    string   `json:"short_answer"`
	IntentKeywords []string `json:"intent_keywords"`
	Tags           []string `json:"tags"`
	Frameworks     []string `json:"frameworks"`
}

// Meili serves answer suggestions from a Meilisearch index.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the answers index.
// The caller should proceed without suggestions from Meilisearch when the
// initial connection fails; the health loop picks it up if it comes back.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxAnswers,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxAnswers, err)
	}

	index := m.client.Index(idxAnswers)
	searchable := []string{"intent_keywords", "title", "tags", "short_answer"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxAnswers, err)
	}
	filterable := []interface{}{"frameworks", "tags"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxAnswers, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Suggest queries the answers index with the question text and returns the
// top hits with their ranking scores.
func (m *Meili) Suggest(questionText string, topN int) ([]Suggestion, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}
	if topN <= 0 {
		topN = DefaultTopN
	}

	resp, err := m.client.Index(idxAnswers).Search(questionText, &meili.SearchRequest{
		Limit:            int64(topN),
		ShowRankingScore: true,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	suggestions := make([]Suggestion, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		record, score, err := decodeHit(hit)
		if err != nil {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			Answer: vault.Answer{
				ID:             record.ID,
				Title:          record.Title,
				ShortAnswer:    record.ShortAnswer,
				IntentKeywords: record.IntentKeywords,
				Tags:           record.Tags,
				Frameworks:     record.Frameworks,
			},
			Score: score,
		})
	}
	return suggestions, nil
}

func decodeHit(hit meili.Hit) (AnswerRecord, float64, error) {
	raw, err := json.Marshal(hit)
	if err != nil {
		return AnswerRecord{}, 0, err
	}
	var decoded struct {
		AnswerRecord
		RankingScore float64 `json:"_rankingScore"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return AnswerRecord{}, 0, err
	}
	return decoded.AnswerRecord, decoded.RankingScore, nil
}

// IndexAnswers bulk-indexes the answer library.
func (m *Meili) IndexAnswers(answers []vault.Answer) error {
	if len(answers) == 0 {
		return nil
	}
	records := make([]AnswerRecord, len(answers))
	for i, a := range answers {
		records[i] = AnswerRecord{
			ID:             a.ID,
			Title:          a.Title,
			ShortAnswer:    a.ShortAnswer,
			IntentKeywords: a.IntentKeywords,
			Tags:           a.Tags,
			Frameworks:     a.Frameworks,
		}
	}
	_, err := m.client.Index(idxAnswers).AddDocuments(records, nil)
	return err
}

// DeleteAnswer removes one answer from the index.
func (m *Meili) DeleteAnswer(id string) error {
	_, err := m.client.Index(idxAnswers).DeleteDocument(id, nil)
	return err
}
