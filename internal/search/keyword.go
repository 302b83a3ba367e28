package search

import (
	"regexp"
	"sort"
	"strings"

	"github.com/yaghiashraf/answervault/internal/vault"
)

var wordSplit = regexp.MustCompile(`\W+`)

// RankAnswers scores library answers against a question by keyword overlap.
// Intent keywords count 3, title hits 2, tag hits 1. Only words longer than
// three characters participate. Zero-score answers are dropped and the rest
// come back best first, at most topN of them.
func RankAnswers(questionText string, answers []vault.Answer, topN int) []Suggestion {
	if topN <= 0 {
		topN = DefaultTopN
	}

	var words []string
	for _, w := range wordSplit.Split(strings.ToLower(questionText), -1) {
		if len(w) > 3 {
			words = append(words, w)
		}
	}

	var scored []Suggestion
	for _, answer := range answers {
		title := strings.ToLower(answer.Title)

		score := 0.0
		for _, word := range words {
			if keywordHit(answer.IntentKeywords, word) {
				score += 3
			}
			if strings.Contains(title, word) {
				score += 2
			}
			if tagHit(answer.Tags, word) {
				score += 1
			}
		}
		if score > 0 {
			scored = append(scored, Suggestion{Answer: answer, Score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topN {
		scored = scored[:topN]
	}
	return scored
}

// A keyword matches when either string contains the other, so "encryption"
// in the question hits the keyword "encrypt" and vice versa.
func keywordHit(keywords []string, word string) bool {
	for _, k := range keywords {
		k = strings.ToLower(k)
		if strings.Contains(k, word) || strings.Contains(word, k) {
			return true
		}
	}
	return false
}

func tagHit(tags []string, word string) bool {
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), word) {
			return true
		}
	}
	return false
}
