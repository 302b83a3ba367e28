package vault

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError lists the schema issues that blocked a write. Validation
// happens before any repository call so a bad record never opens a branch.
type ValidationError struct {
	Kind   string
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Kind, strings.Join(e.Issues, "; "))
}

var (
	answerIDPattern   = regexp.MustCompile(`^ans-\d{3,}$`)
	evidenceIDPattern = regexp.MustCompile(`^ev-\d{3,}$`)
	slugPattern       = regexp.MustCompile(`^[a-z0-9-]+$`)
	datePattern       = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

var answerTypes = map[string]struct{}{
	"yes_no":    {},
	"yes_no_na": {},
	"text":      {},
	"select":    {},
}

var evidenceTypes = map[EvidenceType]struct{}{
	EvidenceDoc:  {},
	EvidenceLink: {},
	EvidenceFile: {},
}

func ValidateAnswer(a Answer) []string {
	var issues []string
	if !answerIDPattern.MatchString(a.ID) {
		issues = append(issues, "id must be ans-NNN format")
	}
	if len(a.Title) < 3 || len(a.Title) > 200 {
		issues = append(issues, "title must be 3-200 characters")
	}
	if len(a.IntentKeywords) == 0 {
		issues = append(issues, "at least one intent keyword is required")
	}
	if len(a.ShortAnswer) < 10 || len(a.ShortAnswer) > 1000 {
		issues = append(issues, "short_answer must be 10-1000 characters")
	}
	if strings.TrimSpace(a.Owner) == "" {
		issues = append(issues, "owner is required")
	}
	if !datePattern.MatchString(a.LastReviewed) {
		issues = append(issues, "last_reviewed must be YYYY-MM-DD")
	}
	return issues
}

func ValidateEvidence(e Evidence) []string {
	var issues []string
	if !evidenceIDPattern.MatchString(e.ID) {
		issues = append(issues, "id must be ev-NNN format")
	}
	if len(e.Title) < 3 || len(e.Title) > 200 {
		issues = append(issues, "title must be 3-200 characters")
	}
	if _, ok := evidenceTypes[e.Type]; !ok {
		issues = append(issues, "type must be one of doc, link, file")
	}
	if strings.TrimSpace(e.URLOrPath) == "" {
		issues = append(issues, "url_or_path is required")
	}
	if len(e.Description) < 10 || len(e.Description) > 2000 {
		issues = append(issues, "description must be 10-2000 characters")
	}
	if !datePattern.MatchString(e.LastUpdated) {
		issues = append(issues, "last_updated must be YYYY-MM-DD")
	}
	return issues
}

func ValidateQuestionnaire(q Questionnaire) []string {
	var issues []string
	if !slugPattern.MatchString(q.Slug) {
		issues = append(issues, "slug must be lowercase alphanumeric with hyphens")
	}
	if len(q.Questions) == 0 {
		issues = append(issues, "at least one question is required")
	}
	for i, question := range q.Questions {
		if strings.TrimSpace(question.QID) == "" {
			issues = append(issues, fmt.Sprintf("question %d: qid is required", i))
		}
		if len(question.Text) < 5 {
			issues = append(issues, fmt.Sprintf("question %d: text must be at least 5 characters", i))
		}
		if strings.TrimSpace(question.Section) == "" {
			issues = append(issues, fmt.Sprintf("question %d: section is required", i))
		}
		if _, ok := answerTypes[question.AnswerType]; !ok {
			issues = append(issues, fmt.Sprintf("question %d: invalid answer_type %q", i, question.AnswerType))
		}
	}
	return issues
}

func ValidateMapping(m Mapping) []string {
	var issues []string
	for qid, entry := range m {
		if strings.TrimSpace(qid) == "" {
			issues = append(issues, "mapping keys must be non-empty question ids")
		}
		if entry.AnswerID != nil && strings.TrimSpace(*entry.AnswerID) == "" {
			issues = append(issues, fmt.Sprintf("%s: answer_id must be a non-empty string or null", qid))
		}
	}
	return issues
}
