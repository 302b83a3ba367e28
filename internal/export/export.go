// Package export renders completed questionnaires and evidence indexes as
// CSV, Markdown, and XLSX deliverables, and computes the staleness report.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/yaghiashraf/answervault/internal/vault"
)

// Row is one exported questionnaire line: the question joined with its
// mapped answer, if any.
type Row struct {
	QID          string
	Section      string
	Question     string
	AnswerID     string
	AnswerTitle  string
	ShortAnswer  string
	LongAnswer   string
	OverrideText string
	EvidenceIDs  string
}

// EvidenceIndexRow is one exported (question, evidence item) pair.
type EvidenceIndexRow struct {
	QID                 string
	Section             string
	Question            string
	EvidenceID          string
	EvidenceTitle       string
	EvidenceType        string
	EvidenceURL         string
	EvidenceDescription string
}

// BuildRows joins a questionnaire with its mapping and the answer library.
// Override text beats the library short answer; in demo mode the long
// answer is withheld.
func BuildRows(q vault.Questionnaire, mapping vault.Mapping, answers []vault.Answer, demo bool) []Row {
	answerByID := make(map[string]vault.Answer, len(answers))
	for _, a := range answers {
		answerByID[a.ID] = a
	}

	rows := make([]Row, 0, len(q.Questions))
	for _, question := range q.Questions {
		row := Row{
			QID:      question.QID,
			Section:  question.Section,
			Question: question.Text,
		}

		entry, mapped := mapping[question.QID]
		var answer vault.Answer
		var haveAnswer bool
		if mapped && entry.AnswerID != nil {
			answer, haveAnswer = answerByID[*entry.AnswerID]
		}

		if haveAnswer {
			row.AnswerID = answer.ID
			row.AnswerTitle = answer.Title
			row.ShortAnswer = answer.ShortAnswer
			row.EvidenceIDs = strings.Join(answer.EvidenceIDs, ", ")
			if !demo && answer.LongAnswerMD != nil {
				row.LongAnswer = stripMarkdown(*answer.LongAnswerMD)
			}
		}
		if mapped {
			row.OverrideText = entry.OverrideText
			if entry.OverrideText != "" {
				row.ShortAnswer = entry.OverrideText
			}
		}

		rows = append(rows, row)
	}
	return rows
}

// BuildEvidenceIndex lists every evidence item referenced by a mapped
// answer, one row per (question, item).
func BuildEvidenceIndex(q vault.Questionnaire, mapping vault.Mapping, answers []vault.Answer, evidence []vault.Evidence) []EvidenceIndexRow {
	answerByID := make(map[string]vault.Answer, len(answers))
	for _, a := range answers {
		answerByID[a.ID] = a
	}
	evidenceByID := make(map[string]vault.Evidence, len(evidence))
	for _, e := range evidence {
		evidenceByID[e.ID] = e
	}

	var rows []EvidenceIndexRow
	for _, question := range q.Questions {
		entry, ok := mapping[question.QID]
		if !ok || entry.AnswerID == nil {
			continue
		}
		answer, ok := answerByID[*entry.AnswerID]
		if !ok {
			continue
		}
		for _, evidenceID := range answer.EvidenceIDs {
			item, ok := evidenceByID[evidenceID]
			if !ok {
				continue
			}
			rows = append(rows, EvidenceIndexRow{
				QID:                 question.QID,
				Section:             question.Section,
				Question:            question.Text,
				EvidenceID:          item.ID,
				EvidenceTitle:       item.Title,
				EvidenceType:        string(item.Type),
				EvidenceURL:         item.URLOrPath,
				EvidenceDescription: item.Description,
			})
		}
	}
	return rows
}

var rowHeader = []string{"qid", "section", "question", "answer_id", "answer_title", "short_answer", "long_answer", "override_text", "evidence_ids"}

// ToCSV renders export rows. Demo exports carry a watermark column.
func ToCSV(rows []Row, demo bool) (string, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := rowHeader
	if demo {
		header = append(append([]string{}, rowHeader...), "note")
	}
	if err := writer.Write(header); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{row.QID, row.Section, row.Question, row.AnswerID, row.AnswerTitle, row.ShortAnswer, row.LongAnswer, row.OverrideText, row.EvidenceIDs}
		if demo {
			record = append(record, vault.DemoWatermark)
		}
		if err := writer.Write(record); err != nil {
			return "", fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	return buf.String(), writer.Error()
}

var evidenceHeader = []string{"qid", "section", "question", "evidence_id", "evidence_title", "evidence_type", "evidence_url", "evidence_description"}

// EvidenceIndexToCSV renders evidence index rows.
func EvidenceIndexToCSV(rows []EvidenceIndexRow) (string, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(evidenceHeader); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{row.QID, row.Section, row.Question, row.EvidenceID, row.EvidenceTitle, row.EvidenceType, row.EvidenceURL, row.EvidenceDescription}
		if err := writer.Write(record); err != nil {
			return "", fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	return buf.String(), writer.Error()
}

// EvidenceIndexToMarkdown groups the index by section, then question.
func EvidenceIndexToMarkdown(rows []EvidenceIndexRow, slug string, demo bool) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("# Evidence Index - %s", slug), "")
	if demo {
		lines = append(lines, fmt.Sprintf("> %s", vault.DemoWatermark), "")
	}
	lines = append(lines, fmt.Sprintf("_Generated: %s_", time.Now().UTC().Format("2006-01-02")), "")

	var sections []string
	seen := map[string]bool{}
	for _, row := range rows {
		if !seen[row.Section] {
			seen[row.Section] = true
			sections = append(sections, row.Section)
		}
	}

	for _, section := range sections {
		lines = append(lines, fmt.Sprintf("## %s", section), "")

		var questions []string
		byQuestion := map[string][]EvidenceIndexRow{}
		for _, row := range rows {
			if row.Section != section {
				continue
			}
			key := fmt.Sprintf("%s: %s", row.QID, row.Question)
			if _, ok := byQuestion[key]; !ok {
				questions = append(questions, key)
			}
			byQuestion[key] = append(byQuestion[key], row)
		}

		for _, question := range questions {
			lines = append(lines, fmt.Sprintf("### %s", question), "")
			for _, row := range byQuestion[question] {
				title := row.EvidenceTitle
				if strings.HasPrefix(row.EvidenceURL, "http") {
					title = fmt.Sprintf("[%s](%s)", row.EvidenceTitle, row.EvidenceURL)
				}
				lines = append(lines, fmt.Sprintf("- **%s** %s - %s", strings.ToUpper(row.EvidenceType), title, row.EvidenceDescription))
			}
			lines = append(lines, "")
		}
	}

	return strings.Join(lines, "\n")
}

var markdownMarkup = strings.NewReplacer("#", "", "*", "", "`", "")

func stripMarkdown(s string) string {
	return markdownMarkup.Replace(s)
}
