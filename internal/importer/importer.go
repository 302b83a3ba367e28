// Package importer normalizes tabular questionnaire files (CSV, XLSX) into
// the internal questionnaire schema. Column names are matched
// case-insensitively against a set of aliases, so most vendor spreadsheets
// import without manual cleanup.
package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"github.com/yaghiashraf/answervault/internal/vault"
)

// Column alias families, tried in order: exact match first, then substring.
var (
	qidCols  = []string{"qid", "question_id", "id", "#", "no", "number"}
	textCols = []string{"text", "question", "question_text", "description", "requirement"}
	secCols  = []string{"section", "category", "domain", "control_area", "area", "topic"}
	typeCols = []string{"answer_type", "type", "response_type", "format"}
)

// Import dispatches on the filename extension. maxQuestions caps the number
// of imported rows; zero means unlimited.
func Import(filename string, data []byte, maxQuestions int) (vault.Questionnaire, error) {
	switch strings.ToLower(path.Ext(filename)) {
	case ".csv":
		return FromCSV(string(data), filename, maxQuestions)
	case ".xlsx", ".xls":
		return FromXLSX(data, filename, maxQuestions)
	default:
		return vault.Questionnaire{}, fmt.Errorf("unsupported file type: %s (use .csv or .xlsx)", filename)
	}
}

// FromCSV imports a header-row CSV.
func FromCSV(csvText, filename string, maxQuestions int) (vault.Questionnaire, error) {
	reader := csv.NewReader(strings.NewReader(csvText))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return vault.Questionnaire{}, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return build(filename, nil), nil
	}
	return build(filename, rowsToQuestions(records[0], records[1:], maxQuestions)), nil
}

// FromXLSX imports the first sheet of a workbook.
func FromXLSX(data []byte, filename string, maxQuestions int) (vault.Questionnaire, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return vault.Questionnaire{}, fmt.Errorf("open workbook: %w", err)
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return build(filename, nil), nil
	}
	rows, err := workbook.GetRows(sheets[0])
	if err != nil {
		return vault.Questionnaire{}, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return build(filename, nil), nil
	}
	return build(filename, rowsToQuestions(rows[0], rows[1:], maxQuestions)), nil
}

func build(filename string, questions []vault.Question) vault.Questionnaire {
	if questions == nil {
		questions = []vault.Question{}
	}
	return vault.Questionnaire{
		Slug:           Slugify(strings.TrimSuffix(filename, path.Ext(filename))),
		SourceFilename: filename,
		ImportedAt:     time.Now().UTC().Format(time.RFC3339),
		Questions:      questions,
	}
}

func rowsToQuestions(headers []string, rows [][]string, maxQuestions int) []vault.Question {
	qidCol := findCol(headers, qidCols)
	textCol := findCol(headers, textCols)
	secCol := findCol(headers, secCols)
	typeCol := findCol(headers, typeCols)

	var questions []vault.Question
	autoIdx := 1

	for _, row := range rows {
		if isEmptyRow(row) {
			continue
		}
		text := strings.TrimSpace(cell(row, textCol))
		if text == "" {
			continue
		}

		qid := strings.TrimSpace(cell(row, qidCol))
		if qid == "" {
			qid = fmt.Sprintf("Q%03d", autoIdx)
		}
		section := strings.TrimSpace(cell(row, secCol))
		if section == "" {
			section = "General"
		}

		questions = append(questions, vault.Question{
			QID:        qid,
			Text:       text,
			Section:    section,
			AnswerType: normalizeType(cell(row, typeCol)),
		})

		autoIdx++
		if maxQuestions > 0 && len(questions) >= maxQuestions {
			break
		}
	}
	return questions
}

// findCol resolves a header index: exact alias match wins over substring.
func findCol(headers []string, aliases []string) int {
	lower := make([]string, len(headers))
	for i, h := range headers {
		lower[i] = strings.ToLower(strings.TrimSpace(h))
	}
	for _, alias := range aliases {
		for i, h := range lower {
			if h == alias {
				return i
			}
		}
	}
	for _, alias := range aliases {
		for i, h := range lower {
			if strings.Contains(h, alias) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

func isEmptyRow(row []string) bool {
	for _, value := range row {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}

func normalizeType(raw string) string {
	r := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case r == "":
		return "text"
	case strings.Contains(r, "yes") && strings.Contains(r, "no") && strings.Contains(r, "na"):
		return "yes_no_na"
	case strings.Contains(r, "yes") && strings.Contains(r, "no"):
		return "yes_no"
	case strings.Contains(r, "select") || strings.Contains(r, "choice"):
		return "select"
	default:
		return "text"
	}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a questionnaire slug from a filename stem.
func Slugify(name string) string {
	slug := nonSlug.ReplaceAllString(strings.ToLower(name), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 60 {
		slug = strings.Trim(slug[:60], "-")
	}
	return slug
}
