package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/yaghiashraf/answervault/internal/vault"
)

// ToXLSX renders a three-sheet workbook: the questionnaire with mapped
// answers, the evidence index, and a summary sheet.
func ToXLSX(rows []Row, evidenceRows []EvidenceIndexRow, slug string, demo bool) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const questionnaireSheet = "Questionnaire"
	if err := f.SetSheetName("Sheet1", questionnaireSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := rowHeader
	if demo {
		header = append(append([]string{}, rowHeader...), "note")
	}
	if err := writeSheetRow(f, questionnaireSheet, 1, header); err != nil {
		return nil, err
	}
	for i, row := range rows {
		record := []string{row.QID, row.Section, row.Question, row.AnswerID, row.AnswerTitle, row.ShortAnswer, row.LongAnswer, row.OverrideText, row.EvidenceIDs}
		if demo {
			record = append(record, vault.DemoWatermark)
		}
		if err := writeSheetRow(f, questionnaireSheet, i+2, record); err != nil {
			return nil, err
		}
	}

	const evidenceSheet = "Evidence Index"
	if _, err := f.NewSheet(evidenceSheet); err != nil {
		return nil, fmt.Errorf("add sheet: %w", err)
	}
	if err := writeSheetRow(f, evidenceSheet, 1, evidenceHeader); err != nil {
		return nil, err
	}
	for i, row := range evidenceRows {
		record := []string{row.QID, row.Section, row.Question, row.EvidenceID, row.EvidenceTitle, row.EvidenceType, row.EvidenceURL, row.EvidenceDescription}
		if err := writeSheetRow(f, evidenceSheet, i+2, record); err != nil {
			return nil, err
		}
	}

	const summarySheet = "Summary"
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("add sheet: %w", err)
	}
	mapped := 0
	for _, row := range rows {
		if row.AnswerID != "" {
			mapped++
		}
	}
	uniqueEvidence := map[string]bool{}
	for _, row := range evidenceRows {
		uniqueEvidence[row.EvidenceID] = true
	}
	summary := [][]string{
		{"field", "value"},
		{"Questionnaire", slug},
		{"Total Questions", fmt.Sprintf("%d", len(rows))},
		{"Mapped Questions", fmt.Sprintf("%d", mapped)},
		{"Evidence Items Referenced", fmt.Sprintf("%d", len(uniqueEvidence))},
		{"Generated", time.Now().UTC().Format(time.RFC3339)},
	}
	for i, record := range summary {
		if err := writeSheetRow(f, summarySheet, i+1, record); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheetRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("write sheet row: %w", err)
	}
	return nil
}
