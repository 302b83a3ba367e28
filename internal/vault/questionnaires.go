package vault

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yaghiashraf/answervault/internal/githubapi"
)

const questionnairesDir = "questionnaires"

func questionnairePath(slug string) string {
	return questionnairesDir + "/" + slug + "/questionnaire.json"
}

// ListQuestionnaires reads every imported questionnaire, one per slug
// directory.
func (v *Vault) ListQuestionnaires(ctx context.Context) ([]Questionnaire, error) {
	slugs, err := v.repo.ListDirectory(ctx, questionnairesDir)
	if err != nil {
		return nil, fmt.Errorf("list questionnaires: %w", err)
	}

	questionnaires := []Questionnaire{}
	for _, slug := range slugs {
		raw, found, err := v.repo.ReadFile(ctx, questionnairePath(slug))
		if err != nil {
			return nil, fmt.Errorf("read questionnaire %s: %w", slug, err)
		}
		if !found {
			continue
		}
		var q Questionnaire
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, fmt.Errorf("decode questionnaire %s: %w", slug, err)
		}
		questionnaires = append(questionnaires, q)
	}
	return questionnaires, nil
}

// GetQuestionnaire reads one questionnaire; nil without error when absent.
func (v *Vault) GetQuestionnaire(ctx context.Context, slug string) (*Questionnaire, error) {
	raw, found, err := v.repo.ReadFile(ctx, questionnairePath(slug))
	if err != nil {
		return nil, fmt.Errorf("read questionnaire %s: %w", slug, err)
	}
	if !found {
		return nil, nil
	}
	var q Questionnaire
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return nil, fmt.Errorf("decode questionnaire %s: %w", slug, err)
	}
	return &q, nil
}

// SaveQuestionnaire proposes the whole import record. Questionnaires are
// never partially updated; a save always replaces the full file.
func (v *Vault) SaveQuestionnaire(ctx context.Context, q Questionnaire) (*githubapi.PRResult, error) {
	if issues := ValidateQuestionnaire(q); len(issues) > 0 {
		return nil, &ValidationError{Kind: "questionnaire", Issues: issues}
	}

	payload, err := json.MarshalIndent(q, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode questionnaire %s: %w", q.Slug, err)
	}

	return v.repo.Propose(ctx, githubapi.Proposal{
		Branch: v.branchName("questionnaire", q.Slug),
		Files: []githubapi.FileChange{{
			Path:    questionnairePath(q.Slug),
			Content: string(payload),
			Message: fmt.Sprintf("Import questionnaire: %s", q.Slug),
		}},
		Title: fmt.Sprintf("Import questionnaire: %s", q.Slug),
		Body: fmt.Sprintf("AnswerVault automated PR\n\n**Questionnaire:** `%s`\n**Questions:** %d\n\nMerge to add this questionnaire to the vault.",
			q.Slug, len(q.Questions)),
	})
}
