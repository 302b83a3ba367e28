package vault

import (
	"context"
	"fmt"

	"github.com/yaghiashraf/answervault/internal/githubapi"
	"gopkg.in/yaml.v3"
)

func mappingPath(slug string) string {
	return questionnairesDir + "/" + slug + "/mapping.yml"
}

// GetMapping reads the question-to-answer mapping for one questionnaire. An
// absent mapping file is an empty mapping. The YAML codec preserves the
// null-vs-absent distinction: `answer_id: null` decodes to a present entry
// with a nil AnswerID, while a missing question key stays missing.
func (v *Vault) GetMapping(ctx context.Context, slug string) (Mapping, error) {
	raw, found, err := v.repo.ReadFile(ctx, mappingPath(slug))
	if err != nil {
		return nil, fmt.Errorf("read mapping %s: %w", slug, err)
	}
	if !found {
		return Mapping{}, nil
	}
	var mapping Mapping
	if err := yaml.Unmarshal([]byte(raw), &mapping); err != nil {
		return nil, fmt.Errorf("decode mapping %s: %w", slug, err)
	}
	if mapping == nil {
		mapping = Mapping{}
	}
	return mapping, nil
}

// SaveMapping proposes a replacement of the whole mapping file.
func (v *Vault) SaveMapping(ctx context.Context, slug string, mapping Mapping) (*githubapi.PRResult, error) {
	if issues := ValidateMapping(mapping); len(issues) > 0 {
		return nil, &ValidationError{Kind: "mapping", Issues: issues}
	}

	payload, err := yaml.Marshal(mapping)
	if err != nil {
		return nil, fmt.Errorf("encode mapping %s: %w", slug, err)
	}

	return v.repo.Propose(ctx, githubapi.Proposal{
		Branch: v.branchName("mapping", slug),
		Files: []githubapi.FileChange{{
			Path:    mappingPath(slug),
			Content: string(payload),
			Message: fmt.Sprintf("Update mapping for questionnaire: %s", slug),
		}},
		Title: fmt.Sprintf("Update mapping: %s", slug),
		Body: fmt.Sprintf("AnswerVault automated PR\n\n**Questionnaire:** `%s`\n\nMapping update - merge to persist.", slug),
	})
}
