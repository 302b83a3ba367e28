package vault

import (
	"context"
	"fmt"

	"github.com/yaghiashraf/answervault/internal/githubapi"
	"gopkg.in/yaml.v3"
)

const evidencePath = "evidence/evidence.yml"

// ListEvidence reads the whole evidence collection. An absent collection
// file is an empty catalog.
func (v *Vault) ListEvidence(ctx context.Context) ([]Evidence, error) {
	raw, found, err := v.repo.ReadFile(ctx, evidencePath)
	if err != nil {
		return nil, fmt.Errorf("read evidence collection: %w", err)
	}
	if !found {
		return []Evidence{}, nil
	}
	var items []Evidence
	if err := yaml.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode evidence collection: %w", err)
	}
	if items == nil {
		items = []Evidence{}
	}
	return items, nil
}

// UpsertEvidence splices one item into the collection and proposes a rewrite
// of the entire file: replace in place on an id match, append otherwise.
// This is last-writer-wins at file granularity; two racing upserts open two
// independently valid pull requests and a human reconciles them.
func (v *Vault) UpsertEvidence(ctx context.Context, item Evidence) (*githubapi.PRResult, error) {
	if issues := ValidateEvidence(item); len(issues) > 0 {
		return nil, &ValidationError{Kind: "evidence", Issues: issues}
	}

	items, err := v.ListEvidence(ctx)
	if err != nil {
		return nil, err
	}

	replaced := false
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		items = append(items, item)
	}

	collection, err := yaml.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode evidence collection: %w", err)
	}

	return v.repo.Propose(ctx, githubapi.Proposal{
		Branch: v.branchName("evidence", item.ID),
		Files: []githubapi.FileChange{{
			Path:    evidencePath,
			Content: string(collection),
			Message: fmt.Sprintf("Update evidence: %s", item.Title),
		}},
		Title: fmt.Sprintf("Update evidence: %s", item.Title),
		Body: fmt.Sprintf("AnswerVault automated PR\n\n**Evidence ID:** `%s`\n**Title:** %s\n\nMerge to publish evidence update.",
			item.ID, item.Title),
	})
}
