package vault

import (
	"context"
	"fmt"
	"strings"

	"github.com/yaghiashraf/answervault/internal/githubapi"
	"gopkg.in/yaml.v3"
)

const answersDir = "answers"

func answerMetaPath(id string) string { return answersDir + "/" + id + ".yml" }
func answerBodyPath(id string) string { return answersDir + "/" + id + ".md" }

// ListAnswers reads every answer in the library. A metadata file without a
// sibling long-form file is a valid "not yet written" state and yields an
// empty body.
func (v *Vault) ListAnswers(ctx context.Context) ([]Answer, error) {
	names, err := v.repo.ListDirectory(ctx, answersDir)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	siblings := make(map[string]bool, len(names))
	for _, name := range names {
		if strings.HasSuffix(name, ".md") {
			siblings[name] = true
		}
	}

	answers := []Answer{}
	for _, name := range names {
		if !strings.HasSuffix(name, ".yml") {
			continue
		}
		raw, found, err := v.repo.ReadFile(ctx, answersDir+"/"+name)
		if err != nil {
			return nil, fmt.Errorf("read answer %s: %w", name, err)
		}
		if !found {
			continue
		}
		var answer Answer
		if err := yaml.Unmarshal([]byte(raw), &answer); err != nil {
			return nil, fmt.Errorf("decode answer %s: %w", name, err)
		}

		body := ""
		if mdName := strings.TrimSuffix(name, ".yml") + ".md"; siblings[mdName] {
			body, _, err = v.repo.ReadFile(ctx, answersDir+"/"+mdName)
			if err != nil {
				return nil, fmt.Errorf("read answer body %s: %w", mdName, err)
			}
		}
		answer.LongAnswerMD = &body
		answers = append(answers, answer)
	}
	return answers, nil
}

// GetAnswer reads one answer and its long-form body as a single logical
// unit. Returns nil without error when the answer does not exist.
func (v *Vault) GetAnswer(ctx context.Context, id string) (*Answer, error) {
	raw, found, err := v.repo.ReadFile(ctx, answerMetaPath(id))
	if err != nil {
		return nil, fmt.Errorf("read answer %s: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	var answer Answer
	if err := yaml.Unmarshal([]byte(raw), &answer); err != nil {
		return nil, fmt.Errorf("decode answer %s: %w", id, err)
	}

	// Sibling absent means "not yet written", never corruption.
	body, _, err := v.repo.ReadFile(ctx, answerBodyPath(id))
	if err != nil {
		return nil, fmt.Errorf("read answer body %s: %w", id, err)
	}
	answer.LongAnswerMD = &body
	return &answer, nil
}

// UpsertAnswer proposes a pull request writing the metadata file and, when a
// body is supplied, the sibling long-form file. The two files travel in the
// same proposal so they land (or are reviewed) as one logical unit.
func (v *Vault) UpsertAnswer(ctx context.Context, answer Answer, isNew bool) (*githubapi.PRResult, error) {
	if issues := ValidateAnswer(answer); len(issues) > 0 {
		return nil, &ValidationError{Kind: "answer", Issues: issues}
	}

	verb := "Update"
	if isNew {
		verb = "Add"
	}

	meta := answer
	meta.LongAnswerMD = nil
	metaYAML, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode answer %s: %w", answer.ID, err)
	}

	files := []githubapi.FileChange{{
		Path:    answerMetaPath(answer.ID),
		Content: string(metaYAML),
		Message: fmt.Sprintf("%s answer: %s", verb, answer.Title),
	}}
	if answer.LongAnswerMD != nil {
		files = append(files, githubapi.FileChange{
			Path:    answerBodyPath(answer.ID),
			Content: *answer.LongAnswerMD,
			Message: fmt.Sprintf("%s long answer: %s", verb, answer.Title),
		})
	}

	return v.repo.Propose(ctx, githubapi.Proposal{
		Branch: v.branchName("answer", answer.ID),
		Files:  files,
		Title:  fmt.Sprintf("%s answer: %s", verb, answer.Title),
		Body: fmt.Sprintf("AnswerVault automated PR\n\n**Answer ID:** `%s`\n**Title:** %s\n\nMerge to publish this answer to the library.",
			answer.ID, answer.Title),
	})
}
