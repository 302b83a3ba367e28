package githubapi

import (
	"context"
	"fmt"
	"net/http"
)

// FileChange is one file commit within a proposal, with its own message.
type FileChange struct {
	Path    string
	Content string
	Message string
}

// Proposal is the only sanctioned write path: a branch, one or more file
// commits on it, and a pull request into the default branch.
type Proposal struct {
	Branch string
	Files  []FileChange
	Title  string
	Body   string
}

// PRResult identifies the opened pull request.
type PRResult struct {
	URL    string `json:"url"`
	Number int    `json:"number"`
	Branch string `json:"branch"`
}

// Proposal step names, in execution order.
const (
	StepResolveDefaultBranch = "resolve-default-branch"
	StepCreateBranch         = "create-branch"
	StepCommitFile           = "commit-file"
	StepOpenPullRequest      = "open-pull-request"
)

// Propose runs the four-step write sequence. The sequence is not
// transactional: a failure aborts the remaining steps and returns a
// ProposalError describing how far it got. A partially written branch is
// left in place; it is visible, auditable, and harmless.
func (c *Client) Propose(ctx context.Context, p Proposal) (*PRResult, error) {
	fail := func(step string, committed int, err error) (*PRResult, error) {
		return nil, &ProposalError{Step: step, Branch: p.Branch, CommittedFiles: committed, Err: err}
	}

	base, err := c.DefaultBranch(ctx)
	if err != nil {
		return fail(StepResolveDefaultBranch, 0, err)
	}

	if err := c.CreateBranch(ctx, p.Branch, base); err != nil {
		return fail(StepCreateBranch, 0, err)
	}

	for i, file := range p.Files {
		if err := c.CommitFile(ctx, p.Branch, file.Path, file.Content, file.Message); err != nil {
			return fail(StepCommitFile, i, err)
		}
	}

	pr, err := c.openPullRequest(ctx, base, p.Branch, p.Title, p.Body)
	if err != nil {
		return fail(StepOpenPullRequest, len(p.Files), err)
	}
	return pr, nil
}

func (c *Client) openPullRequest(ctx context.Context, base, branch, title, body string) (*PRResult, error) {
	var pr struct {
		HTMLURL string `json:"html_url"`
		Number  int    `json:"number"`
	}
	payload := map[string]string{
		"title": title,
		"body":  body,
		"head":  branch,
		"base":  base,
	}
	apiPath := fmt.Sprintf("/repos/%s/%s/pulls", c.owner, c.repo)
	if err := c.do(ctx, http.MethodPost, apiPath, payload, &pr); err != nil {
		return nil, err
	}
	return &PRResult{URL: pr.HTMLURL, Number: pr.Number, Branch: branch}, nil
}
