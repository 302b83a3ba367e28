// Package githubapi wraps the GitHub REST API for a single target
// repository. Reads go through a shared TTL cache; writes only ever happen
// on proposal branches via the branch -> commit(s) -> pull-request sequence.
package githubapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yaghiashraf/answervault/internal/cache"
)

const requestTimeout = 15 * time.Second

// Client talks to one owner/repo with one bearer credential. It is stateless
// between calls apart from the shared cache and safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	owner      string
	repo       string
	cache      *cache.Cache
}

// ParseRepo splits an "owner/repo" full name.
func ParseRepo(fullName string) (owner, repo string, err error) {
	parts := strings.Split(fullName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo full name %q", fullName)
	}
	return parts[0], parts[1], nil
}

// New builds a client for repoFullName ("owner/repo"). fileCache may be
// shared across clients; keys are namespaced by repo identity.
func New(baseURL, token, repoFullName string, fileCache *cache.Cache) (*Client, error) {
	owner, repo, err := ParseRepo(repoFullName)
	if err != nil {
		return nil, err
	}
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		owner:      owner,
		repo:       repo,
		cache:      fileCache,
	}, nil
}

func (c *Client) fileKey(path string) string {
	return fmt.Sprintf("%s/%s:%s", c.owner, c.repo, path)
}

func (c *Client) dirKey(path string) string {
	return fmt.Sprintf("dir:%s/%s:%s", c.owner, c.repo, path)
}

// do issues one API request and decodes a 2xx JSON response into out.
// Non-2xx statuses are mapped onto the package error kinds.
func (c *Client) do(ctx context.Context, method, apiPath string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPath, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RemoteError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RemoteError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, apiMessage(raw))
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return &RemoteError{Status: resp.StatusCode, Message: "undecodable response body", Err: err}
		}
	}
	return nil
}

func apiMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(raw))
}

type contentEntry struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	SHA     string `json:"sha"`
	Content string `json:"content"`
}

// getContents fetches /contents/{path}, which answers with an object for a
// file and an array for a directory.
func (c *Client) getContents(ctx context.Context, path string) (*contentEntry, []contentEntry, error) {
	var raw json.RawMessage
	apiPath := fmt.Sprintf("/repos/%s/%s/contents/%s", c.owner, c.repo, escapePath(path))
	if err := c.do(ctx, http.MethodGet, apiPath, nil, &raw); err != nil {
		return nil, nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var entries []contentEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, nil, &RemoteError{Message: "undecodable directory listing", Err: err}
		}
		return nil, entries, nil
	}
	var entry contentEntry
	if err := json.Unmarshal(trimmed, &entry); err != nil {
		return nil, nil, &RemoteError{Message: "undecodable file entry", Err: err}
	}
	return &entry, nil, nil
}

// ReadFile returns the decoded content of path. An absent file (or a path
// that turns out to be a directory) reads as found=false, never an error.
// Hits are served from the cache without touching the API.
func (c *Client) ReadFile(ctx context.Context, path string) (content string, found bool, err error) {
	if cached, ok := c.cache.Get(c.fileKey(path)); ok {
		return cached.(string), true, nil
	}

	entry, _, err := c.getContents(ctx, path)
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	if entry == nil || entry.Type != "file" {
		return "", false, nil
	}
	decoded, err := decodeContent(entry.Content)
	if err != nil {
		return "", false, &RemoteError{Message: fmt.Sprintf("undecodable content for %s", path), Err: err}
	}
	c.cache.Put(c.fileKey(path), decoded)
	return decoded, true, nil
}

// ListDirectory returns the entry names under path. An absent directory is
// an empty list, never an error.
func (c *Client) ListDirectory(ctx context.Context, path string) ([]string, error) {
	if cached, ok := c.cache.Get(c.dirKey(path)); ok {
		return cached.([]string), nil
	}

	_, entries, err := c.getContents(ctx, path)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name)
	}
	c.cache.Put(c.dirKey(path), names)
	return names, nil
}

// FileSHA returns the current blob sha for path, bypassing the cache so the
// optimistic-concurrency precondition is taken against live state.
func (c *Client) FileSHA(ctx context.Context, path string) (sha string, found bool, err error) {
	entry, _, err := c.getContents(ctx, path)
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	if entry == nil {
		return "", false, nil
	}
	return entry.SHA, true, nil
}

// DefaultBranch resolves the repository's default branch name.
func (c *Client) DefaultBranch(ctx context.Context) (string, error) {
	var repo struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s", c.owner, c.repo), nil, &repo); err != nil {
		return "", err
	}
	return repo.DefaultBranch, nil
}

// CreateBranch creates refs/heads/<name> at the current tip of fromBranch.
func (c *Client) CreateBranch(ctx context.Context, name, fromBranch string) error {
	var ref struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	refPath := fmt.Sprintf("/repos/%s/%s/git/ref/heads/%s", c.owner, c.repo, fromBranch)
	if err := c.do(ctx, http.MethodGet, refPath, nil, &ref); err != nil {
		return fmt.Errorf("resolve tip of %s: %w", fromBranch, err)
	}

	body := map[string]string{
		"ref": "refs/heads/" + name,
		"sha": ref.Object.SHA,
	}
	createPath := fmt.Sprintf("/repos/%s/%s/git/refs", c.owner, c.repo)
	if err := c.do(ctx, http.MethodPost, createPath, body, nil); err != nil {
		return fmt.Errorf("create branch %s: %w", name, err)
	}
	return nil
}

// CommitFile creates or updates one file on branch. When the file already
// exists its current sha is sent as a precondition; the API rejects the
// write with a conflict if the file moved since the sha was read. On
// success the cached content and every cached listing for the repo are
// invalidated.
func (c *Client) CommitFile(ctx context.Context, branch, path, content, message string) error {
	sha, exists, err := c.FileSHA(ctx, path)
	if err != nil {
		return fmt.Errorf("resolve sha for %s: %w", path, err)
	}

	body := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
		"branch":  branch,
	}
	if exists {
		body["sha"] = sha
	}

	apiPath := fmt.Sprintf("/repos/%s/%s/contents/%s", c.owner, c.repo, escapePath(path))
	if err := c.do(ctx, http.MethodPut, apiPath, body, nil); err != nil {
		return fmt.Errorf("commit %s: %w", path, err)
	}

	c.cache.Invalidate(c.fileKey(path))
	c.cache.Invalidate(fmt.Sprintf("dir:%s/%s", c.owner, c.repo))
	return nil
}

// OpenIssue opens an issue and returns its URL.
func (c *Client) OpenIssue(ctx context.Context, title, body string) (string, error) {
	var issue struct {
		HTMLURL string `json:"html_url"`
	}
	payload := map[string]string{"title": title, "body": body}
	apiPath := fmt.Sprintf("/repos/%s/%s/issues", c.owner, c.repo)
	if err := c.do(ctx, http.MethodPost, apiPath, payload, &issue); err != nil {
		return "", err
	}
	return issue.HTMLURL, nil
}

// Repo describes one repository visible to the authenticated user.
type Repo struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Private       bool   `json:"private"`
	DefaultBranch string `json:"default_branch"`
}

// ListRepos lists the authenticated user's repositories, most recently
// updated first. Account-scoped, so it lives outside Client.
func ListRepos(ctx context.Context, baseURL, token string) ([]Repo, error) {
	c := &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
	var raw []struct {
		Name          string `json:"name"`
		FullName      string `json:"full_name"`
		Private       bool   `json:"private"`
		DefaultBranch string `json:"default_branch"`
		Owner         struct {
			Login string `json:"login"`
		} `json:"owner"`
	}
	if err := c.do(ctx, http.MethodGet, "/user/repos?sort=updated&per_page=100&type=all", nil, &raw); err != nil {
		return nil, err
	}
	repos := make([]Repo, 0, len(raw))
	for _, r := range raw {
		repos = append(repos, Repo{
			Owner:         r.Owner.Login,
			Name:          r.Name,
			FullName:      r.FullName,
			Private:       r.Private,
			DefaultBranch: r.DefaultBranch,
		})
	}
	return repos, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// decodeContent handles the API's line-wrapped base64 file content.
func decodeContent(encoded string) (string, error) {
	compact := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, encoded)
	decoded, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
