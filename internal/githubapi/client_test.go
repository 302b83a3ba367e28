package githubapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yaghiashraf/answervault/internal/cache"
)

// fakeGitHub is an in-memory stand-in for the subset of the REST API the
// client touches: repo metadata, contents, refs, pulls, and issues.
type fakeGitHub struct {
	mu            sync.Mutex
	files         map[string]fakeFile // path -> file
	branches      map[string]string   // branch -> tip sha
	defaultBranch string
	contentCalls  map[string]int // GET contents per path
	pulls         []map[string]string
	issues        []map[string]string
	failPut       map[string]int // path -> status to answer PUT with
}

type fakeFile struct {
	content string
	sha     string
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{
		files:         make(map[string]fakeFile),
		branches:      map[string]string{"main": "tip-sha-0"},
		defaultBranch: "main",
		contentCalls:  make(map[string]int),
		failPut:       make(map[string]int),
	}
}

func (f *fakeGitHub) put(path, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = fakeFile{content: content, sha: fmt.Sprintf("sha-%s-%d", path, len(f.files))}
}

func (f *fakeGitHub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		path := r.URL.Path
		switch {
		case r.Method == http.MethodGet && path == "/repos/acme/compliance":
			json.NewEncoder(w).Encode(map[string]string{"default_branch": f.defaultBranch})

		case r.Method == http.MethodGet && strings.HasPrefix(path, "/repos/acme/compliance/git/ref/heads/"):
			branch := strings.TrimPrefix(path, "/repos/acme/compliance/git/ref/heads/")
			sha, ok := f.branches[branch]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(map[string]string{"message": "Not Found"})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"object": map[string]string{"sha": sha}})

		case r.Method == http.MethodPost && path == "/repos/acme/compliance/git/refs":
			var body struct {
				Ref string `json:"ref"`
				SHA string `json:"sha"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			branch := strings.TrimPrefix(body.Ref, "refs/heads/")
			if _, exists := f.branches[branch]; exists {
				w.WriteHeader(http.StatusUnprocessableEntity)
				json.NewEncoder(w).Encode(map[string]string{"message": "Reference already exists"})
				return
			}
			f.branches[branch] = body.SHA
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"ref": body.Ref})

		case strings.HasPrefix(path, "/repos/acme/compliance/contents/"):
			filePath := strings.TrimPrefix(path, "/repos/acme/compliance/contents/")
			switch r.Method {
			case http.MethodGet:
				f.contentCalls[filePath]++
				f.serveContents(w, filePath)
			case http.MethodPut:
				f.servePut(w, r, filePath)
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}

		case r.Method == http.MethodPost && path == "/repos/acme/compliance/pulls":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			f.pulls = append(f.pulls, body)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]any{
				"html_url": fmt.Sprintf("https://github.com/acme/compliance/pull/%d", len(f.pulls)),
				"number":   len(f.pulls),
			})

		case r.Method == http.MethodPost && path == "/repos/acme/compliance/issues":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			f.issues = append(f.issues, body)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{
				"html_url": fmt.Sprintf("https://github.com/acme/compliance/issues/%d", len(f.issues)),
			})

		default:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"message": "Not Found"})
		}
	})
}

func (f *fakeGitHub) serveContents(w http.ResponseWriter, filePath string) {
	if file, ok := f.files[filePath]; ok {
		json.NewEncoder(w).Encode(map[string]string{
			"type":    "file",
			"name":    filePath[strings.LastIndex(filePath, "/")+1:],
			"sha":     file.sha,
			"content": base64.StdEncoding.EncodeToString([]byte(file.content)),
		})
		return
	}
	// Directory listing: any stored path under filePath/.
	var entries []map[string]string
	prefix := filePath + "/"
	for stored := range f.files {
		if strings.HasPrefix(stored, prefix) {
			rest := strings.TrimPrefix(stored, prefix)
			if !strings.Contains(rest, "/") {
				entries = append(entries, map[string]string{"type": "file", "name": rest})
			}
		}
	}
	if len(entries) == 0 {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "Not Found"})
		return
	}
	json.NewEncoder(w).Encode(entries)
}

func (f *fakeGitHub) servePut(w http.ResponseWriter, r *http.Request, filePath string) {
	if status, ok := f.failPut[filePath]; ok {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"message": "injected failure"})
		return
	}
	var body struct {
		Message string `json:"message"`
		Content string `json:"content"`
		Branch  string `json:"branch"`
		SHA     string `json:"sha"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	existing, exists := f.files[filePath]
	if exists && body.SHA != existing.sha {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"message": "is at a different sha"})
		return
	}
	if !exists && body.SHA != "" {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"message": "sha supplied for new file"})
		return
	}
	decoded, _ := base64.StdEncoding.DecodeString(body.Content)
	f.files[filePath] = fakeFile{content: string(decoded), sha: fmt.Sprintf("sha-%s-%d", filePath, time.Now().UnixNano())}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"content": map[string]string{"path": filePath}})
}

func (f *fakeGitHub) calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contentCalls[path]
}

func newTestClient(t *testing.T, fake *fakeGitHub) *Client {
	t.Helper()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)
	client, err := New(server.URL, "test-token", "acme/compliance", cache.New(5*time.Minute))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestReadFileCachesSecondRead(t *testing.T) {
	fake := newFakeGitHub()
	fake.put("answers/ans-001.yml", "id: ans-001\n")
	client := newTestClient(t, fake)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		content, found, err := client.ReadFile(ctx, "answers/ans-001.yml")
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		if !found || content != "id: ans-001\n" {
			t.Fatalf("unexpected read %q found=%v", content, found)
		}
	}
	if calls := fake.calls("answers/ans-001.yml"); calls != 1 {
		t.Fatalf("expected 1 API call, got %d", calls)
	}
}

func TestReadFileMissingIsAbsentNotError(t *testing.T) {
	client := newTestClient(t, newFakeGitHub())

	content, found, err := client.ReadFile(context.Background(), "answers/ans-404.yml")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if found || content != "" {
		t.Fatalf("expected absent file, got %q found=%v", content, found)
	}
}

func TestReadFileLineWrappedContent(t *testing.T) {
	fake := newFakeGitHub()
	_ = newTestClient(t, fake)

	// The real API wraps base64 content in newlines; inject one directly.
	long := strings.Repeat("evidence text ", 20)
	encoded := base64.StdEncoding.EncodeToString([]byte(long))
	wrapped := encoded[:40] + "\n" + encoded[40:]
	fake.mu.Lock()
	fake.files["evidence/evidence.yml"] = fakeFile{content: "", sha: "x"}
	fake.mu.Unlock()
	decoded, err := decodeContent(wrapped)
	if err != nil {
		t.Fatalf("decodeContent() error = %v", err)
	}
	if decoded != long {
		t.Fatalf("wrapped content mismatch")
	}
}

func TestListDirectory(t *testing.T) {
	fake := newFakeGitHub()
	fake.put("answers/ans-001.yml", "a")
	fake.put("answers/ans-001.md", "body")
	fake.put("answers/ans-002.yml", "b")
	client := newTestClient(t, fake)

	names, err := client.ListDirectory(context.Background(), "answers")
	if err != nil {
		t.Fatalf("ListDirectory() error = %v", err)
	}
	if len(names) != 3 {
		t.Fatalf("expected 3 entries, got %v", names)
	}

	// Second call served from cache.
	if _, err := client.ListDirectory(context.Background(), "answers"); err != nil {
		t.Fatalf("ListDirectory() error = %v", err)
	}
	if calls := fake.calls("answers"); calls != 1 {
		t.Fatalf("expected 1 API call, got %d", calls)
	}
}

func TestListDirectoryMissingIsEmpty(t *testing.T) {
	client := newTestClient(t, newFakeGitHub())

	names, err := client.ListDirectory(context.Background(), "questionnaires")
	if err != nil {
		t.Fatalf("ListDirectory() error = %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected empty listing, got %v", names)
	}
}

func TestCommitFileInvalidatesCache(t *testing.T) {
	fake := newFakeGitHub()
	fake.put("evidence/evidence.yml", "- id: ev-001\n")
	client := newTestClient(t, fake)
	ctx := context.Background()

	if _, _, err := client.ReadFile(ctx, "evidence/evidence.yml"); err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	if err := client.CommitFile(ctx, "main", "evidence/evidence.yml", "- id: ev-002\n", "Update evidence"); err != nil {
		t.Fatalf("CommitFile() error = %v", err)
	}

	content, found, err := client.ReadFile(ctx, "evidence/evidence.yml")
	if err != nil || !found {
		t.Fatalf("ReadFile() after commit: content=%q found=%v err=%v", content, found, err)
	}
	if content != "- id: ev-002\n" {
		t.Fatalf("expected fresh content after invalidation, got %q", content)
	}
	if calls := fake.calls("evidence/evidence.yml"); calls < 2 {
		t.Fatalf("expected a fresh API read after invalidation, got %d calls", calls)
	}
}

func TestCommitFileConflictSurfacesLoudly(t *testing.T) {
	fake := newFakeGitHub()
	fake.put("evidence/evidence.yml", "- id: ev-001\n")
	client := newTestClient(t, fake)
	ctx := context.Background()

	// Simulate the file moving between the sha read and the PUT.
	fake.mu.Lock()
	fake.failPut["evidence/evidence.yml"] = http.StatusConflict
	fake.mu.Unlock()

	err := client.CommitFile(ctx, "main", "evidence/evidence.yml", "- id: ev-002\n", "Update evidence")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{401, ErrUnauthorized},
		{403, ErrForbidden},
		{404, ErrNotFound},
		{409, ErrConflict},
		{422, ErrConflict},
		{429, ErrRateLimited},
	}
	for _, tc := range cases {
		err := statusError(tc.status, "m")
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
	}

	var remote *RemoteError
	if err := statusError(502, "bad gateway"); !errors.As(err, &remote) {
		t.Fatalf("status 502: expected RemoteError, got %v", err)
	}
}

func TestUnauthorizedPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": "Bad credentials"})
	}))
	defer server.Close()

	client, err := New(server.URL, "bad-token", "acme/compliance", cache.New(time.Minute))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, _, err = client.ReadFile(context.Background(), "answers/ans-001.yml")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestOpenIssue(t *testing.T) {
	fake := newFakeGitHub()
	client := newTestClient(t, fake)

	url, err := client.OpenIssue(context.Background(), "Stale evidence", "ev-001 is stale")
	if err != nil {
		t.Fatalf("OpenIssue() error = %v", err)
	}
	if url != "https://github.com/acme/compliance/issues/1" {
		t.Fatalf("unexpected issue url %s", url)
	}
}

func TestParseRepo(t *testing.T) {
	owner, repo, err := ParseRepo("acme/compliance")
	if err != nil || owner != "acme" || repo != "compliance" {
		t.Fatalf("ParseRepo() = %s, %s, %v", owner, repo, err)
	}
	for _, bad := range []string{"", "acme", "acme/", "/compliance", "a/b/c"} {
		if _, _, err := ParseRepo(bad); err == nil {
			t.Fatalf("ParseRepo(%q) expected error", bad)
		}
	}
}
