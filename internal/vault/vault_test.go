package vault

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/yaghiashraf/answervault/internal/githubapi"
	"gopkg.in/yaml.v3"
)

// fakeRepo is an in-memory repository double. Propose applies the file
// changes immediately, as if the pull request were merged, so round-trip
// tests can read back what they wrote.
type fakeRepo struct {
	files       map[string]string
	proposals   []githubapi.Proposal
	readCalls   int
	proposeErr  error
	nextPRIndex int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{files: make(map[string]string)}
}

func (f *fakeRepo) ReadFile(_ context.Context, path string) (string, bool, error) {
	f.readCalls++
	content, ok := f.files[path]
	return content, ok, nil
}

func (f *fakeRepo) ListDirectory(_ context.Context, path string) ([]string, error) {
	seen := map[string]bool{}
	var names []string
	prefix := path + "/"
	for stored := range f.files {
		if !strings.HasPrefix(stored, prefix) {
			continue
		}
		rest := strings.TrimPrefix(stored, prefix)
		if i := strings.Index(rest, "/"); i >= 0 {
			rest = rest[:i]
		}
		if !seen[rest] {
			seen[rest] = true
			names = append(names, rest)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeRepo) Propose(_ context.Context, p githubapi.Proposal) (*githubapi.PRResult, error) {
	f.proposals = append(f.proposals, p)
	if f.proposeErr != nil {
		return nil, f.proposeErr
	}
	for _, file := range p.Files {
		f.files[file.Path] = file.Content
	}
	f.nextPRIndex++
	return &githubapi.PRResult{
		URL:    "https://github.com/acme/compliance/pull/1",
		Number: f.nextPRIndex,
		Branch: p.Branch,
	}, nil
}

func newTestVault(repo *fakeRepo) *Vault {
	v := New(repo)
	v.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return v
}

func ptr(s string) *string { return &s }

func validAnswer(id string) Answer {
	return Answer{
		ID:             id,
		Title:          "Encryption at rest",
		IntentKeywords: []string{"encryption", "aes"},
		ShortAnswer:    "All customer data is encrypted at rest with AES-256.",
		Tags:           []string{"security"},
		Frameworks:     []string{"SOC2"},
		Owner:          "security@acme.example",
		LastReviewed:   "2026-01-15",
		EvidenceIDs:    []string{"ev-001"},
		LongAnswerMD:   ptr("Full policy details.\n"),
	}
}

func answersEqual(a, b Answer) bool {
	if a.ID != b.ID || a.Title != b.Title || a.ShortAnswer != b.ShortAnswer ||
		a.Owner != b.Owner || a.LastReviewed != b.LastReviewed {
		return false
	}
	if strings.Join(a.IntentKeywords, ",") != strings.Join(b.IntentKeywords, ",") ||
		strings.Join(a.Tags, ",") != strings.Join(b.Tags, ",") ||
		strings.Join(a.Frameworks, ",") != strings.Join(b.Frameworks, ",") ||
		strings.Join(a.EvidenceIDs, ",") != strings.Join(b.EvidenceIDs, ",") {
		return false
	}
	if (a.LongAnswerMD == nil) != (b.LongAnswerMD == nil) {
		return false
	}
	return a.LongAnswerMD == nil || *a.LongAnswerMD == *b.LongAnswerMD
}

func TestAnswerRoundTrip(t *testing.T) {
	repo := newFakeRepo()
	v := newTestVault(repo)
	ctx := context.Background()

	input := validAnswer("ans-099")
	pr, err := v.UpsertAnswer(ctx, input, true)
	if err != nil {
		t.Fatalf("UpsertAnswer() error = %v", err)
	}
	if !strings.Contains(pr.Branch, "ans-099") {
		t.Fatalf("branch %q must contain the answer id", pr.Branch)
	}

	got, err := v.GetAnswer(ctx, "ans-099")
	if err != nil {
		t.Fatalf("GetAnswer() error = %v", err)
	}
	if got == nil || !answersEqual(input, *got) {
		t.Fatalf("round trip mismatch:\n in  %+v\n out %+v", input, got)
	}
}

func TestAnswerRoundTripEmptyBody(t *testing.T) {
	repo := newFakeRepo()
	v := newTestVault(repo)
	ctx := context.Background()

	input := validAnswer("ans-100")
	input.LongAnswerMD = ptr("")
	if _, err := v.UpsertAnswer(ctx, input, true); err != nil {
		t.Fatalf("UpsertAnswer() error = %v", err)
	}

	got, err := v.GetAnswer(ctx, "ans-100")
	if err != nil {
		t.Fatalf("GetAnswer() error = %v", err)
	}
	if got == nil || !answersEqual(input, *got) {
		t.Fatalf("round trip mismatch for empty body: %+v", got)
	}
}

func TestGetAnswerToleratesMissingSibling(t *testing.T) {
	repo := newFakeRepo()
	meta, _ := yaml.Marshal(validAnswer("ans-001"))
	repo.files["answers/ans-001.yml"] = string(meta)
	v := newTestVault(repo)

	got, err := v.GetAnswer(context.Background(), "ans-001")
	if err != nil {
		t.Fatalf("GetAnswer() error = %v", err)
	}
	if got == nil {
		t.Fatal("expected answer")
	}
	if got.LongAnswerMD == nil || *got.LongAnswerMD != "" {
		t.Fatalf("missing sibling must read as empty body, got %v", got.LongAnswerMD)
	}
}

func TestGetAnswerAbsent(t *testing.T) {
	v := newTestVault(newFakeRepo())
	got, err := v.GetAnswer(context.Background(), "ans-404")
	if err != nil {
		t.Fatalf("GetAnswer() error = %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for absent answer, got %+v", got)
	}
}

func TestUpsertAnswerWithoutBodySkipsSibling(t *testing.T) {
	repo := newFakeRepo()
	v := newTestVault(repo)

	input := validAnswer("ans-101")
	input.LongAnswerMD = nil
	if _, err := v.UpsertAnswer(context.Background(), input, true); err != nil {
		t.Fatalf("UpsertAnswer() error = %v", err)
	}

	if len(repo.proposals) != 1 {
		t.Fatalf("expected 1 proposal, got %d", len(repo.proposals))
	}
	if len(repo.proposals[0].Files) != 1 {
		t.Fatalf("expected only the metadata file, got %d files", len(repo.proposals[0].Files))
	}
	if !strings.Contains(repo.proposals[0].Body, "ans-101") {
		t.Fatal("PR body must contain the answer id")
	}
}

func TestUpsertAnswerValidationBlocksProposal(t *testing.T) {
	repo := newFakeRepo()
	v := newTestVault(repo)

	bad := validAnswer("not-an-id")
	_, err := v.UpsertAnswer(context.Background(), bad, true)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(repo.proposals) != 0 {
		t.Fatal("validation failure must not reach the repository")
	}
}

func TestListAnswers(t *testing.T) {
	repo := newFakeRepo()
	v := newTestVault(repo)
	ctx := context.Background()

	first := validAnswer("ans-001")
	second := validAnswer("ans-002")
	second.LongAnswerMD = nil
	if _, err := v.UpsertAnswer(ctx, first, true); err != nil {
		t.Fatalf("UpsertAnswer() error = %v", err)
	}
	if _, err := v.UpsertAnswer(ctx, second, true); err != nil {
		t.Fatalf("UpsertAnswer() error = %v", err)
	}

	answers, err := v.ListAnswers(ctx)
	if err != nil {
		t.Fatalf("ListAnswers() error = %v", err)
	}
	if len(answers) != 2 {
		t.Fatalf("expected 2 answers, got %d", len(answers))
	}
	for _, a := range answers {
		if a.LongAnswerMD == nil {
			t.Fatalf("reader must always materialize a body, got nil for %s", a.ID)
		}
	}
}

func validEvidence(id, title string) Evidence {
	return Evidence{
		ID:          id,
		Title:       title,
		Type:        EvidenceLink,
		URLOrPath:   "https://wiki.acme.example/security",
		Description: "Security policy landing page used as audit evidence.",
		LastUpdated: "2026-02-01",
		Tags:        []string{"policy"},
	}
}

func TestUpsertEvidenceAppendsNewIdentity(t *testing.T) {
	repo := newFakeRepo()
	v := newTestVault(repo)
	ctx := context.Background()

	if _, err := v.UpsertEvidence(ctx, validEvidence("ev-001", "Policy page")); err != nil {
		t.Fatalf("UpsertEvidence() error = %v", err)
	}
	if _, err := v.UpsertEvidence(ctx, validEvidence("ev-002", "Pentest report")); err != nil {
		t.Fatalf("UpsertEvidence() error = %v", err)
	}

	items, err := v.ListEvidence(ctx)
	if err != nil {
		t.Fatalf("ListEvidence() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != "ev-001" || items[1].ID != "ev-002" {
		t.Fatalf("append must preserve order, got %v", []string{items[0].ID, items[1].ID})
	}
}

func TestUpsertEvidenceReplacesInPlace(t *testing.T) {
	repo := newFakeRepo()
	v := newTestVault(repo)
	ctx := context.Background()

	for _, item := range []Evidence{
		validEvidence("ev-001", "Policy page"),
		validEvidence("ev-002", "Pentest report"),
		validEvidence("ev-003", "SOC2 report"),
	} {
		if _, err := v.UpsertEvidence(ctx, item); err != nil {
			t.Fatalf("UpsertEvidence() error = %v", err)
		}
	}

	updated := validEvidence("ev-002", "Pentest report 2026")
	if _, err := v.UpsertEvidence(ctx, updated); err != nil {
		t.Fatalf("UpsertEvidence() error = %v", err)
	}

	items, err := v.ListEvidence(ctx)
	if err != nil {
		t.Fatalf("ListEvidence() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("replace must keep the count at 3, got %d", len(items))
	}
	ids := []string{items[0].ID, items[1].ID, items[2].ID}
	if ids[0] != "ev-001" || ids[1] != "ev-002" || ids[2] != "ev-003" {
		t.Fatalf("replace must keep collection order, got %v", ids)
	}
	if items[1].Title != "Pentest report 2026" {
		t.Fatalf("expected in-place update, got %q", items[1].Title)
	}
}

func TestListEvidenceAbsentCollection(t *testing.T) {
	v := newTestVault(newFakeRepo())
	items, err := v.ListEvidence(context.Background())
	if err != nil {
		t.Fatalf("ListEvidence() error = %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty collection, got %v", items)
	}
}

func TestQuestionnaireRoundTrip(t *testing.T) {
	repo := newFakeRepo()
	v := newTestVault(repo)
	ctx := context.Background()

	q := Questionnaire{
		Slug:           "vendor-security-2026",
		SourceFilename: "Vendor Security 2026.csv",
		ImportedAt:     "2026-03-01T10:00:00Z",
		Questions: []Question{
			{QID: "Q001", Text: "Do you encrypt data at rest?", Section: "Encryption", AnswerType: "yes_no"},
			{QID: "Q002", Text: "Describe your access control process.", Section: "Access", AnswerType: "text"},
		},
	}
	pr, err := v.SaveQuestionnaire(ctx, q)
	if err != nil {
		t.Fatalf("SaveQuestionnaire() error = %v", err)
	}
	if !strings.Contains(pr.Branch, "vendor-security-2026") {
		t.Fatalf("branch %q must contain the slug", pr.Branch)
	}

	got, err := v.GetQuestionnaire(ctx, "vendor-security-2026")
	if err != nil {
		t.Fatalf("GetQuestionnaire() error = %v", err)
	}
	if got == nil || len(got.Questions) != 2 || got.Questions[1].QID != "Q002" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	all, err := v.ListQuestionnaires(ctx)
	if err != nil {
		t.Fatalf("ListQuestionnaires() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 questionnaire, got %d", len(all))
	}
}

func TestMappingNullVersusAbsent(t *testing.T) {
	repo := newFakeRepo()
	v := newTestVault(repo)
	ctx := context.Background()

	mapping := Mapping{
		"Q001": {AnswerID: ptr("ans-001")},
		"Q002": {AnswerID: nil}, // explicitly unmapped
		// Q003 intentionally absent: never considered.
	}
	if _, err := v.SaveMapping(ctx, "vendor-security-2026", mapping); err != nil {
		t.Fatalf("SaveMapping() error = %v", err)
	}

	got, err := v.GetMapping(ctx, "vendor-security-2026")
	if err != nil {
		t.Fatalf("GetMapping() error = %v", err)
	}

	mapped, ok := got["Q001"]
	if !ok || mapped.AnswerID == nil || *mapped.AnswerID != "ans-001" {
		t.Fatalf("Q001 must round-trip mapped, got %+v", mapped)
	}

	unmapped, ok := got["Q002"]
	if !ok {
		t.Fatal("Q002 must round-trip as present")
	}
	if unmapped.AnswerID != nil {
		t.Fatalf("Q002 must stay explicitly unmapped, got %v", *unmapped.AnswerID)
	}

	if _, ok := got["Q003"]; ok {
		t.Fatal("Q003 was never considered and must stay absent")
	}
}

func TestGetMappingAbsentFile(t *testing.T) {
	v := newTestVault(newFakeRepo())
	mapping, err := v.GetMapping(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetMapping() error = %v", err)
	}
	if mapping == nil || len(mapping) != 0 {
		t.Fatalf("expected empty mapping, got %v", mapping)
	}
}

func TestMappingOverrideTextSurvives(t *testing.T) {
	repo := newFakeRepo()
	v := newTestVault(repo)
	ctx := context.Background()

	mapping := Mapping{"Q001": {AnswerID: nil, OverrideText: "Answered inline for this customer."}}
	if _, err := v.SaveMapping(ctx, "s", mapping); err != nil {
		t.Fatalf("SaveMapping() error = %v", err)
	}
	got, err := v.GetMapping(ctx, "s")
	if err != nil {
		t.Fatalf("GetMapping() error = %v", err)
	}
	if got["Q001"].OverrideText != "Answered inline for this customer." {
		t.Fatalf("override text mismatch: %+v", got["Q001"])
	}
}
