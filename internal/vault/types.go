// Package vault implements typed read and write operations for the four
// document kinds AnswerVault stores inside a compliance repository:
//
//	answers/<id>.yml (+ optional sibling answers/<id>.md)
//	evidence/evidence.yml
//	questionnaires/<slug>/questionnaire.json
//	questionnaires/<slug>/mapping.yml
//
// The layout is an interoperability contract: the files are meant to be
// reviewed and merged by humans in how they appear here.
package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/yaghiashraf/answervault/internal/githubapi"
)

// Answer is a reusable compliance answer. The long-form markdown body lives
// in a sibling file next to the metadata, never inside the YAML; a nil
// LongAnswerMD on write means "leave the sibling untouched".
type Answer struct {
	ID             string   `yaml:"id" json:"id"`
	Title          string   `yaml:"title" json:"title"`
	IntentKeywords []string `yaml:"intent_keywords" json:"intent_keywords"`
	ShortAnswer    string   `yaml:"short_answer" json:"short_answer"`
	Tags           []string `yaml:"tags" json:"tags"`
	Frameworks     []string `yaml:"frameworks" json:"frameworks"`
	Owner          string   `yaml:"owner" json:"owner"`
	LastReviewed   string   `yaml:"last_reviewed" json:"last_reviewed"` // YYYY-MM-DD
	EvidenceIDs    []string `yaml:"evidence_ids" json:"evidence_ids"`
	LongAnswerMD   *string  `yaml:"-" json:"long_answer_md,omitempty"`
}

// EvidenceType tags what an evidence item points at.
type EvidenceType string

const (
	EvidenceDoc  EvidenceType = "doc"
	EvidenceLink EvidenceType = "link"
	EvidenceFile EvidenceType = "file"
)

// Evidence is one entry of the single-file evidence collection.
type Evidence struct {
	ID          string       `yaml:"id" json:"id"`
	Title       string       `yaml:"title" json:"title"`
	Type        EvidenceType `yaml:"type" json:"type"`
	URLOrPath   string       `yaml:"url_or_path" json:"url_or_path"`
	Description string       `yaml:"description" json:"description"`
	LastUpdated string       `yaml:"last_updated" json:"last_updated"` // YYYY-MM-DD
	Tags        []string     `yaml:"tags" json:"tags"`
}

// Question is one row of an imported questionnaire.
type Question struct {
	QID        string `json:"qid"`
	Text       string `json:"text"`
	Section    string `json:"section"`
	AnswerType string `json:"answer_type"` // yes_no | yes_no_na | text | select
}

// Questionnaire is an import record. Writes always replace the whole record;
// there are no partial questionnaire updates.
type Questionnaire struct {
	Slug           string     `json:"slug"`
	SourceFilename string     `json:"source_filename"`
	ImportedAt     string     `json:"imported_at"` // RFC 3339
	Questions      []Question `json:"questions"`
}

// MappingEntry links one question to the answer library. A nil AnswerID is
// "explicitly unmapped", which is distinct from the question key being
// absent from the mapping altogether ("never considered").
type MappingEntry struct {
	AnswerID     *string `yaml:"answer_id" json:"answer_id"`
	OverrideText string  `yaml:"override_text,omitempty" json:"override_text,omitempty"`
}

// Mapping is keyed by question identifier, one collection per questionnaire.
type Mapping map[string]MappingEntry

// Demo-mode limits, applied by the request gate when no valid license is
// present. Public so the UI can document them.
const (
	DemoMaxAnswers        = 20
	DemoMaxEvidence       = 10
	DemoMaxQuestionnaires = 1
	DemoMaxQuestions      = 30
	DemoWatermark         = "DEMO - NOT FOR SUBMISSION"
)

// Repo is the slice of the repository client the vault needs. Reads resolve
// through the client's cache; all writes go through the proposal sequence.
type Repo interface {
	ReadFile(ctx context.Context, path string) (content string, found bool, err error)
	ListDirectory(ctx context.Context, path string) ([]string, error)
	Propose(ctx context.Context, p githubapi.Proposal) (*githubapi.PRResult, error)
}

// Vault exposes the typed entity operations over one repository.
type Vault struct {
	repo Repo
	now  func() time.Time
}

func New(repo Repo) *Vault {
	return &Vault{repo: repo, now: time.Now}
}

func (v *Vault) branchName(kind, identity string) string {
	return fmt.Sprintf("answervault/%s-%s-%d", kind, identity, v.now().UnixMilli())
}
