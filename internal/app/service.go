// Package app is the HTTP application layer: session resolution, the
// license gate in front of every repository operation, and the JSON surface
// the UI talks to.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"

	"github.com/yaghiashraf/answervault/internal/cache"
	"github.com/yaghiashraf/answervault/internal/config"
	"github.com/yaghiashraf/answervault/internal/export"
	"github.com/yaghiashraf/answervault/internal/githubapi"
	"github.com/yaghiashraf/answervault/internal/importer"
	"github.com/yaghiashraf/answervault/internal/license"
	"github.com/yaghiashraf/answervault/internal/search"
	"github.com/yaghiashraf/answervault/internal/session"
	"github.com/yaghiashraf/answervault/internal/util"
	"github.com/yaghiashraf/answervault/internal/vault"
)

// Session is a resolved browser session: the raw token (needed for Redis
// updates), its claims, and the server-side data.
type Session struct {
	Token  string
	Claims session.TokenClaims
	Data   session.Data
}

type githubUser struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

// sessionStore is the slice of the Redis store the service uses.
type sessionStore interface {
	Save(ctx context.Context, tokenHash string, data session.Data, ttl time.Duration) error
	Lookup(ctx context.Context, tokenHash string) (session.Data, error)
	SelectRepo(ctx context.Context, tokenHash, repoFullName string) error
	Revoke(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg      config.Config
	sessions sessionStore
	search   *search.Service
	oauth    *oauth2.Config

	// Swapped by tests; production wiring talks to GitHub.
	newRepo   func(token, repoFullName string) (vault.Repo, error)
	listRepos func(ctx context.Context, token string) ([]githubapi.Repo, error)
	fetchUser func(ctx context.Context, token string) (githubUser, error)
}

func NewService(cfg config.Config, sessions sessionStore, searchSvc *search.Service) *Service {
	fileCache := cache.New(cfg.CacheTTL)

	s := &Service{
		cfg:      cfg,
		sessions: sessions,
		search:   searchSvc,
		oauth: &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			Endpoint:     oauthgithub.Endpoint,
			RedirectURL:  cfg.BaseURL + "/api/auth/callback",
			Scopes:       []string{"repo", "read:user", "user:email"},
		},
	}
	s.newRepo = func(token, repoFullName string) (vault.Repo, error) {
		return githubapi.New(cfg.GitHubAPIURL, token, repoFullName, fileCache)
	}
	s.listRepos = func(ctx context.Context, token string) ([]githubapi.Repo, error) {
		return githubapi.ListRepos(ctx, cfg.GitHubAPIURL, token)
	}
	s.fetchUser = func(ctx context.Context, token string) (githubUser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.GitHubAPIURL+"/user", nil)
		if err != nil {
			return githubUser{}, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/vnd.github+json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return githubUser{}, fmt.Errorf("fetch github user: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return githubUser{}, fmt.Errorf("fetch github user: status %d", resp.StatusCode)
		}
		var user githubUser
		if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
			return githubUser{}, fmt.Errorf("decode github user: %w", err)
		}
		return user, nil
	}
	return s
}

// License resolves the gate mode for the given repository. It is computed
// per request from configuration alone; no network involved.
func (s *Service) License(selectedRepo string) license.Status {
	return license.StatusFor(s.cfg.PublicKey, s.cfg.LicenseKey, selectedRepo)
}

func (s *Service) OAuthConfigured() bool {
	return s.cfg.GitHubClientID != ""
}

// LoginURL builds the GitHub authorize redirect for the given CSRF state.
func (s *Service) LoginURL(state string) string {
	return s.oauth.AuthCodeURL(state)
}

// HandleCallback exchanges the OAuth code, fetches the GitHub identity, and
// mints a session.
func (s *Service) HandleCallback(ctx context.Context, code string) (string, Session, error) {
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return "", Session{}, domainError(http.StatusBadGateway, "TOKEN_EXCHANGE_FAILED", "GitHub token exchange failed", nil)
	}
	user, err := s.fetchUser(ctx, token.AccessToken)
	if err != nil {
		return "", Session{}, domainError(http.StatusBadGateway, "USER_FETCH_FAILED", "Could not fetch the GitHub user", nil)
	}
	return s.mintSession(ctx, user.Login, session.Data{
		GitHubAccessToken: token.AccessToken,
		GitHubUsername:    user.Login,
		GitHubAvatar:      user.AvatarURL,
	})
}

// DemoLogin mints a session with no GitHub access token. License checks on
// such a session always come back restricted.
func (s *Service) DemoLogin(ctx context.Context) (string, Session, error) {
	return s.mintSession(ctx, "demo", session.Data{GitHubUsername: "demo"})
}

func (s *Service) mintSession(ctx context.Context, username string, data session.Data) (string, Session, error) {
	data.CreatedAt = time.Now().UTC()
	claims := session.TokenClaims{
		Username: username,
		JTI:      util.NewID("sess"),
		Exp:      time.Now().Add(s.cfg.SessionTTL).Unix(),
	}
	token, err := session.IssueToken([]byte(s.cfg.SessionSecret), claims)
	if err != nil {
		return "", Session{}, fmt.Errorf("issue session token: %w", err)
	}
	if err := s.sessions.Save(ctx, session.HashToken(token), data, s.cfg.SessionTTL); err != nil {
		return "", Session{}, fmt.Errorf("save session: %w", err)
	}
	return token, Session{Token: token, Claims: claims, Data: data}, nil
}

// SessionFromToken validates the signed token and loads its Redis data.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := session.ParseToken([]byte(s.cfg.SessionSecret), token)
	if err != nil {
		return Session{}, err
	}
	data, err := s.sessions.Lookup(ctx, session.HashToken(token))
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, Claims: claims, Data: data}, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, session.HashToken(token))
}

// SelectRepo pins the session to one "owner/repo".
func (s *Service) SelectRepo(ctx context.Context, sess Session, repoFullName string) error {
	if _, _, err := githubapi.ParseRepo(repoFullName); err != nil {
		return domainError(http.StatusBadRequest, "INVALID_REPO", "Expected owner/name", nil)
	}
	return s.sessions.SelectRepo(ctx, session.HashToken(sess.Token), repoFullName)
}

func (s *Service) Repos(ctx context.Context, sess Session) ([]githubapi.Repo, error) {
	return s.listRepos(ctx, sess.Data.GitHubAccessToken)
}

var errNoRepoSelected = domainError(http.StatusBadRequest, "NO_REPO_SELECTED", "Select a repository first", nil)

// errLicenseRequired is the gate's only write-path answer in restricted
// mode. It fires before any repository client exists.
var errLicenseRequired = domainError(http.StatusForbidden, "LICENSE_REQUIRED", "Write operations require a valid license", nil)

func (s *Service) vaultFor(sess Session) (*vault.Vault, error) {
	if sess.Data.SelectedRepo == "" {
		return nil, errNoRepoSelected
	}
	repo, err := s.newRepo(sess.Data.GitHubAccessToken, sess.Data.SelectedRepo)
	if err != nil {
		return nil, err
	}
	return vault.New(repo), nil
}

// gateWrite rejects restricted sessions and otherwise hands back the vault.
func (s *Service) gateWrite(sess Session) (*vault.Vault, error) {
	if s.License(sess.Data.SelectedRepo).Demo {
		return nil, errLicenseRequired
	}
	return s.vaultFor(sess)
}

func (s *Service) ListAnswers(ctx context.Context, sess Session) ([]vault.Answer, bool, error) {
	v, err := s.vaultFor(sess)
	if err != nil {
		return nil, false, err
	}
	answers, err := v.ListAnswers(ctx)
	if err != nil {
		return nil, false, err
	}
	demo := s.License(sess.Data.SelectedRepo).Demo
	if demo && len(answers) > vault.DemoMaxAnswers {
		answers = answers[:vault.DemoMaxAnswers]
	}
	return answers, demo, nil
}

func (s *Service) GetAnswer(ctx context.Context, sess Session, id string) (*vault.Answer, error) {
	v, err := s.vaultFor(sess)
	if err != nil {
		return nil, err
	}
	answer, err := v.GetAnswer(ctx, id)
	if err != nil {
		return nil, err
	}
	if answer == nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Answer not found", nil)
	}
	return answer, nil
}

// SaveAnswer proposes a create-or-update. Whether the answer already exists
// decides the branch naming and PR wording.
func (s *Service) SaveAnswer(ctx context.Context, sess Session, answer vault.Answer) (*githubapi.PRResult, error) {
	v, err := s.gateWrite(sess)
	if err != nil {
		return nil, err
	}
	if issues := vault.ValidateAnswer(answer); len(issues) > 0 {
		return nil, &vault.ValidationError{Kind: "answer", Issues: issues}
	}
	existing, err := v.GetAnswer(ctx, answer.ID)
	if err != nil {
		return nil, err
	}
	pr, err := v.UpsertAnswer(ctx, answer, existing == nil)
	if err != nil {
		return nil, err
	}
	s.reindexAnswers(ctx, v)
	return pr, nil
}

func (s *Service) ListEvidence(ctx context.Context, sess Session) ([]vault.Evidence, bool, error) {
	v, err := s.vaultFor(sess)
	if err != nil {
		return nil, false, err
	}
	evidence, err := v.ListEvidence(ctx)
	if err != nil {
		return nil, false, err
	}
	demo := s.License(sess.Data.SelectedRepo).Demo
	if demo && len(evidence) > vault.DemoMaxEvidence {
		evidence = evidence[:vault.DemoMaxEvidence]
	}
	return evidence, demo, nil
}

func (s *Service) SaveEvidence(ctx context.Context, sess Session, item vault.Evidence) (*githubapi.PRResult, error) {
	v, err := s.gateWrite(sess)
	if err != nil {
		return nil, err
	}
	return v.UpsertEvidence(ctx, item)
}

func (s *Service) ListQuestionnaires(ctx context.Context, sess Session) ([]vault.Questionnaire, bool, error) {
	v, err := s.vaultFor(sess)
	if err != nil {
		return nil, false, err
	}
	questionnaires, err := v.ListQuestionnaires(ctx)
	if err != nil {
		return nil, false, err
	}
	demo := s.License(sess.Data.SelectedRepo).Demo
	if demo && len(questionnaires) > vault.DemoMaxQuestionnaires {
		questionnaires = questionnaires[:vault.DemoMaxQuestionnaires]
	}
	return questionnaires, demo, nil
}

func (s *Service) GetQuestionnaire(ctx context.Context, sess Session, slug string) (*vault.Questionnaire, error) {
	v, err := s.vaultFor(sess)
	if err != nil {
		return nil, err
	}
	q, err := v.GetQuestionnaire(ctx, slug)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Questionnaire not found", nil)
	}
	if s.License(sess.Data.SelectedRepo).Demo && len(q.Questions) > vault.DemoMaxQuestions {
		q.Questions = q.Questions[:vault.DemoMaxQuestions]
	}
	return q, nil
}

// ImportQuestionnaire parses an uploaded CSV or XLSX file and proposes the
// resulting questionnaire record.
func (s *Service) ImportQuestionnaire(ctx context.Context, sess Session, filename string, data []byte) (vault.Questionnaire, *githubapi.PRResult, error) {
	v, err := s.gateWrite(sess)
	if err != nil {
		return vault.Questionnaire{}, nil, err
	}
	q, err := importer.Import(filename, data, 0)
	if err != nil {
		return vault.Questionnaire{}, nil, domainError(http.StatusBadRequest, "IMPORT_FAILED", err.Error(), nil)
	}
	if issues := vault.ValidateQuestionnaire(q); len(issues) > 0 {
		return vault.Questionnaire{}, nil, &vault.ValidationError{Kind: "questionnaire", Issues: issues}
	}
	pr, err := v.SaveQuestionnaire(ctx, q)
	if err != nil {
		return vault.Questionnaire{}, nil, err
	}
	return q, pr, nil
}

func (s *Service) GetMapping(ctx context.Context, sess Session, slug string) (vault.Mapping, error) {
	v, err := s.vaultFor(sess)
	if err != nil {
		return nil, err
	}
	return v.GetMapping(ctx, slug)
}

func (s *Service) SaveMapping(ctx context.Context, sess Session, slug string, mapping vault.Mapping) (*githubapi.PRResult, error) {
	v, err := s.gateWrite(sess)
	if err != nil {
		return nil, err
	}
	if issues := vault.ValidateMapping(mapping); len(issues) > 0 {
		return nil, &vault.ValidationError{Kind: "mapping", Issues: issues}
	}
	return v.SaveMapping(ctx, slug, mapping)
}

// ExportResult is a rendered download.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Export renders a questionnaire in the requested format. XLSX is licensed
// only; demo CSV and Markdown carry the watermark.
func (s *Service) Export(ctx context.Context, sess Session, slug, format string) (ExportResult, error) {
	demo := s.License(sess.Data.SelectedRepo).Demo
	if format == "xlsx" && demo {
		return ExportResult{}, domainError(http.StatusForbidden, "LICENSE_REQUIRED", "XLSX export requires a valid license", nil)
	}

	v, err := s.vaultFor(sess)
	if err != nil {
		return ExportResult{}, err
	}
	q, err := v.GetQuestionnaire(ctx, slug)
	if err != nil {
		return ExportResult{}, err
	}
	if q == nil {
		return ExportResult{}, domainError(http.StatusNotFound, "NOT_FOUND", "Questionnaire not found", nil)
	}
	mapping, err := v.GetMapping(ctx, slug)
	if err != nil {
		return ExportResult{}, err
	}
	answers, err := v.ListAnswers(ctx)
	if err != nil {
		return ExportResult{}, err
	}
	evidence, err := v.ListEvidence(ctx)
	if err != nil {
		return ExportResult{}, err
	}

	rows := export.BuildRows(*q, mapping, answers, demo)
	evidenceRows := export.BuildEvidenceIndex(*q, mapping, answers, evidence)
	stem := fmt.Sprintf("%s-%s", slug, time.Now().UTC().Format("2006-01-02"))

	switch format {
	case "xlsx":
		data, err := export.ToXLSX(rows, evidenceRows, slug, demo)
		if err != nil {
			return ExportResult{}, err
		}
		return ExportResult{
			Filename:    stem + ".xlsx",
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Data:        data,
		}, nil
	case "evidence-md":
		md := export.EvidenceIndexToMarkdown(evidenceRows, slug, demo)
		return ExportResult{
			Filename:    stem + "-evidence-index.md",
			ContentType: "text/markdown",
			Data:        []byte(md),
		}, nil
	case "evidence-csv":
		csvText, err := export.EvidenceIndexToCSV(evidenceRows)
		if err != nil {
			return ExportResult{}, err
		}
		return ExportResult{
			Filename:    stem + "-evidence-index.csv",
			ContentType: "text/csv",
			Data:        []byte(csvText),
		}, nil
	case "", "csv":
		csvText, err := export.ToCSV(rows, demo)
		if err != nil {
			return ExportResult{}, err
		}
		return ExportResult{
			Filename:    stem + ".csv",
			ContentType: "text/csv",
			Data:        []byte(csvText),
		}, nil
	default:
		return ExportResult{}, domainError(http.StatusBadRequest, "INVALID_FORMAT", "format must be csv, xlsx, evidence-csv, or evidence-md", nil)
	}
}

// StaleReport computes the review-overdue report over the whole library.
func (s *Service) StaleReport(ctx context.Context, sess Session) (export.StalenessReport, bool, error) {
	v, err := s.vaultFor(sess)
	if err != nil {
		return export.StalenessReport{}, false, err
	}
	answers, err := v.ListAnswers(ctx)
	if err != nil {
		return export.StalenessReport{}, false, err
	}
	evidence, err := v.ListEvidence(ctx)
	if err != nil {
		return export.StalenessReport{}, false, err
	}
	report := export.ComputeStaleness(answers, evidence, s.cfg.StaleAnswerDays, s.cfg.StaleEvidenceDays, time.Now())
	return report, s.License(sess.Data.SelectedRepo).Demo, nil
}

// Suggest ranks library answers for a question. The demo truncation applies
// to the candidate pool the same way it applies to the answers listing.
func (s *Service) Suggest(ctx context.Context, sess Session, question string, topN int) ([]search.Suggestion, error) {
	answers, _, err := s.ListAnswers(ctx, sess)
	if err != nil {
		return nil, err
	}
	return s.search.Suggest(question, answers, topN), nil
}

func (s *Service) reindexAnswers(ctx context.Context, v *vault.Vault) {
	answers, err := v.ListAnswers(ctx)
	if err != nil {
		return
	}
	s.search.IndexAnswers(answers)
}
