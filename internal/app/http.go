package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/yaghiashraf/answervault/internal/session"
	"github.com/yaghiashraf/answervault/internal/util"
	"github.com/yaghiashraf/answervault/internal/vault"
)

const (
	sessionCookie    = "av_session"
	oauthStateCookie = "av_oauth_state"
	oauthNextCookie  = "av_oauth_next"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodGet && r.URL.Path == "/api/auth/login" {
		s.handleLogin(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/auth/callback" {
		s.handleCallback(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/demo" {
		token, sess, err := s.service.DemoLogin(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		s.setSessionCookie(w, token)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "username": sess.Data.GitHubUsername})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		if token := s.sessionToken(r); token != "" {
			_ = s.service.Logout(r.Context(), token)
		}
		s.clearCookie(w, sessionCookie)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := s.sessionToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		sess, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"username":      sess.Data.GitHubUsername,
			"avatar":        sess.Data.GitHubAvatar,
			"selected_repo": sess.Data.SelectedRepo,
			"created_at":    sess.Data.CreatedAt,
		})
		return
	}

	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/repo" {
		var body struct {
			Repo string `json:"repo"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.SelectRepo(r.Context(), sess, body.Repo); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "selected_repo": body.Repo})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/license" {
		writeJSON(w, http.StatusOK, s.service.License(sess.Data.SelectedRepo))
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/repos" {
		repos, err := s.service.Repos(r.Context(), sess)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"repos": repos})
		return
	}

	if r.URL.Path == "/api/answers" {
		switch r.Method {
		case http.MethodGet:
			answers, demo, err := s.service.ListAnswers(r.Context(), sess)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"answers": answers, "demo": demo})
		case http.MethodPost:
			var answer vault.Answer
			if err := decodeBody(r, &answer); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			pr, err := s.service.SaveAnswer(r.Context(), sess, answer)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"pr": pr})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	segments := splitPath(r.URL.Path)

	if r.Method == http.MethodGet && len(segments) == 3 && segments[0] == "api" && segments[1] == "answers" {
		answer, err := s.service.GetAnswer(r.Context(), sess, segments[2])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"answer": answer})
		return
	}

	if r.URL.Path == "/api/evidence" {
		switch r.Method {
		case http.MethodGet:
			evidence, demo, err := s.service.ListEvidence(r.Context(), sess)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"evidence": evidence, "demo": demo})
		case http.MethodPost:
			var item vault.Evidence
			if err := decodeBody(r, &item); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			pr, err := s.service.SaveEvidence(r.Context(), sess, item)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"pr": pr})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if r.URL.Path == "/api/questionnaires" {
		switch r.Method {
		case http.MethodGet:
			questionnaires, demo, err := s.service.ListQuestionnaires(r.Context(), sess)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"questionnaires": questionnaires, "demo": demo})
		case http.MethodPost:
			s.handleImport(w, r, sess)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if r.Method == http.MethodGet && len(segments) == 3 && segments[0] == "api" && segments[1] == "questionnaires" {
		q, err := s.service.GetQuestionnaire(r.Context(), sess, segments[2])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"questionnaire": q})
		return
	}

	if len(segments) == 4 && segments[0] == "api" && segments[1] == "questionnaires" && segments[3] == "mapping" {
		slug := segments[2]
		switch r.Method {
		case http.MethodGet:
			mapping, err := s.service.GetMapping(r.Context(), sess, slug)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"mapping": mapping})
		case http.MethodPut:
			var mapping vault.Mapping
			if err := decodeBody(r, &mapping); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			pr, err := s.service.SaveMapping(r.Context(), sess, slug, mapping)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"pr": pr})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if r.Method == http.MethodGet && len(segments) == 3 && segments[0] == "api" && segments[1] == "export" {
		format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
		result, err := s.service.Export(r.Context(), sess, segments[2], format)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		w.Header().Set("Content-Type", result.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/stale" {
		report, demo, err := s.service.StaleReport(r.Context(), sess)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"stale_answers":           report.StaleAnswers,
			"stale_evidence":          report.StaleEvidence,
			"generated_at":            report.GeneratedAt,
			"answer_threshold_days":   report.AnswerThresholdDays,
			"evidence_threshold_days": report.EvidenceThresholdDays,
			"demo":                    demo,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/suggest" {
		var body struct {
			Question string `json:"question"`
			TopN     int    `json:"top_n"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if strings.TrimSpace(body.Question) == "" {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "question field required", nil)
			return
		}
		suggestions, err := s.service.Suggest(r.Context(), sess, body.Question, body.TopN)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.service.OAuthConfigured() {
		writeError(w, http.StatusInternalServerError, "OAUTH_NOT_CONFIGURED", "GitHub OAuth not configured", nil)
		return
	}
	state := util.NewID("")
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	if next := r.URL.Query().Get("next"); next != "" && strings.HasPrefix(next, "/") {
		http.SetCookie(w, &http.Cookie{
			Name:     oauthNextCookie,
			Value:    next,
			Path:     "/",
			MaxAge:   600,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	http.Redirect(w, r, s.service.LoginURL(state), http.StatusFound)
}

func (s *HTTPServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	stored, err := r.Cookie(oauthStateCookie)
	if state == "" || err != nil || state != stored.Value {
		writeError(w, http.StatusUnauthorized, "STATE_MISMATCH", "OAuth state mismatch", nil)
		return
	}
	s.clearCookie(w, oauthStateCookie)

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "NO_CODE", "Missing OAuth code", nil)
		return
	}

	token, _, err := s.service.HandleCallback(r.Context(), code)
	if err != nil {
		status, errCode, message, details := mapError(err)
		writeError(w, status, errCode, message, details)
		return
	}
	s.setSessionCookie(w, token)

	next := "/dashboard"
	if cookie, err := r.Cookie(oauthNextCookie); err == nil && strings.HasPrefix(cookie.Value, "/") {
		next = cookie.Value
		s.clearCookie(w, oauthNextCookie)
	}
	http.Redirect(w, r, next, http.StatusFound)
}

func (s *HTTPServer) handleImport(w http.ResponseWriter, r *http.Request, sess Session) {
	if err := r.ParseMultipartForm(16 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Expected multipart form with a file field", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Missing file field", nil)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Could not read upload", nil)
		return
	}

	q, pr, err := s.service.ImportQuestionnaire(r.Context(), sess, header.Filename, data)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questionnaire": q, "pr": pr})
}

func (s *HTTPServer) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *HTTPServer) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionToken prefers the browser cookie and accepts a bearer header so
// API clients can skip cookies entirely.
func (s *HTTPServer) sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return bearerToken(r)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := s.sessionToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	sess, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, session.ErrExpiredToken) || errors.Is(err, session.ErrInvalidToken) || errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return sess, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Access-Control-Allow-Credentials", "true")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
