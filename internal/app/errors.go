package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/yaghiashraf/answervault/internal/githubapi"
	"github.com/yaghiashraf/answervault/internal/session"
	"github.com/yaghiashraf/answervault/internal/vault"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// mapError translates service-layer failures into an HTTP status, a stable
// error code, and optional details. Repository write failures carry the
// proposal progress so the caller can find the orphaned branch.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var validationErr *vault.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed", map[string]any{
			"kind":   validationErr.Kind,
			"issues": validationErr.Issues,
		}
	}

	var proposalErr *githubapi.ProposalError
	if errors.As(err, &proposalErr) {
		details = map[string]any{
			"step":            proposalErr.Step,
			"branch":          proposalErr.Branch,
			"committed_files": proposalErr.CommittedFiles,
		}
	}

	switch {
	case errors.Is(err, githubapi.ErrUnauthorized):
		return http.StatusUnauthorized, "GITHUB_UNAUTHORIZED", "GitHub rejected the access token", details
	case errors.Is(err, githubapi.ErrForbidden):
		return http.StatusForbidden, "GITHUB_FORBIDDEN", "GitHub denied access to the repository", details
	case errors.Is(err, githubapi.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", details
	case errors.Is(err, githubapi.ErrConflict):
		return http.StatusConflict, "CONFLICT", "The file changed upstream; refresh and retry", details
	case errors.Is(err, githubapi.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED", "GitHub rate limit exceeded", details
	case errors.Is(err, session.ErrInvalidToken), errors.Is(err, session.ErrExpiredToken), errors.Is(err, session.ErrNotFound):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}

	var remoteErr *githubapi.RemoteError
	if errors.As(err, &remoteErr) {
		return http.StatusBadGateway, "UPSTREAM_ERROR", "GitHub request failed", details
	}
	if proposalErr != nil {
		return http.StatusBadGateway, "UPSTREAM_ERROR", "GitHub request failed", details
	}

	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
