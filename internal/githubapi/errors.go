package githubapi

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the client. Nothing is retried here; retry policy
// belongs to the caller.
var (
	// ErrNotFound marks an absent file, directory, or ref. Read paths
	// translate it into an absent value instead of failing.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized marks a rejected credential (401).
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden marks a credential that lacks access (403).
	ErrForbidden = errors.New("forbidden")
	// ErrConflict marks a failed optimistic-concurrency precondition: the
	// target file changed since its sha was read (409/422).
	ErrConflict = errors.New("conflict")
	// ErrRateLimited marks an exhausted API quota.
	ErrRateLimited = errors.New("rate limited")
)

// RemoteError wraps transport failures and 5xx responses: the API could not
// be reached or did not answer sanely. Always fatal to the operation.
type RemoteError struct {
	Status  int
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("github api unavailable (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("github api unreachable: %v", e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// statusError maps an HTTP status to the matching error kind.
func statusError(status int, message string) error {
	switch {
	case status == 404:
		return fmt.Errorf("%w: %s", ErrNotFound, message)
	case status == 401:
		return fmt.Errorf("%w: %s", ErrUnauthorized, message)
	case status == 429:
		return fmt.Errorf("%w: %s", ErrRateLimited, message)
	case status == 403:
		return fmt.Errorf("%w: %s", ErrForbidden, message)
	case status == 409 || status == 422:
		return fmt.Errorf("%w: %s", ErrConflict, message)
	default:
		return &RemoteError{Status: status, Message: message}
	}
}

// ProposalError reports a proposal sequence that stopped partway. The branch
// and any commits that already landed are left in place for audit; there is
// no rollback.
type ProposalError struct {
	Step           string
	Branch         string
	CommittedFiles int
	Err            error
}

func (e *ProposalError) Error() string {
	return fmt.Sprintf("proposal step %q failed on branch %s after %d committed file(s): %v",
		e.Step, e.Branch, e.CommittedFiles, e.Err)
}

func (e *ProposalError) Unwrap() error { return e.Err }
