package dropbox

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the failure classes callers branch on. Use errors.Is;
// the concrete error in the chain is an *APIError carrying the HTTP detail.
var (
	// ErrNotFound means the remote path does not exist.
	ErrNotFound = errors.New("dropbox: path not found")

	// ErrAuth means the access token was rejected.
	ErrAuth = errors.New("dropbox: authentication failed")

	// ErrQuota means the remote API refused the call due to rate or
	// storage quota, independent of any client-side limiting.
	ErrQuota = errors.New("dropbox: quota exceeded")

	// ErrConflict means the path already exists (e.g., folder creation).
	ErrConflict = errors.New("dropbox: path already exists")
)

// APIError is a failed Dropbox API call with its HTTP status and the
// error summary returned by the API.
type APIError struct {
	Op         string
	Path       string
	StatusCode int
	Summary    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dropbox: %s %q failed with status %d: %s", e.Op, e.Path, e.StatusCode, e.Summary)
}

// Unwrap maps the HTTP response onto the sentinel taxonomy so that
// errors.Is(err, ErrNotFound) and friends work across the wrapping chain.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == 401 || e.StatusCode == 403:
		return ErrAuth
	case e.StatusCode == 429 || e.StatusCode == 507:
		return ErrQuota
	case e.StatusCode == 409 && strings.Contains(e.Summary, "not_found"):
		return ErrNotFound
	case e.StatusCode == 409 && strings.Contains(e.Summary, "conflict"):
		return ErrConflict
	}
	return nil
}

// Transient reports whether the failure is worth retrying: server-side
// errors are, everything the taxonomy classifies is not.
func (e *APIError) Transient() bool {
	if e.Unwrap() != nil {
		return false
	}
	return e.StatusCode >= 500
}
