package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConflict         = errors.New("conflict")
	ErrTemporary        = errors.New("temporary failure")
	ErrProvider         = errors.New("provider failure")
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrSchemaValidation = errors.New("schema validation failed")
	ErrWorkflow         = errors.New("workflow failure")
)

// ErrMissingCredentials is an input error: the caller configured a provider without credentials.
var ErrMissingCredentials = fmt.Errorf("missing provider credentials: %w", ErrInvalidInput)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ProviderError is returned by external provider clients for non-2xx responses
// and undecodable payloads.
type ProviderError struct {
	Provider   string
	Operation  string
	StatusCode int
	Body       string
	Quota      bool
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}
	body := strings.TrimSpace(e.Body)
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %s", e.Provider, e.Operation, body)
	}
	if body == "" {
		return fmt.Sprintf("%s %s status: %d", e.Provider, e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s %s status: %d: %s", e.Provider, e.Operation, e.StatusCode, body)
}

// Is lets errors.Is match both ErrProvider and, for quota responses, ErrQuotaExceeded.
func (e *ProviderError) Is(target error) bool {
	if target == ErrProvider {
		return true
	}
	return e != nil && e.Quota && target == ErrQuotaExceeded
}

// BodyExcerpt trims a response body for diagnostics.
func BodyExcerpt(body []byte, limit int) string {
	text := strings.TrimSpace(string(body))
	if limit > 0 && len(text) > limit {
		return text[:limit] + "..."
	}
	return text
}
