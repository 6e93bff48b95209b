package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/kirillkom/keyword-intel/internal/core/domain"
)

// ErrCallTimeout marks an attempt cut off by Config.CallTimeout.
var ErrCallTimeout = errors.New("external call timeout")

// ClassifyProviderError is the classifier for HTTP provider calls.
func ClassifyProviderError(err error) ErrorClassification {
	if err == nil {
		return ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if errors.Is(err, ErrCallTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}
	if IsCircuitOpen(err) {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}
	if errors.Is(err, domain.ErrQuotaExceeded) {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var providerErr *domain.ProviderError
	if errors.As(err, &providerErr) {
		if providerErr.StatusCode == 0 {
			return ErrorClassification{Retryable: false, RecordFailure: false}
		}
		if IsRetryableHTTPStatus(providerErr.StatusCode) {
			return ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}

	return ErrorClassification{Retryable: false, RecordFailure: true}
}

// WrapTemporaryIfNeeded tags retryable failures with domain.ErrTemporary.
func WrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	class := ClassifyProviderError(err)
	if class.Retryable || IsCircuitOpen(err) || errors.Is(err, ErrCallTimeout) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// IsQuotaStatus reports provider statuses that mean the account quota is exhausted.
func IsQuotaStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode == http.StatusPaymentRequired
}
