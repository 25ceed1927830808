package provider

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/relaycore/agentgate/internal/models"
)

// ClassifyHTTPStatus maps a vendor HTTP status code onto the provider-call
// error taxonomy: 429→RATE_LIMITED, 5xx→PROVIDER_5XX, other
// 4xx→PROVIDER_4XX_NON_RATE_LIMIT.
func ClassifyHTTPStatus(status int) models.ErrorCode {
	switch {
	case status == 429:
		return models.ErrRateLimited
	case status >= 500:
		return models.ErrProvider5xx
	case status >= 400:
		return models.ErrProvider4xxNonRateLimit
	default:
		return models.ErrProvider4xxNonRateLimit
	}
}

// ClassifyError inspects a raw vendor/transport error and returns the
// categorized error taxonomy tag, independent of any HTTP status that may
// also be available.
func ClassifyError(err error) models.ErrorCode {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return models.ErrCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return models.ErrTimeout
		}
		return models.ErrTransientNetwork
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return models.ErrTransientNetwork
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return models.ErrRateLimited
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return models.ErrTimeout
	case strings.Contains(msg, "connection") || strings.Contains(msg, "dial") || strings.Contains(msg, "eof"):
		return models.ErrTransientNetwork
	default:
		return models.ErrProvider4xxNonRateLimit
	}
}

// WrapError builds the *models.AgentError for a failed vendor call, using
// status when > 0 and falling back to message-based classification.
func WrapError(status int, err error) *models.AgentError {
	var code models.ErrorCode
	if status > 0 {
		code = ClassifyHTTPStatus(status)
	} else {
		code = ClassifyError(err)
	}
	return models.NewAgentError(code, "provider call failed", err)
}
