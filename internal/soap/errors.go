package soap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/smithy-go"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
)

var (
	// ErrRateLimited is returned when the provider throttled the request.
	ErrRateLimited = errors.New("soap: ai provider rate limited")
	// ErrQuotaExceeded is returned when the account has no remaining quota.
	ErrQuotaExceeded = errors.New("soap: ai provider quota exceeded")
	// ErrMalformedResponse is returned when the model output is not a usable note.
	ErrMalformedResponse = errors.New("soap: ai response could not be parsed")
	// ErrEmptyInput is returned when there is nothing to summarize.
	ErrEmptyInput = errors.New("soap: transcript or clinician notes required")
)

// classify maps provider-specific failures onto ErrRateLimited and
// ErrQuotaExceeded, keeping the original error in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrQuotaExceeded) {
		return err
	}

	var oaErr *openai.APIError
	if errors.As(err, &oaErr) && oaErr.HTTPStatusCode == http.StatusTooManyRequests {
		if oaErr.Type == "insufficient_quota" || fmt.Sprint(oaErr.Code) == "insufficient_quota" {
			return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
		}
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		case "ServiceQuotaExceededException":
			return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
		}
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == http.StatusTooManyRequests {
		if strings.Contains(strings.ToLower(gErr.Message), "quota") {
			return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
		}
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}

	// gRPC-backed SDKs surface status text only.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "resource_exhausted") && strings.Contains(msg, "quota"):
		return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
	case strings.Contains(msg, "resource_exhausted"), strings.Contains(msg, "rate limit"):
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	return err
}

// IsRetryable reports whether the caller may retry the same request later.
// Empty input and caller cancellation are final. Malformed model output is
// retryable because the next completion usually parses.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrEmptyInput) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Kind returns a short label for metrics and API responses.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
