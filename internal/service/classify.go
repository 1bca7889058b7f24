package service

import (
	"context"
	"errors"
	"strings"

	"mediaforge/internal/entity"
	"mediaforge/internal/provider"
)

// classification is the failure verdict recorded on a generation.
type classification struct {
	Category  string
	Retryable bool
}

// classifyError maps a provider failure to an error category and a retryable
// flag. The category is recorded once at failure time; nothing downstream
// re-derives it. Unknown failures default to internal and retryable.
func classifyError(err error) classification {
	if err == nil {
		return classification{Category: entity.ErrorCategoryInternal, Retryable: true}
	}
	if errors.Is(err, provider.ErrEmptyPrompt) {
		return classification{Category: entity.ErrorCategoryValidation, Retryable: false}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return classification{Category: entity.ErrorCategoryTimeout, Retryable: true}
	}
	return classifyMessage(err.Error())
}

func classifyMessage(message string) classification {
	msg := strings.ToLower(message)

	switch {
	case containsAny(msg, "http 429", "rate limit", "too many requests", "quota exceeded", "resource_exhausted"):
		return classification{Category: entity.ErrorCategoryRateLimited, Retryable: true}

	case containsAny(msg, "http 401", "http 403", "unauthorized", "forbidden", "invalid api key", "api key is not configured", "permission denied"):
		return classification{Category: entity.ErrorCategoryAuth, Retryable: false}

	case containsAny(msg, "content policy", "content_policy", "safety", "moderation", "blocked", "flagged", "nsfw", "sensitive content"):
		return classification{Category: entity.ErrorCategoryContentSafety, Retryable: false}

	case containsAny(msg, "timed out", "timeout", "deadline exceeded", "aborted", "connection reset", "polling exceeded maximum attempts"):
		return classification{Category: entity.ErrorCategoryTimeout, Retryable: true}

	case containsAny(msg, "http 500", "http 502", "http 503", "http 504", "service unavailable", "bad gateway", "connection refused", "no such host", "eof"):
		return classification{Category: entity.ErrorCategoryUpstreamUnavailable, Retryable: true}

	case containsAny(msg, "http 400", "http 404", "http 422", "invalid", "unsupported", "is required", "must be", "not supported"):
		return classification{Category: entity.ErrorCategoryValidation, Retryable: false}

	default:
		return classification{Category: entity.ErrorCategoryInternal, Retryable: true}
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
