package router

import (
	"strings"

	"github.com/modelrelay/modelrelay/internal/config"
)

// TriggerKind is a failover trigger category.
type TriggerKind string

const (
	TriggerRateLimit      TriggerKind = "rate_limit"
	TriggerQuotaExhausted TriggerKind = "quota_exhausted"
	TriggerAuthError      TriggerKind = "auth_error"
)

// contextOverflowPatterns are checked before any trigger category.
// Context-window-exceeded errors are an eligibility concern (handled by
// compaction), never a failover trigger.
var contextOverflowPatterns = []string{
	"context size has been exceeded",
	"context_length_exceeded",
	"context length exceeded",
	"maximum context length",
	"prompt is too long",
	"request_too_large",
	"request exceeds the maximum size",
	"exceeds model context window",
	"context overflow",
	"exceeded model token limit",
}

// quotaPatterns indicate the account's allowance is used up (longer
// outage than a transient rate limit).
var quotaPatterns = []string{
	"usage limit",
	"quota exceeded",
	"exceeded your current quota",
	"insufficient_quota",
	"resource_exhausted",
	"resource has been exhausted",
	"credit balance",
	"out of credits",
}

// rateLimitPatterns indicate transient throttling.
var rateLimitPatterns = []string{
	"429",
	"rate_limit",
	"rate limit",
	"too many requests",
	"requests per minute",
	"requests per day",
	"overloaded",
	"server is busy",
}

// authPatterns indicate credential failure. Only consulted for api_key
// routes: a broken oauth token is the host's refresh problem, not ours.
var authPatterns = []string{
	"401",
	"403",
	"invalid api key",
	"invalid_api_key",
	"incorrect api key",
	"no api key found",
	"api key not found",
	"unauthorized",
	"forbidden",
	"invalid credentials",
	"authentication",
}

// ClassifyTrigger matches a turn error against the trigger tables.
// Order is fixed and testable: context-overflow exclusions first, then
// quota, rate-limit (built-in plus user-configured extras), and auth.
// Returns false when the error should not trigger failover.
func ClassifyTrigger(msg string, extraPatterns []string, auth config.AuthType, triggers config.Triggers) (TriggerKind, bool) {
	if msg == "" {
		return "", false
	}
	lower := strings.ToLower(msg)

	if matchesAny(lower, contextOverflowPatterns) {
		return "", false
	}

	if triggers.QuotaExhausted && matchesAny(lower, quotaPatterns) {
		return TriggerQuotaExhausted, true
	}

	if triggers.RateLimit {
		if matchesAny(lower, rateLimitPatterns) || matchesAny(lower, lowered(extraPatterns)) {
			return TriggerRateLimit, true
		}
	}

	if triggers.AuthError && auth == config.AuthAPIKey && matchesAny(lower, authPatterns) {
		return TriggerAuthError, true
	}

	return "", false
}

func matchesAny(lower string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func lowered(patterns []string) []string {
	if len(patterns) == 0 {
		return nil
	}
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = strings.ToLower(p)
	}
	return out
}

// IsContextOverflowMessage reports whether an error text is a
// context-window overflow (used by callers that need the exclusion
// check on its own).
func IsContextOverflowMessage(msg string) bool {
	return matchesAny(strings.ToLower(msg), contextOverflowPatterns)
}
