package router

import (
	"testing"

	"github.com/modelrelay/modelrelay/internal/config"
)

var allTriggers = config.Triggers{RateLimit: true, QuotaExhausted: true, AuthError: true}

func TestClassifyTrigger(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		auth config.AuthType
		want TriggerKind
		ok   bool
	}{
		{"rate limit 429", "HTTP 429 Too Many Requests", config.AuthOAuth, TriggerRateLimit, true},
		{"overloaded", "the server is overloaded, slow down", config.AuthOAuth, TriggerRateLimit, true},
		{"quota", "You have exceeded your current quota", config.AuthAPIKey, TriggerQuotaExhausted, true},
		{"usage limit", "Usage limit reached until 5pm", config.AuthOAuth, TriggerQuotaExhausted, true},
		{"auth on api key", "401 Unauthorized: invalid api key", config.AuthAPIKey, TriggerAuthError, true},
		{"auth on oauth ignored", "401 Unauthorized", config.AuthOAuth, "", false},
		{"plain failure", "connection reset by peer", config.AuthOAuth, "", false},
		{"empty", "", config.AuthOAuth, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := ClassifyTrigger(tt.msg, nil, tt.auth, allTriggers)
			if ok != tt.ok || kind != tt.want {
				t.Errorf("ClassifyTrigger(%q) = (%q, %v), want (%q, %v)", tt.msg, kind, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestClassifyTriggerContextOverflowExcluded(t *testing.T) {
	// Overflow wording wins even when the message also matches a
	// trigger table.
	msgs := []string{
		"prompt is too long: 260000 tokens",
		"429 request_too_large",
		"rate limit: maximum context length exceeded",
	}
	for _, msg := range msgs {
		if kind, ok := ClassifyTrigger(msg, nil, config.AuthAPIKey, allTriggers); ok {
			t.Errorf("ClassifyTrigger(%q) = %q, want excluded", msg, kind)
		}
		if !IsContextOverflowMessage(msg) {
			t.Errorf("IsContextOverflowMessage(%q) = false", msg)
		}
	}
}

func TestClassifyTriggerQuotaBeatsRateLimit(t *testing.T) {
	// "usage limit ... 429" is a quota outage, not a transient throttle.
	kind, ok := ClassifyTrigger("429: usage limit reached", nil, config.AuthOAuth, allTriggers)
	if !ok || kind != TriggerQuotaExhausted {
		t.Errorf("got (%q, %v), want quota_exhausted", kind, ok)
	}
}

func TestClassifyTriggerExtraPatterns(t *testing.T) {
	msg := "vendor says: capacity constrained, come back later"
	if _, ok := ClassifyTrigger(msg, nil, config.AuthOAuth, allTriggers); ok {
		t.Fatal("should not match without the extra pattern")
	}
	kind, ok := ClassifyTrigger(msg, []string{"capacity constrained"}, config.AuthOAuth, allTriggers)
	if !ok || kind != TriggerRateLimit {
		t.Errorf("got (%q, %v), want rate_limit via extra pattern", kind, ok)
	}
}

func TestClassifyTriggerDisabledCategories(t *testing.T) {
	off := config.Triggers{}
	if _, ok := ClassifyTrigger("429 too many requests", nil, config.AuthOAuth, off); ok {
		t.Error("rate limit should not trigger when disabled")
	}
	if _, ok := ClassifyTrigger("quota exceeded", nil, config.AuthOAuth, off); ok {
		t.Error("quota should not trigger when disabled")
	}
}
