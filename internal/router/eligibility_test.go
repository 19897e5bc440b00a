package router

import (
	"testing"
	"time"

	"github.com/modelrelay/modelrelay/internal/config"
)

func TestEvaluateGateOrder(t *testing.T) {
	h := newHarness(t, testConfig())
	now := time.Now()
	ec := evalContext{usageTokens: 1000, activeVendor: "claude", activeFamily: "claude"}

	route, vendor, _ := h.r.cfg.FindRoute("claude-api")

	// Cooldown is checked before anything else: even with a bogus model
	// the verdict is cooldown.
	h.store.SetCooldown("claude-api", now.Add(time.Hour))
	elig := h.r.evaluate(route, vendor, "no-such-model", now, ec)
	if elig.Eligible || elig.Reason != BlockCooldown {
		t.Fatalf("verdict = %+v, want cooldown first", elig)
	}
	if elig.RetryAt.IsZero() {
		t.Error("cooldown verdict should carry the retry time")
	}
	h.store.ClearCooldown("claude-api")

	// Model compatibility before credentials.
	noKey := *route
	noKey.APIKey = ""
	elig = h.r.evaluate(&noKey, vendor, "no-such-model", now, ec)
	if elig.Reason != BlockModelUnavailable {
		t.Fatalf("verdict = %+v, want model_unavailable before credentials", elig)
	}

	// Credentials before context fit.
	big := evalContext{usageTokens: 10_000_000, activeVendor: "claude"}
	elig = h.r.evaluate(&noKey, vendor, "claude-opus", now, big)
	if elig.Reason != BlockCredentialsMissing {
		t.Fatalf("verdict = %+v, want credentials before context", elig)
	}

	// Context fit last.
	elig = h.r.evaluate(route, vendor, "claude-opus", now, big)
	if elig.Reason != BlockContextTooLarge {
		t.Fatalf("verdict = %+v, want context_too_large", elig)
	}

	// All gates pass.
	elig = h.r.evaluate(route, vendor, "claude-opus", now, ec)
	if !elig.Eligible {
		t.Fatalf("verdict = %+v, want eligible", elig)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	h := newHarness(t, testConfig())
	now := time.Now()
	ec := evalContext{usageTokens: 150000, activeVendor: "openai", activeFamily: "gpt"}
	route, vendor, _ := h.r.cfg.FindRoute("claude-api")

	first := h.r.evaluate(route, vendor, "claude-opus", now, ec)
	for i := 0; i < 5; i++ {
		again := h.r.evaluate(route, vendor, "claude-opus", now, ec)
		if again != first {
			t.Fatalf("evaluate not stable: %+v vs %+v", again, first)
		}
	}
}

func TestRequiredTokensMultipliers(t *testing.T) {
	h := newHarness(t, testConfig())
	claudeRoute, claudeVendor, _ := h.r.cfg.FindRoute("claude-api")
	openaiRoute, openaiVendor, _ := h.r.cfg.FindRoute("openai-api")
	claudeModel, _ := h.registry.Find("anthropic", "claude-opus")
	openaiModel, _ := h.registry.Find("openai", "gpt-5")

	ec := evalContext{usageTokens: 100000, activeVendor: "claude", activeFamily: "claude"}

	if got := h.r.requiredTokens(claudeRoute, claudeModel, claudeVendor, ec); got != 110000 {
		t.Errorf("same vendor required = %d, want 110000", got)
	}
	if got := h.r.requiredTokens(openaiRoute, openaiModel, openaiVendor, ec); got != 135000 {
		t.Errorf("cross vendor required = %d, want 135000", got)
	}

	// Same model family gets the cheap multiplier even across vendors.
	ec.activeVendor = "other"
	ec.activeFamily = "gpt"
	if got := h.r.requiredTokens(openaiRoute, openaiModel, openaiVendor, ec); got != 110000 {
		t.Errorf("same family required = %d, want 110000", got)
	}
}

// The context-fit boundary: a 160k session fits a 200k-window model
// cross-vendor (216k > 180k fails), but 120k does (162k <= 180k).
func TestContextFitBoundary(t *testing.T) {
	h := newHarness(t, testConfig())
	now := time.Now()
	route, vendor, _ := h.r.cfg.FindRoute("openai-api")

	tooBig := evalContext{usageTokens: 160000, activeVendor: "claude"}
	if elig := h.r.evaluate(route, vendor, "gpt-5", now, tooBig); elig.Eligible {
		t.Error("160k cross-vendor should not fit a 200k window")
	}

	fits := evalContext{usageTokens: 120000, activeVendor: "claude"}
	if elig := h.r.evaluate(route, vendor, "gpt-5", now, fits); !elig.Eligible {
		t.Errorf("120k cross-vendor should fit, got %+v", elig)
	}
}

func TestSelectCandidateSkipsActiveAndAbove(t *testing.T) {
	h := newHarness(t, testConfig())
	now := time.Now()
	ec := evalContext{usageTokens: 100, activeVendor: "claude"}

	// From the top of the stack: first fallback wins.
	sel, rejected := h.r.selectCandidate(0, now, ec)
	if sel == nil || sel.route.ID != "claude-api" {
		t.Fatalf("candidate = %+v", sel)
	}
	if len(rejected) != 0 {
		t.Errorf("rejected = %+v", rejected)
	}

	// With the first fallback cooling, selection moves past it.
	h.store.SetCooldown("claude-api", now.Add(time.Hour))
	sel, rejected = h.r.selectCandidate(0, now, ec)
	if sel == nil || sel.route.ID != "openai-api" {
		t.Fatalf("candidate = %+v", sel)
	}
	if len(rejected) != 1 || rejected[0].reason != BlockCooldown {
		t.Errorf("rejected = %+v", rejected)
	}

	// A full scan (-1) may land on the preferred route itself.
	sel, _ = h.r.selectCandidate(-1, now, ec)
	if sel == nil || sel.route.ID != "claude-oauth" {
		t.Fatalf("full-scan candidate = %+v", sel)
	}
}

func TestResolveAPIKeySources(t *testing.T) {
	route := &config.Route{ID: "x", AuthType: config.AuthAPIKey}

	if _, ok := resolveAPIKey(route); ok {
		t.Fatal("no key material should resolve to nothing")
	}

	route.APIKeyEnv = "MODELRELAY_TEST_KEY"
	t.Setenv("MODELRELAY_TEST_KEY", "  sk-env  ")
	key, ok := resolveAPIKey(route)
	if !ok || key != "sk-env" {
		t.Errorf("env key = %q, %v", key, ok)
	}

	// Inline beats env.
	route.APIKey = "sk-inline"
	key, _ = resolveAPIKey(route)
	if key != "sk-inline" {
		t.Errorf("key = %q, want inline to win", key)
	}
}
