package router

import (
	"math"
	"os"
	"strings"
	"time"

	"github.com/modelrelay/modelrelay/internal/config"
)

// evalContext carries the live-session facts the context-fit gate needs.
type evalContext struct {
	usageTokens  int
	activeVendor string
	activeFamily string
}

// evaluate runs the four eligibility gates for a route against a target
// model. Gates run in a fixed order, cheapest and most decisive first,
// and short-circuit on the first failure:
//
//  1. cooldown
//  2. model compatibility
//  3. credentials
//  4. context fit
//
// For fixed route state and now, the result is a pure function of its
// inputs.
func (r *Router) evaluate(route *config.Route, vendor *config.Vendor, modelID string, now time.Time, ec evalContext) Eligibility {
	// Gate 1: cooldown.
	if until, ok := r.store.CooldownUntil(route.ID); ok && until.After(now) {
		return Eligibility{Reason: BlockCooldown, RetryAt: until}
	}

	// Gate 2: the target model must exist under this route's provider.
	model, ok := r.collab.Registry.Find(route.ProviderID, modelID)
	if !ok {
		return Blocked(BlockModelUnavailable)
	}

	// Gate 3: credentials. OAuth routes are presumed reachable; the
	// host's token refresh owns them. API-key routes need resolvable
	// key material.
	if route.AuthType == config.AuthAPIKey {
		if _, ok := resolveAPIKey(route); !ok {
			return Blocked(BlockCredentialsMissing)
		}
	}

	// Gate 4: context fit.
	required := r.requiredTokens(route, model, vendor, ec)
	capacity := model.ContextWindow - r.cfg.Failover.Context.ReservedHeadroom
	if required > capacity {
		return Blocked(BlockContextTooLarge)
	}

	return Eligibility{Eligible: true}
}

// requiredTokens estimates the input tokens a switch would need on the
// target. Cross-vendor switches pay a larger multiplier for
// prompt-format overhead; same-vendor or same-model-family switches a
// smaller one. Estimates err toward "blocked".
func (r *Router) requiredTokens(route *config.Route, model *Model, vendor *config.Vendor, ec evalContext) int {
	mult := r.cfg.Failover.Context.CrossVendorMultiplier
	if vendor.Name == ec.activeVendor || (model.Family != "" && model.Family == ec.activeFamily) {
		mult = r.cfg.Failover.Context.SameVendorMultiplier
	}
	// Nudge below the float product before rounding up; 100000*1.10
	// must require 110000, not 110001.
	return int(math.Ceil(float64(ec.usageTokens)*mult - 1e-9))
}

// resolveAPIKey resolves a route's key material lazily: inline secret,
// then environment variable, then key file.
func resolveAPIKey(route *config.Route) (string, bool) {
	if k := strings.TrimSpace(route.APIKey); k != "" {
		return k, true
	}
	if route.APIKeyEnv != "" {
		if k := strings.TrimSpace(os.Getenv(route.APIKeyEnv)); k != "" {
			return k, true
		}
	}
	if route.APIKeyPath != "" {
		if data, err := os.ReadFile(route.APIKeyPath); err == nil {
			if k := strings.TrimSpace(string(data)); k != "" {
				return k, true
			}
		}
	}
	return "", false
}

// selection is a stack entry that passed every gate.
type selection struct {
	idx    int
	entry  config.StackEntry
	route  *config.Route
	vendor *config.Vendor
	model  *Model
}

// blocked records why a scanned candidate was rejected.
type blocked struct {
	routeID string
	reason  BlockReason
	retryAt time.Time
}

// selectCandidate scans the preference stack for the first eligible
// route. fromIdx is exclusive: pass the active index for failover, or
// -1 to scan the whole stack for return-probing. The rejected slice
// reports every blocking reason seen, for exhaustion diagnostics.
func (r *Router) selectCandidate(fromIdx int, now time.Time, ec evalContext) (*selection, []blocked) {
	var rejected []blocked
	for i := fromIdx + 1; i < len(r.cfg.PreferenceStack); i++ {
		entry := r.cfg.PreferenceStack[i]
		route, vendor, ok := r.cfg.FindRoute(entry.RouteID)
		if !ok {
			continue
		}
		modelID := r.modelFor(entry)
		elig := r.evaluate(route, vendor, modelID, now, ec)
		if elig.Eligible {
			model, _ := r.collab.Registry.Find(route.ProviderID, modelID)
			return &selection{idx: i, entry: entry, route: route, vendor: vendor, model: model}, rejected
		}
		rejected = append(rejected, blocked{routeID: route.ID, reason: elig.Reason, retryAt: elig.RetryAt})
	}
	return nil, rejected
}

// modelFor resolves the model a stack entry targets: its pin if set,
// otherwise whatever the user currently has selected.
func (r *Router) modelFor(entry config.StackEntry) string {
	if entry.Model != "" {
		return entry.Model
	}
	return r.selectedModel
}

// onlyContextBlocked reports whether every rejection was context-fit.
// That is the one blocker compaction can clear.
func onlyContextBlocked(rejected []blocked) bool {
	if len(rejected) == 0 {
		return false
	}
	for _, b := range rejected {
		if b.reason != BlockContextTooLarge {
			return false
		}
	}
	return true
}

// earliestRetry returns the soonest known retry time among rejections.
func earliestRetry(rejected []blocked) time.Time {
	var earliest time.Time
	for _, b := range rejected {
		if b.retryAt.IsZero() {
			continue
		}
		if earliest.IsZero() || b.retryAt.Before(earliest) {
			earliest = b.retryAt
		}
	}
	return earliest
}
