package router

import (
	"fmt"
	"time"

	"github.com/modelrelay/modelrelay/internal/bus"
	"github.com/modelrelay/modelrelay/internal/config"
	. "github.com/modelrelay/modelrelay/internal/logging"
	"github.com/modelrelay/modelrelay/internal/state"
	"github.com/modelrelay/modelrelay/internal/tokens"
)

// HandleTurnEnded consumes a completed turn and drives the failover
// state machine: Active -> Triggered -> Cooling -> Switching -> Active,
// or Exhausted when no candidate remains.
func (r *Router) HandleTurnEnded(ev bus.TurnEnded) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	r.idle = ev.Idle
	if ev.UsageTokens > 0 {
		r.usageTokens = ev.UsageTokens
	} else if ev.Prompt != "" {
		// Host gave no counter; fold a conservative estimate of the
		// prompt into what we last knew.
		r.usageTokens += tokens.Get().Estimate(ev.Prompt)
	}
	if ev.Prompt != "" {
		r.lastPrompt = ev.Prompt
	}

	if ev.Err == "" {
		if r.phase != PhaseActive {
			L_debug("router: healthy turn, back to active", "from", r.phase)
		}
		r.phase = PhaseActive
		route, _ := r.activeRoute()
		if route != nil {
			r.store.ResetFailures(route.ID)
		}
		// A turn ending is also the moment the client goes idle; a
		// pending return-to-preferred must not wait for a timer that may
		// never fire again.
		now := time.Now()
		r.maybeProbeLocked(now)
		r.rescheduleLocked(now)
		return
	}

	if !r.cfg.Enabled {
		return
	}
	route, vendor := r.activeRoute()
	if route == nil {
		return
	}

	// Active -> Triggered: classify against the trigger tables.
	// Context-overflow text never triggers; it is an eligibility
	// concern handled by compaction.
	kind, ok := ClassifyTrigger(ev.Err, r.cfg.RateLimitPatterns, route.AuthType, r.cfg.Failover.Triggers)
	if !ok {
		L_debug("router: turn error is not a failover trigger", "error", ev.Err)
		return
	}
	r.phase = PhaseTriggered
	now := time.Now()

	// Triggered -> Cooling: provider retry hints beat configured
	// defaults; repeated failures stretch the default.
	cooldown, fromHint := ParseRetryHint(ev.Err, now)
	if !fromHint {
		cooldown = r.cfg.CooldownFor(route, vendor)
		if n := r.store.MarkFailure(route.ID); n > 1 {
			cooldown = scaleCooldown(cooldown, n)
		}
	} else {
		r.store.MarkFailure(route.ID)
	}
	until := now.Add(cooldown + retryBuffer)
	r.store.SetCooldown(route.ID, until)
	r.phase = PhaseCooling

	r.store.Append(state.DecisionEvent{
		Kind:        state.EventFailoverTrigger,
		Level:       state.SeverityWarning,
		Message:     fmt.Sprintf("%s on %s, cooling until %s", kind, route.Label, until.Format("15:04:05")),
		Reason:      string(kind),
		NextRetryAt: until.UnixMilli(),
	})
	L_warn("router: failover triggered",
		"route", route.ID,
		"kind", kind,
		"until", until.Format("15:04:05"),
		"hint", fromHint)

	fromAuth := route.AuthType
	r.failoverLocked(now, string(kind), fromAuth)
}

// failoverLocked runs Cooling -> Switching -> Active/Exhausted.
func (r *Router) failoverLocked(now time.Time, reason string, fromAuth config.AuthType) {
	r.phase = PhaseSwitching

	ec := r.evalCtx()
	sel, rejected := r.selectCandidate(r.activeIdx, now, ec)

	// Bridge strategy: when context fit is the only thing standing
	// between us and a fallback, compact while still connected to the
	// current route, then re-select.
	if sel == nil && onlyContextBlocked(rejected) {
		if err := r.compactBridge(r.activeRouteID); err != nil {
			r.exhaustedLocked(rejected)
			return
		}
		sel, rejected = r.selectCandidate(r.activeIdx, now, r.evalCtx())
	}

	for sel != nil {
		err := r.switchTo(sel, reason, state.EventSwitch)
		if err == nil {
			r.phase = PhaseActive
			r.maybeResend(sel, fromAuth)
			return
		}
		L_warn("router: candidate switch failed", "route", sel.route.ID, "error", err)
		if sb, ok := err.(*SwitchBlocked); ok {
			rejected = append(rejected, blocked{routeID: sb.RouteID, reason: sb.Reason, retryAt: sb.RetryAt})
		}
		var more []blocked
		sel, more = r.selectCandidate(sel.idx, now, r.evalCtx())
		rejected = append(rejected, more...)
	}

	r.exhaustedLocked(rejected)
}

// maybeResend re-issues the last user prompt after a successful
// automatic switch, when the vendor opts in and the switch moved from
// an oauth route onto an api-key route. Lateral oauth moves skip it:
// the host already notified and the user likely wants to inspect.
func (r *Router) maybeResend(sel *selection, fromAuth config.AuthType) {
	if !sel.vendor.AutoRetry {
		return
	}
	if fromAuth != config.AuthOAuth || sel.route.AuthType != config.AuthAPIKey {
		return
	}
	if r.lastPrompt == "" || r.collab.Prompts == nil {
		return
	}
	mode := PromptQueued
	if r.idle {
		mode = PromptImmediate
	}
	if err := r.collab.Prompts.Send(r.lastPrompt, mode); err != nil {
		L_warn("router: prompt resend failed", "error", err)
		return
	}
	L_info("router: resent last prompt", "immediate", mode == PromptImmediate)
}

// exhaustedLocked lands the state machine in Exhausted: stay on the
// current route, surface a warning with the earliest retry ETA, and arm
// the timer. No tight retry loop.
func (r *Router) exhaustedLocked(rejected []blocked) {
	r.phase = PhaseExhausted
	now := time.Now()

	eta := earliestRetry(rejected)
	if eta.IsZero() {
		if t, ok := r.store.NearestDeadline(now); ok {
			eta = t
		}
	}
	msg := "no eligible fallback route"
	if !eta.IsZero() {
		msg = fmt.Sprintf("no eligible fallback route; next retry at %s", eta.Format("15:04:05"))
	}
	r.notify(msg, state.SeverityWarning)
	L_warn("router: exhausted", "candidates", len(rejected), "eta", eta.Format(time.RFC3339))
	r.rescheduleLocked(now)
}

// scaleCooldown stretches a configured cooldown on consecutive
// failures: x1, x2, x4, capped at x8.
func scaleCooldown(base time.Duration, failures int) time.Duration {
	mult := time.Duration(1)
	for i := 1; i < failures && mult < 8; i++ {
		mult *= 2
	}
	return base * mult
}
