package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/modelrelay/modelrelay/internal/logging"
	"github.com/modelrelay/modelrelay/internal/state"
)

// Return-to-preferred: when the session has been stable on a fallback
// for long enough, a lightweight probe checks whether a higher-priority
// route has recovered, and promotes back to it on success. Probes run
// only while the session is idle so they never steal a turn.

// maybeProbeLocked evaluates the probe gates and, when all pass, fires
// an asynchronous health probe against the best eligible higher-priority
// route. Caller holds the router mutex.
func (r *Router) maybeProbeLocked(now time.Time) {
	if !r.cfg.Enabled || !r.cfg.Failover.ReturnToPreferred.Enabled {
		return
	}
	if r.switching || !r.idle {
		return
	}
	if r.activeIdx == 0 {
		return // already on the preferred route
	}
	if holdoff := r.store.Holdoff(); !holdoff.IsZero() && holdoff.After(now) {
		return
	}

	// Scan the whole stack; only a strictly better position is worth a
	// probe.
	sel, _ := r.selectCandidate(-1, now, r.evalCtx())
	if sel == nil || sel.idx >= r.activeIdx {
		return
	}
	if r.collab.Prober == nil {
		return
	}

	creds, err := materializeCredentials(sel.route)
	if err != nil {
		return
	}

	r.cancelProbeLocked()
	seq := r.probeSeq
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	r.probeCancel = cancel

	model := sel.model
	target := *sel
	L_debug("router: probing preferred route", "route", target.route.ID, "model", model.ID)

	go func() {
		err := r.collab.Prober.Probe(ctx, model, creds)
		cancel()
		r.completeProbe(seq, &target, err)
	}()
}

// completeProbe handles a probe result on the router's execution
// context. A stale sequence number means the probe was orphaned by a
// manual model change, reload, or shutdown; its result is discarded.
//
// Outcomes:
//   - success: info event, then promote through the normal switch path
//   - inconclusive (timeout/cancel): info event only, then switch
//     anyway; the provider may simply be slow and the switch itself
//     re-verifies everything
//   - hard failure: warning event plus a short cooldown on the
//     candidate so the next timer pass does not re-probe immediately
func (r *Router) completeProbe(seq uint64, target *selection, probeErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || seq != r.probeSeq {
		return
	}
	r.probeCancel = nil
	r.probeSeq++
	if r.switching {
		return // trigger path won the race
	}

	now := time.Now()

	switch {
	case probeErr == nil:
		r.store.Append(state.DecisionEvent{
			Kind:    state.EventProbeSuccess,
			Level:   state.SeverityInfo,
			Message: fmt.Sprintf("probe of %s succeeded", target.route.Label),
		})

	case errors.Is(probeErr, context.DeadlineExceeded) || errors.Is(probeErr, context.Canceled):
		// Inconclusive is never escalated to a warning. The switch
		// below re-runs every gate, so a genuinely dead route still
		// gets caught.
		r.store.Append(state.DecisionEvent{
			Kind:    state.EventProbeInconclusive,
			Level:   state.SeverityInfo,
			Message: fmt.Sprintf("probe of %s inconclusive, switching anyway", target.route.Label),
		})
		L_info("router: probe inconclusive", "route", target.route.ID, "error", probeErr)

	default:
		until := now.Add(probeFailCooldown)
		r.store.SetCooldown(target.route.ID, until)
		r.store.Append(state.DecisionEvent{
			Kind:        state.EventProbeFailure,
			Level:       state.SeverityWarning,
			Message:     fmt.Sprintf("probe of %s failed: %v; retry at %s", target.route.Label, probeErr, until.Format("15:04:05")),
			Reason:      "probe_failure",
			NextRetryAt: until.UnixMilli(),
		})
		L_warn("router: probe failed", "route", target.route.ID, "error", probeErr, "until", until.Format("15:04:05"))
		r.rescheduleLocked(now)
		return
	}

	// Promote. The target selection may be stale; re-evaluate it fresh
	// rather than trusting pre-probe state.
	sel, _ := r.selectCandidate(-1, now, r.evalCtx())
	if sel == nil || sel.idx >= r.activeIdx {
		r.rescheduleLocked(now)
		return
	}
	if err := r.switchTo(sel, "preferred route recovered", state.EventReturnSwitch); err != nil {
		L_warn("router: return switch failed", "route", sel.route.ID, "error", err)
		r.rescheduleLocked(now)
	}
}
