package router

import (
	"context"
	"fmt"
	"time"

	. "github.com/modelrelay/modelrelay/internal/logging"
	"github.com/modelrelay/modelrelay/internal/state"
)

// switchTo executes a route switch. Each step is a hard gate:
//
//  1. re-verify model compatibility (callers may hold stale state)
//  2. materialize credentials
//  3. re-check context fit, with a single compaction-bridge retry
//  4. invoke the activation effector
//  5. bookkeeping: active pointer, cooldown scheduling, event, notify
//
// eventKind is EventSwitch for failover/manual switches and
// EventReturnSwitch for return-to-preferred promotions. Caller holds
// the router mutex.
func (r *Router) switchTo(sel *selection, reason string, eventKind state.EventKind) error {
	r.switching = true
	defer func() { r.switching = false }()

	now := time.Now()
	modelID := r.modelFor(sel.entry)

	// Step 1: the registry may have changed since the caller evaluated.
	model, ok := r.collab.Registry.Find(sel.route.ProviderID, modelID)
	if !ok {
		return &SwitchBlocked{RouteID: sel.route.ID, Reason: BlockModelUnavailable}
	}

	// Step 2: credentials.
	creds, err := materializeCredentials(sel.route)
	if err != nil {
		return err
	}

	// Step 3: context fit, with one compaction-bridge pass.
	ec := r.evalCtx()
	if r.requiredTokens(sel.route, model, sel.vendor, ec) > model.ContextWindow-r.cfg.Failover.Context.ReservedHeadroom {
		if err := r.compactBridge(sel.route.ID); err != nil {
			return err
		}
		ec = r.evalCtx()
		if r.requiredTokens(sel.route, model, sel.vendor, ec) > model.ContextWindow-r.cfg.Failover.Context.ReservedHeadroom {
			return &SwitchBlocked{RouteID: sel.route.ID, Reason: BlockContextTooLarge}
		}
	}

	// Step 4: activation. Rejection here usually means credentials
	// discovered missing late (e.g. OAuth not logged in).
	ctx, cancel := context.WithTimeout(context.Background(), compactTimeout)
	err = r.collab.Activator.Activate(ctx, model, creds)
	cancel()
	if err != nil {
		L_warn("router: activation rejected", "route", sel.route.ID, "error", err)
		return &SwitchBlocked{RouteID: sel.route.ID, Reason: BlockCredentialsMissing}
	}

	// Step 5: bookkeeping.
	r.activeIdx = sel.idx
	r.activeRouteID = sel.route.ID
	r.store.ClearCooldown(sel.route.ID)
	r.store.ResetFailures(sel.route.ID)

	if sel.idx > 0 {
		holdoff := now.Add(time.Duration(r.cfg.Failover.ReturnToPreferred.MinStableMinutes) * time.Minute)
		r.store.SetHoldoff(holdoff)
	} else {
		r.store.ClearHoldoff()
	}

	msg := fmt.Sprintf("switched to %s (%s)", sel.route.Label, reason)
	r.store.Append(state.DecisionEvent{
		Kind:    eventKind,
		Level:   state.SeverityInfo,
		Message: msg,
		Reason:  reason,
	})
	r.notify(msg, state.SeverityInfo)
	r.rescheduleLocked(now)

	L_info("router: switched",
		"route", sel.route.ID,
		"model", model.ID,
		"reason", reason,
		"stackIndex", sel.idx)
	return nil
}

// compactBridge runs the one-shot compaction between a blocked switch
// and its retry. A collaborator failure is logged as its own decision
// event and surfaces as SwitchBlocked(compaction_failed); it never
// propagates past the orchestrator.
func (r *Router) compactBridge(forRoute string) error {
	ctx, cancel := context.WithTimeout(context.Background(), compactTimeout)
	defer cancel()

	before := r.usageTokens
	usage, err := r.collab.Compactor.Compact(ctx)
	if err != nil {
		L_warn("router: compaction failed", "route", forRoute, "error", err)
		r.store.Append(state.DecisionEvent{
			Kind:    state.EventCompaction,
			Level:   state.SeverityWarning,
			Message: fmt.Sprintf("compaction failed: %v", err),
			Reason:  string(BlockCompactionFailed),
		})
		return &SwitchBlocked{RouteID: forRoute, Reason: BlockCompactionFailed}
	}

	r.usageTokens = usage
	r.store.Append(state.DecisionEvent{
		Kind:    state.EventCompaction,
		Level:   state.SeverityInfo,
		Message: fmt.Sprintf("compacted context: %d -> %d tokens", before, usage),
	})
	L_info("router: compacted", "before", before, "after", usage)
	return nil
}
