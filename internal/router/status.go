package router

import (
	"fmt"
	"time"

	"github.com/modelrelay/modelrelay/internal/config"
	. "github.com/modelrelay/modelrelay/internal/logging"
	"github.com/modelrelay/modelrelay/internal/state"
)

// RouteStatus is the per-route view reported to the user.
type RouteStatus struct {
	ID            string    `json:"id"`
	Label         string    `json:"label"`
	Vendor        string    `json:"vendor"`
	AuthType      string    `json:"auth_type"`
	Model         string    `json:"model,omitempty"`
	StackIndex    int       `json:"stack_index"`
	Active        bool      `json:"active"`
	Eligible      bool      `json:"eligible"`
	BlockReason   string    `json:"block_reason,omitempty"`
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`
}

// Status is a point-in-time snapshot of the routing state.
type Status struct {
	Enabled     bool          `json:"enabled"`
	Phase       Phase         `json:"phase"`
	ActiveRoute string        `json:"active_route"`
	UsageTokens int           `json:"usage_tokens"`
	Holdoff     time.Time     `json:"holdoff,omitempty"`
	Routes      []RouteStatus `json:"routes"`
}

// Status reports the current phase, active route, and the eligibility
// verdict for every stack entry.
func (r *Router) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	ec := r.evalCtx()
	st := Status{
		Enabled:     r.cfg.Enabled,
		Phase:       r.phase,
		ActiveRoute: r.activeRouteID,
		UsageTokens: r.usageTokens,
		Holdoff:     r.store.Holdoff(),
	}
	for i, entry := range r.cfg.PreferenceStack {
		route, vendor, ok := r.cfg.FindRoute(entry.RouteID)
		if !ok {
			st.Routes = append(st.Routes, RouteStatus{
				ID:          entry.RouteID,
				StackIndex:  i,
				BlockReason: string(BlockModelUnavailable),
			})
			continue
		}
		rs := RouteStatus{
			ID:         route.ID,
			Label:      route.Label,
			Vendor:     vendor.Name,
			AuthType:   string(route.AuthType),
			Model:      r.modelFor(entry),
			StackIndex: i,
			Active:     route.ID == r.activeRouteID,
		}
		elig := r.evaluate(route, vendor, r.modelFor(entry), now, ec)
		rs.Eligible = elig.Eligible
		if !elig.Eligible {
			rs.BlockReason = string(elig.Reason)
			rs.CooldownUntil = elig.RetryAt
		}
		st.Routes = append(st.Routes, rs)
	}
	return st
}

// StatusSummary renders a one-line status for prompt surfaces.
func (r *Router) StatusSummary() string {
	st := r.Status()
	if !st.Enabled {
		return "failover disabled"
	}
	active := st.ActiveRoute
	for _, rs := range st.Routes {
		if rs.Active && rs.Label != "" {
			active = rs.Label
		}
	}
	eligible := 0
	for _, rs := range st.Routes {
		if rs.Eligible {
			eligible++
		}
	}
	return fmt.Sprintf("%s on %s, %d/%d routes eligible", st.Phase, active, eligible, len(st.Routes))
}

// Events returns the most recent decision events, newest last.
func (r *Router) Events(limit int) []state.DecisionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Events(limit)
}

// Explain returns the decision trail since the most recent trigger or
// probe, answering "why am I on this route".
func (r *Router) Explain() []state.DecisionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	evs := r.store.Events(0)
	start := 0
	for i := len(evs) - 1; i >= 0; i-- {
		k := evs[i].Kind
		if k == state.EventFailoverTrigger || k == state.EventProbeSuccess ||
			k == state.EventProbeInconclusive || k == state.EventProbeFailure {
			start = i
			break
		}
	}
	return evs[start:]
}

// ForceRoute performs a user-requested switch to a specific route,
// optionally pinning a model. Manual intent overrides an active
// cooldown; the switch still runs the full orchestration gates
// (credentials, context fit with compaction, activation).
func (r *Router) ForceRoute(routeID, modelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("router is closed")
	}

	idx := r.cfg.StackIndex(routeID)
	if idx < 0 {
		return fmt.Errorf("route %q is not in the preference stack", routeID)
	}
	route, vendor, ok := r.cfg.FindRoute(routeID)
	if !ok {
		return fmt.Errorf("route %q is not configured", routeID)
	}

	entry := r.cfg.PreferenceStack[idx]
	if modelID != "" {
		entry.Model = modelID
	}
	target := r.modelFor(entry)
	model, ok := r.collab.Registry.Find(route.ProviderID, target)
	if !ok {
		return &SwitchBlocked{RouteID: routeID, Reason: BlockModelUnavailable}
	}

	r.cancelProbeLocked()
	r.store.ClearCooldown(routeID)

	sel := &selection{idx: idx, entry: entry, route: route, vendor: vendor, model: model}
	if err := r.switchTo(sel, "manual switch", state.EventSwitch); err != nil {
		return err
	}
	r.phase = PhaseActive
	if modelID != "" {
		r.selectedModel = modelID
	}
	L_info("router: manual switch", "route", routeID, "model", target)
	return nil
}

// RenameRoute changes a route's label and persists it to the project
// config. The route id, and with it cooldown history, is untouched.
func (r *Router) RenameRoute(routeID, label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if label == "" {
		return fmt.Errorf("label must not be empty")
	}
	route, _, ok := r.cfg.FindRoute(routeID)
	if !ok {
		return fmt.Errorf("route %q is not configured", routeID)
	}
	route.Label = label
	return r.persistLocked()
}

// ReorderRoute moves a route to a new position in the preference stack
// and persists the new order. Cooldowns and the active pointer follow
// the route id, not its position.
func (r *Router) ReorderRoute(routeID string, pos int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.cfg.StackIndex(routeID)
	if idx < 0 {
		return fmt.Errorf("route %q is not in the preference stack", routeID)
	}
	if pos < 0 || pos >= len(r.cfg.PreferenceStack) {
		return fmt.Errorf("position %d out of range 0..%d", pos, len(r.cfg.PreferenceStack)-1)
	}

	stack := r.cfg.PreferenceStack
	entry := stack[idx]
	stack = append(stack[:idx], stack[idx+1:]...)
	stack = append(stack[:pos], append([]config.StackEntry{entry}, stack[pos:]...)...)
	r.cfg.PreferenceStack = stack

	if ai := r.cfg.StackIndex(r.activeRouteID); ai >= 0 {
		r.activeIdx = ai
	}
	return r.persistLocked()
}

// persistLocked writes the current config back to the project path so
// edits survive restarts. Caller holds the mutex.
func (r *Router) persistLocked() error {
	path := r.cfgPaths.Project
	if path == "" {
		path = r.cfgPaths.Global
	}
	if path == "" {
		return fmt.Errorf("no writable config path")
	}
	if err := config.SaveDocument(path, r.cfg.AsDocument()); err != nil {
		return fmt.Errorf("persist config: %w", err)
	}
	L_debug("router: config persisted", "path", path)
	return nil
}
