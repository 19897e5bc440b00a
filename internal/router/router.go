package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/modelrelay/modelrelay/internal/bus"
	"github.com/modelrelay/modelrelay/internal/config"
	. "github.com/modelrelay/modelrelay/internal/logging"
	"github.com/modelrelay/modelrelay/internal/state"
)

// Phase is the failover trigger handler's current state.
type Phase string

const (
	PhaseActive    Phase = "active"
	PhaseTriggered Phase = "triggered"
	PhaseCooling   Phase = "cooling"
	PhaseSwitching Phase = "switching"
	PhaseExhausted Phase = "exhausted"
)

// Tunables with no config surface.
const (
	retryBuffer       = 60 * time.Second // safety margin on top of hints/defaults
	probeTimeout      = 10 * time.Second
	probeFailCooldown = 5 * time.Minute
	compactTimeout    = 2 * time.Minute
)

// Router owns all mutable routing state: the active-route pointer, the
// cooldown map, the event log, and the holdoff timestamp. The host
// delivers events one at a time; the mutex only serializes probe and
// timer completions against those handler calls.
type Router struct {
	mu sync.Mutex

	cfg      *config.Config
	cfgPaths config.Paths
	store    *state.Store
	collab   Collaborators

	phase         Phase
	activeIdx     int
	activeRouteID string
	selectedModel string
	usageTokens   int
	lastPrompt    string
	idle          bool

	switching   bool // trigger/manual switch in flight; prober yields
	probeCancel context.CancelFunc
	probeSeq    uint64

	timer        *time.Timer
	watcher      *config.Watcher
	credSnapshot *CredentialContext
	closed       bool
}

// New builds a router from normalized config, opened state, and host
// collaborators. The previous credential context is snapshotted here
// and restored by Close.
func New(cfg *config.Config, paths config.Paths, store *state.Store, collab Collaborators) *Router {
	r := &Router{
		cfg:      cfg,
		cfgPaths: paths,
		store:    store,
		collab:   collab,
		phase:    PhaseActive,
	}
	if collab.Credentials != nil {
		r.credSnapshot = collab.Credentials.Snapshot()
	}
	if len(cfg.PreferenceStack) > 0 {
		r.activeIdx = 0
		r.activeRouteID = cfg.PreferenceStack[0].RouteID
	}
	r.rescheduleLocked(time.Now())
	L_info("router: ready",
		"routes", len(cfg.PreferenceStack),
		"active", r.activeRouteID,
		"enabled", cfg.Enabled)
	return r
}

// Attach subscribes the router's handlers on the host event bus.
func (r *Router) Attach(b *bus.Bus) {
	b.Subscribe(bus.KindTurnEnded, func(ev bus.Event) {
		if p, ok := ev.Payload.(bus.TurnEnded); ok {
			r.HandleTurnEnded(p)
		}
	})
	b.Subscribe(bus.KindModelSelected, func(ev bus.Event) {
		if p, ok := ev.Payload.(bus.ModelSelected); ok {
			r.HandleModelSelected(p)
		}
	})
	b.Subscribe(bus.KindSessionStarted, func(ev bus.Event) {
		r.HandleSessionStarted()
	})
	b.Subscribe(bus.KindSessionSwitched, func(ev bus.Event) {
		r.HandleSessionStarted()
	})
	b.Subscribe(bus.KindSessionShutdown, func(ev bus.Event) {
		r.Close()
	})
}

// HandleModelSelected tracks the user's manual model choice. A manual
// change supersedes any in-flight probe: its target may no longer be
// what the user wants.
func (r *Router) HandleModelSelected(ev bus.ModelSelected) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.selectedModel = ev.ModelID
	r.cancelProbeLocked()
	r.maybeProbeLocked(time.Now())
	L_debug("router: model selected", "model", ev.ModelID)
}

// HandleSessionStarted resets per-session transient state.
func (r *Router) HandleSessionStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.phase = PhaseActive
	r.lastPrompt = ""
	r.usageTokens = 0
	r.cancelProbeLocked()
	r.rescheduleLocked(time.Now())
}

// StartWatcher begins config hot-reload. Optional; safe to skip in
// hosts that reload explicitly.
func (r *Router) StartWatcher() error {
	w, err := config.NewWatcher(r.cfgPaths, func() {
		if err := r.Reload(); err != nil {
			L_warn("router: auto-reload failed, keeping last-good config", "error", err)
		}
	})
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.watcher = w
	r.mu.Unlock()
	return w.Start()
}

// Reload re-reads and re-normalizes configuration. On error the
// last-good config stays in effect.
func (r *Router) Reload() error {
	cfg, err := config.Load(r.cfgPaths)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.cfg = cfg

	// Re-anchor the active pointer; the active route may have been
	// renamed out of the stack.
	if idx := cfg.StackIndex(r.activeRouteID); idx >= 0 {
		r.activeIdx = idx
	} else if len(cfg.PreferenceStack) > 0 {
		L_warn("router: active route gone after reload", "route", r.activeRouteID)
		r.activeIdx = 0
		r.activeRouteID = cfg.PreferenceStack[0].RouteID
	}
	now := time.Now()
	r.maybeProbeLocked(now)
	r.rescheduleLocked(now)
	L_info("router: config reloaded", "vendors", len(cfg.Vendors), "stack", len(cfg.PreferenceStack))
	return nil
}

// StartContinuation asks the host to spawn a continuation session.
// Fails explicitly when the host offers none.
func (r *Router) StartContinuation(ctx context.Context) error {
	r.mu.Lock()
	starter := r.collab.Continuation
	r.mu.Unlock()
	if starter == nil {
		return fmt.Errorf("continuation sessions are not supported by this host")
	}
	return starter.StartContinuation(ctx)
}

// Close flushes state, stops timers and probes, and restores the
// credential snapshot captured at construction.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true

	r.cancelProbeLocked()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if r.watcher != nil {
		r.watcher.Stop()
	}
	r.store.Flush()
	if r.collab.Credentials != nil {
		r.collab.Credentials.Restore(r.credSnapshot)
	}
	L_info("router: closed")
}

func (r *Router) cancelProbeLocked() {
	if r.probeCancel != nil {
		r.probeCancel()
		r.probeCancel = nil
	}
	r.probeSeq++ // orphan any in-flight completion
}

// activeRoute returns the active route and vendor, nil when the stack
// is empty or stale.
func (r *Router) activeRoute() (*config.Route, *config.Vendor) {
	route, vendor, ok := r.cfg.FindRoute(r.activeRouteID)
	if !ok {
		return nil, nil
	}
	return route, vendor
}

// evalCtx builds the context-fit inputs from the live session facts.
func (r *Router) evalCtx() evalContext {
	ec := evalContext{usageTokens: r.usageTokens}
	route, vendor := r.activeRoute()
	if route == nil {
		return ec
	}
	ec.activeVendor = vendor.Name
	if m, ok := r.collab.Registry.Find(route.ProviderID, r.modelForActive()); ok {
		ec.activeFamily = m.Family
	}
	return ec
}

func (r *Router) modelForActive() string {
	if r.activeIdx >= 0 && r.activeIdx < len(r.cfg.PreferenceStack) {
		return r.modelFor(r.cfg.PreferenceStack[r.activeIdx])
	}
	return r.selectedModel
}

// materializeCredentials builds the per-call credential context for a
// route. OAuth routes return nil: the host's token refresh owns them.
// Auxiliary identifiers not configured for this route stay empty so the
// previous account's org/project headers cannot leak.
func materializeCredentials(route *config.Route) (*CredentialContext, error) {
	if route.AuthType == config.AuthOAuth {
		return nil, nil
	}
	key, ok := resolveAPIKey(route)
	if !ok {
		return nil, &SwitchBlocked{RouteID: route.ID, Reason: BlockCredentialsMissing}
	}
	return &CredentialContext{
		APIKey:    key,
		OrgID:     route.OrgID,
		ProjectID: route.ProjectID,
	}, nil
}

func (r *Router) notify(msg string, level state.Severity) {
	if r.collab.Notifier != nil {
		r.collab.Notifier.Notify(msg, level)
	}
}
