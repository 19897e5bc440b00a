// Package state persists the router's runtime state: per-route cooldown
// expiries, the return-to-preferred holdoff gate, and a bounded decision
// event log. The backing document is a single JSON file replaced
// atomically on every mutation; a crash loses at most the most recent
// decision, never corrupts the file.
package state

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/modelrelay/modelrelay/internal/config"
	. "github.com/modelrelay/modelrelay/internal/logging"
)

// EventKind classifies a decision event.
type EventKind string

const (
	EventFailoverTrigger   EventKind = "failover_trigger"
	EventSwitch            EventKind = "switch"
	EventCompaction        EventKind = "compaction"
	EventProbeSuccess      EventKind = "probe_success"
	EventProbeInconclusive EventKind = "probe_inconclusive"
	EventProbeFailure      EventKind = "probe_failure"
	EventReturnSwitch      EventKind = "return_switch"
)

// Severity is the notification level of an event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// DecisionEvent is an immutable record of an automatic routing decision.
type DecisionEvent struct {
	ID          string    `json:"id"`
	TS          int64     `json:"ts"` // epoch ms
	Kind        EventKind `json:"kind"`
	Level       Severity  `json:"level"`
	Message     string    `json:"message"`
	Reason      string    `json:"reason,omitempty"`
	NextRetryAt int64     `json:"next_retry_at,omitempty"` // epoch ms
}

// Document is the on-disk shape of the runtime state.
type Document struct {
	Cooldowns            map[string]int64 `json:"cooldowns"`
	NextReturnEligibleAt int64            `json:"next_return_eligible_at_ms,omitempty"`
	Events               []DecisionEvent  `json:"events,omitempty"`
}

// DefaultMaxEvents bounds the decision event log.
const DefaultMaxEvents = 200

// Store owns the runtime state document. It is not safe for concurrent
// use; the router's single execution context is its only caller.
type Store struct {
	path      string
	maxEvents int
	doc       Document

	// Consecutive failure counts per route, transient. Scales repeated
	// cooldowns; reset on a successful switch to the route.
	failCounts map[string]int
}

// Open loads the state document at path. Unparsable or missing state is
// treated as empty: the router must come up regardless.
func Open(path string) *Store {
	s := &Store{
		path:       path,
		maxEvents:  DefaultMaxEvents,
		doc:        Document{Cooldowns: make(map[string]int64)},
		failCounts: make(map[string]int),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			L_warn("state: cannot read, starting empty", "path", path, "error", err)
		}
		return s
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		L_warn("state: corrupt state file, starting empty", "path", path, "error", err)
		return s
	}
	if doc.Cooldowns == nil {
		doc.Cooldowns = make(map[string]int64)
	}
	s.doc = doc
	L_debug("state: loaded", "cooldowns", len(doc.Cooldowns), "events", len(doc.Events))
	return s
}

// SetMaxEvents overrides the event log capacity.
func (s *Store) SetMaxEvents(n int) {
	if n > 0 {
		s.maxEvents = n
	}
}

// Flush writes the document to disk. Best effort: a failed flush is
// logged, never fatal.
func (s *Store) Flush() {
	if s.path == "" {
		return
	}
	if err := config.AtomicWriteJSON(s.path, &s.doc, 0600); err != nil {
		L_warn("state: flush failed", "path", s.path, "error", err)
	}
}

// SetCooldown puts a route on cooldown until the given time. Re-triggering
// a route never shortens an existing cooldown.
func (s *Store) SetCooldown(routeID string, until time.Time) {
	ms := until.UnixMilli()
	if cur, ok := s.doc.Cooldowns[routeID]; ok && cur >= ms {
		return
	}
	s.doc.Cooldowns[routeID] = ms
	s.Flush()
}

// CooldownUntil returns the cooldown expiry for a route, if any.
func (s *Store) CooldownUntil(routeID string) (time.Time, bool) {
	ms, ok := s.doc.Cooldowns[routeID]
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// InCooldown reports whether the route is cooling at the given instant.
func (s *Store) InCooldown(routeID string, now time.Time) bool {
	until, ok := s.CooldownUntil(routeID)
	return ok && until.After(now)
}

// ClearCooldown removes a route's cooldown (successful use clears it).
func (s *Store) ClearCooldown(routeID string) {
	if _, ok := s.doc.Cooldowns[routeID]; !ok {
		return
	}
	delete(s.doc.Cooldowns, routeID)
	s.Flush()
}

// MarkFailure bumps the consecutive failure count for a route and
// returns the new count.
func (s *Store) MarkFailure(routeID string) int {
	s.failCounts[routeID]++
	return s.failCounts[routeID]
}

// ResetFailures clears the consecutive failure count for a route.
func (s *Store) ResetFailures(routeID string) {
	delete(s.failCounts, routeID)
}

// SetHoldoff sets the earliest time a return-to-preferred attempt may run.
func (s *Store) SetHoldoff(at time.Time) {
	s.doc.NextReturnEligibleAt = at.UnixMilli()
	s.Flush()
}

// Holdoff returns the return-eligibility gate, zero if unset.
func (s *Store) Holdoff() time.Time {
	if s.doc.NextReturnEligibleAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.doc.NextReturnEligibleAt)
}

// ClearHoldoff removes the holdoff gate.
func (s *Store) ClearHoldoff() {
	if s.doc.NextReturnEligibleAt == 0 {
		return
	}
	s.doc.NextReturnEligibleAt = 0
	s.Flush()
}

// Append records a decision event, evicting the oldest entries beyond
// capacity, and flushes.
func (s *Store) Append(ev DecisionEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.TS == 0 {
		ev.TS = time.Now().UnixMilli()
	}
	s.doc.Events = append(s.doc.Events, ev)
	if over := len(s.doc.Events) - s.maxEvents; over > 0 {
		s.doc.Events = append([]DecisionEvent(nil), s.doc.Events[over:]...)
	}
	s.Flush()
}

// Events returns up to limit most recent events, newest last.
// limit <= 0 returns all.
func (s *Store) Events(limit int) []DecisionEvent {
	evs := s.doc.Events
	if limit > 0 && len(evs) > limit {
		evs = evs[len(evs)-limit:]
	}
	return append([]DecisionEvent(nil), evs...)
}

// NearestDeadline returns the earliest future instant among all cooldown
// expiries and the holdoff gate. ok is false when nothing is pending.
func (s *Store) NearestDeadline(now time.Time) (time.Time, bool) {
	var nearest time.Time
	consider := func(t time.Time) {
		if !t.After(now) {
			return
		}
		if nearest.IsZero() || t.Before(nearest) {
			nearest = t
		}
	}
	for _, ms := range s.doc.Cooldowns {
		consider(time.UnixMilli(ms))
	}
	if s.doc.NextReturnEligibleAt != 0 {
		consider(time.UnixMilli(s.doc.NextReturnEligibleAt))
	}
	return nearest, !nearest.IsZero()
}

// PruneExpired drops cooldowns that have already expired. Keeps the
// document from accumulating dead routes.
func (s *Store) PruneExpired(now time.Time) {
	changed := false
	for id, ms := range s.doc.Cooldowns {
		if time.UnixMilli(ms).Before(now) {
			delete(s.doc.Cooldowns, id)
			changed = true
		}
	}
	if changed {
		s.Flush()
	}
}
