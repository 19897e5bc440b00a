// Package router implements the provider failover engine: eligibility
// gates, the switch orchestrator, the failover trigger state machine,
// and the return-to-preferred prober.
package router

import (
	"context"

	"github.com/modelrelay/modelrelay/internal/state"
)

// Model describes one model as known to the host's model registry.
type Model struct {
	ID            string
	ProviderID    string
	Family        string // e.g. "claude", "gpt"; used by the context-fit gate
	ContextWindow int
}

// ModelRegistry is the host's model catalog.
type ModelRegistry interface {
	// Find returns the model with the given id under a provider.
	Find(providerID, modelID string) (*Model, bool)
	// Available lists every model the host can currently serve.
	Available() []*Model
}

// CredentialContext is the explicit per-call credential material passed
// to the activation effector. Empty fields mean "clear": auxiliary
// identifiers not configured for a route must not leak from the
// previously active account.
type CredentialContext struct {
	APIKey    string
	OrgID     string
	ProjectID string
}

// CredentialBroker snapshots and restores the host's ambient credential
// state, so the router can put things back on shutdown or disable.
type CredentialBroker interface {
	Snapshot() *CredentialContext
	Restore(*CredentialContext)
}

// Activator performs the actual provider switch. creds is nil for oauth
// routes; the host's token refresh owns those. A non-nil error means
// the activation was rejected (e.g. OAuth not logged in).
type Activator interface {
	Activate(ctx context.Context, m *Model, creds *CredentialContext) error
}

// PromptMode controls how a resent prompt is delivered.
type PromptMode int

const (
	// PromptImmediate sends right away; only safe when the client is idle.
	PromptImmediate PromptMode = iota
	// PromptQueued enqueues as a follow-up so it cannot race an
	// in-flight turn.
	PromptQueued
)

// PromptSender resends user prompts after an automatic switch.
type PromptSender interface {
	Send(content string, mode PromptMode) error
}

// Compactor triggers context compaction on the live session and reports
// the resulting usage in tokens.
type Compactor interface {
	Compact(ctx context.Context) (usageTokens int, err error)
}

// HealthProber issues a lightweight, time-bounded request against a
// candidate to test recovery. The context carries the abort budget.
type HealthProber interface {
	Probe(ctx context.Context, m *Model, creds *CredentialContext) error
}

// Notifier surfaces user-facing messages.
type Notifier interface {
	Notify(message string, level state.Severity)
}

// ContinuationStarter spawns a continuation session. Optional: hosts
// that cannot continue sessions leave it nil and continuation requests
// fail explicitly.
type ContinuationStarter interface {
	StartContinuation(ctx context.Context) error
}

// Collaborators bundles every host-provided dependency.
type Collaborators struct {
	Registry     ModelRegistry
	Credentials  CredentialBroker
	Activator    Activator
	Prompts      PromptSender
	Compactor    Compactor
	Prober       HealthProber
	Notifier     Notifier
	Continuation ContinuationStarter // may be nil
}
