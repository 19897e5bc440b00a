package commands

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/modelrelay/modelrelay/internal/router"
	"github.com/modelrelay/modelrelay/internal/state"
)

type fakeProvider struct {
	status    router.Status
	events    []state.DecisionEvent
	forced    []string
	renamed   [][2]string
	reordered []string
	reloads   int
	forceErr  error
}

func (f *fakeProvider) Status() router.Status { return f.status }

func (f *fakeProvider) StatusSummary() string { return "active" }

func (f *fakeProvider) Events(limit int) []state.DecisionEvent {
	if limit > 0 && len(f.events) > limit {
		return f.events[len(f.events)-limit:]
	}
	return f.events
}

func (f *fakeProvider) Explain() []state.DecisionEvent { return f.events }

func (f *fakeProvider) ForceRoute(routeID, modelID string) error {
	f.forced = append(f.forced, routeID+"/"+modelID)
	return f.forceErr
}

func (f *fakeProvider) RenameRoute(routeID, label string) error {
	f.renamed = append(f.renamed, [2]string{routeID, label})
	return nil
}

func (f *fakeProvider) ReorderRoute(routeID string, pos int) error {
	f.reordered = append(f.reordered, routeID)
	return nil
}

func (f *fakeProvider) Reload() error { f.reloads++; return nil }

func (f *fakeProvider) StartContinuation(ctx context.Context) error {
	return errors.New("continuation sessions are not supported by this host")
}

var testProvider = &fakeProvider{
	status: router.Status{
		Enabled:     true,
		Phase:       router.PhaseActive,
		ActiveRoute: "claude-oauth",
		UsageTokens: 1234,
		Routes: []router.RouteStatus{
			{ID: "claude-oauth", Label: "Claude (sub)", Vendor: "claude", AuthType: "oauth", StackIndex: 0, Active: true, Eligible: true},
			{ID: "claude-api", Label: "Claude (api)", Vendor: "claude", AuthType: "api_key", StackIndex: 1, Eligible: false, BlockReason: "cooldown", CooldownUntil: time.Now().Add(time.Hour)},
		},
	},
	events: []state.DecisionEvent{
		{TS: time.Now().UnixMilli(), Kind: state.EventFailoverTrigger, Level: state.SeverityWarning, Message: "rate_limit on Claude (sub)"},
		{TS: time.Now().UnixMilli(), Kind: state.EventSwitch, Level: state.SeverityInfo, Message: "switched to Claude (api)"},
	},
}

func manager(t *testing.T) *Manager {
	t.Helper()
	return InitManager(testProvider)
}

func TestStatusCommand(t *testing.T) {
	m := manager(t)
	res := m.Execute(context.Background(), "/failover")
	if res.Error != nil {
		t.Fatal(res.Error)
	}
	for _, want := range []string{"active", "Claude (sub)", "Claude (api)", "cooldown until"} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("status output missing %q:\n%s", want, res.Text)
		}
	}
}

func TestStatusAlias(t *testing.T) {
	m := manager(t)
	res := m.Execute(context.Background(), "/status")
	if !strings.Contains(res.Text, "Routes") {
		t.Errorf("alias output:\n%s", res.Text)
	}
}

func TestEventsCommand(t *testing.T) {
	m := manager(t)
	res := m.Execute(context.Background(), "/events")
	if !strings.Contains(res.Text, "rate_limit on Claude (sub)") {
		t.Errorf("events output:\n%s", res.Text)
	}

	res = m.Execute(context.Background(), "/events nope")
	if res.ExitCode == 0 {
		t.Error("bad limit should be a usage error")
	}
}

func TestExplainCommand(t *testing.T) {
	m := manager(t)
	res := m.Execute(context.Background(), "/explain")
	if !strings.Contains(res.Text, "switched to Claude (api)") {
		t.Errorf("explain output:\n%s", res.Text)
	}
}

func TestRouteCommand(t *testing.T) {
	m := manager(t)
	before := len(testProvider.forced)
	res := m.Execute(context.Background(), "/route claude-api claude-opus")
	if res.Error != nil {
		t.Fatal(res.Error)
	}
	if len(testProvider.forced) != before+1 || testProvider.forced[before] != "claude-api/claude-opus" {
		t.Errorf("forced = %v", testProvider.forced)
	}

	res = m.Execute(context.Background(), "/route")
	if res.ExitCode == 0 {
		t.Error("missing route id should be a usage error")
	}
}

func TestRenameAndReorderCommands(t *testing.T) {
	m := manager(t)
	res := m.Execute(context.Background(), "/rename claude-api Work API")
	if res.Error != nil {
		t.Fatal(res.Error)
	}
	last := testProvider.renamed[len(testProvider.renamed)-1]
	if last[0] != "claude-api" || last[1] != "Work API" {
		t.Errorf("renamed = %v", last)
	}

	res = m.Execute(context.Background(), "/reorder claude-api 1")
	if res.Error != nil {
		t.Fatal(res.Error)
	}
	if res = m.Execute(context.Background(), "/reorder claude-api zero"); res.ExitCode == 0 {
		t.Error("non-numeric position should be a usage error")
	}
}

func TestContinueUnsupported(t *testing.T) {
	m := manager(t)
	res := m.Execute(context.Background(), "/continue")
	if res.Error == nil || !strings.Contains(res.Text, "not supported") {
		t.Errorf("continue result = %+v", res)
	}
}

func TestUnknownCommand(t *testing.T) {
	m := manager(t)
	res := m.Execute(context.Background(), "/bogus")
	if !strings.Contains(res.Text, "Unknown command") {
		t.Errorf("output = %q", res.Text)
	}
	if res.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1", res.ExitCode)
	}
}

func TestHelpListsCommands(t *testing.T) {
	m := manager(t)
	res := m.Execute(context.Background(), "/help")
	for _, want := range []string{"/failover", "/route", "/events", "/reload"} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("help missing %q", want)
		}
	}
}

func TestIsCommand(t *testing.T) {
	if !IsCommand("  /status") {
		t.Error("leading whitespace should still be a command")
	}
	if IsCommand("hello") {
		t.Error("plain text is not a command")
	}
}
