package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMergesGlobalAndProject(t *testing.T) {
	dir := t.TempDir()
	global := writeFile(t, dir, "global.json", `{
		"enabled": true,
		"rate_limit_patterns": ["slow down"],
		"vendors": [{
			"vendor": "claude",
			"oauth_cooldown_minutes": 45,
			"routes": [
				{"id": "claude-oauth", "auth_type": "oauth"},
				{"id": "claude-api", "auth_type": "api_key", "api_key_env": "KEY"}
			]
		}],
		"preference_stack": [{"route_id": "claude-oauth"}, {"route_id": "claude-api"}]
	}`)
	project := writeFile(t, dir, "project.json", `{
		"enabled": false,
		"rate_limit_patterns": ["capacity"],
		"vendors": [{
			"vendor": "claude",
			"routes": [{"id": "claude-api", "auth_type": "api_key", "api_key_env": "WORK_KEY"}]
		}]
	}`)

	cfg, err := Load(Paths{Global: global, Project: project})
	if err != nil {
		t.Fatal(err)
	}

	// Project wins scalars.
	if cfg.Enabled {
		t.Error("project enabled=false should win")
	}
	// Pattern lists are unioned.
	if len(cfg.RateLimitPatterns) != 2 {
		t.Errorf("patterns = %v", cfg.RateLimitPatterns)
	}
	// Vendors merge by name: the claude vendor keeps its global cooldown
	// but the project route override replaces claude-api by id.
	if len(cfg.Vendors) != 1 {
		t.Fatalf("vendors = %+v", cfg.Vendors)
	}
	if cfg.Vendors[0].OAuthCooldownMinutes != 45 {
		t.Errorf("oauth cooldown = %d, want global 45 kept", cfg.Vendors[0].OAuthCooldownMinutes)
	}
	route, _, ok := cfg.FindRoute("claude-api")
	if !ok || route.APIKeyEnv != "WORK_KEY" {
		t.Errorf("claude-api = %+v, want project override", route)
	}
	if _, _, ok := cfg.FindRoute("claude-oauth"); !ok {
		t.Error("global-only route lost in merge")
	}
	// Global stack survives when the project has none.
	if len(cfg.PreferenceStack) != 2 {
		t.Errorf("stack = %+v", cfg.PreferenceStack)
	}
}

func TestMergeTriStateBooleans(t *testing.T) {
	dir := t.TempDir()
	global := writeFile(t, dir, "global.json", `{
		"enabled": true,
		"failover": {
			"return_to_preferred": {"enabled": true},
			"triggers": {"rate_limit": true, "quota_exhausted": true, "auth_error": true}
		},
		"vendors": [{
			"vendor": "claude",
			"auto_retry": true,
			"routes": [{"id": "main", "auth_type": "oauth"}]
		}]
	}`)
	project := writeFile(t, dir, "project.json", `{
		"enabled": false,
		"failover": {
			"return_to_preferred": {"enabled": false},
			"triggers": {"quota_exhausted": false}
		},
		"vendors": [{"vendor": "claude", "auto_retry": false}]
	}`)

	cfg, err := Load(Paths{Global: global, Project: project})
	if err != nil {
		t.Fatal(err)
	}

	// An explicit false in the project is a setting, not an absence.
	if cfg.Enabled {
		t.Error("enabled: project false should win")
	}
	if cfg.Failover.ReturnToPreferred.Enabled {
		t.Error("return_to_preferred.enabled: project false should win")
	}
	if cfg.Failover.Triggers.QuotaExhausted {
		t.Error("triggers.quota_exhausted: project false should win")
	}
	// Flags the project leaves unset keep the global value.
	if !cfg.Failover.Triggers.RateLimit {
		t.Error("triggers.rate_limit: global true should survive")
	}
	if !cfg.Failover.Triggers.AuthError {
		t.Error("triggers.auth_error: global true should survive")
	}
	if len(cfg.Vendors) != 1 || cfg.Vendors[0].AutoRetry {
		t.Error("vendor auto_retry: project false should win")
	}
}

func TestLoadProjectStackReplacesGlobal(t *testing.T) {
	dir := t.TempDir()
	global := writeFile(t, dir, "global.json", `{
		"vendors": [{"vendor": "claude", "routes": [
			{"id": "a", "auth_type": "oauth"},
			{"id": "b", "auth_type": "oauth"}
		]}],
		"preference_stack": [{"route_id": "a"}, {"route_id": "b"}]
	}`)
	project := writeFile(t, dir, "project.json", `{
		"preference_stack": [{"route_id": "b"}]
	}`)

	cfg, err := Load(Paths{Global: global, Project: project})
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.PreferenceStack) != 1 || cfg.PreferenceStack[0].RouteID != "b" {
		t.Errorf("stack = %+v, want project stack", cfg.PreferenceStack)
	}
}

func TestLoadMissingFilesBootstraps(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(Paths{
		Global:  filepath.Join(dir, "nope.json"),
		Project: filepath.Join(dir, "also-nope.json"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Vendors) != 1 || cfg.Vendors[0].Name != "claude" {
		t.Errorf("vendors = %+v, want bootstrap", cfg.Vendors)
	}
}

func TestLoadMalformedIsAnError(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.json", `{"enabled": tru`)

	if _, err := Load(Paths{Global: bad}); err == nil {
		t.Fatal("malformed config must error so the caller keeps last-good")
	}
}

func TestLoadYAMLSibling(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
vendors:
  - vendor: claude
    routes:
      - id: main
        auth_type: oauth
`)

	// Asking for the .json path finds the .yaml sibling.
	cfg, err := Load(Paths{Global: filepath.Join(dir, "config.json")})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, ok := cfg.FindRoute("main"); !ok {
		t.Errorf("yaml sibling not loaded: %+v", cfg.Vendors)
	}
}

func TestAtomicWriteReplacesWholeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	if err := AtomicWrite(path, []byte(`{"a":1}`), 0600); err != nil {
		t.Fatal(err)
	}
	if err := AtomicWrite(path, []byte(`{"b":2}`), 0600); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"b":2}` {
		t.Errorf("content = %s", data)
	}

	// No temp droppings left behind.
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("directory entries = %d, want just the target", len(entries))
	}
}
