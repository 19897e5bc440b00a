// Package config loads, merges, and normalizes router configuration.
package config

import "time"

// AuthType distinguishes subscription (oauth) routes from api-key routes.
type AuthType string

const (
	AuthOAuth  AuthType = "oauth"
	AuthAPIKey AuthType = "api_key"
)

// Route is one vendor+auth-account+credential lane. The ID is the
// identity used for cooldown and event correlation and must stay stable
// across config edits.
type Route struct {
	ID         string   `json:"id" yaml:"id"`
	AuthType   AuthType `json:"auth_type" yaml:"auth_type"`
	Label      string   `json:"label" yaml:"label"`
	ProviderID string   `json:"provider_id" yaml:"provider_id"`

	// Credential material, resolved lazily. At most one is set.
	APIKeyEnv  string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	APIKeyPath string `json:"api_key_path,omitempty" yaml:"api_key_path,omitempty"`
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Vendor-specific auxiliary identifiers. Cleared on the outbound
	// credential context when not configured for the active route.
	OrgID     string `json:"org_id,omitempty" yaml:"org_id,omitempty"`
	ProjectID string `json:"project_id,omitempty" yaml:"project_id,omitempty"`

	CooldownMinutes int `json:"cooldown_minutes,omitempty" yaml:"cooldown_minutes,omitempty"` // 0 = vendor default
}

// Vendor owns an ordered list of routes plus vendor-level defaults.
type Vendor struct {
	Name                  string  `json:"vendor" yaml:"vendor"`
	OAuthCooldownMinutes  int     `json:"oauth_cooldown_minutes,omitempty" yaml:"oauth_cooldown_minutes,omitempty"`
	APIKeyCooldownMinutes int     `json:"api_key_cooldown_minutes,omitempty" yaml:"api_key_cooldown_minutes,omitempty"`
	AutoRetry             bool    `json:"auto_retry,omitempty" yaml:"auto_retry,omitempty"`
	Routes                []Route `json:"routes" yaml:"routes"`
}

// StackEntry references a route by id with an optional pinned model.
// An empty Model means "follow whatever model the user has selected".
type StackEntry struct {
	RouteID string `json:"route_id" yaml:"route_id"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
}

// ReturnConfig controls the return-to-preferred prober.
type ReturnConfig struct {
	Enabled          bool `json:"enabled" yaml:"enabled"`
	MinStableMinutes int  `json:"min_stable_minutes,omitempty" yaml:"min_stable_minutes,omitempty"`
}

// Triggers enables/disables individual failover trigger categories.
type Triggers struct {
	RateLimit      bool `json:"rate_limit" yaml:"rate_limit"`
	QuotaExhausted bool `json:"quota_exhausted" yaml:"quota_exhausted"`
	AuthError      bool `json:"auth_error" yaml:"auth_error"`
}

// ContextConfig tunes the context-fit eligibility gate. The multipliers
// are heuristics, sized conservatively: a false "blocked" is cheaper
// than a failed switch.
type ContextConfig struct {
	SameVendorMultiplier  float64 `json:"same_vendor_multiplier,omitempty" yaml:"same_vendor_multiplier,omitempty"`
	CrossVendorMultiplier float64 `json:"cross_vendor_multiplier,omitempty" yaml:"cross_vendor_multiplier,omitempty"`
	ReservedHeadroom      int     `json:"reserved_headroom,omitempty" yaml:"reserved_headroom,omitempty"`
}

// FailoverConfig groups the failover behavior knobs.
type FailoverConfig struct {
	Scope             string        `json:"scope,omitempty" yaml:"scope,omitempty"`
	ReturnToPreferred ReturnConfig  `json:"return_to_preferred" yaml:"return_to_preferred"`
	Triggers          Triggers      `json:"triggers" yaml:"triggers"`
	Context           ContextConfig `json:"context,omitempty" yaml:"context,omitempty"`
}

// Config is the canonical, normalized configuration.
type Config struct {
	Enabled           bool           `json:"enabled" yaml:"enabled"`
	DefaultVendor     string         `json:"default_vendor,omitempty" yaml:"default_vendor,omitempty"`
	RateLimitPatterns []string       `json:"rate_limit_patterns,omitempty" yaml:"rate_limit_patterns,omitempty"`
	Failover          FailoverConfig `json:"failover" yaml:"failover"`
	Vendors           []Vendor       `json:"vendors" yaml:"vendors"`
	PreferenceStack   []StackEntry   `json:"preference_stack" yaml:"preference_stack"`
}

// Defaults applied during normalization.
const (
	DefaultOAuthCooldownMinutes  = 30
	DefaultAPIKeyCooldownMinutes = 10
	DefaultMinStableMinutes      = 30
	DefaultSameVendorMultiplier  = 1.10
	DefaultCrossVendorMultiplier = 1.35
	DefaultReservedHeadroom      = 20000
)

// FindRoute returns the route and owning vendor for a route id.
func (c *Config) FindRoute(routeID string) (*Route, *Vendor, bool) {
	for vi := range c.Vendors {
		v := &c.Vendors[vi]
		for ri := range v.Routes {
			if v.Routes[ri].ID == routeID {
				return &v.Routes[ri], v, true
			}
		}
	}
	return nil, nil, false
}

// CooldownFor returns the configured cooldown for a route, falling back
// to the vendor default for its auth type.
func (c *Config) CooldownFor(r *Route, v *Vendor) time.Duration {
	if r.CooldownMinutes > 0 {
		return time.Duration(r.CooldownMinutes) * time.Minute
	}
	switch r.AuthType {
	case AuthOAuth:
		return time.Duration(v.OAuthCooldownMinutes) * time.Minute
	default:
		return time.Duration(v.APIKeyCooldownMinutes) * time.Minute
	}
}

// StackIndex returns the position of a route id in the preference stack,
// or -1 if it is not referenced.
func (c *Config) StackIndex(routeID string) int {
	for i, e := range c.PreferenceStack {
		if e.RouteID == routeID {
			return i
		}
	}
	return -1
}
