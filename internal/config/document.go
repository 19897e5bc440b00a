package config

// Document is the raw on-disk configuration shape, before merging and
// normalization. Boolean scalars are pointers so the merge can tell
// "unset" apart from "false". Legacy fields (Provider/Accounts) carry
// the old single-vendor schema and are translated by Normalize.
type Document struct {
	Enabled           *bool             `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	DefaultVendor     string            `json:"default_vendor,omitempty" yaml:"default_vendor,omitempty"`
	RateLimitPatterns []string          `json:"rate_limit_patterns,omitempty" yaml:"rate_limit_patterns,omitempty"`
	Failover          FailoverDoc       `json:"failover,omitempty" yaml:"failover,omitempty"`
	Vendors           []VendorDoc       `json:"vendors,omitempty" yaml:"vendors,omitempty"`
	PreferenceStack   []StackEntry      `json:"preference_stack,omitempty" yaml:"preference_stack,omitempty"`

	// Legacy single-vendor schema.
	Provider string          `json:"provider,omitempty" yaml:"provider,omitempty"`
	Accounts []LegacyAccount `json:"accounts,omitempty" yaml:"accounts,omitempty"`
}

// FailoverDoc mirrors FailoverConfig with tri-state booleans.
type FailoverDoc struct {
	Scope             string        `json:"scope,omitempty" yaml:"scope,omitempty"`
	ReturnToPreferred ReturnDoc     `json:"return_to_preferred,omitempty" yaml:"return_to_preferred,omitempty"`
	Triggers          TriggersDoc   `json:"triggers,omitempty" yaml:"triggers,omitempty"`
	Context           ContextConfig `json:"context,omitempty" yaml:"context,omitempty"`
}

// ReturnDoc mirrors ReturnConfig with a tri-state enable flag.
type ReturnDoc struct {
	Enabled          *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	MinStableMinutes int   `json:"min_stable_minutes,omitempty" yaml:"min_stable_minutes,omitempty"`
}

// TriggersDoc mirrors Triggers with tri-state flags.
type TriggersDoc struct {
	RateLimit      *bool `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
	QuotaExhausted *bool `json:"quota_exhausted,omitempty" yaml:"quota_exhausted,omitempty"`
	AuthError      *bool `json:"auth_error,omitempty" yaml:"auth_error,omitempty"`
}

// VendorDoc mirrors Vendor with a tri-state auto_retry flag.
type VendorDoc struct {
	Name                  string  `json:"vendor" yaml:"vendor"`
	OAuthCooldownMinutes  int     `json:"oauth_cooldown_minutes,omitempty" yaml:"oauth_cooldown_minutes,omitempty"`
	APIKeyCooldownMinutes int     `json:"api_key_cooldown_minutes,omitempty" yaml:"api_key_cooldown_minutes,omitempty"`
	AutoRetry             *bool   `json:"auto_retry,omitempty" yaml:"auto_retry,omitempty"`
	Routes                []Route `json:"routes,omitempty" yaml:"routes,omitempty"`
}

// LegacyAccount is one entry of the old array-of-accounts schema.
type LegacyAccount struct {
	Auth            string `json:"auth,omitempty" yaml:"auth,omitempty"`
	Label           string `json:"label,omitempty" yaml:"label,omitempty"`
	APIKeyEnv       string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	APIKeyPath      string `json:"api_key_path,omitempty" yaml:"api_key_path,omitempty"`
	APIKey          string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Model           string `json:"model,omitempty" yaml:"model,omitempty"`
	CooldownMinutes int    `json:"cooldown_minutes,omitempty" yaml:"cooldown_minutes,omitempty"`
}

func boolValue(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
