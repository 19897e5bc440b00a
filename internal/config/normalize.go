package config

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/modelrelay/modelrelay/internal/logging"
)

// Normalize translates a raw (possibly legacy) document into the
// canonical configuration. Guarantees on the result:
//
//   - every route carries a non-empty id, auth_type, and provider_id
//   - vendors with zero usable routes are dropped
//   - the preference stack only references known routes
//   - an empty overall result falls back to the bootstrap vendor/route
//
// Normalizing an already-normalized document is a no-op.
func Normalize(doc *Document) *Config {
	if doc == nil {
		doc = &Document{}
	}

	cfg := &Config{
		Enabled:           boolValue(doc.Enabled, true),
		DefaultVendor:     doc.DefaultVendor,
		RateLimitPatterns: append([]string(nil), doc.RateLimitPatterns...),
		Failover: FailoverConfig{
			Scope: doc.Failover.Scope,
			ReturnToPreferred: ReturnConfig{
				Enabled:          boolValue(doc.Failover.ReturnToPreferred.Enabled, true),
				MinStableMinutes: doc.Failover.ReturnToPreferred.MinStableMinutes,
			},
			Triggers: Triggers{
				RateLimit:      boolValue(doc.Failover.Triggers.RateLimit, true),
				QuotaExhausted: boolValue(doc.Failover.Triggers.QuotaExhausted, true),
				AuthError:      boolValue(doc.Failover.Triggers.AuthError, false),
			},
			Context: doc.Failover.Context,
		},
	}

	vendors := doc.Vendors
	if len(vendors) == 0 && doc.Provider != "" && len(doc.Accounts) > 0 {
		vendors = migrateLegacy(doc)
	}

	for _, vd := range vendors {
		v := normalizeVendor(vd)
		if len(v.Routes) == 0 {
			logging.L_warn("config: dropping vendor with no usable routes", "vendor", vd.Name)
			continue
		}
		cfg.Vendors = append(cfg.Vendors, v)
	}

	if len(cfg.Vendors) == 0 {
		logging.L_info("config: no usable vendors, using bootstrap route")
		cfg.Vendors = []Vendor{bootstrapVendor()}
	}

	cfg.PreferenceStack = normalizeStack(doc.PreferenceStack, cfg)

	applyDefaults(cfg)
	return cfg
}

// migrateLegacy translates the single-vendor array-of-accounts schema
// into the canonical multi-vendor shape with synthesized route ids.
func migrateLegacy(doc *Document) []VendorDoc {
	vendor := VendorDoc{Name: doc.Provider}
	for i, acc := range doc.Accounts {
		auth := AuthType(acc.Auth)
		if auth != AuthOAuth && auth != AuthAPIKey {
			if acc.APIKeyEnv != "" || acc.APIKeyPath != "" || acc.APIKey != "" {
				auth = AuthAPIKey
			} else {
				auth = AuthOAuth
			}
		}
		vendor.Routes = append(vendor.Routes, Route{
			ID:              fmt.Sprintf("%s-%s-%d", doc.Provider, auth, i+1),
			AuthType:        auth,
			Label:           acc.Label,
			APIKeyEnv:       acc.APIKeyEnv,
			APIKeyPath:      acc.APIKeyPath,
			APIKey:          acc.APIKey,
			CooldownMinutes: acc.CooldownMinutes,
		})
	}
	logging.L_info("config: migrated legacy schema", "vendor", doc.Provider, "routes", len(vendor.Routes))
	return []VendorDoc{vendor}
}

func normalizeVendor(vd VendorDoc) Vendor {
	v := Vendor{
		Name:                  strings.TrimSpace(vd.Name),
		OAuthCooldownMinutes:  vd.OAuthCooldownMinutes,
		APIKeyCooldownMinutes: vd.APIKeyCooldownMinutes,
		AutoRetry:             boolValue(vd.AutoRetry, false),
	}
	if v.OAuthCooldownMinutes <= 0 {
		v.OAuthCooldownMinutes = DefaultOAuthCooldownMinutes
	}
	if v.APIKeyCooldownMinutes <= 0 {
		v.APIKeyCooldownMinutes = DefaultAPIKeyCooldownMinutes
	}
	if v.Name == "" {
		return v // no name, no usable routes
	}

	seen := make(map[string]bool)
	for i, r := range vd.Routes {
		if r.AuthType != AuthOAuth && r.AuthType != AuthAPIKey {
			if r.APIKeyEnv != "" || r.APIKeyPath != "" || r.APIKey != "" {
				r.AuthType = AuthAPIKey
			} else {
				r.AuthType = AuthOAuth
			}
		}
		if r.ProviderID == "" {
			r.ProviderID = v.Name
		}
		if r.ID == "" {
			r.ID = fmt.Sprintf("%s-%s-%d", v.Name, r.AuthType, i+1)
		}
		if seen[r.ID] {
			// Duplicate ids would cross-wire cooldown state; keep the
			// first occurrence and give the duplicate a fresh identity.
			fresh := uuid.NewString()
			logging.L_warn("config: duplicate route id", "vendor", v.Name, "id", r.ID, "reassigned", fresh)
			r.ID = fresh
		}
		if r.Label == "" {
			r.Label = fmt.Sprintf("%s (%s)", v.Name, r.AuthType)
		}
		seen[r.ID] = true
		v.Routes = append(v.Routes, r)
	}
	return v
}

func normalizeStack(stack []StackEntry, cfg *Config) []StackEntry {
	var out []StackEntry
	for _, e := range stack {
		if _, _, ok := cfg.FindRoute(e.RouteID); !ok {
			logging.L_warn("config: preference stack references unknown route", "route", e.RouteID)
			continue
		}
		out = append(out, e)
	}
	if len(out) == 0 {
		for _, v := range cfg.Vendors {
			for _, r := range v.Routes {
				out = append(out, StackEntry{RouteID: r.ID})
			}
		}
	}
	return out
}

func applyDefaults(cfg *Config) {
	if cfg.DefaultVendor == "" && len(cfg.Vendors) > 0 {
		cfg.DefaultVendor = cfg.Vendors[0].Name
	}
	if cfg.Failover.ReturnToPreferred.MinStableMinutes <= 0 {
		cfg.Failover.ReturnToPreferred.MinStableMinutes = DefaultMinStableMinutes
	}
	ctx := &cfg.Failover.Context
	if ctx.SameVendorMultiplier <= 0 {
		ctx.SameVendorMultiplier = DefaultSameVendorMultiplier
	}
	if ctx.CrossVendorMultiplier <= 0 {
		ctx.CrossVendorMultiplier = DefaultCrossVendorMultiplier
	}
	if ctx.ReservedHeadroom <= 0 {
		ctx.ReservedHeadroom = DefaultReservedHeadroom
	}
}

// bootstrapVendor is the safe fallback when configuration yields no
// usable routes at all.
func bootstrapVendor() Vendor {
	return Vendor{
		Name:                  "claude",
		OAuthCooldownMinutes:  DefaultOAuthCooldownMinutes,
		APIKeyCooldownMinutes: DefaultAPIKeyCooldownMinutes,
		Routes: []Route{{
			ID:         "claude-oauth",
			AuthType:   AuthOAuth,
			Label:      "Claude (subscription)",
			ProviderID: "anthropic",
		}},
	}
}

// AsDocument converts a canonical config back into a raw document, so a
// normalized config can be re-normalized or written out.
func (c *Config) AsDocument() *Document {
	enabled := c.Enabled
	ret := c.Failover.ReturnToPreferred.Enabled
	rl := c.Failover.Triggers.RateLimit
	qe := c.Failover.Triggers.QuotaExhausted
	ae := c.Failover.Triggers.AuthError

	doc := &Document{
		Enabled:           &enabled,
		DefaultVendor:     c.DefaultVendor,
		RateLimitPatterns: append([]string(nil), c.RateLimitPatterns...),
		Failover: FailoverDoc{
			Scope: c.Failover.Scope,
			ReturnToPreferred: ReturnDoc{
				Enabled:          &ret,
				MinStableMinutes: c.Failover.ReturnToPreferred.MinStableMinutes,
			},
			Triggers: TriggersDoc{RateLimit: &rl, QuotaExhausted: &qe, AuthError: &ae},
			Context:  c.Failover.Context,
		},
		PreferenceStack: append([]StackEntry(nil), c.PreferenceStack...),
	}
	for _, v := range c.Vendors {
		retry := v.AutoRetry
		doc.Vendors = append(doc.Vendors, VendorDoc{
			Name:                  v.Name,
			OAuthCooldownMinutes:  v.OAuthCooldownMinutes,
			APIKeyCooldownMinutes: v.APIKeyCooldownMinutes,
			AutoRetry:             &retry,
			Routes:                append([]Route(nil), v.Routes...),
		})
	}
	return doc
}
