package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/modelrelay/modelrelay/internal/logging"
)

// Paths holds the configuration file locations for a session.
type Paths struct {
	Global  string // e.g. ~/.modelrelay/config.json
	Project string // e.g. .modelrelay/config.json, wins on conflicts
}

// DefaultPaths returns the conventional config locations.
func DefaultPaths(projectDir string) Paths {
	home, _ := os.UserHomeDir()
	return Paths{
		Global:  filepath.Join(home, ".modelrelay", "config.json"),
		Project: filepath.Join(projectDir, ".modelrelay", "config.json"),
	}
}

// Load reads, merges, and normalizes the global and project documents.
// Missing files are fine; a malformed file is an error so the caller
// can keep the last-good config.
func Load(paths Paths) (*Config, error) {
	global, err := readDocument(paths.Global)
	if err != nil {
		return nil, fmt.Errorf("global config: %w", err)
	}
	project, err := readDocument(paths.Project)
	if err != nil {
		return nil, fmt.Errorf("project config: %w", err)
	}

	merged, err := MergeDocuments(global, project)
	if err != nil {
		return nil, err
	}

	cfg := Normalize(merged)
	logging.L_debug("config: loaded",
		"vendors", len(cfg.Vendors),
		"stack", len(cfg.PreferenceStack),
		"enabled", cfg.Enabled)
	return cfg, nil
}

// readDocument parses a JSON or YAML config document. A missing file
// yields an empty document.
func readDocument(path string) (*Document, error) {
	if path == "" {
		return &Document{}, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		// Also try the yaml siblings of a .json path.
		for _, alt := range yamlSiblings(path) {
			if data, err = os.ReadFile(alt); err == nil {
				path = alt
				break
			}
		}
		if err != nil {
			return &Document{}, nil
		}
	} else if err != nil {
		return nil, err
	}

	doc := &Document{}
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		if err := yaml.Unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func yamlSiblings(path string) []string {
	base := strings.TrimSuffix(path, ".json")
	if base == path {
		return nil
	}
	return []string{base + ".yaml", base + ".yml"}
}

// MergeDocuments overlays the project document on the global one.
// Project wins on scalar keys; vendor lists merge by vendor name (and
// their routes by route id); rate-limit pattern lists are unioned.
func MergeDocuments(global, project *Document) (*Document, error) {
	if global == nil {
		global = &Document{}
	}
	if project == nil {
		project = &Document{}
	}

	merged := *global
	merged.Vendors = nil
	merged.RateLimitPatterns = nil

	if err := mergo.Merge(&merged, project, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge config: %w", err)
	}
	// mergo treats a pointer to false as an empty value and skips it, so
	// the tri-state flags must be overlaid by hand: set is set, even to
	// false.
	overlayTriState(&merged, project)

	merged.Vendors = mergeVendors(global.Vendors, project.Vendors)
	merged.RateLimitPatterns = unionStrings(global.RateLimitPatterns, project.RateLimitPatterns)
	if len(project.PreferenceStack) == 0 {
		merged.PreferenceStack = global.PreferenceStack
	}
	return &merged, nil
}

func overlayTriState(dst, src *Document) {
	if src.Enabled != nil {
		dst.Enabled = src.Enabled
	}
	if src.Failover.ReturnToPreferred.Enabled != nil {
		dst.Failover.ReturnToPreferred.Enabled = src.Failover.ReturnToPreferred.Enabled
	}
	if src.Failover.Triggers.RateLimit != nil {
		dst.Failover.Triggers.RateLimit = src.Failover.Triggers.RateLimit
	}
	if src.Failover.Triggers.QuotaExhausted != nil {
		dst.Failover.Triggers.QuotaExhausted = src.Failover.Triggers.QuotaExhausted
	}
	if src.Failover.Triggers.AuthError != nil {
		dst.Failover.Triggers.AuthError = src.Failover.Triggers.AuthError
	}
}

func mergeVendors(global, project []VendorDoc) []VendorDoc {
	out := append([]VendorDoc(nil), global...)
	for _, pv := range project {
		idx := -1
		for i, gv := range out {
			if gv.Name == pv.Name {
				idx = i
				break
			}
		}
		if idx < 0 {
			out = append(out, pv)
			continue
		}
		base := out[idx]
		routes := base.Routes
		base.Routes = nil
		if err := mergo.Merge(&base, pv, mergo.WithOverride); err != nil {
			logging.L_warn("config: vendor merge failed, project vendor wins", "vendor", pv.Name, "error", err)
			out[idx] = pv
			continue
		}
		if pv.AutoRetry != nil {
			base.AutoRetry = pv.AutoRetry
		}
		base.Routes = mergeRoutes(routes, pv.Routes)
		out[idx] = base
	}
	return out
}

func mergeRoutes(global, project []Route) []Route {
	out := append([]Route(nil), global...)
	for _, pr := range project {
		replaced := false
		for i, gr := range out {
			if gr.ID != "" && gr.ID == pr.ID {
				out[i] = pr
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, pr)
		}
	}
	return out
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
