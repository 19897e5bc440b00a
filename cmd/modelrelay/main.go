package main

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/modelrelay/modelrelay/internal/config"
	. "github.com/modelrelay/modelrelay/internal/logging"
	"github.com/modelrelay/modelrelay/internal/state"
)

const version = "0.1.0"

// The CLI is a read-only inspection surface. The live router runs
// embedded in a client host; this binary examines the same config and
// state files from the outside.

type cli struct {
	GlobalConfig  string `help:"Global config path." type:"path" placeholder:"PATH"`
	ProjectConfig string `help:"Project config path." type:"path" placeholder:"PATH"`
	StatePath     string `help:"Runtime state path." type:"path" placeholder:"PATH"`
	Debug         bool   `help:"Enable debug logging."`

	Status   statusCmd   `cmd:"" help:"Show configured routes and cooldowns."`
	Events   eventsCmd   `cmd:"" help:"Show recent routing decision events."`
	Validate validateCmd `cmd:"" help:"Load and validate configuration."`
	Version  versionCmd  `cmd:"" help:"Print version."`
}

func (c *cli) paths() config.Paths {
	wd, _ := os.Getwd()
	paths := config.DefaultPaths(wd)
	if c.GlobalConfig != "" {
		paths.Global = c.GlobalConfig
	}
	if c.ProjectConfig != "" {
		paths.Project = c.ProjectConfig
	}
	return paths
}

func (c *cli) statePath() string {
	if c.StatePath != "" {
		return c.StatePath
	}
	home, _ := os.UserHomeDir()
	return home + "/.modelrelay/state.json"
}

type statusCmd struct{}

func (s *statusCmd) Run(c *cli) error {
	cfg, err := config.Load(c.paths())
	if err != nil {
		return err
	}
	store := state.Open(c.statePath())
	now := time.Now()

	if !cfg.Enabled {
		fmt.Println("failover: disabled")
	} else {
		fmt.Println("failover: enabled")
	}
	fmt.Println("routes:")
	for i, entry := range cfg.PreferenceStack {
		route, vendor, ok := cfg.FindRoute(entry.RouteID)
		if !ok {
			fmt.Printf("  %d. %s (unknown route)\n", i+1, entry.RouteID)
			continue
		}
		line := fmt.Sprintf("  %d. %s (%s/%s)", i+1, route.Label, vendor.Name, route.AuthType)
		if entry.Model != "" {
			line += " model=" + entry.Model
		}
		if until, ok := store.CooldownUntil(route.ID); ok && until.After(now) {
			line += " cooldown until " + until.Format("15:04:05")
		}
		fmt.Println(line)
	}
	if h := store.Holdoff(); !h.IsZero() && h.After(now) {
		fmt.Printf("return holdoff until %s\n", h.Format("15:04:05"))
	}
	return nil
}

type eventsCmd struct {
	Limit int `help:"Max events to show." default:"20"`
}

func (e *eventsCmd) Run(c *cli) error {
	store := state.Open(c.statePath())
	evs := store.Events(e.Limit)
	if len(evs) == 0 {
		fmt.Println("no routing events recorded")
		return nil
	}
	for _, ev := range evs {
		ts := time.UnixMilli(ev.TS).Format("2006-01-02 15:04:05")
		fmt.Printf("%s [%s] %s %s\n", ts, ev.Level, ev.Kind, ev.Message)
	}
	return nil
}

type validateCmd struct{}

func (v *validateCmd) Run(c *cli) error {
	cfg, err := config.Load(c.paths())
	if err != nil {
		return err
	}
	fmt.Printf("config ok: %d vendors, %d routes in stack\n", len(cfg.Vendors), len(cfg.PreferenceStack))
	for _, entry := range cfg.PreferenceStack {
		if _, _, ok := cfg.FindRoute(entry.RouteID); !ok {
			return fmt.Errorf("preference stack references unknown route %q", entry.RouteID)
		}
	}
	return nil
}

type versionCmd struct{}

func (v *versionCmd) Run(c *cli) error {
	fmt.Printf("modelrelay %s\n", version)
	return nil
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("modelrelay"),
		kong.Description("Provider failover router inspection tool."),
		kong.UsageOnError(),
	)

	level := LevelInfo
	if c.Debug {
		level = LevelDebug
	}
	Init(&Config{Level: level, TimeFormat: "15:04:05"})

	if err := ctx.Run(&c); err != nil {
		L_fatal("command failed: %v", err)
	}
}
