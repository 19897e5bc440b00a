package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/modelrelay/modelrelay/internal/state"
)

// registerBuiltins registers all built-in commands
func registerBuiltins(m *Manager) {
	m.Register(&Command{
		Name:        "/failover",
		Description: "Show failover status and route eligibility",
		Aliases:     []string{"/status"},
		Handler:     handleStatus,
	})

	m.Register(&Command{
		Name:        "/explain",
		Description: "Explain the most recent routing decision",
		Handler:     handleExplain,
	})

	m.Register(&Command{
		Name:        "/events",
		Description: "Show recent routing decision events",
		Usage:       "[limit]",
		Handler:     handleEvents,
	})

	m.Register(&Command{
		Name:        "/route",
		Description: "Switch to a specific route",
		Usage:       "<route> [model]",
		Handler:     handleRoute,
	})

	m.Register(&Command{
		Name:        "/rename",
		Description: "Rename a route's display label",
		Usage:       "<route> <label>",
		Handler:     handleRename,
	})

	m.Register(&Command{
		Name:        "/reorder",
		Description: "Move a route within the preference stack",
		Usage:       "<route> <position>",
		Handler:     handleReorder,
	})

	m.Register(&Command{
		Name:        "/reload",
		Description: "Reload failover configuration",
		Handler:     handleReload,
	})

	m.Register(&Command{
		Name:        "/continue",
		Description: "Start a continuation session",
		Handler:     handleContinue,
	})

	m.Register(&Command{
		Name:        "/help",
		Description: "Show this help",
		Handler:     handleHelp,
	})
}

// handleStatus renders the route table with eligibility verdicts
func handleStatus(ctx context.Context, args *CommandArgs) *CommandResult {
	st := args.Provider.Status()

	var text strings.Builder
	var md strings.Builder

	if !st.Enabled {
		text.WriteString("Failover: disabled\n")
		md.WriteString("*Failover*: disabled\n")
	} else {
		text.WriteString(fmt.Sprintf("Failover: %s\n", st.Phase))
		md.WriteString(fmt.Sprintf("*Failover*: %s\n", st.Phase))
	}
	text.WriteString(fmt.Sprintf("  Usage: %d tokens\n", st.UsageTokens))
	md.WriteString(fmt.Sprintf("Usage: %d tokens\n", st.UsageTokens))
	if !st.Holdoff.IsZero() && st.Holdoff.After(time.Now()) {
		text.WriteString(fmt.Sprintf("  Return holdoff until: %s\n", st.Holdoff.Format("15:04:05")))
		md.WriteString(fmt.Sprintf("Return holdoff until: %s\n", st.Holdoff.Format("15:04:05")))
	}

	text.WriteString("\nRoutes\n")
	md.WriteString("\n*Routes*\n")
	for _, rs := range st.Routes {
		marker := " "
		if rs.Active {
			marker = "*"
		}
		verdict := "eligible"
		if !rs.Eligible {
			verdict = rs.BlockReason
			if !rs.CooldownUntil.IsZero() {
				verdict = fmt.Sprintf("%s until %s", verdict, rs.CooldownUntil.Format("15:04:05"))
			}
		}
		label := rs.Label
		if label == "" {
			label = rs.ID
		}
		text.WriteString(fmt.Sprintf("  %s %d. %s (%s/%s) %s\n", marker, rs.StackIndex+1, label, rs.Vendor, rs.AuthType, verdict))
		md.WriteString(fmt.Sprintf("%s %d. %s (%s/%s) _%s_\n", marker, rs.StackIndex+1, label, rs.Vendor, rs.AuthType, verdict))
	}

	return &CommandResult{
		Text:     text.String(),
		Markdown: md.String(),
	}
}

// handleExplain renders the decision trail since the last trigger/probe
func handleExplain(ctx context.Context, args *CommandArgs) *CommandResult {
	evs := args.Provider.Explain()
	if len(evs) == 0 {
		return &CommandResult{
			Text:     "No routing decisions recorded.",
			Markdown: "No routing decisions recorded.",
		}
	}
	return renderEvents(evs, "Why this route")
}

// handleEvents shows the recent decision event log
func handleEvents(ctx context.Context, args *CommandArgs) *CommandResult {
	limit := 20
	if raw := strings.TrimSpace(args.RawArgs); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return usageError(args, "limit must be a positive number")
		}
		limit = n
	}
	evs := args.Provider.Events(limit)
	if len(evs) == 0 {
		return &CommandResult{
			Text:     "No routing events recorded.",
			Markdown: "No routing events recorded.",
		}
	}
	return renderEvents(evs, "Routing Events")
}

func renderEvents(evs []state.DecisionEvent, title string) *CommandResult {
	var text strings.Builder
	var md strings.Builder
	text.WriteString(title + "\n")
	md.WriteString("*" + title + "*\n")

	for _, ev := range evs {
		ts := time.UnixMilli(ev.TS).Format("01-02 15:04:05")
		level := " "
		if ev.Level == state.SeverityWarning {
			level = "!"
		}
		text.WriteString(fmt.Sprintf("  %s %s [%s] %s\n", level, ts, ev.Kind, ev.Message))
		md.WriteString(fmt.Sprintf("%s `%s` [%s] %s\n", level, ts, ev.Kind, ev.Message))
	}
	return &CommandResult{
		Text:     text.String(),
		Markdown: md.String(),
	}
}

// handleRoute switches to a named route, optionally pinning a model
func handleRoute(ctx context.Context, args *CommandArgs) *CommandResult {
	fields := strings.Fields(args.RawArgs)
	if len(fields) < 1 || len(fields) > 2 {
		return usageError(args, "expected a route id")
	}
	routeID := fields[0]
	modelID := ""
	if len(fields) == 2 {
		modelID = fields[1]
	}

	if err := args.Provider.ForceRoute(routeID, modelID); err != nil {
		return &CommandResult{
			Text:     fmt.Sprintf("Switch failed: %s", err),
			Markdown: fmt.Sprintf("Switch failed: `%s`", err),
			Error:    err,
			ExitCode: 1,
		}
	}
	return &CommandResult{
		Text:     fmt.Sprintf("Switched to %s", routeID),
		Markdown: fmt.Sprintf("Switched to `%s`", routeID),
	}
}

// handleRename changes a route label
func handleRename(ctx context.Context, args *CommandArgs) *CommandResult {
	fields := strings.SplitN(strings.TrimSpace(args.RawArgs), " ", 2)
	if len(fields) != 2 {
		return usageError(args, "expected a route id and a new label")
	}
	routeID := fields[0]
	label := strings.TrimSpace(fields[1])

	if err := args.Provider.RenameRoute(routeID, label); err != nil {
		return &CommandResult{
			Text:     fmt.Sprintf("Rename failed: %s", err),
			Markdown: fmt.Sprintf("Rename failed: `%s`", err),
			Error:    err,
			ExitCode: 1,
		}
	}
	return &CommandResult{
		Text:     fmt.Sprintf("Renamed %s to %q", routeID, label),
		Markdown: fmt.Sprintf("Renamed `%s` to *%s*", routeID, label),
	}
}

// handleReorder moves a route in the preference stack
func handleReorder(ctx context.Context, args *CommandArgs) *CommandResult {
	fields := strings.Fields(args.RawArgs)
	if len(fields) != 2 {
		return usageError(args, "expected a route id and a position")
	}
	routeID := fields[0]
	pos, err := strconv.Atoi(fields[1])
	if err != nil || pos < 1 {
		return usageError(args, "position must be a positive number")
	}

	// User-facing positions are 1-based
	if err := args.Provider.ReorderRoute(routeID, pos-1); err != nil {
		return &CommandResult{
			Text:     fmt.Sprintf("Reorder failed: %s", err),
			Markdown: fmt.Sprintf("Reorder failed: `%s`", err),
			Error:    err,
			ExitCode: 1,
		}
	}
	return &CommandResult{
		Text:     fmt.Sprintf("Moved %s to position %d", routeID, pos),
		Markdown: fmt.Sprintf("Moved `%s` to position %d", routeID, pos),
	}
}

// handleReload reloads configuration from disk
func handleReload(ctx context.Context, args *CommandArgs) *CommandResult {
	if err := args.Provider.Reload(); err != nil {
		return &CommandResult{
			Text:     fmt.Sprintf("Reload failed, keeping last-good config: %s", err),
			Markdown: fmt.Sprintf("Reload failed, keeping last-good config: `%s`", err),
			Error:    err,
			ExitCode: 1,
		}
	}
	return &CommandResult{
		Text:     "Configuration reloaded.",
		Markdown: "Configuration reloaded.",
	}
}

// handleContinue starts a continuation session
func handleContinue(ctx context.Context, args *CommandArgs) *CommandResult {
	if err := args.Provider.StartContinuation(ctx); err != nil {
		return &CommandResult{
			Text:     fmt.Sprintf("Cannot continue: %s", err),
			Markdown: fmt.Sprintf("Cannot continue: `%s`", err),
			Error:    err,
			ExitCode: 1,
		}
	}
	return &CommandResult{
		Text:     "Continuation session started.",
		Markdown: "Continuation session started.",
	}
}

// handleHelp lists registered commands
func handleHelp(ctx context.Context, args *CommandArgs) *CommandResult {
	var text strings.Builder
	var md strings.Builder
	text.WriteString("Available commands\n")
	md.WriteString("*Available commands*\n")

	for _, cmd := range GetManager().List() {
		usage := cmd.Name
		if cmd.Usage != "" {
			usage += " " + cmd.Usage
		}
		text.WriteString(fmt.Sprintf("  %-28s %s\n", usage, cmd.Description))
		md.WriteString(fmt.Sprintf("`%s` %s\n", usage, cmd.Description))
	}
	return &CommandResult{
		Text:     text.String(),
		Markdown: md.String(),
	}
}

func usageError(args *CommandArgs, msg string) *CommandResult {
	text := msg
	if args.Usage != "" {
		text = fmt.Sprintf("%s\nUsage: %s", msg, args.Usage)
	}
	return &CommandResult{
		Text:     text,
		Markdown: text,
		ExitCode: 1,
	}
}
