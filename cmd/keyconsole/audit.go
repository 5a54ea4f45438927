// ABOUTME: The audit command: lists recorded console actions from the audit database
// ABOUTME: Supports filtering by client, action, age and count

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/2389/keyconsole/internal/config"
	"github.com/2389/keyconsole/internal/store"
)

type auditArgs struct {
	clientID string
	action   string
	since    time.Duration
	limit    int
}

// parseAuditArgs supports both "--flag value" and "--flag=value" formats
func parseAuditArgs(args []string) (auditArgs, error) {
	var out auditArgs

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			return out, fmt.Errorf("unexpected argument: %s", arg)
		}

		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if !hasValue {
			if i+1 >= len(args) {
				return out, fmt.Errorf("--%s requires a value", name)
			}
			value = args[i+1]
			i++
		}

		switch name {
		case "client":
			out.clientID = value
		case "action":
			if !store.AuditAction(value).Valid() {
				return out, fmt.Errorf("unknown action %q", value)
			}
			out.action = value
		case "since":
			d, err := time.ParseDuration(value)
			if err != nil || d <= 0 {
				return out, fmt.Errorf("--since must be a positive duration like 24h, got %q", value)
			}
			out.since = d
		case "limit":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return out, fmt.Errorf("--limit must be a positive number, got %q", value)
			}
			out.limit = n
		default:
			return out, fmt.Errorf("unknown flag: --%s", name)
		}
	}

	return out, nil
}

// filter turns parsed flags into a store query relative to now
func (a auditArgs) filter(now time.Time) store.AuditFilter {
	f := store.AuditFilter{Limit: a.limit}
	if a.clientID != "" {
		id := a.clientID
		f.ClientID = &id
	}
	if a.action != "" {
		action := store.AuditAction(a.action)
		f.Action = &action
	}
	if a.since > 0 {
		since := now.Add(-a.since)
		f.Since = &since
	}
	return f
}

func runAudit(ctx context.Context, args []string) error {
	parsed, err := parseAuditArgs(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	dbPath := cfg.Database.Path
	if envPath := os.Getenv("KEYCONSOLE_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	entries, err := s.ListAuditLog(ctx, parsed.filter(time.Now()))
	if err != nil {
		return fmt.Errorf("listing audit log: %w", err)
	}

	printAuditEntries(os.Stdout, entries)
	return nil
}

func actionColor(a store.AuditAction) *color.Color {
	switch a {
	case store.AuditLogin:
		return color.New(color.FgGreen)
	case store.AuditLoginFailed:
		return color.New(color.FgRed, color.Bold)
	case store.AuditMFAChallenge:
		return color.New(color.FgYellow)
	case store.AuditGenerateKey:
		return color.New(color.FgCyan)
	case store.AuditRevokeKey:
		return color.New(color.FgMagenta)
	default:
		return color.New(color.FgWhite)
	}
}

func printAuditEntries(w io.Writer, entries []store.AuditEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No audit entries.")
		return
	}

	gray := color.New(color.FgHiBlack)
	for _, e := range entries {
		client := e.ClientID
		if len(client) > 8 {
			client = client[:8]
		}
		actor := e.Actor
		if actor == "" {
			actor = "-"
		}

		fmt.Fprint(w, gray.Sprint(e.Timestamp.Local().Format("2006-01-02 15:04:05")), "  ")
		fmt.Fprint(w, actionColor(e.Action).Sprintf("%-14s", e.Action), " ")
		fmt.Fprintf(w, "%-28s %s", actor, gray.Sprint(client))
		if e.Target != "" {
			fmt.Fprintf(w, "  %s", e.Target)
		}
		fmt.Fprintln(w)
	}
}
