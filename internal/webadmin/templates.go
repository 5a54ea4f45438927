// ABOUTME: Template rendering functions for the console UI
// ABOUTME: Loads templates from the embedded filesystem and renders markdown notices with goldmark

package webadmin

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/keyconsole/internal/assets"
	"github.com/2389/keyconsole/internal/backend"
	"github.com/2389/keyconsole/internal/licensekeys"
	"github.com/2389/keyconsole/internal/store"
)

// Login error texts
const (
	loginMFAMessage    = "Secondary verification required: Please enter your MFA code"
	loginFailedMessage = "Authentication failed: Verify your credentials and try again"
	loginThrottledText = "Too many login attempts. Please wait a moment and try again."
)

// pageSet holds what every render needs beyond the per-page data
type pageSet struct {
	logger           *slog.Logger
	securityNotice   template.HTML
	restrictedAccess template.HTML
}

func newPageSet(logger *slog.Logger) *pageSet {
	return &pageSet{
		logger:           logger,
		securityNotice:   renderMarkdownDoc(logger, "docs/security_notice.md"),
		restrictedAccess: renderMarkdownDoc(logger, "docs/restricted_access.md"),
	}
}

// renderMarkdownDoc converts an embedded markdown file to HTML
func renderMarkdownDoc(logger *slog.Logger, name string) template.HTML {
	src, err := docsFS.ReadFile(name)
	if err != nil {
		logger.Error("failed to read embedded doc", "name", name, "error", err)
		return ""
	}
	var buf bytes.Buffer
	if err := goldmark.Convert(src, &buf); err != nil {
		logger.Error("failed to convert markdown", "name", name, "error", err)
		return ""
	}
	return template.HTML(buf.String())
}

var templateFuncs = template.FuncMap{
	"formatDate": formatDate,
	"stylesheet": func() string { return assets.URL("console.css") },
}

// Date layouts the key service is known to send
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// formatDate renders a backend timestamp as a calendar date. Values that do
// not parse are shown verbatim.
func formatDate(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("Jan 2, 2006")
		}
	}
	// Epoch milliseconds
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC().Format("Jan 2, 2006")
	}
	return raw
}

// Template data types
type baseData struct {
	Title     string
	CSRFToken string
	// Refresh, when set, reloads the page after that many seconds
	Refresh int
}

type loginView struct {
	Email       string
	RequiresMFA bool
	Error       string
	Detail      string
}

type loginData struct {
	baseData
	loginView
	Notice template.HTML
}

type shellData struct {
	baseData
	Tab        string
	Tabs       []tabItem
	Identity   string
	ShowBanner bool
	Banner     template.HTML

	License  *licenseData
	Security *securityData
}

type tabItem struct {
	Key    string
	Label  string
	Active bool
}

type licenseData struct {
	Search        string
	Status        string
	Statuses      []backend.KeyStatus
	ExpiryOptions []backend.ExpiryOption
	licensekeys.Snapshot
}

type securityData struct {
	Toggles []toggleItem
	Recent  []store.AuditEntry
}

type toggleItem struct {
	Name        string
	Label       string
	Description string
	On          bool
}

// render parses base.html plus the named page and executes it. Templates
// are parsed per render, matching how the rest of the admin UI loads them.
func (p *pageSet) render(w http.ResponseWriter, status int, data any, files ...string) {
	patterns := append([]string{"templates/base.html"}, files...)
	tmpl, err := template.New("base.html").Funcs(templateFuncs).ParseFS(templateFS, patterns...)
	if err != nil {
		p.logger.Error("failed to parse templates", "files", files, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		p.logger.Error("failed to render page", "files", files, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderLoginPage renders the login form
func (a *Admin) renderLoginPage(w http.ResponseWriter, status int, view loginView, csrfToken string) {
	data := loginData{
		baseData:  baseData{Title: "Login", CSRFToken: csrfToken},
		loginView: view,
		Notice:    a.pages.securityNotice,
	}
	a.pages.render(w, status, data, "templates/login.html")
}

// renderLoading renders the neutral placeholder shown while a session is
// being verified
func (a *Admin) renderLoading(w http.ResponseWriter) {
	data := baseData{Title: "Loading", Refresh: 1}
	a.pages.render(w, http.StatusOK, data, "templates/loading.html")
}

// renderShell renders the tabbed console
func (a *Admin) renderShell(w http.ResponseWriter, data shellData) {
	a.pages.render(w, http.StatusOK, data,
		"templates/shell.html",
		"templates/partials/license.html",
		"templates/partials/security.html",
		"templates/partials/settings.html",
	)
}
