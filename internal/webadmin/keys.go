// ABOUTME: Tab shell and license key handlers for the console
// ABOUTME: Every POST applies a workflow action then redirects back to the filtered view

package webadmin

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/2389/keyconsole/internal/backend"
	"github.com/2389/keyconsole/internal/store"
)

// Tabs in display order
const (
	tabLicense  = "license"
	tabSecurity = "security"
	tabSettings = "settings"
)

var tabs = []struct {
	key   string
	label string
}{
	{tabLicense, "License Keys"},
	{tabSecurity, "Security"},
	{tabSettings, "Settings"},
}

var toggleInfo = []struct {
	name        string
	label       string
	description string
}{
	{ToggleTwoFactor, "Two-Factor Authentication", "Require a verification code at every sign in"},
	{ToggleIPRestriction, "IP Restriction", "Only allow access from approved network addresses"},
	{ToggleLoginAlerts, "Login Alerts", "Send an alert when a new sign in is detected"},
}

const recentActivityLimit = 10

// parseTab maps a tab query value to a known tab, defaulting to license keys
func parseTab(raw string) string {
	for _, t := range tabs {
		if t.key == raw {
			return raw
		}
	}
	return tabLicense
}

// handleShell renders the tabbed console
func (a *Admin) handleShell(w http.ResponseWriter, r *http.Request) {
	c := getClient(r)
	r, csrfToken := a.ensureCSRFToken(w, r)
	tab := parseTab(r.URL.Query().Get("tab"))

	data := shellData{
		baseData:   baseData{CSRFToken: csrfToken},
		Tab:        tab,
		Identity:   c.session.State().Identity,
		ShowBanner: c.bannerVisible(),
		Banner:     a.pages.restrictedAccess,
	}
	for _, t := range tabs {
		data.Tabs = append(data.Tabs, tabItem{Key: t.key, Label: t.label, Active: t.key == tab})
		if t.key == tab {
			data.Title = t.label
		}
	}

	switch tab {
	case tabLicense:
		data.License = a.licenseView(r, c)
	case tabSecurity:
		data.Security = a.securityView(r.Context(), c)
	}

	a.renderShell(w, data)
}

// licenseView loads keys on the first visit and filters the cache
func (a *Admin) licenseView(r *http.Request, c *client) *licenseData {
	wf := c.workflow()
	if c.firstLicenseVisit() {
		err := wf.FetchAll(r.Context(), c.session.Token())
		a.metrics.keyAction("list", err)
	}

	search, status := filterParams(r.URL.Query())
	return &licenseData{
		Search:        search,
		Status:        string(status),
		Statuses:      backend.KeyStatuses,
		ExpiryOptions: backend.ExpiryOptions,
		Snapshot:      wf.Snapshot(search, status),
	}
}

func (a *Admin) securityView(ctx context.Context, c *client) *securityData {
	state := c.toggleState()
	data := &securityData{}
	for _, t := range toggleInfo {
		data.Toggles = append(data.Toggles, toggleItem{
			Name:        t.name,
			Label:       t.label,
			Description: t.description,
			On:          state[t.name],
		})
	}

	if a.audit != nil {
		clientID := c.id
		recent, err := a.audit.ListAuditLog(ctx, store.AuditFilter{ClientID: &clientID, Limit: recentActivityLimit})
		if err != nil {
			a.logger.Error("failed to list audit log", "client", c.id, "error", err)
		}
		data.Recent = recent
	}
	return data
}

// filterParams reads the search text and status filter. An unknown status
// means no status filter.
func filterParams(v url.Values) (string, backend.KeyStatus) {
	search := strings.TrimSpace(v.Get("q"))
	status := backend.KeyStatus(v.Get("status"))
	if !status.Valid() {
		status = ""
	}
	return search, status
}

// licenseRedirect sends the browser back to the license tab with its filters
func licenseRedirect(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	search, status := filterParams(r.PostForm)
	q := url.Values{"tab": {tabLicense}}
	if search != "" {
		q.Set("q", search)
	}
	if status != "" {
		q.Set("status", string(status))
	}
	http.Redirect(w, r, "/?"+q.Encode(), http.StatusSeeOther)
}

func (a *Admin) handleKeysRefresh(w http.ResponseWriter, r *http.Request) {
	c := getClient(r)
	c.firstLicenseVisit()
	err := c.workflow().FetchAll(r.Context(), c.session.Token())
	a.metrics.keyAction("list", err)
	licenseRedirect(w, r)
}

func (a *Admin) handleKeysDialog(w http.ResponseWriter, r *http.Request) {
	c := getClient(r)
	form := dialogForm{Action: r.FormValue("action")}
	if err := a.validate.Struct(form); err != nil {
		http.Error(w, validationMessage(err), http.StatusBadRequest)
		return
	}

	if form.Action == "open" {
		c.workflow().OpenDialog()
	} else {
		c.workflow().CloseDialog()
	}
	licenseRedirect(w, r)
}

func (a *Admin) handleKeysGenerate(w http.ResponseWriter, r *http.Request) {
	c := getClient(r)
	form := generateForm{Expiry: r.FormValue("expiry")}
	if err := a.validate.Struct(form); err != nil {
		http.Error(w, validationMessage(err), http.StatusBadRequest)
		return
	}

	key, err := c.workflow().Generate(r.Context(), c.session.Token(), form.Expiry)
	a.metrics.keyAction("generate", err)
	if err == nil {
		a.recordAudit(r.Context(), store.AuditEntry{
			ClientID: c.id,
			Actor:    c.session.State().Identity,
			Action:   store.AuditGenerateKey,
			Target:   key.Key,
			Detail:   map[string]any{"expiry": form.Expiry},
		})
	}
	licenseRedirect(w, r)
}

func (a *Admin) handleKeysRevoke(w http.ResponseWriter, r *http.Request) {
	c := getClient(r)
	form, err := bindRevokeForm(r)
	if err == nil {
		err = a.validate.Struct(form)
	}
	if err != nil {
		http.Error(w, validationMessage(err), http.StatusBadRequest)
		return
	}

	err = c.workflow().Revoke(r.Context(), c.session.Token(), form.Key, form.Index)
	a.metrics.keyAction("revoke", err)
	if err == nil {
		a.recordAudit(r.Context(), store.AuditEntry{
			ClientID: c.id,
			Actor:    c.session.State().Identity,
			Action:   store.AuditRevokeKey,
			Target:   form.Key,
		})
	}
	licenseRedirect(w, r)
}

func (a *Admin) handleNoticesDismiss(w http.ResponseWriter, r *http.Request) {
	getClient(r).workflow().DismissNotices()
	licenseRedirect(w, r)
}

// handleSecurityToggle flips one of the in-memory security toggles
func (a *Admin) handleSecurityToggle(w http.ResponseWriter, r *http.Request) {
	c := getClient(r)
	name := r.PathValue("name")
	if !c.flipToggle(name) {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/?tab="+tabSecurity, http.StatusSeeOther)
}

func (a *Admin) handleBannerDismiss(w http.ResponseWriter, r *http.Request) {
	getClient(r).dismissBanner()
	http.Redirect(w, r, "/?tab="+parseTab(r.FormValue("tab")), http.StatusSeeOther)
}
