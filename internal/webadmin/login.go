// ABOUTME: Login, MFA and logout handlers for the console
// ABOUTME: Drives the client's session store and records each outcome in the audit log

package webadmin

import (
	"errors"
	"net/http"

	"github.com/2389/keyconsole/internal/session"
	"github.com/2389/keyconsole/internal/store"
)

// handleLoginPage renders the login form, with the code field when a second
// factor is pending
func (a *Admin) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	c := getClient(r)
	_, csrfToken := a.ensureCSRFToken(w, r)
	if c.session.Authenticated() {
		http.Redirect(w, r, session.RootPath, http.StatusSeeOther)
		return
	}

	view := loginView{}
	if c.session.Phase() == session.PhaseAwaitingMFA {
		email, _, _ := c.heldCredentials()
		view.Email = email
		view.RequiresMFA = true
		view.Error = loginMFAMessage
	}
	a.renderLoginPage(w, http.StatusOK, view, csrfToken)
}

// handleLogin processes the login form submission
func (a *Admin) handleLogin(w http.ResponseWriter, r *http.Request) {
	c := getClient(r)
	_, csrfToken := a.ensureCSRFToken(w, r)
	awaitingMFA := c.session.Phase() == session.PhaseAwaitingMFA

	form := bindLoginForm(r)
	if awaitingMFA && form.Password == "" {
		if email, password, ok := c.heldCredentials(); ok && (form.Email == "" || form.Email == email) {
			form.Email = email
			form.Password = password
		}
	}

	if !a.limiter.Allow(r) {
		a.metrics.login(loginThrottled)
		a.logger.Warn("login throttled", "remote", remoteHost(r), "client", c.id)
		a.renderLoginPage(w, http.StatusTooManyRequests, loginView{
			Email:       form.Email,
			RequiresMFA: awaitingMFA,
			Error:       loginThrottledText,
		}, csrfToken)
		return
	}

	if err := a.validate.Struct(form); err != nil {
		a.metrics.login(loginInvalid)
		a.renderLoginPage(w, http.StatusBadRequest, loginView{
			Email:       form.Email,
			RequiresMFA: awaitingMFA,
			Error:       loginFailedMessage,
			Detail:      validationMessage(err),
		}, csrfToken)
		return
	}

	err := c.session.Login(r.Context(), form.Email, form.Password, form.MFAToken)
	switch {
	case err == nil:
		c.clearCredentials()
		a.metrics.login(loginSucceeded)
		a.recordAudit(r.Context(), store.AuditEntry{
			ClientID: c.id,
			Actor:    form.Email,
			Action:   store.AuditLogin,
		})
		http.Redirect(w, r, c.nav.Take(session.RootPath), http.StatusSeeOther)

	case errors.Is(err, session.ErrMFARequired):
		c.holdCredentials(form.Email, form.Password)
		a.metrics.login(loginMFARequired)
		a.recordAudit(r.Context(), store.AuditEntry{
			ClientID: c.id,
			Actor:    form.Email,
			Action:   store.AuditMFAChallenge,
			Detail:   map[string]any{"code_supplied": form.MFAToken != ""},
		})
		a.renderLoginPage(w, http.StatusOK, loginView{
			Email:       form.Email,
			RequiresMFA: true,
			Error:       loginMFAMessage,
		}, csrfToken)

	default:
		retryMFA := c.session.Phase() == session.PhaseAwaitingMFA
		if !retryMFA {
			c.clearCredentials()
		}
		a.metrics.login(loginFailed)
		detail := c.session.LastError()
		a.recordAudit(r.Context(), store.AuditEntry{
			ClientID: c.id,
			Actor:    form.Email,
			Action:   store.AuditLoginFailed,
			Detail:   map[string]any{"reason": detail},
		})
		a.renderLoginPage(w, http.StatusUnauthorized, loginView{
			Email:       form.Email,
			RequiresMFA: retryMFA,
			Error:       loginFailedMessage,
			Detail:      detail,
		}, csrfToken)
	}
}

// handleLogout ends the session and drops the client's cached view state
func (a *Admin) handleLogout(w http.ResponseWriter, r *http.Request) {
	c := getClient(r)
	actor := c.session.State().Identity

	c.session.Logout(r.Context())
	c.resetView()
	c.clearCredentials()

	a.recordAudit(r.Context(), store.AuditEntry{
		ClientID: c.id,
		Actor:    actor,
		Action:   store.AuditLogout,
	})
	http.Redirect(w, r, c.nav.Take(session.LoginPath), http.StatusSeeOther)
}
