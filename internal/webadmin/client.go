// ABOUTME: Per-browser console state: session store, key workflow, and view toggles
// ABOUTME: Navigation requested by the session store is queued and drained by handlers

package webadmin

import (
	"log/slog"
	"sync"
	"time"

	"github.com/2389/keyconsole/internal/licensekeys"
	"github.com/2389/keyconsole/internal/session"
)

// Security toggles shown on the Security tab. They live in client memory
// only and are not sent anywhere.
const (
	ToggleTwoFactor     = "two_factor"
	ToggleIPRestriction = "ip_restriction"
	ToggleLoginAlerts   = "login_alerts"
)

var defaultToggles = map[string]bool{
	ToggleTwoFactor:     true,
	ToggleIPRestriction: false,
	ToggleLoginAlerts:   false,
}

// pendingNav records the last navigation the session store asked for.
// Handlers turn it into a redirect.
type pendingNav struct {
	mu   sync.Mutex
	path string
}

func (n *pendingNav) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = path
}

// Take returns the pending path, or fallback when there is none, and clears it
func (n *pendingNav) Take(fallback string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	path := n.path
	n.path = ""
	if path == "" {
		return fallback
	}
	return path
}

// client is one browser's console state
type client struct {
	id       string
	session  *session.Store
	nav      *pendingNav
	verified chan struct{}

	newWorkflow func() *licensekeys.Workflow

	mu              sync.Mutex
	keys            *licensekeys.Workflow
	keysVisited     bool
	toggles         map[string]bool
	bannerDismissed bool

	// held between the password step and the MFA step of a login
	heldEmail    string
	heldPassword string
}

func newClient(id string, b Backend, noticeTimeout time.Duration, logger *slog.Logger) *client {
	logger = logger.With("client", id)
	nav := &pendingNav{}

	newWorkflow := func() *licensekeys.Workflow {
		return licensekeys.New(b, licensekeys.Options{NoticeTimeout: noticeTimeout, Logger: logger})
	}

	c := &client{
		id:          id,
		session:     session.New(b, nav, logger),
		nav:         nav,
		verified:    make(chan struct{}),
		newWorkflow: newWorkflow,
		keys:        newWorkflow(),
		toggles:     make(map[string]bool, len(defaultToggles)),
	}
	for k, v := range defaultToggles {
		c.toggles[k] = v
	}
	return c
}

// workflow returns the current key workflow
func (c *client) workflow() *licensekeys.Workflow {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keys
}

// firstLicenseVisit reports whether the license tab has not been shown
// before, and marks it shown
func (c *client) firstLicenseVisit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keysVisited {
		return false
	}
	c.keysVisited = true
	return true
}

// resetView drops cached key data and view state, used on logout
func (c *client) resetView() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = c.newWorkflow()
	c.keysVisited = false
	c.bannerDismissed = false
}

// flipToggle inverts a security toggle. It returns false for unknown names.
func (c *client) flipToggle(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.toggles[name]
	if !ok {
		return false
	}
	c.toggles[name] = !v
	return true
}

func (c *client) toggleState() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]bool, len(c.toggles))
	for k, v := range c.toggles {
		out[k] = v
	}
	return out
}

func (c *client) dismissBanner() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bannerDismissed = true
}

func (c *client) bannerVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.bannerDismissed
}

// holdCredentials keeps the first-step credentials so the MFA step only
// needs the code
func (c *client) holdCredentials(email, password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heldEmail = email
	c.heldPassword = password
}

func (c *client) heldCredentials() (email, password string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heldEmail, c.heldPassword, c.heldPassword != ""
}

func (c *client) clearCredentials() {
	c.holdCredentials("", "")
}
