// ABOUTME: License key list workflow: cached list, filter, generate, revoke, dialog and notices
// ABOUTME: Mutations patch the local cache on success and are not reconciled with the server

package licensekeys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/keyconsole/internal/backend"
)

// Operator-facing notice texts
const (
	MsgFetchFailed    = "Failed to fetch license keys. Please try again."
	MsgRevoked        = "License key revoked successfully"
	MsgRevokeFailed   = "Failed to revoke license key"
	MsgGenerated      = "License key generated successfully"
	MsgGenerateFailed = "Failed to generate license key"
)

// ErrNotActive is returned when revoking a cached key that is no longer Active
var ErrNotActive = errors.New("license key is not active")

// DefaultNoticeTimeout is how long a notice stays visible
const DefaultNoticeTimeout = 6 * time.Second

// KeyService is the subset of the backend client the workflow needs
type KeyService interface {
	ListKeys(ctx context.Context, token backend.Token) ([]backend.LicenseKey, error)
	GenerateKey(ctx context.Context, token backend.Token, expiry backend.Expiry) (*backend.LicenseKey, error)
	RevokeKey(ctx context.Context, token backend.Token, key string) error
}

// NoticeKind distinguishes error and success notices
type NoticeKind string

const (
	NoticeError   NoticeKind = "error"
	NoticeSuccess NoticeKind = "success"
)

// Notice is a transient message shown above the key table
type Notice struct {
	Kind      NoticeKind
	Message   string
	ExpiresAt time.Time
}

// Options configures a Workflow
type Options struct {
	NoticeTimeout time.Duration
	// Now overrides the clock (tests)
	Now    func() time.Time
	Logger *slog.Logger
}

// Workflow holds one client's view of the license key list.
//
// Mutation policy is apply-then-trust: a successful generate appends the
// returned record and a successful revoke marks the entry Revoked locally.
// Neither is confirmed by re-reading the server, so the cache can drift
// until the next FetchAll.
type Workflow struct {
	svc           KeyService
	noticeTimeout time.Duration
	now           func() time.Time
	logger        *slog.Logger

	mu         sync.Mutex
	keys       []backend.LicenseKey
	loading    bool
	loaded     bool
	dialogOpen bool
	notices    map[NoticeKind]Notice
}

// New creates an empty workflow
func New(svc KeyService, opts Options) *Workflow {
	timeout := opts.NoticeTimeout
	if timeout <= 0 {
		timeout = DefaultNoticeTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Workflow{
		svc:           svc,
		noticeTimeout: timeout,
		now:           now,
		logger:        logger.With("component", "licensekeys"),
		keys:          []backend.LicenseKey{},
		notices:       make(map[NoticeKind]Notice),
	}
}

// FetchAll replaces the cache with the server's list. On failure the
// previous cache is kept and an error notice is set.
func (w *Workflow) FetchAll(ctx context.Context, token backend.Token) error {
	w.mu.Lock()
	w.loading = true
	w.mu.Unlock()

	keys, err := w.svc.ListKeys(ctx, token)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.loading = false
	w.loaded = true

	if err != nil {
		w.logger.Error("fetching license keys", "error", err)
		w.setNoticeLocked(NoticeError, MsgFetchFailed)
		return err
	}

	w.keys = append([]backend.LicenseKey(nil), keys...)
	w.logger.Debug("license keys fetched", "count", len(keys))
	return nil
}

// Generate issues a new key. The expiry code is checked before any request
// is made. On success the record is appended and the dialog closes; on
// failure the dialog is left as it was.
func (w *Workflow) Generate(ctx context.Context, token backend.Token, expiry string) (*backend.LicenseKey, error) {
	code, err := backend.ParseExpiry(expiry)
	if err != nil {
		w.mu.Lock()
		w.setNoticeLocked(NoticeError, MsgGenerateFailed)
		w.mu.Unlock()
		return nil, err
	}

	key, err := w.svc.GenerateKey(ctx, token, code)

	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil {
		w.logger.Error("generating license key", "expiry", code, "error", err)
		w.setNoticeLocked(NoticeError, MsgGenerateFailed)
		return nil, err
	}

	w.keys = append(w.keys, *key)
	w.dialogOpen = false
	w.setNoticeLocked(NoticeSuccess, MsgGenerated)
	w.logger.Info("license key generated", "expiry", code)
	return key, nil
}

// Revoke revokes key on the server. The cache entry at index is used if it
// still holds key; otherwise the first entry with that key is. Only Active
// keys are revoked: a cached entry in any other status is refused before any
// request is made. On failure the cache is unchanged.
func (w *Workflow) Revoke(ctx context.Context, token backend.Token, key string, index int) error {
	w.mu.Lock()
	if i := w.locateLocked(key, index); i >= 0 && w.keys[i].Status != backend.KeyStatusActive {
		status := w.keys[i].Status
		w.setNoticeLocked(NoticeError, MsgRevokeFailed)
		w.mu.Unlock()
		w.logger.Warn("refusing to revoke license key", "key", key, "status", status)
		return fmt.Errorf("revoke %s: %w (status %s)", key, ErrNotActive, status)
	}
	w.mu.Unlock()

	err := w.svc.RevokeKey(ctx, token, key)

	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil {
		w.logger.Error("revoking license key", "key", key, "error", err)
		w.setNoticeLocked(NoticeError, MsgRevokeFailed)
		return err
	}

	// The list may have been refreshed while the request was in flight.
	if i := w.locateLocked(key, index); i >= 0 && w.keys[i].Status == backend.KeyStatusActive {
		w.keys[i].Status = backend.KeyStatusRevoked
	}
	w.setNoticeLocked(NoticeSuccess, MsgRevoked)
	w.logger.Info("license key revoked", "key", key)
	return nil
}

func (w *Workflow) locateLocked(key string, index int) int {
	if index >= 0 && index < len(w.keys) && w.keys[index].Key == key {
		return index
	}
	for i := range w.keys {
		if w.keys[i].Key == key {
			return i
		}
	}
	return -1
}

func (w *Workflow) OpenDialog() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dialogOpen = true
}

func (w *Workflow) CloseDialog() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dialogOpen = false
}

// DismissNotices clears both notices
func (w *Workflow) DismissNotices() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.notices)
}

// setNoticeLocked replaces any notice of the same kind
func (w *Workflow) setNoticeLocked(kind NoticeKind, msg string) {
	w.notices[kind] = Notice{
		Kind:      kind,
		Message:   msg,
		ExpiresAt: w.now().Add(w.noticeTimeout),
	}
}

// Keys returns a copy of the cached list
func (w *Workflow) Keys() []backend.LicenseKey {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]backend.LicenseKey(nil), w.keys...)
}

// Loaded reports whether a fetch has completed, successfully or not
func (w *Workflow) Loaded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loaded
}

// Row is a filtered key together with its position in the cache
type Row struct {
	Index int
	backend.LicenseKey
}

// Snapshot is what the license tab renders
type Snapshot struct {
	Rows       []Row
	Total      int
	Loading    bool
	Loaded     bool
	DialogOpen bool
	// Notices holds the unexpired notices, error first
	Notices []Notice
}

// Snapshot filters the cache and drops expired notices
func (w *Workflow) Snapshot(search string, status backend.KeyStatus) Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	var notices []Notice
	for _, kind := range []NoticeKind{NoticeError, NoticeSuccess} {
		n, ok := w.notices[kind]
		if !ok {
			continue
		}
		if !now.Before(n.ExpiresAt) {
			delete(w.notices, kind)
			continue
		}
		notices = append(notices, n)
	}

	var rows []Row
	for i, k := range w.keys {
		if matches(k, search, status) {
			rows = append(rows, Row{Index: i, LicenseKey: k})
		}
	}

	return Snapshot{
		Rows:       rows,
		Total:      len(w.keys),
		Loading:    w.loading,
		Loaded:     w.loaded,
		DialogOpen: w.dialogOpen,
		Notices:    notices,
	}
}

// Filter returns the keys whose Key contains search (case-insensitive) and,
// when status is non-empty, whose Status equals it. Order is preserved.
func Filter(keys []backend.LicenseKey, search string, status backend.KeyStatus) []backend.LicenseKey {
	out := make([]backend.LicenseKey, 0, len(keys))
	for _, k := range keys {
		if matches(k, search, status) {
			out = append(out, k)
		}
	}
	return out
}

func matches(k backend.LicenseKey, search string, status backend.KeyStatus) bool {
	if search != "" && !strings.Contains(strings.ToLower(k.Key), strings.ToLower(search)) {
		return false
	}
	return status == "" || k.Status == status
}
