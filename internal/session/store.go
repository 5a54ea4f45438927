// ABOUTME: Per-client authentication state machine backed by the remote auth service
// ABOUTME: VerifySession, Login (with MFA challenge), and Logout drive the phase and navigation

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/2389/keyconsole/internal/backend"
)

// Navigation targets
const (
	RootPath  = "/"
	LoginPath = "/login"
)

// Messages recorded in LastError
const (
	MFARequiredMessage = "MFA_REQUIRED"
	LoginFailedMessage = "Login failed"
)

// ErrMFARequired is returned by Login when the auth service wants a second
// factor and none was supplied. Callers re-prompt for the code.
var ErrMFARequired = errors.New("mfa required")

// Phase is the state-machine position of a session
type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseLoggedOut
	PhaseAwaitingMFA
	PhaseLoggedIn
)

func (p Phase) String() string {
	switch p {
	case PhaseUnknown:
		return "unknown"
	case PhaseLoggedOut:
		return "logged_out"
	case PhaseAwaitingMFA:
		return "awaiting_mfa"
	case PhaseLoggedIn:
		return "logged_in"
	}
	return "invalid"
}

// Authenticator is the subset of the backend client the store needs
type Authenticator interface {
	Verify(ctx context.Context, token backend.Token) (bool, error)
	Login(ctx context.Context, token backend.Token, req backend.LoginRequest) (*backend.LoginResponse, error)
	Logout(ctx context.Context, token backend.Token) error
}

// Navigator moves the client to another view
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// State is a point-in-time copy of a Store
type State struct {
	Phase         Phase
	Authenticated bool
	Loading       bool
	LastError     string
	Identity      string
}

// Store holds one client's authentication state. It is safe for concurrent
// use; backend calls are made without holding the lock.
type Store struct {
	auth   Authenticator
	nav    Navigator
	logger *slog.Logger

	mu            sync.Mutex
	phase         Phase
	authenticated bool
	loading       bool
	lastError     string
	token         backend.Token
	identity      string
}

// New creates a store in the Unknown phase with loading set
func New(auth Authenticator, nav Navigator, logger *slog.Logger) *Store {
	if nav == nil {
		nav = NavigatorFunc(func(string) {})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		auth:    auth,
		nav:     nav,
		logger:  logger.With("component", "session"),
		phase:   PhaseUnknown,
		loading: true,
	}
}

// State returns a snapshot of the store
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Phase:         s.phase,
		Authenticated: s.authenticated,
		Loading:       s.loading,
		LastError:     s.lastError,
		Identity:      s.identity,
	}
}

func (s *Store) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Store) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

func (s *Store) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Token returns the backend credential for the current session
func (s *Store) Token() backend.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// VerifySession asks the auth service whether the current token is still a
// live session. Any failure counts as logged out and is not surfaced.
func (s *Store) VerifySession(ctx context.Context) {
	token := s.Token()

	valid, err := s.auth.Verify(ctx, token)
	if err != nil {
		s.logger.Debug("session verification failed", "error", err)
		valid = false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = valid
	s.loading = false
	if valid {
		s.phase = PhaseLoggedIn
	} else {
		s.phase = PhaseLoggedOut
	}
}

// Login submits credentials. When the auth service asks for a second factor
// and otpCode is empty, it returns ErrMFARequired and moves to
// PhaseAwaitingMFA. A code rejected by the auth service leaves the store in
// PhaseAwaitingMFA. On success it navigates to RootPath.
func (s *Store) Login(ctx context.Context, identifier, secret, otpCode string) error {
	s.mu.Lock()
	s.loading = true
	s.lastError = ""
	token := s.token
	s.mu.Unlock()

	resp, err := s.auth.Login(ctx, token, backend.LoginRequest{
		Email:    identifier,
		Password: secret,
		MFAToken: otpCode,
	})

	s.mu.Lock()
	s.loading = false

	if err != nil {
		s.authenticated = false
		// A rejected code keeps the challenge open; the first factor stands.
		var apiErr *backend.APIError
		if otpCode == "" || s.phase != PhaseAwaitingMFA || !errors.As(err, &apiErr) {
			s.phase = PhaseLoggedOut
		}
		s.lastError = failureMessage(err)
		s.mu.Unlock()
		s.logger.Warn("login failed", "identifier", identifier, "error", err)
		return err
	}

	// A code that was supplied but not accepted leaves the challenge open.
	if resp.RequiresMFA {
		s.authenticated = false
		s.phase = PhaseAwaitingMFA
		s.lastError = MFARequiredMessage
		s.token = resp.Token
		s.mu.Unlock()
		s.logger.Info("login requires mfa", "identifier", identifier, "code_supplied", otpCode != "")
		return ErrMFARequired
	}

	s.authenticated = true
	s.phase = PhaseLoggedIn
	s.token = resp.Token
	s.identity = identifier
	s.mu.Unlock()

	s.logger.Info("login succeeded", "identifier", identifier)
	s.nav.Navigate(RootPath)
	return nil
}

// Logout ends the session. Local state is reset whatever the auth service
// answers.
func (s *Store) Logout(ctx context.Context) {
	token := s.Token()

	if err := s.auth.Logout(ctx, token); err != nil {
		s.logger.Warn("logout request failed", "error", err)
	}

	s.mu.Lock()
	s.authenticated = false
	s.loading = false
	s.phase = PhaseLoggedOut
	s.token = ""
	s.identity = ""
	s.lastError = ""
	s.mu.Unlock()

	s.nav.Navigate(LoginPath)
}

// failureMessage picks the operator-facing text for a failed login: the
// server's message, else the transport error, else a generic fallback.
func failureMessage(err error) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return LoginFailedMessage
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return LoginFailedMessage
}
