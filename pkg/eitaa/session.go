package eitaa

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/smaghili/eitaa-forwarder/internal/metrics"
	"go.uber.org/zap"
)

// SessionState is the lifecycle state of the source platform session
type SessionState int

const (
	SessionUninitialized SessionState = iota
	SessionInitialized
	SessionLoggedIn
	SessionExpired
)

func (s SessionState) String() string {
	switch s {
	case SessionUninitialized:
		return "uninitialized"
	case SessionInitialized:
		return "initialized"
	case SessionLoggedIn:
		return "logged_in"
	case SessionExpired:
		return "expired"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// LoginStatus is what a liveness probe observed on the page
type LoginStatus int

const (
	// LoginUnknown means neither the login form nor the chat list was found
	LoginUnknown LoginStatus = iota
	LoginRequired
	LoggedIn
)

// SessionDriver is the automation capability the session manager needs
type SessionDriver interface {
	// Start launches the automation engine and opens the web client
	Start(ctx context.Context) error
	// RestoreSession loads a saved session artifact into the browser
	RestoreSession(ctx context.Context, path string) error
	// ProbeLiveness reloads the client and reports the login state
	ProbeLiveness(ctx context.Context) (LoginStatus, error)
	// InteractiveLogin lets the operator log in
	InteractiveLogin(ctx context.Context) error
	// SaveSession writes the current session artifact to path
	SaveSession(ctx context.Context, path string) error
	// Close releases the automation engine
	Close() error
}

// SessionManager owns the login lifecycle of the source platform
type SessionManager struct {
	driver      SessionDriver
	sessionFile string
	logger      *zap.Logger

	mu    sync.Mutex
	state SessionState
}

// NewSessionManager creates a manager persisting the session at sessionFile
func NewSessionManager(driver SessionDriver, sessionFile string, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		driver:      driver,
		sessionFile: sessionFile,
		logger:      logger.Named("session"),
	}
}

// State returns the current lifecycle state
func (m *SessionManager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *SessionManager) setState(s SessionState) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()
	if prev != s {
		m.logger.Debug("Session state changed",
			zap.Stringer("from", prev),
			zap.Stringer("to", s))
	}
}

// Initialize starts the browser
func (m *SessionManager) Initialize(ctx context.Context) error {
	if err := m.driver.Start(ctx); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	m.setState(SessionInitialized)
	return nil
}

// Login restores the saved session when possible and falls back to an
// interactive login. It reports whether the client ended up logged in.
func (m *SessionManager) Login(ctx context.Context) bool {
	if m.State() == SessionUninitialized {
		m.logger.Error("Login called before Initialize")
		return false
	}

	if m.hasSavedSession() {
		m.logger.Info("Found existing session file", zap.String("path", m.sessionFile))
		if m.restore(ctx) {
			metrics.LoginsTotal.WithLabelValues("restore", "success").Inc()
			m.setState(SessionLoggedIn)
			return true
		}
		metrics.LoginsTotal.WithLabelValues("restore", "failed").Inc()
		m.logger.Warn("Existing session is invalid, need to login again")
		if err := m.ClearSession(); err != nil {
			m.logger.Warn("Failed to remove stale session file", zap.Error(err))
		}
	}

	m.logger.Info("Starting new login process")
	if err := m.driver.InteractiveLogin(ctx); err != nil {
		metrics.LoginsTotal.WithLabelValues("interactive", "failed").Inc()
		m.logger.Error("Interactive login failed", zap.Error(err))
		return false
	}
	if !m.IsLoggedIn(ctx) {
		metrics.LoginsTotal.WithLabelValues("interactive", "failed").Inc()
		return false
	}
	if err := m.driver.SaveSession(ctx, m.sessionFile); err != nil {
		m.logger.Warn("Failed to save session", zap.Error(err))
	}
	metrics.LoginsTotal.WithLabelValues("interactive", "success").Inc()
	m.logger.Info("Logged in", zap.String("session_file", m.sessionFile))
	return true
}

// IsLoggedIn probes the web client. Any probe failure counts as logged out.
func (m *SessionManager) IsLoggedIn(ctx context.Context) bool {
	m.logger.Debug("Checking login status")
	status, err := m.driver.ProbeLiveness(ctx)
	if err != nil {
		m.logger.Error("Error checking login status", zap.Error(err))
		m.markExpired()
		return false
	}

	switch status {
	case LoggedIn:
		m.setState(SessionLoggedIn)
		return true
	case LoginRequired:
		m.logger.Warn("Login page detected, not logged in")
	default:
		m.logger.Warn("Could not determine login status")
	}
	m.markExpired()
	return false
}

// ClearSession deletes the saved session artifact
func (m *SessionManager) ClearSession() error {
	err := os.Remove(m.sessionFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	if err == nil {
		m.logger.Info("Removed session file", zap.String("path", m.sessionFile))
	}
	m.markExpired()
	return nil
}

// Close shuts the browser down
func (m *SessionManager) Close() error {
	if m.State() == SessionUninitialized {
		return nil
	}
	m.setState(SessionUninitialized)
	if err := m.driver.Close(); err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

func (m *SessionManager) restore(ctx context.Context) bool {
	m.logger.Info("Loading saved session")
	if err := m.driver.RestoreSession(ctx, m.sessionFile); err != nil {
		m.logger.Error("Error loading session", zap.Error(err))
		return false
	}
	return m.IsLoggedIn(ctx)
}

func (m *SessionManager) hasSavedSession() bool {
	info, err := os.Stat(m.sessionFile)
	return err == nil && !info.IsDir() && info.Size() > 0
}

func (m *SessionManager) markExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == SessionLoggedIn {
		m.state = SessionExpired
	}
}
