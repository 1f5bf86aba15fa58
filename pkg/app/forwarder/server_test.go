package forwarder

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smaghili/eitaa-forwarder/pkg/config"
	"github.com/smaghili/eitaa-forwarder/pkg/eitaa"
	"github.com/smaghili/eitaa-forwarder/pkg/state"
)

type fakeWatermarks map[string]string

func (f fakeWatermarks) Peek(id string) (string, bool) {
	v, ok := f[id]
	return v, ok
}

type fakeErrors map[string]int

func (f fakeErrors) Peek(id string) int { return f[id] }

func newStatus(ready *bool) statusSource {
	return statusSource{
		channels: func() []config.ChannelConfig {
			return []config.ChannelConfig{
				{ID: "news", Name: "News", Status: config.ChannelStatusActive},
				{ID: "old", Status: config.ChannelStatusDisabled},
			}
		},
		watermarks: fakeWatermarks{"news": "1042"},
		errors:     fakeErrors{"old": 2},
		session:    func() eitaa.SessionState { return eitaa.SessionLoggedIn },
		ready:      func() bool { return *ready },
		pending:    func() int { return 3 },
	}
}

func TestRouter_HealthAndReady(t *testing.T) {
	ready := false
	h := newRouter(newStatus(&ready), zap.NewNop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready = true
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "READY", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRouter_Status(t *testing.T) {
	ready := true
	h := newRouter(newStatus(&ready), zap.NewNop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"session": "logged_in",
		"ready": true,
		"pending": 3,
		"channels": [
			{"id": "news", "name": "News", "status": "active", "last_message_id": "1042", "error_count": 0},
			{"id": "old", "status": "disabled", "error_count": 2}
		]
	}`, rec.Body.String())
}

func newTestServer(t *testing.T, showBrowser bool) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Paths: config.PathsConfig{
			SessionFile:     "auth.json",
			ImagesDir:       "channel_images",
			LastMessageFile: "state/last_message.json",
			ErrorCountFile:  "state/error_count.json",
		}.Resolve(dir),
	}
	return NewServer(cfg, Options{ConfigPath: filepath.Join(dir, "config.yaml"), ShowBrowser: showBrowser}), dir
}

func TestPrepareFiles_InitializesState(t *testing.T) {
	s, dir := newTestServer(t, false)
	logger := zap.NewNop()

	err := s.prepareFiles(logger, s.cfg.Paths,
		state.NewWatermarkStore(s.cfg.Paths.LastMessageFile, logger),
		state.NewErrorCounter(s.cfg.Paths.ErrorCountFile, logger))
	require.NoError(t, err)

	for _, name := range []string{"state/last_message.json", "state/error_count.json"} {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.JSONEq(t, "{}", string(raw))
	}
	assert.DirExists(t, filepath.Join(dir, "channel_images"))
	assert.NoFileExists(t, filepath.Join(dir, "auth.json"))
}

func TestPrepareFiles_ShowBrowserCreatesSessionFile(t *testing.T) {
	s, dir := newTestServer(t, true)
	logger := zap.NewNop()

	err := s.prepareFiles(logger, s.cfg.Paths,
		state.NewWatermarkStore(s.cfg.Paths.LastMessageFile, logger),
		state.NewErrorCounter(s.cfg.Paths.ErrorCountFile, logger))
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, "auth.json"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestRun_NilConfig(t *testing.T) {
	assert.Error(t, NewServer(nil, Options{}).Run())
}

func TestRouter_StatusDoesNotRewriteStateFiles(t *testing.T) {
	dir := t.TempDir()
	wmPath := filepath.Join(dir, "last_message.json")
	ecPath := filepath.Join(dir, "error_count.json")
	require.NoError(t, os.WriteFile(wmPath, []byte("{not json"), 0o644))

	status := newStatus(new(bool))
	status.watermarks = state.NewWatermarkStore(wmPath, zap.NewNop())
	status.errors = state.NewErrorCounter(ecPath, zap.NewNop())
	h := newRouter(status, zap.NewNop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	raw, err := os.ReadFile(wmPath)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(raw))
	_, err = os.Stat(ecPath)
	assert.True(t, os.IsNotExist(err))
}
