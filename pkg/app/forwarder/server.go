// Package forwarder implements app.Runner for the forwarder process.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/smaghili/eitaa-forwarder/pkg/app/errors"
	apphttp "github.com/smaghili/eitaa-forwarder/pkg/app/http"
	"github.com/smaghili/eitaa-forwarder/pkg/app/httpserver"
	"github.com/smaghili/eitaa-forwarder/pkg/config"
	"github.com/smaghili/eitaa-forwarder/pkg/delivery"
	"github.com/smaghili/eitaa-forwarder/pkg/eitaa"
	"github.com/smaghili/eitaa-forwarder/pkg/eitaa/browser"
	engine "github.com/smaghili/eitaa-forwarder/pkg/forwarder"
	"github.com/smaghili/eitaa-forwarder/pkg/pidfile"
	"github.com/smaghili/eitaa-forwarder/pkg/prompt"
	"github.com/smaghili/eitaa-forwarder/pkg/state"
	"github.com/smaghili/eitaa-forwarder/pkg/telegram"
)

const (
	defaultGracefulShutdownTimeout = 10 * time.Second
	defaultHTTPMiddlewareTimeout   = 30 * time.Second
	defaultHTTPReadTimeout         = 15 * time.Second
	defaultHTTPWriteTimeout        = 15 * time.Second
	defaultHTTPIdleTimeout         = 60 * time.Second
)

// Options are the command line switches of one run
type Options struct {
	ConfigPath string
	// NoSend logs deliveries instead of sending them
	NoSend bool
	// ShowBrowser runs Chrome with a visible window
	ShowBrowser  bool
	ClearSession bool
	Once         bool
	// SendTargets replaces the configured default targets when set
	SendTargets []int64
}

// Server holds configuration for the forwarder process.
type Server struct {
	cfg  *config.Config
	opts Options
}

// NewServer initializes a new forwarder Server.
func NewServer(cfg *config.Config, opts Options) *Server {
	return &Server{cfg: cfg, opts: opts}
}

// Run wires the components, starts the engine and, when monitoring is
// enabled, the operational HTTP server. It blocks until a shutdown signal,
// a fatal error or the end of a one-shot run.
func (s *Server) Run() error {
	if s.cfg == nil {
		return apperrors.ConfigError(nil, "nil config")
	}
	baseDir := filepath.Dir(s.opts.ConfigPath)
	// s.cfg is what gets saved back on status changes; only the copy carries
	// absolute paths
	cfg := s.cfg.Resolved(baseDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return apperrors.ConfigError(err, "create logger")
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting Eitaa to Telegram forwarder",
		zap.String("config", s.opts.ConfigPath),
		zap.Bool("no_send", s.opts.NoSend),
		zap.Bool("show_browser", s.opts.ShowBrowser),
		zap.Bool("once", s.opts.Once))

	if cfg.Paths.PIDFile != "" {
		pid, err := pidfile.Acquire(cfg.Paths.PIDFile)
		if err != nil {
			return apperrors.ConfigError(err, "acquire pid file")
		}
		defer func() {
			if err := pid.Release(); err != nil {
				logger.Warn("Failed to remove pid file", zap.Error(err))
			}
		}()
	}

	watermarks := state.NewWatermarkStore(cfg.Paths.LastMessageFile, logger)
	errCounts := state.NewErrorCounter(cfg.Paths.ErrorCountFile, logger)
	if err := s.prepareFiles(logger, cfg.Paths, watermarks, errCounts); err != nil {
		return err
	}

	targets := cfg.Telegram.DefaultTargets
	if len(s.opts.SendTargets) > 0 {
		targets = s.opts.SendTargets
		logger.Info("Overriding default targets", zap.Int64s("targets", targets))
	}

	p := prompt.Terminal()
	page := browser.New(browser.OptionsFromConfig(cfg, !s.opts.ShowBrowser, p), logger)
	session := eitaa.NewSessionManager(page, cfg.Paths.SessionFile, logger)
	if s.opts.ClearSession {
		if err := session.ClearSession(); err != nil {
			return err
		}
		logger.Info("Session cleared, a new login is required")
	}

	queue := delivery.NewQueue()
	worker := delivery.NewWorker(queue, s.newConnector(logger, baseDir, p), logger,
		delivery.WithSendInterval(cfg.Telegram.SendInterval))

	channels := config.NewFile(s.opts.ConfigPath, s.cfg)
	eng := engine.NewEngine(engine.Components{
		Session:    session,
		Reconciler: eitaa.NewReconciler(page, session, targets, logger),
		Watermarks: watermarks,
		Errors:     errCounts,
		Channels:   channels,
		Worker:     worker,
		Queue:      queue,
	}, engine.OptionsFromConfig(cfg, targets, s.opts.Once), logger)

	g, gctx := errgroup.WithContext(ctx)
	opsCtx, stopOps := context.WithCancel(gctx)
	defer stopOps()

	g.Go(func() error {
		defer stopOps()
		return eng.Run(gctx)
	})

	if cfg.Monitoring.Enabled {
		status := statusSource{
			channels:   channels.Channels,
			watermarks: watermarks,
			errors:     errCounts,
			session:    session.State,
			ready: func() bool {
				return session.State() == eitaa.SessionLoggedIn && worker.IsReady()
			},
			pending: queue.Pending,
		}
		addr := fmt.Sprintf("%s:%d", cfg.Monitoring.Host, cfg.Monitoring.Port)
		srv := newHTTPServer(addr, newRouter(status, logger))
		g.Go(func() error {
			return httpserver.ServeAndWait(opsCtx, logger, srv, defaultGracefulShutdownTimeout)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Forwarder stopped with error",
			zap.String("category", apperrors.CategoryOf(err).String()),
			zap.Error(err))
		return err
	}
	logger.Info("Forwarder stopped")
	return nil
}

// prepareFiles creates or repairs every state file the run depends on
func (s *Server) prepareFiles(logger *zap.Logger, paths config.PathsConfig, watermarks *state.WatermarkStore, errCounts *state.ErrorCounter) error {
	for _, dir := range []string{
		filepath.Dir(paths.LastMessageFile),
		filepath.Dir(paths.ErrorCountFile),
		filepath.Dir(paths.SessionFile),
		paths.ImagesDir,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperrors.ConfigError(err, "create state directory")
		}
	}

	watermarks.Init()
	errCounts.Init()

	_, err := os.Stat(paths.SessionFile)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && s.opts.ShowBrowser:
		if werr := os.WriteFile(paths.SessionFile, nil, 0o600); werr != nil {
			return apperrors.ConfigError(werr, "create session file")
		}
		logger.Info("Created empty session file", zap.String("path", paths.SessionFile))
	case errors.Is(err, os.ErrNotExist):
		logger.Warn("Session file not found, interactive login required",
			zap.String("path", paths.SessionFile))
	default:
		return apperrors.ConfigError(err, "stat session file")
	}
	return nil
}

func (s *Server) newConnector(logger *zap.Logger, baseDir string, p *prompt.Prompter) delivery.Connector {
	if s.opts.NoSend {
		logger.Info("Delivery disabled, messages will only be logged")
		return delivery.NewLogConnector(logger)
	}
	return telegram.New(telegram.OptionsFromConfig(s.cfg.Telegram, baseDir, p), logger)
}

func newRouter(status statusSource, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultHTTPMiddlewareTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !status.ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	r.Handle("/metrics", promhttp.Handler())
	logger.Info("Metrics enabled", zap.String("path", "/metrics"))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", apphttp.HandleError(status.handle))
	})

	return r
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  defaultHTTPReadTimeout,
		WriteTimeout: defaultHTTPWriteTimeout,
		IdleTimeout:  defaultHTTPIdleTimeout,
	}
}
