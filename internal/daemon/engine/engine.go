// Package engine assembles the daemon from its configuration and runs it.
package engine

import (
	"context"
	"errors"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/grovetools/cowork/config"
	"github.com/grovetools/cowork/internal/contextfile"
	"github.com/grovetools/cowork/internal/daemon/server"
	"github.com/grovetools/cowork/internal/daemon/store"
	"github.com/grovetools/cowork/internal/daemon/transcript"
	"github.com/grovetools/cowork/internal/executor"
	"github.com/grovetools/cowork/internal/rooms"
	"github.com/grovetools/cowork/pkg/daemon"
	"github.com/grovetools/cowork/pkg/paths"
	"github.com/grovetools/cowork/version"
)

// Engine owns the executor, room broadcaster, activity store and HTTP
// server of one daemon.
type Engine struct {
	logger *logrus.Entry
	files  []string
	flags  *pflag.FlagSet

	mu  sync.Mutex
	cfg *config.Config

	contexts    *contextfile.Manager
	executor    *executor.Executor
	broadcaster *rooms.Broadcaster
	store       *store.Store
	server      *server.Server

	// Debounce for the config watcher; zero uses daemon.DefaultDebounce.
	Debounce time.Duration
}

// New builds an Engine from cfg. files are the configuration files cfg
// was loaded from, in merge order; they are watched for changes.
func New(cfg *config.Config, files []string, logger *logrus.Entry) *Engine {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	contexts := contextfile.NewManager(cfg.Context.FileName, cfg.Context.MaxLines, logger.WithField("component", "context"))
	contexts.SetEnabled(cfg.Context.Enabled)

	exec := executor.New(cfg.ExecutorOptions(), contexts, nil, logger.WithField("component", "executor"))
	broadcaster := rooms.NewBroadcaster(logger.WithField("component", "rooms"))
	st := store.New()

	srv := server.New(logger.WithField("component", "server"), exec, broadcaster, st)
	srv.SetDirectoryPolicy(server.NewListPolicy(cfg.Server.AllowedDirectories))
	srv.SetAllowedOrigins(cfg.Server.AllowedOrigins)
	srv.SetChatStore(transcript.New(paths.TranscriptDir(), logger.WithField("component", "transcript")))

	running := &server.RunningConfig{
		Listen:    cfg.Server.Listen,
		Version:   version.GetInfo().Version,
		StartedAt: time.Now(),
	}
	if len(files) > 0 {
		running.ConfigFile = files[len(files)-1]
	}
	srv.SetRunningConfig(running)

	return &Engine{
		logger:      logger,
		files:       files,
		cfg:         cfg,
		contexts:    contexts,
		executor:    exec,
		broadcaster: broadcaster,
		store:       st,
		server:      srv,
	}
}

// SetFlags records command-line overrides so they survive reloads.
func (e *Engine) SetFlags(fs *pflag.FlagSet) {
	e.flags = fs
}

// Server returns the HTTP server.
func (e *Engine) Server() *server.Server { return e.server }

// Executor returns the executor.
func (e *Engine) Executor() *executor.Executor { return e.executor }

// Store returns the activity store.
func (e *Engine) Store() *store.Store { return e.store }

// Config returns the configuration currently in force.
func (e *Engine) Config() *config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Run listens on the configured address and serves until ctx is canceled.
func (e *Engine) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.Config().Server.Listen)
	if err != nil {
		return err
	}
	return e.RunListener(ctx, ln)
}

// RunListener serves on ln until ctx is canceled, then shuts the server
// down within server.shutdown_timeout and kills any tool still running.
func (e *Engine) RunListener(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return e.shutdown()
	})

	if len(e.files) > 0 {
		watcher, err := daemon.NewConfigWatcher(e.files, e.Debounce, e.Reload)
		if err != nil {
			e.logger.WithError(err).Warn("Config hot reload disabled")
		} else {
			g.Go(func() error {
				watcher.Start(gctx)
				return nil
			})
		}
	}

	return g.Wait()
}

func (e *Engine) shutdown() error {
	timeout := e.Config().Server.ShutdownTimeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := e.server.Shutdown(ctx)
	if err != nil {
		e.logger.WithError(err).Warn("Server did not shut down cleanly")
	}
	if n := e.executor.KillAll(); n > 0 {
		e.logger.WithField("count", n).Info("Killed running tool processes")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Reload re-reads the configuration files after file changed. Only the
// executor limits and the context enabled flag take effect without a
// restart. An invalid file leaves the running configuration untouched.
func (e *Engine) Reload(file string) {
	log := e.logger.WithField("file", file)

	cfg, err := config.LoadFiles(e.files...)
	if err == nil && e.flags != nil {
		err = cfg.ApplyFlags(e.flags)
	}
	if err != nil {
		log.WithError(err).Error("Ignoring invalid configuration")
		return
	}

	e.mu.Lock()
	old := e.cfg
	e.cfg = cfg
	e.mu.Unlock()

	e.executor.SetLimits(cfg.ExecutorOptions())
	e.contexts.SetEnabled(cfg.Context.Enabled)

	if restartRequired(old, cfg) {
		log.Warn("Listener, directory and context file settings change after a restart")
	}
	e.store.BroadcastConfigReload(file)
	log.Info("Configuration reloaded")
}

func restartRequired(old, cur *config.Config) bool {
	return old.Server.Listen != cur.Server.Listen ||
		!slices.Equal(old.Server.AllowedOrigins, cur.Server.AllowedOrigins) ||
		!slices.Equal(old.Server.AllowedDirectories, cur.Server.AllowedDirectories) ||
		old.Context.FileName != cur.Context.FileName ||
		old.Context.MaxLines != cur.Context.MaxLines
}

