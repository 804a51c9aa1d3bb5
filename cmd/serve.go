package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/grovetools/cowork/cli"
	"github.com/grovetools/cowork/config"
	"github.com/grovetools/cowork/internal/daemon/engine"
	"github.com/grovetools/cowork/internal/daemon/pidfile"
	"github.com/grovetools/cowork/logging"
	"github.com/grovetools/cowork/pkg/paths"
)

// NewServeCmd returns the command that runs the daemon in the foreground.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the cowork daemon in the foreground",
		Long: `Starts the HTTP and websocket server that runs the code-generation tool on
behalf of connected clients. Configuration files are watched and limits are
reloaded when they change. SIGINT or SIGTERM stops the daemon gracefully.

Examples:
  # Run with the configuration found from the current directory
  cowork serve

  # Listen on another port with a longer per-request timeout
  cowork serve --listen 127.0.0.1:8080 --timeout 5m
`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, files, err := cli.LoadConfig(cmd)
	if err != nil {
		return err
	}
	logging.Init(cfg)
	logger := logging.NewLogger("cowork")

	if err := paths.EnsureDirs(); err != nil {
		return fmt.Errorf("failed to create state directories: %w", err)
	}

	pidPath := paths.PidFilePath()
	if err := pidfile.Acquire(pidPath); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer func() {
		if err := pidfile.Release(pidPath); err != nil {
			logger.Errorf("Failed to release pidfile: %v", err)
		}
	}()

	if n, err := logging.PruneFiles(logging.LoadConfig(), time.Now()); err != nil {
		logger.Warnf("Failed to prune old log files: %v", err)
	} else if n > 0 {
		logger.WithField("removed", n).Debug("Pruned old log files")
	}

	eng := engine.New(cfg, files, logger)
	eng.SetFlags(cmd.Flags())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"pid":    os.Getpid(),
		"listen": cfg.Server.Listen,
		"tool":   cfg.Tool.Command,
		"config": files,
	}).Info("Starting daemon")

	if err := eng.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("Daemon stopped")
	return nil
}
