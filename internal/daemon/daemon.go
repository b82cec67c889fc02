// Package daemon wires the components together and manages the askrelayd
// process lifecycle.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/askrelay/daemon/internal/api"
	"github.com/askrelay/daemon/internal/bridge"
	"github.com/askrelay/daemon/internal/config"
	"github.com/askrelay/daemon/internal/logging"
	"github.com/askrelay/daemon/internal/questions"
	"github.com/askrelay/daemon/internal/scheduler"
	"github.com/askrelay/daemon/internal/telegram"
	"github.com/askrelay/daemon/internal/tmux"
)

// Daemon manages the askrelayd daemon lifecycle.
type Daemon struct {
	dir        string
	server     *api.Server
	logger     *logging.Logger
	config     *config.Config
	version    string
	shutdownCh chan struct{}

	// Components
	store    *questions.Store
	client   *telegram.Client
	bridge   *bridge.Bridge
	listener *telegram.Listener
	sweeper  *scheduler.Sweeper
	injector *tmux.Injector
}

// New creates a new daemon using configuration from dir.
func New(dir, version string) (*Daemon, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var logger *logging.Logger
	if cfg.LogFile != "" {
		logger, err = logging.New(cfg.LogFile)
	} else {
		logger, err = logging.New(filepath.Join(dir, "askrelayd.log"))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.SetLevel(logging.ParseLevel(cfg.LogLevel))

	server := api.NewServer(cfg.HTTPAddr(), logger)

	store := questions.NewStore(logger)
	injector := tmux.NewInjector(logger, cfg.InjectDelay(), cfg.TmuxTimeout())
	client := telegram.NewClient(cfg.TelegramBotToken)
	br := bridge.New(store, client, injector, cfg.TelegramChatID, logger)
	listener := telegram.NewListener(client, cfg.TelegramChatID, br, logger)

	sweeper := scheduler.NewSweeper(store, logger)
	sweeper.SetInterval(cfg.SweepInterval())
	sweeper.SetMaxAge(cfg.QuestionTimeout())

	return &Daemon{
		dir:        dir,
		server:     server,
		logger:     logger,
		config:     cfg,
		version:    version,
		shutdownCh: make(chan struct{}),
		store:      store,
		client:     client,
		bridge:     br,
		listener:   listener,
		sweeper:    sweeper,
		injector:   injector,
	}, nil
}

// Run starts the daemon and blocks until shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.checkAndCleanStale(); err != nil {
		return err
	}

	if err := d.writePIDFile(); err != nil {
		return err
	}
	defer d.removePIDFile()

	d.registerHandlers()

	if err := d.server.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	d.logger.Info("daemon started",
		"addr", d.server.Addr(),
		"chat_id", d.config.TelegramChatID,
		"version", d.version,
	)

	d.sweeper.Start()
	defer d.sweeper.Stop()

	// The listener long-polls until its context is cancelled.
	listenerCtx, cancelListener := context.WithCancel(ctx)
	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)
		if err := d.listener.Run(listenerCtx); err != nil && listenerCtx.Err() == nil {
			d.logger.Error("listener exited", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		d.logger.Info("context cancelled, shutting down")
	case sig := <-sigCh:
		d.logger.Info("received signal, shutting down", "signal", sig.String())
	case <-d.shutdownCh:
		d.logger.Info("shutdown requested")
	}

	cancelListener()
	<-listenerDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.server.Stop(shutdownCtx); err != nil {
		d.logger.Error("failed to stop server", "error", err)
		return err
	}

	d.logger.Info("daemon stopped")
	return nil
}

// Shutdown triggers a graceful shutdown of the daemon.
func (d *Daemon) Shutdown() {
	close(d.shutdownCh)
}

// pidFilePath returns the path to the PID file.
func (d *Daemon) pidFilePath() string {
	return filepath.Join(d.dir, "askrelayd.pid")
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	pid := os.Getpid()
	content := fmt.Sprintf("%d\n", pid)
	if err := os.WriteFile(d.pidFilePath(), []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() {
	os.Remove(d.pidFilePath())
}

// checkAndCleanStale checks for a stale daemon and cleans up if necessary.
func (d *Daemon) checkAndCleanStale() error {
	pidFile := d.pidFilePath()

	data, err := os.ReadFile(pidFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		os.Remove(pidFile)
		return nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		os.Remove(pidFile)
		return nil
	}

	// On Unix, FindProcess always succeeds. Signal 0 checks whether the
	// process actually exists.
	if err := process.Signal(syscall.Signal(0)); err != nil {
		d.logger.Info("cleaning up stale daemon", "pid", pid)
		os.Remove(pidFile)
		return nil
	}

	return fmt.Errorf("daemon already running with PID %d", pid)
}

// registerHandlers sets up the HTTP endpoints.
func (d *Daemon) registerHandlers() {
	d.server.Router().Post("/shutdown", d.handleShutdown)

	apiHandlers := api.NewHandlers(d.store, d.version)
	apiHandlers.Register(d.server)

	// Hook endpoints. The catch-all POST route ranks below static routes,
	// so it cannot shadow /shutdown or /health.
	hookHandlers := bridge.NewHandlers(d.bridge, d.logger)
	hookHandlers.Register(d.server)
}

// handleShutdown triggers a graceful shutdown.
func (d *Daemon) handleShutdown(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})

	// Trigger shutdown in a goroutine so the response can be sent.
	go d.Shutdown()
}

// Dir returns the configuration directory.
func (d *Daemon) Dir() string {
	return d.dir
}

// Version returns the daemon version.
func (d *Daemon) Version() string {
	return d.version
}

// Config returns the daemon configuration.
func (d *Daemon) Config() *config.Config {
	return d.config
}
