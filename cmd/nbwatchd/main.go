// nbwatchd watches notebooks opened in an editor for external changes and
// reconciles them against the editor's buffers: echoes of the editor's own
// saves are absorbed, clean documents are reloaded after a short debounce,
// and dirty documents go through the configured conflict policy.
//
// Editors connect over a unix socket to report document lifecycle events
// and to answer reload and prompt requests; nbwatchctl uses the same
// socket for status, configuration, and the change journal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"nbwatchd/internal/config"
	"nbwatchd/internal/fswatch"
	"nbwatchd/internal/host"
	"nbwatchd/internal/ipc"
	"nbwatchd/internal/journal"
	"nbwatchd/internal/logging"
	"nbwatchd/internal/monitor"
	"nbwatchd/internal/notify"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "configuration file path (default: "+config.ConfigPath()+")")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("nbwatchd", version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "nbwatchd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	if configPath == "" {
		configPath = config.ConfigPath()
	}

	cfg, loadErr := config.LoadOrDefault(configPath)

	log, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer log.Close()
	logging.SetDefault(log)

	log.Info("starting", "version", version, "config", configPath)
	if loadErr != nil {
		log.Warn("configuration fell back to defaults", "error", loadErr)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("create data directories: %w", err)
	}

	// Journal failures degrade to running without an audit trail.
	var jour *journal.Journal
	if cfg.Journal.Enabled {
		jour, err = journal.Open(cfg.Journal.Path, cfg.Journal.BusyTimeoutMs)
		if err != nil {
			log.Warn("journal unavailable, continuing without it", "error", err)
			jour = nil
		} else {
			defer jour.Close()
		}
	}

	storage, err := fswatch.New(log.WithComponent("fswatch"))
	if err != nil {
		return fmt.Errorf("start filesystem watcher: %w", err)
	}
	defer storage.Close()

	// The engine is constructed after the handler (it needs the editor
	// bridge, which needs the server); the closure closes the loop.
	var mon *monitor.Monitor
	handler := ipc.NewDaemonHandler(ipc.DaemonHandlerConfig{
		Version: version,
		Config:  cfg,
		Journal: jour,
		Log:     log.WithComponent("ipc"),
		ApplySettings: func(updated *config.Config) {
			if mon != nil {
				mon.UpdateConfig(updated)
			}
		},
	})
	server := ipc.NewServer(ipc.ServerConfig{
		SocketPath:     cfg.IPC.SocketPath,
		Version:        version,
		MaxConnections: cfg.IPC.MaxConnections,
		RequestTimeout: time.Duration(cfg.IPC.TimeoutSec) * time.Second,
		Log:            log.WithComponent("ipc"),
	}, handler)
	handler.SetServer(server)
	bridge := ipc.NewBridge(server)

	notifier := &fanoutNotifier{
		bridge:  bridge,
		desktop: notify.New(log.WithComponent("notify")),
	}

	mon = monitor.New(monitor.Options{
		Config:   cfg,
		Editor:   bridge,
		Storage:  storage,
		Notifier: notifier,
		Journal:  jour,
		Hook:     storage,
		Log:      log.WithComponent("monitor"),
	})
	handler.SetMonitor(mon)
	defer mon.Dispose()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.IPC.Enabled {
		if err := server.Start(); err != nil {
			return fmt.Errorf("start ipc server: %w", err)
		}
		defer server.Stop()
	} else {
		log.Info("ipc disabled; no editor can connect")
	}

	if err := mon.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize monitor: %w", err)
	}

	// Settings file changes apply without a restart. Flipping watching on
	// after a disabled start also works: Initialize is a no-op once started.
	loader := config.NewLoader(configPath)
	loader.OnChange(func(newCfg *config.Config) {
		mon.UpdateConfig(newCfg)
		handler.SetConfig(newCfg)
		if newCfg.Watch.Enabled {
			mon.Initialize(ctx)
		}
	})
	if err := loader.Watch(); err != nil {
		log.Warn("configuration hot reload unavailable", "error", err)
	} else {
		defer loader.Stop()
	}

	maybeShowWelcome(cfg, notifier, log)

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	format := logging.FormatText
	if cfg.Logging.Format == "json" {
		format = logging.FormatJSON
	}

	return logging.New(&logging.Config{
		Level:      level,
		Format:     format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxAge:     cfg.Logging.MaxAgeDays,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
		Component:  "nbwatchd",
	})
}

// maybeShowWelcome surfaces a one-time notice on the first start. A marker
// file in the data directory suppresses it afterwards.
func maybeShowWelcome(cfg *config.Config, notifier host.Notifier, log *logging.Logger) {
	if !cfg.UI.ShowWelcomeBanner {
		return
	}

	marker := filepath.Join(config.DataDir(), ".welcomed")
	if _, err := os.Stat(marker); err == nil {
		return
	}

	notifier.Notify("nbwatchd is running",
		"Notebooks changed outside the editor will be reconciled automatically.")
	if err := os.WriteFile(marker, []byte(time.Now().Format(time.RFC3339)+"\n"), 0o600); err != nil {
		log.Debug("write welcome marker failed", "error", err)
	}
}

// fanoutNotifier prefers the connected editor's notification surface and
// falls back to desktop notifications when no editor is attached.
type fanoutNotifier struct {
	bridge  *ipc.Bridge
	desktop host.Notifier
}

func (n *fanoutNotifier) Notify(title, body string) {
	if n.bridge.Notify(title, body) {
		return
	}
	n.desktop.Notify(title, body)
}
