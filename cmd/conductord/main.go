package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"conductor/internal/config"
	"conductor/internal/daemon"
	"conductor/internal/ipc"
	"conductor/internal/journal"
	"conductor/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to the conductor config file")
	logLevel := flag.String("log-level", "", "override the configured log level")
	flag.Parse()

	if err := run(*configPath, *logLevel); err != nil {
		log.Fatalf("conductord: %v", err)
	}
}

func run(configPath, logLevel string) error {
	signalCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger, err := logging.NewAt(level, cfg.Logging.Format, cfg.Paths.LogDir)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logPreflight(logger, cfg)

	pidPath := pidFilePath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := journal.Open(cfg.JournalPath())
	if err != nil {
		logger.Error("open event journal", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, store, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	select {
	case <-signalCtx.Done():
		logger.Info("signal received, shutting down",
			logging.String(logging.FieldEventType, "daemon_signal"))
	case <-ipcServer.ShutdownRequested():
		logger.Info("shutdown requested over IPC",
			logging.String(logging.FieldEventType, "daemon_shutdown_requested"))
	}

	d.Stop(context.Background())
	return nil
}
