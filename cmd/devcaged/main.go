package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/devcage/devcage/internal/api"
	"github.com/devcage/devcage/internal/config"
	"github.com/devcage/devcage/internal/ops"
	"github.com/devcage/devcage/internal/runtime"
	"github.com/devcage/devcage/internal/scripts"
)

// Version information (set during build)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("devcaged %s (%s) built on %s\n", Version, Commit, BuildDate)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	logger.WithFields(logrus.Fields{
		"version":    Version,
		"commit":     Commit,
		"build_date": BuildDate,
	}).Info("starting devcaged")

	store := config.NewStore(cfg)

	clients := runtime.NewClientManager(runtime.ClientConfig{
		Host:        cfg.Docker.Host,
		APIVersion:  cfg.Docker.APIVersion,
		PingTimeout: cfg.Docker.PingTimeout,
		Logger:      logger,
	})

	adapter := runtime.NewDockerAdapter(runtime.AdapterOptions{
		Clients:     clients,
		Logger:      logger,
		StopTimeout: cfg.Docker.StopTimeout,
	})

	runner := scripts.NewRunner(scripts.RunnerOptions{
		Execer: adapter,
		Config: scripts.Config{
			InitTimeout:    cfg.Scripts.InitTimeout,
			HaltTimeout:    cfg.Scripts.HaltTimeout,
			MaxAttempts:    cfg.Scripts.MaxAttempts,
			RetryDelay:     cfg.Scripts.RetryDelay,
			MaxOutputLines: cfg.Scripts.MaxOutputLines,
		},
		Logger: logger,
	})

	orchestrator := ops.NewOrchestrator(ops.Options{
		Adapter:       adapter,
		Resolver:      store,
		Runner:        runner,
		Logger:        logger,
		MaxConcurrent: cfg.Operations.MaxConcurrent,
		Retention:     cfg.Operations.Retention,
		SweepInterval: cfg.Operations.SweepInterval,
		ReadyTimeout:  cfg.Operations.ReadyTimeout,
		CancelGrace:   cfg.Operations.CancelGrace,
	})

	coordinator := ops.NewCoordinator(orchestrator, store, adapter)

	server, err := api.NewServer(api.ServerConfig{
		Config:       cfg,
		Logger:       logger,
		Adapter:      adapter,
		Clients:      clients,
		Orchestrator: orchestrator,
		Coordinator:  coordinator,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize API server")
	}

	if err := server.Start(); err != nil {
		logger.WithError(err).Fatal("failed to start API server")
	}

	server.Wait()
}

// initLogger configures logrus from the logging section.
func initLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.WithError(err).Warn("invalid log level, defaulting to info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}
