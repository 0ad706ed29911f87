package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/wudi/runway/internal/config"
	"github.com/wudi/runway/internal/framework"
	"github.com/wudi/runway/internal/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigFileName, "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("runway %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *validateOnly {
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	logger, logCloser, err := logging.New(logging.Config{Level: cfg.LogLevel, Output: "stdout", LogExceptions: cfg.LogExceptions})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	if logCloser != nil {
		defer logCloser.Close()
	}
	logging.SetGlobal(logger)

	logging.Info("starting runway",
		zap.String("version", version),
		zap.String("config", *configPath),
		zap.Int("port", cfg.Port),
		zap.String("dir_targets", cfg.DirTargets),
	)

	server, err := framework.New(cfg).WithLogger(logger).Build()
	if err != nil {
		logging.Error("failed to build server", zap.Error(err))
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		logging.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}
