// Command server runs kawaii from a configuration file.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"

	"example.com/kawaii/v2/internal/config"
	"example.com/kawaii/v2/internal/logger"
	"example.com/kawaii/v2/internal/router"
	"example.com/kawaii/v2/internal/server"
)

func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFilePath := fs.String("config", "", "Path to the configuration file (JSON, TOML or YAML)")
	envFile := fs.String("env-file", ".env", "Path to a .env file with KAWAII_* overrides (ignored if missing)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *configFilePath == "" {
		color.New(color.FgRed).Fprintln(stderr, "Error: Configuration file path must be provided via -config flag.")
		fs.Usage()
		return 2
	}
	absConfigPath, err := filepath.Abs(*configFilePath)
	if err != nil {
		color.New(color.FgRed).Fprintf(stderr, "Error getting absolute path for config file %s: %v\n", *configFilePath, err)
		return 1
	}

	cfg, err := config.LoadConfigWithEnv(absConfigPath, *envFile)
	if err != nil {
		color.New(color.FgRed).Fprintf(stderr, "Failed to load configuration from %s: %v\n", absConfigPath, err)
		return 1
	}

	appLogger, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		color.New(color.FgRed).Fprintf(stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer appLogger.CloseLogFiles()
	appLogger.Info("Configuration loaded", logger.LogFields{"path": absConfigPath, "routes": len(cfg.Routing.Routes)})

	appRouter, err := router.NewRouter(cfg.Routing.Routes, router.StaticHandlerFactory, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialize router", logger.LogFields{"error": err.Error()})
		return 1
	}

	srv, err := server.NewServer(cfg, appLogger, appRouter)
	if err != nil {
		appLogger.Error("Failed to initialize server", logger.LogFields{"error": err.Error()})
		return 1
	}

	appLogger.Info("Starting server", logger.LogFields{"address": *cfg.Server.Address, "version": config.Version})
	if err := srv.Start(ctx); err != nil {
		appLogger.Error("Server exited with an error", logger.LogFields{"error": err.Error()})
		return 1
	}
	appLogger.Info("Server has shut down gracefully")
	return 0
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], color.Error))
}
