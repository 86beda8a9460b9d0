package main

import (
	"fmt"
	"os"

	"github.com/neovim/go-client/nvim/plugin"
	"go.uber.org/zap"

	"go-live-slides/internal/config"
	"go-live-slides/internal/host"
)

// configEnv points at an optional YAML configuration file.
const configEnv = "GO_LIVE_SLIDES_CONFIG"

// Set up the connection to Neovim
// Take the plugin object we register commands
// Keep the connection alive and listen for request
func main() {
	cfg, err := config.LoadConfiguration(os.Getenv(configEnv))
	if err != nil {
		fmt.Fprintf(os.Stderr, "[go-live-slides] %v\n", err)
		os.Exit(1)
	}
	// stdout carries msgpack-rpc
	cfg.Logging.ConsoleLogger.Stream = config.StreamStderr

	log, err := cfg.Logging.Prepare()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[go-live-slides] %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	restore := zap.RedirectStdLog(log)
	defer restore()

	plugin.Main(func(p *plugin.Plugin) error {
		log.Debug("Registering handlers")
		return host.Register(p, cfg, log)
	})
}
