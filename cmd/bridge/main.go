package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/zhangshican/quotio-bridge/internal/config"
	"github.com/zhangshican/quotio-bridge/internal/services/bridge"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

func main() {
	config.LoadEnvFiles([]string{".env.local", ".env"})

	configPath := os.Getenv("BRIDGE_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		fiberlog.Fatalf("failed to load configuration: %v", err)
	}
	applyLogLevel(cfg)

	b, err := bridge.New(cfg)
	if err != nil {
		fiberlog.Fatalf("failed to build bridge: %v", err)
	}

	b.Configure(cfg.Server.ListenPort, cfg.Server.TargetPort)
	if err := b.Start(); err != nil {
		fiberlog.Fatalf("failed to start bridge: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fiberlog.Info("shutting down bridge...")
	if err := b.Stop(); err != nil {
		fiberlog.Errorf("shutdown error: %v", err)
	}
	fiberlog.Info("bridge stopped")
}

func applyLogLevel(cfg *config.Config) {
	switch cfg.GetNormalizedLogLevel() {
	case "debug":
		fiberlog.SetLevel(fiberlog.LevelDebug)
	case "warn":
		fiberlog.SetLevel(fiberlog.LevelWarn)
	case "error":
		fiberlog.SetLevel(fiberlog.LevelError)
	default:
		fiberlog.SetLevel(fiberlog.LevelInfo)
	}
}
