package main

import (
	"log"
	"os"

	"github.com/Egham-7/adaptive-gateway/internal/config"
	pkgconfig "github.com/Egham-7/adaptive-gateway/pkg/config"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

func main() {
	// Earlier files take precedence
	envFiles := []string{".env.local", ".env.development", ".env"}
	config.LoadEnvFiles(envFiles)

	configPath := "config.yaml"
	if path := os.Getenv("GATEWAY_CONFIG"); path != "" {
		configPath = path
	}

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		fiberlog.Fatalf("Failed to load config: %v", err)
	}

	proxy := pkgconfig.NewProxy(cfg)

	log.Println("Starting AdaptiveGateway server...")
	if err := proxy.Run(); err != nil {
		fiberlog.Fatalf("Server failed: %v", err)
	}
}
