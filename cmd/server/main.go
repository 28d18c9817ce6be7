// Kaalis - payment confirmation service for XOF storefronts
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/msall/kaalis/internal/catalog"
	"github.com/msall/kaalis/internal/config"
	"github.com/msall/kaalis/internal/logging"
	"github.com/msall/kaalis/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")

	logger.Info("starting kaalis",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"provider_mode", cfg.ProviderMode,
		"currency", cfg.Currency,
	)

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// In-memory mode starts empty; seed a few items so the payment flow can
	// be exercised right away.
	if cfg.DatabaseURL == "" {
		seedDemoItems(ctx, srv, logger)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func seedDemoItems(ctx context.Context, srv *server.Server, logger *slog.Logger) {
	items := []*catalog.Item{
		{ID: "tshirt-m", Name: "T-shirt (M)", Price: 6000},
		{ID: "tote-bag", Name: "Tote bag", Price: 3500},
		{ID: "stickers", Name: "Sticker pack", Price: 1000},
	}
	for _, item := range items {
		if err := srv.Items().Create(ctx, item); err != nil {
			logger.Warn("failed to seed demo item", "item", item.ID, "error", err)
		}
	}
	logger.Info("seeded demo catalog", "items", len(items))
}
