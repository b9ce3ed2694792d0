package main

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/textrelay/textrelay/internal/api"
	"github.com/textrelay/textrelay/internal/config"
	"github.com/textrelay/textrelay/internal/db"
	"github.com/textrelay/textrelay/internal/llm"
	"github.com/textrelay/textrelay/internal/session"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to initialize database",
			zap.Error(err),
			zap.String("dbPath", cfg.DBPath))
	}
	defer database.Close()

	// An unknown provider name fails here, before the server ever
	// accepts a webhook.
	provider, err := llm.New(cfg)
	if err != nil {
		logger.Fatal("failed to initialize AI provider",
			zap.Error(err),
			zap.String("provider", cfg.Provider))
	}

	engine := session.New(database, provider, cfg, logger)
	handler := api.NewHandler(engine, cfg.TwilioAuthToken, cfg.Provider, logger)

	http.HandleFunc("/sms", handler.HandleSMS)
	http.HandleFunc("/health", handler.HandleHealth)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	logger.Info("starting server",
		zap.String("addr", addr),
		zap.String("provider", cfg.Provider))
	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}
