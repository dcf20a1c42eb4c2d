package main

import (
	"net/http"

	"syncspace/config"
	"syncspace/config/database"
	"syncspace/internal/document/repository"
	"syncspace/pkg/logger"
	"syncspace/router"
	"syncspace/socket"

	"github.com/joho/godotenv"
)

func main() {
	// No .env file is fine, the OS environment still applies.
	_ = godotenv.Load()
	logger.Init()
	defer logger.Log.Sync()

	cfg := config.Load()

	db := database.Connect(cfg)
	defer db.Close()

	repo := repository.NewDocumentRepository(db)
	hub := socket.NewHub(repo)

	if cfg.RedisAddr != "" {
		bridge, err := socket.NewBridge(cfg.RedisAddr, hub)
		if err != nil {
			logger.Sugar.Fatalf("Failed to connect bridge to Redis: %v", err)
		}
		defer bridge.Close()
		hub.SetBridge(bridge)
		go bridge.Run()
		logger.Sugar.Infof("Broadcast bridge connected to Redis at %s", cfg.RedisAddr)
	}

	go hub.Run()

	handler := router.Setup(db, hub)

	logger.Sugar.Infof("Sync relay listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		logger.Sugar.Fatalf("Server exited: %v", err)
	}
}
