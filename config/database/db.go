package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"syncspace/config"
	"syncspace/pkg/logger"

	"github.com/cenkalti/backoff"
	_ "github.com/lib/pq"
)

func Connect(cfg config.Config) *sql.DB {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=require",
		strings.TrimSpace(cfg.DBUser), strings.TrimSpace(cfg.DBPass),
		strings.TrimSpace(cfg.DBHost), strings.TrimSpace(cfg.DBPort),
		strings.TrimSpace(cfg.DBName))

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		logger.Sugar.Fatalf("Failed to open database connection: %v", err)
	}

	// Retry the ping in case of temporary DNS/network blips.
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second
	err = backoff.Retry(func() error {
		if pingErr := db.Ping(); pingErr != nil {
			logger.Sugar.Infof("Database connection failed, retrying... (%v)", pingErr)
			return pingErr
		}
		return nil
	}, policy)
	if err != nil {
		logger.Sugar.Fatal("Could not connect to database after retries")
	}

	logger.Sugar.Info("Successfully connected to the database")
	return db
}
