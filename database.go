package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
)

// openDB connects to PostgreSQL, waiting for the database to come up.
func openDB(cfg DatabaseConfig, logger logrus.FieldLogger) (*sql.DB, error) {
	config, err := pgx.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	retryDelay := cfg.RetryDelay

	var db *sql.DB
	for i := 0; i < maxRetries; i++ {
		db = stdlib.OpenDB(*config)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := db.PingContext(ctx)
		cancel()
		if err != nil {
			db.Close()
			if i < maxRetries-1 {
				entry := logger.WithFields(logrus.Fields{
					"attempt": i + 1,
					"max":     maxRetries,
					"retry":   retryDelay.String(),
				})
				// Log the actual error for the first few attempts and every 10th
				if i%10 == 0 || i < 5 {
					entry = entry.WithError(err)
				}
				entry.Warn("database not ready")
				time.Sleep(retryDelay)
				continue
			}
			return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
		}
		logger.Info("database connection established")
		break
	}
	return db, nil
}
