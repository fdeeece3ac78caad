// cmd/seeder/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/unclebandit/autoposter/internal/config"
	"github.com/unclebandit/autoposter/internal/db"
	"github.com/unclebandit/autoposter/internal/logging"
)

func main() {
	config.LoadEnv(nil)
	cfg := config.Load()
	logger := logging.NewLoggerWithService("autoposter-seeder", cfg.LogLevel)
	ctx := context.Background()

	conn, err := db.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect")
	}
	defer conn.Close()

	if err := db.Migrate(ctx, conn); err != nil {
		logger.WithError(err).Fatal("Failed to migrate")
	}

	seedFiles := []string{
		"seed/videos.sql",
		"seed/history.sql",
	}

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			logger.WithError(err).Fatalf("failed to read %s", file)
		}

		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			logger.WithError(err).Fatalf("failed to execute %s", file)
		}
		fmt.Printf("Seeded: %s\n", file)
	}

	fmt.Println("Database seeding completed successfully!")
}
