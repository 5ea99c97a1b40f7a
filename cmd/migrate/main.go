package main

// Manage the accounts and documents schema:
//   DATABASE_URL=postgres://... go run ./cmd/migrate [up|status|version]

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"voterlist-backend/internal/shared/config"
	"voterlist-backend/internal/shared/storage/db"
)

const migrateTimeout = 2 * time.Minute

func main() {
	command := "up"
	if len(os.Args) > 1 {
		command = strings.ToLower(strings.TrimSpace(os.Args[1]))
	}

	cfg := config.Load()
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Printf("DATABASE_URL is required; file-backed state needs no migrations")
		os.Exit(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultMigrateOptions()))
	if err != nil {
		log.Printf("failed to connect database: %v", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := run(ctx, command, sqlDB); err != nil {
		log.Printf("migrate %s: %v", command, err)
		os.Exit(1)
	}
}

type migrator interface {
	up(ctx context.Context) error
	status(ctx context.Context) error
	version(ctx context.Context) (int64, error)
}

type gooseMigrator struct {
	database *sql.DB
}

func (g gooseMigrator) up(ctx context.Context) error { return db.RunMigrations(ctx, g.database) }

func (g gooseMigrator) status(ctx context.Context) error { return db.MigrationStatus(ctx, g.database) }

func (g gooseMigrator) version(ctx context.Context) (int64, error) {
	return db.SchemaVersion(ctx, g.database)
}

func run(ctx context.Context, command string, database *sql.DB) error {
	return dispatch(ctx, command, gooseMigrator{database: database})
}

func dispatch(ctx context.Context, command string, m migrator) error {
	switch command {
	case "up":
		if err := m.up(ctx); err != nil {
			return err
		}
		fallthrough
	case "version":
		v, err := m.version(ctx)
		if err != nil {
			return err
		}
		log.Printf("schema version %d", v)
		return nil
	case "status":
		return m.status(ctx)
	default:
		return fmt.Errorf("unknown command %q (want up, status or version)", command)
	}
}
