package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"time"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/storage/postgres"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

var (
	dbURL   = flag.String("db-url", getEnv("AFFILIATE_POSTGRES_URL", "postgres://localhost/affiliate?sslmode=disable"), "PostgreSQL connection URL")
	status  = flag.Bool("status", false, "Print applied and pending migrations and exit")
	timeout = flag.Duration("timeout", 2*time.Minute, "Overall timeout")
	verbose = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		log.WithError(err).Fatal("Failed to open database")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.WithError(err).Fatal("Failed to ping database")
	}

	if *status {
		if err := printStatus(ctx, db, log); err != nil {
			log.WithError(err).Fatal("Failed to read migration status")
		}
		return
	}

	if err := postgres.RunMigrations(ctx, db, log); err != nil {
		log.WithError(err).Fatal("Migration failed")
	}
	log.Info("Database is up to date")
}

func printStatus(ctx context.Context, db *sql.DB, log logrus.FieldLogger) error {
	applied, err := postgres.AppliedVersions(ctx, db)
	if err != nil {
		return err
	}
	for _, m := range postgres.Migrations() {
		log.WithFields(logrus.Fields{
			"version":     m.Version,
			"description": m.Description,
			"applied":     applied[m.Version],
		}).Info("Migration")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
