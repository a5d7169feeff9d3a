package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jdiaz1993/quickcalories/app"
	"github.com/jdiaz1993/quickcalories/app/config"

	log "github.com/sirupsen/logrus"
)

func main() {
	status := flag.Bool("status", false, "print migration status instead of applying")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	app.InitLogging(cfg.Logs)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := app.OpenDB(ctx, cfg.DB)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	if db == nil {
		log.Fatal("DATABASE_URL environment variable is required")
	}
	defer db.Close()

	if *status {
		results, err := app.MigrationStatus(ctx, db)
		if err != nil {
			log.Fatalf("migration status: %v", err)
		}
		for _, r := range results {
			applied := "pending"
			if !r.AppliedAt.IsZero() {
				applied = r.AppliedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(os.Stdout, "%-8d %-8s %-30s %s\n", r.Source.Version, r.State, r.Source.Path, applied)
		}
		return
	}

	if err := app.Migrate(ctx, db); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Info("database is up to date")
}
