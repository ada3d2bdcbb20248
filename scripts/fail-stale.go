// scripts/fail-stale.go - Manual stale task cleanup tool
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/echohq/echo-agent/internal/config"
	"github.com/echohq/echo-agent/internal/storage/postgres"
)

func main() {
	ctx := context.Background()

	cfg := config.DefaultConfig()

	// Allow override via environment variable
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}

	fmt.Printf("Connecting to database: %s\n", cfg.Database.ConnString())

	store, err := postgres.New(ctx, &postgres.Config{ConnString: cfg.Database.ConnString()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	// Match the reaper's default stale threshold
	staleAge := cfg.Agent.StaleTaskAge
	if staleAge <= 0 {
		staleAge = 10 * time.Minute
	}

	fmt.Printf("Failing processing tasks with no heartbeat in %s...\n", staleAge)

	failed, err := store.FailStaleTasks(ctx, staleAge)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error during cleanup: %v\n", err)
		os.Exit(1)
	}

	if failed > 0 {
		fmt.Printf("✓ Failed %d stale task(s)\n", failed)
	} else {
		fmt.Println("✓ No stale tasks found")
	}
}
