package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"pantry-sync/internal/api"
	"pantry-sync/internal/budget"
	"pantry-sync/internal/cache"
	"pantry-sync/internal/config"
	"pantry-sync/internal/coordinator"
	"pantry-sync/internal/deletion"
	"pantry-sync/internal/metrics"
)

// logNotifier routes engine notifications to the terminal. A real frontend
// plugs in a toast/banner implementation instead.
type logNotifier struct{}

func (logNotifier) Notify(message string, severity coordinator.Severity) {
	log.Printf("[%s] %s", strings.ToUpper(string(severity)), message)
}

// stdinConfirmer asks for destructive-action confirmation on the terminal.
type stdinConfirmer struct{}

var _ deletion.Confirmer = stdinConfirmer{}

func (stdinConfirmer) ConfirmDestructiveAction(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(answer), "y")
}

func main() {
	ctx := context.Background()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := cache.NewDB(cfg.CacheDBPath)
	if err != nil {
		log.Fatalf("Failed to initialize mirror cache: %v", err)
	}
	defer db.Close()

	metricsStore := metrics.NewStore(db.SQL)
	client := metrics.NewRecordingClient(
		api.NewClient(cfg.ServerURL, api.JWTTokenSource{Value: cfg.SessionToken}),
		metricsStore,
	)

	store := cache.NewStore(db.SQL)
	coord := coordinator.NewCoordinator(client, store, logNotifier{}, func() {
		log.Println("Financial summary changed")
	}, cfg.DebounceWindow)
	watcher := deletion.NewWatcher(client, coord, cfg.PollInterval)
	defer watcher.Stop()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "pull":
		if err := pullAll(ctx, coord); err != nil {
			log.Fatalf("Pull failed: %v", err)
		}
	case "cache-reset":
		if err := store.Reset(ctx); err != nil {
			log.Fatalf("Cache reset failed: %v", err)
		}
		fmt.Println("Mirror cache cleared.")
	case "delete":
		if len(os.Args) < 3 {
			log.Fatal("delete requires a collection id")
		}
		if err := deleteCollection(ctx, watcher, os.Args[2]); err != nil {
			log.Fatalf("Delete failed: %v", err)
		}
	case "export":
		if len(os.Args) < 3 {
			log.Fatal("export requires a collection id")
		}
		id := os.Args[2]
		blob, err := coord.ExportCollection(ctx, id)
		if errors.Is(err, coordinator.ErrExportAlreadyRequested) {
			fmt.Println("Export already requested, try again shortly.")
			return
		}
		if err != nil {
			log.Fatalf("Export failed: %v", err)
		}
		out := fmt.Sprintf("collection_%s.pdf", id)
		if err := os.WriteFile(out, blob, 0644); err != nil {
			log.Fatalf("Failed to write %s: %v", out, err)
		}
		fmt.Printf("Wrote %s (%d bytes).\n", out, len(blob))
	case "stats":
		if err := printStats(ctx, metricsStore, cfg.CacheDBPath); err != nil {
			log.Fatalf("Stats failed: %v", err)
		}
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// pullAll refreshes every snapshot the mirror tracks.
func pullAll(ctx context.Context, coord *coordinator.Coordinator) error {
	active, err := coord.Collections(ctx, budget.StatusActive)
	if err != nil {
		return fmt.Errorf("failed to pull active collections: %w", err)
	}
	if _, err := coord.Collections(ctx, budget.StatusSaved); err != nil {
		return fmt.Errorf("failed to pull saved collections: %w", err)
	}
	for _, col := range active {
		if _, err := coord.Items(ctx, col.ID); err != nil {
			log.Printf("Warning: failed to pull items for %s: %v", col.ID, err)
		}
		if _, err := coord.Suggestions(ctx, col.ID); err != nil {
			log.Printf("Warning: failed to pull suggestions for %s: %v", col.ID, err)
		}
	}
	if _, err := coord.MealPlans(ctx); err != nil {
		log.Printf("Warning: failed to pull meal plans: %v", err)
	}
	if _, err := coord.PredictiveSuggestions(ctx); err != nil {
		log.Printf("Warning: failed to pull predictive suggestions: %v", err)
	}
	fmt.Printf("Pulled %d active collections.\n", len(active))
	return nil
}

// deleteCollection runs the grace-period flow to completion, offering a
// cancel while the countdown is pending.
func deleteCollection(ctx context.Context, watcher *deletion.Watcher, id string) error {
	confirmer := stdinConfirmer{}
	if !confirmer.ConfirmDestructiveAction(fmt.Sprintf("Delete collection %s?", id)) {
		fmt.Println("Aborted.")
		return nil
	}

	grace, err := watcher.Begin(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("Deletion pending, %d seconds to undo. Press Enter to cancel.\n", grace)

	cancelled := make(chan struct{})
	go func() {
		reader := bufio.NewReader(os.Stdin)
		if _, err := reader.ReadString('\n'); err == nil {
			close(cancelled)
		}
	}()

	for watcher.Active(id) {
		select {
		case <-cancelled:
			return watcher.Cancel(ctx, id)
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil
}

// printStats reports per-operation sync telemetry and cache health.
func printStats(ctx context.Context, store *metrics.Store, cacheDBPath string) error {
	summary, err := store.Summary(ctx)
	if err != nil {
		return err
	}
	if len(summary) == 0 {
		fmt.Println("No sync operations recorded yet.")
	}
	for _, op := range summary {
		fmt.Printf("%-30s %5d calls %5d failed  avg %dms\n", op.Operation, op.Total, op.Failed, op.AvgLatencyMS)
	}

	health := metrics.GetSysHealth(cacheDBPath)
	fmt.Printf("\nCache size: %s | Mem: %dMB | Goroutines: %d\n", health.CacheSize, health.AllocMB, health.Goroutines)
	return nil
}

func printUsage() {
	fmt.Println("Usage: pantry-sync <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  pull           Refresh every mirror snapshot from the server")
	fmt.Println("  cache-reset    Clear the local mirror cache")
	fmt.Println("  delete <id>    Delete a collection through the grace-period flow")
	fmt.Println("  export <id>    Export a collection to a document file")
	fmt.Println("  stats          Show sync telemetry and cache health")
}
