package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"property-hub/internal/app"
	"property-hub/internal/cache"
	"property-hub/internal/config"
	"property-hub/internal/geo"
	"property-hub/internal/models"
	"property-hub/internal/scraper"
)

func main() {
	// Sub-commands
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	os.Args = os.Args[1:] // Shift args for flag parsing

	switch cmd {
	case "clear":
		clearCache(false)
	case "clear-expired":
		clearCache(true)
	case "sources":
		listSources()
	case "schools":
		nearbySchools()
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: tools <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  clear          Remove every cached source result")
	fmt.Println("  clear-expired  Remove cached results older than CACHE_TTL")
	fmt.Println("  sources        List sources in priority order and whether each is enabled")
	fmt.Println("  schools        List schools from SCHOOLS_CSV near a point")
}

func loadConfig() *config.Config {
	envFile := flag.String("env", "", "Path to .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return cfg
}

func clearCache(expiredOnly bool) {
	cfg := loadConfig()
	logger, fluentClient, err := app.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	if fluentClient != nil {
		defer fluentClient.Close()
	}

	ctx := context.Background()
	store, closeStore, err := cache.Open(ctx, cfg.CacheStore(logger))
	if err != nil {
		log.Fatalf("Failed to open cache: %v", err)
	}
	defer closeStore()

	if expiredOnly {
		n, err := store.ClearExpired(ctx)
		if err != nil {
			log.Fatalf("Failed to clear expired entries: %v", err)
		}
		log.Printf("Removed %d expired entries from the %s cache", n, cfg.Cache.Backend)
		return
	}

	if err := store.Clear(ctx); err != nil {
		log.Fatalf("Failed to clear cache: %v", err)
	}
	log.Printf("Cleared the %s cache", cfg.Cache.Backend)
}

func listSources() {
	cfg := loadConfig()
	logger, fluentClient, err := app.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	if fluentClient != nil {
		defer fluentClient.Close()
	}

	registry := scraper.NewDefaultRegistry(cfg.Sources, logger)
	defer registry.Close()

	enabled := make(map[models.SourceID]bool)
	for _, id := range registry.Enabled() {
		enabled[id] = true
	}
	for i, id := range models.Priority {
		status := "disabled"
		if enabled[id] {
			status = "enabled"
		}
		role := "fallback"
		if i == 0 {
			role = "primary"
		}
		fmt.Printf("%d  %-18s %-9s %s\n", i+1, id, role, status)
	}
}

func nearbySchools() {
	lat := flag.Float64("lat", 0, "Latitude")
	lng := flag.Float64("lng", 0, "Longitude")
	radius := flag.Float64("radius", 3, "Search radius in km")
	limit := flag.Int("limit", 10, "Maximum schools to list")
	cfg := loadConfig()

	if cfg.SchoolsCSV == "" {
		log.Fatal("SCHOOLS_CSV is not set")
	}
	index, err := geo.LoadSchoolsFile(cfg.SchoolsCSV)
	if err != nil {
		log.Fatalf("Failed to load schools: %v", err)
	}
	log.Printf("Loaded %d schools", len(index.Schools))

	for _, s := range index.Nearby(*lat, *lng, *radius, *limit) {
		parts := []string{s.Name}
		if s.Type != "" {
			parts = append(parts, s.Type)
		}
		if s.Sector != "" {
			parts = append(parts, s.Sector)
		}
		dist := ""
		if s.DistanceKm != nil {
			dist = fmt.Sprintf("%.2f km", *s.DistanceKm)
		}
		fmt.Printf("%-10s %s\n", dist, strings.Join(parts, ", "))
	}
}
