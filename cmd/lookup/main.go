package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"property-hub/internal/app"
	"property-hub/internal/config"
	"property-hub/internal/models"
)

func main() {
	// Parse command line flags
	envFile := flag.String("env", "", "Path to .env file (default .env in the working directory)")
	address := flag.String("address", "", `Property address, e.g. "12 Smith St, Richmond VIC 3121"`)
	noFallbacks := flag.Bool("no-fallbacks", false, "Consult the primary source only")
	maxFallbacks := flag.Int("max-fallbacks", -1, "Maximum fallback sources after the primary (default from config)")
	refresh := flag.Bool("refresh", false, "Ignore cached results and fetch every source again")
	required := flag.String("required", "", "Comma separated fields that must be filled before the chain stops")
	headless := flag.Bool("headless", true, "Run browser in headless mode (set false to see browser)")
	flag.Parse()

	if *address == "" && flag.NArg() > 0 {
		*address = flag.Arg(0)
	}
	if *address == "" {
		fmt.Fprintln(os.Stderr, "Usage: lookup -address \"12 Smith St, Richmond VIC 3121\" [options]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	// Flags override the environment only when given
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "headless" {
			cfg.Sources.Headless = *headless
		}
	})

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received interrupt signal, shutting down...")
		cancel()
	}()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	opts := a.LookupOptions()
	if *noFallbacks {
		opts.EnableFallbacks = false
	}
	if *maxFallbacks >= 0 {
		opts.MaxFallbacks = *maxFallbacks
	}
	opts.ForceRefresh = *refresh
	if *required != "" {
		fields, err := config.ParseFields(*required)
		if err != nil {
			a.Close()
			log.Fatalf("Invalid -required: %v", err)
		}
		opts.RequiredFields = fields
	}

	startTime := time.Now()
	report, err := a.Coordinator.Lookup(ctx, *address, opts)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidAddress):
			a.Close()
			log.Fatalf("%v", err)
		case errors.Is(err, context.Canceled):
			a.Logger.Warn("Lookup cancelled by user, printing partial result")
		default:
			a.Close()
			log.Fatalf("Lookup failed: %v", err)
		}
	}
	a.Logger.Info("Lookup completed", "duration", time.Since(startTime))

	if report == nil {
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}
}
