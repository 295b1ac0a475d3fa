package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"property-hub/internal/api"
	"property-hub/internal/app"
	"property-hub/internal/config"
)

func main() {
	// Parse command line flags
	envFile := flag.String("env", "", "Path to .env file (default .env in the working directory)")
	port := flag.Int("port", 0, "Port to listen on (default HTTP_PORT)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port > 0 {
		cfg.HTTPPort = *port
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	// Create router
	handlers := api.NewHandlers(a.Coordinator, a.Store, a.Sources, a.LookupOptions(), a.Logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           api.NewRouter(handlers, a.Logger.With("component", "http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server
	go func() {
		a.Logger.Info("Starting server", "url", fmt.Sprintf("http://localhost%s", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	a.Logger.Info("Shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		a.Logger.Error("Server shutdown failed", "error", err)
	}
}
