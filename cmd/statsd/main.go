package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ursb1/Murasaki-Translator-sub004/internal/api"
	"github.com/ursb1/Murasaki-Translator-sub004/internal/buildinfo"
	"github.com/ursb1/Murasaki-Translator-sub004/internal/config"
	"github.com/ursb1/Murasaki-Translator-sub004/internal/store"
)

func main() {
	// 1. Load and validate environment config
	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	// 2. Open the event store
	st, err := store.New(envCfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	// 3. Retention scheduler (disabled when no schedule is configured)
	sched, err := store.NewScheduler(st, envCfg.RetentionSchedule, envCfg.RetentionMaxAge)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	sched.Start()

	// 4. Create and start API server
	srv := api.NewServer(envCfg.ListenAddress, envCfg.Port, envCfg.APIToken, int64(envCfg.APIMaxBodyBytes), st)

	go func() {
		log.Printf("statsd %s starting on %s:%d", buildinfo.Version, envCfg.ListenAddress, envCfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server error: %v", err)
		}
	}()

	// 5. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("Received signal %s, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	sched.Stop()
	log.Println("Server stopped")
}
