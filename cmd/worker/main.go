package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/gorm/logger"

	"userform_payments/internal/config"
	"userform_payments/internal/services"
	"userform_payments/internal/tasks"
)

func main() {
	cfg := config.Load()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	db, err := services.InitDB(cfg.DatabaseURL, logger.Warn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	registry, err := services.GatewaysFromConfig(cfg)
	if err != nil {
		log.Fatal(err)
	}
	payments := services.NewPaymentService(db, registry, cfg.AppURL)

	// Initialize Task Registry
	tasks.DefineTasks(tasks.GlobalRegistry, payments)
	runner := tasks.NewRunner(db, tasks.GlobalRegistry)

	log.Printf("Worker started with tasks %v", tasks.GlobalRegistry.Names())

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down worker...")
		cancel()
	}()

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	// Run once on start, then on every tick
	runDue(ctx, runner)

	for {
		select {
		case <-ticker.C:
			runDue(ctx, runner)
		case <-ctx.Done():
			return
		}
	}
}

func runDue(ctx context.Context, runner *tasks.Runner) {
	log.Println("Checking for pending tasks...")
	ran, err := runner.RunDue(ctx, time.Now())
	if err != nil {
		log.Printf("Error running pending tasks: %v", err)
		return
	}
	if ran == 0 {
		log.Println("No pending tasks found.")
		return
	}
	log.Printf("Processed %d tasks.", ran)
}
