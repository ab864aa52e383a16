package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"gorm.io/gorm/logger"

	"userform_payments/internal/config"
	"userform_payments/internal/services"
)

func main() {
	file := flag.String("file", "", "Path to the YAML form definition (mandatory)")
	dryRun := flag.Bool("dry_run", false, "Only validate the definition")
	flag.Parse()

	if *file == "" {
		fmt.Println("Usage: import_form -file <form.yaml> [-dry_run]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", *file, err)
	}
	defer f.Close()

	def, err := services.ParseFormDefinition(f)
	if err != nil {
		log.Fatalf("Invalid form definition: %v", err)
	}
	if *dryRun {
		fmt.Printf("Form %q is valid (%d fields, %d recipients)\n", def.Title, len(def.Fields), len(def.Recipients))
		return
	}

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := services.InitDB(cfg.DatabaseURL, logger.Warn)
	if err != nil {
		log.Fatalf("Failed to connect DB: %v", err)
	}
	if err := services.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	registry, err := services.GatewaysFromConfig(cfg)
	if err != nil {
		log.Fatal(err)
	}

	form, err := services.ImportForm(context.Background(), db, def, registry)
	if err != nil {
		log.Fatalf("Failed to import form: %v", err)
	}

	fmt.Printf("Successfully created form ID: %d\n", form.ID)
	fmt.Printf("Title: %s\nLink: %s%s\n", form.Title, cfg.AppURL, form.Link(""))
}
