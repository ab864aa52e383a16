package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/gorm/logger"

	"userform_payments/internal/config"
	"userform_payments/internal/models"
	"userform_payments/internal/services"
	"userform_payments/internal/tasks"
)

const (
	defaultTaskName  = "sync_pending_payments"
	defaultRecurring = "FREQ=MINUTELY;INTERVAL=15"
)

func main() {
	taskName := flag.String("task_name", defaultTaskName, "Name of the task")
	argsStr := flag.String("arguments", "{}", "JSON arguments for the task")
	dueStr := flag.String("due", "", "Due date (format: 2006-01-02 15:04 or RFC3339, default: now)")
	taskType := flag.String("tasktype", string(models.ScheduledTaskTypeRecurring), "Task type: onetime or recurring")
	recurring := flag.String("recurring", defaultRecurring, "Recurring interval rule (RFC 5545 RRULE)")
	maxAttempt := flag.Int("max_attempt", 3, "Max attempts")

	flag.Parse()

	if *taskName == "" {
		fmt.Println("Usage: schedule_task [-task_name <name>] [-arguments <json_args>] [-due <YYYY-MM-DD HH:MM>] [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := services.InitDB(cfg.DatabaseURL, logger.Warn)
	if err != nil {
		log.Fatalf("Failed to connect DB: %v", err)
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(*argsStr), &args); err != nil {
		log.Fatalf("Invalid JSON arguments: %v", err)
	}

	due := time.Now()
	if *dueStr != "" {
		due, err = time.Parse(time.RFC3339, *dueStr)
		if err != nil {
			due, err = time.ParseInLocation("2006-01-02 15:04", *dueStr, time.Local)
			if err != nil {
				log.Fatalf("Invalid due date format. Use '2006-01-02 15:04' (Local) or RFC3339: %v", err)
			}
		}
	}

	var recurringPtr *string
	if models.ScheduledTaskType(*taskType) == models.ScheduledTaskTypeRecurring && *recurring != "" {
		recurringPtr = recurring
	}

	task, err := tasks.BuildScheduledTask(*taskName, args, due, recurringPtr, models.ScheduledTaskType(*taskType), *maxAttempt)
	if err != nil {
		log.Fatalf("Invalid task: %v", err)
	}

	if err := db.Create(task).Error; err != nil {
		log.Fatalf("Failed to create task: %v", err)
	}

	fmt.Printf("Successfully created task ID: %d\n", task.ID)
	fmt.Printf("Task: %s\nDue: %s\nType: %s\n", task.TaskName, task.Due, task.TaskType)
}
