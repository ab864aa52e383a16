package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"userform_payments/internal/models"
	"userform_payments/internal/services"
)

// SyncPendingPaymentsTaskDef re-checks payments still waiting on their gateway
type SyncPendingPaymentsTaskDef struct {
	Payments *services.PaymentService
}

// TaskID returns the unique identifier for this task
func (t *SyncPendingPaymentsTaskDef) TaskID() string {
	return "sync_pending_payments"
}

// HandleExecution asks the gateway for the status of every payment that has
// been pending for at least older_than_minutes (default 5).
func (t *SyncPendingPaymentsTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	minutes, err := intArg(task.Arguments, "older_than_minutes", 5)
	if err != nil {
		return nil, err
	}
	if minutes < 0 {
		return nil, fmt.Errorf("older_than_minutes must not be negative")
	}

	changed, err := t.Payments.SyncPending(ctx, time.Duration(minutes)*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("failed to sync pending payments: %w", err)
	}
	log.Printf("[Task: %s] %d payments changed status", t.TaskID(), changed)

	return map[string]interface{}{
		"status":  "success",
		"changed": changed,
	}, nil
}

// VoidAbandonedPaymentsTaskDef voids payments that never reached a gateway
type VoidAbandonedPaymentsTaskDef struct {
	Payments *services.PaymentService
}

// TaskID returns the unique identifier for this task
func (t *VoidAbandonedPaymentsTaskDef) TaskID() string {
	return "void_abandoned_payments"
}

// HandleExecution voids Created payments older than max_age_hours (default 24)
func (t *VoidAbandonedPaymentsTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	hours, err := intArg(task.Arguments, "max_age_hours", 24)
	if err != nil {
		return nil, err
	}
	if hours < 1 {
		return nil, fmt.Errorf("max_age_hours must be at least 1")
	}

	voided, err := t.Payments.VoidAbandoned(ctx, time.Duration(hours)*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("failed to void abandoned payments: %w", err)
	}
	log.Printf("[Task: %s] voided %d payments", t.TaskID(), voided)

	return map[string]interface{}{
		"status": "success",
		"voided": voided,
	}, nil
}
