package tasks

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"userform_payments/internal/models"
)

// Runner executes due scheduled tasks and records their history
type Runner struct {
	db       *gorm.DB
	registry *Registry
}

func NewRunner(db *gorm.DB, registry *Registry) *Runner {
	return &Runner{db: db, registry: registry}
}

// RunDue executes every active task due at or before now and returns how
// many were picked up.
func (r *Runner) RunDue(ctx context.Context, now time.Time) (int, error) {
	var pendingTasks []models.ScheduledTask
	err := r.db.WithContext(ctx).
		Where("status = ? AND due <= ?", models.ScheduledTaskStatusActive, now).
		Order("due asc").
		Find(&pendingTasks).Error
	if err != nil {
		return 0, err
	}

	for i, task := range pendingTasks {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		r.execute(ctx, task, now)
	}
	return len(pendingTasks), nil
}

func (r *Runner) execute(ctx context.Context, task models.ScheduledTask, now time.Time) {
	log.Printf("Processing task: %s (ID: %d)", task.TaskName, task.ID)

	if task.Arguments == nil {
		task.Arguments = make(map[string]interface{})
	}

	handler, found := r.registry.Get(task.TaskName)
	if !found {
		log.Printf("Task handler not found for: %s. Marking as failure.", task.TaskName)
		r.recordHistory(ctx, task, now, 0, "handler_not_found", 1, map[string]interface{}{"error": "Handler not found"})
		r.update(ctx, task, map[string]interface{}{
			"status":   models.ScheduledTaskStatusFailure,
			"last_run": now,
		})
		return
	}

	maxAttempt := task.MaxAttempt
	if maxAttempt < 1 {
		maxAttempt = 1
	}

	succeeded := false
	for attempt := 1; attempt <= maxAttempt && !succeeded; attempt++ {
		startTime := time.Now()
		result, err := handler(ctx, r.db.WithContext(ctx), task)
		runtimeMs := int(time.Since(startTime).Milliseconds())

		if err != nil {
			log.Printf("Task %s attempt %d/%d failed: %v", task.TaskName, attempt, maxAttempt, err)
			r.recordHistory(ctx, task, startTime, runtimeMs, "failure", attempt, map[string]interface{}{"error": err.Error()})
			if ctx.Err() != nil {
				break
			}
			continue
		}

		log.Printf("Task %s completed successfully.", task.TaskName)
		r.recordHistory(ctx, task, startTime, runtimeMs, "success", attempt, result)
		succeeded = true
	}

	updates := map[string]interface{}{"last_run": now}
	switch {
	case task.TaskType == models.ScheduledTaskTypeRecurring:
		// recurring tasks keep their schedule even when a run fails
		nextDue := task.NextDue(now)
		if nextDue.After(task.Due) {
			updates["status"] = models.ScheduledTaskStatusActive
			updates["due"] = nextDue
		} else if succeeded {
			updates["status"] = models.ScheduledTaskStatusDone
		} else {
			updates["status"] = models.ScheduledTaskStatusFailure
		}
	case succeeded:
		updates["status"] = models.ScheduledTaskStatusDone
	default:
		updates["status"] = models.ScheduledTaskStatusFailure
	}
	r.update(ctx, task, updates)
}

func (r *Runner) recordHistory(ctx context.Context, task models.ScheduledTask, runAt time.Time, runtimeMs int, status string, attempt int, result map[string]interface{}) {
	history := models.ScheduledTaskHistory{
		ScheduledTaskID: task.ID,
		TaskName:        task.TaskName,
		RunAt:           runAt,
		RuntimeMs:       runtimeMs,
		Status:          status,
		AttemptNumber:   attempt,
		Arguments:       task.Arguments,
		Result:          result,
	}
	if err := r.db.WithContext(ctx).Create(&history).Error; err != nil {
		log.Printf("Failed to record history for task %d: %v", task.ID, err)
	}
}

func (r *Runner) update(ctx context.Context, task models.ScheduledTask, updates map[string]interface{}) {
	if err := r.db.WithContext(ctx).Model(&models.ScheduledTask{}).Where("id = ?", task.ID).Updates(updates).Error; err != nil {
		log.Printf("Failed to update task %d: %v", task.ID, err)
	}
}
