package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"userform_payments/internal/models"
)

// BuildScheduledTask is a helper to build ScheduledTask records generically.
// Recurring tasks must carry a valid RRULE.
func BuildScheduledTask(taskName string, args interface{}, due time.Time, recurringInterval *string, taskType models.ScheduledTaskType, maxAttempt int) (*models.ScheduledTask, error) {
	if taskName == "" {
		return nil, fmt.Errorf("task name is required")
	}
	if taskType == "" {
		taskType = models.ScheduledTaskTypeOneTime
	}
	if taskType == models.ScheduledTaskTypeRecurring {
		if recurringInterval == nil || *recurringInterval == "" {
			return nil, fmt.Errorf("recurring task %s needs a recurrence rule", taskName)
		}
		if _, err := rrule.StrToRRule(*recurringInterval); err != nil {
			return nil, fmt.Errorf("invalid recurrence rule %q: %w", *recurringInterval, err)
		}
	}
	if maxAttempt < 1 {
		maxAttempt = 1
	}

	var mapArgs map[string]interface{}
	if args != nil {
		argsBytes, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal args: %w", err)
		}
		if err := json.Unmarshal(argsBytes, &mapArgs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal into map: %w", err)
		}
	}

	return &models.ScheduledTask{
		TaskName:          taskName,
		Arguments:         mapArgs,
		Due:               due,
		RecurringInterval: recurringInterval,
		Status:            models.ScheduledTaskStatusActive,
		TaskType:          taskType,
		MaxAttempt:        maxAttempt,
	}, nil
}
