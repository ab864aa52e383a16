package tasks

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"userform_payments/internal/models"
	"userform_payments/internal/services"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "tasks.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := services.AutoMigrate(db); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestBuildScheduledTask(t *testing.T) {
	rule := "FREQ=MINUTELY;INTERVAL=5"
	badRule := "FREQ=SOMETIMES"
	empty := ""
	due := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		taskName string
		rule     *string
		taskType models.ScheduledTaskType
		wantErr  bool
	}{
		{"one time", "sync_pending_payments", nil, models.ScheduledTaskTypeOneTime, false},
		{"default type", "sync_pending_payments", nil, "", false},
		{"recurring", "sync_pending_payments", &rule, models.ScheduledTaskTypeRecurring, false},
		{"recurring without rule", "sync_pending_payments", &empty, models.ScheduledTaskTypeRecurring, true},
		{"recurring with bad rule", "sync_pending_payments", &badRule, models.ScheduledTaskTypeRecurring, true},
		{"missing name", "", nil, models.ScheduledTaskTypeOneTime, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := BuildScheduledTask(tt.taskName, map[string]int{"older_than_minutes": 10}, due, tt.rule, tt.taskType, 0)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if task.Status != models.ScheduledTaskStatusActive || task.MaxAttempt != 1 || task.TaskType == "" {
				t.Errorf("task = %+v", task)
			}
			if task.Arguments["older_than_minutes"] != float64(10) {
				t.Errorf("arguments = %v", task.Arguments)
			}
		})
	}
}

func TestIntArg(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]interface{}
		want    int
		wantErr bool
	}{
		{"missing", map[string]interface{}{}, 5, false},
		{"json number", map[string]interface{}{"n": float64(12)}, 12, false},
		{"int", map[string]interface{}{"n": 7}, 7, false},
		{"string", map[string]interface{}{"n": "30"}, 30, false},
		{"bad string", map[string]interface{}{"n": "soon"}, 0, true},
		{"bad type", map[string]interface{}{"n": true}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := intArg(tt.args, "n", 5)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d; want %d", got, tt.want)
			}
		})
	}
}

func createTask(t *testing.T, db *gorm.DB, name string, due time.Time, rule string, maxAttempt int) *models.ScheduledTask {
	t.Helper()
	taskType := models.ScheduledTaskTypeOneTime
	var rulePtr *string
	if rule != "" {
		taskType = models.ScheduledTaskTypeRecurring
		rulePtr = &rule
	}
	task, err := BuildScheduledTask(name, nil, due, rulePtr, taskType, maxAttempt)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Create(task).Error; err != nil {
		t.Fatal(err)
	}
	return task
}

func TestRunnerRunDue(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)

	calls := map[string]int{}
	registry := NewRegistry()
	registry.Register("ok", func(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
		calls["ok"]++
		return map[string]interface{}{"status": "success"}, nil
	})
	registry.Register("broken", func(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
		calls["broken"]++
		return nil, errors.New("gateway unavailable")
	})

	oneTime := createTask(t, db, "ok", now.Add(-time.Minute), "", 1)
	future := createTask(t, db, "ok", now.Add(time.Hour), "", 1)
	recurring := createTask(t, db, "ok", now.Add(-time.Minute), "FREQ=MINUTELY;INTERVAL=5", 1)
	failing := createTask(t, db, "broken", now.Add(-time.Minute), "", 3)
	unknown := createTask(t, db, "missing", now.Add(-time.Minute), "", 1)

	ran, err := NewRunner(db, registry).RunDue(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if ran != 4 {
		t.Errorf("ran = %d; want 4", ran)
	}
	if calls["ok"] != 2 || calls["broken"] != 3 {
		t.Errorf("calls = %v", calls)
	}

	status := func(task *models.ScheduledTask) models.ScheduledTask {
		var got models.ScheduledTask
		if err := db.First(&got, task.ID).Error; err != nil {
			t.Fatal(err)
		}
		return got
	}

	if got := status(oneTime); got.Status != models.ScheduledTaskStatusDone || got.LastRun == nil {
		t.Errorf("one time task = %+v", got)
	}
	if got := status(future); got.Status != models.ScheduledTaskStatusActive || got.LastRun != nil {
		t.Errorf("future task = %+v", got)
	}
	if got := status(recurring); got.Status != models.ScheduledTaskStatusActive || !got.Due.After(now) {
		t.Errorf("recurring task = %+v", got)
	}
	if got := status(failing); got.Status != models.ScheduledTaskStatusFailure {
		t.Errorf("failing task = %+v", got)
	}
	if got := status(unknown); got.Status != models.ScheduledTaskStatusFailure {
		t.Errorf("unknown task = %+v", got)
	}

	var attempts int64
	db.Model(&models.ScheduledTaskHistory{}).Where("scheduled_task_id = ?", failing.ID).Count(&attempts)
	if attempts != 3 {
		t.Errorf("failing task history = %d; want 3", attempts)
	}
}

type settlingGateway struct{}

func (settlingGateway) Name() string  { return "Settling" }
func (settlingGateway) Offsite() bool { return true }

func (settlingGateway) Purchase(ctx context.Context, req services.PurchaseRequest) (*services.GatewayResponse, error) {
	return &services.GatewayResponse{Outcome: services.OutcomeRedirect, RedirectURL: "https://gateway.test"}, nil
}

func (settlingGateway) CompletePurchase(ctx context.Context, payment *models.Payment, params url.Values) (*services.GatewayResponse, error) {
	return &services.GatewayResponse{Outcome: services.OutcomeCaptured, Reference: "SETTLED"}, nil
}

func TestPaymentTasks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	payments := services.NewPaymentService(db, services.NewGatewayRegistry(settlingGateway{}), "https://example.com")

	pending, err := payments.CreatePayment(ctx, "Settling", decimal.NewFromInt(10), "AUD", "https://example.com/ok", "https://example.com/fail")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := payments.Initiate(ctx, pending, nil); err != nil {
		t.Fatal(err)
	}
	abandoned, err := payments.CreatePayment(ctx, "Settling", decimal.NewFromInt(10), "AUD", "https://example.com/ok", "https://example.com/fail")
	if err != nil {
		t.Fatal(err)
	}
	db.Model(&models.Payment{}).Where("id = ?", abandoned.ID).UpdateColumn("created_at", time.Now().Add(-48*time.Hour))

	registry := NewRegistry()
	DefineTasks(registry, payments)
	if names := registry.Names(); len(names) != 2 {
		t.Fatalf("registered = %v", names)
	}

	syncTask, _ := registry.Get("sync_pending_payments")
	result, err := syncTask(ctx, db, models.ScheduledTask{Arguments: map[string]interface{}{"older_than_minutes": float64(0)}})
	if err != nil {
		t.Fatal(err)
	}
	if result["changed"] != 1 {
		t.Errorf("sync result = %v", result)
	}

	voidTask, _ := registry.Get("void_abandoned_payments")
	result, err = voidTask(ctx, db, models.ScheduledTask{})
	if err != nil {
		t.Fatal(err)
	}
	if result["voided"] != 1 {
		t.Errorf("void result = %v", result)
	}

	if _, err := voidTask(ctx, db, models.ScheduledTask{Arguments: map[string]interface{}{"max_age_hours": float64(0)}}); err == nil {
		t.Error("max_age_hours 0 should be rejected")
	}

	var gotPending, gotAbandoned models.Payment
	if err := db.First(&gotPending, pending.ID).Error; err != nil {
		t.Fatal(err)
	}
	if gotPending.Status != models.PaymentStatusCaptured {
		t.Errorf("pending payment status = %s", gotPending.Status)
	}
	if err := db.First(&gotAbandoned, abandoned.ID).Error; err != nil {
		t.Fatal(err)
	}
	if gotAbandoned.Status != models.PaymentStatusVoid {
		t.Errorf("abandoned payment status = %s", gotAbandoned.Status)
	}
}
