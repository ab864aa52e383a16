package tasks

import "userform_payments/internal/services"

// DefineTasks registers all available tasks
func DefineTasks(r *Registry, payments *services.PaymentService) {
	syncTask := &SyncPendingPaymentsTaskDef{Payments: payments}
	r.Register(syncTask.TaskID(), syncTask.HandleExecution)

	voidTask := &VoidAbandonedPaymentsTaskDef{Payments: payments}
	r.Register(voidTask.TaskID(), voidTask.HandleExecution)
}
