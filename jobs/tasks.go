package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockAudit scans inventory lots for broken quantity invariants.
	TaskStockAudit = "inventory:audit"
	// TaskDashboardWarmup precomputes dashboard stats into the cache.
	TaskDashboardWarmup = "dashboard:warmup"
)

// StockAuditPayload carries scheduling metadata.
type StockAuditPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewStockAuditTask constructs an Asynq task for the stock integrity scan.
func NewStockAuditTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(StockAuditPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockAudit, body, asynq.Queue(QueueDefault)), nil
}

// DashboardWarmupPayload carries scheduling metadata.
type DashboardWarmupPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewDashboardWarmupTask constructs an Asynq task for the dashboard warmup.
func NewDashboardWarmupTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(DashboardWarmupPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDashboardWarmup, body, asynq.Queue(QueueDefault)), nil
}
