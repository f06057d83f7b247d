// Package jobs holds the background work: nightly ledger reconciliation,
// the hourly low-stock sweep, report cache warmup and mail dispatch.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockIntegrity reconciles stock snapshots against the ledger.
	TaskStockIntegrity = "stock:integrity"
	// TaskLowStockScan sweeps for products under their reorder point.
	TaskLowStockScan = "stock:lowstock_scan"
	// TaskReportWarmup pre-populates the report cache.
	TaskReportWarmup = "reports:warmup"
	// TaskTypeSendEmail dispatches a transactional email.
	TaskTypeSendEmail = "mail:send"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs the mail task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// SendEmailHandler logs outbound mail. SMTP wiring replaces the logger
// call once a relay is provisioned.
func SendEmailHandler(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		logger.Info("email dispatched",
			slog.String("to", payload.To),
			slog.String("subject", payload.Subject))
		return nil
	}
}

// StockIntegrityPayload controls the reconciliation sweep.
type StockIntegrityPayload struct {
	Repair bool `json:"repair"`
}

// NewStockIntegrityTask constructs the reconciliation task.
func NewStockIntegrityTask(payload StockIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockIntegrity, data), nil
}

// NewLowStockScanTask constructs the low-stock sweep task.
func NewLowStockScanTask() *asynq.Task {
	return asynq.NewTask(TaskLowStockScan, nil)
}

// NewReportWarmupTask constructs the cache warmup task.
func NewReportWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskReportWarmup, nil)
}
