package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/reporting"
)

// Enqueuer abstracts task submission for the jobs that fan out more work.
type Enqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) error
}

// LowStockScanJob sweeps for products strictly below their reorder point
// and mails a summary when any are found.
type LowStockScanJob struct {
	reports    *reporting.Service
	enqueuer   Enqueuer
	alertEmail string
	logger     *slog.Logger
}

// NewLowStockScanJob constructs the job. An empty alertEmail disables the
// mail fan-out and only logs the sweep result.
func NewLowStockScanJob(reports *reporting.Service, enqueuer Enqueuer, alertEmail string, logger *slog.Logger) *LowStockScanJob {
	return &LowStockScanJob{reports: reports, enqueuer: enqueuer, alertEmail: alertEmail, logger: logger}
}

// Handle processes TaskLowStockScan tasks.
func (j *LowStockScanJob) Handle(ctx context.Context, _ *asynq.Task) error {
	alerts, err := j.reports.LowStockAlerts(ctx)
	if err != nil {
		j.logger.Error("low stock scan failed", slog.Any("error", err))
		return err
	}
	j.logger.Info("low stock scan finished", slog.Int("alerts", len(alerts)))
	if len(alerts) == 0 || j.alertEmail == "" || j.enqueuer == nil {
		return nil
	}

	var body strings.Builder
	for _, alert := range alerts {
		fmt.Fprintf(&body, "%s: %s %s on hand, reorder at %d (short %s)\n",
			alert.Name, alert.AvailableStock.String(), alert.Unit,
			alert.ReorderPoint, alert.Shortage.String())
	}
	err = j.enqueuer.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      j.alertEmail,
		Subject: fmt.Sprintf("Low stock: %d product(s) need reordering", len(alerts)),
		Body:    body.String(),
	})
	if err != nil {
		j.logger.Error("low stock alert enqueue failed", slog.Any("error", err))
		return err
	}
	return nil
}
