package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/reporting"
)

// ReportWarmupJob pre-populates the report cache so the first dashboard
// request after an invalidation does not pay the build cost.
type ReportWarmupJob struct {
	reports *reporting.Service
	logger  *slog.Logger
	now     func() time.Time
}

// NewReportWarmupJob constructs the job.
func NewReportWarmupJob(reports *reporting.Service, logger *slog.Logger) *ReportWarmupJob {
	return &ReportWarmupJob{reports: reports, logger: logger, now: time.Now}
}

// Handle processes TaskReportWarmup tasks. Individual report failures are
// logged but do not abort the remaining warmups.
func (j *ReportWarmupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	warmed := 0
	if _, err := j.reports.KPIs(ctx); err != nil {
		j.logger.Warn("kpi warmup failed", slog.Any("error", err))
	} else {
		warmed++
	}
	if _, err := j.reports.LowStockAlerts(ctx); err != nil {
		j.logger.Warn("low stock warmup failed", slog.Any("error", err))
	} else {
		warmed++
	}
	if _, err := j.reports.StockReport(ctx, time.Time{}, j.now()); err != nil {
		j.logger.Warn("current stock warmup failed", slog.Any("error", err))
	} else {
		warmed++
	}
	now := j.now()
	if _, err := j.reports.Monthly(ctx, now.Year(), int(now.Month())); err != nil {
		j.logger.Warn("monthly warmup failed", slog.Any("error", err))
	} else {
		warmed++
	}
	j.logger.Info("report warmup finished", slog.Int("warmed", warmed))
	return nil
}
