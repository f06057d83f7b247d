package reporting

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires the report HTTP endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs reporting handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes. Report builds can be expensive, so
// the group carries its own tighter rate limit on top of the global one.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Use(httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Get("/low-stock", h.handleLowStock)
		r.Get("/current-stock", h.handleCurrentStock)
		r.Get("/dead-stock", h.handleDeadStock)
		r.Get("/monthly", h.handleMonthly)
		r.Get("/kpis", h.handleKPIs)
	})
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.service.LowStockAlerts(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "csv" {
		records := [][]string{{"product_id", "name", "unit", "available_stock", "reorder_point", "shortage"}}
		for _, a := range alerts {
			records = append(records, []string{
				strconv.FormatInt(a.ProductID, 10), a.Name, a.Unit,
				a.AvailableStock.String(), strconv.FormatInt(a.ReorderPoint, 10), a.Shortage.String(),
			})
		}
		h.writeCSV(w, "low_stock.csv", records)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

// handleCurrentStock reports each product's position over a date window:
// opening before start_date, purchased and sold inside it, closing at
// end_date. The window defaults to all history up to today.
func (h *Handler) handleCurrentStock(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := time.Time{}
	if raw := q.Get("start_date"); raw != "" {
		parsed, err := shared.ParseDate(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "start_date must be YYYY-MM-DD")
			return
		}
		from = parsed
	}
	to := time.Now()
	if raw := q.Get("end_date"); raw != "" {
		parsed, err := shared.ParseDate(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "end_date must be YYYY-MM-DD")
			return
		}
		to = parsed
	}

	rows, err := h.service.StockReport(r.Context(), from, to)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if q.Get("format") == "csv" {
		records := [][]string{{"product_id", "product_name", "opening", "purchased", "sold", "closing"}}
		for _, row := range rows {
			records = append(records, []string{
				strconv.FormatInt(row.ProductID, 10), row.Name,
				row.Opening.String(), row.Purchased.String(), row.Sold.String(), row.Closing.String(),
			})
		}
		h.writeCSV(w, "current_stock_report.csv", records)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"report": rows, "count": len(rows)})
}

func (h *Handler) handleDeadStock(w http.ResponseWriter, r *http.Request) {
	days := 90
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 3650 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "days must be between 1 and 3650")
			return
		}
		days = n
	}
	items, err := h.service.DeadStock(r.Context(), days)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"days": days, "items": items})
}

func (h *Handler) handleMonthly(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil || year < 2000 || year > 2200 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid year")
		return
	}
	month, err := strconv.Atoi(q.Get("month"))
	if err != nil || month < 1 || month > 12 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid month")
		return
	}

	report, err := h.service.Monthly(r.Context(), year, month)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if q.Get("format") == "csv" {
		records := [][]string{{"product_id", "name", "opening", "purchased", "sold", "closing"}}
		for _, row := range report.Rows {
			records = append(records, []string{
				strconv.FormatInt(row.ProductID, 10), row.Name,
				row.Opening.String(), row.Purchased.String(), row.Sold.String(), row.Closing.String(),
			})
		}
		h.writeCSV(w, fmt.Sprintf("monthly_%04d_%02d.csv", year, month), records)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleKPIs(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.KPIs(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) writeCSV(w http.ResponseWriter, filename string, records [][]string) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	writer := csv.NewWriter(w)
	if err := writer.WriteAll(records); err != nil {
		h.logger.Error("csv export failed", slog.Any("error", err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	h.logger.Error("report request failed", slog.Any("error", err))
	httpx.RespondError(w, err)
}
