package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires the stock ledger HTTP endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock", h.handleListStock)
	r.Get("/stock/{productID}", h.handleCurrentBalance)
	r.Get("/stock-ledger", h.handleListMovements)
	r.Get("/stock-ledger/{productID}/balance", h.handleCurrentBalance)
	r.Get("/stock-ledger/{productID}/opening/{year}/{month}", h.handleOpening)
	r.Get("/stock-ledger/{productID}/closing/{year}/{month}", h.handleClosing)
	r.Post("/stock-adjustments", h.handleAdjustment)
}

type adjustmentRequest struct {
	ProductID       int64           `json:"product_id" validate:"required,gt=0"`
	Quantity        decimal.Decimal `json:"quantity"`
	Notes           string          `json:"notes" validate:"max=500"`
	TransactionDate string          `json:"transaction_date" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := MovementInput{
		ProductID: req.ProductID,
		Type:      TypeAdjustment,
		Quantity:  req.Quantity,
		Notes:     req.Notes,
	}
	if req.TransactionDate != "" {
		date, err := shared.ParseDate(req.TransactionDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		input.TransactionDate = date
	}

	posted, err := h.service.RecordMovement(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, posted)
}

func (h *Handler) handleListStock(w http.ResponseWriter, r *http.Request) {
	levels, err := h.service.StockLevels(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stock": levels})
}

func (h *Handler) handleCurrentBalance(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.productIDParam(w, r)
	if !ok {
		return
	}
	snap, err := h.service.CurrentBalance(r.Context(), productID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	filter := Filter{Limit: 100}
	q := r.URL.Query()
	if raw := q.Get("product_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id must be a positive integer")
			return
		}
		filter.ProductID = &id
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			filter.Limit = n
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	entries, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	views := make([]movementView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, movementView{
			Entry:       entry,
			QuantityIn:  entry.QuantityIn(),
			QuantityOut: entry.QuantityOut(),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": views})
}

// movementView adds the two-column quantity form to a listed entry.
type movementView struct {
	Entry
	QuantityIn  decimal.Decimal `json:"quantity_in"`
	QuantityOut decimal.Decimal `json:"quantity_out"`
}

func (h *Handler) handleOpening(w http.ResponseWriter, r *http.Request) {
	h.handleMonthBalance(w, r, false)
}

func (h *Handler) handleClosing(w http.ResponseWriter, r *http.Request) {
	h.handleMonthBalance(w, r, true)
}

func (h *Handler) handleMonthBalance(w http.ResponseWriter, r *http.Request, closing bool) {
	productID, ok := h.productIDParam(w, r)
	if !ok {
		return
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 2000 || year > 2200 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid year")
		return
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid month")
		return
	}
	first, next, err := shared.MonthBounds(year, month)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	var balance decimal.Decimal
	kind := "opening"
	if closing {
		kind = "closing"
		balance, err = h.service.ClosingStock(r.Context(), productID, next.AddDate(0, 0, -1))
	} else {
		balance, err = h.service.OpeningStock(r.Context(), productID, first)
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"product_id": productID,
		"year":       year,
		"month":      month,
		kind:         balance,
	})
}

func (h *Handler) productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var insufficient *InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", insufficient.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidType):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("ledger request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
