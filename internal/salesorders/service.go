package salesorders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/catalog"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ErrInvalidQuantity rejects non-positive line quantities.
var ErrInvalidQuantity = errors.New("salesorders: line quantity must be positive")

const referenceType = "sale"

// CatalogPort is the slice of the catalog the sale workflow needs.
type CatalogPort interface {
	Get(ctx context.Context, id int64) (catalog.Product, error)
}

// Service books and deletes sales against the stock ledger.
type Service struct {
	repo    Repository
	catalog CatalogPort
	ledger  *ledger.Service
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs Service.
func NewService(repo Repository, cat CatalogPort, eng *ledger.Service, logger *slog.Logger) *Service {
	return &Service{repo: repo, catalog: cat, ledger: eng, logger: logger, now: time.Now}
}

// Create books a sale. Header, lines and one outbound movement per line
// commit atomically; if any line would oversell, nothing is written and
// the insufficiency detail names the offending product.
func (s *Service) Create(ctx context.Context, req CreateSaleRequest) (*Sale, error) {
	sale, items, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	// Fast-fail on obviously short lines. The locked check inside the
	// transaction remains the one that counts.
	for _, item := range items {
		snap, err := s.ledger.CurrentBalance(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		if snap.AvailableStock.LessThan(item.Quantity) {
			return nil, &ledger.InsufficientStockError{
				ProductID: item.ProductID,
				Available: snap.AvailableStock,
				Requested: item.Quantity,
			}
		}
	}

	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		id, err = repo.Create(ctx, sale)
		if err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}
		ledgerTx := repo.Ledger()
		for _, item := range items {
			item.SaleID = id
			if _, err := repo.InsertItem(ctx, item); err != nil {
				return fmt.Errorf("insert sale item: %w", err)
			}
			refID := id
			_, err := s.ledger.Apply(ctx, ledgerTx, ledger.MovementInput{
				ProductID:       item.ProductID,
				Type:            ledger.TypeSale,
				Quantity:        item.Quantity.Neg(),
				ReferenceID:     &refID,
				ReferenceType:   referenceType,
				TransactionDate: sale.SaleDate,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.ledger.AfterWrite(ctx)
	s.logger.Info("sale booked", "sale_id", id, "customer", sale.CustomerName, "lines", len(items))
	return s.repo.Get(ctx, id)
}

// Delete removes the sale rows and books offsetting inbound movements
// dated today. The sold quantities return to stock.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.Get(ctx, id); err != nil {
			return err
		}
		if err := s.ledger.Reverse(ctx, repo.Ledger(), referenceType, id, fmt.Sprintf("sale %d deleted", id)); err != nil {
			return err
		}
		if err := repo.DeleteItems(ctx, id); err != nil {
			return fmt.Errorf("delete sale items: %w", err)
		}
		return repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.ledger.AfterWrite(ctx)
	s.logger.Info("sale deleted", "sale_id", id)
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Sale, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListRequest) ([]Sale, int, error) {
	return s.repo.List(ctx, req)
}

func (s *Service) resolve(ctx context.Context, req CreateSaleRequest) (Sale, []SaleItem, error) {
	date := shared.DateOnly(s.now())
	if req.SaleDate != "" {
		parsed, err := shared.ParseDate(req.SaleDate)
		if err != nil {
			return Sale{}, nil, err
		}
		date = parsed
	}

	items := make([]SaleItem, 0, len(req.Items))
	total := decimal.Zero
	for _, line := range req.Items {
		if !line.Quantity.IsPositive() {
			return Sale{}, nil, fmt.Errorf("%w: product %d", ErrInvalidQuantity, line.ProductID)
		}
		product, err := s.catalog.Get(ctx, line.ProductID)
		if err != nil {
			return Sale{}, nil, err
		}
		unitPrice := line.UnitPrice
		if unitPrice.IsZero() {
			unitPrice = product.UnitPrice
		}
		if unitPrice.IsNegative() {
			return Sale{}, nil, fmt.Errorf("salesorders: negative unit price for product %d", line.ProductID)
		}
		lineTotal := unitPrice.Mul(line.Quantity)
		items = append(items, SaleItem{
			ProductID:   line.ProductID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   unitPrice,
			TotalPrice:  lineTotal,
		})
		total = total.Add(lineTotal)
	}

	return Sale{
		CustomerName:  req.CustomerName,
		InvoiceNumber: req.InvoiceNumber,
		SaleDate:      date,
		Notes:         req.Notes,
		TotalAmount:   total,
	}, items, nil
}
