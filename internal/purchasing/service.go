package purchasing

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
var ErrInvalidQuantity = errors.New("purchasing: line quantity must be positive")

// CatalogPort is the slice of the catalog the purchase workflow needs.
type CatalogPort interface {
	Get(ctx context.Context, id int64) (catalog.Product, error)
}

// Service books, amends and deletes purchases. Every stock effect goes
// through the ledger engine inside the order's own transaction.
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

// Create books a purchase: header, lines and one inbound movement per line
// commit atomically.
func (s *Service) Create(ctx context.Context, req CreatePurchaseRequest) (*Purchase, error) {
	purchase, items, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		id, err = repo.Create(ctx, purchase)
		if err != nil {
			return fmt.Errorf("insert purchase: %w", err)
		}
		return s.bookItems(ctx, repo, id, purchase.PurchaseDate, items)
	})
	if err != nil {
		return nil, err
	}
	s.ledger.AfterWrite(ctx)
	s.logger.Info("purchase booked", "purchase_id", id, "vendor", purchase.VendorName, "lines", len(items))
	return s.repo.Get(ctx, id)
}

// Update replaces an existing purchase. The old movements are reversed and
// the new lines reapplied, all in one transaction, so the ledger keeps the
// full correction history.
func (s *Service) Update(ctx context.Context, id int64, req CreatePurchaseRequest) (*Purchase, error) {
	purchase, items, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.Get(ctx, id); err != nil {
			return err
		}
		if err := s.ledger.Reverse(ctx, repo.Ledger(), referenceType, id, fmt.Sprintf("purchase %d amended", id)); err != nil {
			return err
		}
		if err := repo.DeleteItems(ctx, id); err != nil {
			return fmt.Errorf("delete purchase items: %w", err)
		}
		if err := repo.UpdateHeader(ctx, id, purchase); err != nil {
			return err
		}
		return s.bookItems(ctx, repo, id, purchase.PurchaseDate, items)
	})
	if err != nil {
		return nil, err
	}
	s.ledger.AfterWrite(ctx)
	s.logger.Info("purchase amended", "purchase_id", id)
	return s.repo.Get(ctx, id)
}

// Delete removes the purchase rows and books offsetting outbound movements
// dated today. The original entries stay in the ledger. Deletion fails if
// the received stock has already been sold on.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := repo.Get(ctx, id); err != nil {
			return err
		}
		if err := s.ledger.Reverse(ctx, repo.Ledger(), referenceType, id, fmt.Sprintf("purchase %d deleted", id)); err != nil {
			return err
		}
		if err := repo.DeleteItems(ctx, id); err != nil {
			return fmt.Errorf("delete purchase items: %w", err)
		}
		return repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.ledger.AfterWrite(ctx)
	s.logger.Info("purchase deleted", "purchase_id", id)
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Purchase, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListRequest) ([]Purchase, int, error) {
	return s.repo.List(ctx, req)
}

const referenceType = "purchase"

// resolve validates the request against the catalog and prices the lines.
// Runs before the transaction so catalog reads do not extend lock hold
// time.
func (s *Service) resolve(ctx context.Context, req CreatePurchaseRequest) (Purchase, []PurchaseItem, error) {
	date := shared.DateOnly(s.now())
	if req.PurchaseDate != "" {
		parsed, err := shared.ParseDate(req.PurchaseDate)
		if err != nil {
			return Purchase{}, nil, err
		}
		date = parsed
	}

	items := make([]PurchaseItem, 0, len(req.Items))
	total := decimal.Zero
	for _, line := range req.Items {
		if !line.Quantity.IsPositive() {
			return Purchase{}, nil, fmt.Errorf("%w: product %d", ErrInvalidQuantity, line.ProductID)
		}
		product, err := s.catalog.Get(ctx, line.ProductID)
		if err != nil {
			return Purchase{}, nil, err
		}
		unitPrice := line.UnitPrice
		if unitPrice.IsZero() {
			unitPrice = product.UnitPrice
		}
		if unitPrice.IsNegative() {
			return Purchase{}, nil, fmt.Errorf("purchasing: negative unit price for product %d", line.ProductID)
		}
		lineTotal := unitPrice.Mul(line.Quantity)
		items = append(items, PurchaseItem{
			ProductID:   line.ProductID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   unitPrice,
			TotalPrice:  lineTotal,
		})
		total = total.Add(lineTotal)
	}

	return Purchase{
		VendorName:    req.VendorName,
		InvoiceNumber: req.InvoiceNumber,
		PurchaseDate:  date,
		Notes:         req.Notes,
		TotalAmount:   total,
	}, items, nil
}

func (s *Service) bookItems(ctx context.Context, repo Repository, purchaseID int64, date time.Time, items []PurchaseItem) error {
	ledgerTx := repo.Ledger()
	for _, item := range items {
		item.PurchaseID = purchaseID
		if _, err := repo.InsertItem(ctx, item); err != nil {
			return fmt.Errorf("insert purchase item: %w", err)
		}
		refID := purchaseID
		_, err := s.ledger.Apply(ctx, ledgerTx, ledger.MovementInput{
			ProductID:       item.ProductID,
			Type:            ledger.TypePurchase,
			Quantity:        item.Quantity,
			ReferenceID:     &refID,
			ReferenceType:   referenceType,
			TransactionDate: date,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
