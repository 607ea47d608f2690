package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/petshophq/petshop-backend/libs/outbox"
	"github.com/petshophq/petshop-backend/services/inv-service/internal/events"
	"github.com/petshophq/petshop-backend/services/inv-service/internal/storage"
)

var (
	ErrProductNotFound = errors.New("one or more products in the cart were not found")
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

type ItemRequest struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type SaleRequest struct {
	Items []ItemRequest `json:"items"`
}

type Receipt struct {
	Message string          `json:"message"`
	Total   decimal.Decimal `json:"total"`
	At      time.Time       `json:"at"`
}

type RestockRequest struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Note      string          `json:"note"`
}

// ProductStore is the slice of the product repository the sale and restock
// flows use.
type ProductStore interface {
	GetByIDs(ctx context.Context, tx pgx.Tx, ids []int64) ([]storage.Product, error)
	DecrementStock(ctx context.Context, tx pgx.Tx, id int64, qty decimal.Decimal) (decimal.Decimal, error)
	IncrementStock(ctx context.Context, tx pgx.Tx, id int64, qty decimal.Decimal) (decimal.Decimal, error)
	InsertMovement(ctx context.Context, tx pgx.Tx, m storage.Movement) error
}

// EventAppender records a domain event on the caller's transaction.
type EventAppender interface {
	Append(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

// Service executes sales. Stock decrements, movement records and any
// low-stock events all commit or roll back as one unit.
type Service struct {
	db       outbox.TxBeginner
	products ProductStore
	appender EventAppender
	logger   *slog.Logger
}

func NewService(db outbox.TxBeginner, products ProductStore, appender EventAppender, logger *slog.Logger) *Service {
	return &Service{db: db, products: products, appender: appender, logger: logger}
}

func (s *Service) MakeSale(ctx context.Context, req SaleRequest) (*Receipt, error) {
	if len(req.Items) == 0 {
		return nil, errors.New("sale has no items")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin sale tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]int64, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.ProductID)
	}

	products, err := s.products.GetByIDs(ctx, tx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	byID := make(map[int64]storage.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	total := decimal.Zero
	now := time.Now().UTC()
	for _, item := range req.Items {
		product, ok := byID[item.ProductID]
		if !ok {
			return nil, ErrProductNotFound
		}

		remaining, err := s.products.DecrementStock(ctx, tx, product.ID, item.Quantity)
		if err != nil {
			if errors.Is(err, storage.ErrInsufficientStock) {
				return nil, fmt.Errorf("%w: %s", storage.ErrInsufficientStock, product.Name)
			}
			return nil, fmt.Errorf("decrement stock for %s: %w", product.Name, err)
		}

		if err := s.products.InsertMovement(ctx, tx, storage.Movement{
			ProductID: product.ID,
			Quantity:  item.Quantity,
			Kind:      storage.MovementOut,
			Note:      "point-of-sale",
			At:        now,
		}); err != nil {
			return nil, fmt.Errorf("record movement for %s: %w", product.Name, err)
		}

		if err := s.maybeAppendStockLow(ctx, tx, product, item.Quantity, remaining); err != nil {
			return nil, err
		}

		total = total.Add(product.Price.Mul(item.Quantity))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit sale: %w", err)
	}
	return &Receipt{Message: "sale completed", Total: total, At: now}, nil
}

// Restock adds inbound stock and records the movement in one transaction.
func (s *Service) Restock(ctx context.Context, req RestockRequest) error {
	if !req.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin restock tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stock, err := s.products.IncrementStock(ctx, tx, req.ProductID, req.Quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}

	note := req.Note
	if note == "" {
		note = "restock"
	}
	if err := s.products.InsertMovement(ctx, tx, storage.Movement{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Kind:      storage.MovementIn,
		Note:      note,
		At:        time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("record restock movement: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit restock: %w", err)
	}
	s.logger.Info("stock replenished",
		"product_id", req.ProductID, "quantity", req.Quantity.String(), "stock", stock.String())
	return nil
}

// maybeAppendStockLow stages a low-stock alert when this decrement crossed
// the minimum threshold. Only the crossing emits an event, so a product
// sitting below its minimum does not alert on every further sale.
func (s *Service) maybeAppendStockLow(ctx context.Context, tx pgx.Tx, product storage.Product, qty, remaining decimal.Decimal) error {
	if !product.MinStock.Valid {
		return nil
	}
	minimum := product.MinStock.Decimal
	before := remaining.Add(qty)
	if before.LessThanOrEqual(minimum) || remaining.GreaterThan(minimum) {
		return nil
	}

	event := events.NewStockLow(product.Name, remaining, minimum)
	evt, err := event.Outbox()
	if err != nil {
		return fmt.Errorf("serialize stock-low event for %s: %w", product.Name, err)
	}
	if err := s.appender.Append(ctx, tx, evt); err != nil {
		return fmt.Errorf("append stock-low event for %s: %w", product.Name, err)
	}
	s.logger.Info("stock crossed minimum, alert staged",
		"product", product.Name, "remaining", remaining.String(), "minimum", minimum.String())
	return nil
}
