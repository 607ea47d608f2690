package events

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/petshophq/petshop-backend/libs/outbox"
)

const (
	ExchangeInventory  = "inventory.v1.events"
	RoutingKeyStockLow = "inventory.stock.low"
	TypeStockLow       = "inventory.stock.low.v1"
)

// StockLow signals that a product's stock crossed its minimum threshold
// during a sale.
type StockLow struct {
	Version      int             `json:"version"`
	ID           string          `json:"event_id"`
	ProductName  string          `json:"product_name"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	MinimumStock decimal.Decimal `json:"minimum_stock"`
}

func NewStockLow(productName string, current, minimum decimal.Decimal) StockLow {
	return StockLow{
		Version:      1,
		ID:           uuid.NewString(),
		ProductName:  productName,
		CurrentStock: current,
		MinimumStock: minimum,
	}
}

func (e StockLow) EventID() string   { return e.ID }
func (e StockLow) EventVersion() int { return e.Version }

// Outbox serializes the event into a row for the outbox writer.
func (e StockLow) Outbox() (outbox.Event, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return outbox.Event{}, err
	}
	return outbox.Event{
		Exchange:   ExchangeInventory,
		RoutingKey: RoutingKeyStockLow,
		EventType:  TypeStockLow,
		Payload:    payload,
		Version:    e.Version,
	}, nil
}

// Register wires this service's event kinds into a dispatch registry.
func Register(reg *outbox.Registry) {
	reg.Register(TypeStockLow, func(payload []byte) (outbox.Envelope, error) {
		var e StockLow
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		return e, nil
	})
}
