package order

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// OrderItem is a snapshot of a product taken when the order was placed.
type OrderItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"snapshot_price"`
	ImageURL  string          `json:"image_url,omitempty"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Items is stored as a single JSONB document next to the order row.
type Items []OrderItem

func (it Items) Value() (driver.Value, error) {
	if it == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(it)
}

func (it *Items) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		*it = Items{}
		return nil
	default:
		return fmt.Errorf("order: cannot scan %T into items", src)
	}
	return json.Unmarshal(data, it)
}

func (it Items) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range it {
		total = total.Add(item.LineTotal())
	}
	return total
}

type Order struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	OwnerID   uuid.UUID       `json:"owner_id" db:"owner_id"`
	Items     Items           `json:"items" db:"items"`
	Total     decimal.Decimal `json:"total" db:"total"`
	Status    Status          `json:"status" db:"status"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// MaxItemQuantity bounds a single order line; stock is a 32-bit column.
const MaxItemQuantity = 100_000

// ItemRequest is one requested line of a checkout.
type ItemRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// Viewer identifies who is reading an order.
type Viewer struct {
	UserID  uuid.UUID
	IsAdmin bool
}

func (o *Order) Clone() *Order {
	c := *o
	c.Items = append(Items(nil), o.Items...)
	return &c
}

func validateItems(items []ItemRequest) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", ErrInvalidRequest)
	}

	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return fmt.Errorf("%w: product id in order item cannot be nil", ErrInvalidRequest)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: quantity for product %s must be greater than zero", ErrInvalidRequest, item.ProductID)
		}
		if item.Quantity > MaxItemQuantity {
			return fmt.Errorf("%w: quantity for product %s cannot exceed %d", ErrInvalidRequest, item.ProductID, MaxItemQuantity)
		}
	}

	return nil
}

// normalizeItems validates the request and folds it into one line per product.
func normalizeItems(items []ItemRequest) ([]ItemRequest, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}
	return mergeItems(items)
}

// mergeItems folds repeated product lines into one line per product while
// keeping the order of first appearance. Lines must already be validated.
func mergeItems(items []ItemRequest) ([]ItemRequest, error) {
	merged := make([]ItemRequest, 0, len(items))
	index := make(map[uuid.UUID]int, len(items))

	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			if item.Quantity > MaxItemQuantity-merged[i].Quantity {
				return nil, fmt.Errorf("%w: total quantity for product %s cannot exceed %d", ErrInvalidRequest, item.ProductID, MaxItemQuantity)
			}
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}

	return merged, nil
}

var errNilOwner = errors.New("owner id cannot be nil")
