package product

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

var ErrNegativeStock = errors.New("stock cannot go below zero")

type Product struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Category    string          `json:"category,omitempty" db:"category"`
	Description string          `json:"description,omitempty" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Stock       *int            `json:"stock,omitempty" db:"stock"` // nil: stock is not tracked
	InStock     bool            `json:"in_stock" db:"in_stock"`
	ImageURL    string          `json:"image_url,omitempty" db:"image_url"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// TracksStock reports whether checkout has to reserve units of this product.
func (p *Product) TracksStock() bool {
	return p.Stock != nil
}

// Available reports whether quantity units can be taken from the product.
// Untracked products are always available.
func (p *Product) Available(quantity int) bool {
	if !p.TracksStock() {
		return true
	}
	return *p.Stock >= quantity
}

// AdjustStock applies delta to a tracked stock counter and keeps InStock in
// sync with it. Untracked products are left unchanged.
func (p *Product) AdjustStock(delta int) error {
	if !p.TracksStock() {
		return nil
	}

	next := *p.Stock + delta
	if next < 0 {
		return ErrNegativeStock
	}

	p.Stock = &next
	p.InStock = next > 0
	return nil
}

// Clone returns a copy that does not share the stock pointer.
func (p Product) Clone() *Product {
	if p.Stock != nil {
		stock := *p.Stock
		p.Stock = &stock
	}
	return &p
}

func IntPtr(v int) *int {
	return &v
}
