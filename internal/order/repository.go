package order

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/dessert-shop/internal/product"
)

// ProductStore is the product view of a running transaction.
type ProductStore interface {
	// Get returns the product and holds it against concurrent stock changes
	// until the transaction ends.
	Get(ctx context.Context, id uuid.UUID) (*product.Product, error)
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*product.Product, error)
}

// OrderStore is the order view of a running transaction.
type OrderStore interface {
	Create(ctx context.Context, order *Order) (*Order, error)
	// Get returns the order and holds it until the transaction ends.
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	Save(ctx context.Context, order *Order) (*Order, error)
}

type Tx interface {
	Products() ProductStore
	Orders() OrderStore
}

// Store runs transactions and serves order history outside of them.
type Store interface {
	// InTx commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Order, error)
	ListAll(ctx context.Context) ([]Order, error)
}

// Cart is the owner's saved cart, read as checkout lines.
type Cart interface {
	Items(ctx context.Context, ownerID uuid.UUID) ([]ItemRequest, error)
	Clear(ctx context.Context, ownerID uuid.UUID) error
}

// Notifier delivers messages in the background. Send must not block on delivery.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string)
}

type Recipients interface {
	EmailOf(ctx context.Context, ownerID uuid.UUID) (string, error)
}
