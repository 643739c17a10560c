package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/dessert-shop/internal/cart"
	"github.com/vasiliy-maslov/dessert-shop/internal/order"
)

var ErrCustomerNotFound = errors.New("customer not found")

// Carts implements cart.Repository and order.Cart. Lines may only reference
// products that exist in the catalog store.
type Carts struct {
	catalog *Store

	mu    sync.Mutex
	lines map[uuid.UUID][]cart.Item
}

func NewCarts(catalog *Store) *Carts {
	return &Carts{catalog: catalog, lines: make(map[uuid.UUID][]cart.Item)}
}

func (c *Carts) Get(_ context.Context, ownerID uuid.UUID) (*cart.Cart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return &cart.Cart{OwnerID: ownerID, Items: append([]cart.Item{}, c.lines[ownerID]...)}, nil
}

func (c *Carts) Upsert(_ context.Context, ownerID uuid.UUID, item cart.Item, merge bool) (*cart.Item, error) {
	if merge {
		if _, ok := c.catalog.Product(item.ProductID); !ok {
			return nil, cart.ErrProductNotFound
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	lines := c.lines[ownerID]
	for i := range lines {
		if lines[i].ProductID != item.ProductID {
			continue
		}
		if merge {
			lines[i].Quantity += item.Quantity
		} else {
			lines[i].Quantity = item.Quantity
		}
		saved := lines[i]
		return &saved, nil
	}

	if !merge {
		return nil, cart.ErrItemNotFound
	}

	c.lines[ownerID] = append(lines, item)
	return &item, nil
}

func (c *Carts) Remove(_ context.Context, ownerID, productID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	lines := c.lines[ownerID]
	for i := range lines {
		if lines[i].ProductID == productID {
			c.lines[ownerID] = append(lines[:i:i], lines[i+1:]...)
			return nil
		}
	}
	return cart.ErrItemNotFound
}

func (c *Carts) Clear(_ context.Context, ownerID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.lines, ownerID)
	return nil
}

func (c *Carts) Items(ctx context.Context, ownerID uuid.UUID) ([]order.ItemRequest, error) {
	current, err := c.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return current.Lines(), nil
}

// Customers maps owners to their notification addresses.
type Customers struct {
	mu     sync.RWMutex
	emails map[uuid.UUID]string
}

func NewCustomers() *Customers {
	return &Customers{emails: make(map[uuid.UUID]string)}
}

func (c *Customers) Put(id uuid.UUID, email string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emails[id] = email
}

func (c *Customers) EmailOf(_ context.Context, ownerID uuid.UUID) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	email, ok := c.emails[ownerID]
	if !ok {
		return "", ErrCustomerNotFound
	}
	return email, nil
}
