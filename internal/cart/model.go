package cart

import (
	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/dessert-shop/internal/order"
)

type Item struct {
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
}

type Cart struct {
	OwnerID uuid.UUID `json:"owner_id"`
	Items   []Item    `json:"items"`
}

// Lines converts the cart into checkout lines.
func (c *Cart) Lines() []order.ItemRequest {
	lines := make([]order.ItemRequest, 0, len(c.Items))
	for _, item := range c.Items {
		lines = append(lines, order.ItemRequest{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}
