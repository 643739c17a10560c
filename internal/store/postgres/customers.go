package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrCustomerNotFound = errors.New("customer not found")

// Customers resolves order owners to their mail addresses.
type Customers struct {
	db DB
}

func NewCustomers(db DB) *Customers {
	return &Customers{db: db}
}

func (c *Customers) EmailOf(ctx context.Context, ownerID uuid.UUID) (string, error) {
	var email string
	err := c.db.QueryRow(ctx, `SELECT email FROM customers WHERE id = $1`, ownerID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrCustomerNotFound
		}
		return "", fmt.Errorf("repository: failed to select email of customer %s: %w", ownerID, err)
	}
	return email, nil
}

func (c *Customers) Put(ctx context.Context, id uuid.UUID, email, name string) error {
	query := `
		INSERT INTO customers (id, email, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name
	`
	if _, err := c.db.Exec(ctx, query, id, email, name); err != nil {
		return fmt.Errorf("repository: failed to upsert customer %s: %w", id, err)
	}
	return nil
}
