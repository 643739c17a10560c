package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vasiliy-maslov/dessert-shop/internal/order"
)

const orderColumns = `id, owner_id, items, total, status, created_at, updated_at`

type orderStore struct {
	db DB
}

func (r *orderStore) Create(ctx context.Context, o *order.Order) (*order.Order, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to encode items of order %s: %w", o.ID, err)
	}

	query := `
		INSERT INTO orders (id, owner_id, items, total, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.Exec(ctx, query,
		o.ID,
		o.OwnerID,
		items,
		o.Total,
		string(o.Status),
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to insert order %s: %w", o.ID, err)
	}

	return o.Clone(), nil
}

func (r *orderStore) Get(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	var (
		o     order.Order
		items []byte
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&o.ID,
		&o.OwnerID,
		&items,
		&o.Total,
		&o.Status,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order %s: %w", id, err)
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("repository: failed to decode items of order %s: %w", id, err)
	}

	return &o, nil
}

// Save persists a status change. Items and total are never rewritten.
func (r *orderStore) Save(ctx context.Context, o *order.Order) (*order.Order, error) {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`,
		o.ID,
		string(o.Status),
		o.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to update order %s: %w", o.ID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return nil, order.ErrOrderNotFound
	}

	return o.Clone(), nil
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var o order.Order
	err := s.reader.GetContext(ctx, &o, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, classify(fmt.Errorf("repository: failed to select order %s: %w", id, err))
	}
	return &o, nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]order.Order, error) {
	orders := make([]order.Order, 0)
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
	`
	if err := s.reader.SelectContext(ctx, &orders, query, ownerID); err != nil {
		return nil, classify(fmt.Errorf("repository: failed to query orders for owner %s: %w", ownerID, err))
	}
	return orders, nil
}

func (s *Store) ListAll(ctx context.Context) ([]order.Order, error) {
	orders := make([]order.Order, 0)
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, id DESC`
	if err := s.reader.SelectContext(ctx, &orders, query); err != nil {
		return nil, classify(fmt.Errorf("repository: failed to query orders: %w", err))
	}
	return orders, nil
}
