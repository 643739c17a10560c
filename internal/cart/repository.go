package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vasiliy-maslov/dessert-shop/internal/order"
)

var (
	ErrItemNotFound    = errors.New("cart item not found")
	ErrProductNotFound = errors.New("product not found")
)

type Repository interface {
	Get(ctx context.Context, ownerID uuid.UUID) (*Cart, error)
	// Upsert adds item.Quantity to an existing line when merge is set and
	// creates the line if it is missing; otherwise it overwrites the quantity
	// of an existing line.
	Upsert(ctx context.Context, ownerID uuid.UUID, item Item, merge bool) (*Item, error)
	Remove(ctx context.Context, ownerID, productID uuid.UUID) error
	Clear(ctx context.Context, ownerID uuid.UUID) error
}

type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresRepository struct {
	db DB
}

func NewRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, ownerID uuid.UUID) (*Cart, error) {
	query := `
		SELECT product_id, quantity
		FROM cart_items
		WHERE owner_id = $1
		ORDER BY added_at, product_id
	`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query cart for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ProductID, &item.Quantity); err != nil {
			return nil, fmt.Errorf("repository: failed to scan cart item for owner %s: %w", ownerID, err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating cart items for owner %s: %w", ownerID, err)
	}

	return &Cart{OwnerID: ownerID, Items: items}, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, ownerID uuid.UUID, item Item, merge bool) (*Item, error) {
	query := `
		UPDATE cart_items
		SET quantity = $3, updated_at = now()
		WHERE owner_id = $1 AND product_id = $2
		RETURNING product_id, quantity
	`
	if merge {
		query = `
			INSERT INTO cart_items (owner_id, product_id, quantity)
			VALUES ($1, $2, $3)
			ON CONFLICT (owner_id, product_id)
			DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = now()
			RETURNING product_id, quantity
		`
	}

	var saved Item
	err := r.db.QueryRow(ctx, query, ownerID, item.ProductID, item.Quantity).Scan(&saved.ProductID, &saved.Quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return nil, ErrProductNotFound
		}

		return nil, fmt.Errorf("repository: failed to save cart item %s for owner %s: %w", item.ProductID, ownerID, err)
	}

	return &saved, nil
}

func (r *PostgresRepository) Remove(ctx context.Context, ownerID, productID uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE owner_id = $1 AND product_id = $2`, ownerID, productID)
	if err != nil {
		return fmt.Errorf("repository: failed to remove cart item %s for owner %s: %w", productID, ownerID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrItemNotFound
	}

	return nil
}

func (r *PostgresRepository) Clear(ctx context.Context, ownerID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE owner_id = $1`, ownerID); err != nil {
		return fmt.Errorf("repository: failed to clear cart for owner %s: %w", ownerID, err)
	}
	return nil
}

// Items lets the checkout read the cart without depending on this package.
func (r *PostgresRepository) Items(ctx context.Context, ownerID uuid.UUID) ([]order.ItemRequest, error) {
	c, err := r.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return c.Lines(), nil
}
