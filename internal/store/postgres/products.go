package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vasiliy-maslov/dessert-shop/internal/order"
	"github.com/vasiliy-maslov/dessert-shop/internal/product"
)

const productColumns = `id, name, category, description, price, stock, in_stock, image_url, created_at, updated_at`

type productStore struct {
	db DB
}

func scanProduct(row pgx.Row) (*product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Category,
		&p.Description,
		&p.Price,
		&p.Stock,
		&p.InStock,
		&p.ImageURL,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *productStore) Get(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`

	p, err := scanProduct(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrProductNotFound
		}
		return nil, fmt.Errorf("repository: failed to select product %s: %w", id, err)
	}

	return p, nil
}

// AdjustStock adds delta to a tracked stock counter. Untracked products
// (NULL stock) are returned unchanged.
func (r *productStore) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*product.Product, error) {
	query := `
		UPDATE products
		SET stock = stock + $2,
		    in_stock = CASE WHEN stock IS NULL THEN in_stock ELSE stock + $2 > 0 END,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + productColumns

	p, err := scanProduct(r.db.QueryRow(ctx, query, id, delta))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrProductNotFound
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
			return nil, fmt.Errorf("%w: product %s", order.ErrInsufficientStock, id)
		}

		return nil, fmt.Errorf("repository: failed to adjust stock of product %s by %d: %w", id, delta, err)
	}

	return p, nil
}

// ProductRepository manages the catalogue rows outside checkout.
type ProductRepository struct {
	db DB
}

func NewProductRepository(db DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	query := `
		INSERT INTO products (id, name, category, description, price, stock, in_stock, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		p.ID,
		p.Name,
		p.Category,
		p.Description,
		p.Price,
		p.Stock,
		p.InStock,
		p.ImageURL,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to insert product %s: %w", p.ID, err)
	}

	return nil
}

func (r *ProductRepository) Get(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrProductNotFound
		}
		return nil, fmt.Errorf("repository: failed to select product %s: %w", id, err)
	}
	return p, nil
}

func (r *ProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository: failed to delete product %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return order.ErrProductNotFound
	}
	return nil
}
