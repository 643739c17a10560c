package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/dessert-shop/internal/order"
)

var ErrInvalidQuantity = fmt.Errorf("quantity must be between 1 and %d", order.MaxItemQuantity)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, ownerID uuid.UUID) (*Cart, error) {
	c, err := s.repo.Get(ctx, ownerID)
	if err != nil {
		log.Error().Err(err).Stringer("owner_id", ownerID).Msg("service: failed to fetch cart")
		return nil, fmt.Errorf("service: failed to fetch cart: %w", err)
	}
	return c, nil
}

// AddItem puts quantity units of a product in the cart, adding to the line
// that is already there.
func (s *Service) AddItem(ctx context.Context, ownerID, productID uuid.UUID, quantity int) (*Cart, error) {
	if quantity <= 0 || quantity > order.MaxItemQuantity {
		return nil, ErrInvalidQuantity
	}

	if _, err := s.repo.Upsert(ctx, ownerID, Item{ProductID: productID, Quantity: quantity}, true); err != nil {
		if errors.Is(err, ErrProductNotFound) {
			log.Warn().Stringer("owner_id", ownerID).Stringer("product_id", productID).Msg("service: attempt to add unknown product to cart")
			return nil, err
		}
		log.Error().Err(err).Stringer("owner_id", ownerID).Stringer("product_id", productID).Msg("service: failed to add cart item")
		return nil, fmt.Errorf("service: failed to add cart item: %w", err)
	}

	return s.Get(ctx, ownerID)
}

func (s *Service) UpdateItem(ctx context.Context, ownerID, productID uuid.UUID, quantity int) (*Cart, error) {
	if quantity <= 0 || quantity > order.MaxItemQuantity {
		return nil, ErrInvalidQuantity
	}

	if _, err := s.repo.Upsert(ctx, ownerID, Item{ProductID: productID, Quantity: quantity}, false); err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, err
		}
		log.Error().Err(err).Stringer("owner_id", ownerID).Stringer("product_id", productID).Msg("service: failed to update cart item")
		return nil, fmt.Errorf("service: failed to update cart item: %w", err)
	}

	return s.Get(ctx, ownerID)
}

func (s *Service) RemoveItem(ctx context.Context, ownerID, productID uuid.UUID) (*Cart, error) {
	if err := s.repo.Remove(ctx, ownerID, productID); err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, err
		}
		log.Error().Err(err).Stringer("owner_id", ownerID).Stringer("product_id", productID).Msg("service: failed to remove cart item")
		return nil, fmt.Errorf("service: failed to remove cart item: %w", err)
	}

	return s.Get(ctx, ownerID)
}

func (s *Service) Clear(ctx context.Context, ownerID uuid.UUID) error {
	if err := s.repo.Clear(ctx, ownerID); err != nil {
		log.Error().Err(err).Stringer("owner_id", ownerID).Msg("service: failed to clear cart")
		return fmt.Errorf("service: failed to clear cart: %w", err)
	}
	return nil
}
