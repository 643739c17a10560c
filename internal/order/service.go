package order

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/dessert-shop/internal/notify"
	"github.com/vasiliy-maslov/dessert-shop/internal/product"
)

// Service is the checkout engine: it turns carts and item lists into orders
// while keeping product stock consistent with the non-cancelled orders.
type Service struct {
	store      Store
	cart       Cart
	notifier   Notifier
	recipients Recipients
}

func NewService(store Store, cart Cart, notifier Notifier, recipients Recipients) *Service {
	return &Service{
		store:      store,
		cart:       cart,
		notifier:   notifier,
		recipients: recipients,
	}
}

// PlaceOrder reserves stock for items and records a PENDING order in one
// transaction.
func (s *Service) PlaceOrder(ctx context.Context, ownerID uuid.UUID, items []ItemRequest) (*Order, error) {
	if ownerID == uuid.Nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, errNilOwner)
	}

	lines, err := normalizeItems(items)
	if err != nil {
		log.Warn().Err(err).Stringer("owner_id", ownerID).Msg("service: rejected checkout request")
		return nil, err
	}

	created, err := s.checkout(ctx, ownerID, lines)
	if err != nil {
		return nil, err
	}

	s.notifyPlaced(ctx, created)

	return created, nil
}

// CreateOrderFromCart checks out the owner's saved cart and empties it once
// the order is committed.
func (s *Service) CreateOrderFromCart(ctx context.Context, ownerID uuid.UUID) (*Order, error) {
	if ownerID == uuid.Nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, errNilOwner)
	}

	lines, err := s.cart.Items(ctx, ownerID)
	if err != nil {
		log.Error().Err(err).Stringer("owner_id", ownerID).Msg("service: failed to read cart")
		return nil, fmt.Errorf("service: failed to read cart: %w", err)
	}

	if len(lines) == 0 {
		log.Warn().Stringer("owner_id", ownerID).Msg("service: attempt to create order from empty cart")
		return nil, ErrEmptyCart
	}

	lines, err = normalizeItems(lines)
	if err != nil {
		log.Warn().Err(err).Stringer("owner_id", ownerID).Msg("service: cart contains invalid lines")
		return nil, err
	}

	created, err := s.checkout(ctx, ownerID, lines)
	if err != nil {
		return nil, err
	}

	if err := s.cart.Clear(ctx, ownerID); err != nil {
		log.Error().Err(err).Stringer("owner_id", ownerID).Stringer("order_id", created.ID).Msg("service: order created but cart was not cleared")
	}

	s.notifyPlaced(ctx, created)

	return created, nil
}

func (s *Service) checkout(ctx context.Context, ownerID uuid.UUID, lines []ItemRequest) (*Order, error) {
	orderID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate order id: %w", err)
	}

	var created *Order

	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		products := tx.Products()

		// Locks are always taken in id order so two checkouts sharing
		// products cannot wait on each other.
		ids := sortedProductIDs(lines)
		locked := make(map[uuid.UUID]*product.Product, len(ids))
		for _, id := range ids {
			p, err := products.Get(ctx, id)
			if err != nil {
				return fmt.Errorf("product %s: %w", id, err)
			}
			locked[id] = p
		}

		quantities := make(map[uuid.UUID]int, len(lines))
		items := make(Items, 0, len(lines))
		for _, line := range lines {
			p := locked[line.ProductID]
			if !p.Available(line.Quantity) {
				return &InsufficientStockError{
					ProductID: p.ID,
					Name:      p.Name,
					Requested: line.Quantity,
					Available: *p.Stock,
				}
			}

			quantities[line.ProductID] = line.Quantity
			items = append(items, OrderItem{
				ProductID: p.ID,
				Quantity:  line.Quantity,
				Name:      p.Name,
				UnitPrice: p.Price,
				ImageURL:  p.ImageURL,
			})
		}

		for _, id := range ids {
			if !locked[id].TracksStock() {
				continue
			}
			if _, err := products.AdjustStock(ctx, id, -quantities[id]); err != nil {
				return fmt.Errorf("failed to reserve stock for product %s: %w", id, err)
			}
		}

		now := time.Now().UTC()
		o, err := tx.Orders().Create(ctx, &Order{
			ID:        orderID,
			OwnerID:   ownerID,
			Items:     items,
			Total:     items.Total(),
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}

		created = o
		return nil
	})
	if err != nil {
		logFailure(err).Err(err).Stringer("owner_id", ownerID).Msg("service: checkout failed, nothing was reserved")
		return nil, fmt.Errorf("service: failed to place order: %w", err)
	}

	log.Info().
		Stringer("order_id", created.ID).
		Stringer("owner_id", ownerID).
		Str("total", created.Total.StringFixed(2)).
		Int("items", len(created.Items)).
		Msg("service: order placed")

	return created, nil
}

// CancelOrder returns the order's items to stock and marks it CANCELLED.
// Orders of other owners are reported as not found.
func (s *Service) CancelOrder(ctx context.Context, orderID, ownerID uuid.UUID) (*Order, error) {
	var cancelled *Order

	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}

		if current.OwnerID != ownerID {
			return ErrOrderNotFound
		}

		cancelled, err = s.cancelInTx(ctx, tx, current)
		return err
	})
	if err != nil {
		logFailure(err).Err(err).Stringer("order_id", orderID).Stringer("owner_id", ownerID).Msg("service: failed to cancel order")
		return nil, fmt.Errorf("service: failed to cancel order: %w", err)
	}

	log.Info().Stringer("order_id", orderID).Stringer("owner_id", ownerID).Msg("service: order cancelled")

	s.notifyStatus(ctx, cancelled)

	return cancelled, nil
}

// UpdateStatus moves an order to status. Moving to CANCELLED restores stock
// the same way CancelOrder does.
func (s *Service) UpdateStatus(ctx context.Context, orderID uuid.UUID, status Status) (*Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", ErrInvalidRequest, status)
	}

	var (
		updated  *Order
		previous Status
	)

	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		previous = current.Status

		if !current.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: order %s cannot move from %s to %s", ErrInvalidTransition, orderID, current.Status, status)
		}

		if current.Status == status {
			updated = current
			return nil
		}

		if status == StatusCancelled {
			updated, err = s.cancelInTx(ctx, tx, current)
			return err
		}

		current.Status = status
		current.UpdatedAt = time.Now().UTC()
		updated, err = tx.Orders().Save(ctx, current)
		return err
	})
	if err != nil {
		logFailure(err).Err(err).Stringer("order_id", orderID).Stringer("new_status", status).Msg("service: failed to update order status")
		return nil, fmt.Errorf("service: failed to update order status: %w", err)
	}

	if previous == status {
		log.Info().Stringer("order_id", orderID).Stringer("status", status).Msg("service: order status is already the same, no update needed")
		return updated, nil
	}

	log.Info().Stringer("order_id", orderID).Stringer("old_status", previous).Stringer("new_status", status).Msg("service: order status updated")

	s.notifyStatus(ctx, updated)

	return updated, nil
}

func (s *Service) cancelInTx(ctx context.Context, tx Tx, current *Order) (*Order, error) {
	if !current.Status.CanTransitionTo(StatusCancelled) {
		return nil, fmt.Errorf("%w: order %s is already %s", ErrInvalidTransition, current.ID, current.Status)
	}

	restore := make(map[uuid.UUID]int, len(current.Items))
	lines := make([]ItemRequest, 0, len(current.Items))
	for _, item := range current.Items {
		if _, seen := restore[item.ProductID]; !seen {
			lines = append(lines, ItemRequest{ProductID: item.ProductID})
		}
		restore[item.ProductID] += item.Quantity
	}

	for _, id := range sortedProductIDs(lines) {
		_, err := tx.Products().AdjustStock(ctx, id, restore[id])
		if errors.Is(err, ErrProductNotFound) {
			log.Warn().Stringer("order_id", current.ID).Stringer("product_id", id).Msg("service: product no longer exists, stock not restored")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to restore stock for product %s: %w", id, err)
		}
	}

	current.Status = StatusCancelled
	current.UpdatedAt = time.Now().UTC()

	return tx.Orders().Save(ctx, current)
}

// GetOrder returns an order to its owner or to an admin.
func (s *Service) GetOrder(ctx context.Context, orderID uuid.UUID, viewer Viewer) (*Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Err(err).Stringer("order_id", orderID).Msg("service: order not found by id")
			return nil, ErrOrderNotFound
		}

		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to fetch order by id")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}

	if !viewer.IsAdmin && o.OwnerID != viewer.UserID {
		log.Warn().Stringer("order_id", orderID).Stringer("viewer_id", viewer.UserID).Msg("service: order requested by another user")
		return nil, ErrOrderNotFound
	}

	return o, nil
}

// ListOwnerOrders returns the owner's orders, newest first.
func (s *Service) ListOwnerOrders(ctx context.Context, ownerID uuid.UUID) ([]Order, error) {
	orders, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		log.Error().Err(err).Stringer("owner_id", ownerID).Msg("service: failed to fetch owner orders")
		return nil, fmt.Errorf("service: failed to fetch owner orders: %w", err)
	}

	return orders, nil
}

func (s *Service) ListAllOrders(ctx context.Context) ([]Order, error) {
	orders, err := s.store.ListAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to fetch orders")
		return nil, fmt.Errorf("service: failed to fetch orders: %w", err)
	}

	return orders, nil
}

func (s *Service) notifyPlaced(ctx context.Context, o *Order) {
	body, err := notify.OrderPlaced(o.ID.String(), o.Total.StringFixed(2))
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", o.ID).Msg("service: failed to render order confirmation")
		return
	}
	s.notifyOwner(ctx, o, notify.SubjectOrderPlaced, body)
}

func (s *Service) notifyStatus(ctx context.Context, o *Order) {
	body, err := notify.OrderStatus(o.ID.String(), o.Status.String())
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", o.ID).Msg("service: failed to render status update")
		return
	}
	s.notifyOwner(ctx, o, notify.SubjectOrderUpdated, body)
}

// notifyOwner never reports failures to the caller: the order is already
// committed by the time it runs.
func (s *Service) notifyOwner(ctx context.Context, o *Order, subject, body string) {
	if s.notifier == nil || s.recipients == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)

	to, err := s.recipients.EmailOf(ctx, o.OwnerID)
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", o.ID).Stringer("owner_id", o.OwnerID).Msg("service: no address for order notification")
		return
	}

	s.notifier.Send(ctx, to, subject, body)
}

func sortedProductIDs(lines []ItemRequest) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if !slices.Contains(ids, line.ProductID) {
			ids = append(ids, line.ProductID)
		}
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return slices.Compare(a[:], b[:])
	})
	return ids
}

// logFailure picks the level for a failed operation: rule violations are
// expected traffic, everything else is an error.
func logFailure(err error) *zerolog.Event {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrEmptyCart):
		return log.Warn()
	default:
		return log.Error()
	}
}
