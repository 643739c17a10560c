// Package memory keeps products, orders, carts and customer addresses in
// process memory. Transactions are serialised by a single lock; writes are
// staged and only become visible on commit.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/dessert-shop/internal/order"
	"github.com/vasiliy-maslov/dessert-shop/internal/product"
)

type Store struct {
	txMu sync.Mutex // held for the whole life of a transaction

	mu       sync.RWMutex
	products map[uuid.UUID]*product.Product
	orders   map[uuid.UUID]*order.Order
	seq      map[uuid.UUID]uint64 // insertion order, breaks CreatedAt ties
	nextSeq  uint64
}

func NewStore() *Store {
	return &Store{
		products: make(map[uuid.UUID]*product.Product),
		orders:   make(map[uuid.UUID]*order.Order),
		seq:      make(map[uuid.UUID]uint64),
	}
}

// PutProduct inserts or replaces a product outside of any transaction.
func (s *Store) PutProduct(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p.Clone()
}

func (s *Store) DeleteProduct(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, id)
}

func (s *Store) Product(id uuid.UUID) (*product.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) (err error) {
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.txMu.Unlock()

	tx := &memTx{
		store:    s,
		products: make(map[uuid.UUID]*product.Product),
		orders:   make(map[uuid.UUID]*order.Order),
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic_value", p).Msg("memory: panic recovered inside transaction, rolling back")
			panic(p)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", order.ErrTransactionAborted, ctxErr)
	}

	tx.commit()
	return nil
}

// lock waits for the transaction lock but gives up when ctx ends.
func (s *Store) lock(ctx context.Context) error {
	acquired := make(chan struct{})
	go func() {
		s.txMu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return nil
	case <-ctx.Done():
		go func() {
			<-acquired
			s.txMu.Unlock()
		}()
		return fmt.Errorf("%w: %v", order.ErrTransactionAborted, ctx.Err())
	}
}

func (s *Store) GetOrder(_ context.Context, id uuid.UUID) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (s *Store) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]order.Order, error) {
	return s.list(func(o *order.Order) bool { return o.OwnerID == ownerID }), nil
}

func (s *Store) ListAll(_ context.Context) ([]order.Order, error) {
	return s.list(func(*order.Order) bool { return true }), nil
}

func (s *Store) list(keep func(*order.Order) bool) []order.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]order.Order, 0)
	for _, o := range s.orders {
		if keep(o) {
			result = append(result, *o.Clone())
		}
	}

	slices.SortFunc(result, func(a, b order.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(s.seq[b.ID], s.seq[a.ID])
	})
	return result
}

type memTx struct {
	store    *Store
	products map[uuid.UUID]*product.Product
	orders   map[uuid.UUID]*order.Order
	created  []uuid.UUID
}

func (tx *memTx) Products() order.ProductStore { return (*txProducts)(tx) }
func (tx *memTx) Orders() order.OrderStore     { return (*txOrders)(tx) }

func (tx *memTx) commit() {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	for id, p := range tx.products {
		tx.store.products[id] = p
	}
	for _, id := range tx.created {
		tx.store.nextSeq++
		tx.store.seq[id] = tx.store.nextSeq
	}
	for id, o := range tx.orders {
		tx.store.orders[id] = o
	}
}

type txProducts memTx

// staged returns the transaction's working copy of a product.
func (tp *txProducts) staged(id uuid.UUID) (*product.Product, error) {
	if p, ok := tp.products[id]; ok {
		return p, nil
	}

	committed, ok := tp.store.Product(id)
	if !ok {
		return nil, order.ErrProductNotFound
	}
	tp.products[id] = committed
	return committed, nil
}

func (tp *txProducts) Get(_ context.Context, id uuid.UUID) (*product.Product, error) {
	p, err := tp.staged(id)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

func (tp *txProducts) AdjustStock(_ context.Context, id uuid.UUID, delta int) (*product.Product, error) {
	p, err := tp.staged(id)
	if err != nil {
		return nil, err
	}

	if err := p.AdjustStock(delta); err != nil {
		return nil, fmt.Errorf("%w: product %s: %v", order.ErrInsufficientStock, id, err)
	}
	return p.Clone(), nil
}

type txOrders memTx

func (to *txOrders) Create(_ context.Context, o *order.Order) (*order.Order, error) {
	if _, exists := to.orders[o.ID]; exists {
		return nil, fmt.Errorf("memory: order %s already exists", o.ID)
	}
	if _, err := to.store.GetOrder(context.Background(), o.ID); err == nil {
		return nil, fmt.Errorf("memory: order %s already exists", o.ID)
	}

	to.orders[o.ID] = o.Clone()
	to.created = append(to.created, o.ID)
	return o.Clone(), nil
}

func (to *txOrders) Get(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	if o, ok := to.orders[id]; ok {
		return o.Clone(), nil
	}
	return to.store.GetOrder(ctx, id)
}

func (to *txOrders) Save(ctx context.Context, o *order.Order) (*order.Order, error) {
	if _, err := to.Get(ctx, o.ID); err != nil {
		return nil, err
	}

	to.orders[o.ID] = o.Clone()
	return o.Clone(), nil
}
