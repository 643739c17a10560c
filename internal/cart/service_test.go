package cart_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/dessert-shop/internal/cart"
	"github.com/vasiliy-maslov/dessert-shop/internal/order"
)

type MockCartRepository struct {
	mock.Mock
}

func (m *MockCartRepository) Get(ctx context.Context, ownerID uuid.UUID) (*cart.Cart, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartRepository) Upsert(ctx context.Context, ownerID uuid.UUID, item cart.Item, merge bool) (*cart.Item, error) {
	args := m.Called(ctx, ownerID, item, merge)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Item), args.Error(1)
}

func (m *MockCartRepository) Remove(ctx context.Context, ownerID, productID uuid.UUID) error {
	args := m.Called(ctx, ownerID, productID)
	return args.Error(0)
}

func (m *MockCartRepository) Clear(ctx context.Context, ownerID uuid.UUID) error {
	args := m.Called(ctx, ownerID)
	return args.Error(0)
}

func TestCartService_AddItem_Merges(t *testing.T) {
	mockRepo := new(MockCartRepository)
	svc := cart.NewService(mockRepo)

	ownerID := uuid.Must(uuid.NewV4())
	productID := uuid.Must(uuid.NewV4())
	stored := &cart.Cart{OwnerID: ownerID, Items: []cart.Item{{ProductID: productID, Quantity: 3}}}

	mockRepo.On("Upsert", mock.Anything, ownerID, cart.Item{ProductID: productID, Quantity: 2}, true).
		Return(&cart.Item{ProductID: productID, Quantity: 3}, nil).Once()
	mockRepo.On("Get", mock.Anything, ownerID).Return(stored, nil).Once()

	got, err := svc.AddItem(context.Background(), ownerID, productID, 2)
	require.NoError(t, err)

	if diff := cmp.Diff(stored, got); diff != "" {
		t.Errorf("AddItem() mismatch (-want +got):\n%s", diff)
	}
	mockRepo.AssertExpectations(t)
}

func TestCartService_RejectsNonPositiveQuantity(t *testing.T) {
	tests := []struct {
		name     string
		quantity int
		call     func(svc *cart.Service, owner, product uuid.UUID, qty int) error
	}{
		{
			name:     "add_zero",
			quantity: 0,
			call: func(svc *cart.Service, owner, product uuid.UUID, qty int) error {
				_, err := svc.AddItem(context.Background(), owner, product, qty)
				return err
			},
		},
		{
			name:     "add_negative",
			quantity: -1,
			call: func(svc *cart.Service, owner, product uuid.UUID, qty int) error {
				_, err := svc.AddItem(context.Background(), owner, product, qty)
				return err
			},
		},
		{
			name:     "add_over_cap",
			quantity: order.MaxItemQuantity + 1,
			call: func(svc *cart.Service, owner, product uuid.UUID, qty int) error {
				_, err := svc.AddItem(context.Background(), owner, product, qty)
				return err
			},
		},
		{
			name:     "update_zero",
			quantity: 0,
			call: func(svc *cart.Service, owner, product uuid.UUID, qty int) error {
				_, err := svc.UpdateItem(context.Background(), owner, product, qty)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockCartRepository)
			svc := cart.NewService(mockRepo)

			err := tt.call(svc, uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()), tt.quantity)
			assert.ErrorIs(t, err, cart.ErrInvalidQuantity)
			mockRepo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCartService_UpdateItem_NotFound(t *testing.T) {
	mockRepo := new(MockCartRepository)
	svc := cart.NewService(mockRepo)

	ownerID := uuid.Must(uuid.NewV4())
	productID := uuid.Must(uuid.NewV4())

	mockRepo.On("Upsert", mock.Anything, ownerID, cart.Item{ProductID: productID, Quantity: 4}, false).
		Return(nil, cart.ErrItemNotFound).Once()

	_, err := svc.UpdateItem(context.Background(), ownerID, productID, 4)
	assert.ErrorIs(t, err, cart.ErrItemNotFound)
	mockRepo.AssertExpectations(t)
}

func TestCartService_RemoveItem(t *testing.T) {
	mockRepo := new(MockCartRepository)
	svc := cart.NewService(mockRepo)

	ownerID := uuid.Must(uuid.NewV4())
	productID := uuid.Must(uuid.NewV4())

	mockRepo.On("Remove", mock.Anything, ownerID, productID).Return(nil).Once()
	mockRepo.On("Get", mock.Anything, ownerID).Return(&cart.Cart{OwnerID: ownerID, Items: []cart.Item{}}, nil).Once()

	got, err := svc.RemoveItem(context.Background(), ownerID, productID)
	require.NoError(t, err)
	assert.Empty(t, got.Items)
	mockRepo.AssertExpectations(t)
}

func TestCartService_Clear_Error(t *testing.T) {
	mockRepo := new(MockCartRepository)
	svc := cart.NewService(mockRepo)

	ownerID := uuid.Must(uuid.NewV4())
	dbErr := errors.New("connection reset")
	mockRepo.On("Clear", mock.Anything, ownerID).Return(dbErr).Once()

	err := svc.Clear(context.Background(), ownerID)
	assert.ErrorIs(t, err, dbErr)
	mockRepo.AssertExpectations(t)
}

func TestCart_Lines(t *testing.T) {
	p1 := uuid.Must(uuid.NewV4())
	p2 := uuid.Must(uuid.NewV4())
	c := &cart.Cart{Items: []cart.Item{{ProductID: p1, Quantity: 2}, {ProductID: p2, Quantity: 1}}}

	lines := c.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, p1, lines[0].ProductID)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, p2, lines[1].ProductID)
}
