package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	orderHandler "github.com/vasiliy-maslov/dessert-shop/internal/handler/http"
	"github.com/vasiliy-maslov/dessert-shop/internal/order"
)

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) PlaceOrder(ctx context.Context, ownerID uuid.UUID, items []order.ItemRequest) (*order.Order, error) {
	args := m.Called(ctx, ownerID, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) CreateOrderFromCart(ctx context.Context, ownerID uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) CancelOrder(ctx context.Context, orderID, ownerID uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, orderID, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, status order.Status) (*order.Order, error) {
	args := m.Called(ctx, orderID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) GetOrder(ctx context.Context, orderID uuid.UUID, viewer order.Viewer) (*order.Order, error) {
	args := m.Called(ctx, orderID, viewer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) ListOwnerOrders(ctx context.Context, ownerID uuid.UUID) ([]order.Order, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderService) ListAllOrders(ctx context.Context) ([]order.Order, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func newOrderRouter(svc *MockOrderService) *chi.Mux {
	router := chi.NewRouter()
	orderHandler.NewOrderHandler(svc).RegisterRoutes(router)
	return router
}

func newRequest(t *testing.T, method, target string, body any, userID uuid.UUID, role string) *http.Request {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		jsonBody, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(jsonBody)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		req.Header.Set(orderHandler.HeaderUserID, userID.String())
	}
	if role != "" {
		req.Header.Set(orderHandler.HeaderUserRole, role)
	}
	return req
}

func sampleOrder(ownerID uuid.UUID, status order.Status) *order.Order {
	productID := uuid.Must(uuid.NewV4())
	now := time.Now().UTC().Truncate(time.Second)
	return &order.Order{
		ID:      uuid.Must(uuid.NewV4()),
		OwnerID: ownerID,
		Items: order.Items{{
			ProductID: productID,
			Quantity:  2,
			Name:      "Pistachio eclair",
			UnitPrice: decimal.RequireFromString("5.00"),
		}},
		Total:     decimal.RequireFromString("10.00"),
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderHandler_handleCheckout_Success(t *testing.T) {
	mockService := new(MockOrderService)
	router := newOrderRouter(mockService)

	ownerID := uuid.Must(uuid.NewV4())
	placed := sampleOrder(ownerID, order.StatusPending)
	productID := placed.Items[0].ProductID

	mockService.On("PlaceOrder", mock.Anything, ownerID, []order.ItemRequest{{ProductID: productID, Quantity: 2}}).
		Return(placed, nil).
		Once()

	requestDTO := orderHandler.CheckoutRequest{
		Items: []orderHandler.CheckoutItemRequest{{ProductID: productID, Quantity: 2}},
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newRequest(t, http.MethodPost, "/api/orders/checkout", requestDTO, ownerID, ""))

	require.Equal(t, http.StatusCreated, rr.Code)

	var actualResponse orderHandler.OrderResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&actualResponse))
	assert.Equal(t, placed.ID, actualResponse.ID)
	assert.Equal(t, "10.00", actualResponse.Total)
	assert.Equal(t, order.StatusPending, actualResponse.Status)
	require.Len(t, actualResponse.Items, 1)
	assert.Equal(t, "5.00", actualResponse.Items[0].UnitPrice)
	assert.Equal(t, "10.00", actualResponse.Items[0].LineTotal)
	mockService.AssertExpectations(t)
}

func TestOrderHandler_handleCheckout_BadRequests(t *testing.T) {
	ownerID := uuid.Must(uuid.NewV4())

	testCases := []struct {
		name          string
		body          any
		userID        uuid.UUID
		expectedCode  int
		expectedField string
	}{
		{
			name:         "missing identity",
			body:         orderHandler.CheckoutRequest{Items: []orderHandler.CheckoutItemRequest{{ProductID: uuid.Must(uuid.NewV4()), Quantity: 1}}},
			userID:       uuid.Nil,
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "malformed json",
			body:         `{"items": [`,
			userID:       ownerID,
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "unknown field",
			body:         `{"items": [], "coupon": "FREE"}`,
			userID:       ownerID,
			expectedCode: http.StatusBadRequest,
		},
		{
			name:          "empty items",
			body:          orderHandler.CheckoutRequest{Items: []orderHandler.CheckoutItemRequest{}},
			userID:        ownerID,
			expectedCode:  http.StatusBadRequest,
			expectedField: "items",
		},
		{
			name:          "zero quantity",
			body:          orderHandler.CheckoutRequest{Items: []orderHandler.CheckoutItemRequest{{ProductID: uuid.Must(uuid.NewV4()), Quantity: 0}}},
			userID:        ownerID,
			expectedCode:  http.StatusBadRequest,
			expectedField: "quantity",
		},
		{
			name:          "quantity over cap",
			body:          `{"items": [{"product_id": "` + uuid.Must(uuid.NewV4()).String() + `", "quantity": 9223372036854775807}]}`,
			userID:        ownerID,
			expectedCode:  http.StatusBadRequest,
			expectedField: "quantity",
		},
		{
			name:          "missing product id",
			body:          `{"items": [{"quantity": 1}]}`,
			userID:        ownerID,
			expectedCode:  http.StatusBadRequest,
			expectedField: "product_id",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockService := new(MockOrderService)
			router := newOrderRouter(mockService)

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, newRequest(t, http.MethodPost, "/api/orders/checkout", tc.body, tc.userID, ""))

			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectedField != "" {
				var validation orderHandler.ValidationErrorResponse
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&validation))
				assert.Equal(t, "Validation failed", validation.Error)
				assert.Contains(t, validation.Details, tc.expectedField)
			}
			mockService.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestOrderHandler_ServiceErrors(t *testing.T) {
	productID := uuid.Must(uuid.NewV4())

	testCases := []struct {
		name             string
		err              error
		expectedCode     int
		expectRetryAfter bool
		expectedMessage  string
	}{
		{
			name:            "product not found",
			err:             fmt.Errorf("service: %w", order.ErrProductNotFound),
			expectedCode:    http.StatusNotFound,
			expectedMessage: "Product not found",
		},
		{
			name:            "insufficient stock names the product",
			err:             &order.InsufficientStockError{ProductID: productID, Name: "Macaron", Requested: 3, Available: 1},
			expectedCode:    http.StatusConflict,
			expectedMessage: "Insufficient stock for Macaron: requested 3, available 1",
		},
		{
			name:             "transaction aborted",
			err:              fmt.Errorf("%w: lock timeout", order.ErrTransactionAborted),
			expectedCode:     http.StatusConflict,
			expectRetryAfter: true,
		},
		{
			name:         "store unavailable",
			err:          fmt.Errorf("%w: connection refused", order.ErrStoreUnavailable),
			expectedCode: http.StatusServiceUnavailable,
		},
		{
			name:            "unexpected failure",
			err:             fmt.Errorf("boom"),
			expectedCode:    http.StatusInternalServerError,
			expectedMessage: "Failed to place order",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockService := new(MockOrderService)
			router := newOrderRouter(mockService)
			ownerID := uuid.Must(uuid.NewV4())

			mockService.On("PlaceOrder", mock.Anything, ownerID, mock.Anything).Return(nil, tc.err).Once()

			requestDTO := orderHandler.CheckoutRequest{
				Items: []orderHandler.CheckoutItemRequest{{ProductID: productID, Quantity: 3}},
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, newRequest(t, http.MethodPost, "/api/orders/checkout", requestDTO, ownerID, ""))

			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectRetryAfter {
				assert.Equal(t, "1", rr.Header().Get("Retry-After"))
			} else {
				assert.Empty(t, rr.Header().Get("Retry-After"))
			}

			var errorResponse orderHandler.ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&errorResponse))
			if tc.expectedMessage != "" {
				assert.Equal(t, tc.expectedMessage, errorResponse.Error)
			}
			assert.NotContains(t, errorResponse.Error, "boom")
			mockService.AssertExpectations(t)
		})
	}
}

func TestOrderHandler_handleCreateFromCart(t *testing.T) {
	ownerID := uuid.Must(uuid.NewV4())

	t.Run("created", func(t *testing.T) {
		mockService := new(MockOrderService)
		router := newOrderRouter(mockService)
		created := sampleOrder(ownerID, order.StatusPending)

		mockService.On("CreateOrderFromCart", mock.Anything, ownerID).Return(created, nil).Once()

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, newRequest(t, http.MethodPost, "/api/orders", nil, ownerID, ""))

		require.Equal(t, http.StatusCreated, rr.Code)
		var actualResponse orderHandler.OrderResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&actualResponse))
		assert.Equal(t, created.ID, actualResponse.ID)
		mockService.AssertExpectations(t)
	})

	t.Run("empty cart", func(t *testing.T) {
		mockService := new(MockOrderService)
		router := newOrderRouter(mockService)

		mockService.On("CreateOrderFromCart", mock.Anything, ownerID).Return(nil, order.ErrEmptyCart).Once()

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, newRequest(t, http.MethodPost, "/api/orders", nil, ownerID, ""))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.JSONEq(t, `{"error":"Cart is empty"}`, rr.Body.String())
		mockService.AssertExpectations(t)
	})
}

func TestOrderHandler_handleGetOrder(t *testing.T) {
	ownerID := uuid.Must(uuid.NewV4())

	t.Run("admin viewer is forwarded", func(t *testing.T) {
		mockService := new(MockOrderService)
		router := newOrderRouter(mockService)
		found := sampleOrder(uuid.Must(uuid.NewV4()), order.StatusShipped)
		viewer := order.Viewer{UserID: ownerID, IsAdmin: true}

		mockService.On("GetOrder", mock.Anything, found.ID, viewer).Return(found, nil).Once()

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, newRequest(t, http.MethodGet, "/api/orders/"+found.ID.String(), nil, ownerID, "ADMIN"))

		require.Equal(t, http.StatusOK, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		mockService := new(MockOrderService)
		router := newOrderRouter(mockService)
		orderID := uuid.Must(uuid.NewV4())

		mockService.On("GetOrder", mock.Anything, orderID, order.Viewer{UserID: ownerID}).
			Return(nil, order.ErrOrderNotFound).
			Once()

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, newRequest(t, http.MethodGet, "/api/orders/"+orderID.String(), nil, ownerID, ""))

		assert.Equal(t, http.StatusNotFound, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("invalid id", func(t *testing.T) {
		mockService := new(MockOrderService)
		router := newOrderRouter(mockService)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, newRequest(t, http.MethodGet, "/api/orders/not-a-uuid", nil, ownerID, ""))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "GetOrder", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestOrderHandler_handleListMine(t *testing.T) {
	mockService := new(MockOrderService)
	router := newOrderRouter(mockService)
	ownerID := uuid.Must(uuid.NewV4())

	orders := []order.Order{*sampleOrder(ownerID, order.StatusPending), *sampleOrder(ownerID, order.StatusDelivered)}
	mockService.On("ListOwnerOrders", mock.Anything, ownerID).Return(orders, nil).Once()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, newRequest(t, http.MethodGet, "/api/orders/my", nil, ownerID, ""))

	require.Equal(t, http.StatusOK, rr.Code)
	var actualResponse []orderHandler.OrderResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&actualResponse))
	require.Len(t, actualResponse, 2)
	assert.Equal(t, orders[0].ID, actualResponse[0].ID)
	assert.Equal(t, order.StatusDelivered, actualResponse[1].Status)
	mockService.AssertExpectations(t)
}

func TestOrderHandler_handleCancel(t *testing.T) {
	ownerID := uuid.Must(uuid.NewV4())

	t.Run("cancelled", func(t *testing.T) {
		mockService := new(MockOrderService)
		router := newOrderRouter(mockService)
		cancelled := sampleOrder(ownerID, order.StatusCancelled)

		mockService.On("CancelOrder", mock.Anything, cancelled.ID, ownerID).Return(cancelled, nil).Once()

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, newRequest(t, http.MethodPost, "/api/orders/"+cancelled.ID.String()+"/cancel", nil, ownerID, ""))

		require.Equal(t, http.StatusOK, rr.Code)
		var actualResponse orderHandler.OrderResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&actualResponse))
		assert.Equal(t, order.StatusCancelled, actualResponse.Status)
		mockService.AssertExpectations(t)
	})

	t.Run("already cancelled", func(t *testing.T) {
		mockService := new(MockOrderService)
		router := newOrderRouter(mockService)
		orderID := uuid.Must(uuid.NewV4())

		mockService.On("CancelOrder", mock.Anything, orderID, ownerID).
			Return(nil, fmt.Errorf("service: %w", order.ErrInvalidTransition)).
			Once()

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, newRequest(t, http.MethodPost, "/api/orders/"+orderID.String()+"/cancel", nil, ownerID, ""))

		assert.Equal(t, http.StatusConflict, rr.Code)
		mockService.AssertExpectations(t)
	})
}

func TestOrderHandler_AdminRoutes(t *testing.T) {
	adminID := uuid.Must(uuid.NewV4())

	t.Run("list requires admin role", func(t *testing.T) {
		mockService := new(MockOrderService)
		router := newOrderRouter(mockService)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, newRequest(t, http.MethodGet, "/api/admin/orders", nil, adminID, "customer"))

		assert.Equal(t, http.StatusForbidden, rr.Code)
		mockService.AssertNotCalled(t, "ListAllOrders", mock.Anything)
	})

	t.Run("list all", func(t *testing.T) {
		mockService := new(MockOrderService)
		router := newOrderRouter(mockService)
		orders := []order.Order{*sampleOrder(uuid.Must(uuid.NewV4()), order.StatusConfirmed)}

		mockService.On("ListAllOrders", mock.Anything).Return(orders, nil).Once()

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, newRequest(t, http.MethodGet, "/api/admin/orders", nil, adminID, orderHandler.RoleAdmin))

		require.Equal(t, http.StatusOK, rr.Code)
		var actualResponse []orderHandler.OrderResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&actualResponse))
		assert.Len(t, actualResponse, 1)
		mockService.AssertExpectations(t)
	})

	t.Run("update status parses case-insensitively", func(t *testing.T) {
		mockService := new(MockOrderService)
		router := newOrderRouter(mockService)
		updated := sampleOrder(uuid.Must(uuid.NewV4()), order.StatusShipped)

		mockService.On("UpdateStatus", mock.Anything, updated.ID, order.StatusShipped).Return(updated, nil).Once()

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, newRequest(t, http.MethodPut, "/api/admin/orders/"+updated.ID.String()+"/status",
			orderHandler.UpdateStatusRequest{Status: "shipped"}, adminID, orderHandler.RoleAdmin))

		require.Equal(t, http.StatusOK, rr.Code)
		mockService.AssertExpectations(t)
	})

	t.Run("update status rejects unknown status", func(t *testing.T) {
		mockService := new(MockOrderService)
		router := newOrderRouter(mockService)
		orderID := uuid.Must(uuid.NewV4())

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, newRequest(t, http.MethodPut, "/api/admin/orders/"+orderID.String()+"/status",
			orderHandler.UpdateStatusRequest{Status: "LOST"}, adminID, orderHandler.RoleAdmin))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("update status from cancelled", func(t *testing.T) {
		mockService := new(MockOrderService)
		router := newOrderRouter(mockService)
		orderID := uuid.Must(uuid.NewV4())

		mockService.On("UpdateStatus", mock.Anything, orderID, order.StatusPending).
			Return(nil, order.ErrInvalidTransition).
			Once()

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, newRequest(t, http.MethodPut, "/api/admin/orders/"+orderID.String()+"/status",
			orderHandler.UpdateStatusRequest{Status: "PENDING"}, adminID, orderHandler.RoleAdmin))

		assert.Equal(t, http.StatusConflict, rr.Code)
		mockService.AssertExpectations(t)
	})
}
