package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/dessert-shop/internal/order"
)

type OrderService interface {
	PlaceOrder(ctx context.Context, ownerID uuid.UUID, items []order.ItemRequest) (*order.Order, error)
	CreateOrderFromCart(ctx context.Context, ownerID uuid.UUID) (*order.Order, error)
	CancelOrder(ctx context.Context, orderID, ownerID uuid.UUID) (*order.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status order.Status) (*order.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID, viewer order.Viewer) (*order.Order, error)
	ListOwnerOrders(ctx context.Context, ownerID uuid.UUID) ([]order.Order, error)
	ListAllOrders(ctx context.Context) ([]order.Order, error)
}

type CheckoutItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gt=0,max=100000"`
}

type CheckoutRequest struct {
	Items []CheckoutItemRequest `json:"items" validate:"required,min=1,dive"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type OrderItemResponse struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	UnitPrice string    `json:"snapshot_price"`
	LineTotal string    `json:"line_total"`
	ImageURL  string    `json:"image_url,omitempty"`
}

type OrderResponse struct {
	ID        uuid.UUID           `json:"id"`
	OwnerID   uuid.UUID           `json:"owner_id"`
	Items     []OrderItemResponse `json:"items"`
	Total     string              `json:"total"`
	Status    order.Status        `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func toOrderResponse(o *order.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
			LineTotal: item.LineTotal().StringFixed(2),
			ImageURL:  item.ImageURL,
		})
	}

	return OrderResponse{
		ID:        o.ID,
		OwnerID:   o.OwnerID,
		Items:     items,
		Total:     o.Total.StringFixed(2),
		Status:    o.Status,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func toOrderResponses(orders []order.Order) []OrderResponse {
	responses := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		responses = append(responses, toOrderResponse(&orders[i]))
	}
	return responses
}

type OrderHandler struct {
	service  OrderService
	validate *validator.Validate
}

func NewOrderHandler(service OrderService) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: newValidator(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Route("/api/orders", func(r chi.Router) {
		r.Use(Identify)
		r.Post("/", h.handleCreateFromCart)
		r.Post("/checkout", h.handleCheckout)
		r.Get("/my", h.handleListMine)
		r.Get("/{id}", h.handleGetOrder)
		r.Post("/{id}/cancel", h.handleCancel)
	})

	router.Route("/api/admin/orders", func(r chi.Router) {
		r.Use(Identify, RequireAdmin)
		r.Get("/", h.handleListAll)
		r.Put("/{id}/status", h.handleUpdateStatus)
	})
}

func (h *OrderHandler) handleCreateFromCart(w http.ResponseWriter, r *http.Request) {
	viewer, _ := ViewerFrom(r.Context())

	created, err := h.service.CreateOrderFromCart(r.Context(), viewer.UserID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to create order")
		return
	}

	respondWithJSON(w, http.StatusCreated, toOrderResponse(created))
}

func (h *OrderHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var requestPayload CheckoutRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	items := make([]order.ItemRequest, 0, len(requestPayload.Items))
	for _, item := range requestPayload.Items {
		items = append(items, order.ItemRequest{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	viewer, _ := ViewerFrom(r.Context())
	placed, err := h.service.PlaceOrder(r.Context(), viewer.UserID, items)
	if err != nil {
		respondWithServiceError(w, err, "Failed to place order")
		return
	}

	respondWithJSON(w, http.StatusCreated, toOrderResponse(placed))
}

func (h *OrderHandler) handleListMine(w http.ResponseWriter, r *http.Request) {
	viewer, _ := ViewerFrom(r.Context())

	orders, err := h.service.ListOwnerOrders(r.Context(), viewer.UserID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to list orders")
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	viewer, _ := ViewerFrom(r.Context())
	found, err := h.service.GetOrder(r.Context(), orderID, viewer)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get order")
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderResponse(found))
}

func (h *OrderHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	viewer, _ := ViewerFrom(r.Context())
	cancelled, err := h.service.CancelOrder(r.Context(), orderID, viewer.UserID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to cancel order")
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderResponse(cancelled))
}

func (h *OrderHandler) handleListAll(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListAllOrders(r.Context())
	if err != nil {
		respondWithServiceError(w, err, "Failed to list orders")
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var requestPayload UpdateStatusRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	status, err := order.ParseStatus(requestPayload.Status)
	if err != nil {
		respondWithServiceError(w, err, "Invalid status")
		return
	}

	updated, err := h.service.UpdateStatus(r.Context(), orderID, status)
	if err != nil {
		respondWithServiceError(w, err, "Failed to update order status")
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderResponse(updated))
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idParam := chi.URLParam(r, "id")
	orderID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("order_id", idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return uuid.Nil, false
	}
	return orderID, true
}
