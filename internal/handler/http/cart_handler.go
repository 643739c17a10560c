package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/dessert-shop/internal/cart"
)

type CartService interface {
	Get(ctx context.Context, ownerID uuid.UUID) (*cart.Cart, error)
	AddItem(ctx context.Context, ownerID, productID uuid.UUID, quantity int) (*cart.Cart, error)
	UpdateItem(ctx context.Context, ownerID, productID uuid.UUID, quantity int) (*cart.Cart, error)
	RemoveItem(ctx context.Context, ownerID, productID uuid.UUID) (*cart.Cart, error)
	Clear(ctx context.Context, ownerID uuid.UUID) error
}

type AddCartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gt=0,max=100000"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"gt=0,max=100000"`
}

type CartHandler struct {
	service  CartService
	validate *validator.Validate
}

func NewCartHandler(service CartService) *CartHandler {
	return &CartHandler{
		service:  service,
		validate: newValidator(),
	}
}

func (h *CartHandler) RegisterRoutes(router chi.Router) {
	router.Route("/api/cart", func(r chi.Router) {
		r.Use(Identify)
		r.Get("/", h.handleGetCart)
		r.Delete("/", h.handleClearCart)
		r.Post("/items", h.handleAddItem)
		r.Put("/items/{productID}", h.handleUpdateItem)
		r.Delete("/items/{productID}", h.handleRemoveItem)
	})
}

func (h *CartHandler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	viewer, _ := ViewerFrom(r.Context())

	c, err := h.service.Get(r.Context(), viewer.UserID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get cart")
		return
	}

	respondWithJSON(w, http.StatusOK, c)
}

func (h *CartHandler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	viewer, _ := ViewerFrom(r.Context())

	if err := h.service.Clear(r.Context(), viewer.UserID); err != nil {
		respondWithServiceError(w, err, "Failed to clear cart")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var requestPayload AddCartItemRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	viewer, _ := ViewerFrom(r.Context())
	c, err := h.service.AddItem(r.Context(), viewer.UserID, requestPayload.ProductID, requestPayload.Quantity)
	if err != nil {
		respondWithServiceError(w, err, "Failed to add item to cart")
		return
	}

	respondWithJSON(w, http.StatusOK, c)
}

func (h *CartHandler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	var requestPayload UpdateCartItemRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	viewer, _ := ViewerFrom(r.Context())
	c, err := h.service.UpdateItem(r.Context(), viewer.UserID, productID, requestPayload.Quantity)
	if err != nil {
		respondWithServiceError(w, err, "Failed to update cart item")
		return
	}

	respondWithJSON(w, http.StatusOK, c)
}

func (h *CartHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	viewer, _ := ViewerFrom(r.Context())
	c, err := h.service.RemoveItem(r.Context(), viewer.UserID, productID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to remove cart item")
		return
	}

	respondWithJSON(w, http.StatusOK, c)
}

func productIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idParam := chi.URLParam(r, "productID")
	productID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("product_id", idParam).Msg("Failed to parse productID parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid productID parameter")
		return uuid.Nil, false
	}
	return productID, true
}
