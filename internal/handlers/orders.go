package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/commercekit/checkout-backend/internal/models"
	"github.com/commercekit/checkout-backend/internal/store"
)

const defaultOrderPageSize = 50

// OrderReader defines the behaviour required from the storage client backing
// the order read endpoints.
type OrderReader interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context, limit int) ([]models.Order, error)
}

// GetOrder creates an HTTP handler that returns a single order by ID.
func GetOrder(orders OrderReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}

		order, err := orders.GetOrderByID(r.Context(), id)
		if errors.Is(err, store.ErrOrderNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Printf("GetOrder: failed: %v", err)
			http.Error(w, "failed to load order", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(order)
	}
}

// ListOrders creates an HTTP handler that returns recent orders.
func ListOrders(orders OrderReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultOrderPageSize
		if override := r.URL.Query().Get("limit"); override != "" {
			if parsed, err := strconv.Atoi(override); err == nil && parsed > 0 {
				limit = parsed
			}
		}

		result, err := orders.ListOrders(r.Context(), limit)
		if err != nil {
			log.Printf("ListOrders: failed: %v", err)
			http.Error(w, "failed to list orders", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"orders": result})
	}
}
