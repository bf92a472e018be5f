package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/commercekit/checkout-backend/internal/config"
	"github.com/commercekit/checkout-backend/internal/handlers"
	"github.com/commercekit/checkout-backend/internal/middleware"
)

// Server wraps an http.Server with convenience helpers for startup/shutdown.
type Server struct {
	httpServer *http.Server
}

// Stores bundles the storage interfaces the route handlers require.
type Stores struct {
	Orders      handlers.OrderStore
	OrderReader handlers.OrderReader
	Reconcile   handlers.ReconcileStore
	Users       handlers.WebhookUserStore
	Events      handlers.WebhookEventStore
}

// New constructs an HTTP server using the provided configuration, storage
// clients, Stripe client, and webhook verifier.
func New(cfg config.Config, stores Stores, stripe handlers.StripeClient, verifier handlers.SignatureVerifier) *Server {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Metrics())
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}).Handler)

	router.Get("/health", handlers.Health)
	router.Method(http.MethodGet, "/metrics", middleware.MetricsHandler())

	checkoutHandler := handlers.NewCheckoutHandler(stores.Orders, stripe, cfg.SuccessURL(), cfg.CancelURL())
	router.Post("/api/checkout", checkoutHandler.CreateCheckout())
	router.Get("/api/checkout/sessions/{id}", handlers.GetCheckoutSession(stripe))

	webhookHandler := handlers.NewWebhookHandler(stores.Reconcile, stores.Users, stores.Events, verifier)
	router.Post("/api/webhooks/stripe", webhookHandler.HandleWebhook())

	router.Get("/api/orders", handlers.ListOrders(stores.OrderReader))
	router.Get("/api/orders/{id}", handlers.GetOrder(stores.OrderReader))

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv}
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
