package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/frahmantamala/wallet-settlement/internal/settlement"
	"github.com/frahmantamala/wallet-settlement/internal/transport/middleware"
	"github.com/frahmantamala/wallet-settlement/internal/transport/swagger"
)

// RegisterAllRoutes wires the settlement API surface. Webhooks carry the
// signature check; the read endpoints and withdrawal processing do not,
// because withdrawals come from the trusted app backend.
func RegisterAllRoutes(router *chi.Mux, db *sql.DB, ledger LedgerPinger, webhookHandler *settlement.WebhookHandler, settlementHandler *settlement.Handler, webhookSecret string, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db, ledger)

	// Apply global middleware
	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.Metrics)

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	router.Handle("/metrics", promhttp.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		// Health check route
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if webhookHandler != nil {
			r.Group(func(wr chi.Router) {
				// The dummy test gateway has no signing key
				wr.Use(middleware.VerifyWebhookSignature(webhookSecret, logger, "dummy"))
				wr.Post("/webhooks/{gateway}", webhookHandler.HandleGatewayWebhook)
			})
		}

		if settlementHandler != nil {
			r.Post("/withdrawals/process", settlementHandler.HandleProcessWithdrawal)
			r.Get("/settlements/{requestID}", settlementHandler.HandleGetSettlement)
			r.Get("/balance/{userID}", settlementHandler.HandleGetBalance)
		}
	})
}
