package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts /health and, when handler is non-nil, the webhook at webhookPath.
// chi's RealIP middleware is left out: forwarded headers are only honoured for
// trusted proxies inside ClientIP.
func NewRouter(handler *WebhookHandler, webhookPath string, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(chi_middleware.RequestID)
	r.Use(chi_middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	if handler != nil {
		r.HandleFunc(webhookPath, handler.HandleWebhook)
		logger.Info("Webhook receiver mounted", "path", webhookPath)
	}
	return r
}
