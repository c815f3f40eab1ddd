package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter mounts the terminal API. Every route except the payment submit
// runs under requestTimeout; the submit is bounded by the commit timeout.
func NewRouter(h *TerminalHandler, logger *zap.Logger, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1/terminals/{terminal_id}", func(r chi.Router) {
		r.Post("/payment/submit", h.SubmitPayment)

		r.Group(func(r chi.Router) {
			if requestTimeout > 0 {
				r.Use(middleware.Timeout(requestTimeout))
			}

			r.Get("/catalog", h.GetCatalog)
			r.Put("/catalog/filter", h.SetFilter)

			r.Route("/order", func(r chi.Router) {
				r.Get("/", h.GetOrder)
				r.Delete("/", h.ClearOrder)
				r.Post("/items", h.AddItem)
				r.Put("/items/{product_id}", h.UpdateItem)
				r.Delete("/items/{product_id}", h.RemoveItem)
			})

			r.Route("/adjustment", func(r chi.Router) {
				r.Post("/", h.OpenAdjustment)
				r.Get("/", h.GetAdjustment)
				r.Delete("/", h.CancelAdjustment)
				r.Post("/increment", h.IncrementAdjustment)
				r.Post("/decrement", h.DecrementAdjustment)
				r.Put("/quantity", h.SetAdjustmentQuantity)
				r.Post("/commit", h.CommitAdjustment)
				r.Post("/remove", h.RemoveAdjusted)
			})

			r.Post("/payment", h.OpenPayment)
			r.Get("/payment", h.GetPayment)
			r.Delete("/payment", h.CancelPayment)
			r.Put("/payment/received", h.SetReceived)

			r.Get("/receipt", h.GetReceipt)
			r.Post("/receipt/new-order", h.StartNewOrder)
		})
	})

	return r
}
