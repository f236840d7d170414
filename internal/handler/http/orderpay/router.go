package orderpay_http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// RegisterRoutes mounts the API. Everything except /health, the plan catalog reads and the gateway
// callback sits behind authenticate.
func RegisterRoutes(r chi.Router, orders OrderService, plans PlanService, authenticate func(http.Handler) http.Handler, webhookLimiter *IPRateLimiter, l *zap.Logger) {
	handler := NewHandler(orders, plans, l.With(zap.String("component", "OrderPayHTTPHandler")))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("orderpay service is healthy"))
	})

	r.With(webhookLimiter.Middleware).Post("/payhere/notify", handler.PayHereNotifyHandler)

	r.Route("/plans", func(r chi.Router) {
		r.Get("/", handler.ListPlansHandler)
		r.Get("/{planID}", handler.GetPlanHandler)
		r.Group(func(r chi.Router) {
			r.Use(authenticate, RequireAdmin)
			r.Post("/", handler.CreatePlanHandler)
			r.Patch("/{planID}", handler.UpdatePlanHandler)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(authenticate)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", handler.CreateOrderHandler)
			r.Get("/", handler.ListOrdersHandler)
			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", handler.GetOrderHandler)
				r.Post("/cancel", handler.CancelOrderHandler)
				r.With(RequireAdmin).Post("/confirm", handler.ConfirmOrderHandler)
				r.With(RequireAdmin).Post("/complete", handler.CompleteOrderHandler)
				r.Post("/payments/payhere", handler.InitiatePayHereHandler)
				r.Post("/payments/bank-transfer", handler.OpenBankTransferHandler)
			})
		})

		r.Post("/payments/{paymentID}/slip", handler.UploadSlipHandler)

		r.Route("/installments/{installmentID}", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Post("/confirm", handler.ConfirmInstallmentHandler)
			r.Post("/reject", handler.RejectInstallmentHandler)
		})
	})
}
