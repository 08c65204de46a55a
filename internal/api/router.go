package api

import (
	"log/slog"
	"net/http"

	"github.com/example/ec-storefront/internal/api/middleware"
	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/metrics"
	"github.com/example/ec-storefront/internal/telemetry"
)

func NewRouter(handlers *Handlers, jwtService *auth.JWTService, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	authed := middleware.AuthMiddleware(jwtService)
	route := func(pattern string, h http.HandlerFunc, roles ...order.Role) {
		var next http.Handler = telemetry.WithHTTPRoute(h)
		if len(roles) > 0 {
			next = middleware.RequireRole(roles...)(next)
		}
		mux.Handle(pattern, authed(next))
	}

	// Orders
	route("POST /orders", handlers.PlaceOrder, order.RoleCustomer)
	route("GET /orders", handlers.ListOrders)
	route("GET /orders/{id}", handlers.GetOrder)
	route("GET /orders/{id}/history", handlers.GetOrderHistory)
	route("POST /orders/{id}/transitions", handlers.TransitionOrder, order.RoleOperator)
	route("POST /orders/{id}/cancellation", handlers.RequestCancellation, order.RoleCustomer)
	route("POST /orders/{id}/cancellation/decision", handlers.DecideCancellation, order.RoleOperator)

	// Notifications
	route("GET /notifications", handlers.PullNotifications)
	route("GET /notifications/stream", handlers.StreamNotifications)
	route("GET /toasts", handlers.SyncToasts)
	route("DELETE /toasts/{id}", handlers.DismissToast)

	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return middleware.Logging(logger)(mux)
}
