package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	RequestTimeout time.Duration
}

// NewRouter wires every HTTP route of the back-office API.
func NewRouter(cfg RouterConfig, orders *OrdersHandler, scans *ScanHandler, log *logrus.Entry) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(MockAuthMiddleware)
	r.Use(RequestLogger(log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", orders.ListOrders)
			r.Get("/statuses", orders.ListStatuses)
			r.Post("/validate", orders.Validate)
			r.Get("/{order_id}", orders.GetOrder)
		})

		r.Route("/scan/sessions", func(r chi.Router) {
			r.Post("/", scans.CreateSession)
			r.Route("/{session_id}", func(r chi.Router) {
				r.Get("/", scans.GetSession)
				r.Delete("/", scans.DeleteSession)
				r.Post("/scans", scans.SubmitScan)
				r.Delete("/items/{order_id}", scans.RemoveItem)
				r.Post("/undo", scans.Undo)
				r.Post("/redo", scans.Redo)
				r.Post("/clear", scans.Clear)
				r.Post("/bulk", scans.Bulk)
			})
		})

		r.Route("/dispatches", func(r chi.Router) {
			r.Get("/", scans.ListDispatches)
			r.Get("/{dispatch_id}", scans.GetDispatch)
		})
	})

	return otelhttp.NewHandler(r, "backoffice-http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
