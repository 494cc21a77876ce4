package router

import (
	"net/http"
	"time"

	"rental-notify-service/internal/interface/handler"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups the HTTP handlers mounted by the router
type Handlers struct {
	Notifications *handler.NotificationHandler
	Bookings      *handler.BookingHandler
	WS            *handler.WSHandler
}

// Options configures the router
type Options struct {
	AllowedOrigins []string
	Gatherer       prometheus.Gatherer
	RequestTimeout time.Duration
}

// NewHTTPRouter builds the service's routes
func NewHTTPRouter(h Handlers, opts Options) chi.Router {
	r := chi.NewRouter()

	// ---- Global Middleware ----
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Healthy"))
	})

	r.Route("/api/v1/owners/{ownerID}", func(or chi.Router) {
		// The websocket outlives any request timeout
		or.Get("/notifications/ws", h.WS.HandleNotifications)

		or.Group(func(g chi.Router) {
			if opts.RequestTimeout > 0 {
				g.Use(middleware.Timeout(opts.RequestTimeout))
			}

			// ---------------- Session ----------------
			g.Post("/session", h.Notifications.StartSession)
			g.Delete("/session", h.Notifications.StopSession)

			// ---------------- Notifications ----------------
			g.Route("/notifications", func(n chi.Router) {
				n.Get("/", h.Notifications.List)
				n.Post("/read", h.Notifications.MarkRead)
				n.Post("/unread", h.Notifications.MarkUnread)
				n.Post("/read-all", h.Notifications.MarkAllRead)
				n.Post("/delete", h.Notifications.Delete)
			})

			// ---------------- Bookings ----------------
			g.Route("/bookings", func(b chi.Router) {
				b.Get("/", h.Bookings.List)
				b.Get("/{bookingID}", h.Bookings.Get)
				b.Patch("/{bookingID}/status", h.Bookings.UpdateStatus)
				b.Get("/{bookingID}/history", h.Bookings.History)
			})
		})
	})

	return r
}
