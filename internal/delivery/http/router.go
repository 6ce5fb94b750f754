package http

import (
	"net/http"

	"consultation-booking/internal/delivery/http/handler"
	"consultation-booking/internal/delivery/http/middleware"

	"github.com/gorilla/mux"
)

type Router struct {
	router              *mux.Router
	bookingHandler      *handler.BookingHandler
	webhookHandler      *handler.WebhookHandler
	authHandler         *handler.AuthHandler
	adminBookingHandler *handler.AdminBookingHandler
	auditLogHandler     *handler.AuditLogHandler
	authMiddleware      *middleware.AuthMiddleware
	corsMiddleware      *middleware.CORSMiddleware
	rateLimiter         *middleware.RateLimiter
	adminEmail          string
}

func NewRouter(
	bookingHandler *handler.BookingHandler,
	webhookHandler *handler.WebhookHandler,
	authHandler *handler.AuthHandler,
	adminBookingHandler *handler.AdminBookingHandler,
	auditLogHandler *handler.AuditLogHandler,
	authMiddleware *middleware.AuthMiddleware,
	corsMiddleware *middleware.CORSMiddleware,
	rateLimiter *middleware.RateLimiter,
	adminEmail string,
) *Router {
	return &Router{
		router:              mux.NewRouter(),
		bookingHandler:      bookingHandler,
		webhookHandler:      webhookHandler,
		authHandler:         authHandler,
		adminBookingHandler: adminBookingHandler,
		auditLogHandler:     auditLogHandler,
		authMiddleware:      authMiddleware,
		corsMiddleware:      corsMiddleware,
		rateLimiter:         rateLimiter,
		adminEmail:          adminEmail,
	}
}

func (r *Router) Setup() *mux.Router {
	// API versioning
	api := r.router.PathPrefix("/api/v1").Subrouter()

	// Health check
	api.HandleFunc("/health", r.healthCheck).Methods(http.MethodGet)

	// Public booking routes
	api.HandleFunc("/slots", r.bookingHandler.GetBookedSlots).Methods(http.MethodGet)
	api.HandleFunc("/bookings/lookup", r.bookingHandler.GetBookingBySession).Methods(http.MethodGet)
	api.Handle("/checkout", r.rateLimiter.Handle(http.HandlerFunc(r.bookingHandler.CreateCheckout))).Methods(http.MethodPost, http.MethodOptions)

	// Payment provider callbacks (signature verified, no JWT)
	api.HandleFunc("/webhooks/stripe", r.webhookHandler.HandleStripe).Methods(http.MethodPost)

	// Auth routes (public)
	api.Handle("/auth/login", r.rateLimiter.Handle(http.HandlerFunc(r.authHandler.Login))).Methods(http.MethodPost, http.MethodOptions)

	// Auth routes (protected)
	authProtected := api.PathPrefix("/auth").Subrouter()
	authProtected.Use(r.authMiddleware.Authenticate)
	authProtected.HandleFunc("/logout", r.authHandler.Logout).Methods(http.MethodPost)
	authProtected.HandleFunc("/me", r.authHandler.GetCurrentAdmin).Methods(http.MethodGet)

	// Admin routes (protected - operator only)
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(r.authMiddleware.Authenticate)
	admin.Use(middleware.RequireAdmin(r.adminEmail))

	admin.HandleFunc("/bookings", r.adminBookingHandler.ListBookings).Methods(http.MethodGet)
	admin.HandleFunc("/bookings/{id}", r.adminBookingHandler.GetBooking).Methods(http.MethodGet)
	admin.HandleFunc("/bookings/{id}/cancel", r.adminBookingHandler.CancelBooking).Methods(http.MethodPatch)
	admin.HandleFunc("/bookings/{id}/fulfill", r.adminBookingHandler.RequeueFulfillment).Methods(http.MethodPost)
	admin.HandleFunc("/audit-logs", r.auditLogHandler.GetAuditLogs).Methods(http.MethodGet)

	// Add CORS middleware
	r.router.Use(r.corsMiddleware.Handle)

	return r.router
}

func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
