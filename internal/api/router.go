package api

import (
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/baharkarakas/transferflow/internal/api/handlers"
	"github.com/baharkarakas/transferflow/internal/auth"
	"github.com/baharkarakas/transferflow/internal/metrics"
	"github.com/baharkarakas/transferflow/internal/middleware"
	"github.com/baharkarakas/transferflow/internal/ratelimit"
	"github.com/baharkarakas/transferflow/internal/realtime"
	"github.com/baharkarakas/transferflow/internal/services"
)

type RouterDeps struct {
	Env            string
	AllowedOrigins []string
	TrustedProxies []netip.Prefix // peers whose forwarding headers are believed

	Verifier     auth.Verifier
	Tokens       *auth.TokenManager // nil disables /auth routes
	RequestLimit ratelimit.Limiter  // coarse per-IP guard, nil disables it

	Transfers *services.TransferService
	Admin     *services.AdminService
	Balances  *services.BalanceService
	Hub       *realtime.Hub

	Log *slog.Logger
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.TrustedRealIP(d.TrustedProxies))
	r.Use(middleware.RequestID, middleware.Recover, middleware.HTTPMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader, "Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())
	r.Handle("/ws", realtime.NewHandler(d.Hub, d.Verifier, origins, d.Log))

	authn := middleware.NewAuthMiddleware(d.Verifier)
	th := handlers.NewTransferHandler(d.Transfers, d.Log)
	ah := handlers.NewAdminHandler(d.Transfers, d.Admin, d.Hub, d.Log)
	bh := handlers.NewBalanceHandler(d.Balances, d.Log)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(d.RequestLimit))

		if d.Tokens != nil {
			auh := handlers.NewAuthHandler(d.Tokens, d.Env)
			r.Post("/auth/dev-token", auh.DevToken)
			r.Post("/auth/refresh", auh.Refresh)
		}

		r.Group(func(r chi.Router) {
			r.Use(authn.Auth, middleware.RBAC(auth.RoleUser, auth.RoleAdmin))

			r.Post("/transfers", th.Create)
			r.Get("/transfers/updates", th.Updates)
			r.Get("/transfers/{id}", th.Get)
			r.Get("/balances/current", bh.Current)
		})

		r.Group(func(r chi.Router) {
			r.Use(authn.Auth, middleware.RBAC(auth.RoleAdmin))

			r.Get("/admin/transfers", ah.List)
			r.Get("/admin/transfers/pending", ah.ListPending)
			r.Get("/admin/transfers/stats", ah.Stats)
			r.Post("/admin/transfers/{id}/approve", ah.Approve)
			r.Post("/admin/transfers/{id}/reject", ah.Reject)
			r.Post("/admin/transfers/{id}/settle", ah.Settle)
			r.Get("/realtime/stats", ah.RealtimeStats)
		})
	})

	return r
}
