package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/planchoque/portal/internal/alert"
	"github.com/planchoque/portal/internal/config"
	"github.com/planchoque/portal/internal/guard"
	"github.com/planchoque/portal/internal/metrics"
	httpmiddleware "github.com/planchoque/portal/internal/http/middleware"
	"github.com/planchoque/portal/internal/rbac"
	"github.com/planchoque/portal/internal/repo"
	"github.com/planchoque/portal/internal/service"
	"github.com/planchoque/portal/internal/session"
)

// Pinger es lo que Ready necesita de la base de datos.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AuditReader lista los accesos denegados persistidos.
type AuditReader interface {
	RecentAccesosDenegados(ctx context.Context, limit int) ([]repo.AccesoDenegado, error)
}

// Deps agrupa las dependencias del router.
type Deps struct {
	Config    *config.Config
	DB        Pinger
	Redis     *redis.Client
	Auth      *service.AuthService
	Sessions  *session.Provider
	Alerts    *alert.Store
	Protector *guard.Protector
	Audit     AuditReader
	Metrics   *metrics.Metrics
}

type Handler struct {
	cfg           *config.Config
	db            Pinger
	redis         *redis.Client
	authService   *service.AuthService
	sessions      *session.Provider
	alerts        *alert.Store
	audit         AuditReader
	publicLimiter *httpmiddleware.RateLimiter
	authLimiter   *httpmiddleware.RateLimiter
	devCookies    bool
}

// NewRouter devuelve el router configurado.
func NewRouter(d Deps) http.Handler {
	cfg := d.Config

	devCookies := cfg.Development()
	for _, origin := range cfg.AllowOrigins {
		if strings.Contains(origin, "localhost") {
			devCookies = true
			break
		}
	}

	h := &Handler{
		cfg:           cfg,
		db:            d.DB,
		redis:         d.Redis,
		authService:   d.Auth,
		sessions:      d.Sessions,
		alerts:        d.Alerts,
		audit:         d.Audit,
		publicLimiter: httpmiddleware.NewRateLimiter(cfg.RateLimitPublic.RequestsPerSecond, cfg.RateLimitPublic.Burst),
		authLimiter:   httpmiddleware.NewRateLimiter(cfg.RateLimitAuth.RequestsPerSecond, cfg.RateLimitAuth.Burst),
		devCookies:    devCookies,
	}
	protect := d.Protector

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(httpmiddleware.Session(d.Sessions))
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.Recover)
	r.Use(httpmiddleware.CORS(cfg.AllowOrigins))
	if d.Metrics != nil {
		r.Use(httpmiddleware.Metrics(d.Metrics))
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Group(func(public chi.Router) {
		public.Use(httpmiddleware.IPRateLimit(h.publicLimiter))

		public.Get("/health", h.Health)
		public.Get("/ready", h.Ready)
		public.Get(cfg.Guard.LoginPath, h.LoginPage)
		public.Get(cfg.Guard.UnauthorizedPath, h.Unauthorized)

		public.Route("/auth", func(auth chi.Router) {
			auth.Post("/login", h.Login)
			auth.Post("/refresh", h.Refresh)
			auth.Post("/logout", h.Logout)
		})
	})

	r.Group(func(private chi.Router) {
		private.Use(httpmiddleware.RequireSession)
		private.Use(httpmiddleware.UserRateLimit(h.authLimiter))

		private.Get("/me", h.Me)
		private.Get("/alerts", h.ListAlerts)
		private.Delete("/alerts/{id}", h.DismissAlert)
	})

	r.Group(func(dash chi.Router) {
		dash.Use(httpmiddleware.UserRateLimit(h.authLimiter))

		dash.With(protect.RequireAsesor()).Get("/asesor/home", h.Dashboard(rbac.Asesor))
		dash.With(protect.RequireMisteryShopper()).Get("/misteryshopper/home", h.Dashboard(rbac.MisteryShopper))
		dash.With(protect.RequireMercadeo()).Get("/mercadeo/home", h.Dashboard(rbac.MercadeoAC))
		dash.With(protect.RequireDirector()).Get("/director/home", h.Dashboard(rbac.Director))
		dash.With(protect.RequireOT()).Get("/ot/home", h.Dashboard(rbac.OT))
		dash.With(protect.RequireBackoffice()).Get("/backoffice/home", h.Dashboard(rbac.Backoffice))
		dash.With(protect.RequireBackoffice()).Get("/backoffice/accesos", h.ListAccesos)

		dash.Route("/reportes", func(rep chi.Router) {
			rep.Use(protect.RequirePolicy(rbac.DefaultPolicies()))
			rep.Get("/", h.Reportes)
			rep.Get("/{periodo}", h.Reportes)
		})
	})

	return r
}

// Health responde estado simple.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready valida conexión con Postgres y Redis.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var dbErr, redisErr error
	if h.db != nil {
		dbErr = h.db.Ping(ctx)
	}
	if h.redis != nil {
		redisErr = h.redis.Ping(ctx).Err()
	}

	if dbErr != nil || redisErr != nil {
		WriteError(w, http.StatusServiceUnavailable, "INTERNAL", "dependencias no disponibles", map[string]any{
			"db":    errorString(dbErr),
			"redis": errorString(redisErr),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
