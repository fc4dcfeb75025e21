package guard

import (
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/planchoque/portal/internal/rbac"
	"github.com/planchoque/portal/internal/session"
)

// Config define los destinos de redirección.
type Config struct {
	LoginPath        string
	UnauthorizedPath string
	Metrics          DecisionRecorder
}

// DecisionRecorder cuenta las decisiones finales.
type DecisionRecorder interface {
	GuardDecision(state string)
}

// Protector produce middlewares de chi que protegen rutas por rol.
type Protector struct {
	reporter Reporter
	cfg      Config
	logger   zerolog.Logger
}

// NewProtector crea el protector con reporter de accesos denegados.
func NewProtector(reporter Reporter, cfg Config, logger zerolog.Logger) *Protector {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/"
	}
	if cfg.UnauthorizedPath == "" {
		cfg.UnauthorizedPath = "/unauthorized"
	}
	return &Protector{reporter: reporter, cfg: cfg, logger: logger}
}

// Require protege la ruta con la lista de roles permitidos.
func (p *Protector) Require(allowed ...rbac.Role) func(http.Handler) http.Handler {
	roles := slices.Clone(allowed)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p.serve(w, r, next, roles)
		})
	}
}

// RequirePolicy busca la política por ruta. Rutas sin política niegan todo rol.
func (p *Protector) RequirePolicy(policies rbac.Policies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy, _ := policies.Match(r.URL.Path)
			p.serve(w, r, next, policy.Roles)
		})
	}
}

// RequireAsesor restringe la ruta al asesor.
func (p *Protector) RequireAsesor() func(http.Handler) http.Handler {
	return p.Require(rbac.Asesor)
}

// RequireMisteryShopper restringe la ruta al mistery shopper.
func (p *Protector) RequireMisteryShopper() func(http.Handler) http.Handler {
	return p.Require(rbac.MisteryShopper)
}

// RequireMercadeo restringe la ruta a mercadeo AC.
func (p *Protector) RequireMercadeo() func(http.Handler) http.Handler {
	return p.Require(rbac.MercadeoAC)
}

// RequireDirector restringe la ruta al director.
func (p *Protector) RequireDirector() func(http.Handler) http.Handler {
	return p.Require(rbac.Director)
}

// RequireOT restringe la ruta a OT.
func (p *Protector) RequireOT() func(http.Handler) http.Handler {
	return p.Require(rbac.OT)
}

// RequireBackoffice restringe la ruta a backoffice.
func (p *Protector) RequireBackoffice() func(http.Handler) http.Handler {
	return p.Require(rbac.Backoffice)
}

func (p *Protector) serve(w http.ResponseWriter, r *http.Request, next http.Handler, allowed []rbac.Role) {
	ctx := r.Context()
	reqID := chimiddleware.GetReqID(ctx)
	logger := p.logger.With().Str("path", r.URL.Path).Str("request_id", reqID).Logger()

	g := New(p.reporter, WithObserver(func(from, to State) {
		logger.Trace().Str("from", from.String()).Str("to", to.String()).Msg("guard: transición")
	}))
	state := g.Sync(ctx, Input{
		Auth:      session.FromContext(ctx),
		Path:      r.URL.Path,
		Allowed:   allowed,
		UserAgent: r.UserAgent(),
		RequestID: reqID,
	})

	if p.cfg.Metrics != nil {
		p.cfg.Metrics.GuardDecision(state.String())
	}

	switch state {
	case Granted:
		next.ServeHTTP(w, r)
	case DeniedUnauthenticated:
		logger.Debug().Msg("guard: sin sesión, redirigiendo a login")
		p.redirect(w, r, p.cfg.LoginPath, http.StatusUnauthorized, "AUTH", "sesión requerida")
	case DeniedWrongRole:
		p.redirect(w, r, p.cfg.UnauthorizedPath, http.StatusForbidden, "FORBIDDEN", "acceso no autorizado")
	default:
		writeLoading(w, r)
	}
}

// RedirectTarget arma el destino conservando la ruta solicitada originalmente.
func RedirectTarget(base string, r *http.Request) string {
	q := url.Values{}
	q.Set("from", r.URL.RequestURI())
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}

func (p *Protector) redirect(w http.ResponseWriter, r *http.Request, base string, status int, code, message string) {
	target := RedirectTarget(base, r)
	if wantsJSON(r) {
		w.Header().Set("Location", target)
		writeError(w, status, code, message, map[string]string{"redirect": target, "from": r.URL.RequestURI()})
		return
	}
	// 303 evita reenviar el método y no deja la ruta denegada en el historial
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func writeLoading(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "1")
	w.Header().Set("Cache-Control", "no-store")
	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data":  map[string]string{"estado": "cargando"},
			"error": nil,
		})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte(loadingPage))
}

const loadingPage = `<!doctype html><html><head><meta charset="utf-8"><meta http-equiv="refresh" content="1"><title>Cargando</title></head><body><p>Cargando...</p></body></html>`

func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": nil,
		"error": map[string]any{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
