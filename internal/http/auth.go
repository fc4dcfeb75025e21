package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	httpmiddleware "github.com/planchoque/portal/internal/http/middleware"
	"github.com/planchoque/portal/internal/rbac"
	"github.com/planchoque/portal/internal/repo"
	"github.com/planchoque/portal/internal/service"
	"github.com/planchoque/portal/internal/session"
	"github.com/planchoque/portal/internal/util"
)

// Login autentica con email y clave.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
		Clave string `json:"clave"`
		From  string `json:"from"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	if err := util.ValidateEmail(payload.Email); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}
	if err := util.RequireString(payload.Clave, "clave"); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}

	result, err := h.authService.Login(r.Context(), payload.Email, payload.Clave)
	if err != nil {
		h.handleAuthError(w, err)
		return
	}

	from := payload.From
	if from == "" {
		from = r.URL.Query().Get("from")
	}
	h.writeLoginSuccess(w, result, from)
}

// Refresh rota el refresh token y emite un token de acceso nuevo.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := refreshFromRequest(r)
	if token == "" {
		WriteError(w, http.StatusUnauthorized, "AUTH", "refresh ausente", nil)
		return
	}

	result, err := h.authService.Refresh(r.Context(), token)
	if err != nil {
		if errors.Is(err, service.ErrRefreshInvalid) {
			h.clearSessionCookies(w)
		}
		h.handleAuthError(w, err)
		return
	}

	h.writeLoginSuccess(w, result, r.URL.Query().Get("from"))
}

// Logout revoca el refresh token y el token de acceso vigente.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if token := refreshFromRequest(r); token != "" {
		if err := h.authService.Logout(ctx, token); err != nil {
			log.Warn().Err(err).Msg("logout: no se pudo revocar refresh")
		}
	}
	if st := session.FromContext(ctx); st.TokenID != "" {
		if err := h.sessions.Revoke(ctx, st.TokenID, 0); err != nil {
			log.Warn().Err(err).Msg("logout: no se pudo revocar token de acceso")
		}
	}

	h.clearSessionCookies(w)
	WriteJSON(w, http.StatusOK, map[string]string{"status": "sesion_cerrada"})
}

// Me devuelve el perfil del usuario autenticado.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	subject, err := uuid.Parse(httpmiddleware.GetSubject(r))
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "AUTH", "subject inválido", nil)
		return
	}

	perfil, err := h.authService.Me(r.Context(), subject)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			WriteError(w, http.StatusUnauthorized, "AUTH", "usuario no encontrado", nil)
			return
		}
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "no fue posible cargar el perfil", nil)
		return
	}

	WriteJSON(w, http.StatusOK, perfil)
}

func (h *Handler) handleAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		WriteError(w, http.StatusUnauthorized, "AUTH", err.Error(), nil)
	case errors.Is(err, service.ErrRefreshInvalid):
		WriteError(w, http.StatusUnauthorized, "AUTH", err.Error(), nil)
	case errors.Is(err, service.ErrAccountDisabled):
		WriteError(w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
	case errors.Is(err, service.ErrNoRole):
		WriteError(w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
	default:
		log.Error().Err(err).Msg("auth: error inesperado")
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "error al autenticar", nil)
	}
}

func (h *Handler) writeLoginSuccess(w http.ResponseWriter, result *service.LoginResult, from string) {
	h.setCookie(w, session.AccessCookie, result.AccessToken, result.AccessExpiry)
	h.setCookie(w, session.RefreshCookie, result.RefreshToken, result.RefreshExpiry)

	redirect := result.Home
	if target, ok := localPath(from); ok {
		redirect = target
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"access_token": result.AccessToken,
		"expires_at":   result.AccessExpiry,
		"usuario":      result.Usuario,
		"rol":          result.Role,
		"home":         result.Home,
		"redirect":     redirect,
	})
}

// localPath acepta solo rutas del propio portal para evitar redirecciones abiertas.
// Los navegadores descartan tabs y saltos de línea, así que "/\t/x" termina como "//x".
func localPath(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsFunc(raw, unicode.IsControl) {
		return "", false
	}
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, "\\") {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "", false
	}
	return raw, true
}

func refreshFromRequest(r *http.Request) string {
	if c, err := r.Cookie(session.RefreshCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, expires time.Time) {
	c := h.cookie(name, value)
	c.Expires = expires
	http.SetCookie(w, c)
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{session.AccessCookie, session.RefreshCookie} {
		c := h.cookie(name, "")
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func (h *Handler) cookie(name, value string) *http.Cookie {
	sameSite := http.SameSiteNoneMode
	if h.devCookies {
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   !h.devCookies,
		SameSite: sameSite,
	}
}

func roleOf(st session.State) rbac.Role {
	return rbac.ResolveRole(st.User)
}
