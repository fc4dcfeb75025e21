package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/planchoque/portal/internal/alert"
	httpmiddleware "github.com/planchoque/portal/internal/http/middleware"
	"github.com/planchoque/portal/internal/rbac"
	"github.com/planchoque/portal/internal/repo"
	"github.com/planchoque/portal/internal/session"
)

// LoginPage es el punto de entrada de login. Devuelve la ruta de origen para
// que el cliente regrese a ella tras autenticarse.
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	st := session.FromContext(r.Context())
	data := map[string]any{
		"pagina":   "login",
		"cargando": st.Loading,
	}
	if from, ok := localPath(r.URL.Query().Get("from")); ok {
		data["from"] = from
	}
	if st.Authenticated() {
		data["home"] = rbac.HomePath(roleOf(st))
	}
	WriteJSON(w, http.StatusOK, data)
}

// Unauthorized es el destino de los accesos con rol incorrecto.
func (h *Handler) Unauthorized(w http.ResponseWriter, r *http.Request) {
	st := session.FromContext(r.Context())
	data := map[string]any{
		"pagina":  "unauthorized",
		"mensaje": "No tienes permiso para acceder a esta sección.",
	}
	if from, ok := localPath(r.URL.Query().Get("from")); ok {
		data["from"] = from
	}
	if st.Authenticated() {
		role := roleOf(st)
		data["rol"] = role
		data["home"] = rbac.HomePath(role)
		data["alertas"] = h.alerts.List(st.User.ID)
		data["alertas_ttl_ms"] = h.alerts.TTL().Milliseconds()
	}
	WriteJSON(w, http.StatusOK, data)
}

// ListAlerts devuelve las alertas vigentes del usuario.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	items := h.alerts.List(httpmiddleware.GetSubject(r))
	if items == nil {
		items = []alert.Alert{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

// DismissAlert retira una alerta antes de su expiración.
func (h *Handler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, ok := h.alerts.Get(id)
	if !ok || a.Owner != httpmiddleware.GetSubject(r) {
		WriteError(w, http.StatusNotFound, "NOT_FOUND", "alerta no encontrada", nil)
		return
	}
	h.alerts.Remove(id)
	w.WriteHeader(http.StatusNoContent)
}

// Dashboard responde el tablero del rol. El guard ya validó el acceso.
func (h *Handler) Dashboard(role rbac.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := session.FromContext(r.Context())
		WriteJSON(w, http.StatusOK, map[string]any{
			"panel":   role,
			"ruta":    r.URL.Path,
			"usuario": st.User,
			"alertas": h.alerts.List(st.User.ID),
		})
	}
}

// Reportes es la sección compartida de reportes.
func (h *Handler) Reportes(w http.ResponseWriter, r *http.Request) {
	st := session.FromContext(r.Context())
	periodo := chi.URLParam(r, "periodo")
	if periodo == "" {
		periodo = time.Now().Format("2006-01")
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"seccion": "reportes",
		"periodo": periodo,
		"rol":     roleOf(st),
	})
}

// ListAccesos lista los últimos accesos denegados registrados.
func (h *Handler) ListAccesos(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		WriteJSON(w, http.StatusOK, map[string]any{"items": []repo.AccesoDenegado{}})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.audit.RecentAccesosDenegados(r.Context(), limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "no fue posible cargar los accesos", nil)
		return
	}
	if items == nil {
		items = []repo.AccesoDenegado{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}
