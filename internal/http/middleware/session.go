package middleware

import (
	"net/http"

	"github.com/planchoque/portal/internal/session"
)

// Session resuelve la sesión del request y la deja en el contexto.
// No rechaza nada: decidir el acceso es trabajo del guard.
func Session(provider *session.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := provider.Resolve(r)
			next.ServeHTTP(w, r.WithContext(session.WithState(r.Context(), st)))
		})
	}
}

// RequireSession exige usuario resuelto. Mientras la sesión carga responde 503.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := session.FromContext(r.Context())
		if st.Loading {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "LOADING", "sesión en restauración")
			return
		}
		if st.User == nil {
			writeError(w, http.StatusUnauthorized, "AUTH", "sesión requerida")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetSubject devuelve el ID del usuario de la sesión, o vacío.
func GetSubject(r *http.Request) string {
	st := session.FromContext(r.Context())
	if st.User == nil {
		return ""
	}
	return st.User.ID
}
