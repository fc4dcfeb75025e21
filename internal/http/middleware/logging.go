package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/planchoque/portal/internal/rbac"
	"github.com/planchoque/portal/internal/session"
)

// Logging registra una línea estructurada por request.
// Debe ir después de Session para incluir usuario y rol.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		default:
			event = log.Info()
		}
		event = event.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("ip", r.RemoteAddr)

		if reqID := chimiddleware.GetReqID(r.Context()); reqID != "" {
			event = event.Str("request_id", reqID)
		}
		if st := session.FromContext(r.Context()); st.User != nil {
			event = event.Str("usuario", st.User.ID).Str("rol", rbac.ResolveRole(st.User).String())
		}
		if ua := r.UserAgent(); ua != "" {
			event = event.Str("user_agent", ua)
		}

		event.Msg("http_request")
	})
}
