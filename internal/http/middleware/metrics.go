package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RequestObserver recibe la duración de cada request.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, seconds float64)
}

// Metrics mide cada request etiquetado por el patrón de ruta de chi,
// no por la ruta concreta, para no disparar la cardinalidad.
func Metrics(obs RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			route := "desconocida"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			obs.ObserveRequest(r.Method, route, status, time.Since(start).Seconds())
		})
	}
}
