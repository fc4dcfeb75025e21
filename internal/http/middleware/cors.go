package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

// CORS aplica la lista ALLOW_ORIGINS. Acepta origen exacto
// (https://portal.planchoque.co) o comodín de subdominio (*.planchoque.co).
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	exact := make(map[string]struct{}, len(allowedOrigins))
	var suffixes []string

	for _, entry := range allowedOrigins {
		e := strings.TrimSpace(entry)
		switch {
		case e == "":
		case strings.HasPrefix(e, "*."):
			suffixes = append(suffixes, strings.ToLower(strings.TrimPrefix(e, "*")))
		default:
			exact[e] = struct{}{}
		}
	}

	allowed := func(origin string) bool {
		if origin == "" {
			return false
		}
		if _, ok := exact[origin]; ok {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(u.Hostname())
		for _, suf := range suffixes {
			// el dominio raíz no cuenta como subdominio
			if strings.HasSuffix(host, suf) && host != strings.TrimPrefix(suf, ".") {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowed(origin) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Requested-With")
				h.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
				h.Set("Access-Control-Expose-Headers", "Location, Retry-After")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
