package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planchoque/portal/internal/alert"
	"github.com/planchoque/portal/internal/auth"
	"github.com/planchoque/portal/internal/config"
	"github.com/planchoque/portal/internal/guard"
	"github.com/planchoque/portal/internal/metrics"
	"github.com/planchoque/portal/internal/repo"
	"github.com/planchoque/portal/internal/security"
	"github.com/planchoque/portal/internal/service"
	"github.com/planchoque/portal/internal/session"
)

const testSecret = "this-is-a-test-secret-with-32-bytes!"

type stubRepo struct {
	users map[uuid.UUID]repo.Usuario
}

func (s *stubRepo) GetUsuarioByEmail(ctx context.Context, email string) (repo.Usuario, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return repo.Usuario{}, repo.ErrNotFound
}

func (s *stubRepo) GetUsuarioByID(ctx context.Context, id uuid.UUID) (repo.Usuario, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return repo.Usuario{}, repo.ErrNotFound
}

func (s *stubRepo) TouchUltimoAcceso(ctx context.Context, id uuid.UUID) error {
	return nil
}

type stubAudit struct {
	items []repo.AccesoDenegado
}

func (s *stubAudit) RecentAccesosDenegados(ctx context.Context, limit int) ([]repo.AccesoDenegado, error) {
	return s.items, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

type recordingClient struct {
	entries chan security.LogEntry
}

func (c *recordingClient) Send(ctx context.Context, entry security.LogEntry) error {
	c.entries <- entry
	return nil
}

type testEnv struct {
	handler http.Handler
	jwt     *auth.JWTManager
	alerts  *alert.Store
	logs    *recordingClient
	redis   *miniredis.Miniredis
	users   *stubRepo
}

func newTestEnv(t *testing.T, alertTTL time.Duration) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		Env:             "development",
		RateLimitPublic: config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
		RateLimitAuth:   config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
		Guard: config.GuardConfig{
			LoginPath:        "/",
			UnauthorizedPath: "/unauthorized",
			AlertTTL:         alertTTL,
		},
	}

	users := &stubRepo{users: make(map[uuid.UUID]repo.Usuario)}
	jwtMgr := auth.NewJWTManager(testSecret, time.Minute)
	authService := service.NewAuthService(users, rdb, jwtMgr, time.Hour)
	sessions := session.NewProvider(jwtMgr, rdb, time.Second, zerolog.Nop())

	alerts := alert.NewStore(alertTTL)
	t.Cleanup(alerts.Close)
	logs := &recordingClient{entries: make(chan security.LogEntry, 10)}
	m := metrics.New()
	reporter := security.NewReporter(alerts, logs, security.Options{Metrics: m}, zerolog.Nop())
	protector := guard.NewProtector(reporter, guard.Config{
		LoginPath:        cfg.Guard.LoginPath,
		UnauthorizedPath: cfg.Guard.UnauthorizedPath,
		Metrics:          m,
	}, zerolog.Nop())

	h := NewRouter(Deps{
		Config:    cfg,
		DB:        stubPinger{},
		Redis:     rdb,
		Auth:      authService,
		Sessions:  sessions,
		Alerts:    alerts,
		Protector: protector,
		Audit:     &stubAudit{items: []repo.AccesoDenegado{{ID: uuid.New(), Ruta: "/director/home", Rol: "asesor"}}},
		Metrics:   m,
	})

	return &testEnv{handler: h, jwt: jwtMgr, alerts: alerts, logs: logs, redis: mr, users: users}
}

func (e *testEnv) addUser(t *testing.T, tipo int, password string) repo.Usuario {
	t.Helper()
	u := repo.Usuario{ID: uuid.New(), Nombre: "Usuario", Email: uuid.NewString() + "@terpel.com", Tipo: &tipo, Activo: true}
	if password != "" {
		hash, err := auth.Hash(password)
		require.NoError(t, err)
		u.ClaveHash = hash
	}
	e.users.users[u.ID] = u
	return u
}

func (e *testEnv) token(t *testing.T, u repo.Usuario) string {
	t.Helper()
	tok, _, _, err := e.jwt.GenerateAccessToken(service.SessionUser(u))
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(method, path, token string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Data
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	rec := env.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeData(t, rec)["status"])
}

func TestReady(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	rec := env.do(http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	env.redis.Close()
	rec = env.do(http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDashboard_SinSesionRedirigeALogin(t *testing.T) {
	env := newTestEnv(t, time.Minute)

	rec := env.do(http.MethodGet, "/director/home", "", "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?from="+url.QueryEscape("/director/home"), rec.Header().Get("Location"))
	assert.Empty(t, env.logs.entries)
}

func TestDashboard_RolCorrecto(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	asesor := env.addUser(t, 1, "")

	rec := env.do(http.MethodGet, "/asesor/home", env.token(t, asesor), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "asesor", decodeData(t, rec)["panel"])
}

func TestDashboard_RolIncorrectoReportaYAlerta(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	asesor := env.addUser(t, 1, "")
	tok := env.token(t, asesor)

	rec := env.do(http.MethodGet, "/backoffice/home", tok, "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/unauthorized?from="+url.QueryEscape("/backoffice/home"), rec.Header().Get("Location"))

	select {
	case entry := <-env.logs.entries:
		assert.Equal(t, "/backoffice/home", entry.Route)
		assert.Equal(t, "asesor", entry.UserRole)
		assert.Equal(t, []string{"backoffice"}, entry.RequiredRole)
	case <-time.After(time.Second):
		t.Fatal("no se envió el registro de seguridad")
	}

	rec = env.do(http.MethodGet, "/alerts", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	items, ok := decodeData(t, rec)["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	msg := items[0].(map[string]any)["message"].(string)
	assert.Contains(t, msg, "/backoffice/home")
	assert.Contains(t, msg, "asesor")
}

func TestDashboard_AlertaExpira(t *testing.T) {
	env := newTestEnv(t, 150*time.Millisecond)
	asesor := env.addUser(t, 1, "")
	tok := env.token(t, asesor)

	env.do(http.MethodGet, "/director/home", tok, "")
	require.Len(t, env.alerts.List(asesor.ID.String()), 1)

	require.Eventually(t, func() bool {
		return len(env.alerts.List(asesor.ID.String())) == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDashboard_RestaurandoSesionNoRedirige(t *testing.T) {
	env := newTestEnv(t, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/ot/home", nil)
	req.AddCookie(&http.Cookie{Name: session.RefreshCookie, Value: "pendiente"})
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Empty(t, rec.Header().Get("Location"))
	assert.Empty(t, env.logs.entries)
}

func TestReportes_Politica(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	director := env.addUser(t, 4, "")
	ot := env.addUser(t, 5, "")

	rec := env.do(http.MethodGet, "/reportes", env.token(t, director), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/reportes/2026-09", env.token(t, director), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-09", decodeData(t, rec)["periodo"])

	rec = env.do(http.MethodGet, "/reportes", env.token(t, ot), "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestLogin_CookiesYRedirect(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	u := env.addUser(t, 6, "clave-segura")

	body := `{"email":"` + u.Email + `","clave":"clave-segura","from":"/backoffice/home?tab=2"}`
	rec := env.do(http.MethodPost, "/auth/login", "", body)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeData(t, rec)
	assert.Equal(t, "backoffice", data["rol"])
	assert.Equal(t, "/backoffice/home?tab=2", data["redirect"])

	names := map[string]bool{}
	for _, c := range rec.Result().Cookies() {
		names[c.Name] = c.Value != ""
	}
	assert.True(t, names[session.AccessCookie])
	assert.True(t, names[session.RefreshCookie])
}

func TestLogin_RedirectExternoSeIgnora(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	u := env.addUser(t, 2, "clave-segura")

	body := `{"email":"` + u.Email + `","clave":"clave-segura","from":"//evil.example/x"}`
	rec := env.do(http.MethodPost, "/auth/login", "", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/misteryshopper/home", decodeData(t, rec)["redirect"])
}

func TestLocalPath(t *testing.T) {
	cases := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"/asesor/home", "/asesor/home", true},
		{" /ot/home?x=1 ", "/ot/home?x=1", true},
		{"", "", false},
		{"asesor/home", "", false},
		{"//evil.example/x", "", false},
		{"/\\evil.example", "", false},
		{"https://evil.example/x", "", false},
		{"/\t/x", "", false},
		{"/\n/x", "", false},
		{"/\r//x", "", false},
		{"/asesor\x00/home", "", false},
	}
	for _, tc := range cases {
		got, ok := localPath(tc.raw)
		assert.Equal(t, tc.ok, ok, "raw=%q", tc.raw)
		assert.Equal(t, tc.want, got, "raw=%q", tc.raw)
	}
}

func TestLogin_RedirectConControlSeIgnora(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	u := env.addUser(t, 5, "clave-segura")

	body := `{"email":"` + u.Email + `","clave":"clave-segura","from":"/\t/evil.example"}`
	rec := env.do(http.MethodPost, "/auth/login", "", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/ot/home", decodeData(t, rec)["redirect"])

	rec = env.do(http.MethodGet, "/?from=%2F%0A%2Fevil.example", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, decodeData(t, rec), "from")
}

func TestLogin_Errores(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	u := env.addUser(t, 1, "clave-segura")

	rec := env.do(http.MethodPost, "/auth/login", "", `{"email":"`+u.Email+`","clave":"otra"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/auth/login", "", `{"email":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/auth/login", "", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogout_RevocaTokenDeAcceso(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	u := env.addUser(t, 3, "")
	tok := env.token(t, u)

	rec := env.do(http.MethodGet, "/me", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mercadeo_ac", decodeData(t, rec)["rol"])

	rec = env.do(http.MethodPost, "/auth/logout", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/me", tok, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodGet, "/mercadeo/home", tok, "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestRefresh(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	u := env.addUser(t, 5, "clave-segura")

	rec := env.do(http.MethodPost, "/auth/login", "", `{"email":"`+u.Email+`","clave":"clave-segura"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var refresh string
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.RefreshCookie {
			refresh = c.Value
		}
	}
	require.NotEmpty(t, refresh)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: session.RefreshCookie, Value: refresh})
	out := httptest.NewRecorder()
	env.handler.ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code)
	assert.Equal(t, "/ot/home", decodeData(t, out)["redirect"])

	rec = env.do(http.MethodPost, "/auth/refresh", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAlerts_DescartarSoloPropias(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	a := env.addUser(t, 1, "")
	b := env.addUser(t, 2, "")

	mine := env.alerts.Add(a.ID.String(), "mensaje", alert.SeverityError)

	rec := env.do(http.MethodDelete, "/alerts/"+mine.ID, env.token(t, b), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodDelete, "/alerts/"+mine.ID, env.token(t, a), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok := env.alerts.Get(mine.ID)
	assert.False(t, ok)
}

func TestAlerts_SinSesion(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	rec := env.do(http.MethodGet, "/alerts", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPaginas(t *testing.T) {
	env := newTestEnv(t, time.Minute)

	rec := env.do(http.MethodGet, "/?from=%2Fasesor%2Fhome", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/asesor/home", decodeData(t, rec)["from"])

	u := env.addUser(t, 4, "")
	rec = env.do(http.MethodGet, "/unauthorized?from=%2Fot%2Fhome", env.token(t, u), "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, "director", data["rol"])
	assert.Equal(t, "/director/home", data["home"])
	assert.EqualValues(t, time.Minute.Milliseconds(), data["alertas_ttl_ms"])
}

func TestAccesos_SoloBackoffice(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	bo := env.addUser(t, 6, "")
	asesor := env.addUser(t, 1, "")

	rec := env.do(http.MethodGet, "/backoffice/accesos", env.token(t, bo), "")
	require.Equal(t, http.StatusOK, rec.Code)
	items, ok := decodeData(t, rec)["items"].([]any)
	require.True(t, ok)
	assert.Len(t, items, 1)

	rec = env.do(http.MethodGet, "/backoffice/accesos", env.token(t, asesor), "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	env.do(http.MethodGet, "/director/home", "", "")

	rec := env.do(http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `planchoque_guard_decisions_total{state="denied_unauthenticated"} 1`)
	assert.Contains(t, body, `route="/director/home"`)
}
