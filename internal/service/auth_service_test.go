package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planchoque/portal/internal/auth"
	"github.com/planchoque/portal/internal/rbac"
	"github.com/planchoque/portal/internal/repo"
)

const testSecret = "this-is-a-test-secret-with-32-bytes!"

type stubAuthRepo struct {
	users   map[uuid.UUID]repo.Usuario
	touched int
}

func (s *stubAuthRepo) GetUsuarioByEmail(ctx context.Context, email string) (repo.Usuario, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return repo.Usuario{}, repo.ErrNotFound
}

func (s *stubAuthRepo) GetUsuarioByID(ctx context.Context, id uuid.UUID) (repo.Usuario, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return repo.Usuario{}, repo.ErrNotFound
}

func (s *stubAuthRepo) TouchUltimoAcceso(ctx context.Context, id uuid.UUID) error {
	s.touched++
	return nil
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func newTestService(t *testing.T, users ...repo.Usuario) (*AuthService, *stubAuthRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	stub := &stubAuthRepo{users: make(map[uuid.UUID]repo.Usuario)}
	for _, u := range users {
		stub.users[u.ID] = u
	}
	svc := NewAuthService(stub, client, auth.NewJWTManager(testSecret, time.Minute), time.Hour)
	return svc, stub, mr
}

func hashOrFail(t *testing.T, password string) string {
	t.Helper()
	h, err := auth.Hash(password)
	require.NoError(t, err)
	return h
}

func TestLogin_AsesorLegacy(t *testing.T) {
	hash := hashOrFail(t, "clave-segura")
	user := repo.Usuario{ID: uuid.New(), Nombre: "Ana", Email: "ana@terpel.com", ClaveHash: hash, Tipo: intPtr(1), Activo: true}
	svc, stub, mr := newTestService(t, user)

	res, err := svc.Login(context.Background(), " ANA@terpel.com ", "clave-segura")
	require.NoError(t, err)
	assert.Equal(t, rbac.Asesor, res.Role)
	assert.Equal(t, "/asesor/home", res.Home)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, 1, stub.touched)

	stored, err := mr.Get(auth.RefreshRedisKey(auth.HashRefreshToken(res.RefreshToken)))
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), stored)

	claims, err := svc.JWT().ParseAndValidate(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, rbac.Asesor, rbac.ResolveRole(claims.Usuario()))
}

func TestLogin_Errores(t *testing.T) {
	hash := hashOrFail(t, "clave-segura")
	inactivo := repo.Usuario{ID: uuid.New(), Email: "off@terpel.com", ClaveHash: hash, Tipo: intPtr(2), Activo: false}
	sinRol := repo.Usuario{ID: uuid.New(), Email: "norol@terpel.com", ClaveHash: hash, Activo: true}
	svc, _, _ := newTestService(t, inactivo, sinRol)

	_, err := svc.Login(context.Background(), "nadie@terpel.com", "x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "off@terpel.com", "otra")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "off@terpel.com", "clave-segura")
	assert.ErrorIs(t, err, ErrAccountDisabled)

	_, err = svc.Login(context.Background(), "norol@terpel.com", "clave-segura")
	assert.ErrorIs(t, err, ErrNoRole)
}

func TestRefresh_RotaToken(t *testing.T) {
	user := repo.Usuario{ID: uuid.New(), Email: "bo@terpel.com", Rol: strPtr("backoffice"), Activo: true}
	svc, _, mr := newTestService(t, user)

	raw, hash, err := auth.GenerateRefreshToken()
	require.NoError(t, err)
	require.NoError(t, mr.Set(auth.RefreshRedisKey(hash), user.ID.String()))

	res, err := svc.Refresh(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, rbac.Backoffice, res.Role)
	assert.False(t, mr.Exists(auth.RefreshRedisKey(hash)), "el refresh anterior debe revocarse")

	_, err = svc.Refresh(context.Background(), raw)
	assert.ErrorIs(t, err, ErrRefreshInvalid)

	_, err = svc.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, ErrRefreshInvalid)
}

func TestLogout_BorraRefresh(t *testing.T) {
	svc, _, mr := newTestService(t)
	raw, hash, err := auth.GenerateRefreshToken()
	require.NoError(t, err)
	require.NoError(t, mr.Set(auth.RefreshRedisKey(hash), uuid.NewString()))

	require.NoError(t, svc.Logout(context.Background(), raw))
	assert.False(t, mr.Exists(auth.RefreshRedisKey(hash)))
	assert.NoError(t, svc.Logout(context.Background(), ""))
}

func TestMe(t *testing.T) {
	user := repo.Usuario{ID: uuid.New(), Nombre: "Dir", Email: "dir@terpel.com", Tipo: intPtr(4), Activo: true}
	svc, _, _ := newTestService(t, user)

	p, err := svc.Me(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "director", p.Rol)
	assert.Equal(t, "/director/home", p.Home)

	_, err = svc.Me(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestSessionUser_TipoTienePrioridad(t *testing.T) {
	su := SessionUser(repo.Usuario{ID: uuid.New(), Tipo: intPtr(5), Rol: strPtr("asesor")})
	assert.Equal(t, rbac.OT, rbac.ResolveRole(&su))

	su = SessionUser(repo.Usuario{ID: uuid.New(), Rol: strPtr("  mercadeo_ac ")})
	assert.Equal(t, rbac.MercadeoAC, rbac.ResolveRole(&su))
}
