package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/planchoque/portal/internal/auth"
	"github.com/planchoque/portal/internal/rbac"
	"github.com/planchoque/portal/internal/repo"
)

var (
	// ErrInvalidCredentials indica falla de autenticación.
	ErrInvalidCredentials = errors.New("credenciales inválidas")
	// ErrAccountDisabled indica cuenta desactivada.
	ErrAccountDisabled = errors.New("cuenta desactivada")
	// ErrRefreshInvalid indica refresh token inválido o vencido.
	ErrRefreshInvalid = errors.New("refresh token inválido")
	// ErrNoRole indica usuario sin rol asignado.
	ErrNoRole = errors.New("usuario sin rol asignado")
)

type authRepository interface {
	GetUsuarioByEmail(ctx context.Context, email string) (repo.Usuario, error)
	GetUsuarioByID(ctx context.Context, id uuid.UUID) (repo.Usuario, error)
	TouchUltimoAcceso(ctx context.Context, id uuid.UUID) error
}

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// AuthService concentra login, refresh y cierre de sesión.
type AuthService struct {
	repo       authRepository
	redis      redisCommander
	jwt        *auth.JWTManager
	refreshTTL time.Duration
}

// NewAuthService crea el servicio.
func NewAuthService(r authRepository, redisClient redisCommander, jwtMgr *auth.JWTManager, refreshTTL time.Duration) *AuthService {
	return &AuthService{repo: r, redis: redisClient, jwt: jwtMgr, refreshTTL: refreshTTL}
}

// JWT expone el gestor de JWT (útil en middlewares).
func (s *AuthService) JWT() *auth.JWTManager {
	return s.jwt
}

// LoginResult es el retorno estándar de login y refresh.
type LoginResult struct {
	AccessToken   string
	AccessID      string
	AccessExpiry  time.Time
	RefreshToken  string
	RefreshExpiry time.Time
	Usuario       rbac.Usuario
	Role          rbac.Role
	Home          string
}

// Perfil describe al usuario autenticado.
type Perfil struct {
	ID     string `json:"id"`
	Nombre string `json:"nombre"`
	Email  string `json:"email"`
	Rol    string `json:"rol"`
	Home   string `json:"home"`
}

// Login autentica con email y clave.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.repo.GetUsuarioByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			log.Warn().Msg("login: usuario no encontrado")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := auth.Verify(password, user.ClaveHash)
	if err != nil {
		log.Warn().Err(err).Msg("login: verify password falló")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		log.Warn().Msg("login: clave inválida")
		return nil, ErrInvalidCredentials
	}

	result, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := s.repo.TouchUltimoAcceso(ctx, user.ID); err != nil {
		log.Warn().Err(err).Str("usuario", user.ID.String()).Msg("login: no se pudo registrar último acceso")
	}
	return result, nil
}

// Refresh cambia un refresh token vigente por tokens nuevos (rotación).
func (s *AuthService) Refresh(ctx context.Context, rawToken string) (*LoginResult, error) {
	if rawToken == "" {
		return nil, ErrRefreshInvalid
	}

	key := auth.RefreshRedisKey(auth.HashRefreshToken(rawToken))
	subject, err := s.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRefreshInvalid
	}
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(subject)
	if err != nil {
		return nil, ErrRefreshInvalid
	}

	user, err := s.repo.GetUsuarioByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}

	result, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := s.redis.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	return result, nil
}

// Logout revoca el refresh token actual.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return nil
	}
	key := auth.RefreshRedisKey(auth.HashRefreshToken(rawToken))
	if err := s.redis.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// Me devuelve el perfil del usuario.
func (s *AuthService) Me(ctx context.Context, id uuid.UUID) (*Perfil, error) {
	user, err := s.repo.GetUsuarioByID(ctx, id)
	if err != nil {
		return nil, err
	}
	sessionUser := SessionUser(user)
	role := rbac.ResolveRole(&sessionUser)
	return &Perfil{
		ID:     sessionUser.ID,
		Nombre: user.Nombre,
		Email:  user.Email,
		Rol:    string(role),
		Home:   rbac.HomePath(role),
	}, nil
}

func (s *AuthService) issue(ctx context.Context, user repo.Usuario) (*LoginResult, error) {
	if !user.Activo {
		return nil, ErrAccountDisabled
	}

	sessionUser := SessionUser(user)
	role := rbac.ResolveRole(&sessionUser)
	if role == rbac.None {
		return nil, ErrNoRole
	}

	token, jti, accessExpiry, err := s.jwt.GenerateAccessToken(sessionUser)
	if err != nil {
		return nil, err
	}

	rawRefresh, refreshHash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	expires := time.Now().UTC().Add(s.refreshTTL)
	if err := s.redis.Set(ctx, auth.RefreshRedisKey(refreshHash), user.ID.String(), s.refreshTTL).Err(); err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken:   token,
		AccessID:      jti,
		AccessExpiry:  accessExpiry,
		RefreshToken:  rawRefresh,
		RefreshExpiry: expires,
		Usuario:       sessionUser,
		Role:          role,
		Home:          rbac.HomePath(role),
	}, nil
}

// SessionUser traduce el registro de base de datos al usuario de sesión.
func SessionUser(u repo.Usuario) rbac.Usuario {
	su := rbac.Usuario{
		ID:     u.ID.String(),
		Nombre: u.Nombre,
		Email:  u.Email,
	}
	if u.Tipo != nil {
		su.Tipo = rbac.LegacyValue(*u.Tipo)
	}
	if u.Rol != nil && strings.TrimSpace(*u.Rol) != "" {
		su.Rol = rbac.TokenValue(strings.TrimSpace(*u.Rol))
	}
	return su
}
