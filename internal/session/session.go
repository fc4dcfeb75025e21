package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/planchoque/portal/internal/auth"
	"github.com/planchoque/portal/internal/rbac"
)

const (
	// AccessCookie lleva el token de acceso para navegación con cookies.
	AccessCookie = "pc_access"
	// RefreshCookie lleva el token de refresh.
	RefreshCookie = "pc_refresh"
)

// State es lo que el guard observa de la autenticación.
// Loading indica que todavía no se puede decidir si hay sesión.
type State struct {
	User    *rbac.Usuario
	Loading bool
	TokenID string
}

// Authenticated indica sesión resuelta con usuario.
func (s State) Authenticated() bool {
	return !s.Loading && s.User != nil
}

type redisCommander interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Provider resuelve el estado de sesión de cada request.
type Provider struct {
	jwt           *auth.JWTManager
	redis         redisCommander
	lookupTimeout time.Duration
	logger        zerolog.Logger
}

// NewProvider crea el proveedor. lookupTimeout limita la consulta de revocación.
func NewProvider(jwtManager *auth.JWTManager, redisClient redisCommander, lookupTimeout time.Duration, logger zerolog.Logger) *Provider {
	if lookupTimeout <= 0 {
		lookupTimeout = 500 * time.Millisecond
	}
	return &Provider{jwt: jwtManager, redis: redisClient, lookupTimeout: lookupTimeout, logger: logger}
}

// Resolve determina usuario y estado de carga a partir del request.
func (p *Provider) Resolve(r *http.Request) State {
	raw := accessToken(r)
	hasRefresh := refreshPresent(r)

	if raw == "" {
		return State{Loading: hasRefresh}
	}

	claims, err := p.jwt.ParseAndValidate(raw)
	if err != nil {
		if auth.IsExpired(err) && hasRefresh {
			// restauración de sesión en curso: el cliente debe llamar /auth/refresh
			return State{Loading: true}
		}
		p.logger.Debug().Err(err).Msg("session: token rechazado")
		return State{Loading: hasRefresh}
	}

	if p.redis != nil && claims.ID != "" {
		ctx, cancel := context.WithTimeout(r.Context(), p.lookupTimeout)
		defer cancel()
		n, err := p.redis.Exists(ctx, auth.RevokedRedisKey(claims.ID)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			p.logger.Warn().Err(err).Msg("session: no fue posible verificar revocación")
			return State{Loading: true}
		}
		if n > 0 {
			return State{}
		}
	}

	return State{User: claims.Usuario(), TokenID: claims.ID}
}

// Revoke invalida un token de acceso hasta su expiración natural.
func (p *Provider) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if p.redis == nil || jti == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = p.jwt.AccessTTL()
	}
	return p.redis.Set(ctx, auth.RevokedRedisKey(jti), "1", ttl).Err()
}

func accessToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if c, err := r.Cookie(AccessCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

func refreshPresent(r *http.Request) bool {
	c, err := r.Cookie(RefreshCookie)
	return err == nil && c.Value != ""
}

type contextKey struct{}

// WithState inyecta el estado en el contexto.
func WithState(ctx context.Context, st State) context.Context {
	return context.WithValue(ctx, contextKey{}, st)
}

// FromContext recupera el estado. Sin middleware, devuelve sesión anónima.
func FromContext(ctx context.Context) State {
	st, _ := ctx.Value(contextKey{}).(State)
	return st
}
