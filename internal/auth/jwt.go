package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/planchoque/portal/internal/rbac"
)

// Claims representa la información de un JWT de acceso.
// Tipo conserva el ID numérico heredado; Rol el token textual.
type Claims struct {
	Nombre string         `json:"nombre,omitempty"`
	Email  string         `json:"email,omitempty"`
	Tipo   rbac.RoleValue `json:"tipo"`
	Rol    rbac.RoleValue `json:"rol"`
	jwt.RegisteredClaims
}

// Usuario reconstruye el usuario de sesión a partir de los claims.
func (c *Claims) Usuario() *rbac.Usuario {
	return &rbac.Usuario{
		ID:     c.Subject,
		Nombre: c.Nombre,
		Email:  c.Email,
		Tipo:   c.Tipo,
		Rol:    c.Rol,
	}
}

// JWTManager encapsula generación y validación de tokens.
type JWTManager struct {
	secret    []byte
	accessTTL time.Duration
	issuer    string
}

// NewJWTManager crea el gestor con secreto y TTL configurados.
func NewJWTManager(secret string, accessTTL time.Duration) *JWTManager {
	return &JWTManager{secret: []byte(secret), accessTTL: accessTTL, issuer: "plan-choque"}
}

// AccessTTL expone la duración de los tokens de acceso.
func (m *JWTManager) AccessTTL() time.Duration {
	return m.accessTTL
}

// GenerateAccessToken crea un JWT HS256 para el usuario. Devuelve token, jti y expiración.
func (m *JWTManager) GenerateAccessToken(u rbac.Usuario) (string, string, time.Time, error) {
	now := time.Now().UTC()
	jti := uuid.NewString()
	expires := now.Add(m.accessTTL)

	claims := Claims{
		Nombre: u.Nombre,
		Email:  u.Email,
		Tipo:   u.Tipo,
		Rol:    u.Rol,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", "", time.Time{}, err
	}

	return signed, jti, expires, nil
}

// ParseAndValidate verifica firma, emisor y expiración.
func (m *JWTManager) ParseAndValidate(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
	)

	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("token inválido")
	}
	if claims.Subject == "" {
		return nil, errors.New("token sin subject")
	}

	return claims, nil
}

// IsExpired indica si el error de parseo se debe solo a expiración.
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}
