package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// GenerateRefreshToken crea un token aleatorio seguro y su hash persistible.
func GenerateRefreshToken() (raw string, hashed string, err error) {
	buf := make([]byte, 32)
	if _, err = rand.Read(buf); err != nil {
		return "", "", err
	}

	raw = base64.RawURLEncoding.EncodeToString(buf)
	hashed = HashRefreshToken(raw)
	return raw, hashed, nil
}

// HashRefreshToken produce hash SHA-256 base64.
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// RefreshRedisKey arma la clave que guarda el estado del refresh.
func RefreshRedisKey(hash string) string {
	return "refresh:" + hash
}

// RevokedRedisKey arma la clave que marca un token de acceso como revocado.
func RevokedRedisKey(jti string) string {
	return "session:revoked:" + jti
}
