package auth

import (
	"github.com/alexedwards/argon2id"
)

var params = &argon2id.Params{
	Memory:      64 * 1024, // 64 MB
	Iterations:  3,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// Hash genera un hash Argon2id (incluye los parámetros en el propio hash).
func Hash(password string) (string, error) {
	return argon2id.CreateHash(password, params)
}

// Verify compara la clave con el hash Argon2id.
func Verify(password, encodedHash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(password, encodedHash)
}
