package repo

import (
	"time"

	"github.com/google/uuid"
)

// Usuario representa a un integrante del programa (asesor, backoffice, etc.).
// Tipo es el ID numérico heredado; Rol el token textual. Puede venir solo uno de los dos.
type Usuario struct {
	ID        uuid.UUID
	Nombre    string
	Email     string
	ClaveHash string
	Tipo      *int
	Rol       *string
	Activo    bool
	CreadoEn  time.Time
}
