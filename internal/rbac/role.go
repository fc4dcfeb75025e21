package rbac

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Role identifica el perfil canónico de un usuario del Plan Choque.
type Role string

const (
	None           Role = ""
	Asesor         Role = "asesor"
	MisteryShopper Role = "misteryshopper"
	MercadeoAC     Role = "mercadeo_ac"
	Director       Role = "director"
	OT             Role = "ot"
	Backoffice     Role = "backoffice"
	// Implementacion existe en la tabla, pero ninguna ruta la usa.
	Implementacion Role = "implementacion"
)

// legacyRoles traduce los IDs numéricos heredados (campo tipo) a tokens.
var legacyRoles = map[int]Role{
	1: Asesor,
	2: MisteryShopper,
	3: MercadeoAC,
	4: Director,
	5: OT,
	6: Backoffice,
}

var knownRoles = map[Role]struct{}{
	Asesor:         {},
	MisteryShopper: {},
	MercadeoAC:     {},
	Director:       {},
	OT:             {},
	Backoffice:     {},
	Implementacion: {},
}

// ActiveRoles lista los roles con rutas habilitadas.
func ActiveRoles() []Role {
	return []Role{Asesor, MisteryShopper, MercadeoAC, Director, OT, Backoffice}
}

// Known indica si el token pertenece a la enumeración cerrada de roles.
func (r Role) Known() bool {
	_, ok := knownRoles[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}

// LegacyID devuelve el ID numérico heredado del rol, si existe.
func LegacyID(role Role) (int, bool) {
	for id, r := range legacyRoles {
		if r == role {
			return id, true
		}
	}
	return 0, false
}

// RoleValue guarda el valor crudo del campo de rol, numérico o texto.
type RoleValue struct {
	raw     string
	numeric bool
	invalid bool
}

// LegacyValue crea un valor numérico (IDs 1 a 6).
func LegacyValue(id int) RoleValue {
	return RoleValue{raw: strconv.Itoa(id), numeric: true}
}

// TokenValue crea un valor textual.
func TokenValue(token string) RoleValue {
	return RoleValue{raw: token}
}

// IsZero indica campo ausente.
func (v RoleValue) IsZero() bool {
	return v.raw == "" && !v.invalid
}

// Numeric informa si el valor llegó como número.
func (v RoleValue) Numeric() bool {
	return v.numeric
}

func (v RoleValue) String() string {
	return v.raw
}

// UnmarshalJSON acepta número o string. Otros formatos quedan como valor inválido, sin error.
func (v *RoleValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*v = RoleValue{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v.raw = strings.TrimSpace(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		id, err := strconv.Atoi(n.String())
		if err != nil {
			v.invalid = true
			return nil
		}
		v.raw = strconv.Itoa(id)
		v.numeric = true
		return nil
	}

	v.invalid = true
	return nil
}

// MarshalJSON conserva el tipo original del valor.
func (v RoleValue) MarshalJSON() ([]byte, error) {
	if v.invalid || v.raw == "" {
		return []byte("null"), nil
	}
	if v.numeric {
		return []byte(v.raw), nil
	}
	return json.Marshal(v.raw)
}

// Usuario representa el usuario de la sesión (solo lectura para el guard).
type Usuario struct {
	ID     string    `json:"id"`
	Nombre string    `json:"nombre"`
	Email  string    `json:"email,omitempty"`
	Tipo   RoleValue `json:"tipo"`
	Rol    RoleValue `json:"rol"`
}

// ResolveRole convierte el usuario de la sesión en su rol canónico.
// Un usuario nulo o un valor de rol ilegible resuelven a None.
func ResolveRole(u *Usuario) Role {
	if u == nil {
		return None
	}

	value := u.Tipo
	if value.IsZero() {
		value = u.Rol
	}
	if value.invalid {
		return None
	}

	if value.numeric {
		id, err := strconv.Atoi(value.raw)
		if err != nil {
			return None
		}
		if role, ok := legacyRoles[id]; ok {
			return role
		}
		return Role(value.raw)
	}

	if id, err := strconv.Atoi(value.raw); err == nil {
		if role, ok := legacyRoles[id]; ok {
			return role
		}
	}

	return Role(value.raw)
}
