package rbac

import "strings"

// Evaluate decide si el rol pertenece a la lista permitida.
// Acepta un único token o varios; rol None o lista vacía siempre niegan.
func Evaluate(role Role, allowed ...Role) bool {
	if role == None {
		return false
	}
	for _, candidate := range allowed {
		if candidate != None && candidate == role {
			return true
		}
	}
	return false
}

// ParseAllowList normaliza "asesor" o "asesor, backoffice" en una lista sin duplicados.
func ParseAllowList(value string) []Role {
	parts := strings.Split(value, ",")
	roles := make([]Role, 0, len(parts))
	seen := make(map[Role]struct{}, len(parts))
	for _, part := range parts {
		role := Role(strings.ToLower(strings.TrimSpace(part)))
		if role == None {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}
	return roles
}

// Strings convierte la lista en []string para logs y payloads.
func Strings(roles []Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}
