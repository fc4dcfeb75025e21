package rbac

import "strings"

// Policy asocia una ruta a los roles que pueden acceder a ella.
type Policy struct {
	Path  string
	Roles []Role
}

// Allows evalúa el rol contra la política. Sin roles, niega todo.
func (p Policy) Allows(role Role) bool {
	return Evaluate(role, p.Roles...)
}

// Policies es la tabla ordenada de rutas protegidas.
type Policies []Policy

// Match busca la política con el prefijo de ruta más largo, respetando segmentos.
func (ps Policies) Match(path string) (Policy, bool) {
	var (
		best  Policy
		found bool
	)
	for _, p := range ps {
		if !pathHasPrefix(path, p.Path) {
			continue
		}
		if !found || len(p.Path) > len(best.Path) {
			best = p
			found = true
		}
	}
	return best, found
}

func pathHasPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

// DefaultPolicies devuelve la tabla de tableros por rol.
func DefaultPolicies() Policies {
	return Policies{
		{Path: "/asesor", Roles: []Role{Asesor}},
		{Path: "/misteryshopper", Roles: []Role{MisteryShopper}},
		{Path: "/mercadeo", Roles: []Role{MercadeoAC}},
		{Path: "/director", Roles: []Role{Director}},
		{Path: "/ot", Roles: []Role{OT}},
		{Path: "/backoffice", Roles: []Role{Backoffice}},
		{Path: "/reportes", Roles: []Role{Director, MercadeoAC, Backoffice}},
	}
}

var homes = map[Role]string{
	Asesor:         "/asesor/home",
	MisteryShopper: "/misteryshopper/home",
	MercadeoAC:     "/mercadeo/home",
	Director:       "/director/home",
	OT:             "/ot/home",
	Backoffice:     "/backoffice/home",
}

// HomePath devuelve el tablero inicial del rol, o "" si no tiene.
func HomePath(role Role) string {
	return homes[role]
}
