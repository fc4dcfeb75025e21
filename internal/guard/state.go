package guard

import (
	"github.com/planchoque/portal/internal/rbac"
	"github.com/planchoque/portal/internal/session"
)

// State es la etapa del guard para una vista protegida.
type State int

const (
	Initial State = iota
	AuthLoading
	Checking
	Granted
	DeniedUnauthenticated
	DeniedWrongRole
)

func (s State) String() string {
	switch s {
	case Initial:
		return "initial"
	case AuthLoading:
		return "auth_loading"
	case Checking:
		return "checking"
	case Granted:
		return "granted"
	case DeniedUnauthenticated:
		return "denied_unauthenticated"
	case DeniedWrongRole:
		return "denied_wrong_role"
	default:
		return "unknown"
	}
}

// Decide es la decisión pura: mismo estado de sesión y lista, mismo resultado.
func Decide(auth session.State, allowed []rbac.Role) State {
	if auth.Loading {
		return AuthLoading
	}
	if auth.User == nil {
		return DeniedUnauthenticated
	}
	if rbac.Evaluate(rbac.ResolveRole(auth.User), allowed...) {
		return Granted
	}
	return DeniedWrongRole
}
