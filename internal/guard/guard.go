package guard

import (
	"context"
	"slices"

	"github.com/planchoque/portal/internal/rbac"
	"github.com/planchoque/portal/internal/security"
	"github.com/planchoque/portal/internal/session"
)

// Reporter recibe los accesos denegados por rol.
type Reporter interface {
	Report(ctx context.Context, attempt security.Attempt)
}

// Input son las dependencias observadas por el guard.
type Input struct {
	Auth      session.State
	Path      string
	Allowed   []rbac.Role
	UserAgent string
	RequestID string
}

// Guard mantiene la máquina de estados de una vista protegida.
// Se reevalúa cuando cambian usuario, carga, lista permitida o ruta.
type Guard struct {
	reporter Reporter
	observe  func(from, to State)
	state    State
	last     *Input
}

// Option configura el guard.
type Option func(*Guard)

// WithObserver recibe cada transición de estado.
func WithObserver(fn func(from, to State)) Option {
	return func(g *Guard) {
		g.observe = fn
	}
}

// New crea el guard en estado Initial.
func New(reporter Reporter, opts ...Option) *Guard {
	g := &Guard{reporter: reporter, state: Initial}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State devuelve el estado actual.
func (g *Guard) State() State {
	return g.state
}

// Sync aplica el nuevo input. Con las mismas dependencias conserva la decisión previa
// sin efectos secundarios.
func (g *Guard) Sync(ctx context.Context, in Input) State {
	if g.last != nil && sameDeps(*g.last, in) {
		return g.state
	}
	snapshot := in
	snapshot.Allowed = slices.Clone(in.Allowed)
	g.last = &snapshot

	if in.Auth.Loading {
		g.transition(AuthLoading)
		return g.state
	}

	g.transition(Checking)
	g.transition(Decide(in.Auth, in.Allowed))

	if g.state == DeniedWrongRole && g.reporter != nil {
		g.reporter.Report(ctx, security.Attempt{
			Path:          in.Path,
			Subject:       in.Auth.User.ID,
			ActualRole:    rbac.ResolveRole(in.Auth.User),
			RequiredRoles: slices.Clone(in.Allowed),
			UserAgent:     in.UserAgent,
			RequestID:     in.RequestID,
		})
	}
	return g.state
}

func (g *Guard) transition(to State) {
	from := g.state
	g.state = to
	if g.observe != nil && from != to {
		g.observe(from, to)
	}
}

func sameDeps(a, b Input) bool {
	if a.Auth.Loading != b.Auth.Loading || a.Path != b.Path {
		return false
	}
	if !sameUser(a.Auth.User, b.Auth.User) {
		return false
	}
	return slices.Equal(a.Allowed, b.Allowed)
}

func sameUser(a, b *rbac.Usuario) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
