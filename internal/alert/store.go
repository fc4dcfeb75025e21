package alert

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SeverityError marca las alertas de acceso denegado.
const SeverityError = "error"

// DefaultTTL es el tiempo que una alerta permanece visible.
const DefaultTTL = 5 * time.Second

// Alert es una notificación transitoria de seguridad.
type Alert struct {
	ID        string    `json:"id"`
	Owner     string    `json:"-"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// Store mantiene las alertas en memoria y las expira de forma independiente.
type Store struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	alerts map[string]Alert
	timers map[string]*time.Timer
	closed bool
}

// NewStore crea el almacén con la duración de visualización indicada.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl:    ttl,
		now:    time.Now,
		alerts: make(map[string]Alert),
		timers: make(map[string]*time.Timer),
	}
}

// TTL expone cuánto permanece visible cada alerta.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Add agrega una alerta y programa su retiro. Nuevas alertas no reinician timers previos.
func (s *Store) Add(owner, message, severity string) Alert {
	a := Alert{
		ID:        uuid.NewString(),
		Owner:     owner,
		Message:   message,
		Severity:  severity,
		Timestamp: s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return a
	}
	s.alerts[a.ID] = a
	id := a.ID
	s.timers[id] = time.AfterFunc(s.ttl, func() {
		s.Remove(id)
	})
	return a
}

// Remove retira la alerta. Devuelve false si ya no existía.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[id]; !ok {
		return false
	}
	delete(s.alerts, id)
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	return true
}

// Get busca una alerta activa.
func (s *Store) Get(id string) (Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	return a, ok
}

// List devuelve las alertas activas del dueño, de la más antigua a la más reciente.
// Dueño vacío lista todas.
func (s *Store) List(owner string) []Alert {
	s.mu.Lock()
	out := make([]Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if owner != "" && a.Owner != owner {
			continue
		}
		out = append(out, a)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Close detiene los timers pendientes y descarta las alertas.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.alerts = make(map[string]Alert)
	s.closed = true
}
