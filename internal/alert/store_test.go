package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AddYList(t *testing.T) {
	s := NewStore(time.Minute)
	defer s.Close()

	a := s.Add("u1", "acceso denegado", SeverityError)
	s.Add("u2", "otro usuario", SeverityError)

	got := s.List("u1")
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)
	assert.Equal(t, SeverityError, got[0].Severity)
	assert.False(t, got[0].Timestamp.IsZero())

	assert.Len(t, s.List(""), 2)
}

func TestStore_Remove(t *testing.T) {
	s := NewStore(time.Minute)
	defer s.Close()

	a := s.Add("u1", "x", SeverityError)
	assert.True(t, s.Remove(a.ID))
	assert.False(t, s.Remove(a.ID))
	assert.Empty(t, s.List("u1"))
}

func TestStore_ExpiraSinInteraccion(t *testing.T) {
	ttl := 50 * time.Millisecond
	s := NewStore(ttl)
	defer s.Close()

	a := s.Add("u1", "x", SeverityError)
	_, ok := s.Get(a.ID)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		_, ok := s.Get(a.ID)
		return !ok
	}, ttl+500*time.Millisecond, 5*time.Millisecond)
}

func TestStore_TimersIndependientes(t *testing.T) {
	ttl := 300 * time.Millisecond
	s := NewStore(ttl)
	defer s.Close()

	first := s.Add("u1", "primera", SeverityError)
	time.Sleep(150 * time.Millisecond)
	second := s.Add("u1", "segunda", SeverityError)

	// la segunda alerta no debe extender la vida de la primera
	require.Eventually(t, func() bool {
		_, ok := s.Get(first.ID)
		return !ok
	}, ttl+100*time.Millisecond, 5*time.Millisecond)

	_, ok := s.Get(second.ID)
	assert.True(t, ok, "la segunda alerta aún debe estar activa")
}

func TestStore_CloseDescartaAlertas(t *testing.T) {
	s := NewStore(time.Minute)
	s.Add("u1", "x", SeverityError)
	s.Close()
	assert.Empty(t, s.List(""))

	s.Add("u1", "después de cerrar", SeverityError)
	assert.Empty(t, s.List(""))
}
