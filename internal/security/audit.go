package security

import (
	"context"
	"errors"

	"github.com/planchoque/portal/internal/repo"
)

type auditWriter interface {
	InsertAccesoDenegado(ctx context.Context, a repo.AccesoDenegado) error
}

// AuditLogClient persiste los intentos en Postgres.
type AuditLogClient struct {
	store auditWriter
}

// NewAuditLogClient crea el cliente sobre las consultas del repositorio.
func NewAuditLogClient(store auditWriter) *AuditLogClient {
	return &AuditLogClient{store: store}
}

// Send guarda la entrada.
func (c *AuditLogClient) Send(ctx context.Context, entry LogEntry) error {
	return c.store.InsertAccesoDenegado(ctx, repo.AccesoDenegado{
		Ruta:       entry.Route,
		Rol:        entry.UserRole,
		Requeridos: entry.RequiredRole,
		UserAgent:  entry.UserAgent,
		OcurridoEn: entry.Timestamp,
	})
}

// MultiLogClient envía a todos los destinos. Un destino caído no frena a los demás.
type MultiLogClient []LogClient

// Send devuelve los errores combinados.
func (m MultiLogClient) Send(ctx context.Context, entry LogEntry) error {
	var errs []error
	for _, c := range m {
		if c == nil {
			continue
		}
		if err := c.Send(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
