package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AccesoDenegado es un intento de acceso con rol incorrecto.
type AccesoDenegado struct {
	ID         uuid.UUID `json:"id"`
	Ruta       string    `json:"ruta"`
	Rol        string    `json:"rol"`
	Requeridos []string  `json:"requeridos"`
	UserAgent  string    `json:"user_agent"`
	OcurridoEn time.Time `json:"ocurrido_en"`
}

// InsertAccesoDenegado guarda el intento.
func (q *Queries) InsertAccesoDenegado(ctx context.Context, a AccesoDenegado) error {
	const query = `
        INSERT INTO accesos_denegados (id, ruta, rol, requeridos, user_agent, ocurrido_en)
        VALUES (COALESCE($1, gen_random_uuid()), $2, $3, $4, $5, $6)
    `
	var id *uuid.UUID
	if a.ID != uuid.Nil {
		id = &a.ID
	}
	if a.Requeridos == nil {
		a.Requeridos = []string{}
	}
	_, err := q.db.Exec(ctx, query, id, a.Ruta, a.Rol, a.Requeridos, a.UserAgent, a.OcurridoEn)
	return err
}

// RecentAccesosDenegados devuelve los últimos intentos, más recientes primero.
func (q *Queries) RecentAccesosDenegados(ctx context.Context, limit int) ([]AccesoDenegado, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := q.db.Query(ctx, `
        SELECT id, ruta, rol, requeridos, user_agent, ocurrido_en
        FROM accesos_denegados
        ORDER BY ocurrido_en DESC
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AccesoDenegado
	for rows.Next() {
		var a AccesoDenegado
		if err := rows.Scan(&a.ID, &a.Ruta, &a.Rol, &a.Requeridos, &a.UserAgent, &a.OcurridoEn); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
