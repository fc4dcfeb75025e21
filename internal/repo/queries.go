package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX es el subconjunto de pgxpool.Pool / pgx.Tx que usan las consultas.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries agrupa las consultas de usuarios.
type Queries struct {
	db DBTX
}

// New crea las consultas sobre el pool o la transacción.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

const usuarioColumns = `id, nombre, email, clave_hash, tipo, rol, activo, creado_en`

func scanUsuario(row pgx.Row) (Usuario, error) {
	var u Usuario
	err := row.Scan(&u.ID, &u.Nombre, &u.Email, &u.ClaveHash, &u.Tipo, &u.Rol, &u.Activo, &u.CreadoEn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Usuario{}, ErrNotFound
		}
		return Usuario{}, err
	}
	return u, nil
}

// GetUsuarioByEmail busca por email (minúsculas).
func (q *Queries) GetUsuarioByEmail(ctx context.Context, email string) (Usuario, error) {
	row := q.db.QueryRow(ctx, `SELECT `+usuarioColumns+` FROM usuarios WHERE lower(email) = $1`, strings.ToLower(strings.TrimSpace(email)))
	return scanUsuario(row)
}

// GetUsuarioByID busca por identificador.
func (q *Queries) GetUsuarioByID(ctx context.Context, id uuid.UUID) (Usuario, error) {
	row := q.db.QueryRow(ctx, `SELECT `+usuarioColumns+` FROM usuarios WHERE id = $1`, id)
	return scanUsuario(row)
}

// TouchUltimoAcceso registra el último login exitoso.
func (q *Queries) TouchUltimoAcceso(ctx context.Context, id uuid.UUID) error {
	cmd, err := q.db.Exec(ctx, `UPDATE usuarios SET ultimo_acceso = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CrearUsuarioParams son los datos de alta de un usuario.
type CrearUsuarioParams struct {
	Nombre    string
	Email     string
	ClaveHash string
	Tipo      *int
	Rol       *string
}

// CreateUsuario inserta un usuario activo.
func (q *Queries) CreateUsuario(ctx context.Context, p CrearUsuarioParams) (Usuario, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO usuarios (id, nombre, email, clave_hash, tipo, rol, activo)
		VALUES ($1, $2, $3, $4, $5, $6, true)
		RETURNING `+usuarioColumns,
		uuid.New(), strings.TrimSpace(p.Nombre), strings.ToLower(strings.TrimSpace(p.Email)), p.ClaveHash, p.Tipo, p.Rol,
	)
	return scanUsuario(row)
}

// ListUsuarios devuelve todos los usuarios ordenados por nombre.
func (q *Queries) ListUsuarios(ctx context.Context) ([]Usuario, error) {
	rows, err := q.db.Query(ctx, `SELECT `+usuarioColumns+` FROM usuarios ORDER BY nombre`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Usuario
	for rows.Next() {
		u, err := scanUsuario(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// LockUsuarioByEmail bloquea la fila dentro de una transacción.
func (q *Queries) LockUsuarioByEmail(ctx context.Context, email string) (Usuario, error) {
	row := q.db.QueryRow(ctx, `SELECT `+usuarioColumns+` FROM usuarios WHERE lower(email) = $1 FOR UPDATE`, strings.ToLower(strings.TrimSpace(email)))
	return scanUsuario(row)
}

// SetRol reemplaza el rol. El ID heredado se limpia para que el token textual mande.
func (q *Queries) SetRol(ctx context.Context, id uuid.UUID, rol string) error {
	cmd, err := q.db.Exec(ctx, `UPDATE usuarios SET rol = $2, tipo = NULL WHERE id = $1`, id, rol)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActivo habilita o deshabilita el acceso.
func (q *Queries) SetActivo(ctx context.Context, id uuid.UUID, activo bool) error {
	cmd, err := q.db.Exec(ctx, `UPDATE usuarios SET activo = $2 WHERE id = $1`, id, activo)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
