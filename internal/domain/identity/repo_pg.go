package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicadental/agenda/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type userRepoPG struct{ conn queryable }

// NewUserRepoPG reads users through a *pgxpool.Pool or an open transaction.
func NewUserRepoPG(conn queryable) UserRepository { return &userRepoPG{conn: conn} }

const userCols = `id, nombre, email, rol, activo, perfil_completo, creado_en`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Nombre, &u.Email, &u.Rol, &u.Activo, &u.PerfilCompleto, &u.CreadoEn)
	return &u, err
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := scanUser(r.conn.QueryRow(ctx, `SELECT `+userCols+` FROM usuarios WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get usuario %s: %w", id, err)
	}
	return u, nil
}

func (r *userRepoPG) ListActiveByRole(ctx context.Context, rol Role) ([]*User, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT `+userCols+` FROM usuarios WHERE rol = $1 AND activo ORDER BY nombre`, rol)
	if err != nil {
		return nil, fmt.Errorf("list usuarios by rol: %w", err)
	}
	defer rows.Close()

	var items []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}
