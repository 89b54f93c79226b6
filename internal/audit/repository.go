package audit

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const eventColumns = `id, type, actor_user_id, actor_role, ip_address, phone, customer_id, message, metadata, created_at`

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `INSERT INTO audit_events (` + eventColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10)`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, string(e.Type), e.ActorUserID, e.ActorRole, e.IPAddress,
		e.Phone, e.CustomerID, e.Message, e.Metadata, e.CreatedAt)
	return err
}

func (r *PostgresRepo) Recent(ctx context.Context, limit int) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM audit_events ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e   Event
			typ string
		)
		if err := rows.Scan(&e.ID, &typ, &e.ActorUserID, &e.ActorRole, &e.IPAddress,
			&e.Phone, &e.CustomerID, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
