package team

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"

	"wrapdesk/internal/phone"
	"wrapdesk/pkg/utils"
)

type Repository interface {
	List(ctx context.Context) ([]Phone, error)
	ListEnabled(ctx context.Context) ([]Phone, error)
	FindByNumber(ctx context.Context, key phone.Key) (Phone, error)
	Save(ctx context.Context, p Phone) (Phone, error)
}

// PostgresRepo stores team phones with their canonical key alongside the
// number as entered, so lookups by key hit an index.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const teamColumns = `id, name, number, enabled, ring_order, created_at, updated_at`

func (r *PostgresRepo) List(ctx context.Context) ([]Phone, error) {
	return r.query(ctx, `SELECT `+teamColumns+` FROM team_phones ORDER BY ring_order, name`)
}

func (r *PostgresRepo) ListEnabled(ctx context.Context) ([]Phone, error) {
	return r.query(ctx, `SELECT `+teamColumns+` FROM team_phones WHERE enabled ORDER BY ring_order, name`)
}

func (r *PostgresRepo) FindByNumber(ctx context.Context, key phone.Key) (Phone, error) {
	const q = `SELECT ` + teamColumns + ` FROM team_phones WHERE number_key = $1`
	p, err := scanPhone(r.db.QueryRowContext(ctx, q, key.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return Phone{}, ErrNotFound
	}
	return p, err
}

// Save inserts or updates by id.
func (r *PostgresRepo) Save(ctx context.Context, p Phone) (Phone, error) {
	const q = `
INSERT INTO team_phones (id, name, number, number_key, enabled, ring_order, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  number = EXCLUDED.number,
  number_key = EXCLUDED.number_key,
  enabled = EXCLUDED.enabled,
  ring_order = EXCLUDED.ring_order,
  updated_at = EXCLUDED.updated_at
RETURNING ` + teamColumns
	out, err := scanPhone(r.db.QueryRowContext(ctx, q,
		p.ID, p.Name, p.Number, phone.Normalize(p.Number).String(), p.Enabled, p.RingOrder, p.UpdatedAt,
	))
	if utils.IsUniqueViolation(err, "team_phones_number_key_key") {
		return Phone{}, ErrDuplicatePhone
	}
	return out, err
}

func (r *PostgresRepo) query(ctx context.Context, q string, args ...any) ([]Phone, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Phone
	for rows.Next() {
		p, err := scanPhone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPhone(s scanner) (Phone, error) {
	var p Phone
	err := s.Scan(&p.ID, &p.Name, &p.Number, &p.Enabled, &p.RingOrder, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// MemoryRepo is an in-memory Repository for tests and local runs.
type MemoryRepo struct {
	mu     sync.Mutex
	phones map[string]Phone
}

func NewMemoryRepo(seed ...Phone) *MemoryRepo {
	r := &MemoryRepo{phones: map[string]Phone{}}
	for _, p := range seed {
		r.phones[p.ID] = p
	}
	return r
}

func (r *MemoryRepo) List(ctx context.Context) ([]Phone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Phone, 0, len(r.phones))
	for _, p := range r.phones {
		out = append(out, p)
	}
	sortPhones(out)
	return out, nil
}

func (r *MemoryRepo) ListEnabled(ctx context.Context) ([]Phone, error) {
	all, _ := r.List(ctx)
	out := all[:0]
	for _, p := range all {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *MemoryRepo) FindByNumber(ctx context.Context, key phone.Key) (Phone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.phones {
		if key.Matchable() && phone.Normalize(p.Number) == key {
			return p, nil
		}
	}
	return Phone{}, ErrNotFound
}

func (r *MemoryRepo) Save(ctx context.Context, p Phone) (Phone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := phone.Normalize(p.Number)
	for id, existing := range r.phones {
		if id != p.ID && phone.Normalize(existing.Number) == key {
			return Phone{}, ErrDuplicatePhone
		}
	}
	if prev, ok := r.phones[p.ID]; ok {
		p.CreatedAt = prev.CreatedAt
	} else {
		p.CreatedAt = p.UpdatedAt
	}
	r.phones[p.ID] = p
	return p, nil
}

func sortPhones(ps []Phone) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].RingOrder != ps[j].RingOrder {
			return ps[i].RingOrder < ps[j].RingOrder
		}
		return ps[i].Name < ps[j].Name
	})
}
