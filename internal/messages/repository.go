package messages

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"wrapdesk/internal/phone"
)

type Repository interface {
	// Insert stores m. An inbound message whose provider id is already stored
	// is a webhook retry: the existing row comes back with created=false.
	Insert(ctx context.Context, m Message) (stored Message, created bool, err error)
	UpdateDelivery(ctx context.Context, id string, status Status, providerID, errMsg string) (Message, error)
	// Recent returns the newest limit messages, newest first.
	Recent(ctx context.Context, limit int) ([]Message, error)
	// ForKey returns the newest limit messages whose phone normalizes to key.
	ForKey(ctx context.Context, key phone.Key, limit int) ([]Message, error)
	// MarkRead and Archive are bulk updates over every message of the thread.
	MarkRead(ctx context.Context, t Thread) (int64, error)
	Archive(ctx context.Context, t Thread) (int64, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const messageColumns = `id, direction, kind, customer_phone, body, media_urls, status, provider_id, error, is_read, archived, created_at`

// Stored numbers are inconsistently formatted, so matching compares the
// digits of the raw column against both variants of the key. An expression
// index on the stripped digits backs this predicate.
const keyPredicate = `regexp_replace(customer_phone, '\D', '', 'g') IN ($1, $2)`

// Unmatchable numbers only ever match their own spelling.
const rawPredicate = `btrim(customer_phone) = $1`

func (t Thread) predicate() (string, []any) {
	if t.Key.Matchable() {
		v := t.Key.Variants()
		return keyPredicate, []any{v[0], v[1]}
	}
	return rawPredicate, []any{t.Raw}
}

func (r *PostgresRepo) Insert(ctx context.Context, m Message) (Message, bool, error) {
	media, err := json.Marshal(nonNil(m.MediaURLs))
	if err != nil {
		return Message{}, false, err
	}
	const q = `
INSERT INTO messages (` + messageColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (kind, provider_id) WHERE provider_id <> '' AND direction = 'inbound' DO NOTHING
RETURNING ` + messageColumns
	out, err := scanMessage(r.db.QueryRowContext(ctx, q,
		m.ID, string(m.Direction), string(m.Kind), m.CustomerPhone, m.Body, media,
		string(m.Status), m.ProviderID, m.Error, m.Read, m.Archived, m.CreatedAt,
	))
	if err == nil {
		return out, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Message{}, false, err
	}

	// Zero rows: the carrier retried a receive event we already stored.
	const existing = `
SELECT ` + messageColumns + ` FROM messages
WHERE kind = $1 AND provider_id = $2 AND direction = 'inbound'`
	out, err = scanMessage(r.db.QueryRowContext(ctx, existing, string(m.Kind), m.ProviderID))
	if err != nil {
		return Message{}, false, err
	}
	return out, false, nil
}

func (r *PostgresRepo) UpdateDelivery(ctx context.Context, id string, status Status, providerID, errMsg string) (Message, error) {
	const q = `
UPDATE messages SET status = $2, provider_id = $3, error = $4
WHERE id = $1
RETURNING ` + messageColumns
	m, err := scanMessage(r.db.QueryRowContext(ctx, q, id, string(status), providerID, errMsg))
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	return m, err
}

func (r *PostgresRepo) Recent(ctx context.Context, limit int) ([]Message, error) {
	return r.query(ctx, `SELECT `+messageColumns+` FROM messages ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
}

func (r *PostgresRepo) ForKey(ctx context.Context, key phone.Key, limit int) ([]Message, error) {
	if !key.Matchable() {
		return nil, nil
	}
	v := key.Variants()
	return r.query(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE `+keyPredicate+` ORDER BY created_at DESC, id DESC LIMIT $3`,
		v[0], v[1], limit,
	)
}

func (r *PostgresRepo) MarkRead(ctx context.Context, t Thread) (int64, error) {
	return r.bulk(ctx, `UPDATE messages SET is_read = TRUE WHERE NOT is_read AND direction = 'inbound' AND `, t)
}

func (r *PostgresRepo) Archive(ctx context.Context, t Thread) (int64, error) {
	return r.bulk(ctx, `UPDATE messages SET archived = TRUE WHERE NOT archived AND `, t)
}

func (r *PostgresRepo) bulk(ctx context.Context, update string, t Thread) (int64, error) {
	if !t.Key.Matchable() && t.Raw == "" {
		return 0, ErrInvalidPhone
	}
	where, args := t.predicate()
	res, err := r.db.ExecContext(ctx, update+where, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresRepo) query(ctx context.Context, q string, args ...any) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (Message, error) {
	var (
		m                       Message
		direction, kind, status string
		media                   []byte
	)
	err := s.Scan(&m.ID, &direction, &kind, &m.CustomerPhone, &m.Body, &media,
		&status, &m.ProviderID, &m.Error, &m.Read, &m.Archived, &m.CreatedAt)
	if err != nil {
		return Message{}, err
	}
	m.Direction = Direction(direction)
	m.Kind = Kind(kind)
	m.Status = Status(status)
	if len(media) > 0 {
		if err := json.Unmarshal(media, &m.MediaURLs); err != nil {
			return Message{}, err
		}
	}
	if len(m.MediaURLs) == 0 {
		m.MediaURLs = nil
	}
	return m, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// MemoryRepo keeps messages in insertion order.
type MemoryRepo struct {
	mu   sync.Mutex
	msgs []Message
}

func NewMemoryRepo(seed ...Message) *MemoryRepo {
	return &MemoryRepo{msgs: append([]Message(nil), seed...)}
}

func (r *MemoryRepo) Insert(ctx context.Context, m Message) (Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.Direction == DirectionInbound && m.ProviderID != "" {
		for _, existing := range r.msgs {
			if existing.Direction == DirectionInbound && existing.Kind == m.Kind && existing.ProviderID == m.ProviderID {
				return existing, false, nil
			}
		}
	}
	r.msgs = append(r.msgs, m)
	return m, true, nil
}

func (r *MemoryRepo) UpdateDelivery(ctx context.Context, id string, status Status, providerID, errMsg string) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.msgs {
		if r.msgs[i].ID == id {
			r.msgs[i].Status = status
			r.msgs[i].ProviderID = providerID
			r.msgs[i].Error = errMsg
			return r.msgs[i], nil
		}
	}
	return Message{}, ErrNotFound
}

func (r *MemoryRepo) Recent(ctx context.Context, limit int) ([]Message, error) {
	return r.newest(limit, func(Message) bool { return true }), nil
}

func (r *MemoryRepo) ForKey(ctx context.Context, key phone.Key, limit int) ([]Message, error) {
	if !key.Matchable() {
		return nil, nil
	}
	return r.newest(limit, func(m Message) bool { return m.Key() == key }), nil
}

func (r *MemoryRepo) MarkRead(ctx context.Context, t Thread) (int64, error) {
	return r.update(t, func(m *Message) bool {
		if m.Read || m.Direction != DirectionInbound {
			return false
		}
		m.Read = true
		return true
	})
}

func (r *MemoryRepo) Archive(ctx context.Context, t Thread) (int64, error) {
	return r.update(t, func(m *Message) bool {
		if m.Archived {
			return false
		}
		m.Archived = true
		return true
	})
}

func (r *MemoryRepo) update(t Thread, fn func(*Message) bool) (int64, error) {
	if !t.Key.Matchable() && t.Raw == "" {
		return 0, ErrInvalidPhone
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.msgs {
		if t.matches(r.msgs[i]) && fn(&r.msgs[i]) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) newest(limit int, keep func(Message) bool) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.msgs {
		if keep(m) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
