package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("calls: call not found")

type Repository interface {
	// Create inserts a ringing call. created is false when the SID already
	// exists (carrier retry); the stored row is untouched.
	Create(ctx context.Context, c Call) (created bool, err error)
	// Transition is a single conditional update keyed by SID.
	Transition(ctx context.Context, t Transition) (Result, error)
	Get(ctx context.Context, sid string) (Call, error)
	List(ctx context.Context, limit int) ([]Call, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]Call, error)
	// AttachTranscription sets the transcription of a voicemail call that has
	// none yet. Anything else is Skipped.
	AttachTranscription(ctx context.Context, sid, text string, at time.Time) (Result, error)
	// ExpireStale moves every call still ringing since before cutoff to missed
	// and returns the rows it changed.
	ExpireStale(ctx context.Context, cutoff, now time.Time) ([]Call, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const callColumns = `call_sid, direction, from_number, to_number, status, answered_by, duration, recording_url, voicemail_url, transcription, created_at, updated_at`

func (r *PostgresRepo) Create(ctx context.Context, c Call) (bool, error) {
	const q = `
INSERT INTO calls (call_sid, direction, from_number, to_number, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (call_sid) DO NOTHING`
	res, err := r.db.ExecContext(ctx, q, c.SID, string(c.Direction), c.From, c.To, string(StatusRinging), c.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Each target status has one statement; the WHERE clause carries the allowed
// source states so concurrent webhooks cannot lose updates or regress a row.
var transitionSQL = map[Status]string{
	StatusInProgress: `
UPDATE calls SET
  status = 'in_progress',
  answered_by = COALESCE(NULLIF(answered_by, ''), $2),
  updated_at = $3
WHERE call_sid = $1 AND status IN (` + inList(StatusInProgress) + `)
RETURNING ` + callColumns,

	StatusCompleted: `
UPDATE calls SET
  status = 'completed',
  answered_by = COALESCE(NULLIF(answered_by, ''), $2),
  duration = GREATEST(duration, $3),
  recording_url = COALESCE(NULLIF(recording_url, ''), $4),
  updated_at = $5
WHERE call_sid = $1 AND status IN (` + inList(StatusCompleted) + `)
RETURNING ` + callColumns,

	StatusMissed: `
UPDATE calls SET
  status = 'missed',
  updated_at = $2
WHERE call_sid = $1 AND status IN (` + inList(StatusMissed) + `)
RETURNING ` + callColumns,

	StatusVoicemail: `
UPDATE calls SET
  status = 'voicemail',
  duration = $2,
  voicemail_url = $3,
  transcription = $4,
  updated_at = $5
WHERE call_sid = $1 AND status IN (` + inList(StatusVoicemail) + `)
RETURNING ` + callColumns,
}

func inList(to Status) string {
	from := allowedFrom[to]
	quoted := make([]string, len(from))
	for i, s := range from {
		quoted[i] = "'" + string(s) + "'"
	}
	return strings.Join(quoted, ", ")
}

func transitionArgs(t Transition) []any {
	switch t.To {
	case StatusInProgress:
		return []any{t.SID, t.AnsweredBy, t.At}
	case StatusCompleted:
		return []any{t.SID, t.AnsweredBy, t.Duration, t.RecordingURL, t.At}
	case StatusMissed:
		return []any{t.SID, t.At}
	case StatusVoicemail:
		return []any{t.SID, t.Duration, t.VoicemailURL, t.Transcription, t.At}
	}
	return nil
}

func (r *PostgresRepo) Transition(ctx context.Context, t Transition) (Result, error) {
	q, ok := transitionSQL[t.To]
	if !ok {
		return Result{}, fmt.Errorf("calls: no transition to %q", t.To)
	}
	c, err := scanCall(r.db.QueryRowContext(ctx, q, transitionArgs(t)...))
	if err == nil {
		return Result{Outcome: Applied, Call: c}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Result{}, err
	}

	// Zero rows: either the guard rejected the current state or the row is absent.
	current, err := r.Get(ctx, t.SID)
	if errors.Is(err, ErrNotFound) {
		return Result{Outcome: NotFound}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Outcome: Skipped, Call: current}, nil
}

func (r *PostgresRepo) AttachTranscription(ctx context.Context, sid, text string, at time.Time) (Result, error) {
	const q = `
UPDATE calls SET transcription = $2, updated_at = $3
WHERE call_sid = $1 AND status = 'voicemail' AND transcription = ''
RETURNING ` + callColumns
	c, err := scanCall(r.db.QueryRowContext(ctx, q, sid, text, at))
	if err == nil {
		return Result{Outcome: Applied, Call: c}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Result{}, err
	}
	current, err := r.Get(ctx, sid)
	if errors.Is(err, ErrNotFound) {
		return Result{Outcome: NotFound}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Outcome: Skipped, Call: current}, nil
}

func (r *PostgresRepo) Get(ctx context.Context, sid string) (Call, error) {
	c, err := scanCall(r.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE call_sid = $1`, sid))
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	return c, err
}

func (r *PostgresRepo) List(ctx context.Context, limit int) ([]Call, error) {
	return r.query(ctx, `SELECT `+callColumns+` FROM calls ORDER BY created_at DESC LIMIT $1`, limit)
}

func (r *PostgresRepo) ListBetween(ctx context.Context, from, to time.Time) ([]Call, error) {
	return r.query(ctx, `SELECT `+callColumns+` FROM calls WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at`, from, to)
}

func (r *PostgresRepo) ExpireStale(ctx context.Context, cutoff, now time.Time) ([]Call, error) {
	const q = `
UPDATE calls SET status = 'missed', updated_at = $2
WHERE status = 'ringing' AND created_at < $1
RETURNING ` + callColumns
	return r.query(ctx, q, cutoff, now)
}

func (r *PostgresRepo) query(ctx context.Context, q string, args ...any) ([]Call, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCall(s scanner) (Call, error) {
	var (
		rec       Record
		direction string
		status    string
	)
	err := s.Scan(
		&rec.SID, &direction, &rec.From, &rec.To, &status,
		&rec.AnsweredBy, &rec.Duration, &rec.RecordingURL, &rec.VoicemailURL, &rec.Transcription,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return Call{}, err
	}
	rec.Direction = Direction(direction)
	rec.Status = Status(status)
	return rec.Call()
}
