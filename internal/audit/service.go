package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"wrapdesk/internal/auth"
	"wrapdesk/pkg/logger"
)

// Repository is the persistence contract for audit events. It is
// append-only; there are no Update or Delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
	Recent(ctx context.Context, limit int) ([]Event, error)
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	if e.Metadata == "" {
		e.Metadata = "{}"
	}
	return s.repo.Append(ctx, e)
}

// Record appends an event for the session in ctx. Failures are logged and
// swallowed; the change being audited has already happened.
func (s *Service) Record(ctx context.Context, typ EventType, phone, customerID, message string, meta map[string]any) {
	if s == nil {
		return
	}
	e := Event{
		Type:       typ,
		IPAddress:  ClientIP(ctx),
		Phone:      phone,
		CustomerID: customerID,
		Message:    message,
	}
	e.ActorUserID, _ = auth.UserID(ctx)
	e.ActorRole, _ = auth.Role(ctx)
	if len(meta) > 0 {
		if raw, err := json.Marshal(meta); err == nil {
			e.Metadata = string(raw)
		}
	}
	if err := s.Append(ctx, e); err != nil {
		logger.From(ctx).Error("audit append failed", "type", typ, "err", err)
	}
}

func (s *Service) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.Recent(ctx, limit)
}
