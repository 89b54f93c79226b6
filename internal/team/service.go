package team

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"wrapdesk/internal/phone"
)

// Service validates configuration changes and serves the call flow's reads.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

type SaveRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Number    string `json:"number"`
	Enabled   bool   `json:"enabled"`
	RingOrder int    `json:"ring_order"`
}

func (s *Service) Save(ctx context.Context, req SaveRequest) (Phone, error) {
	if s.repo == nil {
		return Phone{}, errors.New("team: repository not configured")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Phone{}, ErrNameRequired
	}
	key := phone.Normalize(req.Number)
	if !key.Matchable() {
		return Phone{}, ErrInvalidPhone
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	return s.repo.Save(ctx, Phone{
		ID:        id,
		Name:      name,
		Number:    key.E164(),
		Enabled:   req.Enabled,
		RingOrder: req.RingOrder,
		UpdatedAt: s.clock().UTC(),
	})
}

func (s *Service) List(ctx context.Context) ([]Phone, error) {
	return s.repo.List(ctx)
}

func (s *Service) ListEnabled(ctx context.Context) ([]Phone, error) {
	return s.repo.ListEnabled(ctx)
}

// FindByNumber resolves the team member behind a dialed leg.
func (s *Service) FindByNumber(ctx context.Context, raw string) (Phone, error) {
	key := phone.Normalize(raw)
	if !key.Matchable() {
		return Phone{}, ErrNotFound
	}
	return s.repo.FindByNumber(ctx, key)
}
