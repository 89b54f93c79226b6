package contacts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"wrapdesk/internal/phone"
	"wrapdesk/internal/realtime"
	"wrapdesk/pkg/logger"
	"wrapdesk/pkg/validate"
)

// Service resolves phones to customers and owns the two write paths that
// create links. Nothing here overwrites an existing link.
type Service struct {
	repo  Repository
	pub   realtime.Publisher
	clock func() time.Time
}

func NewService(repo Repository, pub realtime.Publisher) *Service {
	if pub == nil {
		pub = realtime.Nop{}
	}
	return &Service{repo: repo, pub: pub, clock: time.Now}
}

// Lookup returns the identity for raw, or ok=false for an unknown number.
// Dirty numbers are simply unknown.
func (s *Service) Lookup(ctx context.Context, raw string) (Identity, bool, error) {
	key := phone.Normalize(raw)
	if !key.Matchable() {
		return Identity{}, false, nil
	}

	l, err := s.repo.FindLink(ctx, key)
	switch {
	case err == nil:
		c, err := s.repo.GetCustomer(ctx, l.CustomerID)
		if err != nil {
			return Identity{}, false, err
		}
		return Identity{CustomerID: c.ID, Name: c.Name, ContactName: l.ContactName, Company: c.Company, Linked: true}, true, nil
	case !errors.Is(err, ErrNotLinked):
		return Identity{}, false, err
	}

	c, err := s.repo.FindLegacy(ctx, key)
	if errors.Is(err, ErrCustomerNotFound) {
		return Identity{}, false, nil
	}
	if err != nil {
		return Identity{}, false, err
	}
	return Identity{CustomerID: c.ID, Name: c.Name, Company: c.Company}, true, nil
}

// Names batches display names for the inbox.
func (s *Service) Names(ctx context.Context, keys []phone.Key) (map[phone.Key]string, error) {
	return s.repo.Names(ctx, keys)
}

// Link attaches an existing customer to the phone. Linking the same customer
// again returns the existing link; a different customer gets a
// *LinkConflictError and the original link stays.
func (s *Service) Link(ctx context.Context, raw, customerID, contactName string) (PhoneLink, error) {
	key := phone.Normalize(raw)
	if !key.Matchable() {
		return PhoneLink{}, ErrUnmatchablePhone
	}
	c, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return PhoneLink{}, err
	}

	l, err := s.repo.InsertLink(ctx, PhoneLink{
		ID:          uuid.NewString(),
		CustomerID:  c.ID,
		Phone:       key,
		ContactName: strings.TrimSpace(contactName),
		CreatedAt:   s.clock().UTC(),
	})
	if errors.Is(err, ErrAlreadyLinked) {
		existing, ferr := s.repo.FindLink(ctx, key)
		if ferr != nil {
			return PhoneLink{}, err
		}
		if existing.CustomerID == c.ID {
			return existing, nil
		}
		return PhoneLink{}, &LinkConflictError{Phone: key, ExistingCustomerID: existing.CustomerID}
	}
	if err != nil {
		return PhoneLink{}, err
	}
	s.published(ctx, key, c, l)
	return l, nil
}

type NewCustomer struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"omitempty,email,max=254"`
	Company string `json:"company" validate:"max=200"`
}

// CreateAndLink promotes an unknown number to a new customer. The customer
// and the link commit together, so a conflict creates nothing.
func (s *Service) CreateAndLink(ctx context.Context, raw string, nc NewCustomer, contactName string) (Customer, PhoneLink, error) {
	nc.Name = strings.TrimSpace(nc.Name)
	nc.Email = strings.TrimSpace(nc.Email)
	nc.Company = strings.TrimSpace(nc.Company)
	if err := validate.Struct(nc); err != nil {
		return Customer{}, PhoneLink{}, err
	}
	key := phone.Normalize(raw)
	if !key.Matchable() {
		return Customer{}, PhoneLink{}, ErrUnmatchablePhone
	}

	now := s.clock().UTC()
	customerID := uuid.NewString()
	c, l, err := s.repo.CreateCustomerWithLink(ctx,
		Customer{ID: customerID, Name: nc.Name, Email: nc.Email, Company: nc.Company, Phone: key.E164(), CreatedAt: now},
		PhoneLink{ID: uuid.NewString(), CustomerID: customerID, Phone: key, ContactName: strings.TrimSpace(contactName), CreatedAt: now},
	)
	if errors.Is(err, ErrAlreadyLinked) {
		existing, ferr := s.repo.FindLink(ctx, key)
		if ferr != nil {
			return Customer{}, PhoneLink{}, err
		}
		return Customer{}, PhoneLink{}, &LinkConflictError{Phone: key, ExistingCustomerID: existing.CustomerID}
	}
	if err != nil {
		return Customer{}, PhoneLink{}, err
	}
	s.published(ctx, key, c, l)
	return c, l, nil
}

func (s *Service) published(ctx context.Context, key phone.Key, c Customer, l PhoneLink) {
	id := Identity{CustomerID: c.ID, Name: c.Name, ContactName: l.ContactName, Company: c.Company, Linked: true}
	payload := struct {
		Phone    string   `json:"phone"`
		Action   string   `json:"action"`
		Identity Identity `json:"identity"`
		Display  string   `json:"display_name"`
	}{key.String(), "linked", id, id.DisplayName()}
	if err := s.pub.Publish(ctx, realtime.KindConversation, key.String(), key.String(), payload); err != nil {
		logger.From(ctx).Warn("realtime publish failed", "phone", key.String(), "err", err)
	}
}
