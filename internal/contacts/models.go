package contacts

import (
	"errors"
	"fmt"
	"time"

	"wrapdesk/internal/phone"
)

type Customer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Company string `json:"company,omitempty"`
	// Phone is the customer's own phone column as entered, matched by suffix
	// for customers that predate phone links.
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PhoneLink maps one canonical phone key to one customer. ContactName names
// the person behind a shared number such as a company switchboard.
type PhoneLink struct {
	ID          string    `json:"id"`
	CustomerID  string    `json:"customer_id"`
	Phone       phone.Key `json:"phone"`
	ContactName string    `json:"contact_name,omitempty"`
	IsPrimary   bool      `json:"is_primary"`
	CreatedAt   time.Time `json:"created_at"`
}

// Identity is what the inbox shows for a phone.
type Identity struct {
	CustomerID  string `json:"customer_id"`
	Name        string `json:"name"`
	ContactName string `json:"contact_name,omitempty"`
	Company     string `json:"company,omitempty"`
	Linked      bool   `json:"linked"`
}

// DisplayName prefers the per-number contact over the customer name.
func (i Identity) DisplayName() string {
	if i.ContactName != "" {
		return i.ContactName
	}
	return i.Name
}

var (
	ErrAlreadyLinked    = errors.New("contacts: phone already linked to another customer")
	ErrUnmatchablePhone = errors.New("contacts: phone number is not a 10-digit number")
	ErrCustomerNotFound = errors.New("contacts: customer not found")
	ErrNotLinked        = errors.New("contacts: phone not linked")
)

// LinkConflictError reports the customer that already owns the phone.
// errors.Is(err, ErrAlreadyLinked) holds for it.
type LinkConflictError struct {
	Phone              phone.Key
	ExistingCustomerID string
}

func (e *LinkConflictError) Error() string {
	return fmt.Sprintf("contacts: phone %s already linked to customer %s", e.Phone.Display(), e.ExistingCustomerID)
}

func (e *LinkConflictError) Is(target error) bool { return target == ErrAlreadyLinked }
