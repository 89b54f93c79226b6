package audit

import "time"

// Event is an immutable, append-only record of a manual change made from
// the dashboard.
//
// Invariants:
// - Events are never updated or deleted.
// - actor and ip capture are best-effort; do not block the change on audit failures.
type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`

	// ActorUserID is the dashboard session that made the change.
	ActorUserID string `json:"actor_user_id,omitempty"`
	ActorRole   string `json:"actor_role,omitempty"`
	IPAddress   string `json:"ip_address,omitempty"`

	// Targets, depending on the event type.
	Phone      string `json:"phone,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`

	// Message is a short human-readable description.
	Message string `json:"message,omitempty"`
	// Metadata is a JSON object with the details of the change.
	Metadata string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type EventType string

const (
	EventConversationArchived EventType = "conversation_archived"
	EventPhoneLinked          EventType = "phone_linked"
	EventCustomerCreated      EventType = "customer_created"
	EventTeamPhoneSaved       EventType = "team_phone_saved"
)
