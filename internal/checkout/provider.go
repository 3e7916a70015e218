// AngelaMos | 2026
// provider.go

package checkout

import (
	"context"
	"errors"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrSessionCompleted means the customer finished the processor
	// session before it could be expired.
	ErrSessionCompleted = errors.New("payment session already completed")
)

type SessionRequest struct {
	Reference   string
	AmountCents int64
	Currency    string
	ProductName string
	SuccessURL  string
	CancelURL   string
}

type ProviderSession struct {
	ID  string
	URL string
}

// Provider is the external payment processor. Expire closes a session so
// it can no longer be paid; an already expired session is not an error.
type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (*ProviderSession, error)
	IsPaid(ctx context.Context, sessionID string) (bool, error)
	Expire(ctx context.Context, sessionID string) error
}

type EventKind int

const (
	EventIgnored EventKind = iota
	EventPaid
	EventCanceled
)

// Event is a verified processor callback reduced to what the state
// machine acts on.
type Event struct {
	ID        string
	Type      string
	Kind      EventKind
	Reference string
	SessionID string
}

type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*Event, error)
}
