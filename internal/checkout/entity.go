// AngelaMos | 2026
// entity.go

package checkout

import (
	"errors"
	"time"
)

var (
	ErrUnknownReference      = errors.New("unknown checkout reference")
	ErrAlreadyTerminal       = errors.New("checkout attempt already completed")
	ErrAttemptAlreadyPending = errors.New("checkout attempt already pending")
	ErrAlreadyPaid           = errors.New("account already paid")
	ErrPaymentProcessing     = errors.New("checkout payment still processing")
)

const (
	StatusCreated   = "created"
	StatusConfirmed = "confirmed"
	StatusCanceled  = "canceled"
)

const referencePrefix = "chk_"

type Attempt struct {
	ID                string     `db:"id"`
	AccountID         string     `db:"account_id"`
	ReferenceHash     string     `db:"reference_hash"`
	ProviderSessionID string     `db:"provider_session_id"`
	Status            string     `db:"status"`
	RedirectURL       string     `db:"redirect_url"`
	AmountCents       int64      `db:"amount_cents"`
	Currency          string     `db:"currency"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
	CompletedAt       *time.Time `db:"completed_at"`
}

func (a *Attempt) IsTerminal() bool {
	return a.Status == StatusConfirmed || a.Status == StatusCanceled
}

// Started is what the caller needs to send the user to the processor. The
// raw reference exists only here; storage keeps its hash.
type Started struct {
	AttemptID   string
	Reference   string
	RedirectURL string
}

type StatusCount struct {
	Status string `db:"status" json:"status"`
	Count  int    `db:"count"  json:"count"`
}
