// AngelaMos | 2026
// engine.go

package entitlement

import (
	"context"
	"errors"
	"fmt"
)

var ErrQuotaExceeded = errors.New("free quota exceeded")

const DefaultFreeUses = 5

type PaidChecker interface {
	IsPaid(ctx context.Context, accountID string) (bool, error)
}

type UsageCounter interface {
	CountFor(ctx context.Context, accountID string) (int, error)
}

type Decision struct {
	Allowed   bool
	Paid      bool
	Used      int
	Quota     int
	Remaining int
}

type Summary struct {
	Count int  `json:"count"`
	Quota int  `json:"quota"`
	Paid  bool `json:"paid"`
}

// Engine decides whether an account may use the metered feature. Nothing
// is cached; both inputs are read on every call.
type Engine struct {
	accounts PaidChecker
	usage    UsageCounter
	quota    int
}

func NewEngine(accounts PaidChecker, usage UsageCounter, freeUses int) *Engine {
	if freeUses < 0 {
		freeUses = 0
	}
	return &Engine{accounts: accounts, usage: usage, quota: freeUses}
}

func (e *Engine) MayUse(ctx context.Context, accountID string) (Decision, error) {
	paid, err := e.accounts.IsPaid(ctx, accountID)
	if err != nil {
		return Decision{}, fmt.Errorf("check paid: %w", err)
	}

	used, err := e.usage.CountFor(ctx, accountID)
	if err != nil {
		return Decision{}, fmt.Errorf("count usage: %w", err)
	}

	return e.decide(paid, used), nil
}

// Admit applies the quota rule to state the caller has already read, such
// as inside the transaction that records the use.
func (e *Engine) Admit(paid bool, used int) (Decision, error) {
	d := e.decide(paid, used)
	if !d.Allowed {
		return d, ErrQuotaExceeded
	}
	return d, nil
}

func (e *Engine) decide(paid bool, used int) Decision {
	return Decision{
		Allowed:   paid || used < e.quota,
		Paid:      paid,
		Used:      used,
		Quota:     e.quota,
		Remaining: max(e.quota-used, 0),
	}
}

// Check is MayUse returning ErrQuotaExceeded when the account is blocked.
func (e *Engine) Check(ctx context.Context, accountID string) (Decision, error) {
	d, err := e.MayUse(ctx, accountID)
	if err != nil {
		return d, err
	}
	return e.Admit(d.Paid, d.Used)
}

func (e *Engine) Summary(ctx context.Context, accountID string) (Summary, error) {
	d, err := e.MayUse(ctx, accountID)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Count: d.Used, Quota: d.Quota, Paid: d.Paid}, nil
}
