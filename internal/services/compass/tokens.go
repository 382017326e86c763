package compass

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/compass/internal/store"
)

// SpendOutcome tags the result of a spend attempt.
type SpendOutcome int

const (
	SpendOK SpendOutcome = iota
	SpendInsufficientTokens
)

func (o SpendOutcome) String() string {
	switch o {
	case SpendOK:
		return "ok"
	case SpendInsufficientTokens:
		return "insufficient_tokens"
	default:
		return fmt.Sprintf("SpendOutcome(%d)", int(o))
	}
}

// SpendResult is returned by every spend. Remaining is the balance after
// the call.
type SpendResult struct {
	Outcome   SpendOutcome
	Remaining int
}

// CreditResult is returned by Credit. Skipped is set when the balance was
// already at or above the cap.
type CreditResult struct {
	Before  int
	After   int
	Skipped bool
}

// TokenLedger owns every read-modify-write of a profile's token balance.
type TokenLedger struct {
	store store.Store
	now   func() time.Time
}

// NewTokenLedger creates a ledger over s.
func NewTokenLedger(s store.Store) *TokenLedger {
	return &TokenLedger{store: s, now: time.Now}
}

// Spend takes one token from userID in its own transaction.
func (l *TokenLedger) Spend(ctx context.Context, userID uuid.UUID) (SpendResult, error) {
	var result SpendResult
	err := l.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		result, err = l.SpendInTx(ctx, tx, userID)
		return err
	})
	if err != nil {
		return SpendResult{}, err
	}
	return result, nil
}

// SpendInTx takes one token inside a caller-owned transaction. The balance
// check and the decrement happen on the same locked row. On
// SpendInsufficientTokens nothing is written.
func (l *TokenLedger) SpendInTx(ctx context.Context, tx store.Tx, userID uuid.UUID) (SpendResult, error) {
	profile, err := tx.LockProfile(ctx, userID)
	if err != nil {
		return SpendResult{}, err
	}
	return l.spendLocked(ctx, tx, userID, profile.TokenBalance)
}

func (l *TokenLedger) spendLocked(ctx context.Context, tx store.Tx, userID uuid.UUID, balance int) (SpendResult, error) {
	if balance <= 0 {
		return SpendResult{Outcome: SpendInsufficientTokens, Remaining: 0}, nil
	}
	remaining := balance - 1
	if err := tx.SetTokenBalance(ctx, userID, remaining, nil); err != nil {
		return SpendResult{}, fmt.Errorf("failed to spend token: %w", err)
	}
	return SpendResult{Outcome: SpendOK, Remaining: remaining}, nil
}

// Credit sets the balance to min(balance+amount, limit) and stamps
// tokenRefreshedAt. A balance is never lowered, even one above limit.
func (l *TokenLedger) Credit(ctx context.Context, userID uuid.UUID, amount, limit int) (CreditResult, error) {
	if amount < 0 {
		return CreditResult{}, fmt.Errorf("credit amount must not be negative, got %d", amount)
	}

	var result CreditResult
	err := l.store.WithTx(ctx, func(tx store.Tx) error {
		profile, err := tx.LockProfile(ctx, userID)
		if err != nil {
			return err
		}

		result.Before = profile.TokenBalance
		result.After = min(profile.TokenBalance+amount, limit)
		if result.After <= result.Before {
			result.After = result.Before
			result.Skipped = true
		}

		now := l.now().UTC()
		if err := tx.SetTokenBalance(ctx, userID, result.After, &now); err != nil {
			return fmt.Errorf("failed to credit tokens: %w", err)
		}
		return nil
	})
	if err != nil {
		return CreditResult{}, err
	}
	return result, nil
}
