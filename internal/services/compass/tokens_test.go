package compass

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/compass/internal/store"
	"github.com/benvon/compass/internal/store/storetest"
)

func TestSpend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		balance       int
		wantOutcome   SpendOutcome
		wantRemaining int
	}{
		{name: "spends one token", balance: 3, wantOutcome: SpendOK, wantRemaining: 2},
		{name: "spends last token", balance: 1, wantOutcome: SpendOK, wantRemaining: 0},
		{name: "empty balance", balance: 0, wantOutcome: SpendInsufficientTokens, wantRemaining: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := storetest.New(t)
			user := storetest.SeedProfile(t, s, storetest.WithTokens(tt.balance))
			ledger := NewTokenLedger(s)

			got, err := ledger.Spend(context.Background(), user)
			if err != nil {
				t.Fatalf("Spend() error = %v", err)
			}
			if got.Outcome != tt.wantOutcome || got.Remaining != tt.wantRemaining {
				t.Errorf("Spend() = %+v, want {%v %d}", got, tt.wantOutcome, tt.wantRemaining)
			}
			if balance := storetest.Profile(t, s, user).TokenBalance; balance != tt.wantRemaining {
				t.Errorf("stored balance = %d, want %d", balance, tt.wantRemaining)
			}
		})
	}
}

func TestSpendUnknownUser(t *testing.T) {
	t.Parallel()
	s := storetest.New(t)

	_, err := NewTokenLedger(s).Spend(context.Background(), uuid.New())
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Spend() error = %v, want ErrNotFound", err)
	}
}

func TestSpendConcurrentLastToken(t *testing.T) {
	t.Parallel()
	s := storetest.New(t)
	user := storetest.SeedProfile(t, s, storetest.WithTokens(1))
	ledger := NewTokenLedger(s)

	results := make([]SpendResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = ledger.Spend(context.Background(), user)
		}(i)
	}
	close(start)
	wg.Wait()

	ok, insufficient := 0, 0
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("Spend() error = %v", errs[i])
		}
		switch results[i].Outcome {
		case SpendOK:
			ok++
		case SpendInsufficientTokens:
			insufficient++
		}
	}
	if ok != 1 || insufficient != 1 {
		t.Errorf("got %d ok and %d insufficient, want 1 and 1", ok, insufficient)
	}
	if balance := storetest.Profile(t, s, user).TokenBalance; balance != 0 {
		t.Errorf("final balance = %d, want 0", balance)
	}
}

func TestSpendConcurrentMany(t *testing.T) {
	t.Parallel()
	s := storetest.New(t)
	user := storetest.SeedProfile(t, s, storetest.WithTokens(5))
	ledger := NewTokenLedger(s)

	const callers = 20
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ledger.Spend(context.Background(), user)
			if err != nil {
				t.Errorf("Spend() error = %v", err)
				return
			}
			if res.Outcome == SpendOK {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if ok != 5 {
		t.Errorf("successful spends = %d, want 5", ok)
	}
	if balance := storetest.Profile(t, s, user).TokenBalance; balance != 0 {
		t.Errorf("final balance = %d, want 0", balance)
	}
}

func TestCredit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		balance     int
		amount      int
		limit       int
		wantBalance int
		wantSkipped bool
	}{
		{name: "caps at limit", balance: 8, amount: 3, limit: 10, wantBalance: 10},
		{name: "at cap is a no-op", balance: 10, amount: 3, limit: 10, wantBalance: 10, wantSkipped: true},
		{name: "below cap", balance: 2, amount: 3, limit: 10, wantBalance: 5},
		{name: "from empty", balance: 0, amount: 3, limit: 10, wantBalance: 3},
		{name: "never lowers a balance above limit", balance: 7, amount: 3, limit: 5, wantBalance: 7, wantSkipped: true},
		{name: "large amount", balance: 1, amount: 100, limit: 10, wantBalance: 10},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := storetest.New(t)
			user := storetest.SeedProfile(t, s, storetest.WithTokens(tt.balance))
			ledger := NewTokenLedger(s)
			stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			ledger.now = func() time.Time { return stamp }

			got, err := ledger.Credit(context.Background(), user, tt.amount, tt.limit)
			if err != nil {
				t.Fatalf("Credit() error = %v", err)
			}
			if got.After != tt.wantBalance || got.Skipped != tt.wantSkipped || got.Before != tt.balance {
				t.Errorf("Credit() = %+v, want before %d after %d skipped %v", got, tt.balance, tt.wantBalance, tt.wantSkipped)
			}

			p := storetest.Profile(t, s, user)
			if p.TokenBalance != tt.wantBalance {
				t.Errorf("stored balance = %d, want %d", p.TokenBalance, tt.wantBalance)
			}
			if p.TokenRefreshedAt == nil || !p.TokenRefreshedAt.Equal(stamp) {
				t.Errorf("TokenRefreshedAt = %v, want %v", p.TokenRefreshedAt, stamp)
			}
		})
	}
}

func TestCreditRejectsNegativeAmount(t *testing.T) {
	t.Parallel()
	s := storetest.New(t)
	user := storetest.SeedProfile(t, s, storetest.WithTokens(4))

	if _, err := NewTokenLedger(s).Credit(context.Background(), user, -1, 10); err == nil {
		t.Error("Credit() with negative amount succeeded, want error")
	}
	if balance := storetest.Profile(t, s, user).TokenBalance; balance != 4 {
		t.Errorf("balance = %d, want 4", balance)
	}
}
