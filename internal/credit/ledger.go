// Package credit meters provider spend. Every provider call is preceded by a
// reservation against the (provider, kind) balance; the balance is the single
// source of truth for remaining spend and never goes negative.
package credit

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Kind is a credit kind. Search credits are cheap and abundant, collect
// credits are expensive and scarce.
type Kind string

const (
	KindSearch  Kind = "search"
	KindCollect Kind = "collect"
)

// ParseKind converts user input into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindSearch:
		return KindSearch, nil
	case KindCollect:
		return KindCollect, nil
	}
	return "", eris.Errorf("credit: unknown kind %q", s)
}

// Store is the durable counter behind the ledger. Decrement must be atomic
// and conditional: it returns false, without changing the balance, when the
// balance is smaller than n.
type Store interface {
	GetBalance(ctx context.Context, provider string, kind Kind) (int, error)
	SetBalance(ctx context.Context, provider string, kind Kind, n int) error
	DecrementBalance(ctx context.Context, provider string, kind Kind, n int) (bool, error)
}

// Reservation is a short-lived hold on credits. It must be resolved with
// exactly one Commit or Release.
type Reservation struct {
	ID       string
	Provider string
	Kind     Kind
	Amount   int
}

// RefillPolicy configures how a (provider, kind) balance replenishes at
// billing-period boundaries. Zero amount means manual top-up only.
type RefillPolicy struct {
	Amount int `yaml:"amount" mapstructure:"amount"`
}

// stripe serializes reservation bookkeeping for one (provider, kind). Only
// the reserve/commit bookkeeping runs under the stripe lock, never the
// provider call itself.
type stripe struct {
	mu    sync.Mutex
	held  int                    // total outstanding holds
	holds map[string]Reservation // reservation ID → hold
}

// Ledger approves or rejects provider calls against per-(provider, kind)
// balances.
type Ledger struct {
	store   Store
	refills map[string]RefillPolicy // keyed "provider/kind"

	mu      sync.Mutex
	stripes map[string]*stripe
}

// NewLedger creates a ledger over the given durable counter store.
func NewLedger(store Store, refills map[string]RefillPolicy) *Ledger {
	return &Ledger{
		store:   store,
		refills: refills,
		stripes: make(map[string]*stripe),
	}
}

func (l *Ledger) stripe(provider string, kind Kind) *stripe {
	key := provider + "/" + string(kind)
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.stripes[key]
	if !ok {
		s = &stripe{holds: make(map[string]Reservation)}
		l.stripes[key] = s
	}
	return s
}

// Reserve places a hold on amount credits. ok is false when the remaining
// balance (net of outstanding holds) cannot cover the amount; that is a
// normal control-flow branch, not an error. The only I/O is one balance read.
func (l *Ledger) Reserve(ctx context.Context, provider string, kind Kind, amount int) (Reservation, bool, error) {
	if amount <= 0 {
		return Reservation{}, false, eris.Errorf("credit: invalid reserve amount %d", amount)
	}

	s := l.stripe(provider, kind)
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, err := l.store.GetBalance(ctx, provider, kind)
	if err != nil {
		return Reservation{}, false, eris.Wrapf(err, "credit: read balance %s/%s", provider, kind)
	}

	if balance-s.held < amount {
		return Reservation{}, false, nil
	}

	res := Reservation{
		ID:       uuid.New().String(),
		Provider: provider,
		Kind:     kind,
		Amount:   amount,
	}
	s.holds[res.ID] = res
	s.held += amount
	return res, true, nil
}

// Commit durably decrements the balance for a held reservation and drops the
// hold. The store rejects conditional decrements below zero, so a racing
// external writer surfaces as an error rather than a negative balance.
func (l *Ledger) Commit(ctx context.Context, res Reservation) error {
	s := l.stripe(res.Provider, res.Kind)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.holds[res.ID]; !ok {
		return eris.Errorf("credit: unknown reservation %s", res.ID)
	}

	// A reservation is terminal after one Commit or Release: the hold is
	// dropped even when the decrement fails, so availability tracks the
	// durable balance again.
	delete(s.holds, res.ID)
	s.held -= res.Amount

	ok, err := l.store.DecrementBalance(ctx, res.Provider, res.Kind, res.Amount)
	if err != nil {
		return eris.Wrapf(err, "credit: decrement %s/%s", res.Provider, res.Kind)
	}
	if !ok {
		return eris.Errorf("credit: commit would overdraw %s/%s", res.Provider, res.Kind)
	}
	return nil
}

// Release drops a hold without spending, restoring availability to exactly
// its pre-reservation value. Releasing an unknown reservation is logged and
// otherwise ignored so cancellation paths can call it unconditionally.
func (l *Ledger) Release(res Reservation) {
	s := l.stripe(res.Provider, res.Kind)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.holds[res.ID]; !ok {
		zap.L().Warn("credit: release of unknown reservation",
			zap.String("provider", res.Provider),
			zap.String("kind", string(res.Kind)),
		)
		return
	}
	delete(s.holds, res.ID)
	s.held -= res.Amount
}

// Balance returns the remaining balance net of outstanding holds.
func (l *Ledger) Balance(ctx context.Context, provider string, kind Kind) (int, error) {
	s := l.stripe(provider, kind)
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, err := l.store.GetBalance(ctx, provider, kind)
	if err != nil {
		return 0, eris.Wrapf(err, "credit: read balance %s/%s", provider, kind)
	}
	return balance - s.held, nil
}

// TopUp sets a balance manually.
func (l *Ledger) TopUp(ctx context.Context, provider string, kind Kind, amount int) error {
	if amount < 0 {
		return eris.Errorf("credit: invalid top-up amount %d", amount)
	}
	return eris.Wrapf(l.store.SetBalance(ctx, provider, kind, amount),
		"credit: top up %s/%s", provider, kind)
}

// Refill restores every configured (provider, kind) balance to its refill
// amount. Intended to run at billing-period boundaries.
func (l *Ledger) Refill(ctx context.Context) error {
	for key, policy := range l.refills {
		if policy.Amount <= 0 {
			continue
		}
		provider, kindStr, ok := strings.Cut(key, "/")
		if !ok {
			return eris.Errorf("credit: malformed refill key %q", key)
		}
		if err := l.store.SetBalance(ctx, provider, Kind(kindStr), policy.Amount); err != nil {
			return eris.Wrapf(err, "credit: refill %s", key)
		}
		zap.L().Info("credit balance refilled",
			zap.String("provider", provider),
			zap.String("kind", kindStr),
			zap.Int("amount", policy.Amount),
		)
	}
	return nil
}
