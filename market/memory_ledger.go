package market

import (
	"context"
	"math/big"
	"sync"
)

// MemoryLedger ist ein Settler ohne Persistenz: Journal und Kontostände liegen im Speicher.
type MemoryLedger struct {
	mu       sync.Mutex
	events   []Event
	balances map[Address]*big.Int
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[Address]*big.Int)}
}

func (l *MemoryLedger) Settle(ctx context.Context, ev *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if ev.Kind == EventTokensPurchased && ev.Value != nil && ev.Value.Sign() > 0 {
		from := l.balance(ev.Caller)
		if from.Cmp(ev.Value) < 0 {
			return ErrBalanceTooLow
		}
		from.Sub(from, ev.Value)
		to := l.balance(ev.Counterparty)
		to.Add(to, ev.Value)
	}
	ev.Seq = uint64(len(l.events)) + 1
	l.events = append(l.events, *ev)
	return nil
}

// Deposit schreibt value dem Konto gut.
func (l *MemoryLedger) Deposit(ctx context.Context, account Address, value *big.Int) error {
	if value == nil || value.Sign() < 0 {
		return ErrInvalidValue
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.balance(account)
	b.Add(b, value)
	return nil
}

func (l *MemoryLedger) Balance(ctx context.Context, account Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

// Events liefert eine Kopie des Journals in Settle-Reihenfolge.
func (l *MemoryLedger) Events(ctx context.Context) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out, nil
}

func (l *MemoryLedger) balance(a Address) *big.Int {
	b, ok := l.balances[a]
	if !ok {
		b = new(big.Int)
		l.balances[a] = b
	}
	return b
}
