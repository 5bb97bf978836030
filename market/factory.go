package market

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// DefaultDecimals ist die Genauigkeit neuer Tokens, wenn nichts anderes konfiguriert ist.
const DefaultDecimals uint8 = 18

// ResearchRecord ist der Registry-Eintrag zu einem Token.
type ResearchRecord struct {
	ID           uint64  `json:"id"`
	Researcher   Address `json:"researcher"`
	TokenAddress Address `json:"token_address"`
}

// FactoryConfig konfiguriert eine Factory. Nur Owner ist Pflicht.
type FactoryConfig struct {
	Owner    Address
	Decimals uint8
	Settler  Settler
	Sink     EventSink
	Now      func() time.Time
}

// Factory ist die Registry aller Research-Tokens.
// Die Registry ist append-only: Einträge werden weder entfernt noch verändert.
type Factory struct {
	owner    Address
	address  Address
	decimals uint8
	settler  Settler
	sink     EventSink
	now      func() time.Time

	mu           sync.RWMutex
	records      []ResearchRecord
	tokens       []*ResearchToken
	byAddress    map[Address]*ResearchToken
	byResearcher map[Address][]uint64
}

// NewFactory erstellt eine leere Factory.
func NewFactory(cfg FactoryConfig) *Factory {
	f := &Factory{
		owner:        cfg.Owner,
		address:      DeriveAddress(cfg.Owner, 0),
		decimals:     cfg.Decimals,
		settler:      cfg.Settler,
		sink:         cfg.Sink,
		now:          cfg.Now,
		byAddress:    make(map[Address]*ResearchToken),
		byResearcher: make(map[Address][]uint64),
	}
	if f.decimals == 0 {
		f.decimals = DefaultDecimals
	}
	if f.settler == nil {
		f.settler = nopSettler{}
	}
	if f.sink == nil {
		f.sink = nopSink{}
	}
	if f.now == nil {
		f.now = time.Now
	}
	return f
}

func (f *Factory) Owner() Address   { return f.owner }
func (f *Factory) Address() Address { return f.address }
func (f *Factory) Decimals() uint8  { return f.decimals }

// CreateResearchToken legt ein neues Token mit caller als Forscher an.
func (f *Factory) CreateResearchToken(ctx context.Context, caller Address, p TokenParams) (ResearchRecord, error) {
	if err := validateParams(caller, p); err != nil {
		return ResearchRecord{}, err
	}

	f.mu.Lock()
	id := uint64(len(f.records))
	ev := &Event{
		Kind:    EventTokenCreated,
		TokenID: id,
		Token:   f.tokenAddress(id),
		Caller:  caller,
		Params:  cloneParams(p),
		Time:    f.now().UTC(),
	}
	if err := f.settler.Settle(ctx, ev); err != nil {
		f.mu.Unlock()
		return ResearchRecord{}, err
	}
	rec := f.appendToken(ev.Token, caller, *ev.Params)
	f.mu.Unlock()

	f.sink.Emit(*ev)
	return rec, nil
}

// GetResearchToken liefert den Registry-Eintrag zu id.
func (f *Factory) GetResearchToken(id uint64) (ResearchRecord, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if id >= uint64(len(f.records)) {
		return ResearchRecord{}, ErrTokenNotFound
	}
	return f.records[id], nil
}

// GetResearcherTokens liefert die IDs aller Tokens eines Forschers in Erstellungsreihenfolge.
func (f *Factory) GetResearcherTokens(researcher Address) []uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := f.byResearcher[researcher]
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out
}

func (f *Factory) Token(id uint64) (*ResearchToken, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if id >= uint64(len(f.tokens)) {
		return nil, ErrTokenNotFound
	}
	return f.tokens[id], nil
}

func (f *Factory) TokenAt(addr Address) (*ResearchToken, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.byAddress[addr]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return t, nil
}

// Records liefert eine Kopie der Registry.
func (f *Factory) Records() []ResearchRecord {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]ResearchRecord, len(f.records))
	copy(out, f.records)
	return out
}

func (f *Factory) TokenCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.records)
}

// Replay wendet bereits festgehaltene Ereignisse in Reihenfolge erneut an, ohne sie zu settlen.
// Die Factory muss dafür leer sein oder genau den Stand vor events haben.
func (f *Factory) Replay(ctx context.Context, events []Event) error {
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.replay(ev); err != nil {
			return fmt.Errorf("replay event %d (%s): %w", ev.Seq, ev.Kind, err)
		}
	}
	return nil
}

func (f *Factory) replay(ev Event) error {
	if ev.Kind != EventTokenCreated {
		t, err := f.Token(ev.TokenID)
		if err != nil {
			return err
		}
		if t.Address() != ev.Token {
			return newError(ErrValidation, "token address mismatch")
		}
		return t.replay(ev)
	}

	if ev.Params == nil {
		return newError(ErrValidation, "creation event without params")
	}
	if err := validateParams(ev.Caller, *ev.Params); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	next := uint64(len(f.records))
	if ev.TokenID != next {
		return newError(ErrValidation, fmt.Sprintf("expected token id %d, got %d", next, ev.TokenID))
	}
	if addr := f.tokenAddress(next); addr != ev.Token {
		return newError(ErrValidation, "token address mismatch")
	}
	f.appendToken(ev.Token, ev.Caller, *ev.Params)
	return nil
}

// appendToken setzt voraus, dass f.mu exklusiv gehalten wird.
func (f *Factory) appendToken(addr, researcher Address, p TokenParams) ResearchRecord {
	id := uint64(len(f.records))
	t := newResearchToken(id, addr, researcher, p, f.decimals, f.settler, f.sink, f.now)
	rec := ResearchRecord{ID: id, Researcher: researcher, TokenAddress: addr}

	f.records = append(f.records, rec)
	f.tokens = append(f.tokens, t)
	f.byAddress[addr] = t
	f.byResearcher[researcher] = append(f.byResearcher[researcher], id)
	return rec
}

// Token-Nonces beginnen bei 1; Nonce 0 ist die Factory selbst.
func (f *Factory) tokenAddress(id uint64) Address {
	return DeriveAddress(f.address, id+1)
}

func validateParams(caller Address, p TokenParams) error {
	switch {
	case caller.IsZero():
		return ErrInvalidCaller
	case p.PDFHash == "":
		return ErrPDFHashRequired
	case p.Name == "":
		return ErrNameRequired
	case p.Symbol == "":
		return ErrSymbolRequired
	case p.Price == nil || p.Price.Sign() < 0:
		return ErrInvalidPrice
	}
	return nil
}

func cloneParams(p TokenParams) *TokenParams {
	c := p
	if p.Price != nil {
		c.Price = new(big.Int).Set(p.Price)
	}
	return &c
}
