package market

import (
	"context"
	"math/big"
	"sync"
	"time"
)

// ResearchToken ist eine verkäufliche Einheit zu genau einem Forschungsartefakt.
// Name, Symbol, Forscher und Content-Hashes sind unveränderlich; Preis, Aktiv-Flag und
// Guthaben ändern sich nur über die Methoden unten, jede davon atomar.
type ResearchToken struct {
	id            uint64
	address       Address
	name          string
	symbol        string
	researcher    Address
	pdfHash       string
	imageHash     string
	description   string
	initialSupply uint64
	decimals      uint8
	scale         *big.Int

	settler Settler
	sink    EventSink
	now     func() time.Time

	mu       sync.RWMutex
	price    *big.Int
	active   bool
	minted   uint64
	balances map[Address]*big.Int
}

// TokenInfo ist eine Momentaufnahme aller lesbaren Felder eines Tokens.
type TokenInfo struct {
	ID              uint64   `json:"id"`
	Address         Address  `json:"address"`
	Name            string   `json:"name"`
	Symbol          string   `json:"symbol"`
	Researcher      Address  `json:"researcher"`
	PDFHash         string   `json:"pdf_hash"`
	ImageHash       string   `json:"image_hash"`
	MemeDescription string   `json:"meme_description"`
	TokenPrice      *big.Int `json:"token_price"`
	IsActive        bool     `json:"is_active"`
	InitialSupply   uint64   `json:"initial_supply"`
	Decimals        uint8    `json:"decimals"`
	TotalSupply     *big.Int `json:"total_supply"`
}

func newResearchToken(id uint64, addr, researcher Address, p TokenParams, decimals uint8, settler Settler, sink EventSink, now func() time.Time) *ResearchToken {
	return &ResearchToken{
		id:            id,
		address:       addr,
		name:          p.Name,
		symbol:        p.Symbol,
		researcher:    researcher,
		pdfHash:       p.PDFHash,
		imageHash:     p.ImageHash,
		description:   p.Description,
		initialSupply: p.InitialSupply,
		decimals:      decimals,
		scale:         unitScale(decimals),
		settler:       settler,
		sink:          sink,
		now:           now,
		price:         new(big.Int).Set(p.Price),
		active:        true,
		balances:      make(map[Address]*big.Int),
	}
}

func (t *ResearchToken) ID() uint64              { return t.id }
func (t *ResearchToken) Address() Address        { return t.address }
func (t *ResearchToken) Name() string            { return t.name }
func (t *ResearchToken) Symbol() string          { return t.symbol }
func (t *ResearchToken) Researcher() Address     { return t.researcher }
func (t *ResearchToken) PDFHash() string         { return t.pdfHash }
func (t *ResearchToken) ImageHash() string       { return t.imageHash }
func (t *ResearchToken) MemeDescription() string { return t.description }
func (t *ResearchToken) InitialSupply() uint64   { return t.initialSupply }
func (t *ResearchToken) Decimals() uint8         { return t.decimals }

// TokenPrice liefert den Preis pro ganzer Einheit in kleinsten nativen Einheiten.
func (t *ResearchToken) TokenPrice() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.price)
}

func (t *ResearchToken) IsActive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active
}

// TotalSupply liefert die bisher verkaufte Menge in kleinster Token-Einheit.
func (t *ResearchToken) TotalSupply() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.scaled(t.minted)
}

// BalanceOf liefert das Guthaben eines Halters; unbekannte Halter haben 0.
func (t *ResearchToken) BalanceOf(holder Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if b, ok := t.balances[holder]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Holders liefert eine Kopie aller Guthaben.
func (t *ResearchToken) Holders() map[Address]*big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.holders()
}

func (t *ResearchToken) Info() TokenInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info()
}

// Snapshot liefert Info und Guthaben aus demselben Zustand; die Summe der Guthaben
// entspricht immer TotalSupply.
func (t *ResearchToken) Snapshot() (TokenInfo, map[Address]*big.Int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info(), t.holders()
}

func (t *ResearchToken) holders() map[Address]*big.Int {
	out := make(map[Address]*big.Int, len(t.balances))
	for a, b := range t.balances {
		out[a] = new(big.Int).Set(b)
	}
	return out
}

func (t *ResearchToken) info() TokenInfo {
	return TokenInfo{
		ID:              t.id,
		Address:         t.address,
		Name:            t.name,
		Symbol:          t.symbol,
		Researcher:      t.researcher,
		PDFHash:         t.pdfHash,
		ImageHash:       t.imageHash,
		MemeDescription: t.description,
		TokenPrice:      new(big.Int).Set(t.price),
		IsActive:        t.active,
		InitialSupply:   t.initialSupply,
		Decimals:        t.decimals,
		TotalSupply:     t.scaled(t.minted),
	}
}

// BuyTokens kauft amount ganze Einheiten für buyer. payment muss exakt amount * Preis sein.
func (t *ResearchToken) BuyTokens(ctx context.Context, buyer Address, amount uint64, payment *big.Int) error {
	t.mu.Lock()
	ev, err := t.checkPurchase(buyer, amount, payment)
	if err == nil {
		err = t.settler.Settle(ctx, ev)
	}
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.credit(buyer, amount)
	t.mu.Unlock()

	t.sink.Emit(*ev)
	return nil
}

// UpdateTokenPrice setzt einen neuen Preis. Nur der Forscher darf das.
func (t *ResearchToken) UpdateTokenPrice(ctx context.Context, caller Address, newPrice *big.Int) error {
	t.mu.Lock()
	ev, err := t.checkPriceUpdate(caller, newPrice)
	if err == nil {
		err = t.settler.Settle(ctx, ev)
	}
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.price = new(big.Int).Set(newPrice)
	t.mu.Unlock()

	t.sink.Emit(*ev)
	return nil
}

// ToggleActive schaltet den Verkauf an oder aus und liefert den neuen Zustand.
func (t *ResearchToken) ToggleActive(ctx context.Context, caller Address) (bool, error) {
	t.mu.Lock()
	ev, err := t.checkToggle(caller)
	if err == nil {
		err = t.settler.Settle(ctx, ev)
	}
	if err != nil {
		active := t.active
		t.mu.Unlock()
		return active, err
	}
	t.active = ev.Active
	t.mu.Unlock()

	t.sink.Emit(*ev)
	return ev.Active, nil
}

// replay wendet ein bereits festgehaltenes Ereignis erneut an, ohne es zu settlen.
func (t *ResearchToken) replay(ev Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Kind {
	case EventTokensPurchased:
		if _, err := t.checkPurchase(ev.Caller, ev.Amount, ev.Value); err != nil {
			return err
		}
		t.credit(ev.Caller, ev.Amount)
	case EventPriceUpdated:
		if _, err := t.checkPriceUpdate(ev.Caller, ev.Value); err != nil {
			return err
		}
		t.price = new(big.Int).Set(ev.Value)
	case EventActiveToggled:
		if _, err := t.checkToggle(ev.Caller); err != nil {
			return err
		}
		t.active = !t.active
	default:
		return newError(ErrValidation, "unexpected event kind "+string(ev.Kind))
	}
	return nil
}

func (t *ResearchToken) checkPurchase(buyer Address, amount uint64, payment *big.Int) (*Event, error) {
	if !t.active {
		return nil, ErrSaleNotActive
	}
	if buyer.IsZero() {
		return nil, ErrInvalidCaller
	}
	if amount == 0 {
		return nil, ErrZeroAmount
	}
	cost := new(big.Int).Mul(new(big.Int).SetUint64(amount), t.price)
	if payment == nil || payment.Cmp(cost) != 0 {
		return nil, ErrIncorrectPayment
	}
	if amount > t.initialSupply-t.minted {
		return nil, ErrSupplyCapReached
	}
	return t.event(EventTokensPurchased, buyer, func(ev *Event) {
		ev.Counterparty = t.researcher
		ev.Amount = amount
		ev.Value = cost
	}), nil
}

func (t *ResearchToken) checkPriceUpdate(caller Address, newPrice *big.Int) (*Event, error) {
	if caller != t.researcher {
		return nil, ErrOnlyResearcherPrice
	}
	if newPrice == nil || newPrice.Sign() < 0 {
		return nil, ErrInvalidPrice
	}
	return t.event(EventPriceUpdated, caller, func(ev *Event) {
		ev.Value = new(big.Int).Set(newPrice)
	}), nil
}

func (t *ResearchToken) checkToggle(caller Address) (*Event, error) {
	if caller != t.researcher {
		return nil, ErrOnlyResearcherToggle
	}
	return t.event(EventActiveToggled, caller, func(ev *Event) {
		ev.Active = !t.active
	}), nil
}

func (t *ResearchToken) event(kind EventKind, caller Address, fill func(*Event)) *Event {
	ev := &Event{
		Kind:    kind,
		TokenID: t.id,
		Token:   t.address,
		Caller:  caller,
		Time:    t.now().UTC(),
	}
	fill(ev)
	return ev
}

// credit setzt voraus, dass t.mu gehalten wird und checkPurchase erfolgreich war.
func (t *ResearchToken) credit(holder Address, amount uint64) {
	t.minted += amount
	b, ok := t.balances[holder]
	if !ok {
		b = new(big.Int)
		t.balances[holder] = b
	}
	b.Add(b, t.scaled(amount))
}

func (t *ResearchToken) scaled(units uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(units), t.scale)
}
