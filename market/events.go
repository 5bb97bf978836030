package market

import (
	"context"
	"math/big"
	"time"
)

// EventKind benennt die Art einer Zustandsänderung.
type EventKind string

const (
	EventTokenCreated    EventKind = "token_created"
	EventTokensPurchased EventKind = "tokens_purchased"
	EventPriceUpdated    EventKind = "price_updated"
	EventActiveToggled   EventKind = "active_toggled"
)

// TokenParams sind die Parameter, mit denen ein Forscher ein Token anlegt.
type TokenParams struct {
	Name          string   `json:"name"`
	Symbol        string   `json:"symbol"`
	PDFHash       string   `json:"pdf_hash"`
	ImageHash     string   `json:"image_hash"`
	Description   string   `json:"description"`
	Price         *big.Int `json:"price"`
	InitialSupply uint64   `json:"initial_supply"`
}

// Event beschreibt eine akzeptierte Zustandsänderung.
//
// Je nach Kind sind nur einzelne Felder belegt:
//   - token_created: Params, Caller (Forscher), TokenID, Token
//   - tokens_purchased: Caller (Käufer), Counterparty (Forscher), Amount, Value (Zahlung)
//   - price_updated: Caller, Value (neuer Preis)
//   - active_toggled: Caller, Active (neuer Zustand)
type Event struct {
	Seq          uint64       `json:"seq"`
	Kind         EventKind    `json:"kind"`
	TokenID      uint64       `json:"token_id"`
	Token        Address      `json:"token"`
	Caller       Address      `json:"caller"`
	Counterparty Address      `json:"counterparty"`
	Amount       uint64       `json:"amount,omitempty"`
	Value        *big.Int     `json:"value,omitempty"`
	Active       bool         `json:"active"`
	Params       *TokenParams `json:"params,omitempty"`
	Time         time.Time    `json:"time"`
}

// Settler hält akzeptierte Ereignisse dauerhaft fest und bewegt bei Käufen die Zahlung
// vom Käufer zum Forscher. Ein Fehler bricht die gesamte Operation ohne Zustandsänderung ab.
// Settle vergibt ev.Seq.
type Settler interface {
	Settle(ctx context.Context, ev *Event) error
}

// EventSink wird nach jeder erfolgreich angewendeten Änderung benachrichtigt.
type EventSink interface {
	Emit(ev Event)
}

type nopSettler struct{}

func (nopSettler) Settle(context.Context, *Event) error { return nil }

type nopSink struct{}

func (nopSink) Emit(Event) {}
