package models

import (
	"time"

	"gorm.io/datatypes"
)

// LedgerEvent ist ein Eintrag im Journal der Registry. Die ID bestimmt die Replay-Reihenfolge.
type LedgerEvent struct {
	ID        uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `json:"created_at"`

	Kind         string `json:"kind" gorm:"size:32;index;not null"`
	TokenID      uint64 `json:"token_id" gorm:"index"`
	TokenAddress string `json:"token_address" gorm:"size:42;index"`
	Caller       string `json:"caller" gorm:"size:42;index"`
	Counterparty string `json:"counterparty,omitempty" gorm:"size:42"`

	// Kauf: Menge ganzer Einheiten und Zahlung; Preisänderung: neuer Preis in Value
	Amount uint64 `json:"amount"`
	Value  string `json:"value,omitempty" gorm:"type:text"`
	Active bool   `json:"active"`

	// Parameter der Erstellung (nur bei token_created)
	Params datatypes.JSON `json:"params,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// TableName gibt explizit den Tabellennamen an.
func (LedgerEvent) TableName() string {
	return "ledger_events"
}
