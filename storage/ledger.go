package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"slices"

	"desci-meme/market"
	"desci-meme/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger ist der datenbankgestützte Settler: Jedes akzeptierte Ereignis wird zusammen mit
// der zugehörigen Zahlung in einer Transaktion ins Journal geschrieben.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Settle schreibt ev ins Journal und bucht bei Käufen die Zahlung vom Käufer zum Forscher um.
func (l *Ledger) Settle(ctx context.Context, ev *market.Event) error {
	row, err := eventToRow(ev)
	if err != nil {
		return err
	}
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ev.Kind == market.EventTokensPurchased && ev.Value != nil && ev.Value.Sign() > 0 {
			if err := transfer(tx, ev.Caller, ev.Counterparty, ev.Value); err != nil {
				return err
			}
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("append ledger event: %w", err)
		}
		ev.Seq = row.ID
		return nil
	})
}

// Deposit schreibt value dem Konto gut.
func (l *Ledger) Deposit(ctx context.Context, account market.Address, value *big.Int) error {
	if value == nil || value.Sign() < 0 {
		return market.ErrInvalidValue
	}
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balances, err := lockAccounts(tx, account)
		if err != nil {
			return err
		}
		bal := balances[account]
		return saveBalance(tx, account, bal.Add(bal, value))
	})
}

// Balance liefert das externe Guthaben; unbekannte Konten haben 0.
func (l *Ledger) Balance(ctx context.Context, account market.Address) (*big.Int, error) {
	var acc models.Account
	err := l.db.WithContext(ctx).First(&acc, "address = ?", account.Hex()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", account, err)
	}
	return parseAmount(acc.Balance)
}

// Events liefert das komplette Journal in Einfügereihenfolge.
func (l *Ledger) Events(ctx context.Context) ([]market.Event, error) {
	var rows []models.LedgerEvent
	if err := l.db.WithContext(ctx).Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load ledger events: %w", err)
	}
	events := make([]market.Event, 0, len(rows))
	for _, row := range rows {
		ev, err := rowToEvent(row)
		if err != nil {
			return nil, fmt.Errorf("ledger event %d: %w", row.ID, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func transfer(tx *gorm.DB, from, to market.Address, value *big.Int) error {
	balances, err := lockAccounts(tx, from, to)
	if err != nil {
		return err
	}
	src := balances[from]
	if src.Cmp(value) < 0 {
		return market.ErrBalanceTooLow
	}
	if from == to {
		return nil
	}
	if err := saveBalance(tx, from, src.Sub(src, value)); err != nil {
		return err
	}
	dst := balances[to]
	return saveBalance(tx, to, dst.Add(dst, value))
}

// lockAccounts legt fehlende Konten mit Guthaben 0 an und sperrt danach alle Zeilen
// (SELECT ... FOR UPDATE, wo unterstützt). Gesperrt wird immer in aufsteigender
// Adressreihenfolge, damit gegenläufige Käufe sich nicht gegenseitig blockieren.
func lockAccounts(tx *gorm.DB, accounts ...market.Address) (map[market.Address]*big.Int, error) {
	ordered := lockOrder(accounts)
	rows := make([]models.Account, 0, len(ordered))
	for _, a := range ordered {
		rows = append(rows, models.Account{Address: a.Hex(), Balance: "0"})
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		return nil, fmt.Errorf("create accounts: %w", err)
	}

	balances := make(map[market.Address]*big.Int, len(ordered))
	for _, a := range ordered {
		var acc models.Account
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&acc, "address = ?", a.Hex()).Error
		if err != nil {
			return nil, fmt.Errorf("lock account %s: %w", a, err)
		}
		bal, err := parseAmount(acc.Balance)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", a, err)
		}
		balances[a] = bal
	}
	return balances, nil
}

// lockOrder sortiert die Adressen aufsteigend und entfernt Duplikate.
func lockOrder(accounts []market.Address) []market.Address {
	out := slices.Clone(accounts)
	slices.SortFunc(out, func(a, b market.Address) int {
		return bytes.Compare(a[:], b[:])
	})
	return slices.Compact(out)
}

// saveBalance setzt das Guthaben einer bereits gesperrten Zeile.
func saveBalance(tx *gorm.DB, account market.Address, balance *big.Int) error {
	err := tx.Model(&models.Account{}).
		Where("address = ?", account.Hex()).
		Update("balance", balance.String()).Error
	if err != nil {
		return fmt.Errorf("save account %s: %w", account, err)
	}
	return nil
}

func eventToRow(ev *market.Event) (models.LedgerEvent, error) {
	row := models.LedgerEvent{
		Kind:         string(ev.Kind),
		TokenID:      ev.TokenID,
		TokenAddress: ev.Token.Hex(),
		Caller:       ev.Caller.Hex(),
		Amount:       ev.Amount,
		Active:       ev.Active,
		OccurredAt:   ev.Time,
	}
	if !ev.Counterparty.IsZero() {
		row.Counterparty = ev.Counterparty.Hex()
	}
	if ev.Value != nil {
		row.Value = ev.Value.String()
	}
	if ev.Params != nil {
		raw, err := json.Marshal(ev.Params)
		if err != nil {
			return row, fmt.Errorf("encode token params: %w", err)
		}
		row.Params = datatypes.JSON(raw)
	}
	return row, nil
}

func rowToEvent(row models.LedgerEvent) (market.Event, error) {
	ev := market.Event{
		Seq:     row.ID,
		Kind:    market.EventKind(row.Kind),
		TokenID: row.TokenID,
		Amount:  row.Amount,
		Active:  row.Active,
		Time:    row.OccurredAt,
	}
	var err error
	if ev.Token, err = market.ParseAddress(row.TokenAddress); err != nil {
		return ev, err
	}
	if ev.Caller, err = market.ParseAddress(row.Caller); err != nil {
		return ev, err
	}
	if row.Counterparty != "" {
		if ev.Counterparty, err = market.ParseAddress(row.Counterparty); err != nil {
			return ev, err
		}
	}
	if row.Value != "" {
		if ev.Value, err = parseAmount(row.Value); err != nil {
			return ev, err
		}
	}
	if len(row.Params) > 0 {
		var p market.TokenParams
		if err := json.Unmarshal(row.Params, &p); err != nil {
			return ev, fmt.Errorf("decode token params: %w", err)
		}
		ev.Params = &p
	}
	return ev, nil
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
