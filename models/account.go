package models

import "time"

// Account hält das externe Guthaben einer Adresse in kleinsten nativen Einheiten.
type Account struct {
	Address   string    `json:"address" gorm:"primaryKey;size:42"`
	Balance   string    `json:"balance" gorm:"type:text;not null;default:'0'"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName gibt explizit den Tabellennamen an.
func (Account) TableName() string {
	return "accounts"
}
