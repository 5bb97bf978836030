package market

import "errors"

// Fehlerkategorien. Mit errors.Is prüfbar, z.B. errors.Is(err, ErrUnauthorized).
var (
	ErrValidation        = errors.New("validation error")
	ErrUnauthorized      = errors.New("authorization error")
	ErrPaymentMismatch   = errors.New("payment mismatch")
	ErrInactiveSale      = errors.New("inactive sale")
	ErrNotFound          = errors.New("not found")
	ErrSupplyExhausted   = errors.New("supply exhausted")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Error ist ein fachlicher Fehler mit Kategorie (Kind) und Meldung.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Konkrete Fehler der Factory und der Tokens.
var (
	ErrPDFHashRequired      = newError(ErrValidation, "PDF hash required")
	ErrNameRequired         = newError(ErrValidation, "token name required")
	ErrSymbolRequired       = newError(ErrValidation, "token symbol required")
	ErrInvalidPrice         = newError(ErrValidation, "token price must not be negative")
	ErrInvalidCaller        = newError(ErrValidation, "caller address required")
	ErrInvalidValue         = newError(ErrValidation, "value must not be negative")
	ErrZeroAmount           = newError(ErrValidation, "amount must be greater than zero")
	ErrIncorrectPayment     = newError(ErrPaymentMismatch, "incorrect payment amount")
	ErrSaleNotActive        = newError(ErrInactiveSale, "token sale is not active")
	ErrOnlyResearcherPrice  = newError(ErrUnauthorized, "only researcher can update price")
	ErrOnlyResearcherToggle = newError(ErrUnauthorized, "only researcher can toggle sale")
	ErrOnlyOwner            = newError(ErrUnauthorized, "only factory owner can fund accounts")
	ErrTokenNotFound        = newError(ErrNotFound, "research token not found")
	ErrSupplyCapReached     = newError(ErrSupplyExhausted, "token supply exhausted")
	ErrBalanceTooLow        = newError(ErrInsufficientFunds, "insufficient funds for payment")
)

// KindOf liefert die Kategorie eines Fehlers oder nil, wenn es kein fachlicher Fehler ist.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}
