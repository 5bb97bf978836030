package services

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"desci-meme/market"

	"go.uber.org/zap"
)

// Ledger ist der Settler samt Kontoführung und Journal, z.B. storage.Ledger.
type Ledger interface {
	market.Settler
	Deposit(ctx context.Context, account market.Address, value *big.Int) error
	Balance(ctx context.Context, account market.Address) (*big.Int, error)
	Events(ctx context.Context) ([]market.Event, error)
}

// RegistryService verbindet die Factory mit Journal, Logging und Metriken.
type RegistryService struct {
	Factory *market.Factory
	Ledger  Ledger
	Logger  *zap.Logger
	Metrics *Metrics
}

// NewRegistryService erstellt eine leere Registry; Restore lädt den gespeicherten Stand.
func NewRegistryService(owner market.Address, decimals uint8, ledger Ledger, logger *zap.Logger, metrics *Metrics) *RegistryService {
	s := &RegistryService{
		Ledger:  ledger,
		Logger:  logger,
		Metrics: metrics,
	}
	s.Factory = market.NewFactory(market.FactoryConfig{
		Owner:    owner,
		Decimals: decimals,
		Settler:  ledger,
		Sink:     s,
	})
	return s
}

// Restore spielt das Journal in die (leere) Factory ein.
func (s *RegistryService) Restore(ctx context.Context) error {
	events, err := s.Ledger.Events(ctx)
	if err != nil {
		return err
	}
	if err := s.Factory.Replay(ctx, events); err != nil {
		return err
	}
	s.Metrics.TokensRegistered.Set(float64(s.Factory.TokenCount()))
	s.Logger.Info("Registry restored from journal",
		zap.Int("events", len(events)),
		zap.Int("tokens", s.Factory.TokenCount()))
	return nil
}

// Emit wird von der Factory nach jeder erfolgreichen Änderung aufgerufen.
func (s *RegistryService) Emit(ev market.Event) {
	s.Metrics.observe(ev)
	s.Logger.Info("Ledger event applied",
		zap.String("kind", string(ev.Kind)),
		zap.Uint64("seq", ev.Seq),
		zap.Uint64("token_id", ev.TokenID),
		zap.Stringer("token", ev.Token),
		zap.Stringer("caller", ev.Caller))
}

func (s *RegistryService) CreateResearchToken(ctx context.Context, caller market.Address, p market.TokenParams) (market.ResearchRecord, error) {
	rec, err := s.Factory.CreateResearchToken(ctx, caller, p)
	if err != nil {
		s.fail("create", err, zap.Stringer("caller", caller), zap.String("symbol", p.Symbol))
		return rec, err
	}
	return rec, nil
}

// ResolveToken findet ein Token über seine ID oder seine 0x-Adresse.
func (s *RegistryService) ResolveToken(ref string) (*market.ResearchToken, error) {
	if strings.HasPrefix(ref, "0x") || strings.HasPrefix(ref, "0X") {
		addr, err := market.ParseAddress(ref)
		if err != nil {
			return nil, &market.Error{Kind: market.ErrValidation, Msg: err.Error()}
		}
		return s.Factory.TokenAt(addr)
	}
	id, err := strconv.ParseUint(ref, 10, 64)
	if err != nil {
		return nil, &market.Error{Kind: market.ErrValidation, Msg: fmt.Sprintf("invalid token reference %q", ref)}
	}
	return s.Factory.Token(id)
}

func (s *RegistryService) BuyTokens(ctx context.Context, tok *market.ResearchToken, buyer market.Address, amount uint64, payment *big.Int) error {
	if err := tok.BuyTokens(ctx, buyer, amount, payment); err != nil {
		s.fail("buy", err, zap.Uint64("token_id", tok.ID()), zap.Stringer("buyer", buyer), zap.Uint64("amount", amount))
		return err
	}
	return nil
}

func (s *RegistryService) UpdateTokenPrice(ctx context.Context, tok *market.ResearchToken, caller market.Address, price *big.Int) error {
	if err := tok.UpdateTokenPrice(ctx, caller, price); err != nil {
		s.fail("update_price", err, zap.Uint64("token_id", tok.ID()), zap.Stringer("caller", caller))
		return err
	}
	return nil
}

func (s *RegistryService) ToggleActive(ctx context.Context, tok *market.ResearchToken, caller market.Address) (bool, error) {
	active, err := tok.ToggleActive(ctx, caller)
	if err != nil {
		s.fail("toggle", err, zap.Uint64("token_id", tok.ID()), zap.Stringer("caller", caller))
		return active, err
	}
	return active, nil
}

// Deposit lädt ein Konto auf. Nur der Owner der Factory darf das.
func (s *RegistryService) Deposit(ctx context.Context, caller, account market.Address, value *big.Int) error {
	if caller != s.Factory.Owner() {
		s.fail("deposit", market.ErrOnlyOwner, zap.Stringer("caller", caller))
		return market.ErrOnlyOwner
	}
	if err := s.Ledger.Deposit(ctx, account, value); err != nil {
		s.fail("deposit", err, zap.Stringer("account", account))
		return err
	}
	s.Logger.Info("Account funded", zap.Stringer("account", account), zap.String("value", market.FormatNative(value)))
	return nil
}

func (s *RegistryService) Balance(ctx context.Context, account market.Address) (*big.Int, error) {
	return s.Ledger.Balance(ctx, account)
}

// fail zählt und loggt eine abgelehnte Operation. Fachliche Fehler sind Warnungen.
func (s *RegistryService) fail(operation string, err error, fields ...zap.Field) {
	s.Metrics.failed(operation, err)
	fields = append(fields, zap.String("operation", operation), zap.Error(err))
	if market.KindOf(err) == nil {
		s.Logger.Error("Operation failed", fields...)
		return
	}
	s.Logger.Warn("Operation rejected", fields...)
}
