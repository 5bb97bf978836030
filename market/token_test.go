package market

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ownerAddr      = MustParseAddress("0x1000000000000000000000000000000000000001")
	researcherAddr = MustParseAddress("0x2000000000000000000000000000000000000002")
	buyerAddr      = MustParseAddress("0x3000000000000000000000000000000000000003")
)

const (
	testName        = "Test Research"
	testSymbol      = "TEST"
	testPDFHash     = "QmPdfHash123"
	testImageHash   = "QmImageHash456"
	testDescription = "Test meme description"
	testSupply      = 1000
)

func ether(s string) *big.Int {
	v, err := ParseNative(s)
	if err != nil {
		panic(err)
	}
	return v
}

func testParams() TokenParams {
	return TokenParams{
		Name:          testName,
		Symbol:        testSymbol,
		PDFHash:       testPDFHash,
		ImageHash:     testImageHash,
		Description:   testDescription,
		Price:         ether("0.1"),
		InitialSupply: testSupply,
	}
}

type fixture struct {
	ctx     context.Context
	ledger  *MemoryLedger
	factory *Factory
	token   *ResearchToken
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	ledger := NewMemoryLedger()
	f := NewFactory(FactoryConfig{Owner: ownerAddr, Settler: ledger})

	rec, err := f.CreateResearchToken(ctx, researcherAddr, testParams())
	require.NoError(t, err)
	tok, err := f.TokenAt(rec.TokenAddress)
	require.NoError(t, err)
	require.NoError(t, ledger.Deposit(ctx, buyerAddr, ether("100")))

	return &fixture{ctx: ctx, ledger: ledger, factory: f, token: tok}
}

func (fx *fixture) balance(t *testing.T, a Address) *big.Int {
	t.Helper()
	b, err := fx.ledger.Balance(fx.ctx, a)
	require.NoError(t, err)
	return b
}

func TestResearchToken_InitialParameters(t *testing.T) {
	fx := newFixture(t)
	tok := fx.token

	assert.Equal(t, testName, tok.Name())
	assert.Equal(t, testSymbol, tok.Symbol())
	assert.Equal(t, researcherAddr, tok.Researcher())
	assert.Equal(t, testPDFHash, tok.PDFHash())
	assert.Equal(t, testImageHash, tok.ImageHash())
	assert.Equal(t, testDescription, tok.MemeDescription())
	assert.Equal(t, 0, tok.TokenPrice().Cmp(ether("0.1")))
	assert.True(t, tok.IsActive())
	assert.Equal(t, uint64(testSupply), tok.InitialSupply())
	assert.Equal(t, DefaultDecimals, tok.Decimals())
	assert.Zero(t, tok.TotalSupply().Sign(), "no pre-mint")
	assert.Zero(t, tok.BalanceOf(researcherAddr).Sign())
}

func TestResearchToken_BuyTokens(t *testing.T) {
	fx := newFixture(t)
	before := fx.balance(t, researcherAddr)

	require.NoError(t, fx.token.BuyTokens(fx.ctx, buyerAddr, 1, ether("0.1")))

	after := fx.balance(t, researcherAddr)
	assert.Equal(t, 0, new(big.Int).Sub(after, before).Cmp(ether("0.1")))
	assert.Equal(t, 0, fx.token.BalanceOf(buyerAddr).Cmp(ether("1")), "1 unit scaled by 10^18")
	assert.Equal(t, 0, fx.balance(t, buyerAddr).Cmp(ether("99.9")))
}

func TestResearchToken_BuyTokensCumulative(t *testing.T) {
	fx := newFixture(t)

	require.NoError(t, fx.token.BuyTokens(fx.ctx, buyerAddr, 2, ether("0.2")))
	require.NoError(t, fx.token.BuyTokens(fx.ctx, buyerAddr, 3, ether("0.3")))

	assert.Equal(t, 0, fx.token.BalanceOf(buyerAddr).Cmp(ether("5")))
	assert.Equal(t, 0, fx.token.TotalSupply().Cmp(ether("5")))
	assert.Equal(t, 0, fx.balance(t, researcherAddr).Cmp(ether("0.5")))
}

func TestResearchToken_BuyTokensIncorrectPayment(t *testing.T) {
	price := ether("0.1")
	cases := []struct {
		name    string
		payment *big.Int
	}{
		{"underpayment", new(big.Int).Sub(price, big.NewInt(1))},
		{"overpayment", new(big.Int).Add(price, big.NewInt(1))},
		{"nil", nil},
		{"zero", new(big.Int)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t)
			err := fx.token.BuyTokens(fx.ctx, buyerAddr, 1, tc.payment)

			require.ErrorIs(t, err, ErrIncorrectPayment)
			assert.ErrorIs(t, err, ErrPaymentMismatch)
			assert.Equal(t, "incorrect payment amount", err.Error())
			assert.Zero(t, fx.token.BalanceOf(buyerAddr).Sign())
			assert.Zero(t, fx.balance(t, researcherAddr).Sign())
			assert.Equal(t, 0, fx.balance(t, buyerAddr).Cmp(ether("100")))
		})
	}
}

func TestResearchToken_BuyTokensZeroAmount(t *testing.T) {
	fx := newFixture(t)
	err := fx.token.BuyTokens(fx.ctx, buyerAddr, 0, new(big.Int))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestResearchToken_SupplyCap(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	f := NewFactory(FactoryConfig{Owner: ownerAddr, Settler: ledger})
	p := testParams()
	p.InitialSupply = 3
	rec, err := f.CreateResearchToken(ctx, researcherAddr, p)
	require.NoError(t, err)
	tok, err := f.Token(rec.ID)
	require.NoError(t, err)
	require.NoError(t, ledger.Deposit(ctx, buyerAddr, ether("10")))

	require.NoError(t, tok.BuyTokens(ctx, buyerAddr, 2, ether("0.2")))
	err = tok.BuyTokens(ctx, buyerAddr, 2, ether("0.2"))
	require.ErrorIs(t, err, ErrSupplyExhausted)
	require.NoError(t, tok.BuyTokens(ctx, buyerAddr, 1, ether("0.1")))
	assert.ErrorIs(t, tok.BuyTokens(ctx, buyerAddr, 1, ether("0.1")), ErrSupplyCapReached)

	assert.Equal(t, 0, tok.TotalSupply().Cmp(ether("3")))
	assert.Equal(t, 0, tok.BalanceOf(buyerAddr).Cmp(ether("3")))
}

func TestResearchToken_InsufficientFunds(t *testing.T) {
	fx := newFixture(t)
	poor := MustParseAddress("0x4000000000000000000000000000000000000004")

	err := fx.token.BuyTokens(fx.ctx, poor, 1, ether("0.1"))

	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Zero(t, fx.token.BalanceOf(poor).Sign())
	assert.Zero(t, fx.token.TotalSupply().Sign())
	events, _ := fx.ledger.Events(fx.ctx)
	assert.Len(t, events, 1, "only the creation is journaled")
}

func TestResearchToken_UpdateTokenPrice(t *testing.T) {
	fx := newFixture(t)

	require.NoError(t, fx.token.UpdateTokenPrice(fx.ctx, researcherAddr, ether("0.2")))
	assert.Equal(t, 0, fx.token.TokenPrice().Cmp(ether("0.2")))

	err := fx.token.UpdateTokenPrice(fx.ctx, buyerAddr, ether("0.3"))
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, "only researcher can update price", err.Error())
	assert.Equal(t, 0, fx.token.TokenPrice().Cmp(ether("0.2")))

	assert.ErrorIs(t, fx.token.UpdateTokenPrice(fx.ctx, researcherAddr, big.NewInt(-1)), ErrValidation)

	require.NoError(t, fx.token.UpdateTokenPrice(fx.ctx, researcherAddr, new(big.Int)))
	assert.Zero(t, fx.token.TokenPrice().Sign())
}

func TestResearchToken_NewPriceAppliesToPurchases(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.token.UpdateTokenPrice(fx.ctx, researcherAddr, ether("0.2")))

	assert.ErrorIs(t, fx.token.BuyTokens(fx.ctx, buyerAddr, 1, ether("0.1")), ErrIncorrectPayment)
	assert.NoError(t, fx.token.BuyTokens(fx.ctx, buyerAddr, 1, ether("0.2")))
}

func TestResearchToken_ToggleActive(t *testing.T) {
	fx := newFixture(t)

	active, err := fx.token.ToggleActive(fx.ctx, researcherAddr)
	require.NoError(t, err)
	assert.False(t, active)
	assert.False(t, fx.token.IsActive())

	err = fx.token.BuyTokens(fx.ctx, buyerAddr, 1, ether("0.1"))
	require.ErrorIs(t, err, ErrInactiveSale)
	assert.Equal(t, "token sale is not active", err.Error())
	// auch mit falscher Zahlung meldet ein inaktiver Verkauf zuerst InactiveSale
	assert.ErrorIs(t, fx.token.BuyTokens(fx.ctx, buyerAddr, 1, ether("5")), ErrSaleNotActive)

	_, err = fx.token.ToggleActive(fx.ctx, buyerAddr)
	assert.ErrorIs(t, err, ErrOnlyResearcherToggle)
	assert.False(t, fx.token.IsActive())

	active, err = fx.token.ToggleActive(fx.ctx, researcherAddr)
	require.NoError(t, err)
	assert.True(t, active)
	assert.NoError(t, fx.token.BuyTokens(fx.ctx, buyerAddr, 1, ether("0.1")))
}

func TestResearchToken_Info(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.token.BuyTokens(fx.ctx, buyerAddr, 4, ether("0.4")))

	info := fx.token.Info()
	assert.Equal(t, uint64(0), info.ID)
	assert.Equal(t, fx.token.Address(), info.Address)
	assert.Equal(t, researcherAddr, info.Researcher)
	assert.Equal(t, 0, info.TotalSupply.Cmp(ether("4")))

	holders := fx.token.Holders()
	require.Len(t, holders, 1)
	holders[buyerAddr].SetInt64(0)
	assert.Equal(t, 0, fx.token.BalanceOf(buyerAddr).Cmp(ether("4")), "Holders returns copies")
}

func TestResearchToken_SnapshotConsistentUnderPurchases(t *testing.T) {
	fx := newFixture(t)
	price := ether("0.1")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				assert.NoError(t, fx.token.BuyTokens(fx.ctx, buyerAddr, 1, price))
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		info, holders := fx.token.Snapshot()
		sum := new(big.Int)
		for _, b := range holders {
			sum.Add(sum, b)
		}
		require.Equal(t, 0, sum.Cmp(info.TotalSupply), "holders %s, total supply %s", sum, info.TotalSupply)
		select {
		case <-done:
			info, _ := fx.token.Snapshot()
			assert.Equal(t, 0, info.TotalSupply.Cmp(ether("100")))
			return
		default:
		}
	}
}
