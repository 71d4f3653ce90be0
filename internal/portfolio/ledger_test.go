package portfolio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketcalls/research-call-engine/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockPositionStore struct {
	mu        sync.Mutex
	positions map[int64]*models.PortfolioPosition
	nextID    int64
	failOnID  int64 // UpdatePosition fails for this position id
}

func newMockPositionStore() *mockPositionStore {
	return &mockPositionStore{positions: map[int64]*models.PortfolioPosition{}, nextID: 1}
}

func (s *mockPositionStore) GetPosition(_ context.Context, id int64) (*models.PortfolioPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok {
		return nil, errors.New("position not found")
	}
	copied := *p
	return &copied, nil
}

func (s *mockPositionStore) HasActivePosition(_ context.Context, userID, callID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.positions {
		if p.UserID == userID && p.CallID == callID && p.Status == models.PositionActive {
			return true, nil
		}
	}
	return false, nil
}

func (s *mockPositionStore) CreatePosition(_ context.Context, p *models.PortfolioPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextID
	s.nextID++
	copied := *p
	s.positions[p.ID] = &copied
	return nil
}

func (s *mockPositionStore) UpdatePosition(_ context.Context, p *models.PortfolioPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOnID != 0 && p.ID == s.failOnID {
		return errors.New("deadlock detected")
	}
	if _, ok := s.positions[p.ID]; !ok {
		return errors.New("position not found")
	}
	copied := *p
	s.positions[p.ID] = &copied
	return nil
}

func (s *mockPositionStore) ActivePositionsForCall(_ context.Context, callID int64) ([]*models.PortfolioPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.PortfolioPosition
	for id := int64(1); id < s.nextID; id++ {
		p, ok := s.positions[id]
		if ok && p.CallID == callID && p.Status == models.PositionActive {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *mockPositionStore) PositionsForUser(_ context.Context, userID int64) ([]*models.PortfolioPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.PortfolioPosition
	for id := int64(1); id < s.nextID; id++ {
		p, ok := s.positions[id]
		if ok && p.UserID == userID {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

type mockCallDirectory struct {
	calls map[int64]*models.ResearchCall
}

func (d *mockCallDirectory) GetCall(_ context.Context, id int64) (*models.ResearchCall, error) {
	call, ok := d.calls[id]
	if !ok {
		return nil, errors.New("call not found")
	}
	return call, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestLedger(calls ...*models.ResearchCall) (*Ledger, *mockPositionStore) {
	store := newMockPositionStore()
	dir := &mockCallDirectory{calls: map[int64]*models.ResearchCall{}}
	for _, call := range calls {
		dir.calls[call.ID] = call
	}
	return NewLedger(store, dir), store
}

func buyCall(id int64) *models.ResearchCall {
	return &models.ResearchCall{ID: id, Direction: models.DirectionBuy, Status: models.StatusActive}
}

func sellCall(id int64) *models.ResearchCall {
	return &models.ResearchCall{ID: id, Direction: models.DirectionSell, Status: models.StatusActive}
}

var entryDate = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// Open
// ---------------------------------------------------------------------------

func TestLedger_Open(t *testing.T) {
	ledger, _ := newTestLedger(buyCall(1))

	position, err := ledger.Open(context.Background(), 42, 1, dec("2500"), dec("10"), entryDate)
	require.NoError(t, err)

	assert.Equal(t, "25000", position.InvestedAmount.String())
	assert.Equal(t, models.PositionActive, position.Status)
	assert.NotZero(t, position.ID)
}

func TestLedger_OpenRejectsDuplicate(t *testing.T) {
	ledger, _ := newTestLedger(buyCall(1))
	ctx := context.Background()

	_, err := ledger.Open(ctx, 42, 1, dec("2500"), dec("10"), entryDate)
	require.NoError(t, err)

	_, err = ledger.Open(ctx, 42, 1, dec("2510"), dec("5"), entryDate)
	assert.ErrorIs(t, err, ErrDuplicatePosition)

	// A different user may hold a position on the same call.
	_, err = ledger.Open(ctx, 43, 1, dec("2510"), dec("5"), entryDate)
	assert.NoError(t, err)
}

func TestLedger_OpenAgainAfterExit(t *testing.T) {
	ledger, _ := newTestLedger(buyCall(1))
	ctx := context.Background()

	position, err := ledger.Open(ctx, 42, 1, dec("2500"), dec("10"), entryDate)
	require.NoError(t, err)
	require.NoError(t, ledger.Exit(ctx, position, dec("2600"), entryDate.Add(24*time.Hour), "MANUAL"))

	_, err = ledger.Open(ctx, 42, 1, dec("2550"), dec("4"), entryDate.Add(48*time.Hour))
	assert.NoError(t, err)
}

func TestLedger_OpenValidatesInputs(t *testing.T) {
	ledger, _ := newTestLedger(buyCall(1))
	ctx := context.Background()

	_, err := ledger.Open(ctx, 42, 1, dec("0"), dec("10"), entryDate)
	assert.Error(t, err)

	_, err = ledger.Open(ctx, 42, 1, dec("2500"), dec("-1"), entryDate)
	assert.Error(t, err)

	_, err = ledger.Open(ctx, 42, 99, dec("2500"), dec("10"), entryDate)
	assert.Error(t, err) // unknown call
}

// ---------------------------------------------------------------------------
// Valuation
// ---------------------------------------------------------------------------

func TestLedger_RefreshValuation(t *testing.T) {
	ledger, store := newTestLedger(buyCall(1))
	ctx := context.Background()

	position, err := ledger.Open(ctx, 42, 1, dec("2500"), dec("10"), entryDate)
	require.NoError(t, err)

	price := decimal.NullDecimal{Decimal: dec("2600"), Valid: true}
	require.NoError(t, ledger.RefreshValuation(ctx, position, price))

	stored, err := store.GetPosition(ctx, position.ID)
	require.NoError(t, err)
	assert.Equal(t, "26000", stored.CurrentValue.Decimal.String())
	assert.Equal(t, "1000", stored.UnrealizedPnl.Decimal.String())
}

// An unavailable price preserves the previous valuation instead of zeroing it.
func TestLedger_RefreshValuationSkipsMissingPrice(t *testing.T) {
	ledger, store := newTestLedger(buyCall(1))
	ctx := context.Background()

	position, err := ledger.Open(ctx, 42, 1, dec("2500"), dec("10"), entryDate)
	require.NoError(t, err)
	require.NoError(t, ledger.RefreshValuation(ctx, position, decimal.NullDecimal{Decimal: dec("2600"), Valid: true}))

	require.NoError(t, ledger.RefreshValuation(ctx, position, decimal.NullDecimal{}))

	stored, err := store.GetPosition(ctx, position.ID)
	require.NoError(t, err)
	assert.Equal(t, "26000", stored.CurrentValue.Decimal.String())
}

// ---------------------------------------------------------------------------
// Exit
// ---------------------------------------------------------------------------

func TestLedger_ExitRealizesPnl(t *testing.T) {
	ledger, store := newTestLedger(buyCall(1))
	ctx := context.Background()

	position, err := ledger.Open(ctx, 42, 1, dec("2500"), dec("10"), entryDate)
	require.NoError(t, err)

	exitDate := entryDate.Add(72 * time.Hour)
	require.NoError(t, ledger.Exit(ctx, position, dec("2750"), exitDate, "TARGET_1_HIT"))

	stored, err := store.GetPosition(ctx, position.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PositionExited, stored.Status)
	assert.Equal(t, "2500", stored.RealizedPnl.Decimal.String())
	assert.Equal(t, "TARGET_1_HIT", stored.ExitReason)
	require.NotNil(t, stored.ExitDate)
	assert.True(t, stored.ExitDate.Equal(exitDate))
}

// Realized P&L flips sign when the underlying call is a SELL.
func TestLedger_ExitSellCall(t *testing.T) {
	ledger, store := newTestLedger(sellCall(2))
	ctx := context.Background()

	position, err := ledger.Open(ctx, 42, 2, dec("1000"), dec("5"), entryDate)
	require.NoError(t, err)

	require.NoError(t, ledger.Exit(ctx, position, dec("900"), entryDate.Add(time.Hour), "TARGET_1_HIT"))

	stored, err := store.GetPosition(ctx, position.ID)
	require.NoError(t, err)
	assert.Equal(t, "500", stored.RealizedPnl.Decimal.String())
}

func TestLedger_ExitValidatesExitPrice(t *testing.T) {
	ledger, store := newTestLedger(buyCall(1))
	ctx := context.Background()

	position, err := ledger.Open(ctx, 42, 1, dec("2500"), dec("10"), entryDate)
	require.NoError(t, err)

	err = ledger.Exit(ctx, position, dec("0"), entryDate, "MANUAL")
	assert.Error(t, err)
	err = ledger.Exit(ctx, position, dec("-10"), entryDate, "MANUAL")
	assert.Error(t, err)

	stored, err := store.GetPosition(ctx, position.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PositionActive, stored.Status)
	assert.False(t, stored.RealizedPnl.Valid)
}

func TestLedger_ExitAlreadyExited(t *testing.T) {
	ledger, _ := newTestLedger(buyCall(1))
	ctx := context.Background()

	position, err := ledger.Open(ctx, 42, 1, dec("2500"), dec("10"), entryDate)
	require.NoError(t, err)
	require.NoError(t, ledger.Exit(ctx, position, dec("2600"), entryDate, "MANUAL"))

	err = ledger.Exit(ctx, position, dec("2700"), entryDate, "MANUAL")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestLedger_ExitByID(t *testing.T) {
	ledger, _ := newTestLedger(buyCall(1))
	ctx := context.Background()

	opened, err := ledger.Open(ctx, 42, 1, dec("2500"), dec("10"), entryDate)
	require.NoError(t, err)

	exited, err := ledger.ExitByID(ctx, opened.ID, dec("2600"), entryDate.Add(time.Hour), "MANUAL")
	require.NoError(t, err)
	assert.Equal(t, models.PositionExited, exited.Status)
	assert.Equal(t, "1000", exited.RealizedPnl.Decimal.String())
}

// One failing position must not prevent the rest from exiting.
func TestLedger_ExitAllForCallIsolatesFailures(t *testing.T) {
	ledger, store := newTestLedger(buyCall(1))
	ctx := context.Background()

	first, err := ledger.Open(ctx, 41, 1, dec("2500"), dec("10"), entryDate)
	require.NoError(t, err)
	second, err := ledger.Open(ctx, 42, 1, dec("2500"), dec("4"), entryDate)
	require.NoError(t, err)
	third, err := ledger.Open(ctx, 43, 1, dec("2500"), dec("2"), entryDate)
	require.NoError(t, err)

	store.failOnID = second.ID

	exited, err := ledger.ExitAllForCall(ctx, 1, dec("2750"), entryDate.Add(time.Hour), "TARGET_1_HIT")
	require.NoError(t, err)
	assert.Equal(t, 2, exited)

	for _, tc := range []struct {
		id   int64
		want models.PositionStatus
	}{
		{first.ID, models.PositionExited},
		{second.ID, models.PositionActive},
		{third.ID, models.PositionExited},
	} {
		stored, err := store.GetPosition(ctx, tc.id)
		require.NoError(t, err)
		assert.Equal(t, tc.want, stored.Status, "position %d", tc.id)
	}
}

// ---------------------------------------------------------------------------
// Summary
// ---------------------------------------------------------------------------

func TestLedger_Summarize(t *testing.T) {
	ledger, _ := newTestLedger(buyCall(1), buyCall(2), buyCall(3))
	ctx := context.Background()

	// Active position, marked to market.
	active, err := ledger.Open(ctx, 42, 1, dec("2500"), dec("10"), entryDate)
	require.NoError(t, err)
	require.NoError(t, ledger.RefreshValuation(ctx, active, decimal.NullDecimal{Decimal: dec("2600"), Valid: true}))

	// One winner, one loser.
	winner, err := ledger.Open(ctx, 42, 2, dec("100"), dec("10"), entryDate)
	require.NoError(t, err)
	require.NoError(t, ledger.Exit(ctx, winner, dec("110"), entryDate, "TARGET_1_HIT"))
	loser, err := ledger.Open(ctx, 42, 3, dec("100"), dec("10"), entryDate)
	require.NoError(t, err)
	require.NoError(t, ledger.Exit(ctx, loser, dec("95"), entryDate, "STOP_LOSS_HIT"))

	summary, err := ledger.Summarize(ctx, 42)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ActivePositions)
	assert.Equal(t, 2, summary.ClosedPositions)
	assert.Equal(t, "25000", summary.TotalInvested.String())
	assert.Equal(t, "26000", summary.TotalCurrentValue.String())
	assert.Equal(t, "1000", summary.UnrealizedPnl.String())
	assert.Equal(t, "50", summary.RealizedPnl.String()) // +100 - 50
	assert.Equal(t, 1, summary.WinningTrades)
	assert.Equal(t, 1, summary.LosingTrades)
	assert.Equal(t, "50", summary.WinRate.String())
}

// A freshly opened position with no valuation yet must not drag unrealized
// P&L down by its invested amount.
func TestLedger_SummarizeUnvaluedPosition(t *testing.T) {
	ledger, _ := newTestLedger(buyCall(1), buyCall(2))
	ctx := context.Background()

	// Valued position: +1000 unrealized.
	valued, err := ledger.Open(ctx, 42, 1, dec("2500"), dec("10"), entryDate)
	require.NoError(t, err)
	require.NoError(t, ledger.RefreshValuation(ctx, valued, decimal.NullDecimal{Decimal: dec("2600"), Valid: true}))

	// Never swept, no current value.
	_, err = ledger.Open(ctx, 42, 2, dec("100"), dec("50"), entryDate)
	require.NoError(t, err)

	summary, err := ledger.Summarize(ctx, 42)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.ActivePositions)
	assert.Equal(t, "30000", summary.TotalInvested.String())
	assert.Equal(t, "26000", summary.TotalCurrentValue.String())
	assert.Equal(t, "1000", summary.UnrealizedPnl.String())
}

// No exited positions means a zero win rate, not a division error.
func TestLedger_SummarizeNoExits(t *testing.T) {
	ledger, _ := newTestLedger(buyCall(1))
	ctx := context.Background()

	_, err := ledger.Open(ctx, 42, 1, dec("2500"), dec("10"), entryDate)
	require.NoError(t, err)

	summary, err := ledger.Summarize(ctx, 42)
	require.NoError(t, err)
	assert.True(t, summary.WinRate.IsZero())
	assert.Equal(t, 0, summary.ClosedPositions)
}

func TestLedger_SummarizeEmptyPortfolio(t *testing.T) {
	ledger, _ := newTestLedger()

	summary, err := ledger.Summarize(context.Background(), 99)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ActivePositions)
	assert.True(t, summary.TotalInvested.IsZero())
}
