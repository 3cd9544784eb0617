// Package ledger is the paper-trading execution core: it owns all open
// positions, computes entry/exit economics with realistic fees and
// slippage, applies funding, and realizes PnL on close.
package ledger

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"perpsim/decision"
	"perpsim/internal/id"
	"perpsim/journal"
	"perpsim/market"
)

var (
	ErrDuplicatePosition   = errors.New("position already open for pair")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoSuchPosition      = errors.New("no open position for pair")
)

// Trigger is the outcome of a protective-level check. Liquidation
// always wins: it is checked before stop loss and take profit.
type Trigger int

const (
	TriggerNone Trigger = iota
	TriggerLiquidation
	TriggerStopLoss
	TriggerTakeProfit
)

func (t Trigger) String() string {
	switch t {
	case TriggerLiquidation:
		return "Liquidated"
	case TriggerStopLoss:
		return "Stop loss hit"
	case TriggerTakeProfit:
		return "Take profit hit"
	default:
		return "none"
	}
}

// Config holds the execution-cost model and entry defaults.
type Config struct {
	TakerFee        float64 // market orders only; all simulated fills are taker
	SlippageMajor   float64
	SlippageAlt     float64
	MaintenanceRate float64 // isolated-margin maintenance fraction

	DefaultLeverage    int
	DefaultPositionPct float64
}

func (c Config) slippageFor(pair string) float64 {
	if market.IsMajor(pair) {
		return c.SlippageMajor
	}
	return c.SlippageAlt
}

// Ledger tracks cash balance and open positions. All mutation goes
// through its methods under one mutex; readers receive copies.
type Ledger struct {
	mu  sync.Mutex
	cfg Config

	store journal.Store

	balance        float64
	initialBalance float64
	peakBalance    float64
	positions      map[string]*Position

	now func() time.Time
}

func New(cfg Config, initialBalance float64, store journal.Store) *Ledger {
	return &Ledger{
		cfg:            cfg,
		store:          store,
		balance:        initialBalance,
		initialBalance: initialBalance,
		peakBalance:    initialBalance,
		positions:      make(map[string]*Position),
		now:            time.Now,
	}
}

// Open opens a position from a validated entry decision. The decision
// must already have passed the risk validator; Open still enforces the
// hard invariants (unique pair, solvent balance) itself.
func (l *Ledger) Open(dec decision.Decision, price float64) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pair := dec.Pair
	if _, ok := l.positions[pair]; ok {
		return Position{}, fmt.Errorf("open %s: %w", pair, ErrDuplicatePosition)
	}

	lev := dec.Leverage
	if lev <= 0 {
		lev = l.cfg.DefaultLeverage
	}
	pct := dec.PositionSizePct
	if pct <= 0 {
		pct = l.cfg.DefaultPositionPct
	}

	margin := l.balance * pct
	notional := margin * float64(lev)

	dir := dec.Direction()
	slip := l.cfg.slippageFor(pair)
	entry := price * (1 + slip)
	if dir == market.Short {
		entry = price * (1 - slip)
	}

	quantity := notional / entry
	entryFee := notional * l.cfg.TakerFee

	if margin+entryFee > l.balance {
		return Position{}, fmt.Errorf("open %s: need %.2f, have %.2f: %w",
			pair, margin+entryFee, l.balance, ErrInsufficientBalance)
	}
	l.balance -= margin + entryFee

	pos := &Position{
		ID:               id.New(),
		Pair:             pair,
		Direction:        dir,
		EntryPrice:       entry,
		CurrentPrice:     price,
		Quantity:         quantity,
		Leverage:         lev,
		MarginUsed:       margin,
		EntryFee:         entryFee,
		StopLoss:         dec.StopLoss,
		TakeProfit:       dec.TakeProfit,
		LiquidationPrice: liquidationPrice(dir, entry, lev, l.cfg.MaintenanceRate),
		HighestPrice:     entry,
		LowestPrice:      entry,
		OpenedAt:         l.now().UTC(),
		EntryReasoning:   dec.Reasoning,
	}
	l.positions[pair] = pos

	if err := l.store.InsertTrade(journal.TradeOpen{
		ID:             pos.ID,
		Pair:           pair,
		Direction:      string(dir),
		EntryPrice:     entry,
		Quantity:       quantity,
		Leverage:       lev,
		MarginUsed:     margin,
		EntryFee:       entryFee,
		OpenedAt:       pos.OpenedAt,
		EntryReasoning: dec.Reasoning,
	}); err != nil {
		log.Printf("journal: insert trade %s: %v", pos.ID, err)
	}

	log.Printf("OPENED %s %s @ %.4f qty=%.6f lev=%dx margin=%.2f fee=%.4f SL=%.4f TP=%.4f liq=%.4f",
		dir, pair, entry, quantity, lev, margin, entryFee, pos.StopLoss, pos.TakeProfit, pos.LiquidationPrice)

	return *pos, nil
}

// liquidationPrice derives the isolated-margin liquidation level. It
// sits on the adverse side of entry for either direction.
func liquidationPrice(dir market.Direction, entry float64, lev int, maintRate float64) float64 {
	if dir == market.Long {
		return entry * (1 - 1/float64(lev) + maintRate)
	}
	return entry * (1 + 1/float64(lev) - maintRate)
}

// Close closes the open position for pair at the given market price and
// returns the realized Trade.
func (l *Ledger) Close(pair string, price float64, reason string) (Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[pair]
	if !ok {
		return Trade{}, fmt.Errorf("close %s: %w", pair, ErrNoSuchPosition)
	}

	// Exit slippage is symmetric to entry: longs sell below market,
	// shorts buy above it.
	slip := l.cfg.slippageFor(pair)
	exit := price * (1 - slip)
	if pos.Direction == market.Short {
		exit = price * (1 + slip)
	}

	exitNotional := pos.Quantity * exit
	exitFee := exitNotional * l.cfg.TakerFee

	rawPnL := pos.Direction.Sign() * (exit - pos.EntryPrice) * pos.Quantity
	netPnL := rawPnL - pos.EntryFee - exitFee - pos.FundingPaid

	pnlPct := 0.0
	if pos.MarginUsed > 0 {
		pnlPct = netPnL / pos.MarginUsed
	}

	l.balance += pos.MarginUsed + netPnL
	delete(l.positions, pair)

	if eq := l.equityLocked(); eq > l.peakBalance {
		l.peakBalance = eq
	}

	now := l.now().UTC()
	trade := Trade{
		ID:             pos.ID,
		Pair:           pair,
		Direction:      pos.Direction,
		EntryPrice:     pos.EntryPrice,
		ExitPrice:      exit,
		Quantity:       pos.Quantity,
		Leverage:       pos.Leverage,
		PnL:            netPnL,
		PnLPct:         pnlPct,
		EntryFee:       pos.EntryFee,
		ExitFee:        exitFee,
		FundingPaid:    pos.FundingPaid,
		MarginUsed:     pos.MarginUsed,
		HoldMinutes:    now.Sub(pos.OpenedAt).Minutes(),
		OpenedAt:       pos.OpenedAt,
		ClosedAt:       now,
		EntryReasoning: pos.EntryReasoning,
		ExitReasoning:  reason,
	}

	if err := l.store.UpdateTrade(pos.ID, journal.TradeClose{
		ExitPrice:     exit,
		PnL:           netPnL,
		PnLPct:        pnlPct,
		ExitFee:       exitFee,
		FundingPaid:   pos.FundingPaid,
		HoldMinutes:   trade.HoldMinutes,
		ClosedAt:      now,
		ExitReasoning: reason,
	}); err != nil {
		log.Printf("journal: close trade %s: %v", pos.ID, err)
	}

	log.Printf("CLOSED %s %s @ %.4f pnl=%.4f (%.2f%%) hold=%.1fm funding=%.4f reason=%q",
		pos.Direction, pair, exit, netPnL, pnlPct*100, trade.HoldMinutes, pos.FundingPaid, reason)

	return trade, nil
}

// UpdatePrice refreshes mark price, peak/trough tracking and unrealized
// PnL. Untracked pairs are routine, not an error.
func (l *Ledger) UpdatePrice(pair string, price float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[pair]
	if !ok {
		return
	}
	pos.CurrentPrice = price
	if price > pos.HighestPrice {
		pos.HighestPrice = price
	}
	if price < pos.LowestPrice {
		pos.LowestPrice = price
	}
	pos.UnrealizedPnL = pos.Direction.Sign()*(price-pos.EntryPrice)*pos.Quantity - pos.FundingPaid
}

// ApplyFunding charges (or credits) a funding payment against the
// position and the cash balance. Longs pay when the rate is positive,
// shorts are credited, mirroring perpetual-futures convention. Returns
// the signed cost; 0 when the pair is untracked.
func (l *Ledger) ApplyFunding(pair string, rate float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[pair]
	if !ok {
		return 0
	}

	notional := pos.Quantity * pos.CurrentPrice
	cost := notional * rate
	if pos.Direction == market.Short {
		cost = -cost
	}

	l.balance -= cost
	pos.FundingPaid += cost

	log.Printf("funding %s: rate=%.6f cost=%.4f (%s) total=%.4f",
		pair, rate, cost, pos.Direction, pos.FundingPaid)
	return cost
}

// CheckTriggers evaluates protective levels against a price, in strict
// liquidation > stop-loss > take-profit priority.
func (l *Ledger) CheckTriggers(pair string, price float64) Trigger {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[pair]
	if !ok {
		return TriggerNone
	}
	return checkTriggers(pos, price)
}

func checkTriggers(pos *Position, price float64) Trigger {
	if pos.Direction == market.Long {
		if pos.LiquidationPrice > 0 && price <= pos.LiquidationPrice {
			return TriggerLiquidation
		}
		if pos.StopLoss > 0 && price <= pos.StopLoss {
			return TriggerStopLoss
		}
		if pos.TakeProfit > 0 && price >= pos.TakeProfit {
			return TriggerTakeProfit
		}
		return TriggerNone
	}

	if pos.LiquidationPrice > 0 && price >= pos.LiquidationPrice {
		return TriggerLiquidation
	}
	if pos.StopLoss > 0 && price >= pos.StopLoss {
		return TriggerStopLoss
	}
	if pos.TakeProfit > 0 && price <= pos.TakeProfit {
		return TriggerTakeProfit
	}
	return TriggerNone
}

// SetTrailingStop arms a trailing stop at the given price distance.
func (l *Ledger) SetTrailingStop(pair string, distance float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[pair]
	if !ok {
		return fmt.Errorf("trailing stop %s: %w", pair, ErrNoSuchPosition)
	}
	pos.TrailingStopDistance = distance
	log.Printf("trailing stop set for %s: distance=%.4f", pair, distance)
	return nil
}

// UpdateTrailingStop ratchets the stop toward the peak (longs) or
// trough (shorts). The stop may tighten but never loosen.
func (l *Ledger) UpdateTrailingStop(pair string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[pair]
	if !ok || pos.TrailingStopDistance <= 0 {
		return
	}

	if pos.Direction == market.Long {
		if sl := pos.HighestPrice - pos.TrailingStopDistance; sl > pos.StopLoss {
			pos.StopLoss = sl
		}
		return
	}
	if sl := pos.LowestPrice + pos.TrailingStopDistance; pos.StopLoss == 0 || sl < pos.StopLoss {
		pos.StopLoss = sl
	}
}

// AdjustProtection replaces stop-loss and/or take-profit levels. Zero
// leaves the existing level untouched.
func (l *Ledger) AdjustProtection(pair string, stopLoss, takeProfit float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[pair]
	if !ok {
		return fmt.Errorf("adjust %s: %w", pair, ErrNoSuchPosition)
	}
	if stopLoss > 0 {
		pos.StopLoss = stopLoss
	}
	if takeProfit > 0 {
		pos.TakeProfit = takeProfit
	}
	log.Printf("adjusted %s: SL=%.4f TP=%.4f", pair, pos.StopLoss, pos.TakeProfit)
	return nil
}

// Restore re-registers a position recovered from persistence. Margin is
// re-locked against the balance so the equity identity holds across a
// restart. Protective levels come back as persisted (possibly unset).
func (l *Ledger) Restore(pos Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.positions[pos.Pair]; ok {
		return fmt.Errorf("restore %s: %w", pos.Pair, ErrDuplicatePosition)
	}
	if pos.MarginUsed <= 0 || pos.Quantity <= 0 {
		return fmt.Errorf("restore %s: invalid margin/quantity", pos.Pair)
	}

	l.balance -= pos.MarginUsed
	p := pos
	if p.CurrentPrice == 0 {
		p.CurrentPrice = p.EntryPrice
	}
	if p.HighestPrice == 0 {
		p.HighestPrice = p.EntryPrice
	}
	if p.LowestPrice == 0 {
		p.LowestPrice = p.EntryPrice
	}
	l.positions[p.Pair] = &p
	return nil
}

// --- derived read-only properties ---

func (l *Ledger) equityLocked() float64 {
	eq := l.balance
	for _, p := range l.positions {
		eq += p.MarginUsed + p.UnrealizedPnL
	}
	return eq
}

// TotalEquity is balance + locked margin + unrealized PnL, recomputed
// on demand and never cached.
func (l *Ledger) TotalEquity() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.equityLocked()
}

func (l *Ledger) TotalMarginUsed() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var used float64
	for _, p := range l.positions {
		used += p.MarginUsed
	}
	return used
}

// MarginRatio is locked margin over equity, clamped to 1 when equity is
// non-positive (maximal risk).
func (l *Ledger) MarginRatio() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	eq := l.equityLocked()
	if eq <= 0 {
		return 1.0
	}
	var used float64
	for _, p := range l.positions {
		used += p.MarginUsed
	}
	return used / eq
}

// DrawdownPct is the decline of equity from its all-time peak, always <= 0.
func (l *Ledger) DrawdownPct() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.peakBalance == 0 {
		return 0
	}
	dd := (l.equityLocked() - l.peakBalance) / l.peakBalance
	if dd > 0 {
		return 0
	}
	return dd
}

func (l *Ledger) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

func (l *Ledger) InitialBalance() float64 { return l.initialBalance }

func (l *Ledger) PeakBalance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peakBalance
}

func (l *Ledger) OpenCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions)
}

func (l *Ledger) Has(pair string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.positions[pair]
	return ok
}

// Get returns a copy of the open position for pair.
func (l *Ledger) Get(pair string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[pair]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Snapshot returns copies of all open positions.
func (l *Ledger) Snapshot() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	return out
}
