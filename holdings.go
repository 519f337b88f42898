package uabean

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrLotShortfall reports that a close event could not be covered by the
// open lots on record. Callers are expected to warn and book a nil cost
// rather than abort the whole batch: one bad historical trade must not block
// importing hundreds of others.
var ErrLotShortfall = errors.New("insufficient matching lots")

// Lot is a discrete acquisition of a symbol: the held quantity, the recorded
// trade price per unit, and the true per-unit cost including commission.
type Lot struct {
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	TruePrice decimal.Decimal
}

type lotKey struct {
	on     Date
	symbol string
}

// Holdings tracks open lots per (acquisition date, symbol), consumed on
// matching close events. Quantities are signed: short positions hold
// negative lots.
type Holdings struct {
	lots map[lotKey][]*Lot
}

// NewHoldings returns an empty holdings map.
func NewHoldings() *Holdings {
	return &Holdings{lots: make(map[lotKey][]*Lot)}
}

// Open records a buy (or a short sale) of quantity at the given trade price,
// with truePrice the per-unit cost including commission. Lots at the same
// (date, symbol) with an identical true price are merged.
func (h *Holdings) Open(on Date, symbol string, quantity, price, truePrice decimal.Decimal) {
	k := lotKey{on: on, symbol: symbol}
	for _, lot := range h.lots[k] {
		if lot.TruePrice.Equal(truePrice) {
			lot.Quantity = lot.Quantity.Add(quantity)
			return
		}
	}
	h.lots[k] = append(h.lots[k], &Lot{Quantity: quantity, Price: price, TruePrice: truePrice})
}

// Close consumes quantity from the open lot acquired on the given date whose
// true per-unit price matches truePrice: equal within 4 decimal places, or,
// as a looser fallback for rounding-sensitive small trades, an exact quantity
// match within 2 decimal places. It returns the matched lot's recorded trade
// price for the cost-basis posting.
//
// A missing or under-covered lot returns an error wrapping ErrLotShortfall.
func (h *Holdings) Close(on Date, symbol string, quantity, truePrice decimal.Decimal) (decimal.Decimal, error) {
	k := lotKey{on: on, symbol: symbol}
	lots := h.lots[k]
	for i, lot := range lots {
		if !lotMatches(lot, quantity, truePrice) {
			continue
		}
		held := lot.Quantity
		if (held.IsNegative() && held.GreaterThan(quantity)) ||
			(held.IsPositive() && held.LessThan(quantity)) {
			return decimal.Decimal{}, fmt.Errorf("%w: have %s of %s at %s, want %s",
				ErrLotShortfall, held, symbol, on, quantity)
		}
		if held.Equal(quantity) {
			h.lots[k] = slices.Delete(lots, i, i+1)
			if len(h.lots[k]) == 0 {
				delete(h.lots, k)
			}
		} else {
			lot.Quantity = held.Sub(quantity)
		}
		return lot.Price, nil
	}
	return decimal.Decimal{}, fmt.Errorf("%w: no %s bought at %s for %s per unit (have %s)",
		ErrLotShortfall, symbol, on, truePrice, describeLots(lots))
}

func lotMatches(lot *Lot, quantity, truePrice decimal.Decimal) bool {
	if lot.TruePrice.Round(4).Equal(truePrice.Round(4)) {
		return true
	}
	return lot.Quantity.Equal(quantity) && lot.TruePrice.Round(2).Equal(truePrice.Round(2))
}

func describeLots(lots []*Lot) string {
	if len(lots) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(lots))
	for _, lot := range lots {
		parts = append(parts, fmt.Sprintf("%s@%s", lot.Quantity, lot.TruePrice))
	}
	return strings.Join(parts, ", ")
}

// Adjust applies a signed replayed posting while seeding from existing ledger
// state: positive quantities recreate lots, negative ones consume them. Lots
// netting out to zero are dropped, so a fully realized position leaves no
// trace.
func (h *Holdings) Adjust(on Date, symbol string, quantity, price, truePrice decimal.Decimal) {
	k := lotKey{on: on, symbol: symbol}
	lots := h.lots[k]
	for i, lot := range lots {
		if lot.TruePrice.Round(4).Equal(truePrice.Round(4)) ||
			(lot.Quantity.Equal(quantity) && lot.TruePrice.Round(2).Equal(truePrice.Round(2))) {
			lot.Quantity = lot.Quantity.Add(quantity)
			if lot.Quantity.IsZero() {
				h.lots[k] = slices.Delete(lots, i, i+1)
				if len(h.lots[k]) == 0 {
					delete(h.lots, k)
				}
			}
			return
		}
	}
	h.lots[k] = append(lots, &Lot{Quantity: quantity, Price: price, TruePrice: truePrice})
}

// HeldLot is one open lot with its key, as returned by Symbol.
type HeldLot struct {
	Date   Date
	Symbol string
	Lot    *Lot
}

// Symbol returns the open lots of a symbol ordered by acquisition date.
// The returned Lot pointers alias the live holdings.
func (h *Holdings) Symbol(symbol string) []HeldLot {
	var held []HeldLot
	for k, lots := range h.lots {
		if k.symbol != symbol {
			continue
		}
		for _, lot := range lots {
			held = append(held, HeldLot{Date: k.on, Symbol: k.symbol, Lot: lot})
		}
	}
	slices.SortStableFunc(held, func(a, b HeldLot) int {
		switch {
		case a.Date.Before(b.Date):
			return -1
		case a.Date.After(b.Date):
			return 1
		}
		return 0
	})
	return held
}

// ApplySplit rescales every open lot of the symbol by factor num/den,
// preserving the aggregate economic position.
func (h *Holdings) ApplySplit(symbol string, num, den int64) {
	factor := decimal.NewFromInt(num).Div(decimal.NewFromInt(den))
	for k, lots := range h.lots {
		if k.symbol != symbol {
			continue
		}
		for _, lot := range lots {
			lot.Quantity = lot.Quantity.Mul(factor)
			lot.Price = lot.Price.Div(factor)
			lot.TruePrice = lot.TruePrice.Div(factor)
		}
	}
}

// Rename re-keys every open lot of oldSymbol under newSymbol (issue changes).
func (h *Holdings) Rename(oldSymbol, newSymbol string) {
	for k, lots := range h.lots {
		if k.symbol != oldSymbol {
			continue
		}
		delete(h.lots, k)
		nk := lotKey{on: k.on, symbol: newSymbol}
		h.lots[nk] = append(h.lots[nk], lots...)
	}
}

// Drop removes every open lot of the symbol (mergers, delistings) and
// returns what was removed.
func (h *Holdings) Drop(symbol string) []HeldLot {
	removed := h.Symbol(symbol)
	for k := range h.lots {
		if k.symbol == symbol {
			delete(h.lots, k)
		}
	}
	return removed
}

// Len returns the number of open lots across all symbols.
func (h *Holdings) Len() int {
	n := 0
	for _, lots := range h.lots {
		n += len(lots)
	}
	return n
}

// SeedFromLedger replays the existing ledger's postings under the given
// asset account namespace and reconstructs the holdings they imply. Only
// postings carrying both a recorded cost and a true-cost annotation
// participate, so re-importing a statement against a ledger that already
// contains its output reproduces identical cost-basis decisions.
func (h *Holdings) SeedFromLedger(entries []Directive, assetsRoot string) {
	for _, entry := range entries {
		tx, ok := entry.(*Transaction)
		if !ok {
			continue
		}
		for _, p := range tx.Postings {
			if !strings.HasPrefix(p.Account, assetsRoot) {
				continue
			}
			if p.Cost == nil || p.Cost.Number == nil {
				continue
			}
			trueCost, ok := p.Meta[MetaTrueCost]
			if !ok {
				continue
			}
			total, err := decimal.NewFromString(trueCost)
			if err != nil || p.Units.IsZero() {
				continue
			}
			truePrice := total.Div(p.Units.Decimal()).Abs()
			h.Adjust(p.Cost.Date, p.Units.Currency(), p.Units.Decimal(), *p.Cost.Number, truePrice)
		}
	}
}
