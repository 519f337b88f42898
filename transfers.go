package uabean

import (
	"github.com/shopspring/decimal"
)

// ExtractedFile is the result of running one importer over one statement
// file. DetectTransfers edits Entries in place.
type ExtractedFile struct {
	Filename string
	Account  string
	Entries  []Directive
}

// transferKey buckets candidate transactions by date and hour. Transactions
// without a recorded time land in the midnight bucket.
type transferKey struct {
	on   Date
	time string
}

type transferCandidate struct {
	value decimal.Decimal
	tx    *Transaction
}

// DetectTransfers merges pairs of transactions that are really one
// inter-account transfer reported independently by both sides. It must run
// once, after all per-file merges, over the whole import batch.
//
// Two transactions pair up when they fall in the same (date, hour) bucket,
// their posting sums have opposite signs within a 1% tolerance, and their
// account sets differ. The first candidate found wins and each transaction
// merges at most once. The matched transaction's postings are appended to the
// earlier one and the matched transaction is dropped from its file's output.
func DetectTransfers(extracted []*ExtractedFile) {
	candidates := make(map[transferKey][]transferCandidate)
	for _, file := range extracted {
		kept := make([]Directive, 0, len(file.Entries))
		for _, entry := range file.Entries {
			tx, ok := entry.(*Transaction)
			if !ok {
				kept = append(kept, entry)
				continue
			}
			k, v := transferInfo(tx)
			matched := false
			for i, c := range candidates[k] {
				if oppositeWithinTolerance(c.value, v) && !sameAccounts(c.tx, tx) {
					c.tx.Postings = append(c.tx.Postings, tx.Postings...)
					// Merged transactions are out of the game on both sides.
					candidates[k] = append(candidates[k][:i], candidates[k][i+1:]...)
					matched = true
					break
				}
			}
			if !matched {
				candidates[k] = append(candidates[k], transferCandidate{value: v, tx: tx})
				kept = append(kept, entry)
			}
		}
		file.Entries = kept
	}
}

func transferInfo(tx *Transaction) (transferKey, decimal.Decimal) {
	bucket := "00:00:00"
	if c, ok := tx.Time(); ok {
		bucket = c.RoundHour().String()
	}
	return transferKey{on: tx.Date, time: bucket}, tx.Sum()
}

// oppositeWithinTolerance reports whether v1 and v2 have opposite signs and
// absolute values within 1% of each other.
//
// Values of different currencies are summed and compared numerically. This is
// a deliberate approximation carried over from years of real statements: a
// transfer's two sides are almost always same-currency, and the 1% band
// absorbs transfer fees, not exchange rates.
func oppositeWithinTolerance(v1, v2 decimal.Decimal) bool {
	if (v1.IsPositive() && v2.IsPositive()) || (v1.IsNegative() && v2.IsNegative()) {
		return false
	}
	if v2.IsZero() {
		return false
	}
	diff := v1.Div(v2).Abs().Sub(decimal.NewFromInt(1)).Abs().Round(2)
	return diff.LessThanOrEqual(decimal.NewFromFloat(0.01))
}

func sameAccounts(t1, t2 *Transaction) bool {
	a1, a2 := t1.Accounts(), t2.Accounts()
	if len(a1) != len(a2) {
		return false
	}
	for i := range a1 {
		if a1[i] != a2[i] {
			return false
		}
	}
	return true
}
