package uabean

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// ConversionSpec describes how a provider words a currency sale in the
// payment-purpose text. The pattern must expose named groups "amount",
// "currency", "rate" and, for providers that report one, "fee".
type ConversionSpec struct {
	Pattern     *regexp.Regexp
	RateCurrncy string          // currency the rate and fee are quoted in
	RateScale   decimal.Decimal // divisor applied to the parsed rate; zero means 1
}

// conversion is one parsed match of a ConversionSpec.
type conversion struct {
	amount Amount
	rate   Amount
	fee    *Amount
}

func (s *ConversionSpec) parse(purpose string) (*conversion, error) {
	m := s.Pattern.FindStringSubmatch(purpose)
	if m == nil {
		return nil, nil
	}
	group := func(name string) string {
		i := s.Pattern.SubexpIndex(name)
		if i < 0 || i >= len(m) {
			return ""
		}
		return m[i]
	}
	amount, err := ParseAmount(group("amount"), group("currency"))
	if err != nil {
		return nil, fmt.Errorf("conversion amount: %w", err)
	}
	rate, err := ParseAmount(group("rate"), s.RateCurrncy)
	if err != nil {
		return nil, fmt.Errorf("conversion rate: %w", err)
	}
	if !s.RateScale.IsZero() {
		rate = A(rate.Decimal().Div(s.RateScale), rate.Currency())
	}
	c := &conversion{amount: amount, rate: rate}
	if fs := group("fee"); fs != "" {
		fee, err := ParseAmount(fs, s.RateCurrncy)
		if err != nil {
			return nil, fmt.Errorf("conversion fee: %w", err)
		}
		c.fee = &fee
	}
	return c, nil
}

// Merger collapses raw per-row transactions of a single statement that
// represent one real-world payment.
type Merger struct {
	// Conversion, when set, enables reconstruction of currency conversion
	// pairs from the purpose text.
	Conversion *ConversionSpec
	// FeeAccount receives the bank fee posting spliced into conversions.
	FeeAccount string
	// RequireOppositeLegs restricts the same-document pairing to entries
	// whose primary legs are exact negations of each other.
	RequireOppositeLegs bool
}

// Merge reconciles the statement's entries, all extracted from one file.
// Entries are grouped by date; within each group it first concatenates pairs
// reported under the same document number, then splices currency conversion
// counter-legs. The input order decides every tie: the earliest remaining
// candidate wins.
//
// Entries are never removed mid-iteration; consumed ones are marked in a
// side table and filtered out at the end.
func (m *Merger) Merge(entries []*Transaction) ([]*Transaction, error) {
	consumed := make([]bool, len(entries))

	var dates []Date
	groups := make(map[Date][]int)
	for i, e := range entries {
		if _, seen := groups[e.Date]; !seen {
			dates = append(dates, e.Date)
		}
		groups[e.Date] = append(groups[e.Date], i)
	}

	for _, on := range dates {
		group := groups[on]
		if len(group) == 1 {
			continue
		}
		if err := m.mergeSameDocument(entries, consumed, group); err != nil {
			return nil, err
		}
		if m.Conversion != nil {
			if err := m.mergeConversions(entries, consumed, group); err != nil {
				return nil, err
			}
		}
	}

	out := make([]*Transaction, 0, len(entries))
	for i, e := range entries {
		if !consumed[i] {
			out = append(out, e)
		}
	}
	return out, nil
}

// mergeSameDocument pairs entries that the bank reported as two lines for one
// money movement under the same document number.
func (m *Merger) mergeSameDocument(entries []*Transaction, consumed []bool, group []int) error {
	for _, i := range group {
		if consumed[i] {
			continue
		}
		e := entries[i]
		doc := e.Meta[MetaSrcDocN]
		if doc == "" {
			continue
		}
		for _, j := range group {
			if j == i || consumed[j] {
				continue
			}
			other := entries[j]
			if other.Meta[MetaSrcDocN] != doc {
				continue
			}
			if m.RequireOppositeLegs && !other.Postings[0].Units.Equal(e.Postings[0].Units.Neg()) {
				continue
			}
			e.Postings = append(e.Postings, other.Postings...)
			consumed[j] = true
			break
		}
	}
	return nil
}

// mergeConversions reconstructs currency conversion pairs: an entry whose
// purpose text parses as a currency sale is matched with the entry holding
// the sold amount, and the pair is spliced into one transaction with the
// counter leg priced at the parsed rate.
func (m *Merger) mergeConversions(entries []*Transaction, consumed []bool, group []int) error {
	for _, i := range group {
		if consumed[i] {
			continue
		}
		e := entries[i]
		conv, err := m.Conversion.parse(e.Meta[MetaSrcPurpose])
		if err != nil {
			return fmt.Errorf("entry %s doc %s: %w", e.Date, e.Meta[MetaSrcDocN], err)
		}
		if conv == nil {
			continue
		}
		counter := -1
		want := conv.amount.Neg()
		for _, j := range group {
			if j == i || consumed[j] {
				continue
			}
			if entries[j].Postings[0].Units.Equal(want) {
				counter = j
				break
			}
		}
		if counter < 0 {
			return fmt.Errorf("inconsistent statement: no counter entry of %s for conversion on %s (doc %s)",
				want, e.Date, e.Meta[MetaSrcDocN])
		}
		other := entries[counter]

		// The counter leg comes first, priced at the parsed rate, so the
		// ledger engine books the conversion before the legs it explains.
		priced := other.Postings[0]
		rate := conv.rate
		priced.Price = &rate
		merged := make([]Posting, 0, len(e.Postings)+len(other.Postings)+1)
		merged = append(merged, priced)
		if conv.fee != nil && m.FeeAccount != "" {
			merged = append(merged, Posting{Account: m.FeeAccount, Units: *conv.fee})
		}
		merged = append(merged, e.Postings...)
		merged = append(merged, other.Postings[1:]...)
		e.Postings = merged
		e.Meta[MetaOtherDocN] = other.Meta[MetaSrcDocN]
		consumed[counter] = true
	}
	return nil
}
