package uabean

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Well-known metadata keys shared between the importers and the core passes.
const (
	MetaTime        = "time"        // time of day of the operation, "15:04:05"
	MetaSrcDocN     = "src_doc_n"   // provider-assigned document number
	MetaSrcPurpose  = "src_purpose" // free-text payment purpose
	MetaOtherDocN   = "other_src_doc_n"
	MetaConverted   = "converted" // original amount for converted operations
	MetaCategory    = "category"
	MetaTrueCost    = "true_cost" // per-lot cost including commission
	MetaSrcID       = "src_id"
	MetaPerShare    = "per_share"
	MetaISIN        = "isin"
	MetaDividend    = "div"
	MetaDividendTyp = "div_type"
)

// Metadata carries free-form annotations on transactions and postings.
type Metadata map[string]string

// Clone returns a shallow copy, safe to mutate independently.
func (m Metadata) Clone() Metadata {
	c := make(Metadata, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// CostSpec records the cost basis of an asset posting: the per-unit price at
// acquisition, its currency and the acquisition date. Number is nil when the
// cost could not be established (lot shortfall, see Holdings.Close).
type CostSpec struct {
	Number   *decimal.Decimal
	Currency string
	Date     Date
}

// Posting is one account/amount line within a transaction.
type Posting struct {
	Account string
	Units   Amount
	Cost    *CostSpec
	Price   *Amount // per-unit conversion price annotation
	Flag    string
	Meta    Metadata
}

// Transaction is a dated group of postings with free-form annotations.
// Posting order is significant: the first posting is the primary leg, and
// conversion legs must precede the fee legs that explain them.
type Transaction struct {
	Date      Date
	Flag      string
	Payee     string
	Narration string
	Meta      Metadata
	Postings  []Posting
}

// FlagOkay marks a regular, confirmed transaction.
const FlagOkay = "*"

// NewTransaction creates an empty transaction dated on the given day.
func NewTransaction(on Date, payee, narration string) *Transaction {
	return &Transaction{Date: on, Flag: FlagOkay, Payee: payee, Narration: narration, Meta: make(Metadata)}
}

// When returns the transaction date.
func (t *Transaction) When() Date { return t.Date }

// Time returns the recorded time of day, if any.
func (t *Transaction) Time() (Clock, bool) {
	s, ok := t.Meta[MetaTime]
	if !ok {
		return Clock{}, false
	}
	c, err := ParseClock(s)
	if err != nil {
		return Clock{}, false
	}
	return c, true
}

// Sum returns the numeric sum of all posting amounts, ignoring currencies.
// Cross-currency sums are only meaningful as a transfer-matching heuristic.
func (t *Transaction) Sum() decimal.Decimal {
	var s decimal.Decimal
	for _, p := range t.Postings {
		s = s.Add(p.Units.Decimal())
	}
	return s
}

// Accounts returns the sorted set of accounts named by the postings.
func (t *Transaction) Accounts() []string {
	var accounts []string
	for _, p := range t.Postings {
		if !slices.Contains(accounts, p.Account) {
			accounts = append(accounts, p.Account)
		}
	}
	slices.Sort(accounts)
	return accounts
}

// BalanceAssertion is a checkpoint declaring the expected balance of an
// account as of a date. It is always dated one day after the last transaction
// it summarizes, since it asserts the balance at the start of the next day.
type BalanceAssertion struct {
	Date    Date
	Account string
	Amount  Amount
}

// When returns the assertion date.
func (b *BalanceAssertion) When() Date { return b.Date }

// Open declares an account from a given date on. Emitted by importers that
// map each symbol to its own subaccount.
type Open struct {
	Date       Date
	Account    string
	Currencies []string
}

// When returns the open date.
func (o *Open) When() Date { return o.Date }

// Directive is any dated entry an importer can produce.
type Directive interface {
	When() Date
}

// SortDirectives orders directives by date, keeping the relative order of
// same-day entries stable.
func SortDirectives(entries []Directive) {
	slices.SortStableFunc(entries, func(a, b Directive) int {
		switch {
		case a.When().Before(b.When()):
			return -1
		case a.When().After(b.When()):
			return 1
		}
		return 0
	})
}
