package uabean

import (
	"regexp"
	"strings"
	"testing"
)

func tx(day string, doc, purpose string, postings ...Posting) *Transaction {
	t := NewTransaction(MustParseDate(day), "", "")
	t.Meta[MetaSrcDocN] = doc
	t.Meta[MetaSrcPurpose] = purpose
	t.Postings = postings
	return t
}

func post(account string, value float64, currency string) Posting {
	return Posting{Account: account, Units: A(value, currency)}
}

func TestMerger_SameDocument(t *testing.T) {
	m := &Merger{}
	entries := []*Transaction{
		tx("2024-03-05", "D1", "payment", post("Assets:Cash", 50, "UAH")),
		tx("2024-03-05", "D2", "unrelated", post("Assets:Cash", 7, "UAH")),
		tx("2024-03-05", "D1", "fee line", post("Expenses:Fees", -50, "UAH")),
	}
	got, err := m.Merge(entries)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	merged := got[0]
	if len(merged.Postings) != 2 {
		t.Fatalf("merged postings = %d, want 2", len(merged.Postings))
	}
	// Document order is preserved: the first row's posting stays first.
	if merged.Postings[0].Account != "Assets:Cash" || merged.Postings[1].Account != "Expenses:Fees" {
		t.Errorf("posting order = [%s %s], want [Assets:Cash Expenses:Fees]",
			merged.Postings[0].Account, merged.Postings[1].Account)
	}
}

func TestMerger_SameDocumentRequiresOppositeLegs(t *testing.T) {
	m := &Merger{RequireOppositeLegs: true}
	entries := []*Transaction{
		tx("2024-03-05", "D1", "", post("Assets:Cash", 50, "UAH")),
		tx("2024-03-05", "D1", "", post("Assets:Transit", 30, "UAH")),
	}
	got, err := m.Merge(entries)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len(got) = %d, want 2 (amounts are not negations)", len(got))
	}

	entries = []*Transaction{
		tx("2024-03-05", "D1", "", post("Assets:Cash", 50, "UAH")),
		tx("2024-03-05", "D1", "", post("Assets:Transit", -50, "UAH")),
	}
	got, err = m.Merge(entries)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("len(got) = %d, want 1", len(got))
	}
}

var testConversion = &ConversionSpec{
	Pattern: regexp.MustCompile(
		`sold (?P<amount>[\d.]+) (?P<currency>\w+) at rate (?P<rate>[\d.]+) fee (?P<fee>[\d.]+)`),
	RateCurrncy: "UAH",
}

func TestMerger_ConversionSplice(t *testing.T) {
	m := &Merger{Conversion: testConversion, FeeAccount: "Expenses:Fees"}
	primary := tx("2024-03-05", "77", "sold 1000.00 USD at rate 38.5 fee 5.00",
		post("Assets:Cash:UAH", 38495, "UAH"))
	counter := tx("2024-03-05", "78", "debit of currency sale",
		post("Assets:Cash:USD", -1000, "USD"))
	got, err := m.Merge([]*Transaction{primary, counter})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1 (counter entry removed)", len(got))
	}
	merged := got[0]
	if len(merged.Postings) != 3 {
		t.Fatalf("postings = %d, want 3", len(merged.Postings))
	}
	// Order: counter leg priced at the rate, then the fee, then the primary.
	if merged.Postings[0].Account != "Assets:Cash:USD" {
		t.Errorf("postings[0].Account = %s, want Assets:Cash:USD", merged.Postings[0].Account)
	}
	if merged.Postings[0].Price == nil || !merged.Postings[0].Price.Equal(A(38.5, "UAH")) {
		t.Errorf("postings[0].Price = %v, want 38.5 UAH", merged.Postings[0].Price)
	}
	if merged.Postings[1].Account != "Expenses:Fees" || !merged.Postings[1].Units.Equal(A(5.0, "UAH")) {
		t.Errorf("postings[1] = %s %s, want Expenses:Fees 5.00 UAH",
			merged.Postings[1].Account, merged.Postings[1].Units)
	}
	if merged.Postings[2].Account != "Assets:Cash:UAH" {
		t.Errorf("postings[2].Account = %s, want Assets:Cash:UAH", merged.Postings[2].Account)
	}
	if merged.Meta[MetaOtherDocN] != "78" {
		t.Errorf("other doc = %q, want 78", merged.Meta[MetaOtherDocN])
	}
}

func TestMerger_ConversionWithoutCounterEntry(t *testing.T) {
	m := &Merger{Conversion: testConversion, FeeAccount: "Expenses:Fees"}
	entries := []*Transaction{
		tx("2024-03-05", "77", "sold 1000.00 USD at rate 38.5 fee 5.00",
			post("Assets:Cash:UAH", 38495, "UAH")),
		tx("2024-03-05", "78", "unrelated", post("Assets:Cash:UAH", -10, "UAH")),
	}
	_, err := m.Merge(entries)
	if err == nil {
		t.Fatal("Merge() error = nil, want inconsistent statement error")
	}
	if !strings.Contains(err.Error(), "no counter entry") {
		t.Errorf("error = %v, want mention of missing counter entry", err)
	}
}

func TestMerger_RateScale(t *testing.T) {
	spec := &ConversionSpec{
		Pattern: regexp.MustCompile(
			`sold (?P<amount>[\d.]+) (?P<currency>\w+) at rate (?P<rate>[\d.]+)`),
		RateCurrncy: "UAH",
		RateScale:   newDecimal(100),
	}
	m := &Merger{Conversion: spec}
	primary := tx("2024-03-05", "1", "sold 100.00 EUR at rate 4150",
		post("Assets:Cash:UAH", 4150, "UAH"))
	counter := tx("2024-03-05", "2", "", post("Assets:Cash:EUR", -100, "EUR"))
	got, err := m.Merge([]*Transaction{primary, counter})
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if p := got[0].Postings[0].Price; p == nil || !p.Equal(A(41.5, "UAH")) {
		t.Errorf("price = %v, want 41.50 UAH", p)
	}
}

func TestMerger_SingleEntryGroupsUntouched(t *testing.T) {
	m := &Merger{Conversion: testConversion, FeeAccount: "Expenses:Fees"}
	// A conversion-looking entry alone in its date group is left alone: the
	// merger only inspects groups with at least two entries.
	entries := []*Transaction{
		tx("2024-03-05", "77", "sold 1000.00 USD at rate 38.5 fee 5.00",
			post("Assets:Cash:UAH", 38495, "UAH")),
	}
	got, err := m.Merge(entries)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if len(got) != 1 || len(got[0].Postings) != 1 {
		t.Errorf("entry was modified, want untouched single posting")
	}
}
