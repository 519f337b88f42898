package uabean

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestEncodeTransaction(t *testing.T) {
	tx := NewTransaction(NewDate(2023, 1, 15), "Сільпо", "groceries")
	tx.Meta[MetaTime] = "14:24:57"
	tx.Meta[MetaCategory] = "Grocery Stores"
	cost := decimal.RequireFromString("100")
	price := A(38.5, "UAH")
	tx.Postings = []Posting{
		{Account: "Assets:Monobank:UAH", Units: A(-250, "UAH"), Meta: Metadata{MetaConverted: "-6.50 USD"}},
		{
			Account: "Assets:Investments:IB:AAPL",
			Units:   A(10, "AAPL"),
			Cost:    &CostSpec{Number: &cost, Currency: "USD", Date: NewDate(2023, 1, 10)},
			Price:   &price,
		},
		{Account: "Expenses:Fees", Units: A(1, "USD"), Flag: "C"},
		{Account: "Income:PnL"}, // elided amount
	}

	var b strings.Builder
	if err := Encode(&b, []Directive{tx}); err != nil {
		t.Fatal(err)
	}
	want := `2023-01-15 * "Сільпо" "groceries"
  category: "Grocery Stores"
  time: "14:24:57"
  Assets:Monobank:UAH  -250.00 UAH
    converted: "-6.50 USD"
  Assets:Investments:IB:AAPL  10 AAPL {100 USD, 2023-01-10} @ 38.50 UAH
  C Expenses:Fees  1.00 USD
  Income:PnL
`
	if b.String() != want {
		t.Errorf("Encode:\n%s\nwant:\n%s", b.String(), want)
	}
}

func TestEncodeBalanceAndOpen(t *testing.T) {
	entries := []Directive{
		&BalanceAssertion{Date: NewDate(2023, 2, 1), Account: "Assets:Monobank:UAH", Amount: A(1750, "UAH")},
		&Open{Date: NewDate(2023, 1, 10), Account: "Assets:Investments:IB:AAPL", Currencies: []string{"AAPL", "USD"}},
	}
	var b strings.Builder
	if err := Encode(&b, entries); err != nil {
		t.Fatal(err)
	}
	want := `2023-02-01 balance Assets:Monobank:UAH  1750.00 UAH

2023-01-10 open Assets:Investments:IB:AAPL AAPL,USD
`
	if b.String() != want {
		t.Errorf("Encode:\n%s\nwant:\n%s", b.String(), want)
	}
}

func TestEncodeDateOnlyCost(t *testing.T) {
	tx := NewTransaction(NewDate(2023, 3, 1), "", "")
	tx.Postings = []Posting{
		{Account: "Assets:Investments:IB:AAPL", Units: A(-10, "AAPL"), Cost: &CostSpec{Date: NewDate(2023, 1, 10)}},
	}
	var b strings.Builder
	if err := Encode(&b, []Directive{tx}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(b.String(), "-10 AAPL {2023-01-10}") {
		t.Errorf("date-only cost rendered as:\n%s", b.String())
	}
}
