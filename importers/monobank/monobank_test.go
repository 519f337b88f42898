package monobank

import (
	"strings"
	"testing"

	"github.com/OSadovy/uabean"
)

const header = `"Дата i час операції","Деталі операції",MCC,"Сума в валюті картки (UAH)","Сума в валюті операції",Валюта,Курс,"Сума комісій (UAH)","Сума кешбеку (UAH)","Залишок після операції"`

func testImporter() *Importer {
	return New(
		map[AccountKey]string{
			{"black", "UAH"}: "Assets:Monobank:Black:UAH",
		},
		map[string]string{
			"5411": "Grocery Stores",
			"4829": "Money Transfer",
		},
	)
}

func statementFile(lines ...string) *uabean.File {
	return uabean.NewFileFromBytes("monobank-black-UAH_22-10-22_14-24-57.csv",
		[]byte(strings.Join(append([]string{header}, lines...), "\n")))
}

func extract(t *testing.T, f *uabean.File) []uabean.Directive {
	t.Helper()
	directives, err := testImporter().Extract(f, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	return directives
}

func TestIdentify(t *testing.T) {
	if !testImporter().Identify(statementFile()) {
		t.Error("Identify() = false for a monobank statement")
	}
	other := uabean.NewFileFromBytes("other.csv", []byte("date,amount\n"))
	if testImporter().Identify(other) {
		t.Error("Identify() = true for an unrelated csv")
	}
}

func TestAccountFromFileName(t *testing.T) {
	if got, want := testImporter().Account(statementFile()), "Assets:Monobank:Black:UAH"; got != want {
		t.Errorf("Account() = %q, want %q", got, want)
	}
}

func TestExtractPurchase(t *testing.T) {
	f := statementFile(
		`22.10.2022 12:13:14,Сільпо,5411,-450.50,-450.50,UAH,—,—,—,10000.00`,
	)
	directives := extract(t, f)
	if len(directives) != 2 {
		t.Fatalf("got %d directives, want transaction + balance", len(directives))
	}
	tx := directives[0].(*uabean.Transaction)
	if tx.Payee != "Сільпо" {
		t.Errorf("payee = %q", tx.Payee)
	}
	if got := tx.Meta[uabean.MetaCategory]; got != "Grocery Stores" {
		t.Errorf("category = %q", got)
	}
	if got := tx.Meta[uabean.MetaTime]; got != "12:13:14" {
		t.Errorf("time = %q", got)
	}
	if len(tx.Postings) != 1 {
		t.Fatalf("got %d postings, want 1", len(tx.Postings))
	}
	if got, want := tx.Postings[0].Units, uabean.A(-450.5, "UAH"); !got.Equal(want) {
		t.Errorf("units = %s, want %s", got, want)
	}

	balance := directives[1].(*uabean.BalanceAssertion)
	if got, want := balance.Date, uabean.NewDate(2022, 10, 23); got != want {
		t.Errorf("balance date = %s, want %s (day after last transaction)", got, want)
	}
	if got, want := balance.Amount, uabean.A(10000, "UAH"); !got.Equal(want) {
		t.Errorf("balance = %s, want %s", got, want)
	}
}

func TestExtractForeignCurrency(t *testing.T) {
	f := statementFile(
		`05.11.2022 10:00:00,Amazon,5411,-402.00,-10.00,USD,40.200000,—,—,5000.00`,
	)
	tx := extract(t, f)[0].(*uabean.Transaction)
	p := tx.Postings[0]
	if p.Price == nil {
		t.Fatal("no price annotation on a converted posting")
	}
	if got, want := *p.Price, uabean.A(0.024876, "USD"); !got.Equal(want) {
		t.Errorf("price = %s, want %s", got, want)
	}
	if got := tx.Meta[uabean.MetaConverted]; got != "-10.00 USD" {
		t.Errorf("converted = %q", got)
	}
}

func TestExtractCashback(t *testing.T) {
	f := statementFile(
		`22.10.2022 12:13:14,Сільпо,5411,-450.50,-450.50,UAH,—,—,9.01,10000.00`,
	)
	tx := extract(t, f)[0].(*uabean.Transaction)
	if len(tx.Postings) != 3 {
		t.Fatalf("got %d postings, want card + cashback income + receivable", len(tx.Postings))
	}
	if got, want := tx.Postings[1].Units, uabean.A(-9.01, "UAH"); !got.Equal(want) {
		t.Errorf("cashback income = %s, want %s", got, want)
	}
	if got, want := tx.Postings[2].Units, uabean.A(9.01, "UAH"); !got.Equal(want) {
		t.Errorf("cashback receivable = %s, want %s", got, want)
	}
}

func TestExtractCashbackWithdrawal(t *testing.T) {
	f := statementFile(
		`01.11.2022 09:00:00,Виведення кешбеку 100.00,4829,81.00,81.00,UAH,—,—,—,10081.00`,
	)
	tx := extract(t, f)[0].(*uabean.Transaction)
	if tx.Narration != "Виведення кешбеку 100.00" || tx.Payee != "" {
		t.Errorf("payee/narration = %q/%q", tx.Payee, tx.Narration)
	}
	if _, ok := tx.Meta[uabean.MetaCategory]; ok {
		t.Error("cashback withdrawal should not carry a category")
	}
	if len(tx.Postings) != 3 {
		t.Fatalf("got %d postings, want receivable + taxes + card", len(tx.Postings))
	}
	if got, want := tx.Postings[0].Units, uabean.A(-100, "UAH"); !got.Equal(want) {
		t.Errorf("receivable = %s, want %s", got, want)
	}
	if got, want := tx.Postings[1].Account, "Expenses:Taxes"; got != want {
		t.Errorf("taxes account = %q", got)
	}
}

func TestExtractInterest(t *testing.T) {
	f := statementFile(
		`01.12.2022 00:01:02,Відсотки за листопад,4829,55.00,55.00,UAH,—,—,—,10136.00`,
	)
	tx := extract(t, f)[0].(*uabean.Transaction)
	if len(tx.Postings) != 2 {
		t.Fatalf("got %d postings, want interest income + card", len(tx.Postings))
	}
	if got, want := tx.Postings[0].Account, "Income:Monobank:Interest"; got != want {
		t.Errorf("interest account = %q", got)
	}
	if got, want := tx.Postings[0].Units, uabean.A(-55, "UAH"); !got.Equal(want) {
		t.Errorf("interest units = %s, want %s", got, want)
	}
}
