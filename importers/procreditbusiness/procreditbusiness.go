// Package procreditbusiness imports statement CSV files exported from the
// Procredit Business Online web app.
//
// The CSV is windows-1251 encoded, semicolon separated, with one of two
// headers, both starting with:
//
//	ЄДРПОУ;Код ID НБУ;Рахунок;Валюта;Дата операції;Код операції
package procreditbusiness

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/OSadovy/uabean"
)

const (
	headerMarker = "ЄДРПОУ;Код ID НБУ;Рахунок;Валюта;Дата операції;Код операції"
	dateField    = "Дата операції"
)

var feeRegexes = []*regexp.Regexp{
	regexp.MustCompile("Сплата комісії"),
	regexp.MustCompile("Комісія за переказ в національній валюті"),
}

// Amounts inside the purpose text use a decimal comma.
var conversionSpec = &uabean.ConversionSpec{
	Pattern: regexp.MustCompile(
		`Кошти від продажу валюти в сумі (?P<amount>[\d.,]+) (?P<currency>\w+) на МВРУ згідно заявки № \d*\.За курсом (?P<rate>[\d.,]+)\.Банк\. коміс\. грн\.- (?P<fee>[\d.,]+)\.`),
	RateCurrncy: "UAH",
}

// AccountKey selects the ledger account for a statement row.
type AccountKey struct {
	Currency string
	Number   string
}

// Importer converts Procredit Business statements into ledger directives.
type Importer struct {
	// Accounts maps (currency, account number) pairs to ledger accounts.
	Accounts map[AccountKey]string
	// FeeAccount receives bank commission postings.
	FeeAccount string
}

func New(accounts map[AccountKey]string, feeAccount string) *Importer {
	return &Importer{Accounts: accounts, FeeAccount: feeAccount}
}

func (imp *Importer) Name() string { return "procreditbusiness" }

func (imp *Importer) Account(_ *uabean.File) string { return "procreditbank-business" }

func (imp *Importer) Identify(f *uabean.File) bool {
	data, err := f.Contents()
	if err != nil {
		return false
	}
	decoded, err := uabean.DecodeWin1251(data)
	if err != nil {
		return false
	}
	return bytes.Contains(decoded, []byte(headerMarker))
}

func (imp *Importer) rows(f *uabean.File) ([]map[string]string, error) {
	return uabean.Win1251CSVRows(f, ';')
}

// Date returns the maximum operation date found in the file.
func (imp *Importer) Date(f *uabean.File) (uabean.Date, error) {
	rows, err := imp.rows(f)
	if err != nil {
		return uabean.Date{}, err
	}
	var max uabean.Date
	for _, row := range rows {
		on, _, err := uabean.ParseDayFirst(row[dateField])
		if err != nil {
			return uabean.Date{}, err
		}
		if max.IsZero() || on.After(max) {
			max = on
		}
	}
	return max, nil
}

func (imp *Importer) Extract(f *uabean.File, _ []uabean.Directive) ([]uabean.Directive, error) {
	rows, err := imp.rows(f)
	if err != nil {
		return nil, err
	}
	entries := make([]*uabean.Transaction, 0, len(rows))
	for i, row := range rows {
		entry, err := imp.entryFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", f.Name(), i+2, err)
		}
		entries = append(entries, entry)
	}
	// Procredit reuses document numbers across unrelated rows, so the
	// same-document pass additionally demands exactly opposite legs.
	merger := &uabean.Merger{Conversion: conversionSpec, RequireOppositeLegs: true}
	merged, err := merger.Merge(entries)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name(), err)
	}
	out := make([]uabean.Directive, 0, len(merged))
	for _, e := range merged {
		out = append(out, e)
	}
	return out, nil
}

func (imp *Importer) entryFromRow(row map[string]string) (*uabean.Transaction, error) {
	on, clk, err := uabean.ParseDayFirst(row[dateField])
	if err != nil {
		return nil, err
	}
	k := AccountKey{Currency: row["Валюта"], Number: row["Рахунок"]}
	account, ok := imp.Accounts[k]
	if !ok {
		return nil, fmt.Errorf("unknown account %s %s", k.Currency, k.Number)
	}
	tx := uabean.NewTransaction(on, row["Кореспондент"], "")
	if strings.Contains(row[dateField], " ") {
		tx.Meta[uabean.MetaTime] = clk.String()
	}
	tx.Meta[uabean.MetaSrcDocN] = row["Код операції"] + " " + row["Номер документа"]
	tx.Meta[uabean.MetaSrcPurpose] = row["Призначення платежу"]

	units, err := debitOrCredit(row["Дебет"], row["Кредит"], row["Валюта"])
	if err != nil {
		return nil, err
	}
	tx.Postings = append(tx.Postings, uabean.Posting{Account: account, Units: units})
	for _, re := range feeRegexes {
		if re.MatchString(row["Призначення платежу"]) {
			tx.Postings = append(tx.Postings, uabean.Posting{Account: imp.FeeAccount, Units: units.Neg()})
			break
		}
	}
	return tx, nil
}

func debitOrCredit(debit, credit, currency string) (uabean.Amount, error) {
	if debit != "" {
		a, err := uabean.ParseAmount(debit, currency)
		return a.Neg(), err
	}
	return uabean.ParseAmount(credit, currency)
}
