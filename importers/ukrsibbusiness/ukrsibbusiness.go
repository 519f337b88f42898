// Package ukrsibbusiness imports statement CSV files exported from the
// Ukrsib Business Online web app.
//
// The CSV is windows-1251 encoded, semicolon separated, with the header:
//
//	"ЄДРПОУ";"МФО";"Рахунок";"Валюта";"Дата операцiї";"Код операцiї";"МФО банка";"Назва банка";"Рахунок кореспондента";"ЄДРПОУ кореспондента";"Кореспондент";"Номер документа";"Дата документа";"Дебет";"Кредит";"Призначення платежу";"Гривневе покриття";
package ukrsibbusiness

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/OSadovy/uabean"
)

const (
	headerMarker = `"ЄДРПОУ";"МФО";"Рахунок"`
	dateField    = "Дата операцiї"
)

var feeRegexes = []*regexp.Regexp{
	regexp.MustCompile("Комісія по рах"),
	regexp.MustCompile("Списання комісії по рахунку"),
}

// Ukrsib quotes the sale rate multiplied by 100 and never splices the
// commission into the conversion; the fee arrives as its own statement row.
var conversionSpec = &uabean.ConversionSpec{
	Pattern: regexp.MustCompile(
		`Гр.экв.продажу (?P<amount>[\d\.]+) (?P<currency>\w+) на МВР .*?, ЗГІДНО ЗАЯВИ КЛІЄНТА № \d+ \.Курс (?P<rate>[\d\.]+)\.Ком.банку (?P<fee>[\d\.]+)\.`),
	RateCurrncy: "UAH",
	RateScale:   decimal.NewFromInt(100),
}

// AccountKey selects the ledger account for a statement row.
type AccountKey struct {
	Currency string
	Number   string
}

// Importer converts Ukrsib Business statements into ledger directives.
type Importer struct {
	// Accounts maps (currency, account number) pairs to ledger accounts.
	Accounts map[AccountKey]string
	// FeeAccount receives bank commission postings.
	FeeAccount string
}

func New(accounts map[AccountKey]string, feeAccount string) *Importer {
	return &Importer{Accounts: accounts, FeeAccount: feeAccount}
}

func (imp *Importer) Name() string { return "ukrsibbusiness" }

func (imp *Importer) Account(_ *uabean.File) string { return "ukrsib" }

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
	merger := &uabean.Merger{Conversion: conversionSpec}
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
	tx.Meta[uabean.MetaSrcDocN] = row["Номер документа"]
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

// debitOrCredit reads the signed amount of a row that reports movements in
// separate debit and credit columns, debits being outflows.
func debitOrCredit(debit, credit, currency string) (uabean.Amount, error) {
	if debit != "" {
		a, err := uabean.ParseAmount(debit, currency)
		return a.Neg(), err
	}
	return uabean.ParseAmount(credit, currency)
}
