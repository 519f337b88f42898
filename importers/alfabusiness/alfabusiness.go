// Package alfabusiness imports statement CSV files exported from the
// Alfabank Business Online web app.
//
// The CSV is windows-1251 encoded, semicolon separated, with the header:
//
//	Наш рахунок;Наш IBAN;Операція;Рахунок;IBAN;МФО банку контрагента;Найменування контрагента;Код контрагента;Призначення платежу;Дата проведення;Номер документа;Сума;Валюта;Час проведення;Дата документа;Дата архівування;Ід.код;Найменування;МФО
package alfabusiness

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/OSadovy/uabean"
)

const (
	headerMarker = "Наш рахунок;Наш IBAN;Операція"
	dateField    = "Дата проведення"
)

var feeRegexes = []*regexp.Regexp{
	regexp.MustCompile("Погашення комісії"),
}

var conversionSpec = &uabean.ConversionSpec{
	Pattern: regexp.MustCompile(
		`Зарахування коштiв вiд вільного продажу (?P<amount>[\d\.]+) (?P<currency>\w+) по курсу (?P<rate>[\d\.]+).*?Комiсiя банку становить (?P<fee>[\d\.]+) грн\.`),
	RateCurrncy: "UAH",
}

// AccountKey selects the ledger account for a statement row.
type AccountKey struct {
	Currency string
	IBAN     string
}

// Importer converts Alfabank Business statements into ledger directives.
type Importer struct {
	// Accounts maps (currency, IBAN) pairs to ledger account names.
	Accounts map[AccountKey]string
	// FeeAccount receives bank commission postings.
	FeeAccount string
}

// New creates an Importer with the given account mapping.
func New(accounts map[AccountKey]string, feeAccount string) *Importer {
	return &Importer{Accounts: accounts, FeeAccount: feeAccount}
}

func (imp *Importer) Name() string { return "alfabusiness" }

func (imp *Importer) Account(_ *uabean.File) string { return "alfabank_business" }

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
	merger := &uabean.Merger{Conversion: conversionSpec, FeeAccount: imp.FeeAccount}
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
	on, _, err := uabean.ParseDayFirst(row[dateField])
	if err != nil {
		return nil, err
	}
	k := AccountKey{Currency: row["Валюта"], IBAN: row["Наш IBAN"]}
	account, ok := imp.Accounts[k]
	if !ok {
		return nil, fmt.Errorf("unknown account %s %s", k.Currency, k.IBAN)
	}
	tx := uabean.NewTransaction(on, row["Найменування контрагента"], "")
	tx.Meta[uabean.MetaTime] = row["Час проведення"]
	tx.Meta[uabean.MetaSrcDocN] = row["Номер документа"]
	tx.Meta[uabean.MetaSrcPurpose] = row["Призначення платежу"]

	units, err := uabean.ParseAmount(row["Сума"], row["Валюта"])
	if err != nil {
		return nil, err
	}
	switch op := row["Операція"]; op {
	case "Дебет":
		units = units.Neg()
	case "Кредит":
	default:
		return nil, fmt.Errorf("unknown operation %q", op)
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
