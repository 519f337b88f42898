// Package monobank imports personal monobank csv statements, as produced by
// the mobile app export or by the statement downloader.
//
// The CSV header is:
//
//	"Дата i час операції","Деталі операції",MCC,"Сума в валюті картки (UAH)","Сума в валюті операції",Валюта,Курс,"Сума комісій (UAH)","Сума кешбеку (UAH)","Залишок після операції"
package monobank

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/OSadovy/uabean"
)

const notAvailable = "—"

const (
	colDate = iota
	colDescription
	colMCC
	colAmount
	colOrigAmount
	colCurrency
	colExchangeRate
	colCommission
	colCashback
	colRunningBalance
)

var (
	headerCurrencyRe = regexp.MustCompile(`\((\w+)\)`)
	cashbackOutRe    = regexp.MustCompile(`^Виведення кешбеку ([\d\.]+)`)
	interestRe       = regexp.MustCompile(`^Відсотки за `)
)

// AccountKey selects the ledger account by the card type and currency that
// the statement file is named after.
type AccountKey struct {
	Type     string // "black", "white", "fop"...
	Currency string
}

// Importer converts monobank csv statements into ledger directives.
type Importer struct {
	// Accounts maps (card type, currency) to the ledger account, matching
	// the "monobank-<type>-<currency>_..." file naming of the downloader.
	Accounts map[AccountKey]string
	// Categories names MCC codes for the category metadata. Usually
	// populated with FetchCategories; rows with unlisted codes keep the
	// bare code.
	Categories map[string]string

	CashbackIncomeAccount     string
	CashbackReceivableAccount string
	TaxesExpenseAccount       string
	InterestIncomeAccount     string
}

func New(accounts map[AccountKey]string, categories map[string]string) *Importer {
	return &Importer{
		Accounts:                  accounts,
		Categories:                categories,
		CashbackIncomeAccount:     "Income:Cashback:Monobank",
		CashbackReceivableAccount: "Assets:Monobank:Receivable:Cashback",
		TaxesExpenseAccount:       "Expenses:Taxes",
		InterestIncomeAccount:     "Income:Monobank:Interest",
	}
}

// CategoriesURL is a community-maintained MCC registry.
const CategoriesURL = "https://raw.githubusercontent.com/Oleksios/Merchant-Category-Codes/main/Without%20groups/mcc-en.json"

// FetchCategories downloads the MCC code table used for category metadata.
func FetchCategories(client *http.Client) (map[string]string, error) {
	var codes []struct {
		MCC              string `json:"mcc"`
		ShortDescription string `json:"shortDescription"`
	}
	if err := uabean.FetchJSON(client, CategoriesURL, nil, &codes); err != nil {
		return nil, fmt.Errorf("cannot fetch mcc codes: %w", err)
	}
	m := make(map[string]string, len(codes))
	for _, c := range codes {
		m[c.MCC] = c.ShortDescription
	}
	return m, nil
}

func (imp *Importer) Name() string { return "monobank" }

func (imp *Importer) Identify(f *uabean.File) bool {
	if !strings.HasPrefix(f.Name(), "monobank-") {
		return false
	}
	return f.HeadContains("Дата i час операції")
}

// Account resolves the ledger account from the statement file name, e.g.
// monobank-black-UAH_22-10-22_14-24-57.csv.
func (imp *Importer) Account(f *uabean.File) string {
	parts := strings.Split(strings.SplitN(f.Name(), "_", 2)[0], "-")
	if len(parts) < 3 {
		return ""
	}
	return imp.Accounts[AccountKey{Type: parts[1], Currency: parts[2]}]
}

func (imp *Importer) rows(f *uabean.File) (header []string, rows [][]string, err error) {
	data, err := f.Contents()
	if err != nil {
		return nil, nil, err
	}
	records, err := uabean.CSVRecords(data, ',')
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", f.Name(), err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[0], records[1:], nil
}

// Date returns the date of the last statement row.
func (imp *Importer) Date(f *uabean.File) (uabean.Date, error) {
	_, rows, err := imp.rows(f)
	if err != nil || len(rows) == 0 {
		return uabean.Date{}, err
	}
	on, _, err := uabean.ParseDayFirst(rows[len(rows)-1][colDate])
	return on, err
}

func (imp *Importer) Extract(f *uabean.File, _ []uabean.Directive) ([]uabean.Directive, error) {
	header, rows, err := imp.rows(f)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	account := imp.Account(f)
	if account == "" {
		return nil, fmt.Errorf("%s: cannot resolve account from file name", f.Name())
	}
	accountCur, err := headerCurrency(header[colAmount])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name(), err)
	}
	cashbackCur, err := headerCurrency(header[colCashback])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name(), err)
	}
	var entries []uabean.Directive
	var last *uabean.Transaction
	var lastRow []string
	for i, row := range rows {
		entry, err := imp.entryFromRow(account, accountCur, cashbackCur, row)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", f.Name(), i+2, err)
		}
		entries = append(entries, entry)
		last, lastRow = entry, row
	}
	balance, err := uabean.ParseAmount(lastRow[colRunningBalance], accountCur)
	if err != nil {
		return nil, fmt.Errorf("%s: closing balance: %w", f.Name(), err)
	}
	entries = append(entries, &uabean.BalanceAssertion{
		Date:    last.Date.Add(1),
		Account: account,
		Amount:  balance,
	})
	return entries, nil
}

func headerCurrency(column string) (string, error) {
	m := headerCurrencyRe.FindStringSubmatch(column)
	if m == nil {
		return "", fmt.Errorf("no currency in header column %q", column)
	}
	return m[1], nil
}

func (imp *Importer) entryFromRow(account, accountCur, cashbackCur string, row []string) (*uabean.Transaction, error) {
	on, clk, err := uabean.ParseDayFirst(row[colDate])
	if err != nil {
		return nil, err
	}
	description := row[colDescription]
	tx := uabean.NewTransaction(on, description, "")
	tx.Meta[uabean.MetaTime] = clk.String()
	tx.Meta[uabean.MetaCategory] = imp.category(row[colMCC])

	units, err := uabean.ParseAmount(row[colAmount], accountCur)
	if err != nil {
		return nil, err
	}
	var price *uabean.Amount
	if row[colCurrency] != accountCur {
		orig, err := uabean.ParseAmount(row[colOrigAmount], row[colCurrency])
		if err != nil {
			return nil, err
		}
		p := uabean.A(orig.Decimal().Div(units.Decimal()).Round(6), row[colCurrency])
		price = &p
		tx.Meta[uabean.MetaConverted] = row[colOrigAmount] + " " + row[colCurrency]
	}

	if m := cashbackOutRe.FindStringSubmatch(description); m != nil {
		withdrawn, err := uabean.ParseAmount(m[1], cashbackCur)
		if err != nil {
			return nil, err
		}
		tx.Postings = append(tx.Postings,
			uabean.Posting{Account: imp.CashbackReceivableAccount, Units: withdrawn.Neg()},
			uabean.Posting{Account: imp.TaxesExpenseAccount},
		)
		tx.Payee, tx.Narration = "", description
		delete(tx.Meta, uabean.MetaCategory)
	}
	if interestRe.MatchString(description) {
		tx.Postings = append(tx.Postings, uabean.Posting{Account: imp.InterestIncomeAccount, Units: units.Neg()})
		tx.Payee, tx.Narration = "", description
		delete(tx.Meta, uabean.MetaCategory)
	}
	tx.Postings = append(tx.Postings, uabean.Posting{Account: account, Units: units, Price: price})
	if cb := row[colCashback]; cb != notAvailable && cb != "" {
		cashback, err := uabean.ParseAmount(cb, cashbackCur)
		if err != nil {
			return nil, err
		}
		tx.Postings = append(tx.Postings,
			uabean.Posting{Account: imp.CashbackIncomeAccount, Units: cashback.Neg()},
			uabean.Posting{Account: imp.CashbackReceivableAccount, Units: cashback},
		)
	}
	return tx, nil
}

func (imp *Importer) category(mcc string) string {
	if name, ok := imp.Categories[mcc]; ok {
		return name
	}
	return mcc
}
