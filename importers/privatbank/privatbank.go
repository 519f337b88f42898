// Package privatbank imports xlsx card statements obtained from the
// Privat24 web interface.
//
// The sheet has a title row, then a header:
//
//	Дата;Категорія;Картка;Опис операції;Сума в валюті картки;Валюта картки;Сума в валюті транзакції;Валюта транзакції;Залишок на кінець періоду;Валюта залишку
//
// The date column combines date and time as "DD.MM.YYYY HH:MM:SS".
package privatbank

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/OSadovy/uabean"
)

const titleMarker = "Виписка з Ваших карток за період"

// UnknownAccount is booked for cards missing from the card map.
const UnknownAccount = "Assets:Unknown"

// Currency names as the statement spells them.
var currencyAliases = map[string]string{
	"грн":  "UAH",
	"дол":  "USD",
	"євро": "EUR",
}

const (
	colDate = iota
	colCategory
	colCard
	colDescription
	colCardAmount
	colCardCurrency
	colTxAmount
	colTxCurrency
	colBalance
	colBalanceCurrency
)

// Importer converts Privatbank xlsx statements into ledger directives.
type Importer struct {
	// Cards maps the card label of the Картка column to a ledger account.
	Cards map[string]string
	// FeeAccount receives the implicit fee charged when the card amount
	// differs from the transaction amount in the same currency.
	FeeAccount string
}

func New(cards map[string]string, feeAccount string) *Importer {
	if feeAccount == "" {
		feeAccount = "Expenses:Fees:Privatbank"
	}
	return &Importer{Cards: cards, FeeAccount: feeAccount}
}

func (imp *Importer) Name() string { return "privatbank" }

func (imp *Importer) Account(_ *uabean.File) string { return "privatbank_xlsx" }

func (imp *Importer) Identify(f *uabean.File) bool {
	rows, err := sheetRows(f)
	if err != nil || len(rows) == 0 || len(rows[0]) == 0 {
		return false
	}
	return strings.Contains(rows[0][0], titleMarker)
}

// sheetRows loads the first worksheet as strings. Short rows are padded so
// the column accessors never go out of range.
func sheetRows(f *uabean.File) ([][]string, error) {
	data, err := f.Contents()
	if err != nil {
		return nil, err
	}
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name(), err)
	}
	defer book.Close()
	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s: workbook has no sheets", f.Name())
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name(), err)
	}
	for i, row := range rows {
		if len(row) <= colBalanceCurrency {
			padded := make([]string, colBalanceCurrency+1)
			copy(padded, row)
			rows[i] = padded
		}
	}
	return rows, nil
}

func currency(name string) string {
	if alias, ok := currencyAliases[name]; ok {
		return alias
	}
	return name
}

// Date returns the maximum operation date found in the statement.
func (imp *Importer) Date(f *uabean.File) (uabean.Date, error) {
	rows, err := sheetRows(f)
	if err != nil {
		return uabean.Date{}, err
	}
	var max uabean.Date
	for _, row := range dataRows(rows) {
		on, _, err := uabean.ParseDayFirst(row[colDate])
		if err != nil {
			return uabean.Date{}, err
		}
		if max.IsZero() || on.After(max) {
			max = on
		}
	}
	return max, nil
}

// dataRows skips the title and header rows.
func dataRows(rows [][]string) [][]string {
	if len(rows) <= 2 {
		return nil
	}
	return rows[2:]
}

func (imp *Importer) Extract(f *uabean.File, _ []uabean.Directive) ([]uabean.Directive, error) {
	rows, err := sheetRows(f)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || !strings.Contains(rows[0][0], titleMarker) {
		return nil, fmt.Errorf("%s: not a privatbank card statement", f.Name())
	}
	var entries []uabean.Directive
	var maxDate uabean.Date
	var maxRow []string
	for i, row := range dataRows(rows) {
		entry, on, err := imp.entryFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", f.Name(), i+3, err)
		}
		entries = append(entries, entry)
		if maxDate.IsZero() || on.After(maxDate) {
			maxDate, maxRow = on, row
		}
	}
	if maxRow != nil {
		amount, err := uabean.ParseAmount(maxRow[colBalance], currency(maxRow[colBalanceCurrency]))
		if err != nil {
			return nil, fmt.Errorf("%s: closing balance: %w", f.Name(), err)
		}
		entries = append(entries, &uabean.BalanceAssertion{
			Date:    maxDate.Add(1),
			Account: imp.cardAccount(maxRow[colCard]),
			Amount:  amount,
		})
	}
	return entries, nil
}

func (imp *Importer) cardAccount(card string) string {
	if account, ok := imp.Cards[card]; ok {
		return account
	}
	return UnknownAccount
}

func (imp *Importer) entryFromRow(row []string) (*uabean.Transaction, uabean.Date, error) {
	on, clk, err := uabean.ParseDayFirst(row[colDate])
	if err != nil {
		return nil, uabean.Date{}, err
	}
	tx := uabean.NewTransaction(on, "", row[colDescription])
	tx.Meta[uabean.MetaTime] = clk.String()
	tx.Meta[uabean.MetaCategory] = row[colCategory]

	cardCur := currency(row[colCardCurrency])
	txCur := currency(row[colTxCurrency])
	cardUnits, err := uabean.ParseAmount(row[colCardAmount], cardCur)
	if err != nil {
		return nil, uabean.Date{}, err
	}
	txUnits, err := uabean.ParseAmount(row[colTxAmount], txCur)
	if err != nil {
		return nil, uabean.Date{}, err
	}
	tx.Postings = append(tx.Postings, uabean.Posting{Account: imp.cardAccount(row[colCard]), Units: cardUnits})
	switch {
	case txCur != cardCur:
		tx.Meta[uabean.MetaConverted] = txUnits.String()
	case !cardUnits.Abs().Equal(txUnits):
		// Same-currency mismatch is an implicit fee folded into the card amount.
		fee := cardUnits.Abs().Sub(txUnits)
		tx.Postings = append(tx.Postings, uabean.Posting{Account: imp.FeeAccount, Units: fee})
	}
	return tx, on, nil
}
