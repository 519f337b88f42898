// Package wise imports balance statements fetched from the Wise API in json
// format (see downloaders/wise).
package wise

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/OSadovy/uabean"
)

// Importer converts Wise balance-statement json files into ledger directives.
type Importer struct {
	// AccountTemplate is expanded with the profile type and currency taken
	// from the file name, e.g. "Assets:Wise:Business:{currency}".
	AccountTemplate string
	// FeesAccount receives the totalFees posting of each transaction.
	FeesAccount string
}

func New(accountTemplate, feesAccount string) *Importer {
	if feesAccount == "" {
		feesAccount = "Expenses:Fees:Wise"
	}
	return &Importer{AccountTemplate: accountTemplate, FeesAccount: feesAccount}
}

// statement mirrors the API response. Amounts decode through json.Number to
// keep the provider's exact decimal digits.
type statement struct {
	Query struct {
		IntervalEnd string `json:"intervalEnd"`
	} `json:"query"`
	Transactions          []statementTx `json:"transactions"`
	EndOfStatementBalance jsonAmount    `json:"endOfStatementBalance"`
}

type statementTx struct {
	Date            string     `json:"date"`
	ReferenceNumber string     `json:"referenceNumber"`
	Amount          jsonAmount `json:"amount"`
	TotalFees       struct {
		jsonAmount
		Zero bool `json:"zero"`
	} `json:"totalFees"`
	ExchangeDetails *struct {
		ToAmount jsonAmount  `json:"toAmount"`
		Rate     json.Number `json:"rate"`
	} `json:"exchangeDetails"`
	Details struct {
		Type       string `json:"type"`
		Category   string `json:"category"`
		SenderName string `json:"senderName"`
		Recipient  struct {
			Name string `json:"name"`
		} `json:"recipient"`
		Merchant struct {
			Name string `json:"name"`
		} `json:"merchant"`
	} `json:"details"`
}

type jsonAmount struct {
	Value    json.Number `json:"value"`
	Currency string      `json:"currency"`
}

func (a jsonAmount) amount() (uabean.Amount, error) {
	v, err := decimal.NewFromString(a.Value.String())
	if err != nil {
		return uabean.Amount{}, fmt.Errorf("invalid amount %q: %w", a.Value, err)
	}
	return uabean.A(v, a.Currency), nil
}

func (imp *Importer) Name() string { return "wise" }

func (imp *Importer) Identify(f *uabean.File) bool {
	// example: wise-business-2022-01-01_2022-10-01-USD.json
	name := f.Name()
	if !strings.HasPrefix(name, "wise-") || !strings.HasSuffix(name, ".json") {
		return false
	}
	return f.HeadContains("endOfStatementBalance") || f.HeadContains("intervalEnd")
}

// Account expands the account template with the profile type and currency
// encoded in the file name.
func (imp *Importer) Account(f *uabean.File) string {
	parts := strings.Split(strings.TrimSuffix(f.Name(), ".json"), "-")
	if len(parts) < 3 {
		return imp.AccountTemplate
	}
	profileType := capitalize(parts[1])
	currency := parts[len(parts)-1]
	account := strings.ReplaceAll(imp.AccountTemplate, "{type}", profileType)
	return strings.ReplaceAll(account, "{currency}", currency)
}

func (imp *Importer) statement(f *uabean.File) (*statement, error) {
	data, err := f.Contents()
	if err != nil {
		return nil, err
	}
	var s statement
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name(), err)
	}
	return &s, nil
}

// Date returns the end of the statement interval.
func (imp *Importer) Date(f *uabean.File) (uabean.Date, error) {
	s, err := imp.statement(f)
	if err != nil {
		return uabean.Date{}, err
	}
	on, _, err := parseISO(s.Query.IntervalEnd)
	return on, err
}

func (imp *Importer) Extract(f *uabean.File, _ []uabean.Directive) ([]uabean.Directive, error) {
	s, err := imp.statement(f)
	if err != nil {
		return nil, err
	}
	account := imp.Account(f)
	var entries []uabean.Directive
	for i, t := range s.Transactions {
		entry, err := imp.entryFromTransaction(account, &t)
		if err != nil {
			return nil, fmt.Errorf("%s transaction %d: %w", f.Name(), i+1, err)
		}
		entries = append(entries, entry)
	}
	if len(s.Transactions) > 0 {
		end, _, err := parseISO(s.Query.IntervalEnd)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name(), err)
		}
		balance, err := s.EndOfStatementBalance.amount()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name(), err)
		}
		entries = append(entries, &uabean.BalanceAssertion{
			Date:    end.Add(1),
			Account: account,
			Amount:  balance,
		})
	}
	return entries, nil
}

func (imp *Importer) entryFromTransaction(account string, t *statementTx) (*uabean.Transaction, error) {
	on, clk, err := parseISO(t.Date)
	if err != nil {
		return nil, err
	}
	payee := ""
	meta := make(uabean.Metadata)
	switch t.Details.Type {
	case "TRANSFER":
		payee = t.Details.Recipient.Name
	case "CARD":
		payee = t.Details.Merchant.Name
		meta["src_category"] = t.Details.Category
	case "DEPOSIT":
		payee = t.Details.SenderName
	case "MONEY_ADDED":
		payee = "self"
	case "UNKNOWN":
	default:
		return nil, fmt.Errorf("unknown transaction type %q", t.Details.Type)
	}
	tx := uabean.NewTransaction(on, payee, "")
	tx.Meta[uabean.MetaTime] = clk.String()
	tx.Meta[uabean.MetaSrcID] = t.ReferenceNumber
	for k, v := range meta {
		tx.Meta[k] = v
	}
	if ed := t.ExchangeDetails; ed != nil {
		tx.Meta[uabean.MetaConverted] = fmt.Sprintf("%s %s (%s)", ed.ToAmount.Value, ed.ToAmount.Currency, ed.Rate)
	}
	units, err := t.Amount.amount()
	if err != nil {
		return nil, err
	}
	tx.Postings = append(tx.Postings, uabean.Posting{Account: account, Units: units})
	if !t.TotalFees.Zero {
		fees, err := t.TotalFees.amount()
		if err != nil {
			return nil, err
		}
		tx.Postings = append(tx.Postings, uabean.Posting{Account: imp.FeesAccount, Units: fees})
	}
	return tx, nil
}

// parseISO parses the RFC 3339 timestamps of the API.
func parseISO(s string) (uabean.Date, uabean.Clock, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.999", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return uabean.NewDate(t.Date()), uabean.NewClock(t.Clock()), nil
		}
	}
	return uabean.Date{}, uabean.Clock{}, fmt.Errorf("invalid timestamp %q", s)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
