// Package kraken imports ledger csv exports of the Kraken crypto exchange.
//
// The CSV header is:
//
//	"txid","refid","time","type","subtype","aclass","asset","amount","fee","balance"
package kraken

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/OSadovy/uabean"
)

const headerMarker = `"txid","refid","time","type","subtype","aclass","asset","amount","fee","balance"`

// Importer converts Kraken ledger exports into ledger directives.
type Importer struct {
	SpotAccount          string
	StakingAccount       string
	FeeAccount           string
	StakingIncomeAccount string
}

func New() *Importer {
	return &Importer{
		SpotAccount:          "Assets:Kraken:Spot",
		StakingAccount:       "Assets:Kraken:Staking",
		FeeAccount:           "Expenses:Fees:Kraken",
		StakingIncomeAccount: "Income:Staking:Kraken",
	}
}

func (imp *Importer) Name() string { return "kraken" }

func (imp *Importer) Account(_ *uabean.File) string { return "kraken" }

func (imp *Importer) Identify(f *uabean.File) bool {
	return f.HeadContains(headerMarker)
}

func (imp *Importer) rows(f *uabean.File) ([]map[string]string, error) {
	data, err := f.Contents()
	if err != nil {
		return nil, err
	}
	return uabean.CSVRows(data, ',')
}

// Date returns the timestamp of the last settled row.
func (imp *Importer) Date(f *uabean.File) (uabean.Date, error) {
	rows, err := imp.rows(f)
	if err != nil {
		return uabean.Date{}, err
	}
	var max uabean.Date
	for _, row := range rows {
		if row["txid"] == "" {
			continue
		}
		on, _, err := parseTime(row["time"])
		if err != nil {
			return uabean.Date{}, err
		}
		if max.IsZero() || on.After(max) {
			max = on
		}
	}
	return max, nil
}

// runningBalance tracks the latest reported balance per account and asset,
// emitted as assertions after the transactions.
type runningBalance struct {
	on      uabean.Date
	balance uabean.Amount
}

type balanceKey struct {
	account string
	asset   string
}

func (imp *Importer) Extract(f *uabean.File, _ []uabean.Directive) ([]uabean.Directive, error) {
	rows, err := imp.rows(f)
	if err != nil {
		return nil, err
	}
	var entries []uabean.Directive
	balances := make(map[balanceKey]runningBalance)
	var order []balanceKey
	for i, row := range rows {
		// Rows without a transaction id are unsettled and skipped.
		if row["txid"] == "" {
			continue
		}
		entry, err := imp.entryFromRow(row, balances, &order)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", f.Name(), i+2, err)
		}
		entries = append(entries, entry)
	}
	for _, k := range order {
		b := balances[k]
		entries = append(entries, &uabean.BalanceAssertion{
			Date:    b.on.Add(1),
			Account: k.account,
			Amount:  b.balance,
		})
	}
	return entries, nil
}

func (imp *Importer) entryFromRow(row map[string]string, balances map[balanceKey]runningBalance, order *[]balanceKey) (*uabean.Transaction, error) {
	on, clk, err := parseTime(row["time"])
	if err != nil {
		return nil, err
	}
	units, err := uabean.ParseAmount(row["amount"], row["asset"])
	if err != nil {
		return nil, err
	}
	tx := uabean.NewTransaction(on, "", "")
	tx.Meta[uabean.MetaTime] = clk.String()

	var account string
	switch op := operation(row["type"], row["subtype"]); op {
	case opDeposit, opSpotToStaking:
		account = imp.SpotAccount
		tx.Postings = append(tx.Postings, uabean.Posting{Account: account, Units: units})
	case opStakingFromSpot:
		account = imp.StakingAccount
		tx.Postings = append(tx.Postings, uabean.Posting{Account: account, Units: units})
	case opStakingReward:
		account = imp.StakingAccount
		tx.Postings = append(tx.Postings,
			uabean.Posting{Account: account, Units: units},
			uabean.Posting{Account: imp.StakingIncomeAccount},
		)
	default:
		return nil, fmt.Errorf("unknown transaction type %q subtype %q", row["type"], row["subtype"])
	}
	if fee, err := decimal.NewFromString(row["fee"]); err == nil && !fee.IsZero() {
		tx.Postings = append(tx.Postings, uabean.Posting{Account: imp.FeeAccount, Units: uabean.A(fee, row["asset"])})
	}
	balance, err := uabean.ParseAmount(row["balance"], row["asset"])
	if err != nil {
		return nil, err
	}
	k := balanceKey{account: account, asset: row["asset"]}
	if prev, ok := balances[k]; !ok {
		balances[k] = runningBalance{on: on, balance: balance}
		*order = append(*order, k)
	} else if !on.Before(prev.on) {
		balances[k] = runningBalance{on: on, balance: balance}
	}
	return tx, nil
}

// The ledger reports a closed set of operation kinds; anything else is a
// hard error so silent misbooking cannot happen.
type op int

const (
	opUnknown op = iota
	opDeposit
	opSpotToStaking
	opStakingFromSpot
	opStakingReward
)

func operation(typ, subtype string) op {
	switch {
	case typ == "deposit" && subtype == "":
		return opDeposit
	case typ == "transfer" && subtype == "spottostaking":
		return opSpotToStaking
	case typ == "transfer" && subtype == "stakingfromspot":
		return opStakingFromSpot
	case typ == "staking" && subtype == "":
		return opStakingReward
	}
	return opUnknown
}

// parseTime parses the "2006-01-02 15:04:05" timestamps of the export.
func parseTime(s string) (uabean.Date, uabean.Clock, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04:05.9999", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return uabean.NewDate(t.Date()), uabean.NewClock(t.Clock()), nil
		}
	}
	return uabean.Date{}, uabean.Clock{}, fmt.Errorf("invalid timestamp %q", s)
}
