// Package ibkr imports Interactive Brokers FlexQuery XML reports.
//
// The report should include all fields for these sections:
//   - Trades (options: Executions, Closed Lots)
//   - Cash Transactions (options: Dividends, Payment in Lieu of Dividends,
//     Withholding Tax, Advisor Fees, Other Fees, Deposits/Withdrawals,
//     Broker Interest Paid, Broker Interest Received, Commission Adjustments,
//     Detail)
//   - Cash Report (options: Currency Breakout)
//   - Corporate Actions (options: Detail)
//
// Selling short, partial closes and corporate actions are supported. Cost
// bases are tracked through a holdings map seeded from the existing ledger,
// so re-imports reproduce identical cost-basis decisions.
package ibkr

import (
	"encoding/xml"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/OSadovy/uabean"
)

// Cash transaction kinds of the report, a closed set.
const (
	cashDeposit        = "Deposits/Withdrawals"
	cashInterestRecv   = "Broker Interest Received"
	cashInterestPaid   = "Broker Interest Paid"
	cashOtherFees      = "Other Fees"
	cashCommissionAdj  = "Commission Adjustments"
	cashWithholdingTax = "Withholding Tax"
	cashDividend       = "Dividends"
	cashPaymentInLieu  = "Payment In Lieu Of Dividends"
)

// Corporate action kinds of the report.
const (
	reorgForwardSplit = "FS"
	reorgMerger       = "TC"
	reorgIssueChange  = "IC"
)

var (
	forexSymbolRe = regexp.MustCompile(`(\w{3})[.](\w{3})`)
	isinRe        = regexp.MustCompile(`\(([a-zA-Z]{2}[a-zA-Z0-9]{9}\d)\)`)
	perShareRe    = regexp.MustCompile(`(?i)(\d*[.]\d*)(\D*)(PER SHARE)`)
	feeMonthRe    = regexp.MustCompile(`\w{3} \d{4}`)
	interestMonRe = regexp.MustCompile(`\w{3}-\d{4}`)
	splitRatioRe  = regexp.MustCompile(`SPLIT (\d+) FOR (\d+)`)
	inLieuRe      = regexp.MustCompile(`(?i)payment in lieu of dividend`)
	oldSymbolRe   = regexp.MustCompile(`(.*?)\(`)
)

// Importer converts FlexQuery XML reports into ledger directives. The account
// fields are templates: "{symbol}" and "{currency}" are substituted per
// posting.
type Importer struct {
	CashAccount     string
	AssetsAccount   string
	DivAccount      string
	InterestAccount string
	WHTAccount      string
	FeesAccount     string
	PnLAccount      string
	// UseExistingHoldings seeds the lot map from the existing ledger before
	// processing trades.
	UseExistingHoldings bool

	holdings *uabean.Holdings
}

func New() *Importer {
	return &Importer{
		CashAccount:         "Assets:Investments:IB:Cash",
		AssetsAccount:       "Assets:Investments:IB:{symbol}",
		DivAccount:          "Income:Investments:IB:{symbol}:Div",
		InterestAccount:     "Income:Investments:IB:Interest",
		WHTAccount:          "Expenses:Investments:IB:WithholdingTax",
		FeesAccount:         "Expenses:IB:Fees",
		PnLAccount:          "Income:Investments:IB:{symbol}:PnL",
		UseExistingHoldings: true,
	}
}

func (imp *Importer) Name() string { return "ibkr" }

func (imp *Importer) Account(_ *uabean.File) string { return "ib" }

func (imp *Importer) Identify(f *uabean.File) bool {
	return f.HeadContains("<FlexQueryResponse ")
}

func expand(template, symbol, currency string) string {
	if symbol != "" {
		template = strings.ReplaceAll(template, "{symbol}", strings.ReplaceAll(symbol, " ", ""))
	}
	if currency != "" {
		template = strings.ReplaceAll(template, "{currency}", currency)
	}
	return template
}

func (imp *Importer) cashAccountFor(currency string) string {
	return expand(imp.CashAccount, "", currency)
}

func (imp *Importer) assetAccountFor(symbol string) string {
	return expand(imp.AssetsAccount, symbol, "")
}

// assetsRoot is the fixed prefix of the assets account template, the
// namespace the holdings seeding scans.
func (imp *Importer) assetsRoot() string {
	root, _, _ := strings.Cut(imp.AssetsAccount, "{")
	return root
}

func (imp *Importer) statement(f *uabean.File) (*flexStatement, error) {
	data, err := f.Contents()
	if err != nil {
		return nil, err
	}
	var response flexQueryResponse
	if err := xml.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name(), err)
	}
	if len(response.Statements) == 0 {
		return nil, fmt.Errorf("%s: no FlexStatement in response", f.Name())
	}
	return &response.Statements[0], nil
}

// Date returns the end of the reporting period.
func (imp *Importer) Date(f *uabean.File) (uabean.Date, error) {
	s, err := imp.statement(f)
	if err != nil {
		return uabean.Date{}, err
	}
	var max uabean.Date
	for _, row := range s.CashReport {
		if max.IsZero() || row.ToDate.After(max) {
			max = row.ToDate.Date
		}
	}
	for _, t := range s.Trades.Trades {
		if max.IsZero() || t.TradeDate.After(max) {
			max = t.TradeDate.Date
		}
	}
	return max, nil
}

func (imp *Importer) Extract(f *uabean.File, existing []uabean.Directive) ([]uabean.Directive, error) {
	imp.holdings = uabean.NewHoldings()
	if imp.UseExistingHoldings && existing != nil {
		imp.holdings.SeedFromLedger(existing, imp.assetsRoot())
	}
	s, err := imp.statement(f)
	if err != nil {
		return nil, err
	}
	var entries []uabean.Directive
	trades, err := imp.trades(s.Trades.Trades)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name(), err)
	}
	entries = append(entries, trades...)
	cash, err := imp.cashTransactions(s.CashTransactions)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name(), err)
	}
	entries = append(entries, cash...)
	entries = append(entries, imp.balances(s.CashReport)...)
	actions, err := imp.corporateActions(s.CorporateActions)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name(), err)
	}
	entries = append(entries, actions...)

	entries = imp.mergeDividendsAndWithholding(entries)
	return append(imp.autoOpen(entries, existing), entries...), nil
}

// symbolCurrency normalizes an IB symbol into a ledger commodity name.
func symbolCurrency(symbol string) string {
	symbol = strings.ReplaceAll(symbol, " ", ".")
	if len(symbol) < 2 {
		symbol += "STOCK"
	}
	return symbol
}

func isForex(symbol string) bool { return forexSymbolRe.MatchString(symbol) }

func (imp *Importer) trades(rows []trade) ([]uabean.Directive, error) {
	var entries []uabean.Directive
	for i := range rows {
		row := &rows[i]
		var entry *uabean.Transaction
		var err error
		if isForex(row.Symbol) {
			entry, err = imp.forexTrade(row)
		} else {
			entry, err = imp.stockTrade(row)
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// forexTrade books a currency pair trade across the two cash subaccounts,
// with the primary leg priced in the secondary currency.
func (imp *Importer) forexTrade(row *trade) (*uabean.Transaction, error) {
	m := forexSymbolRe.FindStringSubmatch(row.Symbol)
	prim, sec := m[1], m[2]
	quantity := uabean.A(row.Quantity.Decimal, prim)
	price := uabean.A(row.TradePrice.Decimal, sec)
	proceeds := uabean.A(row.Proceeds.Decimal, sec)
	commission := uabean.A(row.Commission.Decimal, row.CommissionCur)

	op, err := buySellOp(row.BuySell)
	if err != nil {
		return nil, err
	}
	tx := uabean.NewTransaction(row.TradeDate.Date, row.Symbol,
		fmt.Sprintf("%s %s @ %s", op, quantity, price))
	tx.Postings = append(tx.Postings,
		uabean.Posting{Account: imp.cashAccountFor(prim), Units: quantity, Price: &price},
		uabean.Posting{Account: imp.cashAccountFor(sec), Units: proceeds},
		uabean.Posting{Account: imp.cashAccountFor(row.CommissionCur), Units: commission},
		uabean.Posting{Account: expand(imp.FeesAccount, "", row.CommissionCur), Units: commission.Neg()},
	)
	return tx, nil
}

func buySellOp(buySell string) (string, error) {
	switch buySell {
	case "BUY", "BUY (Ca.)":
		return "BUY", nil
	case "SELL", "SELL (Ca.)":
		return "SELL", nil
	}
	return "", fmt.Errorf("unknown buySell value %q", buySell)
}

// stockTrade books a stock trade. Opens record a lot at the raw trade price,
// keeping the commission-adjusted cost in metadata; closes consume lots per
// the report's closed-lot references. The commission posting carries the "C"
// flag to distinguish it from other legs.
func (imp *Importer) stockTrade(row *trade) (*uabean.Transaction, error) {
	op, err := buySellOp(row.BuySell)
	if err != nil {
		return nil, err
	}
	symbol := row.Symbol
	commodity := symbolCurrency(symbol)
	quantity := uabean.A(row.Quantity.Decimal, commodity)
	price := uabean.A(row.TradePrice.Decimal, row.Currency)
	commission := uabean.A(row.Commission.Decimal, row.CommissionCur)

	var lotPostings []uabean.Posting
	if row.OpenClose == "O" {
		imp.holdings.Open(row.DateTime.Date, commodity, row.Quantity.Decimal,
			row.TradePrice.Decimal, row.Cost.Div(row.Quantity.Decimal))
		number := row.TradePrice.Decimal
		lotPostings = append(lotPostings, uabean.Posting{
			Account: imp.assetAccountFor(symbol),
			Units:   quantity,
			Cost:    &uabean.CostSpec{Number: &number, Currency: row.Currency, Date: row.TradeDate.Date},
			Price:   &price,
			Meta:    uabean.Metadata{uabean.MetaTrueCost: row.Cost.String()},
		})
	} else {
		for _, lot := range row.Lots {
			lotCommodity := symbolCurrency(lot.Symbol)
			truePrice := lot.Cost.Div(lot.Quantity.Decimal)
			cost := &uabean.CostSpec{Currency: lot.Currency, Date: lot.OpenDateTime.Date}
			lotPrice, err := imp.holdings.Close(lot.OpenDateTime.Date, lotCommodity, lot.Quantity.Decimal, truePrice)
			if err != nil {
				log.Printf("warning: %v", err)
			} else {
				cost.Number = &lotPrice
			}
			lotPostings = append(lotPostings, uabean.Posting{
				Account: imp.assetAccountFor(symbol),
				Units:   uabean.A(lot.Quantity.Neg(), lotCommodity),
				Cost:    cost,
				Price:   &price,
				Meta:    uabean.Metadata{uabean.MetaTrueCost: lot.Cost.String()},
			})
		}
		lotPostings = append(lotPostings, uabean.Posting{Account: expand(imp.PnLAccount, symbol, "")})
	}

	tx := uabean.NewTransaction(row.TradeDate.Date, symbol,
		fmt.Sprintf("%s %s @ %s", op, quantity, price))
	tx.Postings = append(tx.Postings,
		uabean.Posting{Account: imp.cashAccountFor(row.Currency), Units: uabean.A(row.NetCash.Decimal, row.Currency)})
	tx.Postings = append(tx.Postings, lotPostings...)
	tx.Postings = append(tx.Postings,
		uabean.Posting{Account: expand(imp.FeesAccount, "", row.CommissionCur), Units: commission.Neg(), Flag: "C"})
	return tx, nil
}

func (imp *Importer) cashTransactions(rows []cashTransaction) ([]uabean.Directive, error) {
	var entries []uabean.Directive
	for i := range rows {
		row := &rows[i]
		var entry *uabean.Transaction
		var err error
		switch row.Type {
		case cashDeposit:
			entry = imp.depositFromRow(row)
		case cashInterestRecv, cashInterestPaid:
			entry = imp.interestFromRow(row)
		case cashOtherFees, cashCommissionAdj:
			entry = imp.feeFromRow(row)
		case cashWithholdingTax, cashDividend, cashPaymentInLieu:
			entry, err = imp.dividendOrWithholdingFromRow(row)
		default:
			err = fmt.Errorf("unknown cash transaction type %q", row.Type)
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (imp *Importer) depositFromRow(row *cashTransaction) *uabean.Transaction {
	tx := uabean.NewTransaction(row.ReportDate.Date, "self", row.Description)
	tx.Postings = append(tx.Postings, uabean.Posting{
		Account: imp.cashAccountFor(row.Currency),
		Units:   uabean.A(row.Amount.Decimal, row.Currency),
	})
	return tx
}

func (imp *Importer) interestFromRow(row *cashTransaction) *uabean.Transaction {
	narration := "Interest " + row.Currency
	if month := interestMonRe.FindString(row.Description); month != "" {
		narration += " " + month
	} else {
		narration = row.Description
	}
	units := uabean.A(row.Amount.Decimal, row.Currency)
	tx := uabean.NewTransaction(row.ReportDate.Date, "IB", narration)
	tx.Postings = append(tx.Postings,
		uabean.Posting{Account: expand(imp.InterestAccount, "", row.Currency), Units: units.Neg()},
		uabean.Posting{Account: imp.cashAccountFor(row.Currency), Units: units},
	)
	return tx
}

func (imp *Importer) feeFromRow(row *cashTransaction) *uabean.Transaction {
	narration := row.Description
	if month := feeMonthRe.FindString(row.Description); month != "" {
		narration = "Fee " + row.Currency + " " + month
	}
	units := uabean.A(row.Amount.Decimal, row.Currency)
	tx := uabean.NewTransaction(row.ReportDate.Date, "IB", narration)
	tx.Meta["descr"] = row.Description
	tx.Postings = append(tx.Postings,
		uabean.Posting{Account: expand(imp.FeesAccount, "", row.Currency), Units: units.Neg()},
		uabean.Posting{Account: imp.cashAccountFor(row.Currency), Units: units},
	)
	return tx
}

// dividendOrWithholdingFromRow books dividends, payments in lieu of
// dividends and withholding tax. The dividend kind is kept in metadata so the
// merge step can pair tax rows with the dividend they tax.
func (imp *Importer) dividendOrWithholdingFromRow(row *cashTransaction) (*uabean.Transaction, error) {
	m := isinRe.FindStringSubmatch(row.Description)
	if m == nil {
		return nil, fmt.Errorf("no ISIN in cash transaction description %q", row.Description)
	}
	isin := m[1]
	perShare := ""
	if pm := perShareRe.FindStringSubmatch(row.Description); pm != nil {
		perShare = pm[1]
	}

	var account string
	kind := row.Type
	isDividend := false
	if row.Type == cashWithholdingTax {
		account = expand(imp.WHTAccount, row.Symbol, row.Currency)
		if inLieuRe.MatchString(row.Description) {
			kind = cashPaymentInLieu
		} else {
			kind = cashDividend
		}
	} else {
		account = expand(imp.DivAccount, row.Symbol, row.Currency)
		isDividend = true
	}

	units := uabean.A(row.Amount.Decimal, row.Currency)
	tx := uabean.NewTransaction(row.ReportDate.Date, row.Symbol, row.Description)
	tx.Meta[uabean.MetaISIN] = isin
	tx.Meta[uabean.MetaPerShare] = perShare
	tx.Meta[uabean.MetaDividendTyp] = kind
	if isDividend {
		tx.Meta[uabean.MetaDividend] = "true"
	}
	tx.Postings = append(tx.Postings,
		uabean.Posting{Account: account, Units: units.Neg()},
		uabean.Posting{Account: imp.cashAccountFor(row.Currency), Units: units},
	)
	return tx, nil
}

func (imp *Importer) balances(rows []cashReportCurrency) []uabean.Directive {
	var entries []uabean.Directive
	for _, row := range rows {
		// BASE_SUMMARY aggregates all currencies and has no account of its own.
		if row.Currency == "BASE_SUMMARY" {
			continue
		}
		entries = append(entries, &uabean.BalanceAssertion{
			Date:    row.ToDate.Add(1),
			Account: imp.cashAccountFor(row.Currency),
			Amount:  uabean.A(row.EndingCash.Decimal, row.Currency),
		})
	}
	return entries
}

// mergeDividendsAndWithholding merges dividend transactions with their
// withholding-tax counterparts, which the report lists as separate rows.
// Postings booked to the same account are combined.
func (imp *Importer) mergeDividendsAndWithholding(entries []uabean.Directive) []uabean.Directive {
	type groupKey struct {
		on    uabean.Date
		payee string
		kind  string
	}
	groups := make(map[groupKey][]*uabean.Transaction)
	var order []groupKey
	for _, entry := range entries {
		tx, ok := entry.(*uabean.Transaction)
		if !ok {
			continue
		}
		if tx.Meta[uabean.MetaDividendTyp] == "" || tx.Meta[uabean.MetaISIN] == "" {
			continue
		}
		k := groupKey{on: tx.Date, payee: tx.Payee, kind: tx.Meta[uabean.MetaDividendTyp]}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], tx)
	}
	consumed := make(map[*uabean.Transaction]bool)
	for _, k := range order {
		group := groups[k]
		if len(group) < 2 {
			continue
		}
		var dividend *uabean.Transaction
		for _, tx := range group {
			if tx.Meta[uabean.MetaDividend] != "" {
				dividend = tx
				break
			}
		}
		if dividend == nil {
			continue
		}
		for _, tx := range group {
			if tx != dividend {
				dividend.Postings = append(dividend.Postings, tx.Postings...)
				consumed[tx] = true
			}
		}
		delete(dividend.Meta, uabean.MetaDividendTyp)
		delete(dividend.Meta, uabean.MetaDividend)
		dividend.Postings = combineByAccount(dividend.Postings)
	}
	out := entries[:0]
	for _, entry := range entries {
		if tx, ok := entry.(*uabean.Transaction); ok && consumed[tx] {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// combineByAccount sums postings booked to the same account, keeping
// first-seen account order.
func combineByAccount(postings []uabean.Posting) []uabean.Posting {
	var accounts []string
	byAccount := make(map[string]uabean.Amount)
	for _, p := range postings {
		if _, seen := byAccount[p.Account]; !seen {
			accounts = append(accounts, p.Account)
			byAccount[p.Account] = p.Units
		} else {
			byAccount[p.Account] = byAccount[p.Account].Add(p.Units)
		}
	}
	combined := make([]uabean.Posting, 0, len(accounts))
	for _, account := range accounts {
		combined = append(combined, uabean.Posting{Account: account, Units: byAccount[account]})
	}
	return combined
}

func (imp *Importer) corporateActions(rows []corporateAction) ([]uabean.Directive, error) {
	groups := make(map[string][]*corporateAction)
	var order []string
	for i := range rows {
		row := &rows[i]
		if _, seen := groups[row.ActionID]; !seen {
			order = append(order, row.ActionID)
		}
		groups[row.ActionID] = append(groups[row.ActionID], row)
	}
	var entries []uabean.Directive
	for _, id := range order {
		group := groups[id]
		row := group[0]
		var entry *uabean.Transaction
		var err error
		switch row.Type {
		case reorgForwardSplit:
			entry, err = imp.forwardSplit(row)
		case reorgMerger:
			if len(group) != 2 {
				return nil, fmt.Errorf("merger action %s has %d rows, want 2", id, len(group))
			}
			entry, err = imp.merger(group)
		case reorgIssueChange:
			if len(group) != 2 {
				return nil, fmt.Errorf("issue change action %s has %d rows, want 2", id, len(group))
			}
			entry, err = imp.issueChange(group)
		default:
			err = fmt.Errorf("unknown corporate action type %q", row.Type)
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// forwardSplit rebooks every open lot of the symbol at the post-split
// quantity and price.
func (imp *Importer) forwardSplit(row *corporateAction) (*uabean.Transaction, error) {
	m := splitRatioRe.FindStringSubmatch(row.Description)
	if m == nil {
		return nil, fmt.Errorf("no split ratio in description %q", row.Description)
	}
	num, _ := strconv.ParseInt(m[1], 10, 64)
	den, _ := strconv.ParseInt(m[2], 10, 64)
	factor := decimal.NewFromInt(num).Div(decimal.NewFromInt(den))

	commodity := symbolCurrency(row.Symbol)
	tx := uabean.NewTransaction(row.ReportDate.Date, row.Symbol, row.Description)
	for _, held := range imp.holdings.Symbol(commodity) {
		oldPrice := held.Lot.Price
		newPrice := held.Lot.Price.Div(factor)
		tx.Postings = append(tx.Postings,
			uabean.Posting{
				Account: imp.assetAccountFor(row.Symbol),
				Units:   uabean.A(held.Lot.Quantity.Neg(), commodity),
				Cost:    &uabean.CostSpec{Number: &oldPrice, Currency: row.Currency, Date: held.Date},
			},
			uabean.Posting{
				Account: imp.assetAccountFor(row.Symbol),
				Units:   uabean.A(held.Lot.Quantity.Mul(factor), commodity),
				Cost:    &uabean.CostSpec{Number: &newPrice, Currency: row.Currency, Date: held.Date},
				Meta: uabean.Metadata{
					uabean.MetaTrueCost: held.Lot.TruePrice.Div(factor).Mul(held.Lot.Quantity).Round(6).String(),
				},
			},
		)
	}
	imp.holdings.ApplySplit(commodity, num, den)
	return tx, nil
}

// merger closes out every lot of the acquired symbol against the cash
// proceeds and the acquirer's shares.
func (imp *Importer) merger(group []*corporateAction) (*uabean.Transaction, error) {
	row := group[0]
	commodity := symbolCurrency(row.Symbol)
	tx := uabean.NewTransaction(row.ReportDate.Date, row.Symbol, row.Description)
	for _, held := range imp.holdings.Drop(commodity) {
		price := held.Lot.Price
		tx.Postings = append(tx.Postings, uabean.Posting{
			Account: imp.assetAccountFor(row.Symbol),
			Units:   uabean.A(held.Lot.Quantity.Neg(), commodity),
			Cost:    &uabean.CostSpec{Number: &price, Currency: row.Currency, Date: held.Date},
		})
	}
	tx.Postings = append(tx.Postings,
		uabean.Posting{Account: imp.cashAccountFor(row.Currency), Units: uabean.A(row.Proceeds.Decimal, row.Currency)},
		uabean.Posting{Account: expand(imp.PnLAccount, commodity, "")},
	)

	acquirer := group[1]
	newCommodity := symbolCurrency(acquirer.Symbol)
	perUnit := acquirer.Value.Div(acquirer.Quantity.Decimal)
	tx.Payee = acquirer.Symbol
	tx.Narration = acquirer.Description
	tx.Date = acquirer.ReportDate.Date
	tx.Postings = append(tx.Postings, uabean.Posting{
		Account: imp.assetAccountFor(acquirer.Symbol),
		Units:   uabean.A(acquirer.Quantity.Decimal, newCommodity),
		Cost:    &uabean.CostSpec{Number: &perUnit, Currency: acquirer.Currency, Date: acquirer.ReportDate.Date},
	})
	imp.holdings.Open(acquirer.ReportDate.Date, newCommodity, acquirer.Quantity.Decimal, perUnit, perUnit)
	return tx, nil
}

// issueChange re-keys every lot of the renamed symbol, preserving cost bases.
func (imp *Importer) issueChange(group []*corporateAction) (*uabean.Transaction, error) {
	row := group[0]
	if strings.HasSuffix(row.Symbol, ".OLD") {
		row = group[1]
	}
	m := oldSymbolRe.FindStringSubmatch(row.Description)
	if m == nil {
		return nil, fmt.Errorf("no old symbol in description %q", row.Description)
	}
	oldSymbol := strings.TrimSpace(m[1])
	oldCommodity := symbolCurrency(oldSymbol)
	newCommodity := symbolCurrency(row.Symbol)
	tx := uabean.NewTransaction(row.ReportDate.Date, row.Symbol, row.Description)
	for _, held := range imp.holdings.Symbol(oldCommodity) {
		price := held.Lot.Price
		tx.Postings = append(tx.Postings,
			uabean.Posting{
				Account: imp.assetAccountFor(oldSymbol),
				Units:   uabean.A(held.Lot.Quantity.Neg(), oldCommodity),
				Cost:    &uabean.CostSpec{Number: &price, Currency: row.Currency, Date: held.Date},
			},
			uabean.Posting{
				Account: imp.assetAccountFor(row.Symbol),
				Units:   uabean.A(held.Lot.Quantity, newCommodity),
				Cost:    &uabean.CostSpec{Number: &price, Currency: row.Currency, Date: held.Date},
				Meta: uabean.Metadata{
					uabean.MetaTrueCost: held.Lot.Quantity.Mul(held.Lot.TruePrice).String(),
				},
			},
		)
	}
	imp.holdings.Rename(oldCommodity, newCommodity)
	return tx, nil
}

// autoOpen emits open directives for accounts not seen in the existing
// ledger, dated at their first use. Useful when each stock lives on its own
// subaccount.
func (imp *Importer) autoOpen(entries []uabean.Directive, existing []uabean.Directive) []uabean.Directive {
	if existing == nil {
		return nil
	}
	opened := make(map[string]bool)
	for _, entry := range existing {
		tx, ok := entry.(*uabean.Transaction)
		if !ok {
			continue
		}
		for _, p := range tx.Postings {
			opened[p.Account] = true
		}
	}
	var opens []uabean.Directive
	for _, entry := range entries {
		tx, ok := entry.(*uabean.Transaction)
		if !ok {
			continue
		}
		for _, p := range tx.Postings {
			if opened[p.Account] {
				continue
			}
			currency := "USD"
			if p.Units.Currency() != "" {
				currency = symbolCurrency(p.Units.Currency())
			}
			opens = append(opens, &uabean.Open{
				Date:       firstUse(entries, p.Account),
				Account:    p.Account,
				Currencies: []string{currency},
			})
			opened[p.Account] = true
		}
	}
	return opens
}

func firstUse(entries []uabean.Directive, account string) uabean.Date {
	var min uabean.Date
	for _, entry := range entries {
		tx, ok := entry.(*uabean.Transaction)
		if !ok {
			continue
		}
		for _, p := range tx.Postings {
			if p.Account == account && (min.IsZero() || tx.Date.Before(min)) {
				min = tx.Date
				break
			}
		}
	}
	return min
}
