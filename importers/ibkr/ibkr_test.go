package ibkr

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/OSadovy/uabean"
)

func flexFile(body string) *uabean.File {
	return uabean.NewFileFromBytes("flex.xml", []byte(
		`<FlexQueryResponse queryName="q" type="AF"><FlexStatements count="1">`+
			`<FlexStatement accountId="U123">`+body+`</FlexStatement>`+
			`</FlexStatements></FlexQueryResponse>`))
}

func extract(t *testing.T, f *uabean.File, existing []uabean.Directive) []uabean.Directive {
	t.Helper()
	directives, err := New().Extract(f, existing)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	return directives
}

func transactions(directives []uabean.Directive) []*uabean.Transaction {
	var txs []*uabean.Transaction
	for _, d := range directives {
		if tx, ok := d.(*uabean.Transaction); ok {
			txs = append(txs, tx)
		}
	}
	return txs
}

func TestIdentify(t *testing.T) {
	if !New().Identify(flexFile("<Trades></Trades>")) {
		t.Error("Identify() = false for a FlexQuery report")
	}
	other := uabean.NewFileFromBytes("r.xml", []byte("<xml></xml>"))
	if New().Identify(other) {
		t.Error("Identify() = true for an unrelated xml")
	}
}

func TestStockTradeOpenAndClose(t *testing.T) {
	f := flexFile(`<Trades>
		<Trade symbol="AAPL" currency="USD" buySell="BUY" openCloseIndicator="O" quantity="10" tradePrice="100" proceeds="-1000" netCash="-1001" cost="1001" ibCommission="-1" ibCommissionCurrency="USD" tradeDate="20230110" dateTime="20230110;143000"/>
		<Trade symbol="AAPL" currency="USD" buySell="SELL" openCloseIndicator="C" quantity="-10" tradePrice="110" proceeds="1100" netCash="1099" cost="-1100" ibCommission="-1" ibCommissionCurrency="USD" tradeDate="20230210" dateTime="20230210;100000"/>
		<Lot symbol="AAPL" currency="USD" quantity="10" cost="1001" openDateTime="20230110;143000"/>
	</Trades>`)
	txs := transactions(extract(t, f, nil))
	if len(txs) != 2 {
		t.Fatalf("got %d transactions, want 2", len(txs))
	}

	buy := txs[0]
	if buy.Narration != "BUY 10 AAPL @ 100.00 USD" {
		t.Errorf("buy narration = %q", buy.Narration)
	}
	// cash, asset lot, commission
	if len(buy.Postings) != 3 {
		t.Fatalf("buy got %d postings, want 3", len(buy.Postings))
	}
	lot := buy.Postings[1]
	if lot.Account != "Assets:Investments:IB:AAPL" {
		t.Errorf("asset account = %q", lot.Account)
	}
	if lot.Cost == nil || lot.Cost.Number == nil || !lot.Cost.Number.Equal(decimal.NewFromInt(100)) {
		t.Errorf("buy cost = %v, want 100", lot.Cost)
	}
	if got := lot.Meta[uabean.MetaTrueCost]; got != "1001" {
		t.Errorf("true_cost = %q", got)
	}
	if got, want := buy.Postings[2].Units, uabean.A(1, "USD"); !got.Equal(want) {
		t.Errorf("commission fee = %s, want %s", got, want)
	}
	if buy.Postings[2].Flag != "C" {
		t.Errorf("commission flag = %q, want C", buy.Postings[2].Flag)
	}

	sell := txs[1]
	// cash, closed lot, pnl, commission
	if len(sell.Postings) != 4 {
		t.Fatalf("sell got %d postings, want 4", len(sell.Postings))
	}
	closed := sell.Postings[1]
	if got, want := closed.Units, uabean.A(-10, "AAPL"); !got.Equal(want) {
		t.Errorf("closed units = %s, want %s", got, want)
	}
	if closed.Cost == nil || closed.Cost.Number == nil {
		t.Fatal("closed lot lost its cost basis")
	}
	if !closed.Cost.Number.Equal(decimal.NewFromInt(100)) {
		t.Errorf("closed cost = %s, want the original trade price 100", closed.Cost.Number)
	}
	if got, want := closed.Cost.Date, uabean.NewDate(2023, 1, 10); got != want {
		t.Errorf("closed cost date = %s, want the open date %s", got, want)
	}
	if got, want := sell.Postings[2].Account, "Income:Investments:IB:AAPL:PnL"; got != want {
		t.Errorf("pnl account = %q", got)
	}
}

func TestCloseWithoutHoldingsWarnsAndProceeds(t *testing.T) {
	f := flexFile(`<Trades>
		<Trade symbol="AAPL" currency="USD" buySell="SELL" openCloseIndicator="C" quantity="-10" tradePrice="110" proceeds="1100" netCash="1099" cost="-1100" ibCommission="-1" ibCommissionCurrency="USD" tradeDate="20230210" dateTime="20230210;100000"/>
		<Lot symbol="AAPL" currency="USD" quantity="10" cost="1001" openDateTime="20230110;143000"/>
	</Trades>`)
	txs := transactions(extract(t, f, nil))
	closed := txs[0].Postings[1]
	if closed.Cost == nil {
		t.Fatal("closed lot must keep a cost spec even without a match")
	}
	if closed.Cost.Number != nil {
		t.Errorf("cost number = %s, want nil on lot shortfall", closed.Cost.Number)
	}
}

// Seeding from an existing ledger must let a later batch close lots opened in
// an earlier one.
func TestCloseAgainstSeededHoldings(t *testing.T) {
	number := decimal.NewFromInt(100)
	prior := uabean.NewTransaction(uabean.NewDate(2023, 1, 10), "AAPL", "BUY 10 AAPL @ 100.00 USD")
	prior.Postings = append(prior.Postings, uabean.Posting{
		Account: "Assets:Investments:IB:AAPL",
		Units:   uabean.A(10, "AAPL"),
		Cost:    &uabean.CostSpec{Number: &number, Currency: "USD", Date: uabean.NewDate(2023, 1, 10)},
		Meta:    uabean.Metadata{uabean.MetaTrueCost: "1001"},
	})
	f := flexFile(`<Trades>
		<Trade symbol="AAPL" currency="USD" buySell="SELL" openCloseIndicator="C" quantity="-10" tradePrice="110" proceeds="1100" netCash="1099" cost="-1100" ibCommission="-1" ibCommissionCurrency="USD" tradeDate="20230210" dateTime="20230210;100000"/>
		<Lot symbol="AAPL" currency="USD" quantity="10" cost="1001" openDateTime="20230110;143000"/>
	</Trades>`)
	txs := transactions(extract(t, f, []uabean.Directive{prior}))
	var sell *uabean.Transaction
	for _, tx := range txs {
		if strings.HasPrefix(tx.Narration, "SELL") {
			sell = tx
		}
	}
	if sell == nil {
		t.Fatal("no sell transaction")
	}
	closed := sell.Postings[1]
	if closed.Cost == nil || closed.Cost.Number == nil {
		t.Fatal("seeded holdings did not cover the close")
	}
	if !closed.Cost.Number.Equal(decimal.NewFromInt(100)) {
		t.Errorf("closed cost = %s, want 100", closed.Cost.Number)
	}
}

func TestForexTrade(t *testing.T) {
	f := flexFile(`<Trades>
		<Trade symbol="USD.CHF" currency="CHF" buySell="BUY" quantity="100" tradePrice="0.92" proceeds="-92" netCash="-94" cost="0" ibCommission="-2" ibCommissionCurrency="CHF" tradeDate="20230120" dateTime="20230120;120000"/>
	</Trades>`)
	txs := transactions(extract(t, f, nil))
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}
	tx := txs[0]
	if len(tx.Postings) != 4 {
		t.Fatalf("got %d postings, want 4", len(tx.Postings))
	}
	if got, want := tx.Postings[0].Units, uabean.A(100, "USD"); !got.Equal(want) {
		t.Errorf("primary units = %s, want %s", got, want)
	}
	if tx.Postings[0].Price == nil || !tx.Postings[0].Price.Equal(uabean.A(0.92, "CHF")) {
		t.Errorf("price = %v, want 0.92 CHF", tx.Postings[0].Price)
	}
	if got, want := tx.Postings[1].Units, uabean.A(-92, "CHF"); !got.Equal(want) {
		t.Errorf("proceeds = %s, want %s", got, want)
	}
	if got, want := tx.Postings[3].Units, uabean.A(2, "CHF"); !got.Equal(want) {
		t.Errorf("fee = %s, want %s", got, want)
	}
}

func TestDividendAndWithholdingMerge(t *testing.T) {
	f := flexFile(`<CashTransactions>
		<CashTransaction type="Dividends" symbol="MSFT" currency="USD" amount="50" description="MSFT(US5949181045) CASH DIVIDEND USD 0.68 PER SHARE (Ordinary Dividend)" reportDate="20230315"/>
		<CashTransaction type="Withholding Tax" symbol="MSFT" currency="USD" amount="-7.5" description="MSFT(US5949181045) CASH DIVIDEND USD 0.68 PER SHARE - US TAX" reportDate="20230315"/>
	</CashTransactions>`)
	txs := transactions(extract(t, f, nil))
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1 merged dividend", len(txs))
	}
	tx := txs[0]
	if got := tx.Meta[uabean.MetaISIN]; got != "US5949181045" {
		t.Errorf("isin = %q", got)
	}
	if got := tx.Meta[uabean.MetaPerShare]; got != "0.68" {
		t.Errorf("per_share = %q", got)
	}
	if _, ok := tx.Meta[uabean.MetaDividendTyp]; ok {
		t.Error("merged dividend must not keep the div_type marker")
	}
	if len(tx.Postings) != 3 {
		t.Fatalf("got %d postings, want income + cash + withholding", len(tx.Postings))
	}
	if got, want := tx.Postings[0].Units, uabean.A(-50, "USD"); !got.Equal(want) {
		t.Errorf("income = %s, want %s", got, want)
	}
	if got, want := tx.Postings[1].Units, uabean.A(42.5, "USD"); !got.Equal(want) {
		t.Errorf("cash = %s, want %s (dividend minus tax)", got, want)
	}
	if got, want := tx.Postings[2].Units, uabean.A(7.5, "USD"); !got.Equal(want) {
		t.Errorf("withholding = %s, want %s", got, want)
	}
}

func TestBalances(t *testing.T) {
	f := flexFile(`<CashReport>
		<CashReportCurrency currency="USD" endingCash="1234.56" toDate="20230331"/>
		<CashReportCurrency currency="BASE_SUMMARY" endingCash="9999" toDate="20230331"/>
	</CashReport>`)
	directives := extract(t, f, nil)
	if len(directives) != 1 {
		t.Fatalf("got %d directives, want 1 (BASE_SUMMARY skipped)", len(directives))
	}
	balance := directives[0].(*uabean.BalanceAssertion)
	if got, want := balance.Date, uabean.NewDate(2023, 4, 1); got != want {
		t.Errorf("balance date = %s, want %s", got, want)
	}
	if got, want := balance.Amount, uabean.A(1234.56, "USD"); !got.Equal(want) {
		t.Errorf("balance = %s, want %s", got, want)
	}
}

func TestForwardSplit(t *testing.T) {
	f := flexFile(`<Trades>
		<Trade symbol="TSLA" currency="USD" buySell="BUY" openCloseIndicator="O" quantity="10" tradePrice="300" proceeds="-3000" netCash="-3001" cost="3001" ibCommission="-1" ibCommissionCurrency="USD" tradeDate="20230801" dateTime="20230801;150000"/>
	</Trades>
	<CorporateActions>
		<CorporateAction actionID="A1" type="FS" symbol="TSLA" currency="USD" description="TSLA(US88160R1014) SPLIT 3 FOR 1" quantity="20" proceeds="0" value="0" reportDate="20230825"/>
	</CorporateActions>`)
	txs := transactions(extract(t, f, nil))
	if len(txs) != 2 {
		t.Fatalf("got %d transactions, want buy + split", len(txs))
	}
	split := txs[1]
	if len(split.Postings) != 2 {
		t.Fatalf("split got %d postings, want out + in per lot", len(split.Postings))
	}
	if got, want := split.Postings[0].Units, uabean.A(-10, "TSLA"); !got.Equal(want) {
		t.Errorf("out units = %s, want %s", got, want)
	}
	if got, want := split.Postings[1].Units, uabean.A(30, "TSLA"); !got.Equal(want) {
		t.Errorf("in units = %s, want %s", got, want)
	}
	if !split.Postings[1].Cost.Number.Equal(decimal.NewFromInt(100)) {
		t.Errorf("post-split cost = %s, want 100", split.Postings[1].Cost.Number)
	}
}

func TestIssueChange(t *testing.T) {
	f := flexFile(`<Trades>
		<Trade symbol="FB" currency="USD" buySell="BUY" openCloseIndicator="O" quantity="5" tradePrice="200" proceeds="-1000" netCash="-1001" cost="1001" ibCommission="-1" ibCommissionCurrency="USD" tradeDate="20230601" dateTime="20230601;150000"/>
	</Trades>
	<CorporateActions>
		<CorporateAction actionID="A2" type="IC" symbol="META" currency="USD" description="FB(US30303M1027) CUSIP/ISIN CHANGE TO (US30303M1027)" quantity="5" proceeds="0" value="0" reportDate="20230615"/>
		<CorporateAction actionID="A2" type="IC" symbol="FB.OLD" currency="USD" description="FB(US30303M1027) CUSIP/ISIN CHANGE TO (US30303M1027)" quantity="-5" proceeds="0" value="0" reportDate="20230615"/>
	</CorporateActions>`)
	txs := transactions(extract(t, f, nil))
	change := txs[1]
	if len(change.Postings) != 2 {
		t.Fatalf("issue change got %d postings, want out + in", len(change.Postings))
	}
	if got, want := change.Postings[0].Units, uabean.A(-5, "FB"); !got.Equal(want) {
		t.Errorf("out units = %s, want %s", got, want)
	}
	if got, want := change.Postings[1].Units, uabean.A(5, "META"); !got.Equal(want) {
		t.Errorf("in units = %s, want %s", got, want)
	}
}

func TestDeposit(t *testing.T) {
	f := flexFile(`<CashTransactions>
		<CashTransaction type="Deposits/Withdrawals" symbol="" currency="USD" amount="5000" description="CASH RECEIPT" reportDate="20230105"/>
	</CashTransactions>`)
	txs := transactions(extract(t, f, nil))
	tx := txs[0]
	if tx.Payee != "self" {
		t.Errorf("payee = %q, want self", tx.Payee)
	}
	if got, want := tx.Postings[0].Units, uabean.A(5000, "USD"); !got.Equal(want) {
		t.Errorf("units = %s, want %s", got, want)
	}
}

func TestUnknownCashTransactionType(t *testing.T) {
	f := flexFile(`<CashTransactions>
		<CashTransaction type="Lottery Winnings" symbol="" currency="USD" amount="1" description="X" reportDate="20230105"/>
	</CashTransactions>`)
	if _, err := New().Extract(f, nil); err == nil {
		t.Fatal("Extract() = nil error for an unknown cash transaction type")
	}
}

func TestAutoOpen(t *testing.T) {
	f := flexFile(`<Trades>
		<Trade symbol="AAPL" currency="USD" buySell="BUY" openCloseIndicator="O" quantity="10" tradePrice="100" proceeds="-1000" netCash="-1001" cost="1001" ibCommission="-1" ibCommissionCurrency="USD" tradeDate="20230110" dateTime="20230110;143000"/>
	</Trades>`)
	prior := uabean.NewTransaction(uabean.NewDate(2022, 1, 1), "", "")
	prior.Postings = append(prior.Postings, uabean.Posting{Account: "Assets:Investments:IB:Cash", Units: uabean.A(1, "USD")})
	directives := extract(t, f, []uabean.Directive{prior})
	var opens []*uabean.Open
	for _, d := range directives {
		if o, ok := d.(*uabean.Open); ok {
			opens = append(opens, o)
		}
	}
	// cash account is already open; asset and fee accounts are new
	if len(opens) != 2 {
		t.Fatalf("got %d open directives, want 2", len(opens))
	}
	if got, want := opens[0].Account, "Assets:Investments:IB:AAPL"; got != want {
		t.Errorf("opened account = %q, want %q", got, want)
	}
	if got, want := opens[0].Date, uabean.NewDate(2023, 1, 10); got != want {
		t.Errorf("open date = %s, want first use %s", got, want)
	}
	if got, want := opens[0].Currencies[0], "AAPL"; got != want {
		t.Errorf("open currency = %q, want %q", got, want)
	}
}
