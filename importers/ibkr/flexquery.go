package ibkr

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/OSadovy/uabean"
)

// FlexQuery XML document model. Only the attributes the importer reads are
// declared; the report carries many more.

type flexQueryResponse struct {
	XMLName    xml.Name        `xml:"FlexQueryResponse"`
	Statements []flexStatement `xml:"FlexStatements>FlexStatement"`
}

type flexStatement struct {
	AccountID        string               `xml:"accountId,attr"`
	Trades           tradeList            `xml:"Trades"`
	CashTransactions []cashTransaction    `xml:"CashTransactions>CashTransaction"`
	CashReport       []cashReportCurrency `xml:"CashReport>CashReportCurrency"`
	CorporateActions []corporateAction    `xml:"CorporateActions>CorporateAction"`
}

type trade struct {
	Symbol        string     `xml:"symbol,attr"`
	Currency      string     `xml:"currency,attr"`
	BuySell       string     `xml:"buySell,attr"`
	OpenClose     string     `xml:"openCloseIndicator,attr"`
	Quantity      ibDecimal  `xml:"quantity,attr"`
	TradePrice    ibDecimal  `xml:"tradePrice,attr"`
	NetCash       ibDecimal  `xml:"netCash,attr"`
	Proceeds      ibDecimal  `xml:"proceeds,attr"`
	Cost          ibDecimal  `xml:"cost,attr"`
	Commission    ibDecimal  `xml:"ibCommission,attr"`
	CommissionCur string     `xml:"ibCommissionCurrency,attr"`
	TradeDate     ibDate     `xml:"tradeDate,attr"`
	DateTime      ibDateTime `xml:"dateTime,attr"`

	// Closing lot references following this trade in document order.
	Lots []closedLot `xml:"-"`
}

type closedLot struct {
	Symbol       string     `xml:"symbol,attr"`
	Currency     string     `xml:"currency,attr"`
	Quantity     ibDecimal  `xml:"quantity,attr"`
	Cost         ibDecimal  `xml:"cost,attr"`
	OpenDateTime ibDateTime `xml:"openDateTime,attr"`
}

// tradeList keeps the interleaved Trade/Lot document order: each Lot element
// references the Trade element it follows.
type tradeList struct {
	Trades []trade
}

func (l *tradeList) UnmarshalXML(d *xml.Decoder, _ xml.StartElement) error {
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "Trade":
				var tr trade
				if err := d.DecodeElement(&tr, &t); err != nil {
					return err
				}
				l.Trades = append(l.Trades, tr)
			case "Lot":
				var lot closedLot
				if err := d.DecodeElement(&lot, &t); err != nil {
					return err
				}
				if len(l.Trades) == 0 {
					return fmt.Errorf("closed lot of %s precedes any trade", lot.Symbol)
				}
				last := &l.Trades[len(l.Trades)-1]
				last.Lots = append(last.Lots, lot)
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			return nil
		}
	}
}

type cashTransaction struct {
	Type        string    `xml:"type,attr"`
	Symbol      string    `xml:"symbol,attr"`
	Currency    string    `xml:"currency,attr"`
	Amount      ibDecimal `xml:"amount,attr"`
	Description string    `xml:"description,attr"`
	ReportDate  ibDate    `xml:"reportDate,attr"`
}

type cashReportCurrency struct {
	Currency   string    `xml:"currency,attr"`
	EndingCash ibDecimal `xml:"endingCash,attr"`
	ToDate     ibDate    `xml:"toDate,attr"`
}

type corporateAction struct {
	ActionID    string    `xml:"actionID,attr"`
	Type        string    `xml:"type,attr"`
	Symbol      string    `xml:"symbol,attr"`
	Currency    string    `xml:"currency,attr"`
	Description string    `xml:"description,attr"`
	Quantity    ibDecimal `xml:"quantity,attr"`
	Proceeds    ibDecimal `xml:"proceeds,attr"`
	Value       ibDecimal `xml:"value,attr"`
	ReportDate  ibDate    `xml:"reportDate,attr"`
}

// ibDecimal decodes numeric attributes, tolerating thousands separators and
// empty values.
type ibDecimal struct {
	decimal.Decimal
}

func (v *ibDecimal) UnmarshalXMLAttr(attr xml.Attr) error {
	s := strings.ReplaceAll(strings.TrimSpace(attr.Value), ",", "")
	if s == "" {
		v.Decimal = decimal.Decimal{}
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid number %q in attribute %s: %w", attr.Value, attr.Name.Local, err)
	}
	v.Decimal = d
	return nil
}

// ibDate decodes date attributes in either of the report's formats.
type ibDate struct {
	uabean.Date
}

func (v *ibDate) UnmarshalXMLAttr(attr xml.Attr) error {
	if attr.Value == "" {
		return nil
	}
	on, err := parseIBDate(attr.Value)
	if err != nil {
		return err
	}
	v.Date = on
	return nil
}

// ibDateTime decodes combined date-time attributes like "20230315;094512".
type ibDateTime struct {
	Date  uabean.Date
	Clock uabean.Clock
}

func (v *ibDateTime) UnmarshalXMLAttr(attr xml.Attr) error {
	if attr.Value == "" {
		return nil
	}
	datePart, timePart, hasTime := cutAny(attr.Value, ";", " ")
	on, err := parseIBDate(datePart)
	if err != nil {
		return err
	}
	v.Date = on
	if hasTime {
		if len(timePart) == 6 { // "094512"
			timePart = timePart[:2] + ":" + timePart[2:4] + ":" + timePart[4:]
		}
		c, err := uabean.ParseClock(timePart)
		if err != nil {
			return err
		}
		v.Clock = c
	}
	return nil
}

func parseIBDate(s string) (uabean.Date, error) {
	if len(s) == 8 && !strings.Contains(s, "-") {
		s = s[:4] + "-" + s[4:6] + "-" + s[6:]
	}
	return uabean.ParseDate(s)
}

func cutAny(s string, seps ...string) (before, after string, found bool) {
	for _, sep := range seps {
		if b, a, ok := strings.Cut(s, sep); ok {
			return b, a, true
		}
	}
	return s, "", false
}
