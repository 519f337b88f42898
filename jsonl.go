package uabean

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// The jsonl codec persists extracted directives, one JSON object per line,
// with a "directive" field naming the kind. The import CLI uses it to keep a
// machine-readable ledger next to the plain-text output: re-imports read it
// back for holdings seeding, transfer matching and predictor training.

const (
	kindTransaction = "transaction"
	kindBalance     = "balance"
	kindOpen        = "open"
)

type jsonEnvelope struct {
	Directive string `json:"directive"`
}

type jsonAmount struct {
	Number   decimal.Decimal `json:"number"`
	Currency string          `json:"currency,omitempty"`
}

func newJSONAmount(a Amount) jsonAmount {
	return jsonAmount{Number: a.Decimal(), Currency: a.Currency()}
}

func (a jsonAmount) amount() Amount { return A(a.Number, a.Currency) }

type jsonCost struct {
	Number   *decimal.Decimal `json:"number,omitempty"`
	Currency string           `json:"currency,omitempty"`
	Date     Date             `json:"date"`
}

type jsonPosting struct {
	Account  string           `json:"account"`
	Number   *decimal.Decimal `json:"number,omitempty"`
	Currency string           `json:"currency,omitempty"`
	Cost     *jsonCost        `json:"cost,omitempty"`
	Price    *jsonAmount      `json:"price,omitempty"`
	Flag     string           `json:"flag,omitempty"`
	Meta     Metadata         `json:"meta,omitempty"`
}

type jsonTransaction struct {
	jsonEnvelope
	Date      Date          `json:"date"`
	Flag      string        `json:"flag,omitempty"`
	Payee     string        `json:"payee,omitempty"`
	Narration string        `json:"narration,omitempty"`
	Meta      Metadata      `json:"meta,omitempty"`
	Postings  []jsonPosting `json:"postings"`
}

type jsonBalance struct {
	jsonEnvelope
	Date    Date       `json:"date"`
	Account string     `json:"account"`
	Amount  jsonAmount `json:"amount"`
}

type jsonOpen struct {
	jsonEnvelope
	Date       Date     `json:"date"`
	Account    string   `json:"account"`
	Currencies []string `json:"currencies,omitempty"`
}

// EncodeJSONL writes directives in JSONL form, one directive per line.
func EncodeJSONL(w io.Writer, entries []Directive) error {
	for _, entry := range entries {
		var v any
		switch d := entry.(type) {
		case *Transaction:
			tx := jsonTransaction{
				jsonEnvelope: jsonEnvelope{Directive: kindTransaction},
				Date:         d.Date,
				Flag:         d.Flag,
				Payee:        d.Payee,
				Narration:    d.Narration,
				Meta:         d.Meta,
				Postings:     make([]jsonPosting, 0, len(d.Postings)),
			}
			for _, p := range d.Postings {
				jp := jsonPosting{Account: p.Account, Flag: p.Flag, Meta: p.Meta}
				if p.Units.Currency() != "" || !p.Units.IsZero() {
					number := p.Units.Decimal()
					jp.Number, jp.Currency = &number, p.Units.Currency()
				}
				if p.Cost != nil {
					jp.Cost = &jsonCost{Number: p.Cost.Number, Currency: p.Cost.Currency, Date: p.Cost.Date}
				}
				if p.Price != nil {
					price := newJSONAmount(*p.Price)
					jp.Price = &price
				}
				tx.Postings = append(tx.Postings, jp)
			}
			v = tx
		case *BalanceAssertion:
			v = jsonBalance{jsonEnvelope{kindBalance}, d.Date, d.Account, newJSONAmount(d.Amount)}
		case *Open:
			v = jsonOpen{jsonEnvelope{kindOpen}, d.Date, d.Account, d.Currencies}
		default:
			return fmt.Errorf("unsupported directive type %T", entry)
		}
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	return nil
}

// DecodeJSONL reads directives written by EncodeJSONL. Empty lines are
// skipped.
func DecodeJSONL(r io.Reader) ([]Directive, error) {
	var entries []Directive
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var envelope jsonEnvelope
		if err := json.Unmarshal(line, &envelope); err != nil {
			return nil, fmt.Errorf("cannot identify directive in line %q: %w", string(line), err)
		}
		switch envelope.Directive {
		case kindTransaction:
			var tx jsonTransaction
			if err := json.Unmarshal(line, &tx); err != nil {
				return nil, err
			}
			out := &Transaction{
				Date:      tx.Date,
				Flag:      tx.Flag,
				Payee:     tx.Payee,
				Narration: tx.Narration,
				Meta:      tx.Meta,
			}
			if out.Meta == nil {
				out.Meta = make(Metadata)
			}
			for _, jp := range tx.Postings {
				p := Posting{Account: jp.Account, Flag: jp.Flag, Meta: jp.Meta}
				if jp.Number != nil {
					p.Units = A(*jp.Number, jp.Currency)
				}
				if jp.Cost != nil {
					p.Cost = &CostSpec{Number: jp.Cost.Number, Currency: jp.Cost.Currency, Date: jp.Cost.Date}
				}
				if jp.Price != nil {
					price := jp.Price.amount()
					p.Price = &price
				}
				out.Postings = append(out.Postings, p)
			}
			entries = append(entries, out)
		case kindBalance:
			var b jsonBalance
			if err := json.Unmarshal(line, &b); err != nil {
				return nil, err
			}
			entries = append(entries, &BalanceAssertion{Date: b.Date, Account: b.Account, Amount: b.Amount.amount()})
		case kindOpen:
			var o jsonOpen
			if err := json.Unmarshal(line, &o); err != nil {
				return nil, err
			}
			entries = append(entries, &Open{Date: o.Date, Account: o.Account, Currencies: o.Currencies})
		default:
			return nil, fmt.Errorf("unknown directive kind %q", envelope.Directive)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading directives: %w", err)
	}
	return entries, nil
}

// LoadJSONL reads a directives file, returning no directives when the file
// does not exist yet.
func LoadJSONL(path string) ([]Directive, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	entries, err := DecodeJSONL(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}
