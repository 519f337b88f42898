package uabean

import (
	"fmt"
	"io"
	"sort"
)

// Encode writes directives in the plain-text ledger syntax, one entry per
// block, in a canonical form: metadata keys sorted, postings in their
// semantic order. The output is what the import harness feeds to the ledger
// engine; it is append-friendly and diff-friendly.
func Encode(w io.Writer, entries []Directive) error {
	for i, entry := range entries {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		var err error
		switch v := entry.(type) {
		case *Transaction:
			err = encodeTransaction(w, v)
		case *BalanceAssertion:
			_, err = fmt.Fprintf(w, "%s balance %s  %s\n", v.Date, v.Account, v.Amount)
		case *Open:
			_, err = fmt.Fprintf(w, "%s open %s%s\n", v.Date, v.Account, joinCurrencies(v.Currencies))
		default:
			err = fmt.Errorf("unsupported directive type %T", entry)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func encodeTransaction(w io.Writer, t *Transaction) error {
	flag := t.Flag
	if flag == "" {
		flag = FlagOkay
	}
	if _, err := fmt.Fprintf(w, "%s %s%s%s\n", t.Date, flag, quoted(t.Payee), quoted(t.Narration)); err != nil {
		return err
	}
	keys := make([]string, 0, len(t.Meta))
	for k := range t.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "  %s: %q\n", k, t.Meta[k]); err != nil {
			return err
		}
	}
	for _, p := range t.Postings {
		if err := encodePosting(w, p); err != nil {
			return err
		}
	}
	return nil
}

func encodePosting(w io.Writer, p Posting) error {
	line := "  "
	if p.Flag != "" {
		line += p.Flag + " "
	}
	line += p.Account
	if !p.Units.IsZero() || p.Units.Currency() != "" {
		line += "  " + p.Units.String()
	}
	if p.Cost != nil {
		if p.Cost.Number != nil {
			line += fmt.Sprintf(" {%s %s, %s}", p.Cost.Number, p.Cost.Currency, p.Cost.Date)
		} else {
			line += fmt.Sprintf(" {%s}", p.Cost.Date)
		}
	}
	if p.Price != nil {
		line += " @ " + p.Price.String()
	}
	if _, err := fmt.Fprintln(w, line); err != nil {
		return err
	}
	keys := make([]string, 0, len(p.Meta))
	for k := range p.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "    %s: %q\n", k, p.Meta[k]); err != nil {
			return err
		}
	}
	return nil
}

func quoted(s string) string {
	if s == "" {
		return " \"\""
	}
	return fmt.Sprintf(" %q", s)
}

func joinCurrencies(currencies []string) string {
	out := ""
	for i, c := range currencies {
		if i == 0 {
			out = " " + c
		} else {
			out += "," + c
		}
	}
	return out
}
