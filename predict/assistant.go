package predict

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/OSadovy/uabean"
)

// Suggester proposes the balancing account of a transaction. Implemented by
// the trained Predictor and by the Gemini-backed Assistant.
type Suggester interface {
	SuggestAccount(ctx context.Context, tx *uabean.Transaction) (string, error)
}

// DefaultModel is the model the Assistant asks.
const DefaultModel = "gemini-2.5-flash"

// Assistant suggests accounts with a Gemini model, for interactive review of
// transactions the classifier has not seen enough of.
type Assistant struct {
	Model string
	// Accounts is the chart of accounts the model must choose from.
	Accounts []string

	client *genai.Client
}

func NewAssistant(client *genai.Client, accounts []string) *Assistant {
	return &Assistant{Model: DefaultModel, Accounts: accounts, client: client}
}

// SuggestAccount asks the model to pick an account for the transaction. The
// answer must be one of the configured accounts.
func (a *Assistant) SuggestAccount(ctx context.Context, tx *uabean.Transaction) (string, error) {
	resp, err := a.client.Models.GenerateContent(ctx, a.Model, genai.Text(a.prompt(tx)), nil)
	if err != nil {
		return "", fmt.Errorf("cannot ask %s: %w", a.Model, err)
	}
	return a.pickAccount(resp.Text())
}

func (a *Assistant) prompt(tx *uabean.Transaction) string {
	var b strings.Builder
	b.WriteString("You are a bookkeeper. Pick the single account that best categorizes the transaction below.\n")
	b.WriteString("Answer with the account name only, exactly as listed.\n\nAccounts:\n")
	for _, account := range a.Accounts {
		b.WriteString("  " + account + "\n")
	}
	fmt.Fprintf(&b, "\nTransaction on %s:\n", tx.Date)
	if tx.Payee != "" {
		fmt.Fprintf(&b, "  payee: %s\n", tx.Payee)
	}
	if tx.Narration != "" {
		fmt.Fprintf(&b, "  narration: %s\n", tx.Narration)
	}
	if category := tx.Meta[uabean.MetaCategory]; category != "" {
		fmt.Fprintf(&b, "  category: %s\n", category)
	}
	for _, posting := range tx.Postings {
		fmt.Fprintf(&b, "  %s %s\n", posting.Account, posting.Units)
	}
	return b.String()
}

// pickAccount validates the model's answer against the chart of accounts.
func (a *Assistant) pickAccount(answer string) (string, error) {
	answer = strings.Trim(strings.TrimSpace(answer), "`\"'")
	for _, account := range a.Accounts {
		if account == answer {
			return account, nil
		}
	}
	return "", fmt.Errorf("model answered %q, not one of the configured accounts", answer)
}
