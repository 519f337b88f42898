package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/subcommands"
	"google.golang.org/genai"

	"github.com/OSadovy/uabean"
	"github.com/OSadovy/uabean/predict"
)

type predictCmd struct {
	existing string
	start    string
	out      string
	jsonlOut string
	accounts string
	assist   bool
	model    string
}

func (*predictCmd) Name() string     { return "predict" }
func (*predictCmd) Synopsis() string { return "fill in the balancing leg of extracted entries" }
func (*predictCmd) Usage() string {
	return `predict -existing main.jsonl [-start 2023-01-01] [-assist] <extracted.jsonl>...

Train a classifier on the categorized transactions of the existing ledger
and add the missing balancing posting to the freshly extracted entries.
Predicted postings carry the "P" flag. With -assist, predictions are
additionally reviewed by a Gemini model (GEMINI_API_KEY must be set).
`
}

func (c *predictCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.existing, "existing", "", "jsonl file with the existing ledger, used as training data")
	f.StringVar(&c.start, "start", "", "only predict entries on or after this date (2006-01-02)")
	f.StringVar(&c.out, "out", "", "write the ledger text here instead of stdout")
	f.StringVar(&c.jsonlOut, "jsonl", "", "also write the predicted entries in jsonl form to this file")
	f.StringVar(&c.accounts, "accounts", "", "comma-separated import accounts, overriding the ones found in the config")
	f.BoolVar(&c.assist, "assist", false, "review predictions with a Gemini model")
	f.StringVar(&c.model, "model", predict.DefaultModel, "Gemini model used with -assist")
}

// mainAccountsFromConfig collects the concrete import accounts the config
// books statements to. Templated accounts cannot be enumerated and are
// skipped.
func mainAccountsFromConfig(cfg *Config) []string {
	var accounts []string
	add := func(m map[string]string) {
		for _, account := range m {
			accounts = append(accounts, account)
		}
	}
	if cfg.Monobank != nil {
		add(cfg.Monobank.Accounts)
	}
	if cfg.Privatbank != nil {
		add(cfg.Privatbank.Cards)
	}
	if cfg.Alfabusiness != nil {
		add(cfg.Alfabusiness.Accounts)
	}
	if cfg.Ukrsibbusiness != nil {
		add(cfg.Ukrsibbusiness.Accounts)
	}
	if cfg.Procreditbusiness != nil {
		add(cfg.Procreditbusiness.Accounts)
	}
	if cfg.IBKR != nil {
		imp := cfg.IBKR.CashAccount
		if imp == "" {
			imp = "Assets:Investments:IB:Cash"
		}
		accounts = append(accounts, imp)
	}
	return accounts
}

// ledgerAccounts lists every account a transaction of the ledger touches.
func ledgerAccounts(entries []uabean.Directive) []string {
	seen := make(map[string]bool)
	var accounts []string
	for _, entry := range entries {
		tx, ok := entry.(*uabean.Transaction)
		if !ok {
			continue
		}
		for _, account := range tx.Accounts() {
			if !seen[account] {
				seen[account] = true
				accounts = append(accounts, account)
			}
		}
	}
	return accounts
}

func (c *predictCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.existing == "" || f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: -existing and at least one extracted jsonl file are required")
		return subcommands.ExitUsageError
	}
	var start uabean.Date
	if c.start != "" {
		var err error
		if start, err = uabean.ParseDate(c.start); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid -start: %v\n", err)
			return subcommands.ExitUsageError
		}
	}

	var mainAccounts []string
	if c.accounts != "" {
		mainAccounts = strings.Split(c.accounts, ",")
	} else {
		cfg, err := LoadConfig(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		mainAccounts = mainAccountsFromConfig(cfg)
	}
	if len(mainAccounts) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no import accounts known, pass -accounts")
		return subcommands.ExitUsageError
	}

	existing, err := LoadExisting(c.existing)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	p := predict.New(predict.ConfigFor(mainAccounts), mainAccounts)
	p.Train(existing)

	var entries []uabean.Directive
	for _, path := range f.Args() {
		loaded, err := uabean.LoadJSONL(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", path, err)
			return subcommands.ExitFailure
		}
		entries = append(entries, loaded...)
	}

	predicted := p.Process(entries, start)
	if c.assist && len(predicted) > 0 {
		client, err := genai.NewClient(ctx, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating Gemini client: %v\n", err)
			return subcommands.ExitFailure
		}
		assistant := predict.NewAssistant(client, ledgerAccounts(existing))
		assistant.Model = c.model
		reviewPredictions(ctx, assistant, predicted)
	}

	w, closeOut, err := openOutput(c.out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer closeOut()
	if err := uabean.Encode(w, entries); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing entries: %v\n", err)
		return subcommands.ExitFailure
	}
	if c.jsonlOut != "" {
		jw, closeJSONL, err := openOutput(c.jsonlOut)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		defer closeJSONL()
		if err := uabean.EncodeJSONL(jw, entries); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing jsonl entries: %v\n", err)
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}

// reviewPredictions asks the assistant about every predicted transaction and
// overrides the classifier's pick when it answers with a known account. A
// failed call keeps the classifier's answer.
func reviewPredictions(ctx context.Context, suggester predict.Suggester, predicted []*uabean.Transaction) {
	for _, tx := range predicted {
		account, err := suggester.SuggestAccount(ctx, tx)
		if err != nil {
			log.Printf("assistant did not help with %s %q: %v", tx.Date, tx.Payee, err)
			continue
		}
		for i := range tx.Postings {
			if tx.Postings[i].Flag == predict.PredictedFlag {
				tx.Postings[i].Account = account
			}
		}
	}
}
