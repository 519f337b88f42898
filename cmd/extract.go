package cmd

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/google/subcommands"

	"github.com/OSadovy/uabean"
)

type extractCmd struct {
	existing    string
	out         string
	jsonlOut    string
	noTransfers bool
}

func (*extractCmd) Name() string     { return "extract" }
func (*extractCmd) Synopsis() string { return "convert statement files into ledger entries" }
func (*extractCmd) Usage() string {
	return `extract [-existing main.jsonl] [-out out.beancount] [-jsonl out.jsonl] <file>...

Convert the statement files into ledger entries using the configured
importers. Opposite legs of transfers between own accounts found across the
given files are merged into single transactions.
`
}

func (c *extractCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.existing, "existing", "", "jsonl file with previously extracted entries, used to seed cost-basis lots and already-open accounts")
	f.StringVar(&c.out, "out", "", "write the ledger text here instead of stdout")
	f.StringVar(&c.jsonlOut, "jsonl", "", "also write the entries in jsonl form to this file")
	f.BoolVar(&c.noTransfers, "no-transfers", false, "do not merge transfers between own accounts")
}

func (c *extractCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: no statement files given")
		return subcommands.ExitUsageError
	}
	cfg, err := LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	importers, err := cfg.Importers(http.DefaultClient)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	existing, err := LoadExisting(c.existing)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	var extracted []*uabean.ExtractedFile
	for _, path := range f.Args() {
		file := uabean.NewFile(path)
		claimed := uabean.Identify(importers, file)
		if len(claimed) != 1 {
			fmt.Fprintf(os.Stderr, "Error: %s is claimed by %d importers, want exactly one\n", path, len(claimed))
			return subcommands.ExitFailure
		}
		imp := claimed[0]
		entries, err := imp.Extract(file, existing)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error extracting %s with %s: %v\n", path, imp.Name(), err)
			return subcommands.ExitFailure
		}
		extracted = append(extracted, &uabean.ExtractedFile{
			Filename: path,
			Account:  imp.Account(file),
			Entries:  entries,
		})
	}

	if !c.noTransfers {
		uabean.DetectTransfers(extracted)
	}

	var entries []uabean.Directive
	for _, file := range extracted {
		entries = append(entries, file.Entries...)
	}
	uabean.SortDirectives(entries)

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
