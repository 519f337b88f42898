package cmd

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/OSadovy/uabean"
)

type identifyCmd struct{}

func (*identifyCmd) Name() string     { return "identify" }
func (*identifyCmd) Synopsis() string { return "report which importer claims each statement file" }
func (*identifyCmd) Usage() string {
	return `identify <file>...

Report, for every file, the configured importer that recognizes it, along
with the archive account and the latest operation date it would use.
`
}

func (c *identifyCmd) SetFlags(f *flag.FlagSet) {}

func (c *identifyCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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

	status := subcommands.ExitSuccess
	for _, path := range f.Args() {
		file := uabean.NewFile(path)
		claimed := uabean.Identify(importers, file)
		switch len(claimed) {
		case 0:
			fmt.Printf("%s: unknown\n", path)
			status = subcommands.ExitFailure
		case 1:
			imp := claimed[0]
			date, err := imp.Date(file)
			if err != nil {
				fmt.Printf("%s: %s (date error: %v)\n", path, imp.Name(), err)
				status = subcommands.ExitFailure
				continue
			}
			fmt.Printf("%s: %s account=%s date=%s\n", path, imp.Name(), imp.Account(file), date)
		default:
			var names []string
			for _, imp := range claimed {
				names = append(names, imp.Name())
			}
			fmt.Printf("%s: claimed by several importers: %s\n", path, strings.Join(names, ", "))
			status = subcommands.ExitFailure
		}
	}
	return status
}
