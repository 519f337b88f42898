package cmd

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/OSadovy/uabean/downloaders/monobank"
)

type downloadMonobankCmd struct {
	from        string
	to          string
	days        int
	accountType string
	currency    string
	dir         string
}

func (*downloadMonobankCmd) Name() string     { return "download-monobank" }
func (*downloadMonobankCmd) Synopsis() string { return "fetch monobank csv statements" }
func (*downloadMonobankCmd) Usage() string {
	return `download-monobank [-days 31 | -from 2023-01-01 [-to 2023-02-01]] [-type black] [-currency UAH] [-dir .]

Fetch csv statements from the monobank personal API and write them named so
the monobank importer picks the right account. The token is read from the
MONOBANK_TOKEN environment variable. The API allows one statement request
per minute, long ranges take a while.
`
}

func (c *downloadMonobankCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.from, "from", "", "start date (2006-01-02), overrides -days")
	f.StringVar(&c.to, "to", "", "end date (2006-01-02), defaults to now")
	f.IntVar(&c.days, "days", 31, "how many days back to fetch when -from is not given")
	f.StringVar(&c.accountType, "type", "", "only fetch accounts of this card type, e.g. black")
	f.StringVar(&c.currency, "currency", "", "only fetch accounts in this currency")
	f.StringVar(&c.dir, "dir", ".", "directory to write the statements to")
}

// dateRange resolves the -from/-to/-days flags into a concrete time range.
func dateRange(from, to string, days int) (time.Time, time.Time, error) {
	end := time.Now()
	if to != "" {
		var err error
		if end, err = time.Parse("2006-01-02", to); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -to: %w", err)
		}
	}
	start := end.AddDate(0, 0, -days)
	if from != "" {
		var err error
		if start, err = time.Parse("2006-01-02", from); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -from: %w", err)
		}
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start %s is not before end %s", start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return start, end, nil
}

func (c *downloadMonobankCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	token := os.Getenv("MONOBANK_TOKEN")
	if token == "" {
		fmt.Fprintln(os.Stderr, "Error: MONOBANK_TOKEN is not set")
		return subcommands.ExitUsageError
	}
	start, end, err := dateRange(c.from, c.to, c.days)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	d := monobank.NewDownloader(monobank.NewClient(token, http.DefaultClient))
	d.AccountType = c.accountType
	d.Currency = c.currency
	d.OutputDir = c.dir
	paths, err := d.Run(start, end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	for _, path := range paths {
		fmt.Println(path)
	}
	return subcommands.ExitSuccess
}
