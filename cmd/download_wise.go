package cmd

import (
	"context"
	"crypto/rsa"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/google/subcommands"

	"github.com/OSadovy/uabean/downloaders/wise"
)

type downloadWiseCmd struct {
	from        string
	to          string
	days        int
	profileType string
	currency    string
	format      string
	keyFile     string
	dir         string
}

func (*downloadWiseCmd) Name() string     { return "download-wise" }
func (*downloadWiseCmd) Synopsis() string { return "fetch Wise balance statements" }
func (*downloadWiseCmd) Usage() string {
	return `download-wise -key wise-private.pem [-days 31 | -from 2023-01-01 [-to 2023-02-01]] [-profile personal] [-currency USD] [-format json] [-dir .]

Fetch balance statements from the Wise API. The token is read from the
WISE_API_TOKEN environment variable; statement endpoints additionally need
the RSA private key whose public half is registered with the Wise profile.
`
}

func (c *downloadWiseCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.from, "from", "", "start date (2006-01-02), overrides -days; balances created later start at their creation time")
	f.StringVar(&c.to, "to", "", "end date (2006-01-02), defaults to now")
	f.IntVar(&c.days, "days", 31, "how many days back to fetch when -from is not given")
	f.StringVar(&c.profileType, "profile", "", "only fetch profiles of this type, personal or business")
	f.StringVar(&c.currency, "currency", "", "only fetch balances in this currency")
	f.StringVar(&c.format, "format", "json", "statement format, json or csv")
	f.StringVar(&c.keyFile, "key", "", "path to the RSA private key pem used to sign SCA challenges")
	f.StringVar(&c.dir, "dir", ".", "directory to write the statements to")
}

func (c *downloadWiseCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	token := os.Getenv("WISE_API_TOKEN")
	if token == "" {
		fmt.Fprintln(os.Stderr, "Error: WISE_API_TOKEN is not set")
		return subcommands.ExitUsageError
	}
	start, end, err := dateRange(c.from, c.to, c.days)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	var key *rsa.PrivateKey
	if c.keyFile != "" {
		if key, err = wise.LoadPrivateKey(c.keyFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
	}

	d := wise.NewDownloader(wise.NewClient(token, key, http.DefaultClient))
	d.ProfileType = c.profileType
	d.Currency = c.currency
	d.Format = c.format
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
