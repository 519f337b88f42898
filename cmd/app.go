// Package cmd implements the uabean CLI: statement identification and
// extraction, provider downloaders and the balancing-leg predictor.
package cmd

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/OSadovy/uabean"
)

// Register the subcommands. A main package calls Register() and then
// Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	c.Register(&identifyCmd{}, "import")
	c.Register(&extractCmd{}, "import")
	c.Register(&predictCmd{}, "import")

	c.Register(&downloadMonobankCmd{}, "download")
	c.Register(&downloadWiseCmd{}, "download")

	c.Register(&topicCmd{}, "help")
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to
// use global variables.

var configFile = flag.String("config", "uabean.json", "Path to the importer configuration file")

// LoadExisting reads previously extracted directives from a jsonl ledger
// file. A missing file is fine and yields no entries.
func LoadExisting(path string) ([]uabean.Directive, error) {
	if path == "" {
		return nil, nil
	}
	entries, err := uabean.LoadJSONL(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read existing entries from %q: %w", path, err)
	}
	return entries, nil
}

// openOutput returns the writer for a command's result, stdout when path is
// empty, and a close function.
func openOutput(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
