// Package cli implements the ballast command line tool.
package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aristath/ballast/internal/clients/analysis"
	"github.com/aristath/ballast/internal/config"
	"github.com/aristath/ballast/internal/modules/rebalancing"
	"github.com/aristath/ballast/pkg/logger"
	"github.com/google/subcommands"
	"github.com/rs/zerolog"
)

// Commands lists every subcommand in display order.
var Commands = []subcommands.Command{
	&rebalanceCmd{},
	&driftCmd{},
	&settingsCmd{},
}

// Overridden in tests.
var (
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// commonFlags are shared by the commands that run the engine.
type commonFlags struct {
	settings    string
	analysisURL string
	timeout     time.Duration
	asJSON      bool
	verbose     bool
}

func (c *commonFlags) register(f *flag.FlagSet) {
	f.StringVar(&c.settings, "settings", "", "YAML file with engine settings. Defaults apply when empty.")
	f.StringVar(&c.analysisURL, "analysis-url", "", "Base URL of the analysis service used to fetch market caps.")
	f.DurationVar(&c.timeout, "timeout", 10*time.Second, "Timeout for analysis service requests.")
	f.BoolVar(&c.asJSON, "json", false, "Print the result as JSON.")
	f.BoolVar(&c.verbose, "v", false, "Log engine progress to stderr.")
}

func (c *commonFlags) newLogger() zerolog.Logger {
	level := "warn"
	if c.verbose {
		level = "debug"
	}
	return logger.New(logger.Config{Level: level, Pretty: true, Output: stderr})
}

// service builds a rebalancing service without persistence.
func (c *commonFlags) service() (*rebalancing.Service, error) {
	log := c.newLogger()

	settings, err := config.LoadEngineSettings(c.settings)
	if err != nil {
		return nil, err
	}

	engine, err := rebalancing.NewEngine(settings.Options(), log)
	if err != nil {
		return nil, err
	}

	var provider rebalancing.AnalysisProvider
	if c.analysisURL != "" {
		provider = analysis.NewClient(c.analysisURL, c.timeout, nil, log)
	}

	return rebalancing.NewService(engine, provider, nil, settings.ServiceConfig(), log), nil
}

// readInput decodes the JSON document at path, or stdin when path is "-".
func readInput(path string, v interface{}) error {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func writeJSON(v interface{}) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(stderr, err)
	if rebalancing.IsInputError(err) {
		return subcommands.ExitUsageError
	}
	return subcommands.ExitFailure
}
