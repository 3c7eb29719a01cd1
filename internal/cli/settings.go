package cli

import (
	"context"
	"flag"

	"github.com/aristath/ballast/internal/config"
	"github.com/google/subcommands"
	"gopkg.in/yaml.v3"
)

type settingsCmd struct {
	settings string
}

func (*settingsCmd) Name() string     { return "settings" }
func (*settingsCmd) Synopsis() string { return "print the effective engine settings as YAML" }
func (*settingsCmd) Usage() string {
	return `ballast settings [-settings <file>]

  Prints the engine settings after applying the optional settings file on top
  of the defaults. The output is a valid settings file.
`
}

func (p *settingsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.settings, "settings", "", "YAML file with engine settings.")
}

func (p *settingsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	settings, err := config.LoadEngineSettings(p.settings)
	if err != nil {
		return fail(err)
	}

	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	if err := enc.Encode(settings); err != nil {
		return fail(err)
	}
	if err := enc.Close(); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}
