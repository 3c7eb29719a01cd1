package cli

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/aristath/ballast/internal/modules/rebalancing"
	"github.com/google/subcommands"
)

type driftCmd struct {
	commonFlags
}

func (*driftCmd) Name() string { return "drift" }
func (*driftCmd) Synopsis() string {
	return "show how far each holding sits from its market-cap weight"
}
func (*driftCmd) Usage() string {
	return `ballast drift [-settings <file>] [-json] <portfolio.json|->

  Compares the assigned weights of a fully allocated portfolio with market-cap
  weights and grades each difference as low, medium or high. Correlated pairs
  reported by the analysis service, or listed under "correlation_flags" in the
  input, are printed below the table.
`
}

func (p *driftCmd) SetFlags(f *flag.FlagSet) {
	p.commonFlags.register(f)
}

func (p *driftCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(stderr, p.Usage())
		return subcommands.ExitUsageError
	}

	var req rebalancing.DriftRequest
	if err := readInput(f.Arg(0), &req); err != nil {
		return fail(err)
	}

	svc, err := p.service()
	if err != nil {
		return fail(err)
	}

	report, err := svc.Drift(ctx, req)
	if err != nil {
		return fail(err)
	}

	if p.asJSON {
		if err := writeJSON(report); err != nil {
			return fail(err)
		}
		return subcommands.ExitSuccess
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Symbol\tAssigned\tMarket cap\tDifference\tLevel\t")
	for _, h := range report.Holdings {
		fmt.Fprintf(w, "%s\t%.2f%%\t%.2f%%\t%+.2f\t%s\t\n",
			h.Symbol, h.AssignedWeight*100, h.MarketCapWeight*100, h.Difference*100, h.Level)
	}
	if err := w.Flush(); err != nil {
		return fail(err)
	}
	fmt.Fprintf(stdout, "\nmax_drift=%.2f level=%s\n", report.MaxDrift*100, report.Level)

	if len(report.CorrelationFlags) > 0 {
		if err := writeCorrelationFlags(report.CorrelationFlags); err != nil {
			return fail(err)
		}
	}

	return subcommands.ExitSuccess
}

// writeCorrelationFlags prints flagged pairs sorted by pair name.
func writeCorrelationFlags(flags map[string]rebalancing.CorrelationFlag) error {
	pairs := make([]string, 0, len(flags))
	for pair := range flags {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)

	fmt.Fprintln(stdout, "\nCorrelated pairs:")
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Pair\tCorrelation\tLevel\t")
	for _, pair := range pairs {
		cf := flags[pair]
		fmt.Fprintf(w, "%s\t%.2f\t%s\t\n", pair, cf.Value, cf.Level)
	}
	return w.Flush()
}
