package cli

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/aristath/ballast/internal/modules/rebalancing"
	"github.com/google/subcommands"
)

type rebalanceCmd struct {
	commonFlags
	method string
}

func (*rebalanceCmd) Name() string { return "rebalance" }
func (*rebalanceCmd) Synopsis() string {
	return "compute bounded, converged target weights for a portfolio"
}
func (*rebalanceCmd) Usage() string {
	return `ballast rebalance [-method equal|market_cap] [-settings <file>] [-json] <portfolio.json|->

  Reads a portfolio document {"symbols": [...], "weights": [...percent],
  "weight_analysis": {...}} and prints the recommended weights. Every weight
  stays within the configured bounds and the displayed percentages add up to
  exactly 100.00.
`
}

func (p *rebalanceCmd) SetFlags(f *flag.FlagSet) {
	p.commonFlags.register(f)
	f.StringVar(&p.method, "method", "", "Weighting method (equal, market_cap). Overrides the document.")
}

func (p *rebalanceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(stderr, p.Usage())
		return subcommands.ExitUsageError
	}

	var req rebalancing.RecommendRequest
	if err := readInput(f.Arg(0), &req); err != nil {
		return fail(err)
	}
	if p.method != "" {
		req.Method = p.method
	}

	svc, err := p.service()
	if err != nil {
		return fail(err)
	}

	rec, err := svc.Recommend(ctx, req)
	if err != nil {
		return fail(err)
	}

	if p.asJSON {
		if err := writeJSON(rec); err != nil {
			return fail(err)
		}
		return subcommands.ExitSuccess
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Symbol\tCurrent\tTarget\tRecommended\tChange\t")
	for _, h := range rec.Holdings {
		fmt.Fprintf(w, "%s\t%.2f%%\t%.2f%%\t%s%%\t%+.2f\t\n",
			h.Symbol, h.CurrentWeight*100, h.TargetWeight*100, h.DisplayPercent, h.Change*100)
	}
	if err := w.Flush(); err != nil {
		return fail(err)
	}
	fmt.Fprintf(stdout, "\nmethod=%s iterations=%d converged=%t max_deviation=%.4f\n",
		rec.Method, rec.Iterations, rec.Converged, rec.MaxDeviation)

	return subcommands.ExitSuccess
}
