package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/abelbrown/iasi/internal/batch"
	"github.com/abelbrown/iasi/internal/metrics"
)

func runBatch(args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	noStore := fs.Bool("no-store", false, "Do not record results in the database")
	asJSON := fs.Bool("json", false, "Print the run summary as JSON")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: iasi batch [flags] [EVENT...]")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	e, err := setup("batch")
	if err != nil {
		return err
	}
	defer e.close("batch")

	opts := []batch.Option{batch.WithMetrics(metrics.New()), batch.WithEvents(e.events)}
	if !*noStore {
		st, err := e.openDB()
		if err != nil {
			return err
		}
		defer st.Close()
		opts = append(opts, batch.WithStore(st))
	}

	ctx, cancel := signalContext()
	defer cancel()

	sum, runErr := batch.New(e.cfg, opts...).Run(ctx, fs.Args()...)
	if *asJSON {
		if err := printJSON(sum); err != nil {
			return err
		}
		return runErr
	}

	for _, r := range sum.Results {
		if r.Err != nil {
			fmt.Printf("%-20s FAILED  %v\n", r.Event, r.Err)
			continue
		}
		fmt.Printf("%-20s %5d days  %3d catalog events\n", r.Event, r.Days, r.Catalog)
		printReports(r.Reports)
		fmt.Println()
	}
	if sum.RunID != "" {
		fmt.Printf("Run %s: %d events, %d failed, %s\n", sum.RunID, len(sum.Results), len(sum.Failed()),
			sum.Duration.Round(time.Millisecond))
	}
	return runErr
}
