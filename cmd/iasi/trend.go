package main

import (
	"flag"
	"fmt"

	"github.com/abelbrown/iasi/internal/alert"
	"github.com/abelbrown/iasi/internal/index"
)

func runTrend(args []string) error {
	fs := flag.NewFlagSet("trend", flag.ExitOnError)
	window := fs.Int("window", 0, "Records in the trend window (default: config trend_window)")
	weekly := fs.Bool("weekly", false, "Print the weekly alert report instead")
	list := fs.Int("alerts", 0, "List the last N alerts instead")
	band := fs.String("band", "", "With -alerts, only this band")
	asJSON := fs.Bool("json", false, "Output JSON")
	fs.Parse(args)

	e, err := setup("trend")
	if err != nil {
		return err
	}
	defer e.close("trend")

	st, err := e.openDB()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signalContext()
	defer cancel()

	p, err := livePipeline(ctx, e, st)
	if err != nil {
		return err
	}

	switch {
	case *list > 0:
		alerts := p.Alerts(*list, *band)
		if *asJSON {
			return printJSON(alerts)
		}
		for _, a := range alerts {
			fmt.Printf("%s  %-8s %.4f  %s\n", a.Timestamp.Format("2006-01-02 15:04"), a.Band, a.IndexValue, truncate(a.Interpretation, 60))
		}
		return nil

	case *weekly:
		r := p.WeeklyReport()
		if *asJSON {
			return printJSON(r)
		}
		printWeekly(r)
		return nil
	}

	w := *window
	if w <= 0 {
		w = e.cfg.TrendWindow
	}
	t := p.Trend(w)
	if *asJSON {
		return printJSON(t)
	}
	if t.Direction == index.TrendInsufficient {
		fmt.Println("Trend: insufficient data (need at least two index records)")
		return nil
	}
	fmt.Printf("Trend:   %s over %d records\n", t.Direction, t.WindowSize)
	fmt.Printf("Slope:   %+.4f per record\n", t.Slope)
	fmt.Printf("Mean:    %.4f (std %.4f)\n", t.Mean, t.StdDev)
	fmt.Printf("Range:   %.4f .. %.4f\n", t.Min, t.Max)
	return nil
}

func printWeekly(r alert.WeeklyReport) {
	fmt.Printf("%s  [%s]\n", r.ID, r.Status)
	if r.Status != alert.StatusOK {
		fmt.Println(r.Message)
		return
	}
	fmt.Printf("Alerts:       %d (%s .. %s)\n", r.Total, r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
	fmt.Printf("Predominant:  %s\n", r.Predominant)
	fmt.Printf("Index:        mean %.4f, min %.4f, max %.4f\n", r.Mean, r.Min, r.Max)
	fmt.Println(r.Interpretation)
	fmt.Println("\nRecommendations:")
	for i, rec := range r.Recommendations {
		fmt.Printf("  %d. %s\n", i+1, rec)
	}
}
