package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/iasi/internal/batch"
	"github.com/abelbrown/iasi/internal/catalog"
	"github.com/abelbrown/iasi/internal/eval"
	"github.com/abelbrown/iasi/internal/metrics"
	"github.com/abelbrown/iasi/internal/store"
	"github.com/abelbrown/iasi/internal/timeline"
	"github.com/abelbrown/iasi/internal/ui"
)

func runEval(args []string) error {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	tlPath := fs.String("timeline", "", "Timeline CSV (date,A,R,D,M,S,index)")
	catPath := fs.String("catalog", "", "Catalog CSV (date,Mw)")
	name := fs.String("event", "", "Evaluate the outputs of a configured event instead")
	windowsFlag := fs.String("windows", "", "Comma-separated windows in days (default: config)")
	minMag := fs.Float64("min-mag", -1, "Minimum magnitude, 0 for every event (default: config)")
	outDir := fs.String("out", "", "Also write metrics_<window>d.csv files here")
	asJSON := fs.Bool("json", false, "Output JSON")
	tui := fs.Bool("tui", false, "Open the interactive evaluation dashboard")
	fs.Parse(args)

	e, err := setup("eval")
	if err != nil {
		return err
	}
	defer e.close("eval")

	windows, err := parseWindows(*windowsFlag)
	if err != nil {
		return err
	}
	if windows == nil {
		windows = e.cfg.Evaluation.Windows
	}

	if *tui {
		return runDashboard(e, windows)
	}

	if *name != "" {
		ev, ok := e.cfg.Event(*name)
		if !ok {
			return fmt.Errorf("unknown event %q", *name)
		}
		if *tlPath == "" {
			*tlPath = batch.New(e.cfg).TimelinePath(ev.Name)
		}
		if *catPath == "" {
			*catPath = e.cfg.CatalogPath(ev)
		}
	}
	if *tlPath == "" || *catPath == "" {
		fs.Usage()
		return fmt.Errorf("-timeline and -catalog (or -event) are required")
	}

	points, err := timeline.ReadFile(*tlPath)
	if err != nil {
		return err
	}
	quakes, err := catalog.ReadFile(*catPath)
	if err != nil {
		return err
	}
	ev := e.cfg.Evaluator()
	if *minMag >= 0 {
		ev.MinMagnitude = minMag
	}

	ctx, cancel := signalContext()
	defer cancel()
	reports, err := ev.EvaluateWindows(ctx, points, quakes, windows)
	if err != nil {
		return err
	}

	if *outDir != "" {
		for _, r := range reports {
			path := filepath.Join(*outDir, fmt.Sprintf("metrics_%dd.csv", r.WindowDays))
			if err := eval.WriteCSVFile(path, r); err != nil {
				return err
			}
		}
	}
	if *asJSON {
		return printJSON(reports)
	}
	printReports(reports)
	return nil
}

func printReports(reports []eval.Report) {
	fmt.Printf("%-7s %8s %8s %8s %10s %8s %8s %6s %6s\n",
		"WINDOW", "AUC_PR", "F1", "THRESH", "FA/MONTH", "LEAD_D", "BRIER", "DAYS", "POS")
	for _, r := range reports {
		fmt.Printf("%-7s %8.4f %8.4f %8.2f %10.3f %8.2f %8.4f %6d %6d\n",
			fmt.Sprintf("%dd", r.WindowDays), r.AUCPR, r.F1, r.BestThreshold,
			r.FalseAlarmPM, r.LeadTimeDays, r.Brier, r.Days, r.Positives)
	}
}

// runDashboard opens the evaluation TUI over the store.
func runDashboard(e *env, windows []int) error {
	st, err := e.openDB()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signalContext()
	defer cancel()

	runner := batch.New(e.cfg,
		batch.WithStore(st),
		batch.WithMetrics(metrics.New()),
		batch.WithEvents(e.events),
	)

	loadRows := func() tea.Cmd {
		return func() tea.Msg {
			rows, err := loadEventRows(ctx, st)
			return ui.RowsLoaded{Rows: rows, Err: err}
		}
	}
	runEvalCmd := func() tea.Cmd {
		return func() tea.Msg {
			sum, err := runner.Run(ctx)
			failed := len(sum.Failed())
			if failed > 0 {
				// Per-event failures are shown in the rows.
				err = nil
			}
			return ui.EvalComplete{RunID: sum.RunID, Failed: failed, Err: err}
		}
	}

	if os.Getenv(EnvE2E) != "" {
		// Skip the background-colour terminal query; a scripted pty never answers it.
		lipgloss.SetHasDarkBackground(true)
	}

	app := ui.NewApp(loadRows, runEvalCmd, windows)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}

// loadEventRows reads the latest reports and timeline tail of every
// evaluated event.
func loadEventRows(ctx context.Context, st *store.Store) ([]ui.EventRow, error) {
	names, err := st.EvaluatedEvents(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]ui.EventRow, 0, len(names))
	for _, n := range names {
		row := ui.EventRow{Event: n}
		row.Reports, row.Err = st.LatestReports(ctx, n)
		if row.Err == nil {
			var points []timeline.Point
			points, row.Err = st.Timeline(ctx, n)
			row.Days = len(points)
			if len(points) > 0 {
				last := points[len(points)-1]
				row.LastIndex, row.Band = last.Score, last.Band
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
