package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"

	"github.com/abelbrown/iasi/internal/analog"
	"github.com/abelbrown/iasi/internal/batch"
	"github.com/abelbrown/iasi/internal/csvio"
	"github.com/abelbrown/iasi/internal/logging"
	"github.com/abelbrown/iasi/internal/timeline"
)

func runAnalogs(args []string) error {
	flags := flag.NewFlagSet("analogs", flag.ExitOnError)
	name := flags.String("event", "", "Event of the query day (required)")
	date := flags.String("date", "", "Query day YYYY-MM-DD (default: the event's last day)")
	k := flags.Int("k", 10, "Number of analog days")
	asJSON := flags.Bool("json", false, "Output JSON")
	flags.Parse(args)

	if *name == "" {
		flags.Usage()
		return fmt.Errorf("-event is required")
	}

	e, err := setup("analogs")
	if err != nil {
		return err
	}
	defer e.close("analogs")

	st, err := e.openDB()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signalContext()
	defer cancel()

	runner := batch.New(e.cfg)
	idx := analog.NewIndex()
	for _, ev := range e.cfg.Events {
		points, err := st.Timeline(ctx, ev.Name)
		if err != nil {
			return err
		}
		if len(points) == 0 {
			// Not evaluated with a store; fall back to the written CSV.
			points, err = timeline.ReadFile(runner.TimelinePath(ev.Name))
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				logging.Warn("Skipping unreadable timeline", "event", ev.Name, "error", err)
				continue
			}
		}
		idx.Add(ev.Name, points)
	}
	if idx.Len() == 0 {
		return fmt.Errorf("no timelines found; run 'iasi batch' first")
	}

	var query timeline.Point
	var ok bool
	if *date != "" {
		d, err := csvio.ParseDate(*date)
		if err != nil {
			return err
		}
		query, ok = idx.Lookup(*name, d)
	} else {
		points, _ := st.Timeline(ctx, *name)
		if len(points) == 0 {
			points, _ = timeline.ReadFile(runner.TimelinePath(*name))
		}
		if len(points) > 0 {
			query, ok = points[len(points)-1], true
		}
	}
	if !ok {
		return fmt.Errorf("no day %s in timeline %q", *date, *name)
	}

	matches, err := idx.Search(query.Channels, *k, *name, query.Date)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(matches)
	}
	fmt.Printf("Analogs of %s %s (index %.4f, %s)\n\n", *name, csvio.FormatDate(query.Date), query.Score, query.Band)
	for i, m := range matches {
		fmt.Printf("%2d. %-20s %s  dist %.4f  index %.4f  %s\n",
			i+1, truncate(m.Event, 20), csvio.FormatDate(m.Date), m.Distance, m.Score, m.Band)
	}
	return nil
}
