package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/abelbrown/iasi/internal/batch"
	"github.com/abelbrown/iasi/internal/timeline"
)

func runTimeline(args []string) error {
	fs := flag.NewFlagSet("timeline", flag.ExitOnError)
	name := fs.String("event", "", "Configured event name (required)")
	out := fs.String("out", "", "Output CSV (default: outputs/timelines/<event>_iasi.csv, '-' for stdout)")
	fs.Parse(args)

	if *name == "" {
		fs.Usage()
		return fmt.Errorf("-event is required")
	}

	e, err := setup("timeline")
	if err != nil {
		return err
	}
	defer e.close("timeline")

	ev, ok := e.cfg.Event(*name)
	if !ok {
		return fmt.Errorf("unknown event %q", *name)
	}
	sources, err := timeline.LoadSignals(e.cfg.Resolve(e.cfg.SignalsDir))
	if err != nil {
		return fmt.Errorf("load signals: %w", err)
	}
	features, err := timeline.ReadFeatures(e.cfg.Resolve(ev.Features))
	if err != nil {
		return fmt.Errorf("features: %w", err)
	}
	engine, err := e.cfg.Engine()
	if err != nil {
		return err
	}
	points, err := timeline.Build(engine, sources.WithFeatures(features))
	if err != nil {
		return err
	}

	switch *out {
	case "-":
		return timeline.Write(os.Stdout, points)
	case "":
		*out = batch.New(e.cfg).TimelinePath(ev.Name)
	}
	if err := timeline.WriteFile(*out, points); err != nil {
		return err
	}
	fmt.Printf("Wrote %d days to %s\n", len(points), *out)
	return nil
}
