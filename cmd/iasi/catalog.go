package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/abelbrown/iasi/internal/catalog"
	"github.com/abelbrown/iasi/internal/csvio"
	"github.com/abelbrown/iasi/internal/otel"
)

func runCatalog(args []string) error {
	fs := flag.NewFlagSet("catalog", flag.ExitOnError)
	name := fs.String("event", "", "Configured event; the catalog is written to its catalog path")
	start := fs.String("start", "", "Start date YYYY-MM-DD (required unless -feed)")
	end := fs.String("end", "", "End date YYYY-MM-DD (default: today)")
	minMag := fs.Float64("min-mag", -1, "Minimum magnitude, 0 for every event (default: config)")
	radius := fs.Float64("radius", -1, "Search radius in km around the event (default: config, 0 = global)")
	feed := fs.Bool("feed", false, "Read the USGS significant-month Atom feed instead of querying")
	out := fs.String("out", "", "Output CSV (default: the event's catalog path)")
	fs.Parse(args)

	e, err := setup("catalog")
	if err != nil {
		return err
	}
	defer e.close("catalog")

	if *name == "" && *out == "" {
		fs.Usage()
		return fmt.Errorf("-event or -out is required")
	}

	u := e.cfg.USGS
	client := catalog.NewClient(u.Endpoint, u.RequestsPerSecond, time.Duration(u.TimeoutSeconds)*time.Second)
	ctx, cancel := signalContext()
	defer cancel()

	began := time.Now()
	var events []catalog.Event
	if *feed {
		events, err = client.Feed(ctx, catalog.SignificantMonthFeed)
	} else {
		q := catalog.Query{MinMagnitude: *minMag, RadiusKM: u.RadiusKM}
		if q.MinMagnitude < 0 {
			q.MinMagnitude = e.cfg.Evaluation.MinMagnitude
		}
		if *radius >= 0 {
			q.RadiusKM = *radius
		}
		if *start == "" {
			fs.Usage()
			return fmt.Errorf("-start is required")
		}
		if q.Start, err = csvio.ParseDate(*start); err != nil {
			return err
		}
		if *end != "" {
			if q.End, err = csvio.ParseDate(*end); err != nil {
				return err
			}
		}
		if *name != "" {
			ev, ok := e.cfg.Event(*name)
			if !ok {
				return fmt.Errorf("unknown event %q", *name)
			}
			q.Latitude, q.Longitude = ev.Latitude, ev.Longitude
		}
		events, err = client.Query(ctx, q)
	}
	if err != nil {
		e.events.Error(otel.KindCatalogError, "catalog", err)
		return err
	}
	e.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindCatalogFetch, Comp: "catalog",
		Event: *name, Count: len(events), Dur: time.Since(began)})

	path := *out
	if path == "" {
		ev, ok := e.cfg.Event(*name)
		if !ok {
			return fmt.Errorf("unknown event %q", *name)
		}
		path = e.cfg.CatalogPath(ev)
	}
	if err := catalog.WriteFile(path, events); err != nil {
		return err
	}

	if *name != "" {
		st, err := e.openDB()
		if err != nil {
			return err
		}
		defer st.Close()
		if _, err := st.SaveCatalog(ctx, *name, events); err != nil {
			e.events.Error(otel.KindStoreError, "catalog", err)
			return err
		}
	}
	fmt.Printf("Wrote %d events to %s\n", len(events), path)
	return nil
}
