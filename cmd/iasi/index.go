package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/abelbrown/iasi/internal/alert"
	"github.com/abelbrown/iasi/internal/history"
	"github.com/abelbrown/iasi/internal/index"
	"github.com/abelbrown/iasi/internal/pipeline"
	"github.com/abelbrown/iasi/internal/store"
)

// historyDepth is how many stored records and alerts seed a live session.
const historyDepth = 500

// kvFlag collects repeated key=value flags.
type kvFlag map[string]any

func (f kvFlag) String() string { return fmt.Sprint(map[string]any(f)) }

func (f kvFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	f[k] = v
	return nil
}

// parseReading parses CODE=value[:min:max].
func parseReading(arg string) (string, pipeline.Reading, error) {
	code, raw, ok := strings.Cut(arg, "=")
	if !ok {
		return "", pipeline.Reading{}, fmt.Errorf("expected CODE=value[:min:max], got %q", arg)
	}
	parts := strings.Split(raw, ":")
	if len(parts) != 1 && len(parts) != 3 {
		return "", pipeline.Reading{}, fmt.Errorf("%s: expected value or value:min:max", code)
	}
	nums := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return "", pipeline.Reading{}, fmt.Errorf("%s: %w", code, err)
		}
		nums[i] = v
	}
	r := pipeline.Reading{Value: nums[0]}
	if len(nums) == 3 {
		r.Min, r.Max = &nums[1], &nums[2]
	}
	return strings.TrimSpace(code), r, nil
}

// livePipeline builds a pipeline whose engine and alert logs are seeded
// from the store.
func livePipeline(ctx context.Context, e *env, st *store.Store) (*pipeline.Pipeline, error) {
	recs, err := st.Records(ctx, historyDepth)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	alerts, err := st.Alerts(ctx, historyDepth, "")
	if err != nil {
		return nil, fmt.Errorf("load alerts: %w", err)
	}
	engine, err := e.cfg.Engine(index.WithHistory(history.From(recs)))
	if err != nil {
		return nil, err
	}
	gen := alert.NewGenerator(alert.WithLog(history.From(alerts)), alert.WithBands(engine.Bands()))
	return pipeline.New(engine,
		pipeline.WithStore(st),
		pipeline.WithAlerts(gen),
		pipeline.WithEvents(e.events),
	), nil
}

func runIndex(args []string) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Print the full result as JSON")
	alertCtx := kvFlag{}
	fs.Var(alertCtx, "ctx", "Alert context entry key=value (repeatable)")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: iasi index [flags] A=value[:min:max] R=… D=… M=… S=…")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	readings := make(map[string]pipeline.Reading, fs.NArg())
	for _, arg := range fs.Args() {
		code, r, err := parseReading(arg)
		if err != nil {
			return err
		}
		readings[code] = r
	}

	e, err := setup("index")
	if err != nil {
		return err
	}
	defer e.close("index")

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
	res, err := p.ProcessAndAlert(ctx, readings, alertCtx)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(res)
	}
	fmt.Fprint(os.Stdout, alert.Text(res.Alert))
	return nil
}
