// Command iasi is the CLI for the seismic anomaly index: live fusion of
// channel readings, timeline building, retrospective evaluation and the
// supporting catalog, analog and watcher tools.
//
// Usage:
//
//	iasi                       Show help
//	iasi index A=50 R=3:0:4 …  Fuse one reading per channel and raise an alert
//	iasi trend                 Trend of the stored index history
//	iasi timeline -event NAME  Build and write one event timeline
//	iasi eval -timeline F      Evaluate a timeline against a catalog
//	iasi eval -tui             Interactive evaluation dashboard
//	iasi batch [EVENT…]        Evaluate every configured event
//	iasi catalog -event NAME   Fetch an event catalog from USGS
//	iasi analogs -event NAME   Historical days resembling a given day
//	iasi watch                 Ingest inbox files and re-run the batch
//	iasi events                JSONL run event viewer
//	iasi config                Print or write the configuration
package main

import (
	"fmt"
	"os"
)

const usage = `iasi - seismic anomaly index CLI

Usage:
  iasi <command> [flags]

Commands:
  index       Fuse one reading per channel (A R D M S) and raise an alert
  trend       Trend and weekly report of the stored index history
  timeline    Build the daily timeline of one configured event
  eval        Evaluate a timeline against a catalog (-tui for the dashboard)
  batch       Evaluate every configured event and write the outputs
  catalog     Fetch an event catalog from the USGS services
  analogs     Find historical days with a similar channel profile
  watch       Ingest deformation files from the inbox and re-run the batch
  events      JSONL run event viewer
  config      Print the effective configuration (-write to save it)

Environment:
  IASI_DATA_DIR       Data directory (default: ~/.iasi)
  IASI_CONFIG         Config file (default: <data dir>/config.yaml)
  IASI_MIN_MAGNITUDE  Minimum magnitude of a qualifying event
  IASI_TRACE          Emit debug run events

Run 'iasi <command> -h' for command-specific help.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(0)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "index":
		err = runIndex(args)
	case "trend":
		err = runTrend(args)
	case "timeline":
		err = runTimeline(args)
	case "eval":
		err = runEval(args)
	case "batch":
		err = runBatch(args)
	case "catalog":
		err = runCatalog(args)
	case "analogs":
		err = runAnalogs(args)
	case "watch":
		err = runWatch(args)
	case "events":
		err = runEvents(args)
	case "config":
		err = runConfig(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "iasi: unknown command %q\n\n", cmd)
		fmt.Print(usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "iasi %s: %v\n", cmd, err)
		os.Exit(1)
	}
}
