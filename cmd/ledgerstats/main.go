package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"dexRelay/internal/adapters/logger"
	"dexRelay/internal/adapters/sqlite"
)

func main() {
	dbPath := flag.String("db", "./data/execution_ledger.db", "path to the execution ledger database")
	venue := flag.String("venue", "", "also list the most recent attempts for this venue")
	limit := flag.Int("limit", 20, "number of recent attempts to list with -venue")
	since := flag.Duration("since", 24*time.Hour, "window for the recent-attempts summary")
	flag.Parse()

	ledger, err := sqlite.NewLedger(sqlite.Config{
		DBPath: *dbPath,
		Logger: logger.New("error"),
	})
	if err != nil {
		log.Fatalf("Error opening ledger: %v", err)
	}
	defer ledger.Close()

	ctx := context.Background()

	stats, err := ledger.VenueStats(ctx)
	if err != nil {
		log.Fatalf("Error reading venue stats: %v", err)
	}
	if len(stats) == 0 {
		log.Println("No execution attempts recorded yet.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Venue\tAttempts\tFilled\tPartial\tRejected\tFailed\tSuccessRate\t")
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%.2f%%\t\n",
			s.VenueID,
			s.Attempts,
			s.Filled,
			s.Partial,
			s.Rejected,
			s.Failed,
			s.SuccessRate*100,
		)
	}
	w.Flush()

	recent, err := ledger.FindByTimeRange(ctx, time.Now().Add(-*since), time.Now())
	if err != nil {
		log.Fatalf("Error reading recent attempts: %v", err)
	}
	fmt.Printf("\n%d attempts in the last %s\n", len(recent), *since)

	if *venue == "" {
		return
	}

	attempts, err := ledger.FindByVenue(ctx, *venue, *limit)
	if err != nil {
		log.Fatalf("Error reading attempts for venue %s: %v", *venue, err)
	}
	if len(attempts) == 0 {
		fmt.Printf("\nNo attempts recorded for venue %s\n", *venue)
		return
	}

	fmt.Printf("\n## Recent attempts on %s\n", *venue)
	aw := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(aw, "Time\tSignal\tStatus\tFilled\tAvgPrice\tLatency\tError\t")
	for _, a := range attempts {
		signalID := a.SignalID
		if len(signalID) > 12 {
			signalID = signalID[:12]
		}
		fmt.Fprintf(aw, "%s\t%s\t%s\t%s\t%s\t%dms\t%s\t\n",
			a.CreatedAt.Format(time.RFC3339),
			signalID,
			a.Status,
			a.FilledSize,
			a.AvgPrice,
			a.LatencyMS,
			a.ErrorCode,
		)
	}
	aw.Flush()
}
