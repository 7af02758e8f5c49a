// Command audit runs a single reconciliation pass from the terminal and
// prints the resulting report. Useful for backfills and ad-hoc checks
// without going through the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ignite/session-reconciler/internal/config"
	"github.com/ignite/session-reconciler/internal/eventstore"
	"github.com/ignite/session-reconciler/internal/reconcile"
	"github.com/ignite/session-reconciler/internal/report"
	"github.com/ignite/session-reconciler/internal/warehouse"
)

func main() {
	var (
		configPath = flag.String("config", "config/config.yaml", "path to config file")
		startFlag  = flag.String("start", "", "window start, YYYY-MM-DD (default: end minus window_days)")
		endFlag    = flag.String("end", "", "window end, YYYY-MM-DD exclusive (default: today UTC)")
		writeAudit = flag.Bool("write-audit", false, "write per-event audit rows back to ClickHouse")
		export     = flag.Bool("export", false, "upload the HTML digest to S3")
		jsonOut    = flag.Bool("json", false, "print the full report as JSON instead of a summary")
	)
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	end := time.Now().UTC().Truncate(24 * time.Hour)
	if *endFlag != "" {
		end, err = time.Parse("2006-01-02", *endFlag)
		if err != nil {
			log.Fatalf("Invalid -end: %v", err)
		}
	}
	start := end.Add(-cfg.Reconcile.Window())
	if *startFlag != "" {
		start, err = time.Parse("2006-01-02", *startFlag)
		if err != nil {
			log.Fatalf("Invalid -start: %v", err)
		}
	}
	if !start.Before(end) {
		log.Fatalf("Window start %s must be before end %s", start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	ctx := context.Background()

	events, err := eventstore.NewClient(cfg.EventStore)
	if err != nil {
		log.Fatalf("Failed to connect to ClickHouse: %v", err)
	}
	defer events.Close()

	baseline, err := warehouse.NewClient(cfg.Warehouse)
	if err != nil {
		log.Fatalf("Failed to connect to Snowflake: %v", err)
	}
	defer baseline.Close()

	engine := reconcile.NewEngine(events, baseline, reconcile.EngineConfig{
		InactivityGap:  cfg.Reconcile.Gap(),
		RecencyHorizon: cfg.Reconcile.Recency(),
		NumWorkers:     cfg.Reconcile.NumWorkers,
		WriteAudit:     *writeAudit,
	})

	rep, err := engine.Run(ctx, start, end)
	if err != nil {
		log.Fatalf("Reconciliation failed: %v", err)
	}

	if *export {
		if cfg.Report.S3Bucket == "" {
			log.Fatal("-export requires report.s3_bucket in config")
		}
		exporter, err := report.NewS3Exporter(ctx, cfg.Report.S3Bucket, cfg.Report.S3Prefix, cfg.Report.S3Region)
		if err != nil {
			log.Fatalf("Failed to create exporter: %v", err)
		}
		key, err := exporter.Export(ctx, rep)
		if err != nil {
			log.Fatalf("Export failed: %v", err)
		}
		fmt.Printf("Digest uploaded: s3://%s/%s\n", cfg.Report.S3Bucket, key)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			log.Fatalf("Encode report: %v", err)
		}
		return
	}

	printSummary(rep)
}

func printSummary(rep *reconcile.Report) {
	fmt.Printf("Period:              %s\n", rep.Period)
	fmt.Printf("Events:              %d\n", rep.Events)
	fmt.Printf("Visitors:            %d\n", rep.Visitors)
	fmt.Printf("Tool sessions:       %d\n", rep.ToolSessions)
	fmt.Printf("Recomputed sessions: %d\n", rep.RecomputedSessions)
	fmt.Printf("Daily match rate:    %.1f%%\n", rep.MatchRate)
	fmt.Printf("Discrepancies:       %d\n", len(rep.Discrepancies))
	fmt.Printf("Duration:            %dms\n", rep.DurationMs)

	if len(rep.TopSources) > 0 {
		fmt.Println("\nTop sources:")
		for i, row := range rep.TopSources {
			if i == 10 {
				break
			}
			fmt.Printf("  %-24s %d\n", row.Label, row.Count)
		}
	}
	if len(rep.DailyRows) > 0 {
		fmt.Println("\nDaily breakdown:")
		for _, row := range rep.DailyRows {
			marker := ""
			if row.Difference != 0 {
				marker = "  <-- mismatch"
			}
			fmt.Printf("  %s  tool=%-8d recomputed=%-8d diff=%-6d%s\n",
				row.Date, row.ToolSessions, row.RecomputedSessions, row.Difference, marker)
		}
	}
}
