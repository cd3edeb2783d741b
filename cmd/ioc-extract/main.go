package main

import (
	"flag"
	"fmt"
	"os"

	"ctiflow/internal/extract"
	"ctiflow/internal/input/jsonl"
	"ctiflow/internal/logger"
	"ctiflow/internal/output/artifact"
	"ctiflow/pkg/models"
)

// ioc-extract runs extraction alone: events JSONL in, indicators JSONL out.
// Useful for triage and for regression-testing extraction rule changes.
func run(args []string) int {
	fs := flag.NewFlagSet("ioc-extract", flag.ContinueOnError)
	input := fs.String("input", "input/events.jsonl", "Normalized events JSONL input path")
	output := fs.String("output", "output/indicators.jsonl", "Indicators JSONL output path")
	minConfidence := fs.Float64("min-confidence", 0, "Drop indicators below this confidence")
	allowPrivate := fs.Bool("allow-private-ips", false, "Keep private and reserved IP addresses")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if err := logger.Init(true, "info", "", true); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	events, err := jsonl.ReadEvents(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read events: %v\n", err)
		return 1
	}

	extractor := extract.New(extract.Config{
		MinConfidence:   *minConfidence,
		AllowPrivateIPs: *allowPrivate,
	})

	indicators := make([]models.Indicator, 0, len(events)*4)
	for _, event := range events {
		set := extractor.Extract(event)
		indicators = append(indicators, set.Indicators...)
	}

	if err := artifact.WriteJSONL(*output, indicators); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write indicators: %v\n", err)
		return 1
	}

	fmt.Printf("extracted events=%d indicators=%d output=%s\n", len(events), len(indicators), *output)
	return 0
}

func main() {
	os.Exit(run(os.Args[1:]))
}
