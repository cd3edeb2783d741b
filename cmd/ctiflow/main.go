package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"ctiflow/config"
	"ctiflow/internal/correlate"
	"ctiflow/internal/extract"
	"ctiflow/internal/input/jsonl"
	"ctiflow/internal/logger"
	"ctiflow/internal/metrics"
	"ctiflow/internal/output/indicatorch"
	"ctiflow/internal/pipeline"
	"ctiflow/internal/rules"
	"ctiflow/internal/scoring"
	"ctiflow/internal/store"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("ctiflow.yml"); err == nil {
		return "ctiflow.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "ctiflow.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "ctiflow.yml"
}

func runBatch(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configArg := fs.String("config", "", "Config file path")
	inputArg := fs.String("input", "", "Normalized events JSONL path (overrides config)")
	outputArg := fs.String("output", "", "Artifact output directory (overrides config)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *configArg == "" && fs.NArg() > 0 {
		// Backward-compatible mode: first positional arg is the config path.
		*configArg = fs.Arg(0)
	}

	configPath := findConfigFile(*configArg)
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.ApplyDefaults()
	if *inputArg != "" {
		cfg.CTIFlow.Input.Path = *inputArg
	}
	if *outputArg != "" {
		cfg.CTIFlow.Output.Dir = *outputArg
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	p := cfg.CTIFlow
	if err := logger.Init(p.Logging.Enabled, p.Logging.Level, p.Logging.File, p.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Infof("CTIFlow starting")
	logger.Infof("Config loaded from: %s", configPath)

	if p.Metrics.Enabled {
		metrics.Serve(p.Metrics.Addr)
	}

	var engine rules.Engine
	if p.Rules.Enabled {
		if strings.TrimSpace(p.Rules.Path) == "" {
			logger.Warnf("Rules enabled but rules.path is empty; tactic tagging disabled")
		} else {
			sigmaEngine, stats, err := rules.NewSigmaEngine(p.Rules.Path)
			if err != nil {
				logger.Errorf("Failed to load Sigma rules from %s: %v", p.Rules.Path, err)
				log.Fatalf("Failed to load Sigma rules: %v", err)
			}
			engine = sigmaEngine
			logger.Infof("Sigma rules loaded: loaded=%d skipped_complex=%d skipped_invalid=%d files=%d",
				stats.Loaded, stats.SkippedComplex, stats.SkippedInvalid, stats.TotalFiles)
			if stats.Loaded == 0 {
				logger.Warnf("No compatible Sigma rules loaded; tactic tagging is effectively disabled")
			}
		}
	}

	var sink pipeline.IndicatorSink
	if p.Output.ClickHouse.Enabled {
		w, err := indicatorch.NewWriter(indicatorch.Config{
			URL:      p.Output.ClickHouse.URL,
			Database: p.Output.ClickHouse.Database,
			Table:    p.Output.ClickHouse.Table,
			Username: p.Output.ClickHouse.Username,
			Password: p.Output.ClickHouse.Password,
			Timeout:  p.Output.ClickHouse.Timeout,
			Headers:  p.Output.ClickHouse.Headers,
		})
		if err != nil {
			logger.Errorf("Failed to create ClickHouse writer: %v", err)
			log.Fatalf("Failed to create ClickHouse writer: %v", err)
		}
		sink = w
		logger.Infof("Indicator sink: clickhouse (%s/%s.%s)", p.Output.ClickHouse.URL, p.Output.ClickHouse.Database, p.Output.ClickHouse.Table)
	}

	var st pipeline.StateStore
	if p.Storage.Redis.Enabled {
		rs, err := store.NewRedisStore(store.RedisConfig{
			Addr:      p.Storage.Redis.Addr,
			Password:  p.Storage.Redis.Password,
			DB:        p.Storage.Redis.DB,
			KeyPrefix: p.Storage.Redis.KeyPrefix,
			TTL:       p.Storage.Redis.TTL,
		})
		if err != nil {
			logger.Errorf("Failed to connect to Redis store: %v", err)
			log.Fatalf("Failed to connect to Redis store: %v", err)
		}
		st = rs
		logger.Infof("Run-state store: redis (%s)", p.Storage.Redis.Addr)
	}

	events, err := jsonl.ReadEvents(p.Input.Path)
	if err != nil {
		logger.Errorf("Failed to read input events: %v", err)
		log.Fatalf("Failed to read input events: %v", err)
	}

	extractor := extract.New(extract.Config{
		MinConfidence:   p.Extraction.MinConfidence,
		AllowPrivateIPs: p.Extraction.AllowPrivateIPs,
		Denylist:        p.Extraction.Denylist,
		Allowlist:       p.Extraction.Allowlist,
	})
	correlator := correlate.New(correlate.Config{
		Window:                 p.Correlation.Window,
		MinSharedIndicators:    p.Correlation.MinSharedIndicators,
		MinCampaignSize:        p.Correlation.MinCampaignSize,
		MissingTimestampPolicy: p.Correlation.MissingTimestampPolicy,
	})
	scorer := scoring.New(scoring.Config{
		Weights: scoring.Weights{
			Classifier:       p.Scoring.ClassifierWeight,
			IndicatorDensity: p.Scoring.DensityWeight,
			CampaignBonus:    p.Scoring.CampaignBonus,
		},
		Thresholds: scoring.Thresholds{
			High:   p.Scoring.HighThreshold,
			Medium: p.Scoring.MediumThreshold,
			Low:    p.Scoring.LowThreshold,
		},
		DensityCap: p.Scoring.DensityCap,
	})

	runner := pipeline.NewRunner(extractor, engine, correlator, scorer, p.Pipeline.Workers, sink, st)
	defer runner.Close()

	result, err := runner.Run(context.Background(), events, p.Output.Dir)
	if err != nil {
		logger.Errorf("Run failed: %v", err)
		log.Fatalf("Run failed: %v", err)
	}

	fmt.Printf("run_id=%s events=%d indicators=%d campaigns=%d high=%d medium=%d low=%d informational=%d\n",
		result.RunID, result.Events, result.Indicators, result.Campaigns,
		result.ScoredBySeverity["high"], result.ScoredBySeverity["medium"],
		result.ScoredBySeverity["low"], result.ScoredBySeverity["informational"])
	return 0
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "run":
			os.Exit(runBatch(os.Args[2:]))
		default:
			os.Exit(runBatch(os.Args[1:]))
		}
	}
	os.Exit(runBatch(nil))
}
