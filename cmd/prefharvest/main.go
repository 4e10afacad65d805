package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/lamim/prefharvest/internal/collector"
	"github.com/lamim/prefharvest/internal/config"
	"github.com/lamim/prefharvest/internal/dataset"
	"github.com/lamim/prefharvest/internal/format"
	"github.com/lamim/prefharvest/internal/hub"
	"github.com/lamim/prefharvest/internal/metrics"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath string
	storageDir string
	verbose    bool
	splitName  string
	trainer    string
	minLength  int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "prefharvest",
		Short: "PrefHarvest - Preference Data Collection for RLHF Training",
		Long: `PrefHarvest collects, buffers and persists pairwise human-preference
comparisons and reformats them for DPO, reward-model and SFT pipelines.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (optional)")
	rootCmd.PersistentFlags().StringVar(&storageDir, "storage", "", "Storage directory override")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	exportCmd := &cobra.Command{
		Use:   "export <output.json>",
		Short: "Export all collected preferences as DPO training data",
		Long: `Flush any pending buffer, load every persisted preference record and
write the full set as a pretty-printed JSON array of {prompt, chosen,
rejected} objects.`,
		Args: cobra.ExactArgs(1),
		RunE: runExport,
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print collection statistics",
		RunE:  runStats,
	}

	validateCmd := &cobra.Command{
		Use:   "validate <path-or-name>",
		Short: "Validate a dataset for a target trainer",
		Long: `Load a dataset from a local .json/.jsonl file, a directory of such
files, or a named hub source, and check that it has the columns required
by the target trainer.`,
		Args: cobra.ExactArgs(1),
		RunE: runValidate,
	}
	validateCmd.Flags().StringVar(&splitName, "split", "train", "Dataset split for named sources")
	validateCmd.Flags().StringVar(&trainer, "for", "dpo", "Target trainer: dpo or reward")

	convertCmd := &cobra.Command{
		Use:   "convert <input.jsonl> <output.jsonl>",
		Short: "Convert a winner-format dataset to chosen/rejected format",
		Long: `Convert a two-way labeled comparison dataset (winner_model_a /
winner_model_b flags) into chosen/rejected JSONL. Ties keep the "a" side
as chosen.`,
		Args: cobra.ExactArgs(2),
		RunE: runConvert,
	}

	filterCmd := &cobra.Command{
		Use:   "filter <path-or-name> <output.json>",
		Short: "Quality-filter a preference dataset",
		Long: `Load a dataset and keep only examples whose chosen and rejected text
each reach the minimum length, writing the result as a JSON array.`,
		Args: cobra.ExactArgs(2),
		RunE: runFilter,
	}
	filterCmd.Flags().StringVar(&splitName, "split", "train", "Dataset split for named sources")
	filterCmd.Flags().IntVar(&minLength, "min-length", 10, "Minimum chosen/rejected text length")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(filterCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration from the optional config
// file plus command-line overrides.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
	} else {
		cfg = config.Default()
	}

	if storageDir != "" {
		cfg.Storage.Dir = storageDir
	}
	if err := collector.ValidateStorageDir(cfg.Storage.Dir); err != nil {
		return nil, err
	}

	return cfg, nil
}

func logLevel() slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// newCollector builds a collector plus its storage-backed logger
func newCollector(cfg *config.Config) (*collector.Collector, *os.File, error) {
	logger, logFile, err := collector.SetupLogger(cfg.Storage.Dir, logLevel())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	c, err := collector.New(cfg.Storage.Dir, logger,
		collector.WithBufferSize(cfg.Storage.BufferSize),
		collector.WithMetrics(metrics.NewCollector(logger)))
	if err != nil {
		logFile.Close()
		return nil, nil, err
	}

	return c, logFile, nil
}

// stderrLogger builds a plain text logger for dataset commands that do not
// touch the storage directory.
func stderrLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(),
	}))
}

// newSource builds the named-source resolver when a hub base URL is
// configured; otherwise named datasets cannot be resolved.
func newSource(cfg *config.Config, logger *slog.Logger) dataset.Source {
	if cfg.Hub.BaseURL == "" {
		return nil
	}
	return hub.NewClient(cfg.Hub.BaseURL,
		cfg.Hub.RateLimitPerMinute,
		time.Duration(cfg.Hub.TimeoutSeconds)*time.Second,
		logger,
		hub.WithPageSize(cfg.Hub.PageSize),
		hub.WithMetrics(metrics.NewCollector(logger)))
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, logFile, err := newCollector(cfg)
	if err != nil {
		return err
	}
	defer logFile.Close()

	training, err := c.ExportForTraining(args[0])
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	fmt.Printf("Exported %d records to %s\n", len(training), args[0])
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, logFile, err := newCollector(cfg)
	if err != nil {
		return err
	}
	defer logFile.Close()

	stats, err := c.Stats()
	if err != nil {
		return fmt.Errorf("failed to compute stats: %w", err)
	}

	fileCount := 0
	entries, err := os.ReadDir(cfg.Storage.Dir)
	if err != nil {
		return fmt.Errorf("failed to read storage directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && collector.IsStorageFile(entry.Name()) {
			fileCount++
		}
	}

	fmt.Printf("Storage:          %s\n", cfg.Storage.Dir)
	fmt.Printf("Storage files:    %d\n", fileCount)
	fmt.Printf("Total records:    %d\n", stats.TotalRecords)
	fmt.Printf("Buffered records: %d\n", stats.BufferedRecords)
	fmt.Printf("Domains:          %s\n", strings.Join(stats.Domains, ", "))
	fmt.Printf("Categories:       %s\n", strings.Join(stats.Categories, ", "))
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := stderrLogger()
	ds, err := dataset.Load(context.Background(), args[0], splitName, newSource(cfg, logger), logger)
	if err != nil {
		return err
	}

	var ok bool
	switch trainer {
	case "dpo":
		ok, err = ds.ValidateForDPO()
	case "reward":
		ok, err = ds.ValidateForReward()
	default:
		return fmt.Errorf("unknown trainer %q: must be dpo or reward", trainer)
	}
	if err != nil {
		return err
	}

	columns, err := ds.Columns()
	if err != nil {
		return err
	}

	fmt.Printf("Dataset:  %s (%d examples)\n", args[0], ds.Len())
	fmt.Printf("Columns:  %s\n", strings.Join(columns, ", "))
	if !ok {
		return fmt.Errorf("dataset is not valid for %s training", trainer)
	}
	fmt.Printf("Valid for %s training\n", trainer)
	return nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	inputPath, outputPath := args[0], args[1]

	input, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open input dataset: %w", err)
	}
	defer func() { _ = input.Close() }()

	output, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output dataset: %w", err)
	}
	defer func() { _ = output.Close() }()

	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	encoder := json.NewEncoder(output)

	bar := progressbar.Default(-1, "Converting winner format")
	lineNum := 0
	converted := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var example map[string]any
		if err := json.Unmarshal([]byte(line), &example); err != nil {
			return fmt.Errorf("line %d: failed to parse example: %w", lineNum, err)
		}

		if err := encoder.Encode(format.ConvertWinnerFormat(example)); err != nil {
			return fmt.Errorf("line %d: failed to write converted example: %w", lineNum, err)
		}
		converted++
		_ = bar.Add(1)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed while reading input dataset: %w", err)
	}
	_ = bar.Finish()

	fmt.Printf("Converted %d examples to %s\n", converted, outputPath)
	return nil
}

func runFilter(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := stderrLogger()
	ds, err := dataset.Load(context.Background(), args[0], splitName, newSource(cfg, logger), logger)
	if err != nil {
		return err
	}

	filtered, err := ds.FilterQuality(minLength)
	if err != nil {
		return err
	}

	examples, err := filtered.Examples()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(examples, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal filtered dataset: %w", err)
	}
	if err := os.WriteFile(args[1], data, 0o644); err != nil {
		return fmt.Errorf("failed to write filtered dataset: %w", err)
	}

	fmt.Printf("Kept %d of %d examples (min length %d)\n", filtered.Len(), ds.Len(), minLength)
	return nil
}
