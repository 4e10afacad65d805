// Package dataset loads preference datasets from local files, directories
// or a named external source and validates them for specific trainers.
package dataset

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lamim/prefharvest/internal/format"
)

// ErrNotLoaded is returned when a dataset accessor is used before any
// examples have been loaded.
var ErrNotLoaded = errors.New("no dataset loaded")

// Source resolves a named dataset (one that is not a local path) by split
type Source interface {
	LoadRows(ctx context.Context, name, split string) ([]map[string]any, error)
}

// PreferenceDataset wraps a loaded collection of example mappings
type PreferenceDataset struct {
	name     string
	examples []map[string]any
	loaded   bool
	logger   *slog.Logger
}

// FromExamples builds a dataset from an in-memory example list
func FromExamples(examples []map[string]any, logger *slog.Logger) *PreferenceDataset {
	return &PreferenceDataset{
		examples: examples,
		loaded:   true,
		logger:   logger,
	}
}

// Load builds a dataset from nameOrPath. Local paths may be a .json file
// (array of examples), a .jsonl file, or a directory of such files.
// Anything else is resolved through source as a named dataset for the
// given split.
func Load(ctx context.Context, nameOrPath, split string, source Source, logger *slog.Logger) (*PreferenceDataset, error) {
	d := &PreferenceDataset{
		name:   nameOrPath,
		logger: logger,
	}

	info, err := os.Stat(nameOrPath)
	if err == nil {
		if info.IsDir() {
			d.examples, err = loadDir(nameOrPath)
		} else {
			d.examples, err = loadFile(nameOrPath)
		}
		if err != nil {
			return nil, err
		}
		d.loaded = true
		return d, nil
	}

	if source == nil {
		return nil, fmt.Errorf("dataset %q is not a local path and no source is configured", nameOrPath)
	}

	logger.Info("Loading dataset from named source", "name", nameOrPath, "split", split)
	rows, err := source.LoadRows(ctx, nameOrPath, split)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %q: %w", nameOrPath, err)
	}

	d.examples = rows
	d.loaded = true
	return d, nil
}

// Name returns the name or path this dataset was loaded from
func (d *PreferenceDataset) Name() string {
	return d.name
}

// Examples returns the loaded example list
func (d *PreferenceDataset) Examples() ([]map[string]any, error) {
	if !d.loaded {
		return nil, ErrNotLoaded
	}
	return d.examples, nil
}

// Len returns the number of loaded examples
func (d *PreferenceDataset) Len() int {
	return len(d.examples)
}

// At returns the example at index i
func (d *PreferenceDataset) At(i int) map[string]any {
	return d.examples[i]
}

// Columns returns the sorted union of keys across all examples
func (d *PreferenceDataset) Columns() ([]string, error) {
	examples, err := d.Examples()
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{})
	for _, example := range examples {
		for k := range example {
			set[k] = struct{}{}
		}
	}

	columns := make([]string, 0, len(set))
	for k := range set {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return columns, nil
}

// ValidateForDPO checks the required columns for DPO training. A missing
// prompt column is only a warning: the implicit-prompt conversational
// format is acceptable.
func (d *PreferenceDataset) ValidateForDPO() (bool, error) {
	columns, err := d.Columns()
	if err != nil {
		return false, err
	}

	set := columnSet(columns)
	_, hasChosen := set["chosen"]
	_, hasRejected := set["rejected"]
	_, hasPrompt := set["prompt"]

	if !hasChosen || !hasRejected {
		d.logger.Error("Missing required columns for DPO", "columns", columns)
		return false, nil
	}

	if !hasPrompt {
		d.logger.Warn("No 'prompt' column found, using implicit prompt format")
	}

	return true, nil
}

// ValidateForReward checks the required columns for reward model training
func (d *PreferenceDataset) ValidateForReward() (bool, error) {
	columns, err := d.Columns()
	if err != nil {
		return false, err
	}

	set := columnSet(columns)
	_, hasChosen := set["chosen"]
	_, hasRejected := set["rejected"]
	return hasChosen && hasRejected, nil
}

// FilterQuality returns a new dataset keeping only examples whose chosen
// and rejected text each have at least minLength characters. When a side
// is a message list, the last message's content is measured. The receiver
// is left unmodified and relative order is preserved.
func (d *PreferenceDataset) FilterQuality(minLength int) (*PreferenceDataset, error) {
	examples, err := d.Examples()
	if err != nil {
		return nil, err
	}

	kept := make([]map[string]any, 0, len(examples))
	for _, example := range examples {
		chosen := format.LastContent(example["chosen"])
		rejected := format.LastContent(example["rejected"])
		if len(chosen) >= minLength && len(rejected) >= minLength {
			kept = append(kept, example)
		}
	}

	d.logger.Info("Filtered dataset", "before", len(examples), "after", len(kept))

	return &PreferenceDataset{
		name:     d.name,
		examples: kept,
		loaded:   true,
		logger:   d.logger,
	}, nil
}

func columnSet(columns []string) map[string]struct{} {
	set := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		set[c] = struct{}{}
	}
	return set
}

// loadFile reads a single .json (array) or .jsonl file of examples
func loadFile(path string) ([]map[string]any, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read dataset file: %w", err)
		}
		var examples []map[string]any
		if err := json.Unmarshal(data, &examples); err != nil {
			return nil, fmt.Errorf("failed to parse dataset file %s: %w", path, err)
		}
		return examples, nil

	case ".jsonl":
		return loadJSONL(path)

	default:
		return nil, fmt.Errorf("unsupported dataset file type: %s", path)
	}
}

// loadDir reads every .json/.jsonl file in a directory
func loadDir(dir string) ([]map[string]any, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset directory: %w", err)
	}

	var examples []map[string]any
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".json" && ext != ".jsonl" {
			continue
		}

		fileExamples, err := loadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		examples = append(examples, fileExamples...)
	}

	return examples, nil
}

func loadJSONL(path string) ([]map[string]any, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	var examples []map[string]any
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var example map[string]any
		if err := json.Unmarshal([]byte(line), &example); err != nil {
			return nil, fmt.Errorf("%s line %d: failed to parse example: %w", path, lineNum, err)
		}
		examples = append(examples, example)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed while reading dataset file %s: %w", path, err)
	}

	return examples, nil
}
