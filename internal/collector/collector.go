package collector

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lamim/prefharvest/internal/metrics"
	"github.com/lamim/prefharvest/pkg/models"
)

// DefaultBufferSize is the number of buffered records that triggers a flush
const DefaultBufferSize = 100

// ErrInvalidPreferred is returned when the preferred flag is not "a" or "b"
var ErrInvalidPreferred = errors.New(`preferred must be "a" or "b"`)

// Collector buffers preference records in memory and persists them to
// append-only JSONL files in a storage directory.
//
// A Collector is exclusively owned by a single goroutine; concurrent use is
// not supported.
type Collector struct {
	storageDir string
	buffer     []models.PreferenceRecord
	bufferSize int
	logger     *slog.Logger
	metrics    *metrics.Collector
}

// Option configures a Collector
type Option func(*Collector)

// WithBufferSize overrides the flush threshold
func WithBufferSize(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// WithMetrics attaches a metrics collector
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Collector) {
		c.metrics = m
	}
}

// New creates a collector rooted at storageDir, creating the directory if
// it does not exist.
func New(storageDir string, logger *slog.Logger, opts ...Option) (*Collector, error) {
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	c := &Collector{
		storageDir: storageDir,
		bufferSize: DefaultBufferSize,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// StorageDir returns the storage directory path
func (c *Collector) StorageDir() string {
	return c.storageDir
}

// BufferLen returns the number of records currently buffered
func (c *Collector) BufferLen() int {
	return len(c.buffer)
}

// AddComparison records a single pairwise comparison. The preferred flag
// selects which response becomes chosen: "a" or "b". Any other value is
// rejected with ErrInvalidPreferred.
func (c *Collector) AddComparison(prompt, responseA, responseB, preferred string, meta models.Metadata) (models.PreferenceRecord, error) {
	if preferred != "a" && preferred != "b" {
		return models.PreferenceRecord{}, fmt.Errorf("%w (got %q)", ErrInvalidPreferred, preferred)
	}

	chosen, rejected := responseA, responseB
	if preferred == "b" {
		chosen, rejected = responseB, responseA
	}

	record := models.NewPreferenceRecord(prompt, chosen, rejected, meta)
	c.buffer = append(c.buffer, record)
	if c.metrics != nil {
		c.metrics.IncrementCollected("comparison", 1)
	}

	if err := c.maybeFlush(); err != nil {
		return models.PreferenceRecord{}, err
	}

	return record, nil
}

// AddRanking records a best-first ranking of multiple responses, expanding
// it into all implied pairwise comparisons: for every pair of ranked
// positions i < j, the response at position i becomes chosen and the
// response at position j becomes rejected. A ranking of k responses yields
// k*(k-1)/2 records.
func (c *Collector) AddRanking(prompt string, responses []string, ranking []int, meta models.Metadata) ([]models.PreferenceRecord, error) {
	for _, idx := range ranking {
		if idx < 0 || idx >= len(responses) {
			return nil, fmt.Errorf("ranking index %d out of range for %d responses", idx, len(responses))
		}
	}

	var records []models.PreferenceRecord
	for i := 0; i < len(ranking)-1; i++ {
		for _, worseIdx := range ranking[i+1:] {
			record := models.NewPreferenceRecord(prompt, responses[ranking[i]], responses[worseIdx], meta)
			c.buffer = append(c.buffer, record)
			records = append(records, record)
		}
	}
	if c.metrics != nil {
		c.metrics.IncrementCollected("ranking", len(records))
	}

	if err := c.maybeFlush(); err != nil {
		return nil, err
	}

	return records, nil
}

func (c *Collector) maybeFlush() error {
	if len(c.buffer) >= c.bufferSize {
		return c.Flush()
	}
	return nil
}

// Flush appends every buffered record as one JSON line to a timestamped
// file in the storage directory, then clears the buffer. Flushing an empty
// buffer is a no-op. Multiple flushes within the same second append to the
// same file.
func (c *Collector) Flush() error {
	if len(c.buffer) == 0 {
		return nil
	}

	start := time.Now()
	path := filepath.Join(c.storageDir, FlushFilename(time.Now().UTC()))

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open storage file: %w", err)
	}

	encoder := json.NewEncoder(file)
	for _, record := range c.buffer {
		if err := encoder.Encode(&record); err != nil {
			_ = file.Close()
			return fmt.Errorf("failed to write record %s: %w", record.ID, err)
		}
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close storage file: %w", err)
	}

	c.logger.Info("Flushed records to storage", "count", len(c.buffer), "path", path)
	if c.metrics != nil {
		c.metrics.RecordFlush(len(c.buffer), time.Since(start))
	}

	c.buffer = c.buffer[:0]
	return nil
}

// LoadAll reads every JSONL file in the storage directory and returns all
// persisted records. Records are returned in file-enumeration order, then
// line order within each file; no cross-file ordering is guaranteed and no
// deduplication is performed. A malformed line fails the whole call.
func (c *Collector) LoadAll() ([]models.PreferenceRecord, error) {
	start := time.Now()
	entries, err := os.ReadDir(c.storageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	var records []models.PreferenceRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}

		path := filepath.Join(c.storageDir, entry.Name())
		fileRecords, err := readRecordFile(path)
		if err != nil {
			return nil, err
		}
		records = append(records, fileRecords...)
	}

	if c.metrics != nil {
		c.metrics.RecordLoad(time.Since(start))
	}

	return records, nil
}

// ExportForTraining flushes any pending buffer, loads all persisted records
// and converts each to the minimal DPO mapping. When outputPath is
// non-empty the result is also written there as a pretty-printed JSON
// array.
func (c *Collector) ExportForTraining(outputPath string) ([]models.DPORecord, error) {
	if err := c.Flush(); err != nil {
		return nil, err
	}

	records, err := c.LoadAll()
	if err != nil {
		return nil, err
	}

	training := make([]models.DPORecord, 0, len(records))
	for _, r := range records {
		training = append(training, r.ToDPO())
	}

	if outputPath != "" {
		data, err := json.MarshalIndent(training, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal training data: %w", err)
		}
		if err := os.WriteFile(outputPath, data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write training data: %w", err)
		}
		c.logger.Info("Exported training data", "count", len(training), "path", outputPath)
	}

	return training, nil
}

// Stats reports the persisted record count, current buffer length, and the
// distinct non-empty domains and task categories seen across storage.
func (c *Collector) Stats() (models.Stats, error) {
	records, err := c.LoadAll()
	if err != nil {
		return models.Stats{}, err
	}

	domains := make(map[string]struct{})
	categories := make(map[string]struct{})
	for _, r := range records {
		if r.Domain != "" {
			domains[r.Domain] = struct{}{}
		}
		if r.TaskCategory != "" {
			categories[r.TaskCategory] = struct{}{}
		}
	}

	return models.Stats{
		TotalRecords:    len(records),
		BufferedRecords: len(c.buffer),
		Domains:         sortedKeys(domains),
		Categories:      sortedKeys(categories),
	}, nil
}

func readRecordFile(path string) ([]models.PreferenceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage file %s: %w", path, err)
	}

	var records []models.PreferenceRecord
	lineNum := 0
	for _, line := range strings.Split(string(data), "\n") {
		lineNum++
		if strings.TrimSpace(line) == "" {
			continue
		}

		var record models.PreferenceRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, fmt.Errorf("%s line %d: failed to parse record: %w", path, lineNum, err)
		}
		records = append(records, record)
	}

	return records, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
