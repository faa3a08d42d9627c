package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/vjranagit/fuzzratio/pkg/types"
)

// Labels attached to run series
const (
	LabelName     = "__name__"
	LabelRun      = "run"
	LabelCategory = "category"
)

// BlockSeconds is the span of run time covered by one stored block
const BlockSeconds = 3600

// ErrSeriesNotFound is returned when a query matches no stored series
var ErrSeriesNotFound = errors.New("series not found")

var indexKey = []byte("__index__")

// Storage interface defines the contract for run series storage
type Storage interface {
	// Write writes samples to storage, replacing the blocks it touches
	Write(ctx context.Context, req *types.WriteRequest) error

	// Query executes a label selector query over a time range
	Query(ctx context.Context, req *types.QueryRequest) (*types.QueryResult, error)

	// LabelValues returns the sorted values seen for a label
	LabelValues(ctx context.Context, label string) ([]string, error)

	// Close closes the storage
	Close() error
}

// Config holds storage configuration
type Config struct {
	Path             string
	CompressionLevel int
	EnableWAL        bool
	// InMemory keeps badger data in memory only
	InMemory bool
}

// DefaultConfig returns default storage configuration
func DefaultConfig() *Config {
	return &Config{
		Path:             "./data",
		CompressionLevel: 3,
		EnableWAL:        true,
	}
}

// badgerStorage implements Storage using BadgerDB
type badgerStorage struct {
	cfg        *Config
	db         *badger.DB
	index      *Index
	compressor *Compressor
	wal        *WAL
	mu         sync.RWMutex
}

// NewStorage opens the store, loads the persisted index and replays any
// write-ahead log left by an earlier process
func NewStorage(cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	opts := badger.DefaultOptions(filepath.Join(cfg.Path, "badger"))
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	compressor, err := NewCompressor(cfg.CompressionLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}

	s := &badgerStorage{
		cfg:        cfg,
		db:         db,
		index:      NewIndex(),
		compressor: compressor,
	}

	if err := s.loadIndex(); err != nil {
		s.Close()
		return nil, err
	}

	if cfg.EnableWAL && !cfg.InMemory {
		if err := ReplayWAL(cfg.Path, s.writeDirect); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to replay WAL: %w", err)
		}
		wal, err := NewWAL(cfg.Path)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.wal = wal
	}

	return s, nil
}

// Write implements Storage.Write
func (s *badgerStorage) Write(ctx context.Context, req *types.WriteRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.wal != nil {
		if err := s.wal.Append(req); err != nil {
			return fmt.Errorf("WAL append failed: %w", err)
		}
	}
	return s.writeDirect(req)
}

// writeDirect writes a request to BadgerDB without logging it
func (s *badgerStorage) writeDirect(req *types.WriteRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, series := range req.Series {
		seriesID, err := s.index.AddSeries(&series.Metric)
		if err != nil {
			return fmt.Errorf("failed to index series: %w", err)
		}
		if len(series.Samples) == 0 {
			continue
		}

		blocks := groupSamplesByBlock(series.Samples)
		for block, samples := range blocks {
			if err := s.writeBlock(req.TenantID, seriesID, block, samples); err != nil {
				return fmt.Errorf("failed to write block: %w", err)
			}
		}

		minT, maxT := timeRange(series.Samples)
		if err := s.index.UpdateTimeRange(seriesID, minT, maxT); err != nil {
			return err
		}
	}

	return s.saveIndex()
}

// groupSamplesByBlock groups samples into BlockSeconds blocks of run time
func groupSamplesByBlock(samples []types.Sample) map[int64][]types.Sample {
	blocks := make(map[int64][]types.Sample)
	for _, sample := range samples {
		block := blockOf(sample.Time)
		blocks[block] = append(blocks[block], sample)
	}
	return blocks
}

func blockOf(t float64) int64 {
	return int64(math.Floor(t / BlockSeconds))
}

func timeRange(samples []types.Sample) (float64, float64) {
	minT, maxT := samples[0].Time, samples[0].Time
	for _, s := range samples[1:] {
		minT = math.Min(minT, s.Time)
		maxT = math.Max(maxT, s.Time)
	}
	return minT, maxT
}

// toMicros converts elapsed seconds to the integer timestamps used on disk
func toMicros(t float64) int64 {
	return int64(math.Round(t * 1e6))
}

// writeBlock writes a block of samples to BadgerDB
func (s *badgerStorage) writeBlock(tenantID string, seriesID uint64, block int64, samples []types.Sample) error {
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Time < samples[j].Time })

	timestamps := make([]int64, len(samples))
	values := make([]float64, len(samples))
	for i, sample := range samples {
		timestamps[i] = toMicros(sample.Time)
		values[i] = sample.Value
	}

	compressedTS, err := s.compressor.CompressTimestamps(timestamps)
	if err != nil {
		return fmt.Errorf("failed to compress timestamps: %w", err)
	}

	compressedVals, err := s.compressor.CompressValues(values)
	if err != nil {
		return fmt.Errorf("failed to compress values: %w", err)
	}

	payload := &blockPayload{
		Count:            len(samples),
		CompressedTS:     compressedTS,
		CompressedValues: compressedVals,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	key := generateKey(tenantID, seriesID, block)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, payloadBytes)
	})
}

type blockPayload struct {
	Count            int
	CompressedTS     []byte
	CompressedValues []byte
}

// Query implements Storage.Query. The time range is inclusive; an EndTime
// of zero or less means no upper bound.
func (s *badgerStorage) Query(ctx context.Context, req *types.QueryRequest) (*types.QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	selectors, err := ParseSelector(req.Query)
	if err != nil {
		return nil, err
	}

	seriesIDs := s.index.FindSeries(selectors)
	sort.Slice(seriesIDs, func(i, j int) bool { return seriesIDs[i] < seriesIDs[j] })

	end := req.EndTime
	if end <= 0 {
		end = math.Inf(1)
	}

	result := &types.QueryResult{
		Series: make([]types.Series, 0, len(seriesIDs)),
	}

	for _, seriesID := range seriesIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		meta, ok := s.index.GetSeries(seriesID)
		if !ok || !meta.Observed {
			continue
		}

		series := types.Series{
			Metric:  meta.Metric,
			Samples: []types.Sample{},
		}

		from := blockOf(math.Max(req.StartTime, meta.MinTime))
		to := blockOf(math.Min(end, meta.MaxTime))
		for block := from; block <= to; block++ {
			samples, err := s.readBlock(req.TenantID, seriesID, block)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}

			for _, sample := range samples {
				if sample.Time >= req.StartTime && sample.Time <= end {
					series.Samples = append(series.Samples, sample)
				}
			}
		}

		if len(series.Samples) > 0 {
			result.Series = append(result.Series, series)
		}
	}

	if len(result.Series) == 0 {
		return result, ErrSeriesNotFound
	}
	return result, nil
}

// LabelValues implements Storage.LabelValues
func (s *badgerStorage) LabelValues(_ context.Context, label string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.LabelValues(label), nil
}

// readBlock reads a block of samples from BadgerDB
func (s *badgerStorage) readBlock(tenantID string, seriesID uint64, block int64) ([]types.Sample, error) {
	key := generateKey(tenantID, seriesID, block)

	var payloadBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		payloadBytes, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	var payload blockPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	timestamps, err := s.compressor.DecompressTimestamps(payload.CompressedTS, payload.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress timestamps: %w", err)
	}

	values, err := s.compressor.DecompressValues(payload.CompressedValues, payload.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress values: %w", err)
	}

	samples := make([]types.Sample, payload.Count)
	for i := 0; i < payload.Count; i++ {
		samples[i] = types.Sample{
			Time:  float64(timestamps[i]) / 1e6,
			Value: values[i],
		}
	}

	return samples, nil
}

// saveIndex persists the series index (must hold lock)
func (s *badgerStorage) saveIndex() error {
	data, err := s.index.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize index: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(indexKey, data)
	})
}

// loadIndex restores the series index written by an earlier process
func (s *badgerStorage) loadIndex() error {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(indexKey)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}

	idx, err := DeserializeIndex(data)
	if err != nil {
		return fmt.Errorf("failed to load index: %w", err)
	}
	s.index = idx
	return nil
}

// Close implements Storage.Close
func (s *badgerStorage) Close() error {
	var errs []error
	if s.wal != nil {
		errs = append(errs, s.wal.Close())
	}
	if s.compressor != nil {
		s.compressor.Close()
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

// generateKey generates a storage key for a time block
func generateKey(tenantID string, seriesID uint64, block int64) []byte {
	buf := new(bytes.Buffer)

	buf.WriteString(tenantID)
	buf.WriteByte('/')
	binary.Write(buf, binary.BigEndian, seriesID)
	buf.WriteByte('/')
	binary.Write(buf, binary.BigEndian, block)

	return buf.Bytes()
}

// ParseSelector parses name{label1="value1",label2="value2"} into label
// selectors. Either part may be omitted; an empty query selects everything.
func ParseSelector(query string) (map[string]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	selectors := make(map[string]string)
	name, rest, hasLabels := strings.Cut(query, "{")
	if name = strings.TrimSpace(name); name != "" {
		selectors[LabelName] = name
	}
	if !hasLabels {
		return selectors, nil
	}

	body, ok := strings.CutSuffix(strings.TrimSpace(rest), "}")
	if !ok {
		return nil, fmt.Errorf("invalid selector %q: missing }", query)
	}
	for _, part := range strings.Split(body, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid selector %q: expected label=\"value\"", query)
		}
		v = strings.TrimSpace(v)
		if len(v) < 2 || v[0] != '"' || v[len(v)-1] != '"' {
			return nil, fmt.Errorf("invalid selector %q: label values must be quoted", query)
		}
		selectors[strings.TrimSpace(k)] = v[1 : len(v)-1]
	}
	return selectors, nil
}
