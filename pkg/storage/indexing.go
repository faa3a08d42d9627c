package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/vjranagit/fuzzratio/pkg/types"
)

// Index manages the series index
type Index struct {
	// Maps metric fingerprint to series metadata
	series map[uint64]*seriesMetadata
	// Inverted index: label name -> label value -> series IDs
	labelIndex map[string]map[string][]uint64
}

// seriesMetadata holds metadata about a single series
type seriesMetadata struct {
	ID       uint64
	Metric   types.Metric
	MinTime  float64
	MaxTime  float64
	Observed bool
}

// NewIndex creates a new index
func NewIndex() *Index {
	return &Index{
		series:     make(map[uint64]*seriesMetadata),
		labelIndex: make(map[string]map[string][]uint64),
	}
}

// AddSeries adds a series to the index
func (idx *Index) AddSeries(metric *types.Metric) (uint64, error) {
	if metric.Name == "" {
		return 0, fmt.Errorf("metric name is required")
	}
	fingerprint := calculateFingerprint(metric)

	if meta, exists := idx.series[fingerprint]; exists {
		return meta.ID, nil
	}

	labels := make(map[string]string, len(metric.Labels))
	for k, v := range metric.Labels {
		labels[k] = v
	}
	idx.insert(&seriesMetadata{
		ID:     fingerprint,
		Metric: types.Metric{Name: metric.Name, Labels: labels},
	})

	return fingerprint, nil
}

// insert stores meta and updates the inverted index
func (idx *Index) insert(meta *seriesMetadata) {
	idx.series[meta.ID] = meta
	idx.addLabel(LabelName, meta.Metric.Name, meta.ID)
	for name, value := range meta.Metric.Labels {
		idx.addLabel(name, value, meta.ID)
	}
}

func (idx *Index) addLabel(name, value string, id uint64) {
	if idx.labelIndex[name] == nil {
		idx.labelIndex[name] = make(map[string][]uint64)
	}
	idx.labelIndex[name][value] = append(idx.labelIndex[name][value], id)
}

// GetSeries retrieves series metadata by ID
func (idx *Index) GetSeries(id uint64) (*seriesMetadata, bool) {
	meta, ok := idx.series[id]
	return meta, ok
}

// FindSeries finds series matching label selectors
func (idx *Index) FindSeries(labelSelectors map[string]string) []uint64 {
	if len(labelSelectors) == 0 {
		result := make([]uint64, 0, len(idx.series))
		for id := range idx.series {
			result = append(result, id)
		}
		return result
	}

	// Find intersection of matching series across all selectors
	var result []uint64
	first := true

	for labelName, labelValue := range labelSelectors {
		valueMap, ok := idx.labelIndex[labelName]
		if !ok {
			return nil
		}

		seriesIDs, ok := valueMap[labelValue]
		if !ok {
			return nil
		}

		if first {
			result = append([]uint64(nil), seriesIDs...)
			first = false
		} else {
			result = intersect(result, seriesIDs)
		}

		if len(result) == 0 {
			return nil
		}
	}

	return result
}

// LabelValues returns the sorted values indexed for a label
func (idx *Index) LabelValues(label string) []string {
	values := make([]string, 0, len(idx.labelIndex[label]))
	for v := range idx.labelIndex[label] {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

// UpdateTimeRange widens the observed time range of a series
func (idx *Index) UpdateTimeRange(id uint64, minTime, maxTime float64) error {
	meta, ok := idx.series[id]
	if !ok {
		return fmt.Errorf("series %d not found", id)
	}

	if !meta.Observed || minTime < meta.MinTime {
		meta.MinTime = minTime
	}
	if !meta.Observed || maxTime > meta.MaxTime {
		meta.MaxTime = maxTime
	}
	meta.Observed = true

	return nil
}

// SeriesCount returns the number of indexed series
func (idx *Index) SeriesCount() int {
	return len(idx.series)
}

// calculateFingerprint generates a unique fingerprint for a metric
func calculateFingerprint(metric *types.Metric) uint64 {
	// Sort label keys for consistent fingerprinting
	keys := make([]string, 0, len(metric.Labels))
	for k := range metric.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := new(bytes.Buffer)
	buf.WriteString(metric.Name)

	for _, k := range keys {
		buf.WriteByte(0)
		buf.WriteString(k)
		buf.WriteByte(0)
		buf.WriteString(metric.Labels[k])
	}

	return xxhash.Sum64(buf.Bytes())
}

// intersect finds common elements in two slices
func intersect(a, b []uint64) []uint64 {
	sort.Slice(a, func(i, j int) bool { return a[i] < a[j] })
	sort.Slice(b, func(i, j int) bool { return b[i] < b[j] })

	result := make([]uint64, 0)
	i, j := 0, 0

	for i < len(a) && j < len(b) {
		if a[i] < b[j] {
			i++
		} else if a[i] > b[j] {
			j++
		} else {
			result = append(result, a[i])
			i++
			j++
		}
	}

	return result
}

// Serialize serializes the index to bytes
func (idx *Index) Serialize() ([]byte, error) {
	buf := new(bytes.Buffer)

	if err := binary.Write(buf, binary.LittleEndian, uint32(len(idx.series))); err != nil {
		return nil, err
	}

	ids := make([]uint64, 0, len(idx.series))
	for id := range idx.series {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		meta := idx.series[id]
		observed := uint8(0)
		if meta.Observed {
			observed = 1
		}
		for _, v := range []any{meta.ID, observed, math.Float64bits(meta.MinTime), math.Float64bits(meta.MaxTime)} {
			if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
				return nil, err
			}
		}

		if err := writeString(buf, meta.Metric.Name); err != nil {
			return nil, err
		}

		keys := make([]string, 0, len(meta.Metric.Labels))
		for k := range meta.Metric.Labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if err := binary.Write(buf, binary.LittleEndian, uint16(len(keys))); err != nil {
			return nil, err
		}
		for _, k := range keys {
			if err := writeString(buf, k); err != nil {
				return nil, err
			}
			if err := writeString(buf, meta.Metric.Labels[k]); err != nil {
				return nil, err
			}
		}
	}

	return buf.Bytes(), nil
}

// DeserializeIndex rebuilds an index from Serialize output
func DeserializeIndex(data []byte) (*Index, error) {
	r := bytes.NewReader(data)
	idx := NewIndex()

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}

	for i := uint32(0); i < count; i++ {
		var (
			id               uint64
			observed         uint8
			minBits, maxBits uint64
			labelCount       uint16
		)
		for _, v := range []any{&id, &observed, &minBits, &maxBits} {
			if err := binary.Read(r, binary.LittleEndian, v); err != nil {
				return nil, fmt.Errorf("series %d: %w", i, err)
			}
		}
		name, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("series %d: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &labelCount); err != nil {
			return nil, fmt.Errorf("series %d: %w", i, err)
		}
		labels := make(map[string]string, labelCount)
		for j := uint16(0); j < labelCount; j++ {
			k, err := readString(r)
			if err != nil {
				return nil, fmt.Errorf("series %d: %w", i, err)
			}
			v, err := readString(r)
			if err != nil {
				return nil, fmt.Errorf("series %d: %w", i, err)
			}
			labels[k] = v
		}

		idx.insert(&seriesMetadata{
			ID:       id,
			Metric:   types.Metric{Name: name, Labels: labels},
			MinTime:  math.Float64frombits(minBits),
			MaxTime:  math.Float64frombits(maxBits),
			Observed: observed == 1,
		})
	}

	return idx, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("string of %d bytes too long for index", len(s))
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := buf.WriteString(s)
	return err
}

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
