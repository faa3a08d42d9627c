// Package telemetry decodes the newline-delimited stats records written by
// fuzzing monitors into snapshots.
package telemetry

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/vjranagit/fuzzratio/pkg/types"
)

// User stat names read from each client
const (
	StatCorrectnessAbsolute = "correctness-absolute"
	StatEdges               = "edges"
)

type rawRecord struct {
	RunTime struct {
		Secs  float64 `json:"secs"`
		Nanos float64 `json:"nanos"`
	} `json:"run_time"`
	Executions  uint64          `json:"executions"`
	Corpus      uint64          `json:"corpus"`
	ClientStats json.RawMessage `json:"client_stats"`
}

type rawClient struct {
	Executions uint64                     `json:"executions"`
	UserStats  map[string]json.RawMessage `json:"user_stats"`
}

type rawStatValue struct {
	Value struct {
		String string    `json:"String"`
		Ratio  []float64 `json:"Ratio"`
	} `json:"value"`
}

// DecodeLine decodes a single record into a snapshot
func DecodeLine(line []byte) (*types.Snapshot, error) {
	var rec rawRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}

	clients, err := decodeClients(rec.ClientStats)
	if err != nil {
		return nil, err
	}

	snap := &types.Snapshot{
		Elapsed:    rec.RunTime.Secs + rec.RunTime.Nanos/1e9,
		Executions: rec.Executions,
		Corpus:     rec.Corpus,
		Clients:    make(map[string]types.ClientReport, len(clients)),
	}

	for id, c := range clients {
		report := types.ClientReport{Executions: c.Executions}
		if v, ok := statValue(c.UserStats, StatEdges); ok && len(v.Value.Ratio) >= 1 {
			report.Edges = int64(v.Value.Ratio[0])
		}
		if c.Executions > 0 {
			if v, ok := statValue(c.UserStats, StatCorrectnessAbsolute); ok && v.Value.String != "" {
				if counts := ParseCategoryCounts(v.Value.String); len(counts) > 0 {
					report.Counts = counts
				}
			}
		}
		snap.Clients[id] = report
	}

	return snap, nil
}

// decodeClients accepts client_stats as an object keyed by client id or as
// an array indexed by client id.
func decodeClients(raw json.RawMessage) (map[string]rawClient, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var list []rawClient
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("invalid client_stats: %w", err)
		}
		out := make(map[string]rawClient, len(list))
		for i, c := range list {
			out[strconv.Itoa(i)] = c
		}
		return out, nil
	}

	var out map[string]rawClient
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("invalid client_stats: %w", err)
	}
	return out, nil
}

// statValue decodes one user stat, ignoring stats of a different shape
func statValue(stats map[string]json.RawMessage, name string) (rawStatValue, bool) {
	var v rawStatValue
	raw, ok := stats[name]
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false
	}
	return v, true
}

// ParseCategoryCounts parses "category: count" pairs separated by commas.
// Tokens without a colon or with a non-numeric count are ignored.
func ParseCategoryCounts(s string) map[string]float64 {
	counts := make(map[string]float64)
	for _, token := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(token, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || key == "" {
			continue
		}
		counts[key] = n
	}
	return counts
}

// ContributingClients returns the ids of clients that carry category
// counts, sorted for deterministic iteration.
func ContributingClients(s *types.Snapshot) []string {
	ids := make([]string, 0, len(s.Clients))
	for id, c := range s.Clients {
		if len(c.Counts) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
