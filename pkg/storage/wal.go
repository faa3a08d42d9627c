package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/vjranagit/fuzzratio/pkg/types"
)

// walFlushInterval is how often buffered entries reach the disk
const walFlushInterval = time.Second

// WAL is a JSON-lines write-ahead log of run series writes
type WAL struct {
	path       string
	file       *os.File
	writer     *bufio.Writer
	mu         sync.Mutex
	flushTimer *time.Timer
	closed     bool
}

// WALEntry is one logged write request
type WALEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	TenantID  string         `json:"tenant_id"`
	Series    []types.Series `json:"series"`
}

// NewWAL opens a fresh log segment under dataPath/wal
func NewWAL(dataPath string) (*WAL, error) {
	walPath := filepath.Join(dataPath, "wal")
	if err := os.MkdirAll(walPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}

	filename := filepath.Join(walPath, fmt.Sprintf("wal-%d.log", time.Now().UnixNano()))
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL file: %w", err)
	}

	wal := &WAL{
		path:   walPath,
		file:   file,
		writer: bufio.NewWriter(file),
	}
	wal.flushTimer = time.AfterFunc(walFlushInterval, wal.autoFlush)

	return wal, nil
}

// Append logs a write request
func (w *WAL) Append(req *types.WriteRequest) error {
	entry := WALEntry{
		Timestamp: time.Now(),
		TenantID:  req.TenantID,
		Series:    req.Series,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal WAL entry: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("WAL is closed")
	}
	if _, err := w.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write to WAL: %w", err)
	}
	return nil
}

// Flush writes buffered entries and syncs the segment
func (w *WAL) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return w.flushLocked()
}

func (w *WAL) flushLocked() error {
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush WAL: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync WAL: %w", err)
	}
	return nil
}

func (w *WAL) autoFlush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	_ = w.flushLocked()
	w.flushTimer.Reset(walFlushInterval)
}

// Close flushes and closes the segment
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.flushTimer.Stop()

	if err := w.flushLocked(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// ReplayWAL feeds every logged request to handler, oldest segment first,
// and removes each segment once it has been replayed
func ReplayWAL(dataPath string, handler func(*types.WriteRequest) error) error {
	walPath := filepath.Join(dataPath, "wal")

	entries, err := os.ReadDir(walPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read WAL directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		filename := filepath.Join(walPath, name)
		if err := replayWALFile(filename, handler); err != nil {
			return fmt.Errorf("failed to replay %s: %w", filename, err)
		}
		if err := os.Remove(filename); err != nil {
			return fmt.Errorf("failed to remove replayed WAL %s: %w", filename, err)
		}
	}

	return nil
}

// replayWALFile replays one segment. A torn final entry left by a crash
// mid-write is ignored.
func replayWALFile(filename string, handler func(*types.WriteRequest) error) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	r := bufio.NewReader(file)
	for {
		line, err := r.ReadBytes('\n')
		complete := err == nil
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}

		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			var entry WALEntry
			if uerr := json.Unmarshal(line, &entry); uerr != nil {
				if !complete {
					return nil
				}
				return fmt.Errorf("failed to unmarshal WAL entry: %w", uerr)
			}

			req := &types.WriteRequest{
				TenantID: entry.TenantID,
				Series:   entry.Series,
			}
			if herr := handler(req); herr != nil {
				return fmt.Errorf("failed to replay entry: %w", herr)
			}
		}

		if !complete {
			return nil
		}
	}
}
