package telemetry

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vjranagit/fuzzratio/pkg/types"
)

// MaxLineBytes caps a single record
const MaxLineBytes = 64 * 1024 * 1024

// ParseError records a malformed line
type ParseError struct {
	Line int
	Err  error
}

func (e ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e ParseError) Unwrap() error { return e.Err }

// ParseErrors collects malformed lines of one source
type ParseErrors []ParseError

// Lines returns the 1-based line numbers of the malformed lines
func (pe ParseErrors) Lines() []int {
	lines := make([]int, len(pe))
	for i, e := range pe {
		lines[i] = e.Line
	}
	return lines
}

func (pe ParseErrors) Error() string {
	parts := make([]string, len(pe))
	for i, e := range pe {
		parts[i] = strconv.Itoa(e.Line)
	}
	return fmt.Sprintf("%d malformed lines at %s", len(pe), strings.Join(parts, ", "))
}

// SnapshotFunc receives each decoded snapshot with its 1-based line number.
// Returning false stops reading.
type SnapshotFunc func(line int, snap *types.Snapshot) bool

// ReadAll decodes every line of r and passes the snapshots to fn in arrival
// order. Malformed lines are collected, except the final line, which may be
// a record still being written by the monitor and is dropped silently.
// The returned error is only set for I/O failures.
func ReadAll(r io.Reader, fn SnapshotFunc) (ParseErrors, error) {
	br := bufio.NewReader(r)
	var perrs ParseErrors

	pending, err := readLine(br)
	if err != nil {
		return nil, err
	}
	lineNo := 0
	for pending != nil {
		lineNo++
		next, err := readLine(br)
		if err != nil {
			return perrs, err
		}
		last := next == nil

		snap, derr := DecodeLine(pending)
		if derr != nil {
			if !last {
				perrs = append(perrs, ParseError{Line: lineNo, Err: derr})
			}
		} else if !fn(lineNo, snap) {
			return perrs, nil
		}
		pending = next
	}

	return perrs, nil
}

// readLine returns the next line without its terminator, or nil at EOF.
// Lines longer than bufio's buffer are accumulated up to MaxLineBytes.
func readLine(br *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		part, err := br.ReadSlice('\n')
		if len(part) > 0 {
			if len(line)+len(part) > MaxLineBytes {
				return nil, fmt.Errorf("line exceeds %d bytes", MaxLineBytes)
			}
			line = append(line, part...)
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			if len(line) == 0 {
				return nil, nil
			}
			break
		}
		return nil, fmt.Errorf("read failed: %w", err)
	}

	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	if line == nil {
		line = []byte{}
	}
	return line, nil
}
