package output

import (
	"context"
	"encoding/csv"
	"fmt"
	stdio "io"
	"path/filepath"
	"sync"

	"github.com/sawpanic/randomwalk/internal/domain/walk"
	"github.com/sawpanic/randomwalk/internal/io"
)

// FileSink writes one <symbol>.csv per symbol under Dir
type FileSink struct {
	Dir string
}

// NewFileSink creates a sink rooted at dir
func NewFileSink(dir string) *FileSink {
	return &FileSink{Dir: dir}
}

// Path returns the file a symbol's rows go to
func (s *FileSink) Path(symbol string) string {
	return filepath.Join(s.Dir, symbol+".csv")
}

// Write replaces the symbol's file with rows
func (s *FileSink) Write(ctx context.Context, symbol string, rows []walk.Row) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", walk.ErrWrite, symbol, err)
	}
	err := io.WriteAtomic(s.Path(symbol), func(w stdio.Writer) error {
		return writeRows(w, rows)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", walk.ErrWrite, s.Path(symbol), err)
	}
	return nil
}

// StreamSink writes rows to a shared stream such as stdout. Each symbol's rows
// are written contiguously.
type StreamSink struct {
	mu sync.Mutex
	w  stdio.Writer
}

// NewStreamSink creates a sink over w
func NewStreamSink(w stdio.Writer) *StreamSink {
	return &StreamSink{w: w}
}

// Write emits rows as CSV
func (s *StreamSink) Write(ctx context.Context, symbol string, rows []walk.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeRows(s.w, rows); err != nil {
		return fmt.Errorf("%w: %s to stream: %v", walk.ErrWrite, symbol, err)
	}
	return nil
}

func writeRows(w stdio.Writer, rows []walk.Row) error {
	cw := csv.NewWriter(w)
	for _, row := range rows {
		if err := cw.Write(row.Record()); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", row.Iteration, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
