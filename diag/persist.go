package diag

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// Sink receives recorded diagnostics for persistence.
type Sink interface {
	Write(d Diagnostic) error
}

// NDJSONSink writes one immutable JSON record per line to a writer.
// Records are append-only and never rewritten.
type NDJSONSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewNDJSONSink creates a sink on an arbitrary writer.
func NewNDJSONSink(w io.Writer) *NDJSONSink {
	return &NDJSONSink{w: w}
}

// Write appends one diagnostic as a JSON line.
func (s *NDJSONSink) Write(d Diagnostic) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("diag: encode record: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(append(data, '\n'))
	return err
}

// FileSink is an NDJSONSink on an append-only file.
type FileSink struct {
	NDJSONSink
	f *os.File
}

// NewFileSink opens (creating if needed) path for append-only writes.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("diag: open sink: %w", err)
	}
	s := &FileSink{f: f}
	s.w = f
	return s, nil
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	return s.f.Close()
}

// Ensure sinks implement Sink
var (
	_ Sink = (*NDJSONSink)(nil)
	_ Sink = (*FileSink)(nil)
)
