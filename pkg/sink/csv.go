// Package sink serializes concurrent outcome writes into the CSV
// output stream. A single mutex guards write+flush, so rows from
// different workers never interleave and every flushed row survives a
// crash of the rest of the run.
package sink

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/ledgerline/mp-resolve/pkg/fetch"
)

// Prometheus metrics for the result sink.
var (
	rowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resolve_rows_written_total",
		Help: "Outcome rows written to the output by result",
	}, []string{"result"})
)

// progressEvery controls how often a progress line is logged.
const progressEvery = 10

// syncer is implemented by *os.File; other writers skip the fsync.
type syncer interface {
	Sync() error
}

// CSVSink appends outcomes to a CSV destination under mutual
// exclusion.
type CSVSink struct {
	mu        sync.Mutex
	csv       *csv.Writer
	out       io.Writer
	closer    io.Closer
	name      string
	total     int
	completed int
	logger    zerolog.Logger
}

// New creates a sink over an arbitrary writer and writes the header
// row immediately, before any outcome can arrive. total is the number
// of identifiers in the run, used for progress reporting. name labels
// the destination in logs.
func New(w io.Writer, name string, total int, logger zerolog.Logger) (*CSVSink, error) {
	s := &CSVSink{
		csv:    csv.NewWriter(w),
		out:    w,
		name:   name,
		total:  total,
		logger: logger,
	}

	if err := s.csv.Write(fetch.Fields()); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := s.flushLocked(); err != nil {
		return nil, fmt.Errorf("flush header: %w", err)
	}

	return s, nil
}

// NewFile creates the output file (truncating any previous run) and a
// sink over it.
func NewFile(path string, total int, logger zerolog.Logger) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	s, err := New(f, path, total, logger)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.closer = f

	return s, nil
}

// Write appends one outcome and flushes it to the destination. Safe
// for concurrent use; rows are never reordered mid-write or dropped.
func (s *CSVSink) Write(out fetch.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.csv.Write(out.Row()); err != nil {
		return fmt.Errorf("write row for %s: %w", out.PaymentID, err)
	}
	if err := s.flushLocked(); err != nil {
		return fmt.Errorf("flush row for %s: %w", out.PaymentID, err)
	}

	result := "ok"
	if !out.OK() {
		result = "error"
	}
	rowsWritten.WithLabelValues(result).Inc()

	s.completed++
	if s.completed%progressEvery == 0 || s.completed == s.total {
		s.logger.Info().
			Int("completed", s.completed).
			Int("total", s.total).
			Str("output", s.name).
			Msgf("[%d/%d] wrote rows", s.completed, s.total)
	}

	return nil
}

// Completed returns how many outcomes have been written so far.
func (s *CSVSink) Completed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// Close flushes and closes the underlying file, if the sink owns one.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flushLocked(); err != nil {
		return err
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// flushLocked pushes buffered bytes to the destination and fsyncs when
// possible. Callers hold s.mu.
func (s *CSVSink) flushLocked() error {
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if f, ok := s.out.(syncer); ok {
		if err := f.Sync(); err != nil {
			return err
		}
	}
	return nil
}
