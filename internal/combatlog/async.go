package combatlog

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Writer persists a batch of records (Postgres, Redis stream).
type Writer interface {
	Write(ctx context.Context, batch []Record) error
}

const (
	defaultBufferSize    = 4096
	defaultBatchSize     = 256
	defaultFlushInterval = time.Second
	shutdownFlushTimeout = 5 * time.Second
)

// AsyncSink decouples map loops from slow writers.
// Emit never blocks: when the buffer is full the record is dropped and counted.
type AsyncSink struct {
	ch            chan Record
	writer        Writer
	batchSize     int
	flushInterval time.Duration

	dropped atomic.Uint64
	written atomic.Uint64
}

// NewAsyncSink creates a sink in front of w. Zero sizes fall back to defaults.
func NewAsyncSink(w Writer, bufferSize, batchSize int, flushInterval time.Duration) *AsyncSink {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	return &AsyncSink{
		ch:            make(chan Record, bufferSize),
		writer:        w,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// Emit enqueues rec or drops it if the buffer is full.
func (s *AsyncSink) Emit(rec Record) {
	select {
	case s.ch <- rec:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns the number of records lost to a full buffer.
func (s *AsyncSink) Dropped() uint64 { return s.dropped.Load() }

// Written returns the number of records handed to the writer successfully.
func (s *AsyncSink) Written() uint64 { return s.written.Load() }

// Run flushes batches until ctx is canceled, then drains what is buffered.
func (s *AsyncSink) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, s.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := s.writer.Write(ctx, batch); err != nil {
			slog.Warn("combat log flush failed", "records", len(batch), "error", err)
		} else {
			s.written.Add(uint64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
			defer cancel()
			for {
				select {
				case rec := <-s.ch:
					batch = append(batch, rec)
					if len(batch) >= s.batchSize {
						flush(drainCtx)
					}
				default:
					flush(drainCtx)
					slog.Info("combat log sink stopped", "written", s.Written(), "dropped", s.Dropped())
					return nil
				}
			}

		case rec := <-s.ch:
			batch = append(batch, rec)
			if len(batch) >= s.batchSize {
				flush(ctx)
			}

		case <-ticker.C:
			flush(ctx)
		}
	}
}
