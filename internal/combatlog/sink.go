package combatlog

//go:generate mockgen -destination=mocks/mock_sink.go -package=mocks -source=sink.go

import (
	"context"
	"log/slog"
	"sync"
)

// Sink consumes combat log records. Emit must not block the map loop.
type Sink interface {
	Emit(rec Record)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(rec Record)

// Emit calls f(rec).
func (f SinkFunc) Emit(rec Record) { f(rec) }

// Discard drops every record.
var Discard Sink = SinkFunc(func(Record) {})

// MultiSink fans a record out to several sinks in order.
type MultiSink []Sink

// Emit forwards rec to every sink.
func (m MultiSink) Emit(rec Record) {
	for _, s := range m {
		s.Emit(rec)
	}
}

// LogSink writes records to slog at debug level (faults at warn).
type LogSink struct {
	Logger *slog.Logger
}

// Emit logs the record.
func (s LogSink) Emit(rec Record) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelDebug
	if rec.Kind == KindFault || rec.Kind == KindRecursion {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "combat log",
		"kind", rec.Kind,
		"map", rec.MapID,
		"t", rec.TimeMs,
		"caster", rec.CasterGUID,
		"target", rec.TargetGUID,
		"spell", rec.SpellID,
		"amount", rec.Amount,
		"absorbed", rec.Absorbed,
		"hit", rec.Hit,
		"depth", rec.Depth,
		"detail", rec.Detail)
}

// Recorder keeps records in memory. Used by tests and the offline simulator.
type Recorder struct {
	mu      sync.Mutex
	records []Record
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{records: make([]Record, 0, 64)}
}

// Emit appends rec.
func (r *Recorder) Emit(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

// Records returns a copy of all records.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// ByKind returns the records of one kind in emission order.
func (r *Recorder) ByKind(kind Kind) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, rec := range r.records {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

// Count returns the number of records of one kind.
func (r *Recorder) Count(kind Kind) int {
	return len(r.ByKind(kind))
}

// Reset clears all records.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = r.records[:0]
}
