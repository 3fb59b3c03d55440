package spell

import (
	"time"

	"github.com/google/uuid"

	"github.com/udisondev/spellcore/internal/combatlog"
)

// emitter stamps combat log records with map identity and time.
type emitter struct {
	sink  combatlog.Sink
	clock *Clock
	mapID int32
}

func (e emitter) emit(rec combatlog.Record) {
	if e.sink == nil {
		return
	}
	rec.ID = uuid.New()
	rec.MapID = e.mapID
	rec.TimeMs = e.clock.Now()
	rec.At = time.Now()
	e.sink.Emit(rec)
}
