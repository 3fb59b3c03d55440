package world

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Manager запускает все карты параллельно, по горутине на карту.
// Карты не разделяют изменяемого состояния: общий только read-only Store.
type Manager struct {
	tick time.Duration
	maps []*Map
	byID map[int32]*Map
}

// NewManager creates a manager ticking every map at tick.
func NewManager(tick time.Duration) *Manager {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Manager{
		tick: tick,
		byID: make(map[int32]*Map),
	}
}

// Add registers a map. Must be called before Run.
func (mg *Manager) Add(m *Map) error {
	if _, ok := mg.byID[m.ID()]; ok {
		return fmt.Errorf("duplicate map id %d", m.ID())
	}
	mg.byID[m.ID()] = m
	mg.maps = append(mg.maps, m)
	return nil
}

// Map returns the map by id or nil.
func (mg *Manager) Map(id int32) *Map {
	return mg.byID[id]
}

// Maps returns maps in registration order.
func (mg *Manager) Maps() []*Map {
	return mg.maps
}

// Run blocks until ctx is cancelled or a map fails.
// Cancellation is a clean shutdown and returns nil.
func (mg *Manager) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, m := range mg.maps {
		g.Go(func() error {
			if err := m.Run(gctx, mg.tick); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("map %d (%s): %w", m.ID(), m.Name(), err)
			}
			return nil
		})
	}

	slog.Info("world manager started", "maps", len(mg.maps), "tick", mg.tick)
	err := g.Wait()
	slog.Info("world manager stopped", "error", err)
	return err
}
