package world

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"time"

	"github.com/udisondev/spellcore/internal/data"
	"github.com/udisondev/spellcore/internal/game/spell"
	"github.com/udisondev/spellcore/internal/model"
)

// DefaultTick — период обновления карты по умолчанию.
const DefaultTick = 100 * time.Millisecond

var (
	ErrUnitExists   = errors.New("unit already on map")
	ErrUnitNotFound = errors.New("unit not on map")
	ErrMapStopped   = errors.New("map stopped")
)

// AuraStore persists aura snapshots between sessions (db.AuraRepository).
type AuraStore interface {
	Load(ctx context.Context, unitGUID uint64, digest string) ([]spell.AuraSnapshot, error)
	Save(ctx context.Context, unitGUID uint64, digest string, snaps []spell.AuraSnapshot) error
}

type command struct {
	fn    func() error
	reply chan error
}

// Map — партиция мира: свои юниты, контейнеры аур и движок заклинаний.
//
// Всё состояние карты меняется только из её горутины (Run).
// Снаружи карта управляется командами: Do, Cast, Join, Leave.
// Step и *Now-методы синхронны и допустимы только из горутины карты
// или пока Run не запущен (детерминированная симуляция).
type Map struct {
	id   int32
	name string

	store     *data.Store
	engine    *spell.Engine
	auraStore AuraStore

	units map[uint64]*model.Creature
	order []spell.Unit
	auras map[uint64]*spell.Container

	cmds    chan command
	stopped chan struct{}
}

// NewMap creates a map over the shared spell store. opts.MapID is set to id.
func NewMap(id int32, name string, store *data.Store, opts spell.Options) *Map {
	opts.MapID = id
	m := &Map{
		id:      id,
		name:    name,
		store:   store,
		units:   make(map[uint64]*model.Creature, 64),
		order:   make([]spell.Unit, 0, 64),
		auras:   make(map[uint64]*spell.Container, 64),
		cmds:    make(chan command, 64),
		stopped: make(chan struct{}),
	}
	m.engine = spell.NewEngine(store, m, opts)
	return m
}

// ID returns the map id.
func (m *Map) ID() int32 { return m.id }

// Name returns the map name.
func (m *Map) Name() string { return m.name }

// Engine returns the spell engine of the map.
func (m *Map) Engine() *spell.Engine { return m.engine }

// SetAuraStore enables aura persistence on Join/Leave.
func (m *Map) SetAuraStore(s AuraStore) { m.auraStore = s }

// Unit implements spell.UnitIndex.
func (m *Map) Unit(guid uint64) spell.Unit {
	c, ok := m.units[guid]
	if !ok {
		return nil
	}
	return c
}

// Auras implements spell.UnitIndex.
func (m *Map) Auras(guid uint64) *spell.Container {
	return m.auras[guid]
}

// Units implements spell.UnitIndex. Order is join order.
func (m *Map) Units() []spell.Unit {
	return m.order
}

// Creature returns the concrete unit or nil.
func (m *Map) Creature(guid uint64) *model.Creature {
	return m.units[guid]
}

// Len returns the number of units on the map.
func (m *Map) Len() int {
	return len(m.order)
}

// AddUnit puts c on the map and restores snaps into its new container.
func (m *Map) AddUnit(c *model.Creature, snaps ...spell.AuraSnapshot) error {
	guid := c.GUID()
	if _, ok := m.units[guid]; ok {
		return fmt.Errorf("unit %d: %w", guid, ErrUnitExists)
	}

	cont := m.engine.NewContainer(c)
	c.SetStatBonusProvider(cont)
	c.SetStatListener(m.engine.StatsChanged)
	c.SetInWorld(true)

	m.units[guid] = c
	m.auras[guid] = cont
	m.order = append(m.order, c)

	restored := 0
	if len(snaps) > 0 {
		restored = cont.Restore(snaps, m.store)
	}

	slog.Debug("unit joined map",
		"map", m.id,
		"unit", c.Name(),
		"guid", guid,
		"restoredAuras", restored)
	return nil
}

// RemoveUnit takes the unit off the map and returns a snapshot of its auras.
// Auras are dropped without removal notifications.
func (m *Map) RemoveUnit(guid uint64) ([]spell.AuraSnapshot, error) {
	c, ok := m.units[guid]
	if !ok {
		return nil, fmt.Errorf("unit %d: %w", guid, ErrUnitNotFound)
	}

	snaps := m.auras[guid].Snapshot()
	c.SetInWorld(false)
	c.SetStatBonusProvider(nil)
	c.SetStatListener(nil)

	delete(m.units, guid)
	delete(m.auras, guid)
	m.order = slices.DeleteFunc(m.order, func(u spell.Unit) bool { return u.GUID() == guid })

	slog.Debug("unit left map",
		"map", m.id,
		"unit", c.Name(),
		"guid", guid,
		"auras", len(snaps))
	return snaps, nil
}

// CastNow casts spellID synchronously. Unknown target GUIDs are skipped.
func (m *Map) CastNow(casterGUID uint64, spellID int32, targetGUIDs ...uint64) ([]spell.Outcome, error) {
	caster, ok := m.units[casterGUID]
	if !ok {
		return nil, fmt.Errorf("caster %d: %w", casterGUID, ErrUnitNotFound)
	}

	targets := make([]spell.Unit, 0, len(targetGUIDs))
	for _, g := range targetGUIDs {
		t, ok := m.units[g]
		if !ok {
			slog.Debug("cast target not on map", "map", m.id, "target", g, "spell", spellID)
			continue
		}
		targets = append(targets, t)
	}
	return m.engine.Cast(caster, spellID, targets...)
}

// Step advances the map clock by deltaMs.
func (m *Map) Step(deltaMs int32) error {
	if err := m.engine.Advance(deltaMs); err != nil {
		return fmt.Errorf("map %d: %w", m.id, err)
	}
	return nil
}

// Run drives the map until ctx is cancelled: ticks every tick and
// executes posted commands between ticks.
func (m *Map) Run(ctx context.Context, tick time.Duration) error {
	defer close(m.stopped)
	if tick <= 0 {
		tick = DefaultTick
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	slog.Info("map started", "map", m.id, "name", m.name, "units", len(m.order), "tick", tick)

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			slog.Info("map stopping", "map", m.id, "clockMs", m.engine.Clock.Now())
			return ctx.Err()

		case now := <-ticker.C:
			elapsed := now.Sub(last).Milliseconds()
			if elapsed <= 0 {
				continue
			}
			// carry sub-millisecond remainder to the next tick
			last = last.Add(time.Duration(elapsed) * time.Millisecond)
			if err := m.Step(int32(elapsed)); err != nil {
				return err
			}

		case cmd := <-m.cmds:
			cmd.reply <- m.exec(cmd.fn)
		}
	}
}

func (m *Map) exec(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("map command panicked",
				"map", m.id,
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("map %d command panicked: %v", m.id, r)
		}
	}()
	return fn()
}

// Do runs fn on the map goroutine and waits for its result.
func (m *Map) Do(ctx context.Context, fn func() error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}

	select {
	case m.cmds <- cmd:
	case <-m.stopped:
		return ErrMapStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-m.stopped:
		return ErrMapStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cast posts a cast to the map loop.
func (m *Map) Cast(ctx context.Context, casterGUID uint64, spellID int32, targetGUIDs ...uint64) ([]spell.Outcome, error) {
	var outcomes []spell.Outcome
	err := m.Do(ctx, func() error {
		var err error
		outcomes, err = m.CastNow(casterGUID, spellID, targetGUIDs...)
		return err
	})
	return outcomes, err
}

// Join loads persisted auras of c (outside the map loop) and adds c to the map.
func (m *Map) Join(ctx context.Context, c *model.Creature) error {
	var snaps []spell.AuraSnapshot
	if m.auraStore != nil {
		var err error
		snaps, err = m.auraStore.Load(ctx, c.GUID(), m.store.Digest())
		if err != nil {
			return fmt.Errorf("loading auras of unit %d: %w", c.GUID(), err)
		}
	}
	return m.Do(ctx, func() error { return m.AddUnit(c, snaps...) })
}

// Leave removes the unit and persists its auras (outside the map loop).
func (m *Map) Leave(ctx context.Context, guid uint64) error {
	var snaps []spell.AuraSnapshot
	err := m.Do(ctx, func() error {
		var err error
		snaps, err = m.RemoveUnit(guid)
		return err
	})
	if err != nil {
		return err
	}

	if m.auraStore != nil {
		if err := m.auraStore.Save(ctx, guid, m.store.Digest(), snaps); err != nil {
			return fmt.Errorf("saving auras of unit %d: %w", guid, err)
		}
	}
	return nil
}
