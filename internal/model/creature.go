package model

import (
	"sync"
	"sync/atomic"

	"github.com/udisondev/spellcore/internal/data"
)

// StatBonusProvider provides stat bonuses from active auras.
// flat is added to the base value, mul multiplies the sum.
type StatBonusProvider interface {
	StatBonus(stat data.Stat) (flat, mul float64)
}

// Creature — живое существо на карте: HP, ресурс (power), базовые статы.
// Реализует spell.Unit.
//
// Мутации идут из цикла своей карты; mutex нужен только для чтения
// состояния из других горутин (статус, логи).
// GetStat читает бонусы контейнера аур, поэтому вызывается только из цикла
// карты; другим горутинам доступен BaseStat.
type Creature struct {
	mu sync.RWMutex

	guid  uint64
	name  string
	level int32

	currentHP int32
	maxHP     int32
	power     int32
	maxPower  int32

	stats    map[data.Stat]float64
	bonus    StatBonusProvider
	onChange func(guid uint64)

	inWorld atomic.Bool
}

// NewCreature создаёт существо с полными HP и ресурсом.
// Существо не в мире, пока карта не вызовет SetInWorld(true).
func NewCreature(guid uint64, name string, level, maxHP, maxPower int32) *Creature {
	if maxHP < 1 {
		maxHP = 1
	}
	if maxPower < 0 {
		maxPower = 0
	}
	return &Creature{
		guid:      guid,
		name:      name,
		level:     level,
		currentHP: maxHP,
		maxHP:     maxHP,
		power:     maxPower,
		maxPower:  maxPower,
		stats:     make(map[data.Stat]float64, 8),
	}
}

// GUID возвращает уникальный идентификатор.
func (c *Creature) GUID() uint64 { return c.guid }

// Name возвращает имя.
func (c *Creature) Name() string { return c.name }

// Level возвращает уровень.
func (c *Creature) Level() int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.level
}

// CurrentHP возвращает текущее HP.
func (c *Creature) CurrentHP() int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentHP
}

// MaxHP возвращает максимальное HP.
func (c *Creature) MaxHP() int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxHP
}

// SetCurrentHP устанавливает текущее HP с валидацией (clamp 0..maxHP).
func (c *Creature) SetCurrentHP(hp int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentHP = clamp(hp, 0, c.maxHP)
}

// IsAlive проверяет, живо ли существо (HP > 0).
func (c *Creature) IsAlive() bool {
	return c.CurrentHP() > 0
}

// IsInWorld reports whether the creature is on a map.
func (c *Creature) IsInWorld() bool {
	return c.inWorld.Load()
}

// SetInWorld is called by the owning map on join/leave.
func (c *Creature) SetInWorld(v bool) {
	c.inWorld.Store(v)
}

// ApplyDamage снимает HP и возвращает фактически нанесённый урон.
// Урон по мёртвому существу равен 0.
func (c *Creature) ApplyDamage(amount int32, _ data.SchoolMask) int32 {
	if amount <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentHP <= 0 {
		return 0
	}
	dealt := min(amount, c.currentHP)
	c.currentHP -= dealt
	return dealt
}

// ApplyHeal восстанавливает HP и возвращает эффективное лечение (без overheal).
// Мёртвых не лечит.
func (c *Creature) ApplyHeal(amount int32) int32 {
	if amount <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentHP <= 0 {
		return 0
	}
	healed := min(amount, c.maxHP-c.currentHP)
	c.currentHP += healed
	return healed
}

// Power возвращает текущий ресурс (мана/энергия).
func (c *Creature) Power() int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.power
}

// MaxPower возвращает максимальный ресурс.
func (c *Creature) MaxPower() int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxPower
}

// SetPower устанавливает ресурс (clamp 0..maxPower).
func (c *Creature) SetPower(power int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.power = clamp(power, 0, c.maxPower)
}

// SetStat sets a base stat value and notifies the stat listener when it changed.
// Once the creature is on a map it must be called from the map goroutine.
func (c *Creature) SetStat(stat data.Stat, value float64) {
	c.mu.Lock()
	old, ok := c.stats[stat]
	c.stats[stat] = value
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil && (!ok || old != value) {
		fn(c.guid)
	}
}

// SetStatListener sets the callback run after a base stat change. nil clears it.
func (c *Creature) SetStatListener(fn func(guid uint64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// BaseStat returns the stat without aura bonuses.
func (c *Creature) BaseStat(stat data.Stat) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats[stat]
}

// GetStat returns (base + flat bonus) × multiplier bonus.
// StatMaxHealth falls back to the HP pool when no base value is set.
// The bonus provider is not synchronized: call from the map goroutine only.
func (c *Creature) GetStat(stat data.Stat) float64 {
	c.mu.RLock()
	base, ok := c.stats[stat]
	if !ok && stat == data.StatMaxHealth {
		base = float64(c.maxHP)
	}
	bonus := c.bonus
	c.mu.RUnlock()

	if bonus == nil {
		return base
	}
	flat, mul := bonus.StatBonus(stat)
	return (base + flat) * mul
}

// SetStatBonusProvider wires the aura container of the owning map.
func (c *Creature) SetStatBonusProvider(p StatBonusProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bonus = p
}

func clamp(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
