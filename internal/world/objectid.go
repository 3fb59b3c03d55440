package world

import "sync/atomic"

// GUIDGenerator выдаёт уникальные GUID юнитам, у которых он не задан явно.
//
// Диапазоны (соглашение):
//
//	0x00000000 - 0x0FFFFFFF: явные GUID из сценариев и БД
//	0x10000000 - 0x1FFFFFFF: игроки
//	0x20000000 - 0x2FFFFFFF: NPC
type GUIDGenerator struct {
	nextPlayer atomic.Uint64
	nextNpc    atomic.Uint64
}

// Начала диапазонов.
const (
	PlayerGUIDBase uint64 = 0x10000000
	NpcGUIDBase    uint64 = 0x20000000
)

// NewGUIDGenerator creates a generator starting at the range bases.
func NewGUIDGenerator() *GUIDGenerator {
	g := &GUIDGenerator{}
	g.nextPlayer.Store(PlayerGUIDBase)
	g.nextNpc.Store(NpcGUIDBase)
	return g
}

// NextPlayer returns the next player GUID. Thread-safe.
func (g *GUIDGenerator) NextPlayer() uint64 {
	return g.nextPlayer.Add(1)
}

// NextNpc returns the next NPC GUID. Thread-safe.
func (g *GUIDGenerator) NextNpc() uint64 {
	return g.nextNpc.Add(1)
}

// IsPlayerGUID reports whether guid belongs to the player range.
func IsPlayerGUID(guid uint64) bool {
	return guid > PlayerGUIDBase && guid < NpcGUIDBase
}
