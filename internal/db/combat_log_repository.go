package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/spellcore/internal/combatlog"
)

var combatLogColumns = []string{
	"id", "map_id", "time_ms", "at", "kind",
	"caster_guid", "target_guid", "spell_id",
	"amount", "absorbed", "hit", "depth", "detail",
}

// CombatLogRepository пишет записи боевого лога в таблицу combat_log.
// Реализует combatlog.Writer.
type CombatLogRepository struct {
	db *pgxpool.Pool
}

// NewCombatLogRepository создаёт новый CombatLogRepository.
func NewCombatLogRepository(db *pgxpool.Pool) *CombatLogRepository {
	return &CombatLogRepository{db: db}
}

// Write вставляет batch одним COPY.
func (r *CombatLogRepository) Write(ctx context.Context, batch []combatlog.Record) error {
	if len(batch) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(batch))
	for _, rec := range batch {
		rows = append(rows, []any{
			rec.ID, rec.MapID, rec.TimeMs, rec.At, string(rec.Kind),
			int64(rec.CasterGUID), int64(rec.TargetGUID), rec.SpellID,
			rec.Amount, rec.Absorbed, rec.Hit, int16(rec.Depth), rec.Detail,
		})
	}

	if _, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"combat_log"},
		combatLogColumns,
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copying %d combat log records: %w", len(batch), err)
	}
	return nil
}

// CountByKind возвращает число записей карты заданного типа.
func (r *CombatLogRepository) CountByKind(ctx context.Context, mapID int32, kind combatlog.Kind) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM combat_log WHERE map_id = $1 AND kind = $2`,
		mapID, string(kind),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting %s records of map %d: %w", kind, mapID, err)
	}
	return n, nil
}

// TotalDamageTaken суммирует нанесённый урон (прямой и периодический) по цели.
func (r *CombatLogRepository) TotalDamageTaken(ctx context.Context, targetGUID uint64) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM combat_log
		 WHERE target_guid = $1 AND kind IN ('damage', 'tick')`,
		int64(targetGUID),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing damage taken by %d: %w", targetGUID, err)
	}
	return total, nil
}
