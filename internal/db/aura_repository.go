package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/spellcore/internal/game/spell"
)

// AuraRepository сохраняет ауры юнита между сессиями.
// Снимки помечены digest'ом файла заклинаний: после смены данных
// старые снимки не восстанавливаются.
type AuraRepository struct {
	db *pgxpool.Pool
}

// NewAuraRepository создаёт новый AuraRepository.
func NewAuraRepository(db *pgxpool.Pool) *AuraRepository {
	return &AuraRepository{db: db}
}

// Save сохраняет ауры юнита (полная перезапись в одной транзакции).
func (r *AuraRepository) Save(ctx context.Context, unitGUID uint64, digest string, snaps []spell.AuraSnapshot) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("rollback failed", "unit", unitGUID, "error", err)
		}
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM aura_snapshots WHERE unit_guid = $1`, int64(unitGUID)); err != nil {
		return fmt.Errorf("deleting auras of unit %d: %w", unitGUID, err)
	}

	if len(snaps) > 0 {
		rows := make([][]any, 0, len(snaps))
		for i, s := range snaps {
			rows = append(rows, []any{
				int64(unitGUID), int16(i), digest,
				s.SpellID, int64(s.CasterGUID), int64(s.EffectMask),
				s.RemainingMs, s.Stacks, s.Charges,
				s.Amounts, s.Absorbs,
			})
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"aura_snapshots"},
			[]string{"unit_guid", "slot", "store_digest", "spell_id", "caster_guid", "effect_mask",
				"remaining_ms", "stacks", "charges", "amounts", "absorbs"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("inserting auras of unit %d: %w", unitGUID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing auras of unit %d: %w", unitGUID, err)
	}

	slog.Debug("saved unit auras", "unit", unitGUID, "count", len(snaps))
	return nil
}

// Load возвращает снимки юнита в порядке применения.
// Снимки с другим digest пропускаются.
func (r *AuraRepository) Load(ctx context.Context, unitGUID uint64, digest string) ([]spell.AuraSnapshot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT store_digest, spell_id, caster_guid, effect_mask, remaining_ms,
		       stacks, charges, amounts, absorbs
		FROM aura_snapshots
		WHERE unit_guid = $1
		ORDER BY slot
	`, int64(unitGUID))
	if err != nil {
		return nil, fmt.Errorf("querying auras of unit %d: %w", unitGUID, err)
	}
	defer rows.Close()

	var (
		snaps   []spell.AuraSnapshot
		skipped int
	)
	for rows.Next() {
		var (
			s            spell.AuraSnapshot
			rowDigest    string
			caster, mask int64
		)
		if err := rows.Scan(&rowDigest, &s.SpellID, &caster, &mask, &s.RemainingMs,
			&s.Stacks, &s.Charges, &s.Amounts, &s.Absorbs); err != nil {
			return nil, fmt.Errorf("scanning aura row: %w", err)
		}
		if rowDigest != digest {
			skipped++
			continue
		}
		s.CasterGUID = uint64(caster)
		s.EffectMask = uint32(mask)
		snaps = append(snaps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating aura rows: %w", err)
	}

	if skipped > 0 {
		slog.Warn("skipped aura snapshots from other spell data",
			"unit", unitGUID,
			"skipped", skipped)
	}
	return snaps, nil
}

// Delete удаляет все снимки юнита.
func (r *AuraRepository) Delete(ctx context.Context, unitGUID uint64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM aura_snapshots WHERE unit_guid = $1`, int64(unitGUID)); err != nil {
		return fmt.Errorf("deleting auras of unit %d: %w", unitGUID, err)
	}
	return nil
}
