package combatlog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord() Record {
	return Record{
		ID:         uuid.MustParse("0b8f3c9e-6a63-4a39-9d0c-5f1b2a7e4d11"),
		MapID:      1,
		TimeMs:     3000,
		Kind:       KindDamage,
		CasterGUID: 10,
		TargetGUID: 20,
		SpellID:    100,
		Amount:     132,
		Absorbed:   8,
		Hit:        "critical|absorb",
		Depth:      0,
	}
}

func TestRedisWriter_Write(t *testing.T) {
	client, mock := redismock.NewClientMock()
	w := NewRedisWriter(client, "combat_log", 10000)

	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "combat_log",
		MaxLen: 10000,
		Approx: true,
		Values: []any{
			"id", "0b8f3c9e-6a63-4a39-9d0c-5f1b2a7e4d11",
			"map", "1",
			"t", "3000",
			"kind", "damage",
			"caster", "10",
			"target", "20",
			"spell", "100",
			"amount", "132",
			"absorbed", "8",
			"hit", "critical|absorb",
			"depth", "0",
			"detail", "",
		},
	}).SetVal("1-0")

	err := w.Write(context.Background(), []Record{testRecord()})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisWriter_WriteError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	w := NewRedisWriter(client, "combat_log", 0)

	rec := testRecord()
	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "combat_log",
		Values: streamValues(rec),
	}).SetErr(errors.New("connection refused"))

	err := w.Write(context.Background(), []Record{rec})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisWriter_WriteBatchPipelined(t *testing.T) {
	client, mock := redismock.NewClientMock()
	w := NewRedisWriter(client, "combat_log", 0)

	batch := make([]Record, 3)
	for i := range batch {
		batch[i] = testRecord()
		batch[i].ID = uuid.New()
		batch[i].TimeMs = int64(1000 * (i + 1))
		mock.ExpectXAdd(&redis.XAddArgs{
			Stream: "combat_log",
			Values: streamValues(batch[i]),
		}).SetVal(fmt.Sprintf("%d-0", i+1))
	}

	require.NoError(t, w.Write(context.Background(), batch))
	assert.NoError(t, mock.ExpectationsWereMet())

	// empty batches never reach redis
	require.NoError(t, w.Write(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
