package combatlog

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisWriter appends records to a Redis stream (XADD, approximate MAXLEN trim).
type RedisWriter struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewRedisWriter creates a writer for the given stream. maxLen <= 0 disables trimming.
func NewRedisWriter(client redis.Cmdable, stream string, maxLen int64) *RedisWriter {
	return &RedisWriter{client: client, stream: stream, maxLen: maxLen}
}

// Write appends every record of batch in order, in one pipelined round trip.
func (w *RedisWriter) Write(ctx context.Context, batch []Record) error {
	if len(batch) == 0 {
		return nil
	}
	_, err := w.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, rec := range batch {
			pipe.XAdd(ctx, w.xaddArgs(rec))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("xadd %d records to %s: %w", len(batch), w.stream, err)
	}
	return nil
}

func (w *RedisWriter) xaddArgs(rec Record) *redis.XAddArgs {
	args := &redis.XAddArgs{
		Stream: w.stream,
		Values: streamValues(rec),
	}
	if w.maxLen > 0 {
		args.MaxLen = w.maxLen
		args.Approx = true
	}
	return args
}

// streamValues flattens a record into ordered field/value pairs.
func streamValues(rec Record) []any {
	return []any{
		"id", rec.ID.String(),
		"map", strconv.FormatInt(int64(rec.MapID), 10),
		"t", strconv.FormatInt(rec.TimeMs, 10),
		"kind", string(rec.Kind),
		"caster", strconv.FormatUint(rec.CasterGUID, 10),
		"target", strconv.FormatUint(rec.TargetGUID, 10),
		"spell", strconv.FormatInt(int64(rec.SpellID), 10),
		"amount", strconv.FormatInt(int64(rec.Amount), 10),
		"absorbed", strconv.FormatInt(int64(rec.Absorbed), 10),
		"hit", rec.Hit,
		"depth", strconv.Itoa(rec.Depth),
		"detail", rec.Detail,
	}
}
