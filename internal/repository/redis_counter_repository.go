package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

// RedisCounterRepository keeps one hash per day plus a sorted index of days.
//
//	<prefix>:day:<YYYY-MM-DD>  hash  sent | opens | clicks
//	<prefix>:days              zset  member=<YYYY-MM-DD> score=<unix seconds of the day>
type RedisCounterRepository struct {
	Client redis.UniversalClient
	Prefix string
}

const (
	fieldSent   = "sent"
	fieldOpens  = "opens"
	fieldClicks = "clicks"
)

func NewRedisCounterRepository(client redis.UniversalClient) *RedisCounterRepository {
	return &RedisCounterRepository{Client: client, Prefix: "campaign:counters"}
}

func (r *RedisCounterRepository) Get(ctx context.Context, day time.Time) (*model.DailyCounter, error) {
	day = model.DayOf(day)
	key := r.dayKey(day)

	var all *redis.MapStringStringCmd
	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, f := range []string{fieldSent, fieldOpens, fieldClicks} {
			pipe.HSetNX(ctx, key, f, 0)
		}
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: float64(day.Unix()), Member: model.DayKey(day)})
		all = pipe.HGetAll(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get counter %s: %w", model.DayKey(day), err)
	}
	return parseCounter(day, all.Val())
}

func (r *RedisCounterRepository) IncrementSent(ctx context.Context, day time.Time) error {
	return r.increment(ctx, day, fieldSent)
}

func (r *RedisCounterRepository) IncrementOpens(ctx context.Context, day time.Time) error {
	return r.increment(ctx, day, fieldOpens)
}

func (r *RedisCounterRepository) IncrementClicks(ctx context.Context, day time.Time) error {
	return r.increment(ctx, day, fieldClicks)
}

func (r *RedisCounterRepository) increment(ctx context.Context, day time.Time, field string) error {
	day = model.DayOf(day)
	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, r.dayKey(day), field, 1)
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: float64(day.Unix()), Member: model.DayKey(day)})
		return nil
	})
	if err != nil {
		return fmt.Errorf("increment %s for %s: %w", field, model.DayKey(day), err)
	}
	return nil
}

func (r *RedisCounterRepository) Recent(ctx context.Context, limit int) ([]model.DailyCounter, error) {
	if limit <= 0 {
		return []model.DailyCounter{}, nil
	}
	days, err := r.Client.ZRevRange(ctx, r.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list counter days: %w", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(days))
	_, err = r.Client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, d := range days {
			cmds[i] = pipe.HGetAll(ctx, r.Prefix+":day:"+d)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list counters: %w", err)
	}

	counters := make([]model.DailyCounter, 0, len(days))
	for i, d := range days {
		day, err := time.Parse(model.DateLayout, d)
		if err != nil {
			return nil, fmt.Errorf("bad counter day %q: %w", d, err)
		}
		c, err := parseCounter(day, cmds[i].Val())
		if err != nil {
			return nil, err
		}
		counters = append(counters, *c)
	}
	return counters, nil
}

func (r *RedisCounterRepository) dayKey(day time.Time) string {
	return r.Prefix + ":day:" + model.DayKey(day)
}

func (r *RedisCounterRepository) indexKey() string {
	return r.Prefix + ":days"
}

// parseCounter treats missing fields as zero.
func parseCounter(day time.Time, fields map[string]string) (*model.DailyCounter, error) {
	c := &model.DailyCounter{Day: model.DayOf(day)}
	targets := map[string]*int64{
		fieldSent:   &c.SentCount,
		fieldOpens:  &c.OpenCount,
		fieldClicks: &c.ClickCount,
	}
	for f, dst := range targets {
		v, ok := fields[f]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad %s value %q for %s: %w", f, v, model.DayKey(day), err)
		}
		*dst = n
	}
	return c, nil
}

var _ CounterRepositoryInterface = (*RedisCounterRepository)(nil)
