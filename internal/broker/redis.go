package broker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"tgcast/pkg/logx"
)

const delayedKey = "tgcast:dispatch:delayed"

type RedisConfig struct {
	URL          string
	DB           int
	PollInterval time.Duration // default 500ms
}

// RedisQueue stores deferred dispatches in a sorted set scored by the unix
// millisecond at which they become due. Claiming is ZRem-based: whoever
// removes the member runs it, so broker redelivery and multiple pollers stay
// safe.
type RedisQueue struct {
	rc   *redis.Client
	log  logx.Logger
	poll time.Duration
}

// DialRedis connects and pings with a short deadline.
func DialRedis(cfg RedisConfig, log logx.Logger) (*RedisQueue, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.DB != 0 {
		opt.DB = cfg.DB
	}
	rc := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &RedisQueue{rc: rc, log: log, poll: poll}, nil
}

func (q *RedisQueue) Close() error { return q.rc.Close() }

func (q *RedisQueue) Enqueue(ctx context.Context, taskID string, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	readyAt := time.Now().Add(delay).UnixMilli()
	err := q.rc.ZAdd(ctx, delayedKey, redis.Z{Score: float64(readyAt), Member: taskID}).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	q.log.Debug("job enqueued", logx.String("task", taskID), logx.Duration("delay", delay))
	return nil
}

func (q *RedisQueue) Run(ctx context.Context, h Handler) {
	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.drainDue(ctx, h)
		}
	}
}

func (q *RedisQueue) drainDue(ctx context.Context, h Handler) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ids, err := q.rc.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: 100,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			q.log.Warn("delayed queue poll failed", logx.Err(err))
		}
		return
	}
	for _, id := range ids {
		// Claim by removal; a zero count means another poller won.
		n, err := q.rc.ZRem(ctx, delayedKey, id).Result()
		if err != nil || n == 0 {
			continue
		}
		go h(ctx, id)
	}
}
