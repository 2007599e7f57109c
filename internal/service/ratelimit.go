package service

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/steamrent/rental-server-go/internal/config"
	"github.com/steamrent/rental-server-go/internal/redis"
)

// commandLimitScript implements a sliding-window counter: trim entries older
// than the window, count, and admit with a fresh entry if under the limit.
var commandLimitScript = goredis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

if redis.call('ZCARD', key) >= limit then
    return 0
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('EXPIRE', key, window + 10)
return 1
`)

// CommandRateLimiter throttles buyer chat commands so a spamming buyer cannot
// hammer the allocation path. Fails open: a Redis outage must not lock every
// buyer out of their rentals.
type CommandRateLimiter struct {
	client *redis.Client
}

func NewCommandRateLimiter(client *redis.Client) *CommandRateLimiter {
	return &CommandRateLimiter{client: client}
}

func (rl *CommandRateLimiter) Allow(ctx context.Context, buyerID string) bool {
	result, err := commandLimitScript.Run(
		ctx,
		rl.client,
		[]string{redis.CommandLimitKey(buyerID)},
		time.Now().Unix(),
		int64(config.CommandRateWindow.Seconds()),
		config.CommandRateLimit,
	).Int64()
	if err != nil {
		log.Warn().Err(err).Str("buyer_id", buyerID).Msg("rate limit check failed, allowing")
		return true
	}
	return result == 1
}
