package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type repo struct {
	rc             *redis.Client
	maxScoreScript string
	peakScript     string
	expireDuration time.Duration
	logger         *slog.Logger
}

func NewRepo(rc *redis.Client, expireDuration time.Duration, logger *slog.Logger) *repo {
	return &repo{
		rc: rc,
		maxScoreScript: rc.ScriptLoad(context.Background(), `
			local maxScore = redis.call('ZREVRANGE', KEYS[1], 0, 0, 'WITHSCORES')
			local nextScore = 1
			if #maxScore > 0 then
				nextScore = tonumber(maxScore[2]) + 1
			end
			redis.call('ZADD', KEYS[1], nextScore, ARGV[1])
			return nextScore
		`).Val(),
		peakScript: rc.ScriptLoad(context.Background(), `
			local current = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
			local candidate = tonumber(ARGV[2])
			if candidate > current then
				redis.call('HSET', KEYS[1], ARGV[1], candidate)
				return candidate
			end
			return current
		`).Val(),
		expireDuration: expireDuration,
		logger:         logger,
	}
}
