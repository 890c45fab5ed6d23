package service

import (
	"context"
	"fmt"
	"time"

	"lighttavern/backend/internal/llm"
	"lighttavern/backend/pkg/logger"
	"lighttavern/backend/shared/redis"
)

// UsageRecorder accumulates per-user daily token counters in redis. It is
// best effort: a recording failure is logged, never surfaced to the turn.
type UsageRecorder struct {
	redis *redis.Client
	ttl   time.Duration
	log   *logger.Logger
}

func NewUsageRecorder(client *redis.Client, ttl time.Duration, log *logger.Logger) *UsageRecorder {
	return &UsageRecorder{redis: client, ttl: ttl, log: log}
}

// Record adds one turn's token totals to the user's counters for today.
func (r *UsageRecorder) Record(ctx context.Context, userID uint, model string, usage *llm.UsageTotals) {
	if r == nil || r.redis == nil || usage == nil {
		return
	}

	day := time.Now().UTC().Format("2006-01-02")
	counters := map[string]int64{
		fmt.Sprintf("usage:%d:%s:prompt", userID, day):     int64(usage.PromptTokens),
		fmt.Sprintf("usage:%d:%s:completion", userID, day): int64(usage.CompletionTokens),
		fmt.Sprintf("usage:%d:%s:total", userID, day):      int64(usage.TotalTokens),
	}

	for key, delta := range counters {
		if delta == 0 {
			continue
		}
		if _, err := r.redis.IncrBy(ctx, key, delta, r.ttl); err != nil {
			r.log.Warn("usage counter update failed",
				"key", key,
				"model", model,
				"error", err.Error(),
			)
			return
		}
	}
}
