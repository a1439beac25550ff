package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRankingWarmup preloads rankings, team lists and KPIs into the analytics cache.
	TaskRankingWarmup = "salesdash:ranking_warmup"
	// TaskCacheInvalidate bumps the analytics cache version.
	TaskCacheInvalidate = "salesdash:cache_invalidate"
)

// RankingWarmupPayload selects what the warmup loads. Empty presets warm
// every named preset.
type RankingWarmupPayload struct {
	Presets     []string `json:"presets,omitempty"`
	TopBranches int      `json:"top_branches"`
}

// CacheInvalidatePayload records why the cache is being invalidated.
type CacheInvalidatePayload struct {
	Reason string `json:"reason"`
}

// NewRankingWarmupTask builds the warmup task.
func NewRankingWarmupTask(presets []string, topBranches int) (*asynq.Task, error) {
	data, err := json.Marshal(RankingWarmupPayload{Presets: presets, TopBranches: topBranches})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRankingWarmup, data), nil
}

// NewCacheInvalidateTask builds the invalidation task.
func NewCacheInvalidateTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(CacheInvalidatePayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCacheInvalidate, data), nil
}
