package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// activityFeedLimit caps how many entries a campaign's feed retains.
const activityFeedLimit = 100

// ActivityEntry is one review action recorded in a campaign's feed.
type ActivityEntry struct {
	Actor     string    `json:"actor"`
	Action    string    `json:"action"` // approved | rejected | deleted | edited
	ShardIDs  []string  `json:"shardIds"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ActivityRepository records and replays the recent review activity of a
// campaign.
type ActivityRepository interface {
	Push(ctx context.Context, campaignID string, entry ActivityEntry) error
	Recent(ctx context.Context, campaignID string, limit int) ([]ActivityEntry, error)
	Clear(ctx context.Context, campaignID string) error
}

type redisActivityRepository struct {
	redisClient *redis.Client
}

// NewActivityRepository creates a new ActivityRepository instance.
func NewActivityRepository(redisClient *redis.Client) ActivityRepository {
	return &redisActivityRepository{redisClient: redisClient}
}

func activityKey(campaignID string) string {
	return fmt.Sprintf("activity:%s", campaignID)
}

// Push prepends an entry to the campaign feed and trims it to the cap.
func (r *redisActivityRepository) Push(ctx context.Context, campaignID string, entry ActivityEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal activity entry: %w", err)
	}

	key := activityKey(campaignID)
	pipe := r.redisClient.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, activityFeedLimit-1)
	pipe.Expire(ctx, key, 30*24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// Recent returns the newest entries, most recent first.
func (r *redisActivityRepository) Recent(ctx context.Context, campaignID string, limit int) ([]ActivityEntry, error) {
	if limit <= 0 || limit > activityFeedLimit {
		limit = activityFeedLimit
	}
	raw, err := r.redisClient.LRange(ctx, activityKey(campaignID), 0, int64(limit-1)).Result()
	if err == redis.Nil {
		return []ActivityEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read activity feed: %w", err)
	}

	entries := make([]ActivityEntry, 0, len(raw))
	for _, item := range raw {
		var entry ActivityEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Clear drops the whole feed for a campaign.
func (r *redisActivityRepository) Clear(ctx context.Context, campaignID string) error {
	return r.redisClient.Del(ctx, activityKey(campaignID)).Err()
}
