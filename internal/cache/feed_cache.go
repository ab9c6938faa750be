package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/storyfeed/internal/model"
	"github.com/d60-Lab/storyfeed/pkg/logger"
)

// emptyFeedMarker marks a feed that was computed and confirmed empty.
// Real members are JSON objects and always start with '{', so the marker
// can never collide with a serialized entry.
const emptyFeedMarker = "feed-empty-marker"

// FeedEntry is one publisher with at least one live story. Identity is the
// username alone; the zset score (epoch millis of the publisher's latest
// story) orders entries independently of identity.
type FeedEntry struct {
	Username          string `json:"username"`
	ProfilePictureURL string `json:"profile_picture_url"`
}

// ScoredEntry pairs an entry with its feed position score.
type ScoredEntry struct {
	Entry FeedEntry
	Score int64
}

type FeedState int

const (
	// FeedMiss 冷缓存,需要回源重算
	FeedMiss FeedState = iota
	// FeedHit 命中,Entries 按 score 倒序
	FeedHit
	// FeedHitEmpty 命中空标记:确认为空,不是冷缓存
	FeedHitEmpty
)

type FeedResult struct {
	State   FeedState
	Entries []ScoredEntry
}

// StorySummary is the single-story cache value.
type StorySummary struct {
	ID        string    `json:"id"`
	MediaURL  string    `json:"media_url"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FeedCache keeps per-user feed zsets and per-story summaries in Redis.
type FeedCache struct {
	rdb     *redis.Client
	feedTTL time.Duration
}

func NewFeedCache(rdb *redis.Client, feedTTL time.Duration) *FeedCache {
	if feedTTL <= 0 {
		feedTTL = model.StoryTTL
	}
	return &FeedCache{rdb: rdb, feedTTL: feedTTL}
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

func feedKey(userID string) string   { return fmt.Sprintf("feed:%s", userID) }
func storyKey(storyID string) string { return fmt.Sprintf("story:%s", storyID) }

// GetFeed returns the cached feed for userID. A missing key is a Miss, the
// empty marker alone is a HitEmpty. Connectivity errors are returned to the
// caller, which must fall back to the source of truth, never to "empty feed".
func (c *FeedCache) GetFeed(ctx context.Context, userID string) (FeedResult, error) {
	vals, err := c.rdb.ZRevRangeWithScores(ctx, feedKey(userID), 0, -1).Result()
	if err != nil {
		return FeedResult{}, err
	}
	if len(vals) == 0 {
		return FeedResult{State: FeedMiss}, nil
	}

	entries := make([]ScoredEntry, 0, len(vals))
	sawMarker := false
	for _, z := range vals {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		if member == emptyFeedMarker {
			sawMarker = true
			continue
		}
		var entry FeedEntry
		if err := json.Unmarshal([]byte(member), &entry); err != nil {
			logger.Warn("feed cache: dropping malformed entry",
				zap.String("user", userID), zap.Error(err))
			continue
		}
		entries = append(entries, ScoredEntry{Entry: entry, Score: int64(z.Score)})
	}
	if len(entries) == 0 {
		if sawMarker {
			return FeedResult{State: FeedHitEmpty}, nil
		}
		return FeedResult{State: FeedMiss}, nil
	}
	return FeedResult{State: FeedHit, Entries: entries}, nil
}

// SetFeed bulk-populates a user's feed. An empty slice writes the empty
// marker instead, so the next read is a confirmed HitEmpty rather than a
// Miss that recomputes again.
func (c *FeedCache) SetFeed(ctx context.Context, userID string, entries []ScoredEntry) error {
	key := feedKey(userID)
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(entries) == 0 {
		pipe.ZAdd(ctx, key, redis.Z{Score: 0, Member: emptyFeedMarker})
	} else {
		zs := make([]redis.Z, 0, len(entries))
		for _, e := range entries {
			payload, err := json.Marshal(e.Entry)
			if err != nil {
				logger.Warn("feed cache: skip unserializable entry",
					zap.String("user", userID), zap.String("publisher", e.Entry.Username), zap.Error(err))
				continue
			}
			zs = append(zs, redis.Z{Score: float64(e.Score), Member: string(payload)})
		}
		if len(zs) == 0 {
			pipe.ZAdd(ctx, key, redis.Z{Score: 0, Member: emptyFeedMarker})
		} else {
			pipe.ZAdd(ctx, key, zs...)
		}
	}
	pipe.Expire(ctx, key, c.feedTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// AddEntryToFollowersFeeds upserts entry into each follower's feed with the
// given score. ZADD replaces the score of an existing member, so a newer
// story from the same publisher re-sorts them to the front instead of
// duplicating. Each follower's update is a single pipeline; failures are
// logged and that follower is skipped.
func (c *FeedCache) AddEntryToFollowersFeeds(ctx context.Context, entry FeedEntry, followerIDs []string, score int64) error {
	if len(followerIDs) == 0 {
		return nil
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		logger.Error("feed cache: serialize entry", zap.String("publisher", entry.Username), zap.Error(err))
		return nil
	}
	for _, fid := range followerIDs {
		key := feedKey(fid)
		pipe := c.rdb.TxPipeline()
		pipe.ZRem(ctx, key, emptyFeedMarker)
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: string(payload)})
		pipe.Expire(ctx, key, c.feedTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Warn("feed cache: fan-out write failed",
				zap.String("follower", fid), zap.String("publisher", entry.Username), zap.Error(err))
		}
	}
	return nil
}

// RemoveEntryFromFollowersFeeds removes the publisher's entry from each
// follower's feed. Deciding whether the publisher still has a live story is
// the caller's job.
func (c *FeedCache) RemoveEntryFromFollowersFeeds(ctx context.Context, entry FeedEntry, followerIDs []string) error {
	if len(followerIDs) == 0 {
		return nil
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		logger.Error("feed cache: serialize entry", zap.String("publisher", entry.Username), zap.Error(err))
		return nil
	}
	for _, fid := range followerIDs {
		if err := c.rdb.ZRem(ctx, feedKey(fid), string(payload)).Err(); err != nil {
			logger.Warn("feed cache: fan-out removal failed",
				zap.String("follower", fid), zap.String("publisher", entry.Username), zap.Error(err))
		}
	}
	return nil
}

// GetStory returns the cached summary, or (nil, nil) when absent.
func (c *FeedCache) GetStory(ctx context.Context, storyID string) (*StorySummary, error) {
	data, err := c.rdb.Get(ctx, storyKey(storyID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s StorySummary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// CacheStory stores the summary with a TTL equal to the story's remaining
// lifetime, capped at the 24h story TTL. Already-expired stories are not
// cached.
func (c *FeedCache) CacheStory(ctx context.Context, s StorySummary) error {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	if ttl > model.StoryTTL {
		ttl = model.StoryTTL
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, storyKey(s.ID), payload, ttl).Err()
}

func (c *FeedCache) EvictStory(ctx context.Context, storyID string) error {
	return c.rdb.Del(ctx, storyKey(storyID)).Err()
}
