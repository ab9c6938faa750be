package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCache(t *testing.T) (*miniredis.Miniredis, *FeedCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewFeedCache(rdb, 24*time.Hour)
}

func TestGetFeedColdCacheIsMiss(t *testing.T) {
	_, fc := setupCache(t)
	res, err := fc.GetFeed(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, FeedMiss, res.State)
}

func TestSetFeedEmptyWritesMarker(t *testing.T) {
	_, fc := setupCache(t)
	ctx := context.Background()

	require.NoError(t, fc.SetFeed(ctx, "u1", nil))

	res, err := fc.GetFeed(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, FeedHitEmpty, res.State, "confirmed-empty must be distinguishable from cold cache")
	assert.Empty(t, res.Entries)
}

func TestSetFeedThenGetOrdersByScoreDesc(t *testing.T) {
	_, fc := setupCache(t)
	ctx := context.Background()

	entries := []ScoredEntry{
		{Entry: FeedEntry{Username: "bob"}, Score: 100},
		{Entry: FeedEntry{Username: "carol"}, Score: 300},
		{Entry: FeedEntry{Username: "alice"}, Score: 200},
	}
	require.NoError(t, fc.SetFeed(ctx, "u1", entries))

	res, err := fc.GetFeed(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, FeedHit, res.State)
	require.Len(t, res.Entries, 3)
	assert.Equal(t, "carol", res.Entries[0].Entry.Username)
	assert.Equal(t, "alice", res.Entries[1].Entry.Username)
	assert.Equal(t, "bob", res.Entries[2].Entry.Username)
}

func TestAddEntryUpsertsAndRescores(t *testing.T) {
	_, fc := setupCache(t)
	ctx := context.Background()
	followers := []string{"f1", "f2"}

	require.NoError(t, fc.AddEntryToFollowersFeeds(ctx, FeedEntry{Username: "bob"}, followers, 100))
	require.NoError(t, fc.AddEntryToFollowersFeeds(ctx, FeedEntry{Username: "carol"}, followers, 200))
	// bob posts again: same identity, new score, must re-sort to the front
	require.NoError(t, fc.AddEntryToFollowersFeeds(ctx, FeedEntry{Username: "bob"}, followers, 300))

	for _, f := range followers {
		res, err := fc.GetFeed(ctx, f)
		require.NoError(t, err)
		require.Equal(t, FeedHit, res.State)
		require.Len(t, res.Entries, 2, "one entry per publisher regardless of story count")
		assert.Equal(t, "bob", res.Entries[0].Entry.Username)
		assert.Equal(t, "carol", res.Entries[1].Entry.Username)
	}
}

func TestAddEntryClearsEmptyMarker(t *testing.T) {
	_, fc := setupCache(t)
	ctx := context.Background()

	require.NoError(t, fc.SetFeed(ctx, "f1", nil))
	require.NoError(t, fc.AddEntryToFollowersFeeds(ctx, FeedEntry{Username: "bob"}, []string{"f1"}, 100))

	res, err := fc.GetFeed(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, FeedHit, res.State)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "bob", res.Entries[0].Entry.Username)
}

func TestAddEntryNoFollowersIsNoop(t *testing.T) {
	_, fc := setupCache(t)
	require.NoError(t, fc.AddEntryToFollowersFeeds(context.Background(), FeedEntry{Username: "bob"}, nil, 100))
}

func TestRemoveEntryFromFollowersFeeds(t *testing.T) {
	_, fc := setupCache(t)
	ctx := context.Background()
	followers := []string{"f1", "f2"}

	require.NoError(t, fc.AddEntryToFollowersFeeds(ctx, FeedEntry{Username: "bob"}, followers, 100))
	require.NoError(t, fc.AddEntryToFollowersFeeds(ctx, FeedEntry{Username: "carol"}, followers, 200))
	require.NoError(t, fc.RemoveEntryFromFollowersFeeds(ctx, FeedEntry{Username: "bob"}, followers))

	for _, f := range followers {
		res, err := fc.GetFeed(ctx, f)
		require.NoError(t, err)
		require.Equal(t, FeedHit, res.State)
		require.Len(t, res.Entries, 1)
		assert.Equal(t, "carol", res.Entries[0].Entry.Username)
	}
}

func TestFeedKeyExpires(t *testing.T) {
	mr, fc := setupCache(t)
	ctx := context.Background()

	require.NoError(t, fc.SetFeed(ctx, "u1", []ScoredEntry{{Entry: FeedEntry{Username: "bob"}, Score: 1}}))
	mr.FastForward(25 * time.Hour)

	res, err := fc.GetFeed(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, FeedMiss, res.State)
}

func TestStoryCacheRoundTrip(t *testing.T) {
	_, fc := setupCache(t)
	ctx := context.Background()
	now := time.Now()

	s := StorySummary{ID: "s1", MediaURL: "https://cdn.example.com/s1.jpg", CreatedAt: now, ExpiresAt: now.Add(12 * time.Hour)}
	require.NoError(t, fc.CacheStory(ctx, s))

	got, err := fc.GetStory(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "s1", got.ID)
	assert.Equal(t, s.MediaURL, got.MediaURL)

	require.NoError(t, fc.EvictStory(ctx, "s1"))
	got, err = fc.GetStory(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStoryCacheTTLFollowsRemainingLifetime(t *testing.T) {
	mr, fc := setupCache(t)
	ctx := context.Background()
	now := time.Now()

	s := StorySummary{ID: "s1", MediaURL: "https://cdn.example.com/s1.jpg", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, fc.CacheStory(ctx, s))

	mr.FastForward(2 * time.Hour)
	got, err := fc.GetStory(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheStorySkipsAlreadyExpired(t *testing.T) {
	_, fc := setupCache(t)
	ctx := context.Background()
	now := time.Now()

	s := StorySummary{ID: "s1", MediaURL: "https://cdn.example.com/s1.jpg", CreatedAt: now.Add(-25 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	require.NoError(t, fc.CacheStory(ctx, s))

	got, err := fc.GetStory(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetFeedUnavailableCacheReturnsError(t *testing.T) {
	mr, fc := setupCache(t)
	mr.Close()

	_, err := fc.GetFeed(context.Background(), "u1")
	assert.Error(t, err, "cache outage must surface as an error, never as an empty feed")
}
