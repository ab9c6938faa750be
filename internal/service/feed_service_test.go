package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedOneEntryPerPublisher(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	e.addUser(t, "a", "alice")
	e.addUser(t, "b", "bob")
	e.follow(t, "b", "a")

	e.post(t, "a", "https://cdn.example.com/1.jpg")
	e.post(t, "a", "https://cdn.example.com/2.jpg")
	e.post(t, "a", "https://cdn.example.com/3.jpg")

	entries, err := e.feedSvc.GetFeed(ctx, "b")
	require.NoError(t, err)
	require.Len(t, entries, 1, "a publisher appears once no matter how many stories they posted")
	assert.Equal(t, "alice", entries[0].Username)
	assert.Equal(t, "https://cdn.example.com/a.jpg", entries[0].ProfilePictureURL)
}

func TestFeedIdempotentReads(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	e.addUser(t, "a", "alice")
	e.addUser(t, "b", "bob")
	e.addUser(t, "f", "frank")
	e.follow(t, "f", "a")
	e.follow(t, "f", "b")

	e.post(t, "a", "https://cdn.example.com/1.jpg")
	e.post(t, "b", "https://cdn.example.com/2.jpg")

	first, err := e.feedSvc.GetFeed(ctx, "f")
	require.NoError(t, err)
	calls := e.storyRepo.feedCandidateCalls.Load()

	second, err := e.feedSvc.GetFeed(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, usernames(first), usernames(second))
	assert.Equal(t, calls, e.storyRepo.feedCandidateCalls.Load(), "second read must come from cache")
}

func TestFeedEmptyConfirmation(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	e.addUser(t, "b", "bob")

	entries, err := e.feedSvc.GetFeed(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, entries)
	followeeCalls := e.followRepo.followeeIDCalls.Load()
	assert.Greater(t, followeeCalls, int64(0))

	// 第二次读命中空标记,不再回源
	entries, err = e.feedSvc.GetFeed(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, followeeCalls, e.followRepo.followeeIDCalls.Load(), "confirmed-empty feed must not re-query the store")
}

func TestFeedOrderingMostRecentFirst(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	e.addUser(t, "b", "bob")
	e.addUser(t, "c", "carol")
	e.addUser(t, "f", "frank")
	e.follow(t, "f", "b")
	e.follow(t, "f", "c")

	e.post(t, "b", "https://cdn.example.com/b1.jpg")
	e.post(t, "c", "https://cdn.example.com/c1.jpg")

	entries, err := e.feedSvc.GetFeed(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, []string{"carol", "bob"}, usernames(entries))
}

func TestFeedRepostResortsToFront(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	e.addUser(t, "b", "bob")
	e.addUser(t, "c", "carol")
	e.addUser(t, "f", "frank")
	e.follow(t, "f", "b")
	e.follow(t, "f", "c")

	e.post(t, "b", "https://cdn.example.com/b1.jpg")
	e.post(t, "c", "https://cdn.example.com/c1.jpg")
	e.post(t, "b", "https://cdn.example.com/b2.jpg")

	entries, err := e.feedSvc.GetFeed(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, usernames(entries), "second post re-sorts bob to the front, still one entry")
}

func TestFeedColdCacheRecomputesFromStore(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	e.addUser(t, "b", "bob")
	e.addUser(t, "f", "frank")
	e.follow(t, "f", "b")

	e.post(t, "b", "https://cdn.example.com/b1.jpg")
	e.mr.FlushAll()

	entries, err := e.feedSvc.GetFeed(ctx, "f")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bob", entries[0].Username)

	// 回填之后命中缓存
	calls := e.storyRepo.feedCandidateCalls.Load()
	_, err = e.feedSvc.GetFeed(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, calls, e.storyRepo.feedCandidateCalls.Load())
}

func TestFeedCacheOutageFallsBackToStore(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	e.addUser(t, "b", "bob")
	e.addUser(t, "f", "frank")
	e.follow(t, "f", "b")
	e.post(t, "b", "https://cdn.example.com/b1.jpg")

	e.mr.Close()

	entries, err := e.feedSvc.GetFeed(ctx, "f")
	require.NoError(t, err, "cache outage must degrade to a source-of-truth read")
	require.Len(t, entries, 1)
	assert.Equal(t, "bob", entries[0].Username)
}

func TestGetStoriesOf(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	e.addUser(t, "a", "alice")

	e.post(t, "a", "https://cdn.example.com/1.jpg")
	e.post(t, "a", "https://cdn.example.com/2.jpg")

	previews, err := e.feedSvc.GetStoriesOf(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, previews, 2)
	// created_at 倒序
	assert.Equal(t, "https://cdn.example.com/2.jpg", previews[0].MediaURL)

	_, err = e.feedSvc.GetStoriesOf(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGetStoryCacheAside(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	e.addUser(t, "a", "alice")
	p := e.post(t, "a", "https://cdn.example.com/1.jpg")

	got, err := e.feedSvc.GetStory(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.MediaURL, got.MediaURL)

	// 回填后直接从摘要缓存取
	summary, err := e.feedCache.GetStory(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, p.ID, summary.ID)

	_, err = e.feedSvc.GetStory(ctx, "missing")
	assert.ErrorIs(t, err, ErrStoryNotFound)
}
