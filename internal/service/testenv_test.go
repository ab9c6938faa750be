package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/d60-Lab/storyfeed/internal/cache"
	"github.com/d60-Lab/storyfeed/internal/model"
	"github.com/d60-Lab/storyfeed/internal/repository"
)

// countingStoryRepo 包装真实 repo,统计回源查询次数
type countingStoryRepo struct {
	repository.StoryRepository
	feedCandidateCalls atomic.Int64
}

func (r *countingStoryRepo) FindFeedCandidates(ctx context.Context, followeeIDs []string) ([]model.Story, error) {
	r.feedCandidateCalls.Add(1)
	return r.StoryRepository.FindFeedCandidates(ctx, followeeIDs)
}

type countingFollowRepo struct {
	repository.FollowRepository
	followeeIDCalls atomic.Int64
}

func (r *countingFollowRepo) FolloweeIDs(ctx context.Context, userID string, offset, limit int) ([]string, error) {
	r.followeeIDCalls.Add(1)
	return r.FollowRepository.FolloweeIDs(ctx, userID, offset, limit)
}

type env struct {
	db         *gorm.DB
	mr         *miniredis.Miniredis
	feedCache  *cache.FeedCache
	storyRepo  *countingStoryRepo
	followRepo *countingFollowRepo
	userRepo   repository.UserRepository
	fanout     *FanoutEngine
	storySvc   StoryService
	feedSvc    FeedService
	relSvc     RelationshipService
}

func setupEnv(t *testing.T) *env {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Follow{}, &model.Story{}))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	fc := cache.NewFeedCache(rdb, 24*time.Hour)

	storyRepo := &countingStoryRepo{StoryRepository: repository.NewStoryRepository(db)}
	followRepo := &countingFollowRepo{FollowRepository: repository.NewFollowRepository(db)}
	userRepo := repository.NewUserRepository(db)

	// fanout 不启动 worker,测试里用 drainFanout 同步消费,保证确定性
	fanout := NewFanoutEngine(followRepo, fc, 1000, 100)

	return &env{
		db:         db,
		mr:         mr,
		feedCache:  fc,
		storyRepo:  storyRepo,
		followRepo: followRepo,
		userRepo:   userRepo,
		fanout:     fanout,
		storySvc:   NewStoryService(storyRepo, userRepo, fc, fanout, 30),
		feedSvc:    NewFeedService(storyRepo, followRepo, userRepo, fc, 100),
		relSvc:     NewRelationshipService(followRepo),
	}
}

// drainFanout 同步处理积压的 fan-out 任务
func (e *env) drainFanout() {
	for {
		select {
		case job := <-e.fanout.ch:
			e.fanout.process(context.Background(), job)
		default:
			return
		}
	}
}

func (e *env) addUser(t *testing.T, id, username string) {
	t.Helper()
	u := model.User{ID: id, Username: username, ProfilePictureURL: "https://cdn.example.com/" + id + ".jpg"}
	require.NoError(t, e.db.Create(&u).Error)
}

func (e *env) follow(t *testing.T, from, to string) {
	t.Helper()
	require.NoError(t, e.relSvc.Follow(context.Background(), from, to))
}

// post 创建 story 并同步完成 fan-out;story 时间戳需要毫秒级区分,
// 连续创建之间加一点间隔
func (e *env) post(t *testing.T, ownerID, mediaURL string) *StoryPreview {
	t.Helper()
	time.Sleep(3 * time.Millisecond)
	p, err := e.storySvc.CreateStory(context.Background(), ownerID, mediaURL)
	require.NoError(t, err)
	e.drainFanout()
	return p
}

func usernames(entries []cache.FeedEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Username
	}
	return out
}
