package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/storyfeed/internal/cache"
	"github.com/d60-Lab/storyfeed/internal/repository"
	"github.com/d60-Lab/storyfeed/pkg/logger"
)

// Reaper 定期清理过期 story。读路径本身按 expires_at 过滤,
// reaper 只负责限制过期数据在存储和缓存里的滞留时间。
type Reaper struct {
	storyRepo repository.StoryRepository
	userRepo  repository.UserRepository
	feedCache *cache.FeedCache
	fanout    *FanoutEngine
	interval  time.Duration
	grace     time.Duration
	batchSize int
}

func NewReaper(storyRepo repository.StoryRepository, userRepo repository.UserRepository, feedCache *cache.FeedCache, fanout *FanoutEngine, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Reaper{
		storyRepo: storyRepo,
		userRepo:  userRepo,
		feedCache: feedCache,
		fanout:    fanout,
		interval:  interval,
		grace:     time.Hour,
		batchSize: 500,
	}
}

// Start 启动轮询;返回停止函数。
func (r *Reaper) Start() func(context.Context) error {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if err := r.SweepOnce(ctx); err != nil {
					logger.Warn("reaper sweep failed", zap.Error(err))
				}
				cancel()
			}
		}
	}()
	return func(ctx context.Context) error { close(stop); return nil }
}

// SweepOnce 扫一轮:逐出过期 story 的摘要缓存,对已无存活 story 的
// 发布者撤下 feed 条目,最后物理删除过期超过宽限期的行。
func (r *Reaper) SweepOnce(ctx context.Context) error {
	expired, err := r.storyRepo.FindExpiredLingering(ctx, r.batchSize)
	if err != nil {
		return err
	}

	owners := make(map[string]struct{}, len(expired))
	for _, st := range expired {
		_ = r.feedCache.EvictStory(ctx, st.ID)
		owners[st.OwnerID] = struct{}{}
	}

	for ownerID := range owners {
		remaining, err := r.storyRepo.CountLiveByOwner(ctx, ownerID)
		if err != nil || remaining > 0 {
			continue
		}
		owner, err := r.userRepo.FindByID(ctx, ownerID)
		if err != nil || owner == nil {
			continue
		}
		r.fanout.EnqueueRetract(ownerID, cache.FeedEntry{
			Username:          owner.Username,
			ProfilePictureURL: owner.ProfilePictureURL,
		})
	}

	purged, err := r.storyRepo.PurgeExpired(ctx, r.grace)
	if err != nil {
		return err
	}
	if purged > 0 {
		logger.Info("reaper purged expired stories", zap.Int64("count", purged))
	}
	return nil
}
