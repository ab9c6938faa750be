package service

import (
	"context"
	"errors"
	"net/url"

	"github.com/d60-Lab/storyfeed/internal/cache"
	"github.com/d60-Lab/storyfeed/internal/repository"
)

// StoryService story 生命周期:NonExistent -> Live -> {Deleted | Expired}
type StoryService interface {
	CreateStory(ctx context.Context, ownerID, mediaURL string) (*StoryPreview, error)
	DeleteStory(ctx context.Context, storyID, requestingUserID string) error
}

type storyService struct {
	storyRepo   repository.StoryRepository
	userRepo    repository.UserRepository
	feedCache   *cache.FeedCache
	fanout      *FanoutEngine
	maxPerOwner int64
}

func NewStoryService(storyRepo repository.StoryRepository, userRepo repository.UserRepository, feedCache *cache.FeedCache, fanout *FanoutEngine, maxPerOwner int64) StoryService {
	if maxPerOwner <= 0 {
		maxPerOwner = 30
	}
	return &storyService{storyRepo: storyRepo, userRepo: userRepo, feedCache: feedCache, fanout: fanout, maxPerOwner: maxPerOwner}
}

// CreateStory 校验后在存储事务内完成"计数+插入",提交后才入队 fan-out。
// fan-out 不阻塞请求,失败也不回滚创建。
func (s *storyService) CreateStory(ctx context.Context, ownerID, mediaURL string) (*StoryPreview, error) {
	if !validMediaURL(mediaURL) {
		return nil, ErrInvalidMediaURL
	}
	owner, err := s.userRepo.FindByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, ErrUserNotFound
	}

	story, err := s.storyRepo.Create(ctx, ownerID, mediaURL, s.maxPerOwner)
	if err != nil {
		if errors.Is(err, repository.ErrStoryCapExceeded) {
			return nil, ErrStoryLimitReached
		}
		return nil, err
	}

	s.fanout.EnqueuePush(ownerID, cache.FeedEntry{
		Username:          owner.Username,
		ProfilePictureURL: owner.ProfilePictureURL,
	}, story.CreatedAt)

	return &StoryPreview{
		ID:        story.ID,
		MediaURL:  story.MediaURL,
		CreatedAt: story.CreatedAt.UnixMilli(),
		ExpiresAt: story.ExpiresAt.UnixMilli(),
	}, nil
}

// DeleteStory 仅 owner 可删。删除后若 owner 已无存活 story,
// 把它的 feed 条目从所有粉丝缓存中撤下;否则保留(更新的 story 还在背书)。
func (s *storyService) DeleteStory(ctx context.Context, storyID, requestingUserID string) error {
	story, err := s.storyRepo.FindByID(ctx, storyID)
	if err != nil {
		return err
	}
	// Deleted/Expired 均为终态,一律按不存在处理
	if story == nil || !story.Live(timeNow()) {
		return ErrStoryNotFound
	}
	if story.OwnerID != requestingUserID {
		return ErrNotStoryOwner
	}

	if err := s.storyRepo.SoftDelete(ctx, storyID); err != nil {
		return err
	}
	// 删除已落库,此后的缓存清理失败只降级不报错
	_ = s.feedCache.EvictStory(ctx, storyID)

	remaining, err := s.storyRepo.CountLiveByOwner(ctx, story.OwnerID)
	if err != nil || remaining > 0 {
		return nil
	}
	owner, err := s.userRepo.FindByID(ctx, story.OwnerID)
	if err != nil || owner == nil {
		return nil
	}
	s.fanout.EnqueueRetract(story.OwnerID, cache.FeedEntry{
		Username:          owner.Username,
		ProfilePictureURL: owner.ProfilePictureURL,
	})
	return nil
}

func validMediaURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
