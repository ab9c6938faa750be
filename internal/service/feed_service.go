package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/d60-Lab/storyfeed/internal/cache"
	"github.com/d60-Lab/storyfeed/internal/model"
	"github.com/d60-Lab/storyfeed/internal/repository"
	"github.com/d60-Lab/storyfeed/pkg/logger"
)

// StoryPreview 单个 story 的展示数据
type StoryPreview struct {
	ID        string `json:"id"`
	MediaURL  string `json:"media_url"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// FeedService 负责 feed 读路径:缓存优先,miss 回源重算并回填
type FeedService interface {
	GetFeed(ctx context.Context, userID string) ([]cache.FeedEntry, error)
	GetStoriesOf(ctx context.Context, username string) ([]StoryPreview, error)
	GetStory(ctx context.Context, storyID string) (*StoryPreview, error)
}

type feedService struct {
	storyRepo  repository.StoryRepository
	followRepo repository.FollowRepository
	userRepo   repository.UserRepository
	feedCache  *cache.FeedCache
	pageSize   int
}

func NewFeedService(storyRepo repository.StoryRepository, followRepo repository.FollowRepository, userRepo repository.UserRepository, feedCache *cache.FeedCache, pageSize int) FeedService {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &feedService{storyRepo: storyRepo, followRepo: followRepo, userRepo: userRepo, feedCache: feedCache, pageSize: pageSize}
}

// GetFeed 先查缓存;Hit 直接返回,HitEmpty 返回空;Miss 或缓存不可用时回源,
// 回填后返回。缓存故障绝不当成"空 feed",只是降级为一次回源。
func (s *feedService) GetFeed(ctx context.Context, userID string) ([]cache.FeedEntry, error) {
	res, err := s.feedCache.GetFeed(ctx, userID)
	if err != nil {
		logger.Warn("feed cache unavailable, falling back to store", zap.String("user", userID), zap.Error(err))
		res = cache.FeedResult{State: cache.FeedMiss}
	}
	switch res.State {
	case cache.FeedHit:
		entries := make([]cache.FeedEntry, len(res.Entries))
		for i, e := range res.Entries {
			entries[i] = e.Entry
		}
		return entries, nil
	case cache.FeedHitEmpty:
		return []cache.FeedEntry{}, nil
	}
	return s.computeAndPopulate(ctx, userID)
}

// computeAndPopulate 回源:followee 的存活 story 按时间倒序,压缩成
// "每个发布者一条"(取其最新 story 的时间作为 score),再写回缓存。
func (s *feedService) computeAndPopulate(ctx context.Context, userID string) ([]cache.FeedEntry, error) {
	var followeeIDs []string
	offset := 0
	for {
		page, err := s.followRepo.FolloweeIDs(ctx, userID, offset, s.pageSize)
		if err != nil {
			return nil, err
		}
		followeeIDs = append(followeeIDs, page...)
		if len(page) < s.pageSize {
			break
		}
		offset += s.pageSize
	}

	candidates, err := s.storyRepo.FindFeedCandidates(ctx, followeeIDs)
	if err != nil {
		return nil, err
	}

	// candidates 已按 created_at 倒序(同刻按 id 稳定排序),
	// 首次出现的就是该发布者最新的 story
	seen := make(map[string]struct{}, len(candidates))
	publisherIDs := make([]string, 0, len(candidates))
	latest := make(map[string]model.Story, len(candidates))
	for _, st := range candidates {
		if _, ok := seen[st.OwnerID]; ok {
			continue
		}
		seen[st.OwnerID] = struct{}{}
		publisherIDs = append(publisherIDs, st.OwnerID)
		latest[st.OwnerID] = st
	}

	users, err := s.userRepo.FindByIDs(ctx, publisherIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	scored := make([]cache.ScoredEntry, 0, len(publisherIDs))
	entries := make([]cache.FeedEntry, 0, len(publisherIDs))
	for _, pid := range publisherIDs {
		u, ok := byID[pid]
		if !ok {
			continue
		}
		entry := cache.FeedEntry{Username: u.Username, ProfilePictureURL: u.ProfilePictureURL}
		scored = append(scored, cache.ScoredEntry{Entry: entry, Score: latest[pid].CreatedAt.UnixMilli()})
		entries = append(entries, entry)
	}

	// 空结果写空标记,避免下一次读继续 miss
	if err := s.feedCache.SetFeed(ctx, userID, scored); err != nil {
		logger.Warn("feed cache populate failed", zap.String("user", userID), zap.Error(err))
	}
	return entries, nil
}

func (s *feedService) GetStoriesOf(ctx context.Context, username string) ([]StoryPreview, error) {
	u, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	stories, err := s.storyRepo.FindLiveByOwner(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	previews := make([]StoryPreview, len(stories))
	for i, st := range stories {
		previews[i] = StoryPreview{
			ID:        st.ID,
			MediaURL:  st.MediaURL,
			CreatedAt: st.CreatedAt.UnixMilli(),
			ExpiresAt: st.ExpiresAt.UnixMilli(),
		}
	}
	return previews, nil
}

// GetStory 单条查询,story 摘要缓存走 cache-aside
func (s *feedService) GetStory(ctx context.Context, storyID string) (*StoryPreview, error) {
	if summary, err := s.feedCache.GetStory(ctx, storyID); err != nil {
		logger.Warn("story cache unavailable", zap.String("story", storyID), zap.Error(err))
	} else if summary != nil {
		return &StoryPreview{
			ID:        summary.ID,
			MediaURL:  summary.MediaURL,
			CreatedAt: summary.CreatedAt.UnixMilli(),
			ExpiresAt: summary.ExpiresAt.UnixMilli(),
		}, nil
	}

	st, err := s.storyRepo.FindByID(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if st == nil || !st.Live(timeNow()) {
		return nil, ErrStoryNotFound
	}
	if err := s.feedCache.CacheStory(ctx, cache.StorySummary{
		ID:        st.ID,
		MediaURL:  st.MediaURL,
		CreatedAt: st.CreatedAt,
		ExpiresAt: st.ExpiresAt,
	}); err != nil {
		logger.Warn("story cache populate failed", zap.String("story", storyID), zap.Error(err))
	}
	return &StoryPreview{
		ID:        st.ID,
		MediaURL:  st.MediaURL,
		CreatedAt: st.CreatedAt.UnixMilli(),
		ExpiresAt: st.ExpiresAt.UnixMilli(),
	}, nil
}
