package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/storyfeed/internal/model"
)

// ErrStoryCapExceeded 同一作者的存活 story 数超过上限
var ErrStoryCapExceeded = errors.New("live story cap exceeded for owner")

type StoryRepository interface {
	// Create 在单个事务内完成"计数+插入",防止并发创建冲破上限
	Create(ctx context.Context, ownerID, mediaURL string, maxLive int64) (*model.Story, error)
	FindByID(ctx context.Context, id string) (*model.Story, error)
	FindLiveByOwner(ctx context.Context, ownerID string) ([]model.Story, error)
	CountLiveByOwner(ctx context.Context, ownerID string) (int64, error)
	// FindFeedCandidates 返回 followeeIDs 的存活 story,created_at 倒序,同刻按 id 保证稳定顺序
	FindFeedCandidates(ctx context.Context, followeeIDs []string) ([]model.Story, error)
	SoftDelete(ctx context.Context, id string) error
	// FindExpiredLingering 返回已过期但仍未被清理的 story
	FindExpiredLingering(ctx context.Context, limit int) ([]model.Story, error)
	// PurgeExpired 物理删除过期超过宽限期的 story,返回删除行数
	PurgeExpired(ctx context.Context, grace time.Duration) (int64, error)
}

type storyRepository struct {
	db *gorm.DB
}

func NewStoryRepository(db *gorm.DB) StoryRepository { return &storyRepository{db: db} }

func (r *storyRepository) Create(ctx context.Context, ownerID, mediaURL string, maxLive int64) (*model.Story, error) {
	now := time.Now()
	story := &model.Story{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		MediaURL:  mediaURL,
		CreatedAt: now,
		ExpiresAt: now.Add(model.StoryTTL),
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// postgres 下用 advisory lock 串行化同一作者的创建
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", ownerID).Error; err != nil {
				return err
			}
		}
		var cnt int64
		if err := tx.Model(&model.Story{}).
			Where("owner_id = ? AND expires_at > ?", ownerID, now).
			Count(&cnt).Error; err != nil {
			return err
		}
		if cnt >= maxLive {
			return ErrStoryCapExceeded
		}
		return tx.Create(story).Error
	})
	if err != nil {
		return nil, err
	}
	return story, nil
}

func (r *storyRepository) FindByID(ctx context.Context, id string) (*model.Story, error) {
	var s model.Story
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *storyRepository) FindLiveByOwner(ctx context.Context, ownerID string) ([]model.Story, error) {
	var res []model.Story
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND expires_at > ?", ownerID, time.Now()).
		Order("created_at DESC").Order("id").
		Find(&res).Error
	return res, err
}

func (r *storyRepository) CountLiveByOwner(ctx context.Context, ownerID string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Story{}).
		Where("owner_id = ? AND expires_at > ?", ownerID, time.Now()).
		Count(&cnt).Error
	return cnt, err
}

func (r *storyRepository) FindFeedCandidates(ctx context.Context, followeeIDs []string) ([]model.Story, error) {
	if len(followeeIDs) == 0 {
		return nil, nil
	}
	var res []model.Story
	err := r.db.WithContext(ctx).
		Where("owner_id IN ? AND expires_at > ?", followeeIDs, time.Now()).
		Order("created_at DESC").Order("id").
		Find(&res).Error
	return res, err
}

func (r *storyRepository) SoftDelete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Story{}).Error
}

func (r *storyRepository) FindExpiredLingering(ctx context.Context, limit int) ([]model.Story, error) {
	var res []model.Story
	err := r.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).
		Order("expires_at").
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *storyRepository) PurgeExpired(ctx context.Context, grace time.Duration) (int64, error) {
	res := r.db.WithContext(ctx).Unscoped().
		Where("expires_at <= ?", time.Now().Add(-grace)).
		Delete(&model.Story{})
	return res.RowsAffected, res.Error
}
