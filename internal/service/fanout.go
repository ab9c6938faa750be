package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/storyfeed/internal/cache"
	"github.com/d60-Lab/storyfeed/internal/repository"
	"github.com/d60-Lab/storyfeed/pkg/logger"
)

type fanoutAction int

const (
	actionPush fanoutAction = iota + 1
	actionRetract
)

type fanoutJob struct {
	action      fanoutAction
	publisherID string
	entry       cache.FeedEntry
	score       int64
	enqAt       time.Time
}

// FanoutEngine 异步把新 story 推进所有粉丝的缓存 feed。
// 写失败只记日志:记录以存储为准,缓存下次 miss 时自愈。
type FanoutEngine struct {
	followRepo repository.FollowRepository
	feedCache  *cache.FeedCache
	ch         chan fanoutJob
	pageSize   int
	metricsCh  chan time.Duration
}

func NewFanoutEngine(followRepo repository.FollowRepository, feedCache *cache.FeedCache, queueSize, pageSize int) *FanoutEngine {
	if queueSize <= 0 {
		queueSize = 10000
	}
	if pageSize <= 0 {
		pageSize = 500
	}
	return &FanoutEngine{
		followRepo: followRepo,
		feedCache:  feedCache,
		ch:         make(chan fanoutJob, queueSize),
		pageSize:   pageSize,
		metricsCh:  make(chan time.Duration, 65536),
	}
}

// Start 启动 worker,返回停止函数(等待队列自然排空一小段时间)
func (e *FanoutEngine) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 4
	}
	stopCh := make(chan struct{})
	for i := 0; i < workers; i++ {
		go func() {
			for {
				select {
				case job := <-e.ch:
					ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					e.process(ctx, job)
					cancel()
					if !job.enqAt.IsZero() {
						select {
						case e.metricsCh <- time.Since(job.enqAt):
						default:
						}
					}
				case <-stopCh:
					return
				}
			}
		}()
	}
	return func(ctx context.Context) error {
		close(stopCh)
		timeout := time.After(2 * time.Second)
		for {
			select {
			case <-timeout:
				return nil
			default:
				if len(e.ch) == 0 {
					return nil
				}
				time.Sleep(50 * time.Millisecond)
			}
		}
	}
}

// EnqueuePush schedules fan-out of a freshly created story. Called after the
// creating transaction commits; the request never waits on it. When the
// queue is full the job is dropped, followers converge on their next miss.
func (e *FanoutEngine) EnqueuePush(publisherID string, entry cache.FeedEntry, createdAt time.Time) {
	job := fanoutJob{
		action:      actionPush,
		publisherID: publisherID,
		entry:       entry,
		score:       createdAt.UnixMilli(),
		enqAt:       time.Now(),
	}
	select {
	case e.ch <- job:
	default:
		logger.Warn("fanout queue full, drop push", zap.String("publisher", publisherID))
	}
}

// EnqueueRetract schedules removal of the publisher's entry from all current
// followers' feeds. Used when the publisher's last live story went away.
func (e *FanoutEngine) EnqueueRetract(publisherID string, entry cache.FeedEntry) {
	job := fanoutJob{action: actionRetract, publisherID: publisherID, entry: entry, enqAt: time.Now()}
	select {
	case e.ch <- job:
	default:
		logger.Warn("fanout queue full, drop retract", zap.String("publisher", publisherID))
	}
}

// process pages through the publisher's followers. The follower set is a
// point-in-time snapshot: followers gained later simply recompute from
// source on their next cache miss.
func (e *FanoutEngine) process(ctx context.Context, job fanoutJob) {
	offset := 0
	for {
		followerIDs, err := e.followRepo.FollowerIDs(ctx, job.publisherID, offset, e.pageSize)
		if err != nil {
			logger.Warn("fanout: list followers failed",
				zap.String("publisher", job.publisherID), zap.Error(err))
			return
		}
		if len(followerIDs) == 0 {
			return
		}
		switch job.action {
		case actionPush:
			_ = e.feedCache.AddEntryToFollowersFeeds(ctx, job.entry, followerIDs, job.score)
		case actionRetract:
			_ = e.feedCache.RemoveEntryFromFollowersFeeds(ctx, job.entry, followerIDs)
		}
		if len(followerIDs) < e.pageSize {
			return
		}
		offset += e.pageSize
	}
}

// Metrics 返回入队到落地耗时的只读通道(每处理一条发送一次 duration)。
func (e *FanoutEngine) Metrics() <-chan time.Duration { return e.metricsCh }

// QueueLen 返回当前队列长度(采样值)。
func (e *FanoutEngine) QueueLen() int { return len(e.ch) }
