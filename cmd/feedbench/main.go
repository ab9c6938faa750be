package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/storyfeed/config"
	"github.com/d60-Lab/storyfeed/internal/cache"
	"github.com/d60-Lab/storyfeed/internal/model"
	"github.com/d60-Lab/storyfeed/internal/repository"
	"github.com/d60-Lab/storyfeed/internal/service"
	"github.com/d60-Lab/storyfeed/pkg/database"
	"github.com/d60-Lab/storyfeed/pkg/logger"
)

func must[T any](v T, err error) T { if err != nil { panic(err) }; return v }

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 { return 0 }
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 { k = 0 }
	if k >= len(xs) { k = len(xs) - 1 }
	return xs[k]
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 { return v }
	}
	return def
}

// 本地基准:一个发布者 N 个粉丝,发 POSTS 条 story,测 fan-out 落地延迟
// 和粉丝侧 feed 读耗时(缓存命中 vs 回源)。
func main() {
	cfg := must(config.Load())
	_ = logger.Init(cfg.Server.Mode)
	db := must(database.InitDB(cfg))
	rdb := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	feedCache := cache.NewFeedCache(rdb, cfg.Feed.TTL)

	N := envInt("N", 10000)
	POSTS := envInt("POSTS", 50)
	WORKERS := envInt("WORKERS", 8)

	storyRepo := repository.NewStoryRepository(db)
	followRepo := repository.NewFollowRepository(db)
	userRepo := repository.NewUserRepository(db)
	fanout := service.NewFanoutEngine(followRepo, feedCache, 100000, cfg.Fanout.PageSize)
	stop := fanout.Start(WORKERS)
	// 放开上限,发多少条测多少条
	storySvc := service.NewStoryService(storyRepo, userRepo, feedCache, fanout, 1<<30)
	feedSvc := service.NewFeedService(storyRepo, followRepo, userRepo, feedCache, cfg.Fanout.PageSize)

	ctx := context.Background()

	// seed: one publisher, N fans following it
	pub := model.User{ID: "pub0", Username: "pub0", ProfilePictureURL: "https://cdn.example.com/pub0.jpg"}
	_ = db.Where("id = ?", pub.ID).FirstOrCreate(&pub).Error
	fans := make([]model.User, N)
	batch := 1000
	for i := 0; i < N; i++ {
		id := uuid.New().String()
		fans[i] = model.User{ID: id, Username: "u" + id[:8]}
		if (i+1)%batch == 0 {
			sub := fans[i+1-batch : i+1]
			_ = db.Create(&sub).Error
		}
	}
	if N%batch != 0 {
		sub := fans[N-N%batch:]
		_ = db.Create(&sub).Error
	}
	for i := 0; i < N; i++ {
		_ = followRepo.Create(ctx, fans[i].ID, pub.ID)
	}

	// drain fan-out landing latencies
	landRecs := make([]time.Duration, 0, POSTS)
	doneLand := make(chan struct{})
	go func() {
		timeout := time.NewTimer(5 * time.Minute)
		defer timeout.Stop()
		for {
			select {
			case d := <-fanout.Metrics():
				landRecs = append(landRecs, d)
			case <-doneLand:
				return
			case <-timeout.C:
				return
			}
		}
	}()

	t0 := time.Now()
	for i := 0; i < POSTS; i++ {
		if _, err := storySvc.CreateStory(ctx, pub.ID, fmt.Sprintf("https://cdn.example.com/s%d.jpg", i)); err != nil {
			fmt.Println("create:", err)
		}
	}
	createDur := time.Since(t0)

	// wait for queue drain
	for fanout.QueueLen() > 0 {
		time.Sleep(100 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)
	close(doneLand)

	// fan reads: first read may recompute, second should hit cache
	readRecs := make([]time.Duration, 0, 2000)
	sample := N
	if sample > 1000 { sample = 1000 }
	for i := 0; i < sample; i++ {
		st := time.Now()
		_, _ = feedSvc.GetFeed(ctx, fans[i].ID)
		readRecs = append(readRecs, time.Since(st))
	}

	fmt.Printf("posts=%d fans=%d create_total=%v\n", POSTS, N, createDur)
	fmt.Printf("fanout land: n=%d p50=%v p99=%v\n", len(landRecs), pct(landRecs, 0.50), pct(landRecs, 0.99))
	fmt.Printf("feed read:   n=%d p50=%v p99=%v\n", len(readRecs), pct(readRecs, 0.50), pct(readRecs, 0.99))

	_ = stop(ctx)
	_ = rdb.Close()
}
