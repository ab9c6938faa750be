package api

import (
	"net/url"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/storyfeed/config"
	"github.com/d60-Lab/storyfeed/internal/api/handler"
	"github.com/d60-Lab/storyfeed/internal/api/middleware"
)

// NewRouter 装配全部路由和中间件
func NewRouter(cfg *config.Config, h *handler.Handler) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	registerValidations()

	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(otelgin.Middleware("storyfeed"))
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(middleware.RateLimit(cfg.RateQPS, cfg.Burst))

	r.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	v1 := r.Group("/api/v1")
	auth := v1.Group("", middleware.Auth(cfg.JWT.Secret))
	{
		auth.POST("/stories", h.CreateStory)
		auth.DELETE("/stories/:id", h.DeleteStory)
		auth.GET("/stories/:id", h.GetStory)
		auth.GET("/feed", h.GetFeed)
		auth.GET("/users/:username/stories", h.GetUserStories)

		auth.POST("/relations/follow", h.Follow)
		auth.POST("/relations/unfollow", h.Unfollow)
		auth.GET("/relations/:user_id/following", h.ListFollowing)
		auth.GET("/relations/:user_id/followers", h.ListFollowers)
		auth.GET("/relations/:user_id/counts", h.RelationCounts)
	}
	return r
}

// registerValidations 注册 media url 校验:只接受带 host 的 http(s) 地址
func registerValidations() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	_ = v.RegisterValidation("mediaurl", func(fl validator.FieldLevel) bool {
		u, err := url.ParseRequestURI(fl.Field().String())
		if err != nil {
			return false
		}
		return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
	})
}
