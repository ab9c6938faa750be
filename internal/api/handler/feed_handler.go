package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/storyfeed/internal/api/middleware"
	"github.com/d60-Lab/storyfeed/pkg/response"
)

// GetFeed 查询当前用户的 stories feed
// @Summary 查询 feed(每个发布者一条,按最新 story 时间倒序)
// @Tags feed
// @Produce json
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/feed [get]
func (h *Handler) GetFeed(c *gin.Context) {
	entries, err := h.feedSvc.GetFeed(c.Request.Context(), middleware.CallerID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"entries": entries})
}
