package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/storyfeed/internal/api/middleware"
	"github.com/d60-Lab/storyfeed/internal/service"
	"github.com/d60-Lab/storyfeed/pkg/response"
)

type createStoryRequest struct {
	MediaURL string `json:"media_url" binding:"required,mediaurl"`
}

// CreateStory 发布 story(fan-out 异步执行,不阻塞响应)
// @Summary 发布 story
// @Tags story
// @Accept json
// @Produce json
// @Param request body createStoryRequest true "story 内容"
// @Success 201 {object} response.Response{data=service.StoryPreview}
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/stories [post]
func (h *Handler) CreateStory(c *gin.Context) {
	var req createStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	preview, err := h.storySvc.CreateStory(c.Request.Context(), middleware.CallerID(c), req.MediaURL)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidMediaURL):
			response.BadRequest(c, err.Error())
		case errors.Is(err, service.ErrStoryLimitReached):
			response.Conflict(c, err.Error())
		case errors.Is(err, service.ErrUserNotFound):
			response.NotFound(c, err.Error())
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.Created(c, preview)
}

// DeleteStory 删除自己的 story
// @Summary 删除 story
// @Tags story
// @Param id path string true "story id"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/stories/{id} [delete]
func (h *Handler) DeleteStory(c *gin.Context) {
	err := h.storySvc.DeleteStory(c.Request.Context(), c.Param("id"), middleware.CallerID(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrStoryNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, service.ErrNotStoryOwner):
			response.Forbidden(c, err.Error())
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.Success(c, nil)
}

// GetStory 查询单条 story(摘要缓存 cache-aside)
// @Summary 查询 story
// @Tags story
// @Param id path string true "story id"
// @Success 200 {object} response.Response{data=service.StoryPreview}
// @Failure 404 {object} response.Response
// @Router /api/v1/stories/{id} [get]
func (h *Handler) GetStory(c *gin.Context) {
	preview, err := h.feedSvc.GetStory(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrStoryNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, preview)
}

// GetUserStories 查询某用户的存活 story 列表
// @Summary 查询用户 story
// @Tags story
// @Param username path string true "用户名"
// @Success 200 {object} response.Response{data=[]service.StoryPreview}
// @Failure 404 {object} response.Response
// @Router /api/v1/users/{username}/stories [get]
func (h *Handler) GetUserStories(c *gin.Context) {
	previews, err := h.feedSvc.GetStoriesOf(c.Request.Context(), c.Param("username"))
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"stories": previews})
}
