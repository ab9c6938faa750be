package handler

import (
	"github.com/d60-Lab/storyfeed/internal/service"
)

// Handler 聚合所有 HTTP handler 的依赖
type Handler struct {
	storySvc service.StoryService
	feedSvc  service.FeedService
	relSvc   service.RelationshipService
}

func New(storySvc service.StoryService, feedSvc service.FeedService, relSvc service.RelationshipService) *Handler {
	return &Handler{storySvc: storySvc, feedSvc: feedSvc, relSvc: relSvc}
}
