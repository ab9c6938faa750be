package service

import "errors"

var (
	ErrFollowSelf        = errors.New("cannot follow self")
	ErrUserNotFound      = errors.New("user not found")
	ErrStoryNotFound     = errors.New("story not found")
	ErrNotStoryOwner     = errors.New("not the story owner")
	ErrStoryLimitReached = errors.New("live story limit reached")
	ErrInvalidMediaURL   = errors.New("invalid media url")
)
