package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joshuamichael7/whattowatch-sub004/internal/logger"
	"github.com/joshuamichael7/whattowatch-sub004/internal/reccache"
	"github.com/joshuamichael7/whattowatch-sub004/internal/recommend"
)

// cacheFor loads the caller's recommendation cache, writing a 500 on
// failure.
func (h *Handler) cacheFor(c *gin.Context, owner string) (*reccache.Cache, bool) {
	cache, err := h.caches.For(c.Request.Context(), owner)
	if err != nil {
		logger.Ctx(c.Request.Context()).Error().Err(err).Msg("recommendation cache unavailable")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "recommendations unavailable"})
		return nil, false
	}
	return cache, true
}

func (h *Handler) recommendations(c *gin.Context) {
	_, user, ok := caller(c)
	if !ok {
		return
	}
	cache, ok := h.cacheFor(c, user.ID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, cache.Snapshot())
}

type selectRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

func (h *Handler) selectRecommendation(c *gin.Context) {
	_, user, ok := caller(c)
	if !ok {
		return
	}

	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cache, ok := h.cacheFor(c, user.ID)
	if !ok {
		return
	}

	item, err := cache.Select(c.Request.Context(), req.Title)
	switch {
	case errors.Is(err, reccache.ErrEmpty):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, reccache.ErrUnknownItem):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		// The selection is held in memory even if the write failed.
		logger.Ctx(c.Request.Context()).Warn().Err(err).Msg("selection not persisted")
		c.JSON(http.StatusOK, item)
	default:
		c.JSON(http.StatusOK, item)
	}
}

type similarRequest struct {
	Title     string `json:"title" validate:"required,max=200"`
	Overview  string `json:"overview" validate:"max=4000"`
	MediaType string `json:"media_type" validate:"omitempty,oneof=movie tv"`
}

// similar asks for titles like the given one and shows them as the
// current list. The full list from the last wizard run is kept.
func (h *Handler) similar(c *gin.Context) {
	_, user, ok := caller(c)
	if !ok {
		return
	}

	var req similarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	items, err := h.recommender.SimilarContentTitles(ctx, req.Title, req.Overview, req.MediaType, h.count)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("title", req.Title).Msg("similar titles failed")
		status := http.StatusBadGateway
		if errors.Is(err, recommend.ErrUnavailable) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": "could not find similar titles"})
		return
	}

	cache, ok := h.cacheFor(c, user.ID)
	if !ok {
		return
	}
	if err := cache.SetCurrent(ctx, items); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("recommendation cache write failed")
	}

	c.JSON(http.StatusOK, gin.H{"recommendations": items})
}

func (h *Handler) clearRecommendations(c *gin.Context) {
	_, user, ok := caller(c)
	if !ok {
		return
	}
	cache, ok := h.cacheFor(c, user.ID)
	if !ok {
		return
	}
	if err := cache.Clear(c.Request.Context()); err != nil {
		logger.Ctx(c.Request.Context()).Error().Err(err).Msg("recommendation cache clear failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear recommendations"})
		return
	}
	c.Status(http.StatusNoContent)
}
