package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joshuamichael7/whattowatch-sub004/internal/logger"
	"github.com/joshuamichael7/whattowatch-sub004/internal/recommend"
	"github.com/joshuamichael7/whattowatch-sub004/internal/wizard"
)

type answerRequest struct {
	Step wizard.Step `json:"step"`
	wizard.Answer
}

func wizardStatus(err error) int {
	switch {
	case errors.Is(err, wizard.ErrInvalidAnswer):
		return http.StatusBadRequest
	case errors.Is(err, wizard.ErrInvalidStep):
		return http.StatusConflict
	case errors.Is(err, wizard.ErrNoSavedPreferences):
		return http.StatusUnprocessableEntity
	case errors.Is(err, recommend.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// wizardError answers with the machine state next to the error so the
// client can render the step it is on.
func wizardError(c *gin.Context, st wizard.State, err error) {
	c.JSON(wizardStatus(err), gin.H{"error": err.Error(), "wizard": st})
}

func (h *Handler) wizardState(c *gin.Context) {
	_, user, ok := caller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.wizards.For(user.ID).State())
}

func (h *Handler) wizardAnswer(c *gin.Context) {
	_, user, ok := caller(c)
	if !ok {
		return
	}

	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	st, err := h.wizards.For(user.ID).Answer(req.Step, req.Answer)
	if err != nil {
		wizardError(c, st, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) wizardBack(c *gin.Context) {
	_, user, ok := caller(c)
	if !ok {
		return
	}

	st, err := h.wizards.For(user.ID).Back()
	if err != nil {
		wizardError(c, st, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// wizardSaved starts the wizard from the preferences held by the auth
// context.
func (h *Handler) wizardSaved(c *gin.Context) {
	ac, user, ok := caller(c)
	if !ok {
		return
	}

	st, err := h.wizards.For(user.ID).UseSaved(ac.Snapshot().Preferences)
	if err != nil {
		wizardError(c, st, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// wizardSubmit runs the recommendation request and caches the results.
// A cache write failure is logged; the results are still returned.
func (h *Handler) wizardSubmit(c *gin.Context) {
	_, user, ok := caller(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	st, err := h.wizards.For(user.ID).Submit(ctx, h.recommender, h.count)
	if err != nil {
		wizardError(c, st, err)
		return
	}

	// A Reset during the call leaves the machine elsewhere.
	if st.Step == wizard.StepResults {
		if cache, err := h.caches.For(ctx, user.ID); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("recommendation cache unavailable")
		} else if err := cache.SetResults(ctx, st.Results); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("recommendation cache write failed")
		}
	}

	c.JSON(http.StatusOK, st)
}

func (h *Handler) wizardDismiss(c *gin.Context) {
	_, user, ok := caller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.wizards.For(user.ID).DismissError())
}

// wizardReset starts over and empties the recommendation cache.
func (h *Handler) wizardReset(c *gin.Context) {
	_, user, ok := caller(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	st := h.wizards.For(user.ID).Reset()

	cache, err := h.caches.For(ctx, user.ID)
	if err == nil {
		err = cache.Clear(ctx)
	}
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("recommendation cache clear failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear recommendations", "wizard": st})
		return
	}

	c.JSON(http.StatusOK, st)
}
