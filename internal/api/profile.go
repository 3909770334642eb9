package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joshuamichael7/whattowatch-sub004/internal/auth"
	"github.com/joshuamichael7/whattowatch-sub004/internal/authctx"
	"github.com/joshuamichael7/whattowatch-sub004/internal/identity"
	"github.com/joshuamichael7/whattowatch-sub004/internal/logger"
)

type meResponse struct {
	IsAuthenticated bool              `json:"is_authenticated"`
	IsAdmin         bool              `json:"is_admin"`
	Loading         bool              `json:"loading"`
	User            *auth.User        `json:"user"`
	Profile         *auth.Profile     `json:"profile"`
	Preferences     *auth.Preferences `json:"preferences"`
}

func toMe(st authctx.State) meResponse {
	resp := meResponse{
		IsAuthenticated: st.IsAuthenticated(),
		IsAdmin:         st.IsAdmin(),
		Loading:         st.Loading,
		Profile:         st.Profile,
		Preferences:     st.Preferences,
	}
	if u, ok := st.Session.User(); ok {
		resp.User = &u
	}
	return resp
}

func (h *Handler) me(c *gin.Context) {
	ac, _, ok := caller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toMe(ac.Snapshot()))
}

func (h *Handler) refreshProfile(c *gin.Context) {
	ac, _, ok := caller(c)
	if !ok {
		return
	}
	ac.RefreshProfile(c.Request.Context())
	c.JSON(http.StatusOK, toMe(ac.Snapshot()))
}

type profileUpdate struct {
	DisplayName string `json:"display_name" validate:"required,max=80"`
	AvatarURL   string `json:"avatar_url" validate:"omitempty,url,max=2048"`
}

// updateProfile writes the editable profile fields, refreshes this
// session's state and tells every other listener on the session.
func (h *Handler) updateProfile(c *gin.Context) {
	ac, user, ok := caller(c)
	if !ok {
		return
	}

	var req profileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if err := h.profiles.UpdateProfile(ctx, user.ID, req.DisplayName, req.AvatarURL); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("user_id", user.ID).Msg("profile update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update profile"})
		return
	}

	ac.RefreshProfile(ctx)
	h.publish(ctx, identity.EventUserUpdated)

	c.JSON(http.StatusOK, toMe(ac.Snapshot()))
}

func (h *Handler) savePreferences(c *gin.Context) {
	ac, user, ok := caller(c)
	if !ok {
		return
	}

	var prefs auth.Preferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := validate.Struct(prefs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if err := h.preferences.SavePreferences(ctx, user.ID, prefs); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("user_id", user.ID).Msg("preferences save failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save preferences"})
		return
	}

	ac.RefreshProfile(ctx)
	c.JSON(http.StatusOK, toMe(ac.Snapshot()))
}
