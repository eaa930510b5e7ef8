package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"hypercopy/internal/auth"
	"hypercopy/internal/service"
)

type SystemSettingsHandler struct {
	Settings *service.SystemSettingsService
}

func (h *SystemSettingsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v2/system-settings")
	g.GET("/switches", h.listSwitches)
	g.GET("/switches/:name", h.getSwitch)
	g.PUT("/switches/:name", h.putSwitch)
}

func switchKey(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "feature.") {
		return name
	}
	return "feature." + name
}

// @Summary List feature switches
// @Tags system-settings
// @Produce json
// @Success 200 {object} apiResponse
// @Router /api/v2/system-settings/switches [get]
func (h *SystemSettingsHandler) listSwitches(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	items, err := h.Settings.ListSwitches(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *SystemSettingsHandler) getSwitch(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	key := switchKey(c.Param("name"))
	if !service.IsKnownSwitch(key) {
		Error(c, http.StatusNotFound, "unknown switch", nil)
		return
	}
	Ok(c, map[string]any{
		"name":    key,
		"enabled": h.Settings.IsEnabled(c.Request.Context(), key, service.DefaultFeatureSwitches()[key]),
	}, nil)
}

type putSwitchRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// @Summary Turn a feature switch on or off
// @Tags system-settings
// @Accept json
// @Produce json
// @Param name path string true "switch name, e.g. submission_sweep"
// @Success 200 {object} apiResponse
// @Router /api/v2/system-settings/switches/{name} [put]
func (h *SystemSettingsHandler) putSwitch(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	if auth.UserID(c) != "" && !auth.IsAdmin(c) {
		Error(c, http.StatusForbidden, "admin only", nil)
		return
	}
	key := switchKey(c.Param("name"))
	if !service.IsKnownSwitch(key) {
		Error(c, http.StatusNotFound, "unknown switch", nil)
		return
	}
	var req putSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if err := h.Settings.SetEnabled(c.Request.Context(), key, *req.Enabled); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, map[string]any{
		"name":    key,
		"enabled": *req.Enabled,
	}, nil)
}
