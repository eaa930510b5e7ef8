package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hypercopy/internal/auth"
	"hypercopy/internal/client/hyperliquid"
)

// BuilderFeeApprover is the venue call behind the approve endpoint.
type BuilderFeeApprover interface {
	ApproveBuilderFee(ctx context.Context, builder string, maxFeeBps int) (*hyperliquid.ExchangeResponse, error)
}

type BrokerHandler struct {
	Approver       BuilderFeeApprover
	DefaultBuilder string
	DefaultFeeBps  int
	Logger         *zap.Logger
}

func (h *BrokerHandler) Register(r *gin.Engine) {
	r.POST("/api/v2/broker/builder-fee/approve", h.approveBuilderFee)
}

type approveBuilderFeeRequest struct {
	Builder   string `json:"builder" binding:"omitempty,eth_addr"`
	MaxFeeBps *int   `json:"max_fee_bps" binding:"omitempty,min=1,max=100"`
}

// @Summary Approve the configured builder fee on the venue account
// @Tags broker
// @Accept json
// @Produce json
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Router /api/v2/broker/builder-fee/approve [post]
func (h *BrokerHandler) approveBuilderFee(c *gin.Context) {
	if h.Approver == nil {
		Error(c, http.StatusBadRequest, "hyperliquid broker is not configured", nil)
		return
	}
	if auth.UserID(c) != "" && !auth.IsAdmin(c) {
		Error(c, http.StatusForbidden, "admin only", nil)
		return
	}
	var req approveBuilderFeeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
			return
		}
	}
	builder := trimmed(req.Builder)
	if builder == "" {
		builder = trimmed(h.DefaultBuilder)
	}
	feeBps := h.DefaultFeeBps
	if req.MaxFeeBps != nil {
		feeBps = *req.MaxFeeBps
	}
	if builder == "" || feeBps <= 0 {
		Error(c, http.StatusBadRequest, "builder and max_fee_bps are required", nil)
		return
	}
	resp, err := h.Approver.ApproveBuilderFee(c.Request.Context(), builder, feeBps)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if msg := resp.ErrorMessage(); msg != "" {
		Error(c, http.StatusBadGateway, msg, nil)
		return
	}
	if h.Logger != nil {
		h.Logger.Info("builder fee approved", zap.String("builder", builder), zap.Int("max_fee_bps", feeBps))
	}
	Ok(c, map[string]any{"builder": builder, "max_fee_bps": feeBps, "status": resp.Status}, nil)
}

func trimmed(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
