package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"hypercopy/internal/intent"
	"hypercopy/internal/oracle"
)

type MarkHandler struct {
	Oracle oracle.PriceOracle
}

func (h *MarkHandler) Register(r *gin.Engine) {
	r.GET("/api/v2/marks/:symbol", h.get)
}

// @Summary Current mark price
// @Tags marks
// @Produce json
// @Param symbol path string true "symbol, e.g. BTC or BTCUSDT"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v2/marks/{symbol} [get]
func (h *MarkHandler) get(c *gin.Context) {
	if h.Oracle == nil {
		Error(c, http.StatusInternalServerError, "oracle unavailable", nil)
		return
	}
	symbol := intent.NormalizeSymbol(c.Param("symbol"))
	if symbol == "" {
		Error(c, http.StatusBadRequest, "invalid symbol", nil)
		return
	}
	mark, err := h.Oracle.Mark(c.Request.Context(), symbol)
	if errors.Is(err, oracle.ErrUnsupportedSymbol) {
		Error(c, http.StatusNotFound, err.Error(), nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, map[string]any{
		"symbol": symbol,
		"asset":  intent.BaseAsset(symbol),
		"mark":   mark,
	}, nil)
}
