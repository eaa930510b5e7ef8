package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"hypercopy/internal/auth"
	"hypercopy/internal/models"
	"hypercopy/internal/repository"
	"hypercopy/internal/service"
)

type ExecutionHandler struct {
	Store     repository.PlanStore
	Intake    *service.Intake
	Lifecycle *service.Lifecycle
	Scheduler *service.Scheduler
}

func (h *ExecutionHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v2/executions")
	group.POST("", h.create)
	group.GET("", h.list)
	group.POST("/sweep", h.sweep)
	group.GET("/:id", h.get)
	group.GET("/:id/events", h.events)
	group.POST("/:id/submit", h.submit)
	group.POST("/:id/refresh", h.refresh)
	group.POST("/:id/cancel", h.cancel)
}

type createExecutionRequest struct {
	UserID     string           `json:"user_id"`
	Source     string           `json:"source" binding:"omitempty,plansource"`
	SignalRef  string           `json:"signal_ref" binding:"max=128"`
	Symbol     string           `json:"symbol" binding:"required,max=32"`
	Side       string           `json:"side" binding:"required,side"`
	Qty        *decimal.Decimal `json:"qty"`
	SizeUSD    *decimal.Decimal `json:"size_usd"`
	Leverage   *decimal.Decimal `json:"leverage"`
	LimitPx    *decimal.Decimal `json:"limit_px"`
	TIF        string           `json:"tif" binding:"omitempty,oneof=IOC GTC ALO ioc gtc alo"`
	ReduceOnly bool             `json:"reduce_only"`
	SLPrice    *decimal.Decimal `json:"sl_price"`
	SLPct      *decimal.Decimal `json:"sl_pct"`
	Meta       map[string]any   `json:"meta"`
}

// @Summary Create an order plan from an intent
// @Tags executions
// @Accept json
// @Produce json
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Router /api/v2/executions [post]
func (h *ExecutionHandler) create(c *gin.Context) {
	if h.Intake == nil {
		Error(c, http.StatusInternalServerError, "intake unavailable", nil)
		return
	}
	var req createExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = auth.UserID(c)
	}
	if !auth.CanActFor(c, userID) {
		Error(c, http.StatusForbidden, "token subject does not match user_id", nil)
		return
	}
	plan, created, err := h.Intake.Create(c.Request.Context(), service.IntentRequest{
		UserID:     userID,
		Source:     models.Source(strings.TrimSpace(req.Source)),
		SignalRef:  req.SignalRef,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Qty:        req.Qty,
		SizeUSD:    req.SizeUSD,
		Leverage:   req.Leverage,
		LimitPx:    req.LimitPx,
		TIF:        req.TIF,
		ReduceOnly: req.ReduceOnly,
		SLPrice:    req.SLPrice,
		SLPct:      req.SLPct,
		Meta:       req.Meta,
	})
	if err != nil {
		writeError(c, err, nil)
		return
	}
	Ok(c, plan, map[string]any{"created": created})
}

// @Summary List order plans
// @Tags executions
// @Produce json
// @Param user_id query string false "owner"
// @Param status query string false "plan status"
// @Param limit query int false "page size"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/v2/executions [get]
func (h *ExecutionHandler) list(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListPlansParams{
		Limit:   limit,
		Offset:  offset,
		UserID:  strQueryPtr(c, "user_id"),
		Symbol:  strQueryPtr(c, "symbol"),
		OrderBy: strings.TrimSpace(c.Query("order_by")),
		Asc:     boolQueryPtr(c, "asc"),
	}
	if v := strQueryPtr(c, "status"); v != nil {
		st := models.PlanStatus(strings.ToLower(*v))
		if !st.Valid() {
			Error(c, http.StatusBadRequest, "invalid status", nil)
			return
		}
		params.Status = &st
	}
	if v := strQueryPtr(c, "source"); v != nil {
		src := models.Source(*v)
		if !src.Valid() {
			Error(c, http.StatusBadRequest, "invalid source", nil)
			return
		}
		params.Source = &src
	}
	if sub := auth.UserID(c); sub != "" && !auth.IsAdmin(c) {
		if params.UserID != nil && *params.UserID != sub {
			Error(c, http.StatusForbidden, "cannot list another user's plans", nil)
			return
		}
		params.UserID = &sub
	}
	items, err := h.Store.ListPlans(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Store.CountPlans(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Get an order plan
// @Tags executions
// @Produce json
// @Param id path string true "plan id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v2/executions/{id} [get]
func (h *ExecutionHandler) get(c *gin.Context) {
	plan, ok := h.owned(c)
	if !ok {
		return
	}
	Ok(c, plan, nil)
}

// @Summary Audit trail of an order plan
// @Tags executions
// @Produce json
// @Param id path string true "plan id"
// @Success 200 {object} apiResponse
// @Router /api/v2/executions/{id}/events [get]
func (h *ExecutionHandler) events(c *gin.Context) {
	plan, ok := h.owned(c)
	if !ok {
		return
	}
	items, err := h.Store.ListEvents(c.Request.Context(), plan.ID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"total": len(items)})
}

func (h *ExecutionHandler) submit(c *gin.Context) {
	plan, ok := h.owned(c)
	if !ok {
		return
	}
	next, err := h.Lifecycle.Submit(c.Request.Context(), plan.ID)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	Ok(c, next, nil)
}

func (h *ExecutionHandler) refresh(c *gin.Context) {
	plan, ok := h.owned(c)
	if !ok {
		return
	}
	next, err := h.Lifecycle.Refresh(c.Request.Context(), plan.ID)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	Ok(c, next, nil)
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"max=256"`
}

func (h *ExecutionHandler) cancel(c *gin.Context) {
	plan, ok := h.owned(c)
	if !ok {
		return
	}
	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			Error(c, http.StatusBadRequest, "invalid body", nil)
			return
		}
	}
	next, err := h.Lifecycle.Cancel(c.Request.Context(), plan.ID, req.Reason)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	Ok(c, next, nil)
}

// @Summary Run one submission pass now
// @Tags executions
// @Produce json
// @Success 200 {object} apiResponse
// @Router /api/v2/executions/sweep [post]
func (h *ExecutionHandler) sweep(c *gin.Context) {
	if h.Scheduler == nil {
		Error(c, http.StatusInternalServerError, "scheduler unavailable", nil)
		return
	}
	if auth.UserID(c) != "" && !auth.IsAdmin(c) {
		Error(c, http.StatusForbidden, "admin only", nil)
		return
	}
	res, err := h.Scheduler.SweepCreated(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), map[string]any{"partial": res})
		return
	}
	Ok(c, res, nil)
}

// owned loads the plan named in the path and checks the caller may see it.
// It writes the error response itself.
func (h *ExecutionHandler) owned(c *gin.Context) (*models.OrderPlan, bool) {
	if h.Store == nil || h.Lifecycle == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return nil, false
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return nil, false
	}
	plan, err := h.Store.GetPlan(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return nil, false
	}
	if plan == nil {
		Error(c, http.StatusNotFound, "plan not found", nil)
		return nil, false
	}
	if !auth.CanActFor(c, plan.UserID) {
		Error(c, http.StatusForbidden, "plan belongs to another user", nil)
		return nil, false
	}
	return plan, true
}
