package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"hypercopy/internal/auth"
	"hypercopy/internal/broker"
	"hypercopy/internal/cache"
	"hypercopy/internal/client/hyperliquid"
	"hypercopy/internal/config"
	"hypercopy/internal/db"
	"hypercopy/internal/models"
	"hypercopy/internal/oracle"
	"hypercopy/internal/repository"
	gormrepository "hypercopy/internal/repository/gorm"
	"hypercopy/internal/risk"
	"hypercopy/internal/service"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
}

type stubApprover struct {
	builder string
	bps     int
	resp    *hyperliquid.ExchangeResponse
}

func (s *stubApprover) ApproveBuilderFee(_ context.Context, builder string, maxFeeBps int) (*hyperliquid.ExchangeResponse, error) {
	s.builder, s.bps = builder, maxFeeBps
	return s.resp, nil
}

type apiEnv struct {
	router   *gin.Engine
	jwt      *auth.JWT
	approver *stubApprover
}

func newAPI(t *testing.T, secret string) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	RegisterValidators()

	d, err := db.Open(config.DBConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString()),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(d))
	t.Cleanup(func() { _ = db.Close(d) })
	store := gormrepository.New(d.Gorm)

	logger := zaptest.NewLogger(t)
	o := oracle.NewStatic(map[string]float64{"BTC": 100000, "ETH": 3500})
	life := &service.Lifecycle{
		Store:  store,
		Broker: broker.NewSim(o, cache.NewMemoryStore()),
		Oracle: o,
		Risk:   &risk.Manager{Store: store, Logger: logger},
		Logger: logger,
		Owner:  "api-test",
	}
	flags := &service.SystemSettingsService{Store: store}

	var j *auth.JWT
	if secret != "" {
		j = &auth.JWT{Secret: []byte(secret), TokenTTL: time.Minute}
	}
	approver := &stubApprover{resp: &hyperliquid.ExchangeResponse{Status: "ok"}}

	r := gin.New()
	r.Use(auth.Middleware(j))
	(&HealthHandler{Deps: map[string]Pinger{"db": store}}).Register(r)
	(&ExecutionHandler{
		Store: store,
		Intake: &service.Intake{
			Store:  store,
			Oracle: o,
			Dedupe: cache.NewMemoryStore(),
			Config: config.IntakeConfig{DedupeWindow: time.Minute},
			Logger: logger,
		},
		Lifecycle: life,
		Scheduler: &service.Scheduler{Lifecycle: life, Store: store, Flags: flags, Logger: logger},
	}).Register(r)
	(&MarkHandler{Oracle: o}).Register(r)
	(&BrokerHandler{Approver: approver, DefaultBuilder: "0x1111111111111111111111111111111111111111", DefaultFeeBps: 5}).Register(r)
	(&SystemSettingsHandler{Settings: flags}).Register(r)
	return &apiEnv{router: r, jwt: j, approver: approver}
}

func (e *apiEnv) token(t *testing.T, sub, role string) string {
	t.Helper()
	tok, _, err := e.jwt.Sign(auth.Claims{Role: role, RegisteredClaims: jwt.RegisteredClaims{Subject: sub}})
	require.NoError(t, err)
	return tok
}

func (e *apiEnv) do(t *testing.T, method, path string, body any, token string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func decodePlan(t *testing.T, raw json.RawMessage) models.OrderPlan {
	t.Helper()
	var p models.OrderPlan
	require.NoError(t, json.Unmarshal(raw, &p))
	return p
}

func TestCreateSubmitCancelFlow(t *testing.T) {
	e := newAPI(t, "")
	body := map[string]any{"user_id": "u1", "symbol": "btc", "side": "buy", "qty": "0.001", "sl_price": "95000"}

	code, env := e.do(t, http.MethodPost, "/api/v2/executions", body, "")
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Equal(t, true, env.Meta["created"])
	plan := decodePlan(t, env.Data)
	assert.Equal(t, models.StatusCreated, plan.Status)
	assert.Equal(t, "BTCUSDT", plan.Symbol)

	code, env = e.do(t, http.MethodPost, "/api/v2/executions", body, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, env.Meta["created"])
	assert.Equal(t, plan.ID, decodePlan(t, env.Data).ID)

	code, env = e.do(t, http.MethodPost, "/api/v2/executions/"+plan.ID+"/submit", nil, "")
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Equal(t, models.StatusSubmitted, decodePlan(t, env.Data).Status)

	code, _ = e.do(t, http.MethodPost, "/api/v2/executions/"+plan.ID+"/submit", nil, "")
	assert.Equal(t, http.StatusConflict, code)

	code, env = e.do(t, http.MethodPost, "/api/v2/executions/"+plan.ID+"/refresh", nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.StatusSubmitted, decodePlan(t, env.Data).Status)

	code, env = e.do(t, http.MethodPost, "/api/v2/executions/"+plan.ID+"/cancel", map[string]any{"reason": "flat"}, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.StatusCanceled, decodePlan(t, env.Data).Status)

	code, _ = e.do(t, http.MethodPost, "/api/v2/executions/"+plan.ID+"/cancel", nil, "")
	assert.Equal(t, http.StatusConflict, code)

	code, env = e.do(t, http.MethodGet, "/api/v2/executions/"+plan.ID+"/events", nil, "")
	require.Equal(t, http.StatusOK, code)
	var evs []models.ExecEvent
	require.NoError(t, json.Unmarshal(env.Data, &evs))
	require.Len(t, evs, 3)
	assert.Equal(t, models.EventCancel, evs[2].Event)
	assert.Equal(t, "flat", evs[2].Reason)
}

func TestCreateValidation(t *testing.T) {
	e := newAPI(t, "")
	cases := []map[string]any{
		{"user_id": "u1", "symbol": "BTC", "side": "long", "qty": "1"},
		{"user_id": "u1", "symbol": "BTC", "side": "buy", "qty": "1", "source": "copy"},
		{"user_id": "u1", "symbol": "BTC", "side": "buy"},
		{"user_id": "u1", "symbol": "BTC", "side": "buy", "qty": "1", "tif": "FOK"},
		{"user_id": "u1", "side": "buy", "qty": "1"},
		{"user_id": "u1", "symbol": "DOGE", "side": "buy", "size_usd": "10"},
	}
	for i, body := range cases {
		code, env := e.do(t, http.MethodPost, "/api/v2/executions", body, "")
		assert.Equal(t, http.StatusBadRequest, code, "case %d: %s", i, env.Message)
	}
}

func TestGetAndListPlans(t *testing.T) {
	e := newAPI(t, "")
	code, _ := e.do(t, http.MethodGet, "/api/v2/executions/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, code)

	for _, user := range []string{"u1", "u1", "u2"} {
		qty := map[string]string{"u1": "0.001", "u2": "0.002"}[user]
		code, env := e.do(t, http.MethodPost, "/api/v2/executions", map[string]any{"user_id": user, "symbol": "ETH", "side": "sell", "qty": qty, "signal_ref": uuid.NewString(), "source": "auto_follow"}, "")
		require.Equal(t, http.StatusOK, code, env.Message)
	}

	code, env := e.do(t, http.MethodGet, "/api/v2/executions?user_id=u1&status=created", nil, "")
	require.Equal(t, http.StatusOK, code)
	var items []models.OrderPlan
	require.NoError(t, json.Unmarshal(env.Data, &items))
	assert.Len(t, items, 2)
	assert.EqualValues(t, 2, env.Meta["total"])

	code, _ = e.do(t, http.MethodGet, "/api/v2/executions?status=bogus", nil, "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = e.do(t, http.MethodPost, "/api/v2/executions/sweep", nil, "")
	require.Equal(t, http.StatusOK, code)
	var res service.SweepResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 3, res.Submitted)
}

func TestAuthScopesPlansToSubject(t *testing.T) {
	e := newAPI(t, "s3cret")
	alice := e.token(t, "alice", "")
	bob := e.token(t, "bob", "")
	ops := e.token(t, "ops", auth.RoleAdmin)
	body := map[string]any{"user_id": "alice", "symbol": "BTC", "side": "buy", "qty": "0.001"}

	code, _ := e.do(t, http.MethodPost, "/api/v2/executions", body, "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = e.do(t, http.MethodPost, "/api/v2/executions", body, bob)
	assert.Equal(t, http.StatusForbidden, code)

	code, env := e.do(t, http.MethodPost, "/api/v2/executions", body, alice)
	require.Equal(t, http.StatusOK, code, env.Message)
	plan := decodePlan(t, env.Data)

	code, _ = e.do(t, http.MethodGet, "/api/v2/executions/"+plan.ID, nil, bob)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = e.do(t, http.MethodPost, "/api/v2/executions/"+plan.ID+"/cancel", nil, bob)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = e.do(t, http.MethodGet, "/api/v2/executions/"+plan.ID, nil, ops)
	assert.Equal(t, http.StatusOK, code)

	// Without user_id the subject owns the plan.
	code, env = e.do(t, http.MethodPost, "/api/v2/executions", map[string]any{"symbol": "ETH", "side": "buy", "qty": "1"}, bob)
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Equal(t, "bob", decodePlan(t, env.Data).UserID)

	code, env = e.do(t, http.MethodGet, "/api/v2/executions", nil, bob)
	require.Equal(t, http.StatusOK, code)
	var items []models.OrderPlan
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "bob", items[0].UserID)

	code, _ = e.do(t, http.MethodGet, "/api/v2/executions?user_id=alice", nil, bob)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = e.do(t, http.MethodPost, "/api/v2/executions/sweep", nil, bob)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = e.do(t, http.MethodPut, "/api/v2/system-settings/switches/submission_sweep", map[string]any{"enabled": false}, bob)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = e.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, code)
}

func TestMarks(t *testing.T) {
	e := newAPI(t, "")
	code, env := e.do(t, http.MethodGet, "/api/v2/marks/btc", nil, "")
	require.Equal(t, http.StatusOK, code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, "BTCUSDT", body["symbol"])
	assert.Equal(t, "BTC", body["asset"])
	assert.Equal(t, "100000", body["mark"])

	code, _ = e.do(t, http.MethodGet, "/api/v2/marks/DOGE", nil, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSwitches(t *testing.T) {
	e := newAPI(t, "")
	code, env := e.do(t, http.MethodPut, "/api/v2/system-settings/switches/submission_sweep", map[string]any{"enabled": false}, "")
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = e.do(t, http.MethodGet, "/api/v2/system-settings/switches/submission_sweep", nil, "")
	require.Equal(t, http.StatusOK, code)
	var sw map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &sw))
	assert.Equal(t, service.FeatureSubmissionSweep, sw["name"])
	assert.Equal(t, false, sw["enabled"])

	code, env = e.do(t, http.MethodGet, "/api/v2/system-settings/switches", nil, "")
	require.Equal(t, http.StatusOK, code)
	var all []service.FeatureSwitch
	require.NoError(t, json.Unmarshal(env.Data, &all))
	assert.Len(t, all, 3)

	code, _ = e.do(t, http.MethodPut, "/api/v2/system-settings/switches/labeler", map[string]any{"enabled": true}, "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = e.do(t, http.MethodPut, "/api/v2/system-settings/switches/stoploss_monitor", map[string]any{}, "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestApproveBuilderFee(t *testing.T) {
	e := newAPI(t, "")
	code, env := e.do(t, http.MethodPost, "/api/v2/broker/builder-fee/approve", nil, "")
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", e.approver.builder)
	assert.Equal(t, 5, e.approver.bps)

	code, _ = e.do(t, http.MethodPost, "/api/v2/broker/builder-fee/approve", map[string]any{"builder": "not-an-address"}, "")
	assert.Equal(t, http.StatusBadRequest, code)

	e.approver.resp = &hyperliquid.ExchangeResponse{Status: "err", Response: json.RawMessage(`"Builder fee too high"`)}
	code, env = e.do(t, http.MethodPost, "/api/v2/broker/builder-fee/approve", map[string]any{"max_fee_bps": 10}, "")
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "Builder fee too high", env.Message)
	assert.Equal(t, 10, e.approver.bps)
}

func TestReadyz(t *testing.T) {
	e := newAPI(t, "")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","db":"ok"}`, rec.Body.String())
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: qty", service.ErrInvalidIntent), http.StatusBadRequest},
		{repository.ErrNotFound, http.StatusNotFound},
		{service.ErrPlanTerminal, http.StatusConflict},
		{fmt.Errorf("%w: x", models.ErrIllegalTransition), http.StatusConflict},
		{service.ErrClaimLost, http.StatusConflict},
		{fmt.Errorf("write: %w", repository.ErrStatusConflict), http.StatusConflict},
		{errors.New("connection refused"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
