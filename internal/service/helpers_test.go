package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"hypercopy/internal/broker"
	"hypercopy/internal/cache"
	"hypercopy/internal/config"
	"hypercopy/internal/db"
	"hypercopy/internal/models"
	"hypercopy/internal/oracle"
	"hypercopy/internal/repository"
	"hypercopy/internal/risk"
	gormrepository "hypercopy/internal/repository/gorm"
)

func newTestStore(t *testing.T) *gormrepository.Store {
	t.Helper()
	d, err := db.Open(config.DBConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString()),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(d))
	t.Cleanup(func() { _ = db.Close(d) })
	return gormrepository.New(d.Gorm)
}

// stubBroker accepts everything unless told otherwise per symbol.
type stubBroker struct {
	mu      sync.Mutex
	places  []broker.OrderRequest
	cancels []broker.CancelRequest
	queries int

	reject    map[string]string
	fail      map[string]error
	panics    map[string]bool
	venue     map[string]broker.VenueStatus
	cancelErr error
	queryErr  error
}

func newStubBroker() *stubBroker {
	return &stubBroker{
		reject: map[string]string{},
		fail:   map[string]error{},
		panics: map[string]bool{},
		venue:  map[string]broker.VenueStatus{},
	}
}

func (b *stubBroker) Name() string { return "stub" }

func (b *stubBroker) PlaceMarket(_ context.Context, req broker.OrderRequest) (*broker.Ack, error) {
	b.mu.Lock()
	b.places = append(b.places, req)
	reason, rejected := b.reject[req.Symbol]
	err := b.fail[req.Symbol]
	boom := b.panics[req.Symbol]
	b.mu.Unlock()
	if boom {
		panic("venue exploded")
	}
	if err != nil {
		return nil, err
	}
	if rejected {
		return &broker.Ack{Status: broker.AckRejected, Detail: map[string]any{"reason": reason}}, nil
	}
	b.mu.Lock()
	if req.ReduceOnly {
		b.venue[req.ClientOrderID] = broker.VenueFilled
	} else {
		b.venue[req.ClientOrderID] = broker.VenueOpen
	}
	b.mu.Unlock()
	return &broker.Ack{
		Status:        broker.AckAccepted,
		BrokerOrderID: "stub-" + req.ClientOrderID,
		Detail:        map[string]any{"qty": req.Qty.String()},
	}, nil
}

func (b *stubBroker) Cancel(_ context.Context, req broker.CancelRequest) (*broker.CancelResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancels = append(b.cancels, req)
	if b.cancelErr != nil {
		return nil, b.cancelErr
	}
	return &broker.CancelResult{Canceled: true}, nil
}

func (b *stubBroker) Query(_ context.Context, req broker.QueryRequest) (*broker.OrderState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queries++
	if b.queryErr != nil {
		return nil, b.queryErr
	}
	st, ok := b.venue[req.ClientOrderID]
	if !ok {
		return &broker.OrderState{Status: broker.VenueUnknown}, nil
	}
	return &broker.OrderState{Status: st, BrokerOrderID: "stub-" + req.ClientOrderID}, nil
}

func (b *stubBroker) setVenue(cid string, st broker.VenueStatus) {
	b.mu.Lock()
	b.venue[cid] = st
	b.mu.Unlock()
}

func (b *stubBroker) placeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.places)
}

type testEnv struct {
	store  *gormrepository.Store
	broker *stubBroker
	oracle *oracle.Static
	life   *Lifecycle
	intake *Intake
	sched  *Scheduler
	stop   *StopLossMonitor
	flags  *SystemSettingsService
}

func newTestEnv(t *testing.T, riskCfg config.RiskConfig) *testEnv {
	t.Helper()
	store := newTestStore(t)
	logger := zaptest.NewLogger(t)
	b := newStubBroker()
	o := oracle.NewStatic(map[string]float64{"BTC": 100000, "ETH": 3500})
	life := &Lifecycle{
		Store:  store,
		Broker: b,
		Oracle: o,
		Risk:   &risk.Manager{Config: riskCfg, Store: store, Logger: logger},
		Logger: logger,
		Owner:  "test-executor",
	}
	flags := &SystemSettingsService{Store: store}
	execCfg := config.ExecutorConfig{BatchSize: 100, Concurrency: 1}
	return &testEnv{
		store:  store,
		broker: b,
		oracle: o,
		life:   life,
		flags:  flags,
		intake: &Intake{
			Store:  store,
			Oracle: o,
			Dedupe: cache.NewMemoryStore(),
			Config: config.IntakeConfig{DedupeWindow: 5 * time.Minute, DefaultTIF: "IOC"},
			Logger: logger,
		},
		sched: &Scheduler{Lifecycle: life, Store: store, Flags: flags, Config: execCfg, Logger: logger},
		stop:  &StopLossMonitor{Lifecycle: life, Store: store, Flags: flags, Config: execCfg, Logger: logger},
	}
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func (e *testEnv) create(t *testing.T, req IntentRequest) *models.OrderPlan {
	t.Helper()
	plan, created, err := e.intake.Create(context.Background(), req)
	require.NoError(t, err)
	require.True(t, created)
	return plan
}

func (e *testEnv) events(t *testing.T, id string) []models.ExecEvent {
	t.Helper()
	evs, err := e.store.ListEvents(context.Background(), id)
	require.NoError(t, err)
	return evs
}

func (e *testEnv) plan(t *testing.T, id string) *models.OrderPlan {
	t.Helper()
	p, err := e.store.GetPlan(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func eventKinds(evs []models.ExecEvent) []models.EventKind {
	out := make([]models.EventKind, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Event)
	}
	return out
}

// requireChain checks the audit invariants of one plan's events: strictly
// increasing timestamps and from_status chaining to the previous to_status.
func requireChain(t *testing.T, evs []models.ExecEvent) {
	t.Helper()
	require.NotEmpty(t, evs)
	require.Equal(t, models.EventCreate, evs[0].Event)
	require.Equal(t, models.PlanStatus(""), evs[0].FromStatus)
	for i := 1; i < len(evs); i++ {
		require.True(t, evs[i].At.After(evs[i-1].At), "event %d not after %d", i, i-1)
		require.Equal(t, evs[i-1].ToStatus, evs[i].FromStatus, "event %d does not chain", i)
	}
}

var errTransport = errors.New("connection reset by peer")

func repositoryParams(userID string) repository.ListPlansParams {
	p := repository.ListPlansParams{Limit: 100}
	if userID != "" {
		p.UserID = &userID
	}
	return p
}


// seedPlans writes n BTC longs straight to the store, one millisecond apart
// in created_at, and moves each to status. sl arms them when set.
func (e *testEnv) seedPlans(t *testing.T, n int, status models.PlanStatus, sl *decimal.Decimal) []*models.OrderPlan {
	t.Helper()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	out := make([]*models.OrderPlan, 0, n)
	for i := 0; i < n; i++ {
		at := base.Add(time.Duration(i) * time.Millisecond)
		plan := &models.OrderPlan{
			ID:             uuid.NewString(),
			UserID:         "bulk",
			Source:         models.SourceManual,
			Symbol:         "BTCUSDT",
			Side:           models.SideBuy,
			Qty:            decimal.RequireFromString("0.001"),
			TIF:            "IOC",
			SLPrice:        sl,
			Status:         models.StatusCreated,
			IdempotencyKey: uuid.NewString(),
			CreatedAt:      at,
			UpdatedAt:      at,
		}
		stored, inserted, err := e.store.UpsertPlan(ctx, plan, &models.ExecEvent{At: at, ToStatus: models.StatusCreated, Event: models.EventCreate})
		require.NoError(t, err)
		require.True(t, inserted)
		if status != models.StatusCreated {
			stored, _, err = e.store.Transition(ctx, repository.Transition{
				PlanID: stored.ID,
				From:   models.StatusCreated,
				To:     status,
				Event:  models.EventAck,
				At:     at.Add(time.Microsecond),
			})
			require.NoError(t, err)
		}
		out = append(out, stored)
	}
	return out
}
