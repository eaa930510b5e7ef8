package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"hypercopy/internal/cache"
	"hypercopy/internal/config"
	"hypercopy/internal/events"
	"hypercopy/internal/intent"
	"hypercopy/internal/models"
	"hypercopy/internal/oracle"
	"hypercopy/internal/repository"
)

var ErrInvalidIntent = errors.New("invalid intent")

// IntentRequest is a manual or signal-derived trading intent. Exactly one
// of Qty and SizeUSD sizes the order; SLPrice wins over SLPct.
type IntentRequest struct {
	UserID     string
	Source     models.Source
	SignalRef  string
	Symbol     string
	Side       string
	Qty        *decimal.Decimal
	SizeUSD    *decimal.Decimal
	Leverage   *decimal.Decimal
	LimitPx    *decimal.Decimal
	TIF        string
	ReduceOnly bool
	SLPrice    *decimal.Decimal
	// SLPct is a fraction of the mark, e.g. 0.02 for 2%.
	SLPct *decimal.Decimal
	Meta  map[string]any
}

type Intake struct {
	Store  repository.PlanStore
	Oracle oracle.PriceOracle
	Dedupe cache.Store
	Config config.IntakeConfig
	Events events.Publisher
	Logger *zap.Logger
	Now    func() time.Time
}

func (s *Intake) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidIntent, fmt.Sprintf(format, args...))
}

// Create turns an intent into a created plan. The boolean is false when
// the intent matched an existing plan, which is returned instead.
func (s *Intake) Create(ctx context.Context, req IntentRequest) (*models.OrderPlan, bool, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, false, invalid("user_id is required")
	}
	symbol := intent.NormalizeSymbol(req.Symbol)
	if symbol == "" {
		return nil, false, invalid("symbol is required")
	}
	side := models.Side(strings.ToLower(strings.TrimSpace(req.Side)))
	if !side.Valid() {
		return nil, false, invalid("side must be buy or sell, got %q", req.Side)
	}
	source := req.Source
	if source == "" {
		source = models.SourceManual
	}
	if !source.Valid() {
		return nil, false, invalid("unknown source %q", req.Source)
	}
	signalRef := strings.TrimSpace(req.SignalRef)
	tif := strings.ToUpper(strings.TrimSpace(req.TIF))
	if tif == "" {
		tif = strings.ToUpper(strings.TrimSpace(s.Config.DefaultTIF))
	}
	if tif == "" {
		tif = "IOC"
	}

	hasQty := req.Qty != nil && req.Qty.IsPositive()
	hasSize := req.SizeUSD != nil && req.SizeUSD.IsPositive()
	if !hasQty && !hasSize {
		return nil, false, invalid("qty or size_usd must be positive")
	}
	if req.SLPct != nil && (!req.SLPct.IsPositive() || req.SLPct.GreaterThanOrEqual(decimal.NewFromInt(1))) {
		return nil, false, invalid("sl_pct must be in (0, 1)")
	}
	if req.SLPrice != nil && !req.SLPrice.IsPositive() {
		return nil, false, invalid("sl_price must be positive")
	}

	meta := map[string]any{}
	for k, v := range req.Meta {
		meta[k] = v
	}

	var mark decimal.Decimal
	needMark := !hasQty || (req.SLPrice == nil && req.SLPct != nil)
	if needMark {
		px, err := s.Oracle.Mark(ctx, symbol)
		if errors.Is(err, oracle.ErrUnsupportedSymbol) {
			return nil, false, invalid("%v", err)
		}
		if err != nil {
			return nil, false, fmt.Errorf("mark for %s: %w", symbol, err)
		}
		if !px.IsPositive() {
			return nil, false, invalid("no usable mark for %s", symbol)
		}
		mark = px
		meta["mark_at_intake"] = mark.String()
	}

	var qty decimal.Decimal
	var leverage *decimal.Decimal
	if hasQty {
		qty = *req.Qty
	} else {
		lev := decimal.NewFromInt(1)
		if req.Leverage != nil {
			if !req.Leverage.IsPositive() {
				return nil, false, invalid("leverage must be positive")
			}
			lev = *req.Leverage
		}
		leverage = &lev
		qty = req.SizeUSD.Mul(lev).Div(mark)
		meta["size_usd"] = req.SizeUSD.String()
	}
	qty = qty.Round(12)
	if !qty.IsPositive() {
		return nil, false, invalid("qty rounds to zero")
	}

	sl := req.SLPrice
	if sl == nil && req.SLPct != nil {
		one := decimal.NewFromInt(1)
		var px decimal.Decimal
		if side == models.SideBuy {
			px = mark.Mul(one.Sub(*req.SLPct))
		} else {
			px = mark.Mul(one.Add(*req.SLPct))
		}
		px = px.Round(10)
		sl = &px
		meta["sl_pct"] = req.SLPct.String()
	}

	key := intent.Key(intent.Fields{
		UserID:    userID,
		Symbol:    symbol,
		Side:      string(side),
		Qty:       qty,
		SLPrice:   sl,
		SignalRef: signalRef,
	})

	now := s.now()
	if signalRef != "" {
		existing, err := s.recent(ctx, userID, signalRef, source, now)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			s.log().Info("intent deduplicated by signal window",
				zap.String("plan_id", existing.ID),
				zap.String("user_id", userID),
				zap.String("signal_ref", signalRef),
			)
			return existing, false, nil
		}
	}

	var metaJSON datatypes.JSON
	if len(meta) > 0 {
		raw, err := json.Marshal(meta)
		if err != nil {
			return nil, false, invalid("meta is not serializable: %v", err)
		}
		metaJSON = raw
	}
	plan := &models.OrderPlan{
		ID:             uuid.NewString(),
		UserID:         userID,
		Source:         source,
		SignalRef:      signalRef,
		Symbol:         symbol,
		Side:           side,
		Qty:            qty,
		LimitPx:        req.LimitPx,
		TIF:            tif,
		ReduceOnly:     req.ReduceOnly,
		SLPrice:        sl,
		Leverage:       leverage,
		Status:         models.StatusCreated,
		IdempotencyKey: key,
		Meta:           metaJSON,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created := &models.ExecEvent{
		At:       now,
		ToStatus: models.StatusCreated,
		Event:    models.EventCreate,
		Reason:   string(source),
		Receipt:  toJSON(map[string]any{"idempotency_key": key}),
	}
	stored, inserted, err := s.Store.UpsertPlan(ctx, plan, created)
	if err != nil {
		return nil, false, fmt.Errorf("upsert plan: %w", err)
	}
	if !inserted {
		s.log().Info("intent deduplicated by key", zap.String("plan_id", stored.ID), zap.String("key", key))
		return stored, false, nil
	}
	s.log().Info("plan created",
		zap.String("plan_id", stored.ID),
		zap.String("user_id", userID),
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.String("qty", qty.String()),
	)
	if signalRef != "" && s.Dedupe != nil {
		if err := s.Dedupe.Set(ctx, dedupeKey(userID, signalRef, source), []byte(stored.ID), s.window()); err != nil {
			s.log().Warn("dedupe cache write failed", zap.Error(err))
		}
	}
	if s.Events != nil {
		s.Events.Publish(ctx, events.NewEnvelope(stored, created))
	}
	return stored, true, nil
}

// recent finds a plan for the same (user, signal, source) inside the dedupe
// window. The cache answers first; the database is authoritative.
func (s *Intake) recent(ctx context.Context, userID, signalRef string, source models.Source, now time.Time) (*models.OrderPlan, error) {
	window := s.window()
	if window <= 0 {
		return nil, nil
	}
	since := now.Add(-window)
	if s.Dedupe != nil {
		raw, ok, err := s.Dedupe.Get(ctx, dedupeKey(userID, signalRef, source))
		if err != nil {
			s.log().Warn("dedupe cache read failed", zap.Error(err))
		} else if ok {
			plan, err := s.Store.GetPlan(ctx, string(raw))
			if err != nil {
				return nil, err
			}
			if plan != nil && !plan.CreatedAt.Before(since) {
				return plan, nil
			}
		}
	}
	return s.Store.FindRecentPlan(ctx, userID, signalRef, source, since)
}

func (s *Intake) window() time.Duration {
	return s.Config.DedupeWindow
}

func (s *Intake) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func dedupeKey(userID, signalRef string, source models.Source) string {
	return "dedupe:" + userID + "|" + signalRef + "|" + string(source)
}
