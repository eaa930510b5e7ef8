package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"hypercopy/internal/intent"
)

const (
	MainnetWSURL = "wss://api.hyperliquid.xyz/ws"
	TestnetWSURL = "wss://api.hyperliquid-testnet.xyz/ws"
)

type StreamOptions struct {
	URL               string
	MaxStaleness      time.Duration
	HeartbeatInterval time.Duration
	BackoffMin        time.Duration
	BackoffMax        time.Duration
	Logger            *zap.Logger
}

// Stream keeps an allMids websocket subscription and serves marks from it.
// Marks older than MaxStaleness, or missing, are read from Fallback.
type Stream struct {
	opts     StreamOptions
	fallback PriceOracle

	mu      sync.RWMutex
	mids    map[string]decimal.Decimal
	updated time.Time
}

func NewStream(opts StreamOptions, fallback PriceOracle) *Stream {
	if strings.TrimSpace(opts.URL) == "" {
		opts.URL = MainnetWSURL
	}
	if opts.MaxStaleness == 0 {
		opts.MaxStaleness = 10 * time.Second
	}
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.BackoffMin == 0 {
		opts.BackoffMin = time.Second
	}
	if opts.BackoffMax == 0 {
		opts.BackoffMax = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Stream{opts: opts, fallback: fallback}
}

func (s *Stream) Mark(ctx context.Context, symbol string) (decimal.Decimal, error) {
	coin := intent.BaseAsset(symbol)
	s.mu.RLock()
	px, ok := s.mids[coin]
	fresh := time.Since(s.updated) <= s.opts.MaxStaleness
	s.mu.RUnlock()
	if ok && fresh && px.IsPositive() {
		return px, nil
	}
	if s.fallback == nil {
		return decimal.Zero, fmt.Errorf("%w: no fresh mark for %s", ErrUnsupportedSymbol, symbol)
	}
	return s.fallback.Mark(ctx, symbol)
}

// Apply merges one allMids update into the cache.
func (s *Stream) Apply(mids map[string]decimal.Decimal, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mids == nil {
		s.mids = make(map[string]decimal.Decimal, len(mids))
	}
	for coin, px := range mids {
		s.mids[coin] = px
	}
	s.updated = at
}

// Run connects and reconnects until ctx is done.
func (s *Stream) Run(ctx context.Context) error {
	backoff := s.opts.BackoffMin
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, _, err := websocket.Dial(ctx, s.opts.URL, nil)
		if err != nil {
			s.opts.Logger.Warn("mids ws connect failed", zap.Error(err))
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, s.opts.BackoffMax)
			continue
		}
		conn.SetReadLimit(1 << 20)
		sub := []byte(`{"method":"subscribe","subscription":{"type":"allMids"}}`)
		if err := conn.Write(ctx, websocket.MessageText, sub); err != nil {
			s.opts.Logger.Warn("mids ws subscribe failed", zap.Error(err))
			_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, s.opts.BackoffMax)
			continue
		}
		s.opts.Logger.Info("mids ws subscribed", zap.String("url", s.opts.URL))
		backoff = s.opts.BackoffMin

		err = s.consume(ctx, conn)
		_ = conn.Close(websocket.StatusNormalClosure, "reconnect")
		if err == nil || errors.Is(err, context.Canceled) {
			return err
		}
		if err := sleepWithJitter(ctx, backoff); err != nil {
			return err
		}
		backoff = nextBackoff(backoff, s.opts.BackoffMax)
	}
}

func (s *Stream) consume(ctx context.Context, conn *websocket.Conn) error {
	hbCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	heartbeatErr := make(chan error, 1)
	go func() {
		ticker := time.NewTicker(s.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := conn.Write(hbCtx, websocket.MessageText, []byte(`{"method":"ping"}`)); err != nil {
					heartbeatErr <- err
					return
				}
			}
		}
	}()

	for {
		select {
		case err := <-heartbeatErr:
			return err
		default:
		}
		_, data, err := conn.Read(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.opts.Logger.Warn("mids ws read failed", zap.Error(err))
			}
			return err
		}
		mids, ok := decodeMids(data)
		if ok {
			s.Apply(mids, time.Now())
		}
	}
}

type midsMessage struct {
	Channel string `json:"channel"`
	Data    struct {
		Mids map[string]string `json:"mids"`
	} `json:"data"`
}

func decodeMids(raw []byte) (map[string]decimal.Decimal, bool) {
	var msg midsMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Channel != "allMids" {
		return nil, false
	}
	out := make(map[string]decimal.Decimal, len(msg.Data.Mids))
	for coin, px := range msg.Data.Mids {
		d, err := decimal.NewFromString(strings.TrimSpace(px))
		if err != nil {
			continue
		}
		out[strings.ToUpper(coin)] = d
	}
	return out, true
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithJitter(ctx context.Context, base time.Duration) error {
	if base <= 0 {
		return nil
	}
	jitter := time.Duration(rand.Int63n(int64(base/2) + 1))
	timer := time.NewTimer(base + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
