package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"hypercopy/internal/client/hyperliquid"
)

func TestStaticNormalizesSymbols(t *testing.T) {
	o := NewStatic(map[string]float64{"btc": 100000})
	px, err := o.Mark(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, px.Equal(decimal.NewFromInt(100000)))

	_, err = o.Mark(context.Background(), "DOGE")
	assert.ErrorIs(t, err, ErrUnsupportedSymbol)

	o.Set("eth", decimal.Zero)
	_, err = o.Mark(context.Background(), "ETH")
	assert.Error(t, err)
}

func TestHyperliquidRESTCachesSnapshot(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"BTC":"100000","ETH":"3500.5"}`))
	}))
	defer srv.Close()

	o := NewHyperliquidREST(hyperliquid.NewClient(srv.Client(), srv.URL), time.Minute)
	px, err := o.Mark(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "100000", px.String())

	px, err = o.Mark(context.Background(), "eth")
	require.NoError(t, err)
	assert.Equal(t, "3500.5", px.String())
	assert.Equal(t, int32(1), calls.Load())

	_, err = o.Mark(context.Background(), "SOLUSDT")
	assert.ErrorIs(t, err, ErrUnsupportedSymbol)
}

func TestStreamFallsBackWhenStale(t *testing.T) {
	fallback := NewStatic(map[string]float64{"BTC": 90000})
	s := NewStream(StreamOptions{MaxStaleness: time.Second}, fallback)

	s.Apply(map[string]decimal.Decimal{"BTC": decimal.NewFromInt(100000)}, time.Now())
	px, err := s.Mark(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "100000", px.String())

	s.Apply(map[string]decimal.Decimal{}, time.Now().Add(-time.Minute))
	px, err = s.Mark(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "90000", px.String())
}

func TestDecodeMids(t *testing.T) {
	mids, ok := decodeMids([]byte(`{"channel":"allMids","data":{"mids":{"btc":"1.5","X":"nope"}}}`))
	require.True(t, ok)
	assert.Equal(t, "1.5", mids["BTC"].String())
	_, found := mids["X"]
	assert.False(t, found)

	_, ok = decodeMids([]byte(`{"channel":"pong"}`))
	assert.False(t, ok)
}

func TestStreamRunReceivesMids(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		_, sub, err := conn.Read(r.Context())
		if err != nil || !strings.Contains(string(sub), "allMids") {
			return
		}
		_ = conn.Write(r.Context(), websocket.MessageText, []byte(`{"channel":"allMids","data":{"mids":{"BTC":"101000"}}}`))
		for {
			if _, _, err := conn.Read(context.Background()); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s := NewStream(StreamOptions{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), MaxStaleness: time.Minute}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		px, err := s.Mark(context.Background(), "BTCUSDT")
		return err == nil && px.Equal(decimal.NewFromInt(101000))
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop")
	}
}
