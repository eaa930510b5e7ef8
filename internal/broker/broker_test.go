package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	gohl "github.com/sonirico/go-hyperliquid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypercopy/internal/cache"
	"hypercopy/internal/client/hyperliquid"
	"hypercopy/internal/models"
	"hypercopy/internal/oracle"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSimFillsAtMark(t *testing.T) {
	ctx := context.Background()
	sim := NewSim(oracle.NewStatic(map[string]float64{"BTC": 100000}), cache.NewMemoryStore())

	ack, err := sim.PlaceMarket(ctx, OrderRequest{Symbol: "BTCUSDT", Side: models.SideBuy, Qty: decimal.RequireFromString("0.001"), ClientOrderID: "p1"})
	require.NoError(t, err)
	require.True(t, ack.Accepted())
	assert.Equal(t, "sim-p1", ack.BrokerOrderID)
	assert.Equal(t, "100000", ack.Detail["px"])
	assert.Equal(t, true, ack.Detail["sim"])

	st, err := sim.Query(ctx, QueryRequest{Symbol: "BTCUSDT", ClientOrderID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, VenueOpen, st.Status)

	_, err = sim.PlaceMarket(ctx, OrderRequest{Symbol: "BTCUSDT", Side: models.SideSell, Qty: decimal.RequireFromString("0.001"), ReduceOnly: true, ClientOrderID: "p1-sl"})
	require.NoError(t, err)
	st, err = sim.Query(ctx, QueryRequest{ClientOrderID: "p1-sl"})
	require.NoError(t, err)
	assert.Equal(t, VenueFilled, st.Status)

	res, err := sim.Cancel(ctx, CancelRequest{ClientOrderID: "p1"})
	require.NoError(t, err)
	assert.True(t, res.Canceled)
	st, _ = sim.Query(ctx, QueryRequest{ClientOrderID: "p1"})
	assert.Equal(t, VenueCanceled, st.Status)

	st, err = sim.Query(ctx, QueryRequest{ClientOrderID: "nope"})
	require.NoError(t, err)
	assert.Equal(t, VenueUnknown, st.Status)
}

func TestSimRejectsAsValues(t *testing.T) {
	sim := NewSim(oracle.NewStatic(map[string]float64{"BTC": 100000}), nil)
	ack, err := sim.PlaceMarket(context.Background(), OrderRequest{Symbol: "BTC", Side: models.SideBuy, Qty: decimal.Zero, ClientOrderID: "z"})
	require.NoError(t, err)
	assert.Equal(t, AckRejected, ack.Status)

	ack, err = sim.PlaceMarket(context.Background(), OrderRequest{Symbol: "DOGE", Side: models.SideBuy, Qty: decimal.NewFromInt(1), ClientOrderID: "d"})
	require.NoError(t, err)
	assert.Equal(t, AckRejected, ack.Status)
	assert.NotEmpty(t, ack.Detail["reason"])
}

type venue struct {
	exchangeReply string
	statusReply   string
	lastAction    map[string]any
}

func (v *venue) server(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch r.URL.Path {
		case "/info":
			switch body["type"] {
			case "meta":
				_, _ = w.Write([]byte(`{"universe":[{"name":"BTC","szDecimals":5},{"name":"ETH","szDecimals":4}]}`))
			case "orderStatus":
				_, _ = w.Write([]byte(v.statusReply))
			default:
				w.WriteHeader(http.StatusBadRequest)
			}
		case "/exchange":
			v.lastAction, _ = body["action"].(map[string]any)
			_, _ = w.Write([]byte(v.exchangeReply))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
}

func newHL(t *testing.T, srv *httptest.Server, opts HyperliquidOptions) *Hyperliquid {
	signer, err := hyperliquid.NewSigner(testKey)
	require.NoError(t, err)
	client := hyperliquid.NewClient(srv.Client(), srv.URL)
	return &Hyperliquid{
		Client: client,
		Trader: &hyperliquid.Trader{Client: client, Signer: signer},
		Oracle: oracle.NewStatic(map[string]float64{"BTC": 100000, "ETH": 3500}),
		Opts:   opts,
	}
}

func TestHyperliquidPlaceMarketFilled(t *testing.T) {
	v := &venue{exchangeReply: `{"status":"ok","response":{"type":"order","data":{"statuses":[{"filled":{"totalSz":"0.001","avgPx":"100020","oid":42}}]}}}`}
	srv := v.server(t)
	defer srv.Close()
	hl := newHL(t, srv, HyperliquidOptions{BuilderAddress: "0xABCDEF0000000000000000000000000000000001", BuilderFeeBps: 5, SlippageBps: 50})

	ack, err := hl.PlaceMarket(context.Background(), OrderRequest{
		Symbol: "BTCUSDT", Side: models.SideBuy, Qty: decimal.RequireFromString("0.001"), TIF: "IOC",
		ClientOrderID: "2b0f6a4e-9d1c-4c55-8a6b-0f3e0d1b7c9a",
	})
	require.NoError(t, err)
	require.True(t, ack.Accepted())
	assert.Equal(t, "42", ack.BrokerOrderID)

	orders := v.lastAction["orders"].([]any)
	o := orders[0].(map[string]any)
	assert.Equal(t, "100500", o["p"])
	assert.Equal(t, "0.001", o["s"])
	assert.Equal(t, true, o["b"])
	assert.Equal(t, "0x2b0f6a4e9d1c4c558a6b0f3e0d1b7c9a", o["c"])
	assert.Equal(t, map[string]any{"limit": map[string]any{"tif": "Ioc"}}, o["t"])
	builder := v.lastAction["builder"].(map[string]any)
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", builder["b"])
	assert.Equal(t, float64(50), builder["f"])
}

func TestHyperliquidPlaceMarketRejections(t *testing.T) {
	v := &venue{exchangeReply: `{"status":"ok","response":{"type":"order","data":{"statuses":[{"error":"Insufficient margin to place order."}]}}}`}
	srv := v.server(t)
	defer srv.Close()
	hl := newHL(t, srv, HyperliquidOptions{SlippageBps: 50})

	ack, err := hl.PlaceMarket(context.Background(), OrderRequest{Symbol: "ETH", Side: models.SideSell, Qty: decimal.NewFromInt(1), ClientOrderID: "x"})
	require.NoError(t, err)
	assert.Equal(t, AckRejected, ack.Status)
	assert.Nil(t, v.lastAction["builder"])
	o := v.lastAction["orders"].([]any)[0].(map[string]any)
	assert.Equal(t, "3482.5", o["p"])

	v.exchangeReply = `{"status":"err","response":"User or API Wallet does not exist."}`
	ack, err = hl.PlaceMarket(context.Background(), OrderRequest{Symbol: "ETH", Side: models.SideSell, Qty: decimal.NewFromInt(1), ClientOrderID: "y"})
	require.NoError(t, err)
	assert.Equal(t, AckRejected, ack.Status)
	assert.Equal(t, "User or API Wallet does not exist.", ack.Detail["reason"])

	ack, err = hl.PlaceMarket(context.Background(), OrderRequest{Symbol: "BTC", Side: models.SideBuy, Qty: decimal.RequireFromString("0.000001"), ClientOrderID: "tiny"})
	require.NoError(t, err)
	assert.Equal(t, AckRejected, ack.Status)

	ack, err = hl.PlaceMarket(context.Background(), OrderRequest{Symbol: "NOPE", Side: models.SideBuy, Qty: decimal.NewFromInt(1), ClientOrderID: "n"})
	require.NoError(t, err)
	assert.Equal(t, AckRejected, ack.Status)

	v.exchangeReply = `not json`
	_, err = hl.PlaceMarket(context.Background(), OrderRequest{Symbol: "ETH", Side: models.SideSell, Qty: decimal.NewFromInt(1), ClientOrderID: "m"})
	assert.Error(t, err)
}

func TestHyperliquidQueryAndCancel(t *testing.T) {
	v := &venue{
		statusReply:   `{"status":"order","order":{"order":{"coin":"BTC","side":"B","limitPx":"100500","sz":"0.0005","origSz":"0.001","oid":7,"cloid":"0x01"},"status":"open","statusTimestamp":1}}`,
		exchangeReply: `{"status":"ok","response":{"type":"cancel","data":{"statuses":["success"]}}}`,
	}
	srv := v.server(t)
	defer srv.Close()
	hl := newHL(t, srv, HyperliquidOptions{AccountAddress: "0x1111111111111111111111111111111111111111"})

	st, err := hl.Query(context.Background(), QueryRequest{Symbol: "BTCUSDT", ClientOrderID: "p"})
	require.NoError(t, err)
	assert.Equal(t, VenuePartiallyFilled, st.Status)
	assert.Equal(t, "7", st.BrokerOrderID)
	assert.Equal(t, "0.0005", st.FilledQty.String())

	v.statusReply = `{"status":"unknownOid"}`
	st, err = hl.Query(context.Background(), QueryRequest{Symbol: "BTCUSDT", ClientOrderID: "p"})
	require.NoError(t, err)
	assert.Equal(t, VenueUnknown, st.Status)

	res, err := hl.Cancel(context.Background(), CancelRequest{Symbol: "BTCUSDT", ClientOrderID: "p"})
	require.NoError(t, err)
	assert.True(t, res.Canceled)
	assert.Equal(t, "cancelByCloid", v.lastAction["type"])

	v.exchangeReply = `{"status":"ok","response":{"type":"cancel","data":{"statuses":[{"error":"Order was never placed, already canceled, or filled."}]}}}`
	res, err = hl.Cancel(context.Background(), CancelRequest{Symbol: "BTCUSDT", ClientOrderID: "p"})
	require.NoError(t, err)
	assert.False(t, res.Canceled)
}

func TestHyperliquidQueryRejectsMalformedSizes(t *testing.T) {
	v := &venue{statusReply: `{"status":"order","order":{"order":{"coin":"BTC","side":"B","limitPx":"100500","sz":"half","origSz":"0.001","oid":7,"cloid":"0x01"},"status":"open","statusTimestamp":1}}`}
	srv := v.server(t)
	defer srv.Close()
	hl := newHL(t, srv, HyperliquidOptions{AccountAddress: "0x1111111111111111111111111111111111111111"})

	st, err := hl.Query(context.Background(), QueryRequest{Symbol: "BTCUSDT", ClientOrderID: "p"})
	require.ErrorContains(t, err, `malformed sz "half"`)
	assert.Nil(t, st)

	v.statusReply = `{"status":"order","order":{"order":{"coin":"BTC","side":"B","limitPx":"100500","sz":"0","origSz":"","oid":7,"cloid":"0x01"},"status":"filled","statusTimestamp":1}}`
	_, err = hl.Query(context.Background(), QueryRequest{Symbol: "BTCUSDT", ClientOrderID: "p"})
	require.ErrorContains(t, err, "malformed origSz")
}

func TestHyperliquidCancelUnknownCoinFails(t *testing.T) {
	v := &venue{exchangeReply: `{"status":"ok","response":{"type":"cancel","data":{"statuses":["success"]}}}`}
	srv := v.server(t)
	defer srv.Close()
	hl := newHL(t, srv, HyperliquidOptions{})

	_, err := hl.Cancel(context.Background(), CancelRequest{Symbol: "NOPEUSDT", ClientOrderID: "p"})
	require.ErrorIs(t, err, hyperliquid.ErrUnknownAsset)
	assert.Nil(t, v.lastAction)
}

func TestMapVenueStatus(t *testing.T) {
	one := decimal.NewFromInt(1)
	half := decimal.RequireFromString("0.5")
	assert.Equal(t, VenueOpen, mapVenueStatus(gohl.OrderStatusValueOpen, one, one))
	assert.Equal(t, VenuePartiallyFilled, mapVenueStatus(gohl.OrderStatusValueOpen, half, one))
	assert.Equal(t, VenueOpen, mapVenueStatus(gohl.OrderStatusValueTriggered, one, one))
	assert.Equal(t, VenueFilled, mapVenueStatus(gohl.OrderStatusValueFilled, decimal.Zero, one))
	assert.Equal(t, VenueCanceled, mapVenueStatus(gohl.OrderStatusValueCanceled, one, one))
	assert.Equal(t, VenueRejected, mapVenueStatus(gohl.OrderStatusValueRejected, one, one))
	assert.Equal(t, VenueCanceled, mapVenueStatus("marginCanceled", one, one))
	assert.Equal(t, VenueRejected, mapVenueStatus("minTradeNtlRejected", one, one))
	assert.Equal(t, VenueUnknown, mapVenueStatus("scheduledCancel", one, one))
}
