package ibweb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hedgerd/internal/delta"
	"hedgerd/internal/gateway/broker"
	"hedgerd/internal/instrument"
	"hedgerd/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const positionsJSON = `[
  {"conid": 1001, "assetClass": "STK", "ticker": "QQQ", "position": 200, "avgCost": 480.25},
  {"conid": 2002, "assetClass": "OPT", "undSym": "QQQ", "expiry": "20241101",
   "strike": 498.0, "putOrCall": "P", "multiplier": "100", "position": -2, "avgCost": 5.1},
  {"conid": 3003, "assetClass": "STK", "ticker": "SPY", "position": 0, "avgCost": 0},
  {"conid": 4004, "assetClass": "FUT", "ticker": "ES", "position": 1, "avgCost": 5600}
]`

func newTestPortal(t *testing.T, handler http.Handler) *Portal {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{BaseURL: srv.URL, AccountID: "DU12345"})
	require.NoError(t, err)
	return NewPortalWithClient(client)
}

func TestPositionsParsesAndFilters(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/api/portfolio/DU12345/positions/0", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(positionsJSON))
	})
	p := newTestPortal(t, mux)

	all, err := p.Positions(context.Background(), "")
	require.NoError(t, err)
	// zero-quantity and non-stock/option rows are dropped
	require.Len(t, all, 2)

	assert.Equal(t, "QQQ", all[0].Instrument.Key())
	assert.Equal(t, int64(200), all[0].Quantity)
	assert.InDelta(t, 480.25, all[0].AvgCost, 1e-9)

	opt, ok := all[1].Instrument.(instrument.Option)
	require.True(t, ok)
	assert.Equal(t, "QQQ 241101P00498000", opt.Key())
	assert.Equal(t, instrument.Put, opt.Right)
	assert.Equal(t, int64(-2), all[1].Quantity)

	byKey, err := p.Positions(context.Background(), "QQQ 241101P00498000")
	require.NoError(t, err)
	require.Len(t, byKey, 1)
	assert.Equal(t, int64(-2), byKey[0].Quantity)
}

func TestContractGreeksSnapshot(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/api/portfolio/DU12345/positions/0", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(positionsJSON))
	})
	mux.HandleFunc("/v1/api/iserver/marketdata/snapshot", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2002", r.URL.Query().Get("conids"))
		w.Write([]byte(`[{"conid":2002,"31":5.2,"84":5.1,"86":5.3,"7295":5.0,"7308":-0.42}]`))
	})
	p := newTestPortal(t, mux)

	opt := instrument.Option{
		Underlying: "QQQ",
		Expiry:     time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC),
		Strike:     498,
		Right:      instrument.Put,
	}
	g, err := p.ContractGreeks(context.Background(), opt)
	require.NoError(t, err)
	assert.True(t, g.HasDelta)
	assert.InDelta(t, -0.42, g.Delta, 1e-9)
	assert.InDelta(t, 5.2, g.Quote.Last, 1e-9)
	assert.InDelta(t, 5.1, g.Quote.Bid, 1e-9)
}

func TestContractGreeksMissingDelta(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/api/iserver/secdef/search", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"conid": 1001, "symbol": "QQQ"}]`))
	})
	mux.HandleFunc("/v1/api/iserver/marketdata/snapshot", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"conid":1001,"31":500.1}]`))
	})
	p := newTestPortal(t, mux)

	g, err := p.ContractGreeks(context.Background(), instrument.Stock{Symbol: "QQQ"})
	require.NoError(t, err)
	assert.False(t, g.HasDelta)
	assert.InDelta(t, 500.1, g.Quote.Last, 1e-9)
}

func TestPendingOrdersFiltersWorking(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/api/iserver/secdef/search", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"conid": 1001, "symbol": "QQQ"}]`))
	})
	mux.HandleFunc("/v1/api/iserver/account/orders", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"orders":[
		  {"orderId": 11, "conid": 1001, "status": "Submitted", "side": "BUY", "totalSize": 100},
		  {"orderId": 12, "conid": 1001, "status": "Filled", "side": "SELL", "totalSize": 50},
		  {"orderId": 13, "conid": 9999, "status": "Submitted", "side": "BUY", "totalSize": 10}
		]}`))
	})
	p := newTestPortal(t, mux)

	orders, err := p.PendingOrders(context.Background(), instrument.Stock{Symbol: "QQQ"})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "11", orders[0].ID)
	assert.Equal(t, broker.Buy, orders[0].Side)
	assert.Equal(t, int64(100), orders[0].Quantity)
	assert.True(t, orders[0].Status.Working())
}

func TestSubmitOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/api/iserver/secdef/search", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"conid": 1001, "symbol": "QQQ"}]`))
	})
	mux.HandleFunc("/v1/api/iserver/account/DU12345/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`[{"order_id": "987", "order_status": "Filled", "avgPrice": 500.05}]`))
	})
	p := newTestPortal(t, mux)

	res, err := p.SubmitOrder(context.Background(), instrument.Stock{Symbol: "QQQ"}, broker.Buy, 100)
	require.NoError(t, err)
	assert.Equal(t, "987", res.OrderID)
	assert.Equal(t, broker.StatusFilled, res.Status)
	assert.InDelta(t, 500.05, res.AvgFillPrice, 1e-9)
}

func TestSubmitOrderRejectsBadQuantity(t *testing.T) {
	p := newTestPortal(t, http.NewServeMux())
	_, err := p.SubmitOrder(context.Background(), instrument.Stock{Symbol: "QQQ"}, broker.Buy, 0)
	assert.ErrorIs(t, err, broker.ErrOperation)
}

func TestFetchBars(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/api/iserver/secdef/search", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"conid": 1001, "symbol": "QQQ"}]`))
	})
	mux.HandleFunc("/v1/api/iserver/marketdata/history", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "30d", r.URL.Query().Get("period"))
		assert.Equal(t, "1d", r.URL.Query().Get("bar"))
		w.Write([]byte(`{"data":[
		  {"t": 1730419200000, "o": 495, "h": 500, "l": 494, "c": 498, "v": 1000},
		  {"t": 1730505600000, "o": 498, "h": 503, "l": 497, "c": 501, "v": 1200}
		]}`))
	})
	p := newTestPortal(t, mux)

	bars, err := p.FetchBars(context.Background(), "QQQ", 30, market.BarDaily)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, int64(1730419200), bars[0].Time)
	assert.InDelta(t, 498.0, bars[0].Close, 1e-9)
}

func TestOptionChain(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/api/iserver/secdef/search", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"conid": 1001, "symbol": "QQQ"}]`))
	})
	mux.HandleFunc("/v1/api/iserver/secdef/strikes", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"expirations": ["20241101", "20241108"], "call": [495, 498, 500], "put": [495, 498, 500]}`))
	})
	p := newTestPortal(t, mux)

	chain, err := p.OptionChain(context.Background(), "QQQ")
	require.NoError(t, err)
	assert.Equal(t, []string{"20241101", "20241108"}, chain.Expiries)
	assert.Equal(t, []float64{495, 498, 500}, chain.Strikes)
	assert.Equal(t, instrument.DefaultMultiplier, chain.Multiplier)
}

func TestHTTPErrorWrapsErrOperation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gateway not authenticated", http.StatusUnauthorized)
	})
	p := newTestPortal(t, mux)

	_, err := p.Positions(context.Background(), "")
	assert.ErrorIs(t, err, broker.ErrOperation)
}

func TestAccountResolvedFromGateway(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/api/iserver/accounts", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"accounts": ["DU9999"], "selectedAccount": "DU9999"}`))
	})
	mux.HandleFunc("/v1/api/portfolio/DU9999/positions/0", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	p := NewPortalWithClient(client)

	got, err := p.Positions(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDeltaChainResolvesAtTheMoneyOverPortal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/api/portfolio/DU12345/positions/0", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(positionsJSON))
	})
	mux.HandleFunc("/v1/api/iserver/marketdata/snapshot", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("conids") {
		case "2002": // the put's own snapshot: premium only, greeks unsubscribed
			w.Write([]byte(`[{"conid":2002,"31":5.30,"84":5.25,"86":5.35}]`))
		case "1001": // underlying trading at the strike
			w.Write([]byte(`[{"conid":1001,"31":498.0}]`))
		default:
			http.NotFound(w, r)
		}
	})
	p := newTestPortal(t, mux)

	opt := instrument.Option{
		Underlying: "QQQ",
		Expiry:     time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC),
		Strike:     498,
		Right:      instrument.Put,
		Multiplier: 100,
	}
	// Without live greeks the chain falls to the theoretical curve,
	// which must price moneyness off the underlying, not the premium.
	d, ok := delta.NewDefaultChain(p).PerContract(context.Background(), opt)
	require.True(t, ok)
	assert.InDelta(t, -0.5, d, 1e-9)
}
