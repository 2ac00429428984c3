package ibweb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"hedgerd/internal/gateway/broker"
	"hedgerd/internal/instrument"
	"hedgerd/internal/logger"
	"hedgerd/internal/market"

	"github.com/tidwall/gjson"
)

// Snapshot field IDs of the Client Portal market data endpoint.
const (
	fieldLast  = "31"
	fieldBid   = "84"
	fieldAsk   = "86"
	fieldClose = "7295"
	fieldDelta = "7308"
)

// Portal adapts the Client Portal REST surface to broker.Broker and
// market.Source. Contract IDs are learned from the position feed and a
// symbol search, cached per instrument key.
type Portal struct {
	client *Client

	conidMu sync.Mutex
	conids  map[string]int64
}

func NewPortal(cfg Config) (*Portal, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Portal{client: client, conids: make(map[string]int64)}, nil
}

// NewPortalWithClient is a hook for tests.
func NewPortalWithClient(client *Client) *Portal {
	return &Portal{client: client, conids: make(map[string]int64)}
}

// Positions returns fresh holdings whose instrument matches key; an
// empty key returns everything.
func (p *Portal) Positions(ctx context.Context, key string) ([]broker.Position, error) {
	account, err := p.account(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := p.client.get(ctx, "/v1/api/portfolio/"+account+"/positions/0", nil)
	if err != nil {
		return nil, err
	}

	var out []broker.Position
	gjson.ParseBytes(payload).ForEach(func(_, row gjson.Result) bool {
		inst, ok := parsePositionRow(row)
		if !ok {
			return true
		}
		qty := int64(row.Get("position").Float())
		if qty == 0 {
			return true
		}
		p.rememberConid(inst.Key(), row.Get("conid").Int())
		if key != "" && inst.Key() != key && inst.UnderlyingSymbol() != key {
			return true
		}
		out = append(out, broker.Position{
			Instrument: inst,
			Quantity:   qty,
			AvgCost:    row.Get("avgCost").Float(),
		})
		return true
	})
	return out, nil
}

func parsePositionRow(row gjson.Result) (instrument.Instrument, bool) {
	switch row.Get("assetClass").String() {
	case "STK":
		sym := row.Get("ticker").String()
		if sym == "" {
			sym = row.Get("contractDesc").String()
		}
		if sym == "" {
			return nil, false
		}
		return instrument.Stock{Symbol: sym}, true
	case "OPT":
		expiry, err := time.Parse("20060102", row.Get("expiry").String())
		if err != nil {
			logger.Debugf("ibweb: skipping option row with bad expiry %q", row.Get("expiry").String())
			return nil, false
		}
		right := instrument.Call
		if strings.EqualFold(row.Get("putOrCall").String(), "P") {
			right = instrument.Put
		}
		mult, _ := strconv.Atoi(row.Get("multiplier").String())
		return instrument.Option{
			Underlying: row.Get("undSym").String(),
			Expiry:     expiry,
			Strike:     row.Get("strike").Float(),
			Right:      right,
			Multiplier: mult,
		}, true
	default:
		return nil, false
	}
}

// ContractGreeks fetches a one-shot market data snapshot. Missing
// fields come back zero; HasDelta reports whether the venue sent one.
func (p *Portal) ContractGreeks(ctx context.Context, inst instrument.Instrument) (broker.Greeks, error) {
	conid, err := p.resolveConid(ctx, inst)
	if err != nil {
		return broker.Greeks{}, err
	}
	query := url.Values{}
	query.Set("conids", strconv.FormatInt(conid, 10))
	query.Set("fields", strings.Join([]string{fieldLast, fieldBid, fieldAsk, fieldClose, fieldDelta}, ","))
	payload, err := p.client.get(ctx, "/v1/api/iserver/marketdata/snapshot", query)
	if err != nil {
		return broker.Greeks{}, err
	}
	row := gjson.ParseBytes(payload).Get("0")
	if !row.Exists() {
		return broker.Greeks{}, nil
	}
	g := broker.Greeks{
		Quote: market.Quote{
			Symbol: inst.UnderlyingSymbol(),
			Last:   row.Get(fieldLast).Float(),
			Bid:    row.Get(fieldBid).Float(),
			Ask:    row.Get(fieldAsk).Float(),
			Close:  row.Get(fieldClose).Float(),
		},
	}
	if d := row.Get(fieldDelta); d.Exists() {
		g.Delta = d.Float()
		g.HasDelta = true
	}
	return g, nil
}

// PendingOrders lists this session's orders for the instrument that
// are still working at the broker.
func (p *Portal) PendingOrders(ctx context.Context, inst instrument.Instrument) ([]broker.Order, error) {
	conid, err := p.resolveConid(ctx, inst)
	if err != nil {
		return nil, err
	}
	payload, err := p.client.get(ctx, "/v1/api/iserver/account/orders", nil)
	if err != nil {
		return nil, err
	}
	var out []broker.Order
	gjson.GetBytes(payload, "orders").ForEach(func(_, row gjson.Result) bool {
		if row.Get("conid").Int() != conid {
			return true
		}
		status := broker.OrderStatus(row.Get("status").String())
		if !status.Working() {
			return true
		}
		side := broker.Buy
		if strings.EqualFold(row.Get("side").String(), "SELL") {
			side = broker.Sell
		}
		out = append(out, broker.Order{
			ID:         row.Get("orderId").String(),
			Instrument: inst,
			Side:       side,
			Quantity:   row.Get("totalSize").Int(),
			Status:     status,
		})
		return true
	})
	return out, nil
}

// SubmitOrder places a day market order through the gateway.
func (p *Portal) SubmitOrder(ctx context.Context, inst instrument.Instrument, side broker.Side, quantity int64) (broker.OrderResult, error) {
	if quantity <= 0 {
		return broker.OrderResult{}, fmt.Errorf("%w: non-positive quantity %d", broker.ErrOperation, quantity)
	}
	conid, err := p.resolveConid(ctx, inst)
	if err != nil {
		return broker.OrderResult{}, err
	}
	account, err := p.account(ctx)
	if err != nil {
		return broker.OrderResult{}, err
	}
	body, err := json.Marshal(map[string]any{
		"orders": []map[string]any{{
			"conid":     conid,
			"orderType": "MKT",
			"side":      string(side),
			"quantity":  quantity,
			"tif":       "DAY",
		}},
	})
	if err != nil {
		return broker.OrderResult{}, fmt.Errorf("%w: encoding order: %v", broker.ErrOperation, err)
	}
	payload, err := p.client.post(ctx, "/v1/api/iserver/account/"+account+"/orders", bytes.NewReader(body))
	if err != nil {
		return broker.OrderResult{}, err
	}
	first := gjson.ParseBytes(payload).Get("0")
	if !first.Exists() {
		return broker.OrderResult{}, fmt.Errorf("%w: empty order response", broker.ErrOperation)
	}
	result := broker.OrderResult{
		OrderID: first.Get("order_id").String(),
		Status:  mapOrderStatus(first.Get("order_status").String()),
	}
	if price := first.Get("avgPrice"); price.Exists() {
		result.AvgFillPrice = price.Float()
	}
	return result, nil
}

func mapOrderStatus(raw string) broker.OrderStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "filled":
		return broker.StatusFilled
	case "submitted":
		return broker.StatusSubmitted
	case "presubmitted":
		return broker.StatusPreSubmitted
	case "pendingsubmit", "pending_submit":
		return broker.StatusPendingSubmit
	case "cancelled", "canceled":
		return broker.StatusCancelled
	default:
		return broker.StatusRejected
	}
}

// FetchBars implements market.Source over the gateway history endpoint.
func (p *Portal) FetchBars(ctx context.Context, symbol string, windowDays int, barSize market.BarSize) ([]market.Bar, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	conid, err := p.resolveConid(ctx, instrument.Stock{Symbol: symbol})
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("conid", strconv.FormatInt(conid, 10))
	query.Set("period", fmt.Sprintf("%dd", windowDays))
	query.Set("bar", portalBar(barSize))
	payload, err := p.client.get(ctx, "/v1/api/iserver/marketdata/history", query)
	if err != nil {
		return nil, err
	}
	var bars []market.Bar
	gjson.GetBytes(payload, "data").ForEach(func(_, row gjson.Result) bool {
		bars = append(bars, market.Bar{
			Time:   row.Get("t").Int() / 1000,
			Open:   row.Get("o").Float(),
			High:   row.Get("h").Float(),
			Low:    row.Get("l").Float(),
			Close:  row.Get("c").Float(),
			Volume: row.Get("v").Float(),
		})
		return true
	})
	return bars, nil
}

func portalBar(barSize market.BarSize) string {
	switch barSize {
	case market.BarHourly:
		return "1h"
	case market.Bar30Minutes:
		return "30min"
	case market.Bar5Minutes:
		return "5min"
	case market.Bar1Minute:
		return "1min"
	default:
		return "1d"
	}
}

// FetchQuote implements market.Source for the underlying symbol.
func (p *Portal) FetchQuote(ctx context.Context, symbol string) (market.Quote, error) {
	g, err := p.ContractGreeks(ctx, instrument.Stock{Symbol: symbol})
	if err != nil {
		return market.Quote{}, err
	}
	q := g.Quote
	q.Symbol = symbol
	return q, nil
}

// OptionChain lists expiries and strikes for an underlying.
func (p *Portal) OptionChain(ctx context.Context, underlying string) (broker.Chain, error) {
	conid, err := p.resolveConid(ctx, instrument.Stock{Symbol: underlying})
	if err != nil {
		return broker.Chain{}, err
	}
	query := url.Values{}
	query.Set("conid", strconv.FormatInt(conid, 10))
	query.Set("sectype", "OPT")
	payload, err := p.client.get(ctx, "/v1/api/iserver/secdef/strikes", query)
	if err != nil {
		return broker.Chain{}, err
	}
	chain := broker.Chain{Underlying: underlying, Multiplier: instrument.DefaultMultiplier}
	gjson.GetBytes(payload, "expirations").ForEach(func(_, v gjson.Result) bool {
		chain.Expiries = append(chain.Expiries, v.String())
		return true
	})
	gjson.GetBytes(payload, "call").ForEach(func(_, v gjson.Result) bool {
		chain.Strikes = append(chain.Strikes, v.Float())
		return true
	})
	if len(chain.Expiries) == 0 || len(chain.Strikes) == 0 {
		return broker.Chain{}, fmt.Errorf("%w: empty option chain for %s", broker.ErrOperation, underlying)
	}
	return chain, nil
}

// account resolves and caches the brokerage account ID.
func (p *Portal) account(ctx context.Context) (string, error) {
	if p.client.accountID != "" {
		return p.client.accountID, nil
	}
	payload, err := p.client.get(ctx, "/v1/api/iserver/accounts", nil)
	if err != nil {
		return "", err
	}
	account := gjson.GetBytes(payload, "selectedAccount").String()
	if account == "" {
		account = gjson.GetBytes(payload, "accounts.0").String()
	}
	if account == "" {
		return "", fmt.Errorf("%w: gateway reported no accounts", broker.ErrOperation)
	}
	p.client.accountID = account
	return account, nil
}

func (p *Portal) rememberConid(key string, conid int64) {
	if conid == 0 {
		return
	}
	p.conidMu.Lock()
	p.conids[key] = conid
	p.conidMu.Unlock()
}

// resolveConid maps an instrument to the gateway's contract ID: cached
// from the position feed when possible, otherwise a symbol search for
// stocks. Options not present in the portfolio cannot be resolved.
func (p *Portal) resolveConid(ctx context.Context, inst instrument.Instrument) (int64, error) {
	key := inst.Key()
	p.conidMu.Lock()
	conid, ok := p.conids[key]
	p.conidMu.Unlock()
	if ok {
		return conid, nil
	}

	stock, isStock := inst.(instrument.Stock)
	if !isStock {
		// Prime the cache from the portfolio, the only source of
		// option conids.
		if _, err := p.Positions(ctx, ""); err != nil {
			return 0, err
		}
		p.conidMu.Lock()
		conid, ok = p.conids[key]
		p.conidMu.Unlock()
		if !ok {
			return 0, fmt.Errorf("%w: no contract id for %s", broker.ErrOperation, key)
		}
		return conid, nil
	}

	query := url.Values{}
	query.Set("symbol", stock.Symbol)
	query.Set("secType", "STK")
	payload, err := p.client.get(ctx, "/v1/api/iserver/secdef/search", query)
	if err != nil {
		return 0, err
	}
	gjson.ParseBytes(payload).ForEach(func(_, row gjson.Result) bool {
		if row.Get("symbol").String() == stock.Symbol {
			conid = row.Get("conid").Int()
			return false
		}
		return true
	})
	if conid == 0 {
		return 0, fmt.Errorf("%w: symbol search found no conid for %s", broker.ErrOperation, stock.Symbol)
	}
	p.rememberConid(key, conid)
	return conid, nil
}
