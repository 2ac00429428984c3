// Package binance supplies spot market history and quotes for crypto
// underlyings. It only feeds volatility calculations; order routing
// stays with the brokerage gateway.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"hedgerd/internal/market"

	"github.com/adshao/go-binance/v2"
)

const maxKlineLimit = 1000

// Source implements market.Source over the go-binance spot client.
type Source struct {
	cfg    Config
	client *binance.Client
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := binance.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Source{cfg: final, client: client}, nil
}

func (s *Source) FetchBars(ctx context.Context, symbol string, windowDays int, barSize market.BarSize) ([]market.Bar, error) {
	symbol = cleanSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if windowDays <= 0 {
		windowDays = 30
	}
	kls, err := s.client.NewKlinesService().
		Symbol(symbol).
		Interval(string(barSize)).
		Limit(klineLimit(windowDays, barSize)).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s: %w", symbol, err)
	}
	out := make([]market.Bar, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Bar{
			Time:   kl.OpenTime / 1000,
			Open:   parseFloat(kl.Open),
			High:   parseFloat(kl.High),
			Low:    parseFloat(kl.Low),
			Close:  parseFloat(kl.Close),
			Volume: parseFloat(kl.Volume),
		})
	}
	return out, nil
}

func (s *Source) FetchQuote(ctx context.Context, symbol string) (market.Quote, error) {
	clean := cleanSymbol(symbol)
	if clean == "" {
		return market.Quote{}, fmt.Errorf("symbol is required")
	}
	stats, err := s.client.NewListPriceChangeStatsService().Symbol(clean).Do(ctx)
	if err != nil {
		return market.Quote{}, fmt.Errorf("binance ticker %s: %w", clean, err)
	}
	if len(stats) == 0 || stats[0] == nil {
		return market.Quote{}, fmt.Errorf("binance ticker %s: empty response", clean)
	}
	st := stats[0]
	return market.Quote{
		Symbol: symbol,
		Bid:    parseFloat(st.BidPrice),
		Ask:    parseFloat(st.AskPrice),
		Last:   parseFloat(st.LastPrice),
		Close:  parseFloat(st.PrevClosePrice),
	}, nil
}

// klineLimit sizes the request to cover the window, capped at the
// exchange maximum of 1000 bars.
func klineLimit(windowDays int, barSize market.BarSize) int {
	limit := windowDays
	if minutes := barSize.Minutes(); minutes > 0 {
		// Crypto trades around the clock.
		limit = windowDays * 24 * 60 / minutes
	}
	if limit < 2 {
		limit = 2
	}
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	return limit
}

// cleanSymbol maps "ETH/USDT" style symbols to the exchange form.
func cleanSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(symbol), "/", ""))
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
