package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"hedgerd/internal/calc"
	"hedgerd/internal/config"
	"hedgerd/internal/delta"
	"hedgerd/internal/gateway/binance"
	"hedgerd/internal/gateway/ibweb"
	"hedgerd/internal/hedger"
	"hedgerd/internal/logger"
	"hedgerd/internal/market"
	"hedgerd/internal/profile"
	"hedgerd/internal/store/hedgelog"
	hedgehttp "hedgerd/internal/transport/http"
)

func build(cfg *config.Config) (*App, error) {
	portal, err := ibweb.NewPortal(ibweb.Config{
		BaseURL:            cfg.Broker.BaseURL,
		TimeoutSeconds:     cfg.Broker.TimeoutSeconds,
		InsecureSkipVerify: cfg.Broker.InsecureSkipVerify,
		AccountID:          cfg.Broker.AccountID,
	})
	if err != nil {
		return nil, fmt.Errorf("building broker client: %w", err)
	}

	var source market.Source = portal
	if cfg.Binance.Enabled {
		crypto, err := binance.New(binance.Config{
			RESTBaseURL:  cfg.Binance.RESTBaseURL,
			HTTPTimeout:  time.Duration(cfg.Binance.TimeoutSeconds) * time.Second,
			ProxyEnabled: cfg.Binance.ProxyEnabled,
			RESTProxyURL: cfg.Binance.RESTProxyURL,
		})
		if err != nil {
			return nil, fmt.Errorf("building binance source: %w", err)
		}
		source = &venueSource{equities: portal, crypto: crypto}
	}

	opts := []hedger.Option{
		hedger.WithRing(hedger.NewAlertRing(cfg.Hedge.RingCapacity)),
	}
	var store *hedgelog.Store
	if cfg.Hedge.StorePath != "" {
		store, err = hedgelog.NewStore(cfg.Hedge.StorePath)
		if err != nil {
			return nil, fmt.Errorf("opening hedge log store: %w", err)
		}
		opts = append(opts, hedger.WithSink(store))
	}
	controller := hedger.NewController(portal, delta.NewAggregator(portal), opts...)

	calcService := calc.NewService(portal, portal, source, calc.Config{
		RiskFreeRate: cfg.Calc.RiskFreeRate,
		WindowDays:   cfg.Calc.WindowDays,
		BarSize:      market.BarSize(cfg.Calc.BarSize),
		Parkinson:    cfg.Calc.Parkinson,
		NATRPeriod:   cfg.Calc.NATRPeriod,
	})

	serverCfg := hedgehttp.ServerConfig{
		Addr:       cfg.App.HTTPAddr,
		Controller: controller,
		Calc:       calcService,
	}
	if store != nil {
		serverCfg.History = store
	}
	server, err := hedgehttp.NewServer(serverCfg)
	if err != nil {
		return nil, fmt.Errorf("building http server: %w", err)
	}

	var profiles *profile.Loader
	if _, statErr := os.Stat(cfg.Hedge.ProfilesPath); statErr == nil {
		profiles, err = profile.NewLoader(cfg.Hedge.ProfilesPath)
		if err != nil {
			return nil, fmt.Errorf("loading hedge profiles: %w", err)
		}
	} else {
		logger.Warnf("no hedge profile file at %s, API-only operation", cfg.Hedge.ProfilesPath)
	}

	return &App{
		cfg:        cfg,
		controller: controller,
		server:     server,
		profiles:   profiles,
		store:      store,
	}, nil
}

// venueSource routes symbol history requests by venue: slash-separated
// pairs like ETH/USDT go to the crypto source, everything else to the
// brokerage gateway.
type venueSource struct {
	equities market.Source
	crypto   market.Source
}

func (v *venueSource) pick(symbol string) market.Source {
	if strings.Contains(symbol, "/") || strings.HasSuffix(strings.ToUpper(symbol), "USDT") {
		return v.crypto
	}
	return v.equities
}

func (v *venueSource) FetchBars(ctx context.Context, symbol string, windowDays int, barSize market.BarSize) ([]market.Bar, error) {
	return v.pick(symbol).FetchBars(ctx, symbol, windowDays, barSize)
}

func (v *venueSource) FetchQuote(ctx context.Context, symbol string) (market.Quote, error) {
	return v.pick(symbol).FetchQuote(ctx, symbol)
}
