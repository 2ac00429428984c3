package config

import (
	"fmt"
	"strings"

	"hedgerd/internal/market"
)

func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Broker.validate(); err != nil {
		return err
	}
	if err := c.Calc.validate(); err != nil {
		return err
	}
	return nil
}

func (a AppConfig) validate() error {
	switch strings.ToLower(a.LogLevel) {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("app.log_level must be one of debug/info/warn/error, got %q", a.LogLevel)
}

func (b BrokerConfig) validate() error {
	if !strings.HasPrefix(b.BaseURL, "http://") && !strings.HasPrefix(b.BaseURL, "https://") {
		return fmt.Errorf("broker.base_url must be an http(s) URL, got %q", b.BaseURL)
	}
	return nil
}

func (c CalcConfig) validate() error {
	if c.RiskFreeRate < 0 || c.RiskFreeRate > 1 {
		return fmt.Errorf("calc.risk_free_rate must be in [0,1], got %v", c.RiskFreeRate)
	}
	switch market.BarSize(c.BarSize) {
	case market.BarDaily, market.BarHourly, market.Bar30Minutes, market.Bar5Minutes, market.Bar1Minute:
		return nil
	}
	return fmt.Errorf("calc.bar_size must be one of 1d/1h/30m/5m/1m, got %q", c.BarSize)
}
