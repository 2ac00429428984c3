package config

// Config is the hedgerd main configuration carrier.
type Config struct {
	App     AppConfig     `toml:"app"`
	Broker  BrokerConfig  `toml:"broker"`
	Binance BinanceConfig `toml:"binance"`
	Calc    CalcConfig    `toml:"calc"`
	Hedge   HedgeConfig   `toml:"hedge"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// BrokerConfig points at the IB Client Portal gateway.
type BrokerConfig struct {
	BaseURL            string `toml:"base_url"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	AccountID          string `toml:"account_id"`
}

// BinanceConfig configures the optional crypto market-data source.
type BinanceConfig struct {
	Enabled        bool   `toml:"enabled"`
	RESTBaseURL    string `toml:"rest_base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	ProxyEnabled   bool   `toml:"proxy_enabled"`
	RESTProxyURL   string `toml:"rest_proxy_url"`
}

// CalcConfig tunes the volatility calculators.
type CalcConfig struct {
	RiskFreeRate float64 `toml:"risk_free_rate"`
	WindowDays   int     `toml:"window_days"`
	BarSize      string  `toml:"bar_size"`
	Parkinson    bool    `toml:"parkinson"`
	NATRPeriod   int     `toml:"natr_period"`
}

// HedgeConfig tunes the hedging core.
type HedgeConfig struct {
	ProfilesPath string `toml:"profiles_path"`
	RingCapacity int    `toml:"ring_capacity"`
	StorePath    string `toml:"store_path"` // empty disables the persistent hedge log
}
