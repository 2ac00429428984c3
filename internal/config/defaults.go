package config

const (
	defaultAppEnv        = "dev"
	defaultAppLogLevel   = "info"
	defaultAppHTTPAddr   = ":9921"
	defaultBrokerBaseURL = "https://localhost:5000"
	defaultBrokerTimeout = 10
	defaultBinanceREST   = "https://api.binance.com"
	defaultBinanceTO     = 15
	defaultCalcWindow    = 30
	defaultCalcBarSize   = "1d"
	defaultCalcRate      = 0.03
	defaultCalcNATR      = 14
	defaultProfilesPath  = "configs/profiles.yaml"
	defaultRingCapacity  = 100
)

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = defaultAppEnv
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = defaultAppLogLevel
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = defaultAppHTTPAddr
	}
	if c.Broker.BaseURL == "" {
		c.Broker.BaseURL = defaultBrokerBaseURL
	}
	if c.Broker.TimeoutSeconds <= 0 {
		c.Broker.TimeoutSeconds = defaultBrokerTimeout
	}
	if c.Binance.RESTBaseURL == "" {
		c.Binance.RESTBaseURL = defaultBinanceREST
	}
	if c.Binance.TimeoutSeconds <= 0 {
		c.Binance.TimeoutSeconds = defaultBinanceTO
	}
	if c.Calc.WindowDays <= 0 {
		c.Calc.WindowDays = defaultCalcWindow
	}
	if c.Calc.BarSize == "" {
		c.Calc.BarSize = defaultCalcBarSize
	}
	if c.Calc.RiskFreeRate == 0 {
		c.Calc.RiskFreeRate = defaultCalcRate
	}
	if c.Calc.NATRPeriod <= 0 {
		c.Calc.NATRPeriod = defaultCalcNATR
	}
	if c.Hedge.ProfilesPath == "" {
		c.Hedge.ProfilesPath = defaultProfilesPath
	}
	if c.Hedge.RingCapacity <= 0 {
		c.Hedge.RingCapacity = defaultRingCapacity
	}
}
