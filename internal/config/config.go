// Package config 负责配置加载、默认值与校验。
package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取 yaml 配置并按 toml tag 解码。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":8090"
	}
	if c.Trading.Mode == "" {
		c.Trading.Mode = "simulated"
	}
	if c.Trading.Symbol == "" {
		c.Trading.Symbol = "cmt_btcusdt"
	}
	if c.Trading.InitialBalance <= 0 {
		c.Trading.InitialBalance = 1000
	}
	if c.Trading.Leverage <= 0 {
		c.Trading.Leverage = 20
	}
	if c.Trading.LedgerPath == "" {
		c.Trading.LedgerPath = "data/ledger.json"
	}
	if c.Market.Symbol == "" {
		c.Market.Symbol = "BTCUSDT"
	}
	if c.AI.Model == "" {
		c.AI.Model = "deepseek/deepseek-v3.2"
	}
	if c.AI.Temperature == 0 {
		c.AI.Temperature = 0.7
	}
	if c.AI.TimeoutSeconds <= 0 {
		c.AI.TimeoutSeconds = 60
	}
	if c.Storage.DecisionLogPath == "" {
		c.Storage.DecisionLogPath = "data/decisions.db"
	}
	if c.Storage.TradeDBPath == "" {
		c.Storage.TradeDBPath = "data/trades.db"
	}
	if c.Storage.ReportDir == "" {
		c.Storage.ReportDir = "data/reports"
	}
	if c.Schedule.IntervalMinutes <= 0 {
		c.Schedule.IntervalMinutes = 15
	}
	if c.Schedule.OffsetSeconds < 0 {
		c.Schedule.OffsetSeconds = 0
	}
}

func validate(c *Config) error {
	mode := strings.ToLower(strings.TrimSpace(c.Trading.Mode))
	switch mode {
	case "simulated", "live":
		c.Trading.Mode = mode
	default:
		return fmt.Errorf("trading.mode 必须为 simulated 或 live，当前: %q", c.Trading.Mode)
	}
	if mode == "live" {
		if strings.TrimSpace(c.Weex.APIKey) == "" || strings.TrimSpace(c.Weex.SecretKey) == "" {
			return fmt.Errorf("live 模式需要配置 weex.api_key 与 weex.secret_key")
		}
	}
	if strings.TrimSpace(c.AI.APIKey) == "" {
		return fmt.Errorf("ai.api_key 不能为空")
	}
	switch strings.ToLower(c.App.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("app.log_level 无效: %q", c.App.LogLevel)
	}
	return nil
}
