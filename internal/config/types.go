package config

// Config 顶层配置。yaml 文件经 viper 读入，按 toml tag 解码。
type Config struct {
	App      AppConfig      `toml:"app"`
	Trading  TradingConfig  `toml:"trading"`
	Weex     WeexConfig     `toml:"weex"`
	Market   MarketConfig   `toml:"market"`
	AI       AIConfig       `toml:"ai"`
	Notify   NotifyConfig   `toml:"notify"`
	Storage  StorageConfig  `toml:"storage"`
	Schedule ScheduleConfig `toml:"schedule"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
	LLMLog   string `toml:"llm_log_path"`
	LLMDump  bool   `toml:"llm_dump_payload"`
}

// TradingConfig 交易模式与账本参数。
type TradingConfig struct {
	// Mode: simulated（纸面账本）或 live（实盘）。
	Mode           string  `toml:"mode"`
	Symbol         string  `toml:"symbol"`
	InitialBalance float64 `toml:"initial_balance"`
	Leverage       int     `toml:"leverage"`
	LedgerPath     string  `toml:"ledger_path"`
}

type WeexConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	SecretKey      string `toml:"secret_key"`
	Symbol         string `toml:"symbol"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type MarketConfig struct {
	// Binance 行情标的（Weex 流动性行情较弱，指标基于 Binance K 线）。
	Symbol string `toml:"symbol"`
}

type AIConfig struct {
	BaseURL        string  `toml:"base_url"`
	APIKey         string  `toml:"api_key"`
	Model          string  `toml:"model"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	MaxRetries     int     `toml:"max_retries"`
}

type NotifyConfig struct {
	TelegramBotToken string `toml:"telegram_bot_token"`
	TelegramChatID   string `toml:"telegram_chat_id"`
}

type StorageConfig struct {
	DecisionLogPath string `toml:"decision_log_path"`
	TradeDBPath     string `toml:"trade_db_path"`
	ReportDir       string `toml:"report_dir"`
}

type ScheduleConfig struct {
	IntervalMinutes int  `toml:"interval_minutes"`
	OffsetSeconds   int  `toml:"offset_seconds"`
	RunImmediately  bool `toml:"run_immediately"`
}
