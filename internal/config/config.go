package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config 应用配置结构
type Config struct {
	System     SystemConfig     `mapstructure:"system"`
	Exchanges  ExchangesConfig  `mapstructure:"exchanges"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Committee  CommitteeConfig  `mapstructure:"committee"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Execution  ExecutionConfig  `mapstructure:"execution"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	Redis      RedisConfig      `mapstructure:"redis"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	Symbol   string `mapstructure:"symbol"`
	LogLevel string `mapstructure:"log_level"`
	LogDir   string `mapstructure:"log_dir"`
}

// ExchangesConfig 交易所行情源配置
type ExchangesConfig struct {
	Primary string        `mapstructure:"primary"` // "binance" 或 "okx"
	Binance BinanceConfig `mapstructure:"binance"`
	OKX     OKXConfig     `mapstructure:"okx"`
}

// BinanceConfig Binance配置
type BinanceConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	APIKey    string `mapstructure:"api_key"`    // 从配置文件或环境变量中读取
	APISecret string `mapstructure:"api_secret"` // 从配置文件或环境变量中读取
}

// OKXConfig OKX配置
type OKXConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	APIKey     string `mapstructure:"api_key"`    // 从配置文件或环境变量中读取
	APISecret  string `mapstructure:"api_secret"` // 从配置文件或环境变量中读取
	Passphrase string `mapstructure:"passphrase"` // 从配置文件或环境变量中读取
}

// LLMConfig LLM网关配置
type LLMConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"` // 从配置文件或环境变量中读取
	Model          string  `mapstructure:"model"`
	Temperature    float64 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// CommitteeConfig 委员会配置
type CommitteeConfig struct {
	MinVotes            int             `mapstructure:"min_votes"`
	AgentTimeoutSeconds int             `mapstructure:"agent_timeout_seconds"`
	Personas            []PersonaConfig `mapstructure:"personas"`
}

// PersonaConfig 分析师角色配置，为空时使用内置角色
type PersonaConfig struct {
	Name         string `mapstructure:"name"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

// SchedulerConfig 决策调度配置
type SchedulerConfig struct {
	DecisionIntervalMinutes int     `mapstructure:"decision_interval_minutes"`
	CooldownMinutes         int     `mapstructure:"cooldown_minutes"`
	MinOpenConfidence       int     `mapstructure:"min_open_confidence"`
	TPMarginPercent         float64 `mapstructure:"tp_margin_percent"`
	SLMarginPercent         float64 `mapstructure:"sl_margin_percent"`
}

// TradingConfig 模拟账本配置
type TradingConfig struct {
	InitialBalance float64 `mapstructure:"initial_balance"`
	TakerFeeRate   float64 `mapstructure:"taker_fee_rate"`
	SlippageBps    float64 `mapstructure:"slippage_bps"`
	MinMarginUSDT  float64 `mapstructure:"min_margin_usdt"`
}

// ExecutionConfig 执行器与执行计划器配置
type ExecutionConfig struct {
	MinBalanceUSDT           float64 `mapstructure:"min_balance_usdt"`
	MaxLeverage              int     `mapstructure:"max_leverage"`
	MaxPositionMarginPercent float64 `mapstructure:"max_position_margin_percent"`
	SmallCutoffUSDT          float64 `mapstructure:"small_cutoff_usdt"`
	MediumCutoffUSDT         float64 `mapstructure:"medium_cutoff_usdt"`
	LargeCutoffUSDT          float64 `mapstructure:"large_cutoff_usdt"`
	MinSlices                int     `mapstructure:"min_slices"`
	MaxSlices                int     `mapstructure:"max_slices"`
	SliceIntervalSeconds     int     `mapstructure:"slice_interval_seconds"`
	TWAPIntervalSeconds      int     `mapstructure:"twap_interval_seconds"`
	MaxSlippagePercent       float64 `mapstructure:"max_slippage_percent"`
}

// MonitorConfig 持仓监控配置
type MonitorConfig struct {
	CheckIntervalSeconds  int     `mapstructure:"check_interval_seconds"`
	EquityHistoryCap      int     `mapstructure:"equity_history_cap"`
	MaintenanceMarginRate float64 `mapstructure:"maintenance_margin_rate"`
	AutoCloseOnTrigger    bool    `mapstructure:"auto_close_on_trigger"`
}

// ResilienceConfig LLM调用的弹性配置
type ResilienceConfig struct {
	MaxRetries             int     `mapstructure:"max_retries"`
	BaseDelaySeconds       float64 `mapstructure:"base_delay_seconds"`
	MaxDelaySeconds        float64 `mapstructure:"max_delay_seconds"`
	ExponentialBase        float64 `mapstructure:"exponential_base"`
	JitterFraction         float64 `mapstructure:"jitter_fraction"`
	FailureThreshold       int     `mapstructure:"failure_threshold"`
	SuccessThreshold       int     `mapstructure:"success_threshold"`
	RecoveryTimeoutSeconds int     `mapstructure:"recovery_timeout_seconds"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Addr 拼接Redis连接地址
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// DecisionInterval 决策间隔
func (s SchedulerConfig) DecisionInterval() time.Duration {
	return time.Duration(s.DecisionIntervalMinutes) * time.Minute
}

// Cooldown 决策冷却时长
func (s SchedulerConfig) Cooldown() time.Duration {
	return time.Duration(s.CooldownMinutes) * time.Minute
}

// LoadConfig 从文件加载配置
func LoadConfig(filePath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filePath)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 绑定环境变量，前缀如 QUORUM_LLM_API_KEY
	v.AutomaticEnv()
	v.SetEnvPrefix("QUORUM")

	// 特定环境变量映射，如果存在这些环境变量则优先使用
	if llmApiKey := os.Getenv("LLM_API_KEY"); llmApiKey != "" {
		v.Set("llm.api_key", llmApiKey)
	}
	if binanceApiKey := os.Getenv("BINANCE_API_KEY"); binanceApiKey != "" {
		v.Set("exchanges.binance.api_key", binanceApiKey)
	}
	if binanceApiSecret := os.Getenv("BINANCE_API_SECRET"); binanceApiSecret != "" {
		v.Set("exchanges.binance.api_secret", binanceApiSecret)
	}
	if okxApiKey := os.Getenv("OKX_API_KEY"); okxApiKey != "" {
		v.Set("exchanges.okx.api_key", okxApiKey)
	}
	if okxApiSecret := os.Getenv("OKX_API_SECRET"); okxApiSecret != "" {
		v.Set("exchanges.okx.api_secret", okxApiSecret)
	}
	if okxPassphrase := os.Getenv("OKX_PASSPHRASE"); okxPassphrase != "" {
		v.Set("exchanges.okx.passphrase", okxPassphrase)
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		v.Set("redis.password", redisPassword)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &config, nil
}

// LoadConfigFromYAML 不经viper直接解析YAML，供测试与工具使用
func LoadConfigFromYAML(filePath string) (*Config, error) {
	yamlFile, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &config, nil
}

// setDefaults 配置项默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("system.symbol", "BTC/USDT")
	v.SetDefault("system.log_level", "info")
	v.SetDefault("system.log_dir", "./logs")

	v.SetDefault("exchanges.primary", "binance")
	v.SetDefault("exchanges.binance.enabled", true)

	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout_seconds", 60)

	v.SetDefault("committee.min_votes", 3)
	v.SetDefault("committee.agent_timeout_seconds", 90)

	v.SetDefault("scheduler.decision_interval_minutes", 15)
	v.SetDefault("scheduler.cooldown_minutes", 5)
	v.SetDefault("scheduler.min_open_confidence", 55)
	v.SetDefault("scheduler.tp_margin_percent", 10.0)
	v.SetDefault("scheduler.sl_margin_percent", 5.0)

	v.SetDefault("trading.initial_balance", 10000.0)
	v.SetDefault("trading.taker_fee_rate", 0.0005)
	v.SetDefault("trading.slippage_bps", 2.0)
	v.SetDefault("trading.min_margin_usdt", 10.0)

	v.SetDefault("execution.min_balance_usdt", 50.0)
	v.SetDefault("execution.max_leverage", 20)
	v.SetDefault("execution.max_position_margin_percent", 80.0)
	v.SetDefault("execution.small_cutoff_usdt", 1000.0)
	v.SetDefault("execution.medium_cutoff_usdt", 5000.0)
	v.SetDefault("execution.large_cutoff_usdt", 20000.0)
	v.SetDefault("execution.min_slices", 2)
	v.SetDefault("execution.max_slices", 10)
	v.SetDefault("execution.slice_interval_seconds", 2)
	v.SetDefault("execution.twap_interval_seconds", 30)
	v.SetDefault("execution.max_slippage_percent", 0.5)

	v.SetDefault("monitor.check_interval_seconds", 15)
	v.SetDefault("monitor.equity_history_cap", 1000)
	v.SetDefault("monitor.maintenance_margin_rate", 0.005)
	v.SetDefault("monitor.auto_close_on_trigger", true)

	v.SetDefault("resilience.max_retries", 3)
	v.SetDefault("resilience.base_delay_seconds", 1.0)
	v.SetDefault("resilience.max_delay_seconds", 30.0)
	v.SetDefault("resilience.exponential_base", 2.0)
	v.SetDefault("resilience.jitter_fraction", 0.2)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.success_threshold", 2)
	v.SetDefault("resilience.recovery_timeout_seconds", 60)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "quorum:")
}

// validateConfig 验证配置有效性
func validateConfig(config *Config) error {
	if config.System.Symbol == "" {
		return fmt.Errorf("交易对不能为空")
	}

	if !config.Exchanges.Binance.Enabled && !config.Exchanges.OKX.Enabled {
		return fmt.Errorf("至少需要启用一个行情源")
	}
	switch config.Exchanges.Primary {
	case "binance":
		if !config.Exchanges.Binance.Enabled {
			return fmt.Errorf("主行情源binance未启用")
		}
	case "okx":
		if !config.Exchanges.OKX.Enabled {
			return fmt.Errorf("主行情源okx未启用")
		}
	default:
		return fmt.Errorf("无效的主行情源: %s", config.Exchanges.Primary)
	}

	if config.LLM.BaseURL == "" {
		return fmt.Errorf("LLM网关地址不能为空")
	}
	if config.LLM.Model == "" {
		return fmt.Errorf("LLM模型名不能为空")
	}

	if config.Trading.InitialBalance <= 0 {
		return fmt.Errorf("初始余额必须大于0")
	}
	if config.Execution.MaxLeverage <= 0 {
		return fmt.Errorf("最大杠杆倍数必须大于0")
	}
	if config.Execution.MaxPositionMarginPercent <= 0 || config.Execution.MaxPositionMarginPercent > 100 {
		return fmt.Errorf("单仓保证金上限必须在0到100之间")
	}
	if config.Scheduler.DecisionIntervalMinutes <= 0 {
		return fmt.Errorf("决策间隔必须大于0")
	}
	if config.Scheduler.TPMarginPercent <= 0 || config.Scheduler.SLMarginPercent <= 0 {
		return fmt.Errorf("止盈止损百分比必须大于0")
	}

	if config.Redis.Enabled {
		if config.Redis.Host == "" {
			return fmt.Errorf("Redis主机不能为空")
		}
		if config.Redis.Port <= 0 || config.Redis.Port > 65535 {
			return fmt.Errorf("无效的Redis端口")
		}
	}

	return nil
}
