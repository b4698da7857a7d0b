package config

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Speech   SpeechConfig   `mapstructure:"speech"`
	Expense  ExpenseConfig  `mapstructure:"expense"`
	Alert    AlertConfig    `mapstructure:"alert"`
	Security SecurityConfig `mapstructure:"security"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       int           `mapstructure:"rate_limit"` // 每个 IP 每分钟请求数，0 表示不限
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	Charset      string `mapstructure:"charset"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// TelegramConfig 机器人配置
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	WebhookSecret  string        `mapstructure:"webhook_secret"`
	APIBaseURL     string        `mapstructure:"api_base_url"`
	AllowedChatIDs []int64       `mapstructure:"allowed_chat_ids"`
	Timeout        time.Duration `mapstructure:"timeout"`
	HandlerTimeout time.Duration `mapstructure:"handler_timeout"` // 单条更新的处理时限，须小于 server.write_timeout
}

// LLMConfig 语言模型配置
type LLMConfig struct {
	Provider        string        `mapstructure:"provider"`
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	Model           string        `mapstructure:"model"`
	CorrectionModel string        `mapstructure:"correction_model"`
	Temperature     float64       `mapstructure:"temperature"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxAttempts     uint          `mapstructure:"max_attempts"`
}

// SpeechConfig 语音识别配置
type SpeechConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	Language          string        `mapstructure:"language"`
	CorrectionEnabled bool          `mapstructure:"correction_enabled"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// ExpenseConfig 记账相关配置
type ExpenseConfig struct {
	HomeCurrency     string        `mapstructure:"home_currency"`
	PendingTTL       time.Duration `mapstructure:"pending_ttl"`
	DefaultOwner     string        `mapstructure:"default_owner"`
	ManualConfidence float64       `mapstructure:"manual_confidence"`
}

// AlertConfig 运维告警配置
type AlertConfig struct {
	Enabled   bool        `mapstructure:"enabled"`
	ChatID    string      `mapstructure:"chat_id"`
	MaxLength int         `mapstructure:"max_length"`
	Email     EmailConfig `mapstructure:"email"`
}

// EmailConfig 邮件配置
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
}

// SecurityConfig 鉴权与加密配置
type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTExpireHours int           `mapstructure:"jwt_expire_hours"`
	JWTExpireTime  time.Duration `mapstructure:"-"`
	EncryptionKey  string        `mapstructure:"encryption_key"`
}

var (
	// GlobalConfig 全局配置实例
	GlobalConfig *Config
)

// LoadConfig 加载配置
// 优先级: 环境变量 > 外部配置文件 > 嵌入的默认配置
// configPath: 可选的外部配置文件路径
func LoadConfig(configPath string) (*Config, error) {
	// .env 仅用于本地开发，不存在时忽略
	if err := godotenv.Load(); err == nil {
		log.Info().Msg("已加载 .env 环境变量")
	}

	v := viper.New()
	v.SetConfigType("yaml")

	// 1. 首先加载嵌入的默认配置
	if err := v.ReadConfig(bytes.NewReader(DefaultConfigYAML)); err != nil {
		return nil, fmt.Errorf("读取内置配置失败: %w", err)
	}

	// 2. 尝试加载外部配置文件（可选，用于覆盖默认配置）
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.MergeInConfig(); err != nil {
			log.Warn().Err(err).Str("path", configPath).Msg("无法读取指定配置文件")
		} else {
			log.Info().Str("path", configPath).Msg("已合并外部配置文件")
		}
	} else {
		externalViper := viper.New()
		externalViper.SetConfigName("config")
		externalViper.SetConfigType("yaml")
		externalViper.AddConfigPath(".")
		externalViper.AddConfigPath("./config")
		externalViper.AddConfigPath("/etc/expensebot")
		externalViper.AddConfigPath("$HOME/.expensebot")

		if err := externalViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(externalViper.AllSettings()); err != nil {
				log.Warn().Err(err).Msg("合并外部配置失败")
			} else {
				log.Info().Str("path", externalViper.ConfigFileUsed()).Msg("已合并外部配置文件")
			}
		}
	}

	// 3. 环境变量覆盖，例如 EXPENSEBOT_TELEGRAM_BOT_TOKEN
	v.SetEnvPrefix("EXPENSEBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.applyDefaults()

	GlobalConfig = &cfg

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Security.JWTExpireHours <= 0 {
		c.Security.JWTExpireHours = 24
	}
	c.Security.JWTExpireTime = time.Duration(c.Security.JWTExpireHours) * time.Hour

	if c.Expense.PendingTTL <= 0 {
		c.Expense.PendingTTL = 10 * time.Minute
	}
	if c.Expense.HomeCurrency == "" {
		c.Expense.HomeCurrency = "MDL"
	}
	c.Expense.HomeCurrency = strings.ToUpper(c.Expense.HomeCurrency)
	if c.Alert.MaxLength <= 0 {
		c.Alert.MaxLength = 3500
	}
	// 语音识别默认复用语言模型的密钥
	if c.Speech.APIKey == "" {
		c.Speech.APIKey = c.LLM.APIKey
	}
	if c.LLM.MaxAttempts == 0 {
		c.LLM.MaxAttempts = 1
	}
	// 未配置时按写超时留出余量，保证响应能在连接关闭前写回
	if c.Telegram.HandlerTimeout <= 0 && c.Server.WriteTimeout > 0 {
		c.Telegram.HandlerTimeout = c.Server.WriteTimeout * 4 / 5
	}
}

// Validate 校验已启用功能所需的配置
func (c *Config) Validate() error {
	var errs []error
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		errs = append(errs, errors.New("telegram.enabled 为 true 但未配置 telegram.bot_token"))
	}
	if w := c.Server.WriteTimeout; w > 0 && c.Telegram.HandlerTimeout >= w {
		errs = append(errs, fmt.Errorf("telegram.handler_timeout (%s) 必须小于 server.write_timeout (%s)", c.Telegram.HandlerTimeout, w))
	}
	if c.LLM.Provider == "gemini" && c.LLM.APIKey == "" {
		errs = append(errs, errors.New("llm.provider 为 gemini 但未配置 llm.api_key"))
	}
	if c.Database.Driver != "mysql" && c.Database.Driver != "postgres" {
		errs = append(errs, fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver))
	}
	if c.Security.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(c.Security.EncryptionKey)
		if err != nil || len(key) != 32 {
			errs = append(errs, errors.New("security.encryption_key 必须是 base64 编码的 32 字节密钥"))
		}
	}
	if c.Alert.Enabled && c.Alert.ChatID == "" && !c.Alert.Email.Enabled {
		errs = append(errs, errors.New("alert.enabled 为 true 但未配置 alert.chat_id 或邮件告警"))
	}
	return errors.Join(errs...)
}

// HandlerBudget 返回实际使用的 webhook 处理时限
// 配置值不小于写超时时退回写超时的 4/5
func (c *Config) HandlerBudget() time.Duration {
	w := c.Server.WriteTimeout
	if w > 0 && (c.Telegram.HandlerTimeout <= 0 || c.Telegram.HandlerTimeout >= w) {
		return w * 4 / 5
	}
	return c.Telegram.HandlerTimeout
}

// MustLoadConfig 加载配置，失败则 panic
func MustLoadConfig(configPath string) *Config {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		panic(fmt.Sprintf("加载配置失败: %v", err))
	}
	return cfg
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	if GlobalConfig == nil {
		panic("配置未初始化，请先调用 LoadConfig")
	}
	return GlobalConfig
}

// PrintConfig 打印当前配置（隐藏敏感信息）
func PrintConfig() {
	if GlobalConfig == nil {
		return
	}
	c := GlobalConfig
	log.Info().
		Str("port", c.Server.Port).
		Str("mode", c.Server.Mode).
		Str("db", fmt.Sprintf("%s://%s@%s:%s/%s", c.Database.Driver, c.Database.Username, c.Database.Host, c.Database.Port, c.Database.DBName)).
		Bool("telegram", c.Telegram.Enabled).
		Str("bot_token", mask(c.Telegram.BotToken)).
		Str("llm", c.LLM.Provider+"/"+c.LLM.Model).
		Str("llm_key", mask(c.LLM.APIKey)).
		Str("speech_model", c.Speech.Model).
		Str("home_currency", c.Expense.HomeCurrency).
		Dur("pending_ttl", c.Expense.PendingTTL).
		Bool("alert", c.Alert.Enabled).
		Bool("encryption", c.Security.EncryptionKey != "").
		Msg("当前配置")
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****" + secret[len(secret)-4:]
}

// IsRelease 是否为生产模式
func IsRelease() bool {
	return GlobalConfig != nil && GlobalConfig.Server.Mode == "release"
}

// SafeErrorMessage 生产环境下不向客户端暴露内部错误详情，避免信息泄露
func SafeErrorMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	if IsRelease() {
		return fallback
	}
	return err.Error()
}
