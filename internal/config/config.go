package config

import (
	"errors"
	"time"
)

// Config 应用配置根结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	AI        AIConfig        `mapstructure:"ai"`
	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Upload    UploadConfig    `mapstructure:"upload"`
	History   HistoryConfig   `mapstructure:"history"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Client    ClientConfig    `mapstructure:"client"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AIConfig AI 服务配置
type AIConfig struct {
	Provider string          `mapstructure:"provider"`
	APIKey   string          `mapstructure:"api_key"`
	Model    string          `mapstructure:"model"`
	BaseURL  string          `mapstructure:"base_url"`
	Options  AIOptionsConfig `mapstructure:"options"`
}

// AIOptionsConfig AI 模型参数
type AIOptionsConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	TopP        float64 `mapstructure:"top_p"`
}

// LogConfig 日志配置 (Zerolog)
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	TimeFormat string `mapstructure:"time_format"`
}

// RateLimitConfig 聊天接口限流配置（滑动窗口）
type RateLimitConfig struct {
	Limit  int           `mapstructure:"limit"`  // 窗口内允许的最大请求数
	Window time.Duration `mapstructure:"window"` // 窗口长度
}

// UploadConfig 上传限制配置
type UploadConfig struct {
	MaxPDFBytes int64 `mapstructure:"max_pdf_bytes"` // PDF 最大字节数
}

// HistoryConfig 对话历史持久化配置
type HistoryConfig struct {
	Backend string `mapstructure:"backend"` // file, redis
	Dir     string `mapstructure:"dir"`     // file 后端的存储目录（默认 $HOME/.pomelo）
	Key     string `mapstructure:"key"`     // 存储槽的 key
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ClientConfig 终端聊天客户端配置
type ClientConfig struct {
	ServerURL     string `mapstructure:"server_url"`     // 聊天服务地址
	AssistantName string `mapstructure:"assistant_name"` // 导出时助手的显示名
	Title         string `mapstructure:"title"`          // 导出标题
}

// Validate 验证配置有效性
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Server.Mode] {
		return errors.New("invalid server mode, must be debug/release/test")
	}

	if c.RateLimit.Limit <= 0 {
		return errors.New("rate_limit.limit must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("rate_limit.window must be positive")
	}

	if c.Upload.MaxPDFBytes <= 0 {
		return errors.New("upload.max_pdf_bytes must be positive")
	}

	validBackends := map[string]bool{"file": true, "redis": true}
	if !validBackends[c.History.Backend] {
		return errors.New("invalid history backend, must be file/redis")
	}
	if c.History.Backend == "redis" && c.Redis.Addr == "" {
		return errors.New("history backend is redis but redis.addr is empty")
	}

	return nil
}
