package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Remote   RemoteConfig
	AI       AIConfig
	Storage  StorageConfig
	Feedback FeedbackConfig
	Log      LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}
	cfg.Server = server

	if cfg.Remote.Timeout <= 0 {
		cfg.Remote.Timeout = 10 * time.Second
	}
	cfg.Remote.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Remote.BaseURL), "/")

	return cfg, nil
}

// HasRemoteAPI 表示是否配置了任意远程情绪/对话后端。进程生命周期内不变。
func (c *Config) HasRemoteAPI() bool {
	return c.Remote.Enabled() || c.AI.Enabled()
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// RemoteConfig 描述 LUMI REST 后端。
type RemoteConfig struct {
	BaseURL string        `env:"LUMI_API_BASE_URL"`
	Timeout time.Duration `env:"LUMI_REMOTE_TIMEOUT" envDefault:"10s"`
}

// Enabled 表示是否配置了 REST 后端。
func (c RemoteConfig) Enabled() bool {
	return c.BaseURL != ""
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string `env:"ARK_API_KEY"`
	AccessKey   string `env:"ARK_ACCESS_KEY"`
	SecretKey   string `env:"ARK_SECRET_KEY"`
	Model       string `env:"Model"`
	BaseURL     string `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region      string `env:"ARK_REGION" envDefault:"cn-beijing"`
	Temperature *float64 `env:"ARK_TEMPERATURE"`
	MaxTokens   *int     `env:"ARK_MAX_TOKENS"`
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY + Model or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

// StorageConfig 描述本地状态的存储后端。
type StorageConfig struct {
	Backend string `env:"LUMI_STORAGE_BACKEND" envDefault:"file"`
	Dir     string `env:"LUMI_STORAGE_DIR" envDefault:"data"`
	Path    string `env:"LUMI_STORAGE_PATH"`
}

// ResolvedPath 返回存储文件路径，未显式配置时按后端类型生成。
func (c StorageConfig) ResolvedPath() string {
	if c.Path != "" {
		return c.Path
	}
	switch strings.ToLower(c.Backend) {
	case "sqlite":
		return filepath.Join(c.Dir, "lumi-state.db")
	default:
		return filepath.Join(c.Dir, "lumi-state.json")
	}
}

// FeedbackConfig 限制反馈上报频率。
type FeedbackConfig struct {
	Rate  float64 `env:"LUMI_FEEDBACK_RATE" envDefault:"2"`
	Burst int     `env:"LUMI_FEEDBACK_BURST" envDefault:"5"`
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
	File   string `env:"LOG_FILE"`
}
