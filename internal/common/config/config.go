package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Upload   UploadConfig   `json:"upload"`
	Cleanup  CleanupConfig  `json:"cleanup"`
	Consul   ConsulConfig   `json:"consul"`
	Jaeger   JaegerConfig   `json:"jaeger"`
	Log      LogConfig      `json:"log"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Name string `json:"name"` // 服务名称
	Host string `json:"host"` // 监听地址
	Port int    `json:"port"` // HTTP端口
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string `json:"host"`     // 数据库地址
	Port     int    `json:"port"`     // 数据库端口
	User     string `json:"user"`     // 用户名
	Password string `json:"password"` // 密码
	Database string `json:"database"` // 数据库名
	MaxIdle  int    `json:"max_idle"` // 最大空闲连接
	MaxOpen  int    `json:"max_open"` // 最大打开连接
}

// UploadConfig 图片上传配置
type UploadConfig struct {
	Dir           string `json:"dir"`             // 上传目录
	MaxFileSize   int64  `json:"max_file_size"`   // 单个文件大小上限（字节）
	MaxWidth      int    `json:"max_width"`       // 压缩后最大宽度
	MaxHeight     int    `json:"max_height"`      // 压缩后最大高度
	Quality       int    `json:"quality"`         // JPEG压缩质量 (1-100)
	RatePerSecond int64  `json:"rate_per_second"` // 上传接口限流（令牌/秒）
	RateBurst     int64  `json:"rate_burst"`      // 上传接口限流桶容量
}

// CleanupConfig 预览残留文件清理配置
type CleanupConfig struct {
	Enabled         bool `json:"enabled"`          // 是否启动后台清理
	IntervalMinutes int  `json:"interval_minutes"` // 清理周期（分钟）
	TTLHours        int  `json:"ttl_hours"`        // 未关联文件保留时长（小时）
}

// ConsulConfig Consul配置（可选的KV配置源）
type ConsulConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// JaegerConfig Jaeger配置
type JaegerConfig struct {
	Endpoint string  `json:"endpoint"`
	Sampler  float64 `json:"sampler"` // 采样率 0.0-1.0
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, file
	Path   string `json:"path"`   // 日志文件路径
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// LoadConfig 加载配置。
// 优先级：环境变量（含 .env） > 配置文件 > 默认值。
func LoadConfig(configPath string) (*Config, error) {
	var err error
	configOnce.Do(func() {
		// .env 仅用于本地开发，不存在时静默跳过
		_ = godotenv.Load()

		globalConfig = defaultConfig()
		if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
			logrus.Warnf("Config file not found: %s, using default config", configPath)
		} else {
			data, readErr := os.ReadFile(configPath)
			if readErr != nil {
				err = fmt.Errorf("failed to read config file: %w", readErr)
				return
			}
			if unmarshalErr := json.Unmarshal(data, globalConfig); unmarshalErr != nil {
				err = fmt.Errorf("failed to parse config file: %w", unmarshalErr)
				return
			}
		}

		applyEnvOverrides(globalConfig)
	})

	if err != nil {
		return nil, err
	}

	return globalConfig, nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	if globalConfig == nil {
		return defaultConfig()
	}
	return globalConfig
}

// applyEnvOverrides 用环境变量覆盖数据库等敏感配置，便于容器部署。
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if p, convErr := strconv.Atoi(v); convErr == nil {
			cfg.Database.Port = p
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		cfg.Upload.Dir = v
	}
}

// defaultConfig 默认配置（开发环境）
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name: "platewatch",
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Password: "root",
			Database: "platewatch",
			MaxIdle:  10,
			MaxOpen:  100,
		},
		Upload: UploadConfig{
			Dir:           "uploads",
			MaxFileSize:   50 * 1024 * 1024,
			MaxWidth:      1200,
			MaxHeight:     900,
			Quality:       85,
			RatePerSecond: 5,
			RateBurst:     10,
		},
		Cleanup: CleanupConfig{
			Enabled:         true,
			IntervalMinutes: 60,
			TTLHours:        24,
		},
		Consul: ConsulConfig{
			Host: "localhost",
			Port: 8500,
		},
		Jaeger: JaegerConfig{
			Endpoint: "localhost:6831",
			Sampler:  1.0,
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "text",
			Output: "stdout",
			Path:   "logs/platewatch.log",
		},
	}
}
