package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	VectorDB VectorDBConfig `mapstructure:"vectordb"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Database DatabaseConfig `mapstructure:"database"`
	Document DocumentConfig `mapstructure:"document"`
	Search   SearchConfig   `mapstructure:"search"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`          // 服务器主机
	Port         int           `mapstructure:"port"`          // 服务器端口
	Mode         string        `mapstructure:"mode"`          // gin运行模式：debug 或 release
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`  // 读取超时
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // 写入超时
	RateLimit    float64       `mapstructure:"rate_limit"`    // 每个IP每秒请求数，0表示不限流
	RateBurst    int           `mapstructure:"rate_burst"`    // 突发请求数
	MaxUploadMB  int64         `mapstructure:"max_upload_mb"` // 上传文件大小上限
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`        // 日志级别
	File       string `mapstructure:"file"`         // 日志文件，为空时只输出到标准输出
	MaxSizeMB  int    `mapstructure:"max_size_mb"`  // 单个文件大小上限
	MaxBackups int    `mapstructure:"max_backups"`  // 保留的旧文件数
	MaxAgeDays int    `mapstructure:"max_age_days"` // 旧文件保留天数
}

// StorageConfig 存储配置
type StorageConfig struct {
	Type      string `mapstructure:"type"`     // 存储类型：local 或 minio
	Path      string `mapstructure:"path"`     // 本地存储路径
	Bucket    string `mapstructure:"bucket"`   // MinIO桶名称
	Endpoint  string `mapstructure:"endpoint"` // MinIO端点
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"` // 是否使用SSL
}

// VectorDBConfig 索引存储配置
type VectorDBConfig struct {
	Type     string `mapstructure:"type"`     // memory, file, faiss, qdrant, pgvector
	Path     string `mapstructure:"path"`     // file 和 faiss 的本地目录
	URL      string `mapstructure:"url"`      // qdrant 地址或 postgres 连接串
	APIKey   string `mapstructure:"api_key"`  // qdrant 密钥
	Prefix   string `mapstructure:"prefix"`   // 集合或表名前缀
	Distance string `mapstructure:"distance"` // 距离度量方式：cosine, l2, dot
}

// LLMConfig 大语言模型配置
type LLMConfig struct {
	Provider      string        `mapstructure:"provider"`       // groq, openai, gemini, ollama
	ConciseModel  string        `mapstructure:"concise_model"`  // 简洁模式模型
	DetailedModel string        `mapstructure:"detailed_model"` // 详细模式模型
	AlertModel    string        `mapstructure:"alert_model"`    // 资讯模型
	APIKey        string        `mapstructure:"api_key"`        // API密钥，为空时按提供方读取环境变量
	Endpoint      string        `mapstructure:"endpoint"`       // API端点
	MaxTokens     int           `mapstructure:"max_tokens"`     // 最大生成token数量
	Temperature   float32       `mapstructure:"temperature"`    // 采样温度
	Timeout       time.Duration `mapstructure:"timeout"`        // 请求超时
}

// EmbedConfig 向量嵌入模型配置
type EmbedConfig struct {
	Provider   string        `mapstructure:"provider"`   // cohere, openai, gemini, huggingface, ollama, hashing
	Model      string        `mapstructure:"model"`      // 模型名称，为空时使用提供方的默认模型
	APIKey     string        `mapstructure:"api_key"`    // API密钥，为空时按提供方读取环境变量
	Endpoint   string        `mapstructure:"endpoint"`   // API端点
	BatchSize  int           `mapstructure:"batch_size"` // 批处理大小
	Workers    int           `mapstructure:"workers"`    // 并发批次数
	Dimensions int           `mapstructure:"dimensions"` // 向量维度
	Timeout    time.Duration `mapstructure:"timeout"`    // 请求超时
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Enable    bool   `mapstructure:"enable"`    // 是否启用缓存
	Type      string `mapstructure:"type"`      // 缓存类型：memory 或 redis
	Address   string `mapstructure:"address"`   // Redis地址
	Password  string `mapstructure:"password"`  // Redis密码
	DB        int    `mapstructure:"db"`        // Redis数据库
	Namespace string `mapstructure:"namespace"` // 键前缀
	TTL       int    `mapstructure:"ttl"`       // 缓存TTL（秒）
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // 数据库类型，目前只支持 sqlite
	DSN  string `mapstructure:"dsn"`  // 数据源名称
}

// DocumentConfig 文档切分配置
type DocumentConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`    // 窗口字符数
	ChunkOverlap int `mapstructure:"chunk_overlap"` // 窗口重叠字符数
}

// SearchConfig 检索配置
type SearchConfig struct {
	TopK     int     `mapstructure:"top_k"`     // 检索片段数
	MinScore float32 `mapstructure:"min_score"` // 基于检索回答的最低相似度
}

// AlertsConfig 资讯配置
type AlertsConfig struct {
	TTL time.Duration `mapstructure:"ttl"` // 资讯缓存时间
}

// 各提供方默认读取的环境变量
var providerKeyEnv = map[string]string{
	"groq":        "GROQ_API_KEY",
	"openai":      "OPENAI_API_KEY",
	"gemini":      "GEMINI_API_KEY",
	"cohere":      "COHERE_API_KEY",
	"huggingface": "HF_API_KEY",
}

// Load 从 .env、配置文件和环境变量加载配置
// configPath 为空或文件不存在时使用默认值
func Load(configPath string) (*Config, error) {
	// .env 不存在不是错误
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// 支持环境变量覆盖，如 SERVER_PORT、LLM_PROVIDER
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	processEnvironmentVariables(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// processEnvironmentVariables 展开 ${VAR} 并补全各提供方的密钥
func processEnvironmentVariables(cfg *Config) {
	cfg.LLM.APIKey = expand(cfg.LLM.APIKey)
	cfg.Embed.APIKey = expand(cfg.Embed.APIKey)
	cfg.VectorDB.URL = expand(cfg.VectorDB.URL)
	cfg.VectorDB.APIKey = expand(cfg.VectorDB.APIKey)
	cfg.Storage.AccessKey = expand(cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = expand(cfg.Storage.SecretKey)
	cfg.Cache.Password = expand(cfg.Cache.Password)

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv(providerKeyEnv[cfg.LLM.Provider])
	}
	if cfg.Embed.APIKey == "" {
		cfg.Embed.APIKey = os.Getenv(providerKeyEnv[cfg.Embed.Provider])
	}
	if model := os.Getenv("GROQ_MODEL_NAME"); model != "" && cfg.LLM.Provider == "groq" {
		cfg.LLM.ConciseModel = model
	}
}

// expand 只处理整体为 ${VAR} 形式的值
func expand(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		return os.Getenv(value[2 : len(value)-1])
	}
	return value
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Document.ChunkSize <= 0 {
		return fmt.Errorf("document.chunk_size must be positive, got %d", c.Document.ChunkSize)
	}
	if c.Document.ChunkOverlap < 0 || c.Document.ChunkOverlap >= c.Document.ChunkSize {
		return fmt.Errorf("document.chunk_overlap must be in [0, %d), got %d", c.Document.ChunkSize, c.Document.ChunkOverlap)
	}
	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be positive, got %d", c.Search.TopK)
	}
	switch strings.ToLower(c.VectorDB.Distance) {
	case "", "cosine", "dot", "l2":
	default:
		return fmt.Errorf("vectordb.distance must be cosine, dot or l2, got %q", c.VectorDB.Distance)
	}
	if c.Cache.Enable && c.Cache.Type == "redis" && c.Cache.Address == "" {
		return errors.New("cache.address is required for redis cache")
	}
	return nil
}

// Addr 服务监听地址
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "60s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.rate_limit", 5)
	v.SetDefault("server.rate_burst", 10)
	v.SetDefault("server.max_upload_mb", 32)

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	// 存储默认配置
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./data/uploads")
	v.SetDefault("storage.bucket", "esg-reports")
	v.SetDefault("storage.use_ssl", false)

	// 索引存储默认配置
	v.SetDefault("vectordb.type", "file")
	v.SetDefault("vectordb.path", "./data/indexes")
	v.SetDefault("vectordb.prefix", "esg_")
	v.SetDefault("vectordb.distance", "cosine")

	// LLM默认配置
	v.SetDefault("llm.provider", "groq")
	v.SetDefault("llm.concise_model", "llama3-8b-8192")
	v.SetDefault("llm.detailed_model", "llama3-70b-8192")
	v.SetDefault("llm.alert_model", "llama3-70b-8192")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.timeout", "60s")

	// Embedding默认配置
	v.SetDefault("embed.provider", "cohere")
	v.SetDefault("embed.batch_size", 32)
	v.SetDefault("embed.workers", 4)
	v.SetDefault("embed.timeout", "30s")

	// 缓存默认配置
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.namespace", "esg")
	v.SetDefault("cache.ttl", 3600)

	// 数据库默认配置
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/esg.db")

	// 文档切分默认配置
	v.SetDefault("document.chunk_size", 3000)
	v.SetDefault("document.chunk_overlap", 200)

	// 检索默认配置
	v.SetDefault("search.top_k", 3)
	v.SetDefault("search.min_score", 0.2)

	// 资讯默认配置
	v.SetDefault("alerts.ttl", "6h")
}
