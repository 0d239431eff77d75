package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App         AppConfig
	Server      ServerConfig
	Log         LogConfig
	Storage     StorageConfig
	Ollama      OllamaConfig
	AI          AIConfig
	Embedding   EmbeddingConfig
	VectorStore VectorStoreConfig
	Elastic     ElasticConfig
	Ingest      IngestConfig
	RAG         RAGConfig
	Redis       RedisConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
}

// AppConfig 应用配置
type AppConfig struct {
	Name        string
	Environment string
	Version     string
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string
	Port         int
	Mode         string
	ReadTimeout  int
	WriteTimeout int
	MaxUploadMB  int
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string
	Pretty bool
}

// StorageConfig 本地持久化路径
type StorageConfig struct {
	ProfilesFile string
	IndexRoot    string
	FilesRoot    string
}

// OllamaConfig 模型服务配置
type OllamaConfig struct {
	BaseURL string
}

// AIConfig 对话模型配置
type AIConfig struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     int
	MaxRetries  int
}

// EmbeddingConfig Embedding配置
type EmbeddingConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
}

// VectorStoreConfig 向量索引后端
type VectorStoreConfig struct {
	Type string
}

// ElasticConfig Elasticsearch配置
type ElasticConfig struct {
	Host        string
	Username    string
	Password    string
	IndexPrefix string
}

// IngestConfig 分块参数边界
type IngestConfig struct {
	ChunkMin   int
	ChunkMax   int
	OverlapMin int
	OverlapMax int
}

// RAGConfig 检索配置
type RAGConfig struct {
	TopK int
}

// RedisConfig Redis配置
type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Password  string
	DB        int
	ModelsTTL int
}

// AuthConfig 鉴权配置，JWTSecret 为空时不启用
type AuthConfig struct {
	JWTSecret string
}

// RateLimitConfig 查询接口限流
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins []string
}

// Load 加载配置
// 优先级：环境变量 > 配置文件 > 默认值；.env 文件会先被加载到环境变量
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	// 环境变量
	v.SetEnvPrefix("RAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 兼容旧版环境变量
	_ = v.BindEnv("ollama.baseURL", "RAG_OLLAMA_BASEURL", "BASE_URL")
	_ = v.BindEnv("storage.profilesFile", "RAG_STORAGE_PROFILESFILE", "PROFILES_FILE")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Ingest.ChunkMin <= 0 || c.Ingest.ChunkMax < c.Ingest.ChunkMin {
		return fmt.Errorf("invalid ingest chunk bounds: min=%d max=%d", c.Ingest.ChunkMin, c.Ingest.ChunkMax)
	}
	if c.Ingest.OverlapMin < 0 || c.Ingest.OverlapMax < c.Ingest.OverlapMin {
		return fmt.Errorf("invalid ingest overlap bounds: min=%d max=%d", c.Ingest.OverlapMin, c.Ingest.OverlapMax)
	}
	if c.Ingest.OverlapMax >= c.Ingest.ChunkMin {
		return fmt.Errorf("overlap max %d must be smaller than chunk min %d", c.Ingest.OverlapMax, c.Ingest.ChunkMin)
	}
	switch c.VectorStore.Type {
	case "duckdb", "elasticsearch", "es8", "memory":
	default:
		return fmt.Errorf("unsupported vector store type: %s", c.VectorStore.Type)
	}
	return nil
}

// GetAddr 获取服务器地址
func (c *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAddr 获取 Redis 地址
func (c *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "rag-profiles")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "1.0.0")

	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 300)
	v.SetDefault("server.maxUploadMB", 10)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Storage
	v.SetDefault("storage.profilesFile", "models/profiles.json")
	v.SetDefault("storage.indexRoot", "models")
	v.SetDefault("storage.filesRoot", "files")

	// Ollama
	v.SetDefault("ollama.baseURL", "http://127.0.0.1:11434")

	// AI
	v.SetDefault("ai.provider", "ollama")
	v.SetDefault("ai.apiKey", "")
	v.SetDefault("ai.baseURL", "")
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.timeout", 120)
	v.SetDefault("ai.maxRetries", 2)

	// Embedding
	v.SetDefault("embedding.provider", "ollama")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.apiKey", "")
	v.SetDefault("embedding.baseURL", "")
	v.SetDefault("embedding.dimensions", 0)

	// Vector store
	v.SetDefault("vectorStore.type", "duckdb")

	// Elastic
	v.SetDefault("elastic.host", "http://localhost:9200")
	v.SetDefault("elastic.username", "")
	v.SetDefault("elastic.password", "")
	v.SetDefault("elastic.indexPrefix", "rag_profiles")

	// Ingest
	v.SetDefault("ingest.chunkMin", 1000)
	v.SetDefault("ingest.chunkMax", 1000)
	v.SetDefault("ingest.overlapMin", 100)
	v.SetDefault("ingest.overlapMax", 100)

	// RAG
	v.SetDefault("rag.topK", 4)

	// Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.modelsTTL", 60)

	// Auth
	v.SetDefault("auth.jwtSecret", "")

	// Rate limit
	v.SetDefault("rateLimit.rps", 5.0)
	v.SetDefault("rateLimit.burst", 10)

	// CORS
	v.SetDefault("cors.allowedOrigins", []string{"*"})
}
