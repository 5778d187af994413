package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 应用配置
type Config struct {
	Port int
	// 远程存储
	RemoteBaseURL string
	RemoteTimeout time.Duration
	PageSize      int
	// 审计日志
	MongoURI string
	MongoDB  string
	// 会话与导航状态
	RedisAddr     string
	RedisPassword string
	SessionTTL    time.Duration
	IdleTimeout   time.Duration
	// 可观测性
	SentryDSN   string
	KafkaBroker string
	KafkaTopic  string

	DashboardRefresh time.Duration
	AllowOrigins     []string
	Debug            bool
}

// LoadConfig 从环境变量加载配置，存在 .env 时先加载
func LoadConfig() *Config {
	_ = godotenv.Load()

	port, _ := strconv.Atoi(getEnv("PORT", "8080"))
	pageSize, err := strconv.Atoi(getEnv("PAGE_SIZE", "8"))
	if err != nil || pageSize <= 0 {
		pageSize = 8
	}

	return &Config{
		Port:             port,
		RemoteBaseURL:    strings.TrimRight(getEnv("REMOTE_BASE_URL", "https://web-fe-react-prj3-api.onrender.com"), "/"),
		RemoteTimeout:    getDuration("REMOTE_TIMEOUT", 15*time.Second),
		PageSize:         pageSize,
		MongoURI:         getEnv("MONGO_URI", ""),
		MongoDB:          getEnv("MONGO_DB", "crm"),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		SessionTTL:       getDuration("SESSION_TTL", 24*time.Hour),
		IdleTimeout:      getDuration("WORKSPACE_IDLE_TIMEOUT", 30*time.Minute),
		SentryDSN:        getEnv("SENTRY_DSN", ""),
		KafkaBroker:      getEnv("KAFKA_BROKER", ""),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "crm.changes"),
		DashboardRefresh: getDuration("DASHBOARD_REFRESH", 10*time.Second),
		AllowOrigins:     splitList(getEnv("ALLOW_ORIGINS", "*")),
		Debug:            getEnv("GIN_MODE", "debug") == "debug",
	}
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getDuration 解析时长，支持 "15s" 形式和纯秒数
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
