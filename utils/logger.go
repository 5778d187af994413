package utils

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger 全局日志对象
var Logger = zerolog.Nop()

// InitLogger 初始化日志系统
func InitLogger() {
	// 配置日志输出
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}

	// 创建日志记录器
	Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger().
		Level(zerolog.InfoLevel)

	// 设置日志级别
	if os.Getenv("GIN_MODE") == "debug" {
		Logger = Logger.Level(zerolog.DebugLevel)
	}

	Logger.Info().Msg("日志系统初始化完成")
}

// LogApiRequest 记录API请求
func LogApiRequest(method, url string, params, body interface{}, headers map[string]string) {
	// 过滤敏感信息
	if v := headers["Cookie"]; v != "" {
		headers["Cookie"] = "******"
	}

	Logger.Info().
		Str("method", method).
		Str("url", url).
		Interface("params", params).
		Interface("body", body).
		Interface("headers", headers).
		Msg("API请求")
}

// LogApiResponse 记录API响应，route 为匹配到的路由模板，session 为会话ID
func LogApiResponse(method, url, route, session string, statusCode int, responseTime time.Duration, responseBody interface{}) {
	event := Logger.Info()
	if statusCode >= 400 {
		event = Logger.Error()
	}
	// 看板推送和指标接口过于频繁
	if strings.HasPrefix(url, "/ws/") || url == "/metrics" {
		return
	}
	event.
		Str("method", method).
		Str("url", url).
		Str("route", route).
		Str("session", session).
		Int("statusCode", statusCode).
		Dur("responseTime", responseTime).
		Interface("body", responseBody).
		Msg("API响应")
}

// LogRemoteRequest 记录发往远程存储的请求
func LogRemoteRequest(method, url string, body interface{}) {
	Logger.Debug().
		Str("method", method).
		Str("url", url).
		Interface("body", body).
		Msg("远程存储请求")
}

// LogRemoteResponse 记录远程存储响应
func LogRemoteResponse(method, url string, statusCode int, responseTime time.Duration, err error) {
	event := Logger.Info()
	if err != nil || statusCode >= 400 {
		event = Logger.Error().Err(err)
	}
	event.
		Str("method", method).
		Str("url", url).
		Int("statusCode", statusCode).
		Dur("responseTime", responseTime).
		Msg("远程存储响应")
}

// LogInfo 记录
func LogInfo(context map[string]interface{}, message string) {
	Logger.Info().
		Interface("context", context).
		Msg(message)
}

// LogError 记录错误
func LogError(err error, context map[string]interface{}, message string) {
	Logger.Error().
		Err(err).
		Interface("context", context).
		Msg(message)
}

// LogInconsistency 记录关联数据不一致（例如客户引用了不存在的商机）
func LogInconsistency(kind string, entityID string, expected interface{}, actual interface{}) {
	Logger.Debug().
		Str("kind", kind).
		Str("entityId", entityID).
		Interface("expected", expected).
		Interface("actual", actual).
		Msg("关联数据不一致")
}
