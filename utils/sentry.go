package utils

import (
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry 初始化 Sentry，dsn 为空时不上报
func InitSentry(dsn string) error {
	if dsn == "" {
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      os.Getenv("APP_ENV"),
		Release:          "crm-web@" + os.Getenv("APP_VERSION"),
		TracesSampleRate: 0.2,
	})
	if err != nil {
		return fmt.Errorf("sentry 初始化失败: %w", err)
	}
	return nil
}

// FlushSentry 退出前发送缓冲中的事件
func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// CaptureError 上报错误及上下文
func CaptureError(err error, context map[string]interface{}) {
	if err == nil {
		return
	}
	if hub := sentry.CurrentHub(); hub != nil && hub.Client() != nil {
		hub.WithScope(func(scope *sentry.Scope) {
			for k, v := range context {
				scope.SetExtra(k, v)
			}
			hub.CaptureException(err)
		})
	}
}
