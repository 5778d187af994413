package utils

import "context"

type requestMetaKey struct{}

// RequestMeta 发起变更的请求来源，写入操作日志
type RequestMeta struct {
	Method    string
	Path      string
	IPAddress string
	UserAgent string
}

// WithRequestMeta 将请求来源放入 context
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom 读取请求来源
func RequestMetaFrom(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta, ok
}
