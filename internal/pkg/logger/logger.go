// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"restrohub/internal/pkg/tracing"
)

// Init 配置全局 zerolog，所有服务的 main 在启动时调用一次。
func Init(serviceName string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zlog.Logger = zlog.With().Str("service", serviceName).Logger()
}

// WithTraceID 从上下文提取 trace_id，返回一个带 trace_id 字段的 logger
// 并塞回新的 context。HTTP 中间件和 Kafka 消费者入口都走这里。
func WithTraceID(ctx context.Context) (context.Context, *zerolog.Logger) {
	traceID := tracing.GetTraceIDFromContext(ctx)
	logger := zlog.With().Str("trace_id", traceID).Logger()
	return logger.WithContext(ctx), &logger
}

// Middleware 把带 trace_id 的 logger 注入每个请求的 context。
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, _ := WithTraceID(r.Context())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
