package middleware

import (
	"context"
	"time"

	"contract-rpc/message"

	"go.uber.org/zap"
)

// LoggingMiddleware logs every Call with its duration and outcome.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) *message.Result {
			start := time.Now()
			res := next(ctx, call)

			fields := []zap.Field{
				zap.String("contract", call.ContractName),
				zap.String("method", call.MethodName),
				zap.String("requestId", call.RequestID),
				zap.Duration("duration", time.Since(start)),
			}
			if res != nil && res.Failed() {
				logger.Warn("call failed", append(fields, zap.String("error", res.ErrorMessage))...)
			} else {
				logger.Info("call", fields...)
			}
			return res
		}
	}
}
