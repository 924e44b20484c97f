package middleware

import (
	"context"

	"contract-rpc/message"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware starts a server span per Call.
func TracingMiddleware(tp trace.TracerProvider) Middleware {
	tracer := tp.Tracer("contract-rpc/server")
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) *message.Result {
			ctx, span := tracer.Start(ctx, call.ContractName+"/"+call.MethodName,
				trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			span.SetAttributes(
				semconv.RPCSystemKey.String("contract-rpc"),
				semconv.RPCServiceKey.String(call.ContractName),
				semconv.RPCMethodKey.String(call.MethodName),
				attribute.String("rpc.request_id", call.RequestID),
			)

			res := next(ctx, call)
			if res != nil && res.Failed() {
				span.SetStatus(codes.Error, res.ErrorMessage)
			}
			return res
		}
	}
}
