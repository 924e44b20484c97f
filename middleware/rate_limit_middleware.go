package middleware

import (
	"context"

	"contract-rpc/message"

	"golang.org/x/time/rate"
)

// MsgRateLimited is the Result error of a Call rejected by RateLimitMiddleware.
const MsgRateLimited = "rate limit exceeded"

// RateLimitMiddleware rejects Calls beyond r per second with bursts of burst,
// using a token bucket shared by every connection.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) *message.Result {
			if !limiter.Allow() {
				return message.Failure(call.RequestID, MsgRateLimited)
			}
			return next(ctx, call)
		}
	}
}
