package middleware

import (
	"context"
	"time"

	"contract-rpc/message"
)

// MsgTimedOut is the Result error of a Call that outlived its server-side budget.
const MsgTimedOut = "request timed out"

// TimeOutMiddleware answers with MsgTimedOut when the rest of the chain takes
// longer than timeout. The handler keeps running with a cancelled context; its
// Result is discarded.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) *message.Result {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.Result, 1)
			go func() {
				done <- next(ctx, call)
			}()

			select {
			case res := <-done:
				return res
			case <-ctx.Done():
				return message.Failure(call.RequestID, MsgTimedOut)
			}
		}
	}
}
