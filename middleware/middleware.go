// Package middleware wraps the server's dispatch of a Call.
//
// Middlewares compose like an onion around the Dispatcher:
//
//	Chain(A, B, C)(handler) → A(B(C(handler)))
//
// Every middleware that answers a Call itself (timeout, rate limit) copies the
// Call's requestId into the Result it fabricates; the client could not match it
// otherwise.
package middleware

import (
	"context"

	"contract-rpc/message"
)

type HandlerFunc func(ctx context.Context, call *message.Call) *message.Result

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares into one; the first one is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
