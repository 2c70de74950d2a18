// Package middleware provides composable HTTP middleware for the server.
package middleware

import (
	"context"
	"net/http"
)

// Middleware decorates an http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

type contextKey int

const (
	ctxRequestID contextKey = iota
	ctxClientIP
)

// WithRequestID returns a context carrying the given request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestID, id)
}

// GetRequestID returns the request ID stored by RequestID, or "" when absent.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxRequestID).(string)
	return id
}

// WithClientIP returns a context carrying the given client IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxClientIP, ip)
}

// GetClientIP returns the client IP stored by ClientIP, or "" when absent.
func GetClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(ctxClientIP).(string)
	return ip
}

// Chain is an ordered list of middlewares. The zero value is usable.
type Chain []Middleware

// New builds a chain. The first middleware becomes the outermost wrapper.
func New(mw ...Middleware) Chain {
	return append(Chain(nil), mw...)
}

// Then wraps h with every middleware in the chain. A nil handler defaults
// to http.DefaultServeMux.
func (c Chain) Then(h http.Handler) http.Handler {
	if h == nil {
		h = http.DefaultServeMux
	}
	for i := len(c) - 1; i >= 0; i-- {
		h = c[i](h)
	}
	return h
}

// ThenFunc is Then for handler functions.
func (c Chain) ThenFunc(fn http.HandlerFunc) http.Handler {
	return c.Then(fn)
}

// Append returns a new chain with mw added at the end. The receiver is
// left unchanged.
func (c Chain) Append(mw ...Middleware) Chain {
	out := make(Chain, 0, len(c)+len(mw))
	out = append(out, c...)
	return append(out, mw...)
}
