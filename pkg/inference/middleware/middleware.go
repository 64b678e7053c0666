package middleware

import (
	"context"

	"github.com/go-go-golems/song-vocab/pkg/conversation"
	"github.com/go-go-golems/song-vocab/pkg/inference/engine"
)

// HandlerFunc produces the next assistant message for a conversation.
type HandlerFunc func(ctx context.Context, conv *conversation.Conversation) (conversation.Message, error)

// Middleware wraps a HandlerFunc with additional functionality.
// Middleware are applied in order: Chain(m1, m2, m3) results in m1(m2(m3(handler))).
type Middleware func(HandlerFunc) HandlerFunc

// Chain composes multiple middleware into a single HandlerFunc.
func Chain(handler HandlerFunc, middlewares ...Middleware) HandlerFunc {
	// Apply middlewares in reverse order so they execute in correct order
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

func engineHandlerFunc(e engine.Engine) HandlerFunc {
	return func(ctx context.Context, conv *conversation.Conversation) (conversation.Message, error) {
		return e.RunInference(ctx, conv)
	}
}

// EngineWithMiddleware wraps an Engine with a middleware chain.
type EngineWithMiddleware struct {
	handler HandlerFunc
}

var _ engine.Engine = (*EngineWithMiddleware)(nil)

func NewEngineWithMiddleware(e engine.Engine, middlewares ...Middleware) *EngineWithMiddleware {
	return &EngineWithMiddleware{
		handler: Chain(engineHandlerFunc(e), middlewares...),
	}
}

func (e *EngineWithMiddleware) RunInference(ctx context.Context, conv *conversation.Conversation) (conversation.Message, error) {
	return e.handler(ctx, conv)
}
