package ctxutil

import (
	"context"
	"sync"
)

type requestDataKey struct{}

// RequestData collects identifiers learned while handling a request. Middleware attaches
// an empty one up front and handlers fill it in, so the request log can report them.
type RequestData struct {
	mu        sync.Mutex
	sessionID string
	userID    int64
}

func WithRequestData(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestDataKey{}, &RequestData{})
}

func GetRequestData(ctx context.Context) *RequestData {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		return rd
	}
	return nil
}

func (rd *RequestData) SetSession(id string) {
	if rd == nil {
		return
	}
	rd.mu.Lock()
	rd.sessionID = id
	rd.mu.Unlock()
}

func (rd *RequestData) SetUser(id int64) {
	if rd == nil {
		return
	}
	rd.mu.Lock()
	rd.userID = id
	rd.mu.Unlock()
}

func (rd *RequestData) SessionID() string {
	if rd == nil {
		return ""
	}
	rd.mu.Lock()
	defer rd.mu.Unlock()
	return rd.sessionID
}

func (rd *RequestData) UserID() int64 {
	if rd == nil {
		return 0
	}
	rd.mu.Lock()
	defer rd.mu.Unlock()
	return rd.userID
}
