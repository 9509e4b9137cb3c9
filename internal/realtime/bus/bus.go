// Package bus carries realtime messages between server replicas.
package bus

import (
	"context"

	"github.com/yungbote/loresmith/internal/realtime"
)

type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
