package services

import (
	"context"

	"github.com/yungbote/upcycleai/internal/platform/logger"
	"github.com/yungbote/upcycleai/internal/realtime"
)

type SSEEmitter interface {
	Emit(ctx context.Context, msg realtime.SSEMessage)
}

// LogEmitter reports events to the log; the CLI uses it when no hub is running.
type LogEmitter struct{ Log *logger.Logger }

func (e *LogEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	e.Log.Info("event", "channel", msg.Channel, "event", msg.Event)
}

// MultiEmitter fans out to every emitter in order.
type MultiEmitter []SSEEmitter

func (m MultiEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, msg)
		}
	}
}
