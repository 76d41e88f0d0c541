package oplog

import (
	"context"

	"github.com/TbhX/centx-backend/pkg/engine"
	"go.uber.org/zap"
)

// Logger adapts zap to engine.OperationLogger.
type Logger struct {
	logger *zap.Logger
}

// New returns a Logger writing through the supplied zap logger.
func New(logger *zap.Logger) *Logger {
	return &Logger{logger: logger}
}

// LogOperation records one engine operation outcome.
func (adapter *Logger) LogOperation(_ context.Context, entry engine.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
		zap.String("user_id", entry.UserID.String()),
	}
	if entry.PostID.String() != "" {
		fields = append(fields, zap.String("post_id", entry.PostID.String()))
	}
	if entry.Kind.String() != "" {
		fields = append(fields, zap.String("reaction_kind", entry.Kind.String()))
	}
	if entry.Amount != "" {
		fields = append(fields, zap.String("amount", entry.Amount))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		adapter.logger.Warn("ledger operation failed", fields...)
		return
	}
	adapter.logger.Info("ledger operation", fields...)
}
