package audit

import (
	"context"

	"github.com/treestandk/wingman/internal/database"
	"github.com/treestandk/wingman/internal/logger"
)

// DynamoSink appends audit events to the audit table.
type DynamoSink struct {
	ops *database.AuditOperations
}

func NewDynamoSink(ops *database.AuditOperations) *DynamoSink {
	return &DynamoSink{ops: ops}
}

func (s *DynamoSink) Record(ctx context.Context, event Event) {
	if err := s.ops.PutEvent(ctx, event); err != nil {
		logger.WithFields(map[string]interface{}{
			"audit_id": event.ID,
			"action":   event.Action,
			"error":    err.Error(),
		}).Warn("Failed to persist audit event")
	}
}
