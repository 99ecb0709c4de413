package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/treestandk/wingman/internal/logger"
)

// Actions recorded against the audit trail.
const (
	ActionLogin        = "auth.login"
	ActionLoginFailed  = "auth.login_failed"
	ActionDeploy       = "deployment.start"
	ActionRollback     = "deployment.rollback"
	ActionTemplateSave = "template.save"
	ActionConfigTest   = "config.test"
)

// Event is one append-only audit record.
type Event struct {
	ID        string                 `json:"id" dynamodbav:"ID"`
	Timestamp time.Time              `json:"timestamp" dynamodbav:"Timestamp"`
	Action    string                 `json:"action" dynamodbav:"Action"`
	Actor     string                 `json:"actor" dynamodbav:"Actor"`
	SourceIP  string                 `json:"source_ip,omitempty" dynamodbav:"SourceIP,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty" dynamodbav:"Details,omitempty"`
}

// NewEvent stamps identity and time onto an audit event.
func NewEvent(action, actor, sourceIP string, details map[string]interface{}) Event {
	return Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Action:    action,
		Actor:     actor,
		SourceIP:  sourceIP,
		Details:   details,
	}
}

// Sink records audit events. Recording is best effort: implementations
// log failures and never surface them to the request path.
type Sink interface {
	Record(ctx context.Context, event Event)
}

// Multi fans one event out to every configured sink.
type Multi []Sink

func (m Multi) Record(ctx context.Context, event Event) {
	for _, sink := range m {
		sink.Record(ctx, event)
	}
}

// LogSink writes audit events to the application log. It is the fallback
// when no durable sink is configured.
type LogSink struct{}

func (LogSink) Record(_ context.Context, event Event) {
	logger.WithFields(map[string]interface{}{
		"audit_id": event.ID,
		"action":   event.Action,
		"actor":    event.Actor,
		"source":   event.SourceIP,
	}).Info("Audit event")
}
