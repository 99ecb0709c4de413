package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/treestandk/wingman/internal/adapters"
	"github.com/treestandk/wingman/internal/logger"
	"github.com/treestandk/wingman/internal/models"
	"github.com/treestandk/wingman/internal/wingerr"
)

// Rollback compensates a terminal deployment's recorded handles in
// reverse stage order, best effort: a failed compensation is reported and
// the walk continues. The deployment always ends rolled_back, even when
// nothing was recorded or some compensations failed; failures leave their
// handle on the record so the operator can retry.
func (o *Orchestrator) Rollback(ctx context.Context, id string) (*models.Deployment, []models.CompensationResult, error) {
	current, err := o.registry.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !current.Terminal() {
		return nil, nil, wingerr.Validationf("deployment %s is %s; only finished deployments can be rolled back", id, current.Status)
	}

	logger.WithFields(map[string]interface{}{
		"deployment_id": id,
		"status":        current.Status,
	}).Info("Rollback requested")
	o.logLine(ctx, id, "Rollback started")

	results := make([]models.CompensationResult, 0, len(o.stack))
	compensated := make(map[string]bool, len(o.stack))
	for i := len(o.stack) - 1; i >= 0; i-- {
		a := o.stack[i]
		if !adapters.HasHandle(a.Name(), current.Handles) {
			continue
		}

		ref := handleRef(a.Name(), current.Handles)
		o.logLine(ctx, id, fmt.Sprintf("Rolling back %s (%s)", a.StageName(), ref))

		compCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
		outcome := a.Compensate(compCtx, current.Handles)
		cancel()

		result := models.CompensationResult{Stage: a.StageName(), Handle: ref, Success: outcome.Success}
		if outcome.Success {
			compensated[a.Name()] = true
			o.logLine(ctx, id, fmt.Sprintf("%s rolled back", a.StageName()))
		} else {
			if outcome.Err != nil {
				result.Error = outcome.Err.Error()
			}
			o.logLine(ctx, id, fmt.Sprintf("%s rollback failed: %s", a.StageName(), result.Error))
			logger.WithFields(map[string]interface{}{
				"deployment_id": id,
				"stage":         a.StageName(),
				"error":         result.Error,
			}).Warn("Compensation failed")
		}
		results = append(results, result)
	}

	updated, err := o.checkpoint(ctx, id, "", models.StatusRolledBack, func(rec *models.Deployment) error {
		now := time.Now().UTC()
		rec.Status = models.StatusRolledBack
		rec.State = "rolled back"
		rec.RolledBackAt = &now
		clearHandles(&rec.Handles, compensated)
		rec.AppendLog(fmt.Sprintf("Rollback finished: %d handle(s) processed", len(results)))
		return nil
	})
	if err != nil {
		return nil, results, err
	}
	return updated, results, nil
}

// logLine appends one log line to the record and publishes it, tolerating
// store errors: rollback keeps going even when logging fails.
func (o *Orchestrator) logLine(ctx context.Context, id, message string) {
	var entry models.LogEntry
	if _, err := o.registry.Update(ctx, id, func(rec *models.Deployment) error {
		entry = rec.AppendLog(message)
		return nil
	}); err != nil {
		logger.WithFields(map[string]interface{}{
			"deployment_id": id,
			"error":         err.Error(),
		}).Warn("Failed to append rollback log")
		return
	}
	o.hub.PublishLog(id, entry.Message, entry.Timestamp)
}

// handleRef names the external resource an adapter recorded, for rollback
// reporting.
func handleRef(service string, h models.Handles) string {
	switch service {
	case adapters.ServiceCloudflare:
		return "dns record " + h.DNSRecordID
	case adapters.ServiceUniFi:
		return fmt.Sprintf("%d forwarding rule(s): %s", len(h.FirewallRuleIDs), strings.Join(h.FirewallRuleIDs, ", "))
	case adapters.ServiceNPM:
		return "stream " + h.ProxyConfigID
	case adapters.ServicePterodactyl:
		return "server " + h.ServerID
	}
	return ""
}

// clearHandles removes the handles of successfully compensated stages so
// a repeated rollback does not touch resources that are already gone.
func clearHandles(h *models.Handles, compensated map[string]bool) {
	if compensated[adapters.ServiceCloudflare] {
		h.DNSRecordID = ""
	}
	if compensated[adapters.ServiceUniFi] {
		h.FirewallRuleIDs = nil
	}
	if compensated[adapters.ServiceNPM] {
		h.ProxyConfigID = ""
	}
	if compensated[adapters.ServicePterodactyl] {
		h.ServerID = ""
		h.ServerUUID = ""
	}
}
