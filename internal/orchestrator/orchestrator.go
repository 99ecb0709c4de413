package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/treestandk/wingman/internal/adapters"
	"github.com/treestandk/wingman/internal/events"
	"github.com/treestandk/wingman/internal/logger"
	"github.com/treestandk/wingman/internal/models"
	"github.com/treestandk/wingman/internal/registry"
	"github.com/treestandk/wingman/internal/templates"
	"github.com/treestandk/wingman/internal/wingerr"
	"github.com/treestandk/wingman/internal/workers"
)

const defaultStageTimeout = 2 * time.Minute

// Orchestrator drives deployments through their stages: it owns the stage
// order, the deployment records and the progress/log event flow. Stage
// work itself lives in the adapters.
type Orchestrator struct {
	registry     registry.Registry
	hub          *events.Hub
	supervisor   *workers.Supervisor
	templates    *templates.Store
	stack        []adapters.Adapter
	baseDomain   string
	stageTimeout time.Duration
}

// New wires the orchestrator. stack holds the adapters in execution order;
// baseDomain, when set, is used to derive the deployment's public name.
func New(reg registry.Registry, hub *events.Hub, supervisor *workers.Supervisor, store *templates.Store, stack []adapters.Adapter, baseDomain string, stageTimeout time.Duration) *Orchestrator {
	if stageTimeout <= 0 {
		stageTimeout = defaultStageTimeout
	}
	return &Orchestrator{
		registry:     reg,
		hub:          hub,
		supervisor:   supervisor,
		templates:    store,
		stack:        stack,
		baseDomain:   baseDomain,
		stageTimeout: stageTimeout,
	}
}

// Start validates the request, creates the pending record and hands the
// run to a worker. It returns as soon as the record exists; stages run in
// the background.
func (o *Orchestrator) Start(ctx context.Context, req *models.DeploymentRequest) (*models.Deployment, error) {
	if err := req.Validate(); err != nil {
		return nil, wingerr.Validation(err.Error())
	}

	if req.SaveTemplate {
		if err := o.templates.Save(req.TemplateName, models.TemplateFromRequest(req.TemplateName, req)); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	deployment := &models.Deployment{
		ID:        uuid.New().String(),
		Request:   *req,
		Status:    models.StatusPending,
		State:     "queued",
		Steps:     []models.Step{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if o.baseDomain != "" {
		deployment.Domain = req.Subdomain + "." + o.baseDomain
	}
	deployment.AppendLog(fmt.Sprintf("Deployment accepted for %s (%s:%d)", req.Subdomain, req.ServerIP, req.GamePort))

	if err := o.registry.Create(ctx, deployment); err != nil {
		return nil, fmt.Errorf("creating deployment record: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"deployment_id": deployment.ID,
		"subdomain":     req.Subdomain,
		"server_ip":     req.ServerIP,
	}).Info("Deployment accepted")

	id := deployment.ID
	job := &workers.Job{
		DeploymentID: id,
		Run:          func() { o.runDeployment(id) },
		OnPanic:      func(r interface{}) { o.failOnPanic(id, r) },
	}
	if err := o.supervisor.Launch(job); err != nil {
		o.checkpoint(context.Background(), id, "", models.StatusFailed, func(rec *models.Deployment) error {
			rec.Status = models.StatusFailed
			rec.State = "failed"
			rec.Error = "server is shutting down"
			rec.AppendLog("Deployment rejected: server is shutting down")
			return nil
		})
		return nil, fmt.Errorf("launching deployment worker: %w", err)
	}
	return deployment, nil
}

// Get returns one deployment record.
func (o *Orchestrator) Get(ctx context.Context, id string) (*models.Deployment, error) {
	return o.registry.Get(ctx, id)
}

// List returns every deployment record.
func (o *Orchestrator) List(ctx context.Context) ([]*models.Deployment, error) {
	return o.registry.List(ctx)
}

// Stats aggregates deployment totals for monitoring.
func (o *Orchestrator) Stats(ctx context.Context) (*models.StatsResponse, error) {
	list, err := o.registry.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.StatsResponse{Total: len(list), EventsDropped: o.hub.Dropped()}
	for _, d := range list {
		switch d.Status {
		case models.StatusPending, models.StatusInProgress:
			stats.Active++
		case models.StatusCompleted:
			stats.Completed++
		case models.StatusFailed:
			stats.Failed++
		case models.StatusRolledBack:
			stats.RolledBack++
		}
	}
	return stats, nil
}

// runDeployment walks the stage plan for one deployment. Every record
// mutation goes through the registry and is mirrored to event subscribers.
func (o *Orchestrator) runDeployment(id string) {
	ctx := context.Background()

	current, err := o.registry.Get(ctx, id)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"deployment_id": id,
			"error":         err.Error(),
		}).Error("Deployment record vanished before start")
		return
	}

	plan, skipped := buildPlan(o.stack, &current.Request)

	current, err = o.checkpoint(ctx, id, "", models.StatusInProgress, func(rec *models.Deployment) error {
		rec.Status = models.StatusInProgress
		rec.State = "starting"
		rec.AppendLog("Deployment started")
		for _, s := range skipped {
			rec.AppendLog(fmt.Sprintf("Skipping %s: %s", s.name, s.reason))
		}
		return nil
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"deployment_id": id,
			"error":         err.Error(),
		}).Error("Failed to mark deployment in progress")
		return
	}

	for _, stage := range plan {
		stageName := stage.adapter.StageName()

		current, err = o.checkpoint(ctx, id, stageName, models.StepActive, func(rec *models.Deployment) error {
			rec.State = stageName
			rec.SetStep(stageName, models.StepActive, stage.activeProgress)
			rec.AppendLog(fmt.Sprintf("Starting %s", stageName))
			return nil
		})
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"deployment_id": id,
				"stage":         stageName,
				"error":         err.Error(),
			}).Error("Failed to activate stage")
			return
		}

		stageCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
		outcome := stage.adapter.Execute(stageCtx, &current.Request, current.Handles)
		cancel()

		if !outcome.Success {
			reason := "stage reported failure"
			if outcome.Err != nil {
				reason = outcome.Err.Error()
			}
			o.checkpoint(ctx, id, stageName, models.StepFailed, func(rec *models.Deployment) error {
				rec.SetStep(stageName, models.StepFailed, rec.Progress)
				rec.Status = models.StatusFailed
				rec.State = "failed"
				rec.Error = fmt.Sprintf("%s: %s", stageName, reason)
				rec.AppendLog(fmt.Sprintf("%s failed: %s", stageName, reason))
				rec.AppendLog("Deployment aborted; earlier stages keep their resources until rollback")
				return nil
			})
			logger.WithFields(map[string]interface{}{
				"deployment_id": id,
				"stage":         stageName,
				"error":         reason,
			}).Error("Deployment stage failed")
			return
		}

		current, err = o.checkpoint(ctx, id, stageName, models.StepCompleted, func(rec *models.Deployment) error {
			rec.Handles.Merge(outcome.Handles)
			rec.SetStep(stageName, models.StepCompleted, stage.doneProgress)
			message := outcome.Message
			if message == "" {
				message = "done"
			}
			rec.AppendLog(fmt.Sprintf("%s completed: %s", stageName, message))
			return nil
		})
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"deployment_id": id,
				"stage":         stageName,
				"error":         err.Error(),
			}).Error("Failed to record stage completion")
			return
		}
	}

	o.checkpoint(ctx, id, "", models.StatusCompleted, func(rec *models.Deployment) error {
		now := time.Now().UTC()
		rec.Status = models.StatusCompleted
		rec.State = "completed"
		rec.Progress = 100
		rec.CompletedAt = &now
		rec.AppendLog("Deployment completed successfully")
		return nil
	})
	logger.WithField("deployment_id", id).Info("Deployment completed")
}

// failOnPanic marks the record failed after a recovered worker panic so it
// cannot sit in_progress forever.
func (o *Orchestrator) failOnPanic(id string, recovered interface{}) {
	_, err := o.checkpoint(context.Background(), id, "", models.StatusFailed, func(rec *models.Deployment) error {
		if rec.Terminal() {
			return nil
		}
		rec.Status = models.StatusFailed
		rec.State = "failed"
		rec.Error = fmt.Sprintf("internal error: %v", recovered)
		rec.AppendLog("Deployment failed: internal error")
		return nil
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"deployment_id": id,
			"error":         err.Error(),
		}).Error("Failed to record panic failure")
	}
}

// checkpoint applies one record mutation and mirrors the result to event
// subscribers: every log line appended by the mutation becomes a log
// event, and the record's progress state is published once.
func (o *Orchestrator) checkpoint(ctx context.Context, id, stepName, status string, mutate func(*models.Deployment) error) (*models.Deployment, error) {
	var lines []models.LogEntry
	updated, err := o.registry.Update(ctx, id, func(rec *models.Deployment) error {
		lines = lines[:0] // the mutator may rerun on a version conflict
		before := len(rec.Logs)
		if err := mutate(rec); err != nil {
			return err
		}
		lines = append(lines, rec.Logs[before:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, line := range lines {
		o.hub.PublishLog(id, line.Message, line.Timestamp)
	}
	o.hub.PublishProgress(id, stepName, status, updated.Progress, updated.Steps)
	return updated, nil
}
