package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/treestandk/wingman/internal/database"
	"github.com/treestandk/wingman/internal/logger"
	"github.com/treestandk/wingman/internal/models"
)

// updateAttempts bounds the optimistic-concurrency retry loop. Contention
// on one record is limited to its worker plus the occasional rollback or
// administrative call, so conflicts resolve within a few rounds.
const updateAttempts = 8

// Dynamo is the DynamoDB-backed Registry
type Dynamo struct {
	ops *database.DeploymentOperations
}

// NewDynamo creates a Registry backed by DynamoDB
func NewDynamo(ops *database.DeploymentOperations) *Dynamo {
	return &Dynamo{ops: ops}
}

// Create stores a new deployment record with its initial version
func (r *Dynamo) Create(ctx context.Context, deployment *models.Deployment) error {
	deployment.Version = 1
	return r.ops.CreateDeployment(ctx, deployment)
}

// Get retrieves a deployment by id
func (r *Dynamo) Get(ctx context.Context, id string) (*models.Deployment, error) {
	deployment, err := r.ops.GetDeployment(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return deployment, nil
}

// List retrieves all deployment records
func (r *Dynamo) List(ctx context.Context) ([]*models.Deployment, error) {
	return r.ops.GetAllDeployments(ctx)
}

// Update applies mutate under optimistic concurrency control: read the
// record, mutate a copy, write it back conditional on the version not
// having moved. A lost race re-reads and retries.
func (r *Dynamo) Update(ctx context.Context, id string, mutate func(*models.Deployment) error) (*models.Deployment, error) {
	for attempt := 0; attempt < updateAttempts; attempt++ {
		current, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		updated := current.Clone()
		if err := mutate(updated); err != nil {
			return nil, err
		}
		updated.Version = current.Version + 1

		err = r.ops.PutDeploymentVersioned(ctx, updated, current.Version)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, database.ErrVersionConflict) {
			return nil, err
		}

		logger.WithFields(map[string]interface{}{
			"deployment_id": id,
			"attempt":       attempt + 1,
		}).Debug("Registry update conflict, retrying")
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}

	return nil, fmt.Errorf("updating deployment %s: %w", id, ErrConflict)
}
