package registry

import (
	"context"
	"errors"

	"github.com/treestandk/wingman/internal/models"
)

// ErrNotFound is returned when a deployment does not exist
var ErrNotFound = errors.New("deployment not found")

// ErrConflict is returned when an update could not be applied after
// exhausting retries against concurrent writers
var ErrConflict = errors.New("deployment update conflict")

// Registry is the durable store of deployment records. Update applies the
// mutator atomically with respect to other writers of the same id: the
// worker goroutine and administrative calls (rollback) may race, and
// neither side's writes may be lost.
type Registry interface {
	Create(ctx context.Context, deployment *models.Deployment) error
	Get(ctx context.Context, id string) (*models.Deployment, error)
	List(ctx context.Context) ([]*models.Deployment, error)
	Update(ctx context.Context, id string, mutate func(*models.Deployment) error) (*models.Deployment, error)
}
