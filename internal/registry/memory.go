package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/treestandk/wingman/internal/models"
)

// Memory is an in-memory Registry used by tests and STORAGE_MODE=memory
// development runs. Records do not survive a restart.
type Memory struct {
	mu          sync.RWMutex
	deployments map[string]*models.Deployment
}

// NewMemory creates an empty in-memory Registry
func NewMemory() *Memory {
	return &Memory{
		deployments: make(map[string]*models.Deployment),
	}
}

// Create stores a new deployment record
func (r *Memory) Create(ctx context.Context, deployment *models.Deployment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.deployments[deployment.ID]; exists {
		return fmt.Errorf("deployment %s already exists", deployment.ID)
	}
	deployment.Version = 1
	r.deployments[deployment.ID] = deployment.Clone()
	return nil
}

// Get retrieves a deployment by id
func (r *Memory) Get(ctx context.Context, id string) (*models.Deployment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	deployment, ok := r.deployments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return deployment.Clone(), nil
}

// List retrieves all deployment records
func (r *Memory) List(ctx context.Context) ([]*models.Deployment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Deployment, 0, len(r.deployments))
	for _, d := range r.deployments {
		out = append(out, d.Clone())
	}
	return out, nil
}

// Update applies mutate while holding the store lock, so updates for any
// one id are serialized. A mutator error leaves the record untouched.
func (r *Memory) Update(ctx context.Context, id string, mutate func(*models.Deployment) error) (*models.Deployment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.deployments[id]
	if !ok {
		return nil, ErrNotFound
	}

	updated := current.Clone()
	if err := mutate(updated); err != nil {
		return nil, err
	}
	updated.Version = current.Version + 1
	r.deployments[id] = updated
	return updated.Clone(), nil
}
