package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/treestandk/wingman/internal/models"
)

func newTestDeployment(id string) *models.Deployment {
	return &models.Deployment{
		ID:     id,
		Status: models.StatusPending,
		Request: models.DeploymentRequest{
			Subdomain: "test",
			ServerIP:  "10.0.0.5",
			GamePort:  25565,
		},
	}
}

func TestMemoryCreateAndGet(t *testing.T) {
	r := NewMemory()
	ctx := context.Background()

	if err := r.Create(ctx, newTestDeployment("deploy-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := r.Get(ctx, "deploy-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}

	// Mutating the returned copy must not leak into the store.
	got.Status = models.StatusFailed
	again, err := r.Get(ctx, "deploy-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again.Status != models.StatusPending {
		t.Errorf("store was mutated through a returned copy: status = %q", again.Status)
	}
}

func TestMemoryCreateDuplicate(t *testing.T) {
	r := NewMemory()
	ctx := context.Background()

	if err := r.Create(ctx, newTestDeployment("deploy-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Create(ctx, newTestDeployment("deploy-1")); err == nil {
		t.Fatal("expected duplicate create to fail")
	}
}

func TestMemoryGetNotFound(t *testing.T) {
	r := NewMemory()
	_, err := r.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}
}

func TestMemoryUpdateNotFound(t *testing.T) {
	r := NewMemory()
	_, err := r.Update(context.Background(), "missing", func(d *models.Deployment) error { return nil })
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(missing) = %v, want ErrNotFound", err)
	}
}

func TestMemoryUpdateMutatorErrorLeavesRecordUntouched(t *testing.T) {
	r := NewMemory()
	ctx := context.Background()
	if err := r.Create(ctx, newTestDeployment("deploy-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	wantErr := errors.New("rejected")
	_, err := r.Update(ctx, "deploy-1", func(d *models.Deployment) error {
		d.Status = models.StatusFailed
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Update returned %v, want mutator error", err)
	}

	got, _ := r.Get(ctx, "deploy-1")
	if got.Status != models.StatusPending {
		t.Errorf("status = %q after failed mutation, want pending", got.Status)
	}
	if got.Version != 1 {
		t.Errorf("version = %d after failed mutation, want 1", got.Version)
	}
}

func TestMemoryConcurrentUpdatesLoseNoWrites(t *testing.T) {
	r := NewMemory()
	ctx := context.Background()
	if err := r.Create(ctx, newTestDeployment("deploy-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := r.Update(ctx, "deploy-1", func(d *models.Deployment) error {
				d.AppendLog(fmt.Sprintf("writer %d", n))
				return nil
			})
			if err != nil {
				t.Errorf("Update: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := r.Get(ctx, "deploy-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Logs) != writers {
		t.Errorf("logs = %d, want %d (lost writes)", len(got.Logs), writers)
	}
	if got.Version != writers+1 {
		t.Errorf("version = %d, want %d", got.Version, writers+1)
	}
}

func TestMemoryList(t *testing.T) {
	r := NewMemory()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := r.Create(ctx, newTestDeployment(fmt.Sprintf("deploy-%d", i))); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	all, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List returned %d records, want 3", len(all))
	}
}
