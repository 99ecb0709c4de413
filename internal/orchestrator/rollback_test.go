package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/treestandk/wingman/internal/adapters"
	"github.com/treestandk/wingman/internal/models"
	"github.com/treestandk/wingman/internal/registry"
	"github.com/treestandk/wingman/internal/wingerr"
)

func deployToCompletion(t *testing.T, r *rig) *models.Deployment {
	t.Helper()
	created, err := r.orch.Start(context.Background(), deployRequest("mc"))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	d := waitForStatus(t, r.reg, created.ID, models.StatusCompleted, models.StatusFailed)
	if d.Status != models.StatusCompleted {
		t.Fatalf("setup deployment did not complete: %s (%s)", d.Status, d.Error)
	}
	return d
}

func TestRollbackCompensatesInReverseOrder(t *testing.T) {
	fakes := fullStack()
	var mu sync.Mutex
	var order []string
	for _, f := range fakes {
		f := f
		f.compensateF = func(context.Context, models.Handles) adapters.Outcome {
			mu.Lock()
			order = append(order, f.name)
			mu.Unlock()
			return adapters.Outcome{Success: true}
		}
	}
	r := newRig(t, asStack(fakes))
	d := deployToCompletion(t, r)

	rolled, results, err := r.orch.Rollback(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	want := []string{adapters.ServicePterodactyl, adapters.ServiceNPM, adapters.ServiceUniFi, adapters.ServiceCloudflare}
	mu.Lock()
	got := append([]string(nil), order...)
	mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("expected %d compensations, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("compensation %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	if rolled.Status != models.StatusRolledBack {
		t.Errorf("expected rolled_back, got %s", rolled.Status)
	}
	if rolled.RolledBackAt == nil {
		t.Error("RolledBackAt must be set")
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %+v", results)
	}
	for _, res := range results {
		if !res.Success {
			t.Errorf("compensation %s should have succeeded: %s", res.Stage, res.Error)
		}
	}
	if !rolled.Handles.Empty() {
		t.Errorf("handles must be cleared after a clean rollback: %+v", rolled.Handles)
	}
	for _, f := range fakes {
		if n := atomic.LoadInt32(&f.compensates); n != 1 {
			t.Errorf("%s compensated %d times", f.name, n)
		}
	}
}

func TestRollbackSkipsStagesWithoutHandles(t *testing.T) {
	fakes := fullStack()
	fakes[1].executeFn = func(context.Context, *models.DeploymentRequest, models.Handles) adapters.Outcome {
		return adapters.Failure(wingerr.ServiceAPI("unifi", "ERR_UNIFI_RULE_CREATE", 400, "rejected"))
	}
	r := newRig(t, asStack(fakes))

	created, _ := r.orch.Start(context.Background(), deployRequest("mc"))
	d := waitForStatus(t, r.reg, created.ID, models.StatusFailed)

	_, results, err := r.orch.Rollback(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("only the DNS handle exists, got %+v", results)
	}
	if results[0].Stage != "Cloudflare DNS" {
		t.Errorf("unexpected stage %s", results[0].Stage)
	}
	if atomic.LoadInt32(&fakes[0].compensates) != 1 {
		t.Error("recorded handle must be compensated")
	}
	for _, f := range fakes[1:] {
		if atomic.LoadInt32(&f.compensates) != 0 {
			t.Errorf("%s has no handle and must not be compensated", f.name)
		}
	}
}

func TestRollbackWithoutHandlesStillTransitions(t *testing.T) {
	fakes := fullStack()
	fakes[0].executeFn = func(context.Context, *models.DeploymentRequest, models.Handles) adapters.Outcome {
		return adapters.Failure(wingerr.ServiceAPI("cloudflare", "ERR_CF_DNS_CREATE", 400, "rejected"))
	}
	r := newRig(t, asStack(fakes))

	created, _ := r.orch.Start(context.Background(), deployRequest("mc"))
	waitForStatus(t, r.reg, created.ID, models.StatusFailed)

	rolled, results, err := r.orch.Rollback(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("nothing was provisioned, got %+v", results)
	}
	if rolled.Status != models.StatusRolledBack {
		t.Errorf("no-op rollback must still transition, got %s", rolled.Status)
	}
}

func TestRollbackRejectsRunningDeployment(t *testing.T) {
	r := newRig(t, asStack(fullStack()))

	rec := &models.Deployment{ID: "dep-1", Status: models.StatusInProgress}
	if err := r.reg.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, _, err := r.orch.Rollback(context.Background(), "dep-1")
	if !wingerr.IsValidation(err) {
		t.Fatalf("expected validation error for a running deployment, got %v", err)
	}
	if !strings.Contains(err.Error(), models.StatusInProgress) {
		t.Errorf("error should name the current status: %v", err)
	}
}

func TestRollbackUnknownDeployment(t *testing.T) {
	r := newRig(t, asStack(fullStack()))

	_, _, err := r.orch.Rollback(context.Background(), "missing")
	if !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRollbackContinuesPastFailedCompensation(t *testing.T) {
	fakes := fullStack()
	fakes[3].compensateF = func(context.Context, models.Handles) adapters.Outcome {
		return adapters.Failure(wingerr.ServiceAPI("pterodactyl", "ERR_PTERO_SERVER_DELETE", 409, "server is transferring"))
	}
	r := newRig(t, asStack(fakes))
	d := deployToCompletion(t, r)

	rolled, results, err := r.orch.Rollback(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	if len(results) != 4 {
		t.Fatalf("every recorded handle must be attempted, got %+v", results)
	}
	if results[0].Success {
		t.Error("panel compensation was injected to fail")
	}
	if !strings.Contains(results[0].Error, "server is transferring") {
		t.Errorf("failure reason must be reported, got %q", results[0].Error)
	}
	for _, res := range results[1:] {
		if !res.Success {
			t.Errorf("compensation %s should have proceeded despite the earlier failure", res.Stage)
		}
	}

	if rolled.Status != models.StatusRolledBack {
		t.Errorf("rollback is best effort and must still end rolled_back, got %s", rolled.Status)
	}
	if rolled.Handles.ServerID == "" {
		t.Error("failed compensation must keep its handle for a retry")
	}
	if rolled.Handles.DNSRecordID != "" || rolled.Handles.ProxyConfigID != "" || len(rolled.Handles.FirewallRuleIDs) != 0 {
		t.Errorf("successful compensations must clear their handles: %+v", rolled.Handles)
	}
}

func TestRollbackOfRolledBackRetriesLeftoverHandles(t *testing.T) {
	fakes := fullStack()
	var fail int32 = 1
	fakes[3].compensateF = func(context.Context, models.Handles) adapters.Outcome {
		if atomic.LoadInt32(&fail) == 1 {
			return adapters.Failure(wingerr.ServiceAPI("pterodactyl", "ERR_PTERO_SERVER_DELETE", 409, "busy"))
		}
		return adapters.Outcome{Success: true}
	}
	r := newRig(t, asStack(fakes))
	d := deployToCompletion(t, r)

	if _, _, err := r.orch.Rollback(context.Background(), d.ID); err != nil {
		t.Fatalf("first rollback failed: %v", err)
	}

	atomic.StoreInt32(&fail, 0)
	rolled, results, err := r.orch.Rollback(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("second rollback failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("only the leftover handle should be retried, got %+v", results)
	}
	if !results[0].Success {
		t.Errorf("retry should have succeeded: %s", results[0].Error)
	}
	if !rolled.Handles.Empty() {
		t.Errorf("all handles cleared after the retry: %+v", rolled.Handles)
	}
}

func TestRollbackLogsEachHandle(t *testing.T) {
	r := newRig(t, asStack(fullStack()))
	d := deployToCompletion(t, r)

	rolled, _, err := r.orch.Rollback(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if !hasLog(rolled, "Rollback started") {
		t.Error("missing rollback start log")
	}
	for _, stage := range []string{"Pterodactyl Server", "Nginx Proxy Manager", "UniFi Port Forwarding", "Cloudflare DNS"} {
		if !hasLog(rolled, stage+" rolled back") {
			t.Errorf("missing per-stage log for %s", stage)
		}
	}
	if !hasLog(rolled, "Rollback finished") {
		t.Error("missing rollback completion log")
	}
}
