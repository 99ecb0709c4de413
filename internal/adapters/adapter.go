package adapters

import (
	"context"

	"github.com/treestandk/wingman/internal/models"
)

// Service keys, stable identifiers used in configuration, errors and logs.
const (
	ServiceCloudflare  = "cloudflare"
	ServiceUniFi       = "unifi"
	ServiceNPM         = "npm"
	ServicePterodactyl = "pterodactyl"
)

// Outcome is the result of one adapter operation. Handles carries only the
// fields owned by the reporting adapter; the orchestrator merges them into
// the deployment record after success.
type Outcome struct {
	Success bool
	Handles models.Handles
	Message string
	Err     error
}

// Failure builds a failed Outcome from a typed error.
func Failure(err error) Outcome {
	return Outcome{Success: false, Err: err}
}

// Adapter wraps one external service behind the uniform stage contract.
//
// Execute performs the service calls for this stage using the deployment's
// desired state and any handles recorded by earlier stages. Compensate
// undoes previously recorded handles, best effort. TestConnectivity is a
// lightweight credential/reachability probe used by diagnostics, never by
// the deployment flow itself.
type Adapter interface {
	Name() string
	StageName() string
	IsConfigured() bool
	Execute(ctx context.Context, req *models.DeploymentRequest, prior models.Handles) Outcome
	Compensate(ctx context.Context, handles models.Handles) Outcome
	TestConnectivity(ctx context.Context) Outcome
}

// HasHandle reports whether handles contain anything this adapter would
// need to compensate.
func HasHandle(name string, h models.Handles) bool {
	switch name {
	case ServiceCloudflare:
		return h.DNSRecordID != ""
	case ServiceUniFi:
		return len(h.FirewallRuleIDs) > 0
	case ServiceNPM:
		return h.ProxyConfigID != ""
	case ServicePterodactyl:
		return h.ServerID != ""
	}
	return false
}
