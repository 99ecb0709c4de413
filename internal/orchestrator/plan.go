package orchestrator

import (
	"github.com/treestandk/wingman/internal/adapters"
	"github.com/treestandk/wingman/internal/models"
)

// plannedStage pairs an adapter with the progress values its step
// transitions checkpoint to.
type plannedStage struct {
	adapter        adapters.Adapter
	activeProgress int
	doneProgress   int
}

// skippedStage names a candidate stage left out of the plan and why.
type skippedStage struct {
	name   string
	reason string
}

// buildPlan selects the stages a deployment will run, keeping the fixed
// service order, and spreads progress checkpoints over them. The last
// stage always closes at 100.
func buildPlan(stack []adapters.Adapter, req *models.DeploymentRequest) ([]plannedStage, []skippedStage) {
	selected := make([]adapters.Adapter, 0, len(stack))
	var skipped []skippedStage
	for _, a := range stack {
		if !a.IsConfigured() {
			skipped = append(skipped, skippedStage{name: a.StageName(), reason: "service not configured"})
			continue
		}
		if a.Name() == adapters.ServicePterodactyl && !req.HasPanelSelectors() {
			skipped = append(skipped, skippedStage{name: a.StageName(), reason: "no server selection in request"})
			continue
		}
		selected = append(selected, a)
	}

	n := len(selected)
	if n == 0 {
		return nil, skipped
	}

	span := 100 / n
	plan := make([]plannedStage, n)
	for i, a := range selected {
		done := (i + 1) * span
		if i == n-1 {
			done = 100
		}
		plan[i] = plannedStage{
			adapter:        a,
			activeProgress: i*span + (2*span)/5,
			doneProgress:   done,
		}
	}
	return plan, skipped
}
