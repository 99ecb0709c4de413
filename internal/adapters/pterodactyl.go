package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/treestandk/wingman/internal/config"
	"github.com/treestandk/wingman/internal/logger"
	"github.com/treestandk/wingman/internal/models"
	"github.com/treestandk/wingman/internal/wingerr"
)

const (
	pteroCodeServerCreate = "ERR_PTERO_SERVER_CREATE"
	pteroCodeServerDelete = "ERR_PTERO_SERVER_DELETE"
	pteroCodeEggFetch     = "ERR_PTERO_EGG_FETCH"
	pteroCodeCatalog      = "ERR_PTERO_CATALOG"
	pteroCodeProbe        = "ERR_PTERO_PROBE"

	// Resource limits applied when the request leaves them unset.
	pteroDefaultMemoryMB   = 1024
	pteroDefaultDiskMB     = 5120
	pteroDefaultCPUPercent = 100

	// Panel user that owns provisioned servers.
	pteroOwnerUserID = 1
)

// Pterodactyl manages the hosting-panel stage: provisioning a game server
// from the selected nest/egg/node/allocation. It also exposes the catalog
// reads the selection UI is built on.
type Pterodactyl struct {
	cfg    config.PterodactylConfig
	client *http.Client
}

func NewPterodactyl(cfg config.PterodactylConfig) *Pterodactyl {
	return &Pterodactyl{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *Pterodactyl) Name() string      { return ServicePterodactyl }
func (p *Pterodactyl) StageName() string { return "Pterodactyl Server" }

func (p *Pterodactyl) IsConfigured() bool { return p.cfg.IsConfigured() }

// pteroList is the panel's list envelope: data items each wrap their
// payload under "attributes".
type pteroList struct {
	Data []struct {
		Attributes json.RawMessage `json:"attributes"`
	} `json:"data"`
}

// Execute provisions a server for the deployment. The egg is fetched
// first for its docker image, startup command and variable defaults; the
// create payload is assembled from those plus the request's limits.
func (p *Pterodactyl) Execute(ctx context.Context, req *models.DeploymentRequest, _ models.Handles) Outcome {
	if !req.HasPanelSelectors() {
		return Failure(wingerr.Validation("hosting panel stage requires nest, egg, node and allocation ids"))
	}

	egg, err := p.fetchEgg(ctx, req.NestID, req.EggID)
	if err != nil {
		return Failure(err)
	}

	limits := map[string]interface{}{
		"memory": valueOrDefault(req.MemoryMB, pteroDefaultMemoryMB),
		"swap":   0,
		"disk":   valueOrDefault(req.DiskMB, pteroDefaultDiskMB),
		"io":     500,
		"cpu":    valueOrDefault(req.CPUPercent, pteroDefaultCPUPercent),
	}
	payload := map[string]interface{}{
		"name":                req.Subdomain,
		"user":                pteroOwnerUserID,
		"egg":                 req.EggID,
		"docker_image":        egg.DockerImage,
		"startup":             egg.Startup,
		"environment":         egg.EnvironmentDefaults,
		"limits":              limits,
		"feature_limits":      map[string]int{"databases": 0, "backups": 0},
		"allocation":          map[string]int{"default": req.AllocationID},
		"start_on_completion": true,
	}

	var created struct {
		Attributes struct {
			ID         int    `json:"id"`
			UUID       string `json:"uuid"`
			Identifier string `json:"identifier"`
		} `json:"attributes"`
	}
	status, err := p.do(ctx, http.MethodPost, "/api/application/servers", payload, &created)
	if err != nil {
		return Failure(err)
	}
	if status < 200 || status >= 300 {
		return Failure(wingerr.ServiceAPI(ServicePterodactyl, pteroCodeServerCreate, status,
			fmt.Sprintf("server creation rejected for allocation %d", req.AllocationID)))
	}
	if created.Attributes.ID == 0 {
		return Failure(wingerr.BadResponse(ServicePterodactyl, "server response missing id", nil))
	}

	logger.WithFields(map[string]interface{}{
		"server_id":   created.Attributes.ID,
		"server_uuid": created.Attributes.UUID,
		"egg_id":      req.EggID,
		"node_id":     req.NodeID,
	}).Info("Game server provisioned")

	return Outcome{
		Success: true,
		Handles: models.Handles{
			ServerID:   strconv.Itoa(created.Attributes.ID),
			ServerUUID: created.Attributes.UUID,
		},
		Message: fmt.Sprintf("server %s (id %d) provisioned", created.Attributes.Identifier, created.Attributes.ID),
	}
}

// Compensate deletes the recorded server.
func (p *Pterodactyl) Compensate(ctx context.Context, handles models.Handles) Outcome {
	if handles.ServerID == "" {
		return Outcome{Success: true, Message: "no game server to remove"}
	}

	status, err := p.do(ctx, http.MethodDelete, "/api/application/servers/"+handles.ServerID, nil, nil)
	if err != nil {
		return Failure(err)
	}
	if status < 200 || status >= 300 {
		return Failure(wingerr.ServiceAPI(ServicePterodactyl, pteroCodeServerDelete, status,
			fmt.Sprintf("server %s rejected for deletion", handles.ServerID)))
	}

	logger.WithField("server_id", handles.ServerID).Info("Game server removed")
	return Outcome{Success: true, Message: "game server removed"}
}

// TestConnectivity reads the first page of nests, proving both
// reachability and that the application key is accepted.
func (p *Pterodactyl) TestConnectivity(ctx context.Context) Outcome {
	var out pteroList
	status, err := p.do(ctx, http.MethodGet, "/api/application/nests?per_page=1", nil, &out)
	if err != nil {
		return Failure(err)
	}
	if status != http.StatusOK {
		return Failure(wingerr.ServiceAPI(ServicePterodactyl, pteroCodeProbe, status, "nest listing rejected"))
	}
	return Outcome{Success: true, Message: "panel reachable, application key valid"}
}

// ListNests returns the panel's nests (game categories).
func (p *Pterodactyl) ListNests(ctx context.Context) ([]models.Nest, error) {
	var out pteroList
	status, err := p.do(ctx, http.MethodGet, "/api/application/nests", nil, &out)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, wingerr.ServiceAPI(ServicePterodactyl, pteroCodeCatalog, status, "nest listing rejected")
	}

	nests := make([]models.Nest, 0, len(out.Data))
	for _, item := range out.Data {
		var nest models.Nest
		if err := json.Unmarshal(item.Attributes, &nest); err != nil {
			return nil, wingerr.BadResponse(ServicePterodactyl, "decoding nest", err)
		}
		nests = append(nests, nest)
	}
	return nests, nil
}

// ListEggs returns the eggs (server images) under one nest.
func (p *Pterodactyl) ListEggs(ctx context.Context, nestID int) ([]models.Egg, error) {
	var out pteroList
	status, err := p.do(ctx, http.MethodGet, fmt.Sprintf("/api/application/nests/%d/eggs", nestID), nil, &out)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, wingerr.NotFound("nest", strconv.Itoa(nestID))
	}
	if status != http.StatusOK {
		return nil, wingerr.ServiceAPI(ServicePterodactyl, pteroCodeCatalog, status, "egg listing rejected")
	}

	eggs := make([]models.Egg, 0, len(out.Data))
	for _, item := range out.Data {
		var egg models.Egg
		if err := json.Unmarshal(item.Attributes, &egg); err != nil {
			return nil, wingerr.BadResponse(ServicePterodactyl, "decoding egg", err)
		}
		eggs = append(eggs, egg)
	}
	return eggs, nil
}

// ListNodes returns the panel's nodes.
func (p *Pterodactyl) ListNodes(ctx context.Context) ([]models.Node, error) {
	var out pteroList
	status, err := p.do(ctx, http.MethodGet, "/api/application/nodes", nil, &out)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, wingerr.ServiceAPI(ServicePterodactyl, pteroCodeCatalog, status, "node listing rejected")
	}

	nodes := make([]models.Node, 0, len(out.Data))
	for _, item := range out.Data {
		var attrs struct {
			ID     int    `json:"id"`
			Name   string `json:"name"`
			FQDN   string `json:"fqdn"`
			Memory int    `json:"memory"`
			Disk   int    `json:"disk"`
		}
		if err := json.Unmarshal(item.Attributes, &attrs); err != nil {
			return nil, wingerr.BadResponse(ServicePterodactyl, "decoding node", err)
		}
		nodes = append(nodes, models.Node{
			ID:       attrs.ID,
			Name:     attrs.Name,
			FQDN:     attrs.FQDN,
			MemoryMB: attrs.Memory,
			DiskMB:   attrs.Disk,
		})
	}
	return nodes, nil
}

// ListAllocations returns a node's allocations, optionally only the
// unassigned ones a new server could claim.
func (p *Pterodactyl) ListAllocations(ctx context.Context, nodeID int, freeOnly bool) ([]models.Allocation, error) {
	var out pteroList
	status, err := p.do(ctx, http.MethodGet, fmt.Sprintf("/api/application/nodes/%d/allocations?per_page=100", nodeID), nil, &out)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, wingerr.NotFound("node", strconv.Itoa(nodeID))
	}
	if status != http.StatusOK {
		return nil, wingerr.ServiceAPI(ServicePterodactyl, pteroCodeCatalog, status, "allocation listing rejected")
	}

	allocations := make([]models.Allocation, 0, len(out.Data))
	for _, item := range out.Data {
		var alloc models.Allocation
		if err := json.Unmarshal(item.Attributes, &alloc); err != nil {
			return nil, wingerr.BadResponse(ServicePterodactyl, "decoding allocation", err)
		}
		if freeOnly && alloc.Assigned {
			continue
		}
		allocations = append(allocations, alloc)
	}
	return allocations, nil
}

// eggDetail carries what server provisioning needs from an egg: image,
// startup command and the variables' default environment.
type eggDetail struct {
	DockerImage         string
	Startup             string
	EnvironmentDefaults map[string]string
}

func (p *Pterodactyl) fetchEgg(ctx context.Context, nestID, eggID int) (*eggDetail, error) {
	var out struct {
		Attributes struct {
			DockerImage   string `json:"docker_image"`
			Startup       string `json:"startup"`
			Relationships struct {
				Variables struct {
					Data []struct {
						Attributes struct {
							EnvVariable  string `json:"env_variable"`
							DefaultValue string `json:"default_value"`
						} `json:"attributes"`
					} `json:"data"`
				} `json:"variables"`
			} `json:"relationships"`
		} `json:"attributes"`
	}

	path := fmt.Sprintf("/api/application/nests/%d/eggs/%d?include=variables", nestID, eggID)
	status, err := p.do(ctx, http.MethodGet, path, nil, &out)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, wingerr.NotFound("egg", strconv.Itoa(eggID))
	}
	if status != http.StatusOK {
		return nil, wingerr.ServiceAPI(ServicePterodactyl, pteroCodeEggFetch, status,
			fmt.Sprintf("egg %d fetch rejected", eggID))
	}

	environment := make(map[string]string, len(out.Attributes.Relationships.Variables.Data))
	for _, v := range out.Attributes.Relationships.Variables.Data {
		environment[v.Attributes.EnvVariable] = v.Attributes.DefaultValue
	}
	return &eggDetail{
		DockerImage:         out.Attributes.DockerImage,
		Startup:             out.Attributes.Startup,
		EnvironmentDefaults: environment,
	}, nil
}

func (p *Pterodactyl) do(ctx context.Context, method, path string, payload, out interface{}) (int, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Accept", "Application/vnd.pterodactyl.v1+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, wingerr.Classify(ServicePterodactyl, err)
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, wingerr.BadResponse(ServicePterodactyl, "decoding response", err)
	}
	return resp.StatusCode, nil
}

func valueOrDefault(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
