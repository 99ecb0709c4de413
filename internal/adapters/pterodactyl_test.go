package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/treestandk/wingman/internal/config"
	"github.com/treestandk/wingman/internal/models"
	"github.com/treestandk/wingman/internal/wingerr"
)

func testPterodactylConfig(baseURL string) config.PterodactylConfig {
	return config.PterodactylConfig{
		Enabled: true,
		BaseURL: baseURL,
		APIKey:  "ptero-key",
		Timeout: 2 * time.Second,
	}
}

func panelRequest() *models.DeploymentRequest {
	req := testRequest()
	req.NestID = 1
	req.EggID = 5
	req.NodeID = 3
	req.AllocationID = 11
	return req
}

func pteroAttributes(items ...map[string]interface{}) map[string]interface{} {
	data := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		data = append(data, map[string]interface{}{"object": "item", "attributes": item})
	}
	return map[string]interface{}{"object": "list", "data": data}
}

func newFakePanel(t *testing.T) (*httptest.Server, *sync.Map) {
	state := &sync.Map{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer ptero-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if accept := r.Header.Get("Accept"); accept != "Application/vnd.pterodactyl.v1+json" {
			t.Errorf("unexpected Accept header %q", accept)
		}

		switch {
		case r.URL.Path == "/api/application/nests/1/eggs/5":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"object": "egg",
				"attributes": map[string]interface{}{
					"id":           5,
					"docker_image": "ghcr.io/pterodactyl/yolks:java_17",
					"startup":      "java -Xms128M -jar {{SERVER_JARFILE}}",
					"relationships": map[string]interface{}{
						"variables": map[string]interface{}{
							"data": []map[string]interface{}{
								{"attributes": map[string]string{"env_variable": "SERVER_JARFILE", "default_value": "server.jar"}},
								{"attributes": map[string]string{"env_variable": "VANILLA_VERSION", "default_value": "latest"}},
							},
						},
					},
				},
			})
		case r.URL.Path == "/api/application/servers" && r.Method == http.MethodPost:
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			state.Store("createBody", body)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"object": "server",
				"attributes": map[string]interface{}{
					"id": 42, "uuid": "d5f0689b", "identifier": "d5f0689b",
				},
			})
		case r.URL.Path == "/api/application/servers/42" && r.Method == http.MethodDelete:
			state.Store("deleted", true)
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/api/application/nests":
			json.NewEncoder(w).Encode(pteroAttributes(
				map[string]interface{}{"id": 1, "name": "Minecraft", "description": "Minecraft servers"},
				map[string]interface{}{"id": 2, "name": "Source Engine"},
			))
		case r.URL.Path == "/api/application/nests/1/eggs":
			json.NewEncoder(w).Encode(pteroAttributes(
				map[string]interface{}{"id": 5, "name": "Vanilla Minecraft"},
			))
		case r.URL.Path == "/api/application/nodes":
			json.NewEncoder(w).Encode(pteroAttributes(
				map[string]interface{}{"id": 3, "name": "node-1", "fqdn": "node1.example.com", "memory": 16384, "disk": 102400},
			))
		case r.URL.Path == "/api/application/nodes/3/allocations":
			json.NewEncoder(w).Encode(pteroAttributes(
				map[string]interface{}{"id": 11, "ip": "0.0.0.0", "port": 25565, "assigned": false},
				map[string]interface{}{"id": 12, "ip": "0.0.0.0", "port": 25566, "assigned": true},
			))
		default:
			http.NotFound(w, r)
		}
	}))
	return srv, state
}

func TestPterodactylExecuteProvisionsServer(t *testing.T) {
	srv, state := newFakePanel(t)
	defer srv.Close()

	p := NewPterodactyl(testPterodactylConfig(srv.URL))
	out := p.Execute(context.Background(), panelRequest(), models.Handles{})
	if !out.Success {
		t.Fatalf("Execute failed: %v", out.Err)
	}
	if out.Handles.ServerID != "42" || out.Handles.ServerUUID != "d5f0689b" {
		t.Errorf("unexpected handles: %+v", out.Handles)
	}

	raw, ok := state.Load("createBody")
	if !ok {
		t.Fatal("server create never reached the panel")
	}
	body := raw.(map[string]interface{})
	if body["docker_image"] != "ghcr.io/pterodactyl/yolks:java_17" {
		t.Errorf("docker image should come from the egg, got %v", body["docker_image"])
	}
	env := body["environment"].(map[string]interface{})
	if env["SERVER_JARFILE"] != "server.jar" || env["VANILLA_VERSION"] != "latest" {
		t.Errorf("environment should carry egg variable defaults, got %v", env)
	}
	limits := body["limits"].(map[string]interface{})
	if limits["memory"] != float64(pteroDefaultMemoryMB) {
		t.Errorf("expected default memory limit, got %v", limits["memory"])
	}
	alloc := body["allocation"].(map[string]interface{})
	if alloc["default"] != float64(11) {
		t.Errorf("expected allocation 11, got %v", alloc["default"])
	}
}

func TestPterodactylExecuteHonorsRequestedLimits(t *testing.T) {
	srv, state := newFakePanel(t)
	defer srv.Close()

	req := panelRequest()
	req.MemoryMB = 4096
	req.DiskMB = 20480
	req.CPUPercent = 200

	p := NewPterodactyl(testPterodactylConfig(srv.URL))
	if out := p.Execute(context.Background(), req, models.Handles{}); !out.Success {
		t.Fatalf("Execute failed: %v", out.Err)
	}

	raw, _ := state.Load("createBody")
	limits := raw.(map[string]interface{})["limits"].(map[string]interface{})
	if limits["memory"] != float64(4096) || limits["disk"] != float64(20480) || limits["cpu"] != float64(200) {
		t.Errorf("requested limits not honored: %v", limits)
	}
}

func TestPterodactylExecuteRequiresSelectors(t *testing.T) {
	p := NewPterodactyl(testPterodactylConfig("http://127.0.0.1:0"))
	out := p.Execute(context.Background(), testRequest(), models.Handles{})
	if out.Success {
		t.Fatal("expected validation failure without panel selectors")
	}
	if !wingerr.IsValidation(out.Err) {
		t.Errorf("expected validation error, got %v", out.Err)
	}
}

func TestPterodactylCompensateDeletesServer(t *testing.T) {
	srv, state := newFakePanel(t)
	defer srv.Close()

	p := NewPterodactyl(testPterodactylConfig(srv.URL))
	out := p.Compensate(context.Background(), models.Handles{ServerID: "42", ServerUUID: "d5f0689b"})
	if !out.Success {
		t.Fatalf("Compensate failed: %v", out.Err)
	}
	if _, ok := state.Load("deleted"); !ok {
		t.Error("server deletion never reached the panel")
	}
}

func TestPterodactylListNests(t *testing.T) {
	srv, _ := newFakePanel(t)
	defer srv.Close()

	p := NewPterodactyl(testPterodactylConfig(srv.URL))
	nests, err := p.ListNests(context.Background())
	if err != nil {
		t.Fatalf("ListNests failed: %v", err)
	}
	if len(nests) != 2 || nests[0].Name != "Minecraft" {
		t.Errorf("unexpected nests: %+v", nests)
	}
}

func TestPterodactylListAllocationsFreeOnly(t *testing.T) {
	srv, _ := newFakePanel(t)
	defer srv.Close()

	p := NewPterodactyl(testPterodactylConfig(srv.URL))

	all, err := p.ListAllocations(context.Background(), 3, false)
	if err != nil {
		t.Fatalf("ListAllocations failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected both allocations, got %+v", all)
	}

	free, err := p.ListAllocations(context.Background(), 3, true)
	if err != nil {
		t.Fatalf("ListAllocations(freeOnly) failed: %v", err)
	}
	if len(free) != 1 || free[0].ID != 11 {
		t.Errorf("expected only the unassigned allocation, got %+v", free)
	}
}

func TestPterodactylListEggsUnknownNest(t *testing.T) {
	srv, _ := newFakePanel(t)
	defer srv.Close()

	p := NewPterodactyl(testPterodactylConfig(srv.URL))
	if _, err := p.ListEggs(context.Background(), 99); !wingerr.IsNotFound(err) {
		t.Errorf("expected not-found for unknown nest, got %v", err)
	}
}
