package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/treestandk/wingman/internal/adapters"
	"github.com/treestandk/wingman/internal/audit"
	"github.com/treestandk/wingman/internal/events"
	"github.com/treestandk/wingman/internal/models"
	"github.com/treestandk/wingman/internal/orchestrator"
	"github.com/treestandk/wingman/internal/registry"
	"github.com/treestandk/wingman/internal/templates"
	"github.com/treestandk/wingman/internal/workers"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubAdapter is a minimal stage double for handler tests.
type stubAdapter struct {
	name       string
	stage      string
	configured bool
	executeFn  func(ctx context.Context, req *models.DeploymentRequest, prior models.Handles) adapters.Outcome
	connectFn  func(ctx context.Context) adapters.Outcome
}

func (s *stubAdapter) Name() string       { return s.name }
func (s *stubAdapter) StageName() string  { return s.stage }
func (s *stubAdapter) IsConfigured() bool { return s.configured }

func (s *stubAdapter) Execute(ctx context.Context, req *models.DeploymentRequest, prior models.Handles) adapters.Outcome {
	if s.executeFn != nil {
		return s.executeFn(ctx, req, prior)
	}
	return adapters.Outcome{Success: true, Handles: models.Handles{DNSRecordID: "rec-1"}, Message: "done"}
}

func (s *stubAdapter) Compensate(ctx context.Context, h models.Handles) adapters.Outcome {
	return adapters.Outcome{Success: true}
}

func (s *stubAdapter) TestConnectivity(ctx context.Context) adapters.Outcome {
	if s.connectFn != nil {
		return s.connectFn(ctx)
	}
	return adapters.Outcome{Success: true, Message: "ok"}
}

// captureSink records audit events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *captureSink) Record(_ context.Context, ev audit.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *captureSink) byAction(action string) []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Event
	for _, ev := range s.events {
		if ev.Action == action {
			out = append(out, ev)
		}
	}
	return out
}

type deployEnv struct {
	router *gin.Engine
	reg    registry.Registry
	orch   *orchestrator.Orchestrator
	hub    *events.Hub
	store  *templates.Store
	audits *captureSink
}

// newDeployEnv wires a real orchestrator over stub stages and mounts the
// deployment routes without authentication.
func newDeployEnv(t *testing.T, stack []adapters.Adapter) *deployEnv {
	t.Helper()

	store, err := templates.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("creating template store: %v", err)
	}

	reg := registry.NewMemory()
	hub := events.NewHub()
	sup := workers.NewSupervisor(32, 4)
	t.Cleanup(func() {
		sup.Close()
		sup.Wait()
	})

	orch := orchestrator.New(reg, hub, sup, store, stack, "example.com", 5*time.Second)
	audits := &captureSink{}

	dh := NewDeploymentHandler(orch, audits)
	mh := NewMonitoringHandler(orch)

	router := gin.New()
	api := router.Group("/api")
	api.POST("/deploy", dh.Deploy)
	api.GET("/deployments", dh.List)
	api.GET("/status/:id", dh.Status)
	api.GET("/logs/:id", dh.Logs)
	api.POST("/rollback/:id", dh.Rollback)
	api.GET("/monitoring/stats", mh.Stats)

	return &deployEnv{
		router: router,
		reg:    reg,
		orch:   orch,
		hub:    hub,
		store:  store,
		audits: audits,
	}
}

func defaultStack() []adapters.Adapter {
	return []adapters.Adapter{
		&stubAdapter{name: adapters.ServiceCloudflare, stage: "Cloudflare DNS", configured: true},
	}
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	return doAuthedJSON(t, router, method, path, body, "")
}

func doAuthedJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
}

func validDeployBody() map[string]interface{} {
	return map[string]interface{}{
		"subdomain": "mc-survival",
		"server_ip": "192.168.1.50",
		"game_port": 25565,
	}
}

func awaitStatus(t *testing.T, reg registry.Registry, id string, statuses ...string) *models.Deployment {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		d, err := reg.Get(context.Background(), id)
		if err == nil {
			for _, s := range statuses {
				if d.Status == s {
					return d
				}
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("deployment %s never reached %v", id, statuses)
	return nil
}

func requireStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, w.Code, w.Body.String())
	}
}
