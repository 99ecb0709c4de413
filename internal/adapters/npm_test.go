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
)

func testNPMConfig(baseURL string) config.NPMConfig {
	return config.NPMConfig{
		Enabled:  true,
		BaseURL:  baseURL,
		Email:    "admin@example.com",
		Password: "secret",
		Timeout:  2 * time.Second,
	}
}

// fakeNPM serves the token and stream endpoints with counters the tests
// assert on.
type fakeNPM struct {
	mu            sync.Mutex
	tokenRequests int
	revokeOnce    bool
	streamBody    map[string]interface{}
	deletedPath   string
}

func (f *fakeNPM) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch {
		case r.URL.Path == "/api/tokens" && r.Method == http.MethodPost:
			var creds map[string]string
			json.NewDecoder(r.Body).Decode(&creds)
			if creds["identity"] != "admin@example.com" || creds["secret"] != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			f.tokenRequests++
			json.NewEncoder(w).Encode(map[string]string{
				"token":   "tok",
				"expires": time.Now().Add(2 * time.Hour).Format(time.RFC3339),
			})
		case r.URL.Path == "/api/nginx/streams" && r.Method == http.MethodPost:
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if f.revokeOnce {
				f.revokeOnce = false
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewDecoder(r.Body).Decode(&f.streamBody)
			json.NewEncoder(w).Encode(map[string]int{"id": 7})
		case r.Method == http.MethodDelete:
			f.deletedPath = r.URL.Path
			w.Write([]byte("true")) // the manager answers deletes with a bare boolean
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	})
}

func TestNPMExecuteCreatesStream(t *testing.T) {
	fake := &fakeNPM{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	n := NewNPM(testNPMConfig(srv.URL))
	out := n.Execute(context.Background(), testRequest(), models.Handles{})
	if !out.Success {
		t.Fatalf("Execute failed: %v", out.Err)
	}
	if out.Handles.ProxyConfigID != "7" {
		t.Errorf("expected stream id 7, got %q", out.Handles.ProxyConfigID)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.streamBody["incoming_port"] != float64(25565) {
		t.Errorf("unexpected incoming port: %v", fake.streamBody["incoming_port"])
	}
	if fake.streamBody["forwarding_host"] != "192.168.1.50" {
		t.Errorf("unexpected forwarding host: %v", fake.streamBody["forwarding_host"])
	}
	// default protocol forwards both
	if fake.streamBody["tcp_forwarding"] != true || fake.streamBody["udp_forwarding"] != true {
		t.Errorf("expected tcp and udp forwarding, got %v", fake.streamBody)
	}
}

func TestNPMExecuteUDPOnly(t *testing.T) {
	fake := &fakeNPM{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	req := testRequest()
	req.Protocol = models.ProtocolUDP

	n := NewNPM(testNPMConfig(srv.URL))
	if out := n.Execute(context.Background(), req, models.Handles{}); !out.Success {
		t.Fatalf("Execute failed: %v", out.Err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.streamBody["tcp_forwarding"] != false || fake.streamBody["udp_forwarding"] != true {
		t.Errorf("expected udp-only forwarding, got %v", fake.streamBody)
	}
}

func TestNPMTokenCachedAcrossCalls(t *testing.T) {
	fake := &fakeNPM{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	n := NewNPM(testNPMConfig(srv.URL))
	for i := 0; i < 3; i++ {
		if out := n.Execute(context.Background(), testRequest(), models.Handles{}); !out.Success {
			t.Fatalf("Execute %d failed: %v", i, out.Err)
		}
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.tokenRequests != 1 {
		t.Errorf("expected one token request across calls, got %d", fake.tokenRequests)
	}
}

func TestNPMRetriesOnceAfterTokenRevocation(t *testing.T) {
	fake := &fakeNPM{revokeOnce: true}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	n := NewNPM(testNPMConfig(srv.URL))
	out := n.Execute(context.Background(), testRequest(), models.Handles{})
	if !out.Success {
		t.Fatalf("Execute failed after token refresh: %v", out.Err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.tokenRequests != 2 {
		t.Errorf("expected a second token request after revocation, got %d", fake.tokenRequests)
	}
}

func TestNPMCompensateDeletesStream(t *testing.T) {
	fake := &fakeNPM{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	n := NewNPM(testNPMConfig(srv.URL))
	out := n.Compensate(context.Background(), models.Handles{ProxyConfigID: "7"})
	if !out.Success {
		t.Fatalf("Compensate failed: %v", out.Err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.deletedPath != "/api/nginx/streams/7" {
		t.Errorf("unexpected delete path %q", fake.deletedPath)
	}
}

func TestNPMConnectivityAcceptsAuthChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	n := NewNPM(testNPMConfig(srv.URL))
	if out := n.TestConnectivity(context.Background()); !out.Success {
		t.Fatalf("401 from the web root still proves reachability: %v", out.Err)
	}
}

func TestNPMConnectivityRejectsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewNPM(testNPMConfig(srv.URL))
	if out := n.TestConnectivity(context.Background()); out.Success {
		t.Fatal("expected probe failure on 502")
	}
}
