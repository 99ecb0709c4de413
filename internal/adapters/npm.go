package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/treestandk/wingman/internal/config"
	"github.com/treestandk/wingman/internal/logger"
	"github.com/treestandk/wingman/internal/models"
	"github.com/treestandk/wingman/internal/wingerr"
)

const (
	npmCodeAuth         = "ERR_NPM_AUTH"
	npmCodeStreamCreate = "ERR_NPM_STREAM_CREATE"
	npmCodeStreamDelete = "ERR_NPM_STREAM_DELETE"
	npmCodeProbe        = "ERR_NPM_PROBE"

	// Tokens are refreshed this long before their reported expiry.
	npmTokenRefreshMargin = time.Minute
)

// NPM manages the reverse-proxy stage: one nginx stream per deployment
// forwarding the game port to the server. API tokens are cached and reused
// until close to expiry.
type NPM struct {
	cfg    config.NPMConfig
	client *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewNPM(cfg config.NPMConfig) *NPM {
	return &NPM{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (n *NPM) Name() string      { return ServiceNPM }
func (n *NPM) StageName() string { return "Nginx Proxy Manager" }

func (n *NPM) IsConfigured() bool { return n.cfg.IsConfigured() }

// Execute creates the stream for the deployment's primary game port.
// Additional ports are the router stage's business; the proxy only fronts
// the main endpoint.
func (n *NPM) Execute(ctx context.Context, req *models.DeploymentRequest, _ models.Handles) Outcome {
	proto := req.EffectiveProtocol()
	payload := map[string]interface{}{
		"incoming_port":   req.GamePort,
		"forwarding_host": req.ServerIP,
		"forwarding_port": req.GamePort,
		"tcp_forwarding":  proto == models.ProtocolTCP || proto == models.ProtocolTCPUDP,
		"udp_forwarding":  proto == models.ProtocolUDP || proto == models.ProtocolTCPUDP,
		"certificate_id":  0,
		"meta":            map[string]interface{}{},
	}

	var stream struct {
		ID int `json:"id"`
	}
	status, err := n.do(ctx, http.MethodPost, "/api/nginx/streams", payload, &stream)
	if err != nil {
		return Failure(err)
	}
	if status < 200 || status >= 300 {
		return Failure(wingerr.ServiceAPI(ServiceNPM, npmCodeStreamCreate, status,
			fmt.Sprintf("stream creation for port %d rejected", req.GamePort)))
	}
	if stream.ID == 0 {
		return Failure(wingerr.BadResponse(ServiceNPM, "stream response missing id", nil))
	}

	logger.WithFields(map[string]interface{}{
		"stream_id":       stream.ID,
		"incoming_port":   req.GamePort,
		"forwarding_host": req.ServerIP,
	}).Info("Proxy stream created")

	return Outcome{
		Success: true,
		Handles: models.Handles{ProxyConfigID: strconv.Itoa(stream.ID)},
		Message: fmt.Sprintf("stream %d: port %d -> %s:%d", stream.ID, req.GamePort, req.ServerIP, req.GamePort),
	}
}

// Compensate deletes the recorded stream. The delete endpoint answers with
// a bare boolean body, so only the status code is checked.
func (n *NPM) Compensate(ctx context.Context, handles models.Handles) Outcome {
	if handles.ProxyConfigID == "" {
		return Outcome{Success: true, Message: "no proxy stream to remove"}
	}

	status, err := n.do(ctx, http.MethodDelete, "/api/nginx/streams/"+handles.ProxyConfigID, nil, nil)
	if err != nil {
		return Failure(err)
	}
	if status < 200 || status >= 300 {
		return Failure(wingerr.ServiceAPI(ServiceNPM, npmCodeStreamDelete, status,
			fmt.Sprintf("stream %s rejected for deletion", handles.ProxyConfigID)))
	}

	logger.WithField("stream_id", handles.ProxyConfigID).Info("Proxy stream removed")
	return Outcome{Success: true, Message: "proxy stream removed"}
}

// TestConnectivity probes the web root. The manager answers 200, 401 or
// 404 there depending on version and auth state; all three prove the
// service is reachable.
func (n *NPM) TestConnectivity(ctx context.Context) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.cfg.BaseURL+"/", nil)
	if err != nil {
		return Failure(fmt.Errorf("creating probe request: %w", err))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return Failure(wingerr.Classify(ServiceNPM, err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusUnauthorized, http.StatusNotFound:
		return Outcome{Success: true, Message: "proxy manager reachable"}
	}
	return Failure(wingerr.ServiceAPI(ServiceNPM, npmCodeProbe, resp.StatusCode, "unexpected probe response"))
}

// getToken returns a cached bearer token, requesting a fresh one when the
// cache is empty or the token is about to expire.
func (n *NPM) getToken(ctx context.Context) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.token != "" && time.Until(n.tokenExpiry) > npmTokenRefreshMargin {
		return n.token, nil
	}

	payload := map[string]string{
		"identity": n.cfg.Email,
		"secret":   n.cfg.Password,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.BaseURL+"/api/tokens", bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", wingerr.Classify(ServiceNPM, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", wingerr.ServiceAPI(ServiceNPM, npmCodeAuth, resp.StatusCode, "token request rejected")
	}

	var grant struct {
		Token   string `json:"token"`
		Expires string `json:"expires"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return "", wingerr.BadResponse(ServiceNPM, "decoding token response", err)
	}
	if grant.Token == "" {
		return "", wingerr.BadResponse(ServiceNPM, "token response missing token", nil)
	}

	expiry := time.Now().Add(time.Hour)
	if parsed, err := time.Parse(time.RFC3339, grant.Expires); err == nil {
		expiry = parsed
	}

	n.token = grant.Token
	n.tokenExpiry = expiry
	logger.WithField("expires", expiry.Format(time.RFC3339)).Debug("Proxy manager token refreshed")
	return n.token, nil
}

// do issues one authenticated API request, retrying once with a fresh
// token when the cached one has been revoked server-side.
func (n *NPM) do(ctx context.Context, method, path string, payload, out interface{}) (int, error) {
	status, err := n.doOnce(ctx, method, path, payload, out)
	if err != nil || status != http.StatusUnauthorized {
		return status, err
	}

	n.mu.Lock()
	n.token = ""
	n.mu.Unlock()
	return n.doOnce(ctx, method, path, payload, out)
}

func (n *NPM) doOnce(ctx context.Context, method, path string, payload, out interface{}) (int, error) {
	token, err := n.getToken(ctx)
	if err != nil {
		return 0, err
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, n.cfg.BaseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, wingerr.Classify(ServiceNPM, err)
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, wingerr.BadResponse(ServiceNPM, "decoding response", err)
	}
	return resp.StatusCode, nil
}
