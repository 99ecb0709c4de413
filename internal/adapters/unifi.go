package adapters

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"

	"github.com/treestandk/wingman/internal/config"
	"github.com/treestandk/wingman/internal/logger"
	"github.com/treestandk/wingman/internal/models"
	"github.com/treestandk/wingman/internal/wingerr"
)

const (
	unifiCodeLogin      = "ERR_UNIFI_LOGIN"
	unifiCodeRuleCreate = "ERR_UNIFI_RULE_CREATE"
	unifiCodeRuleDelete = "ERR_UNIFI_RULE_DELETE"
	unifiCodeHealth     = "ERR_UNIFI_HEALTH"
)

// UniFi manages the router stage: one port forwarding rule per requested
// port, created through the controller's REST API. Supports both UDM-style
// controllers (login at /api/auth/login, API under /proxy/network) and
// classic ones.
type UniFi struct {
	cfg    config.UniFiConfig
	client *http.Client

	mu       sync.Mutex
	loggedIn bool
	csrf     string
}

func NewUniFi(cfg config.UniFiConfig) *UniFi {
	jar, _ := cookiejar.New(nil)
	return &UniFi{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.SkipTLSVerify},
			},
		},
	}
}

func (u *UniFi) Name() string      { return ServiceUniFi }
func (u *UniFi) StageName() string { return "UniFi Port Forwarding" }

func (u *UniFi) IsConfigured() bool { return u.cfg.IsConfigured() }

type unifiMeta struct {
	RC      string `json:"rc"`
	Message string `json:"msg"`
}

type unifiResponse struct {
	Meta unifiMeta       `json:"meta"`
	Data json.RawMessage `json:"data"`
}

// Execute creates a forwarding rule for every requested port. When a rule
// fails mid-way, the rules created so far are removed before reporting the
// failure so the stage never leaves half its work behind.
func (u *UniFi) Execute(ctx context.Context, req *models.DeploymentRequest, _ models.Handles) Outcome {
	if err := u.ensureLogin(ctx); err != nil {
		return Failure(err)
	}

	proto := req.EffectiveProtocol()
	created := make([]string, 0, len(req.Ports()))
	for _, port := range req.Ports() {
		id, err := u.createRule(ctx, req.Subdomain, req.ServerIP, port, proto)
		if err != nil {
			u.cleanupPartial(ctx, created)
			return Failure(err)
		}
		created = append(created, id)
	}

	logger.WithFields(map[string]interface{}{
		"rule_count": len(created),
		"server_ip":  req.ServerIP,
		"protocol":   proto,
	}).Info("Port forwarding rules created")

	return Outcome{
		Success: true,
		Handles: models.Handles{FirewallRuleIDs: created},
		Message: fmt.Sprintf("%d port forwarding rule(s) -> %s", len(created), req.ServerIP),
	}
}

// Compensate deletes every recorded forwarding rule. Deletion continues
// past individual failures; the outcome fails if any rule survived.
func (u *UniFi) Compensate(ctx context.Context, handles models.Handles) Outcome {
	if len(handles.FirewallRuleIDs) == 0 {
		return Outcome{Success: true, Message: "no forwarding rules to remove"}
	}
	if err := u.ensureLogin(ctx); err != nil {
		return Failure(err)
	}

	var failed []string
	for _, id := range handles.FirewallRuleIDs {
		if err := u.deleteRule(ctx, id); err != nil {
			logger.WithFields(map[string]interface{}{
				"rule_id": id,
				"error":   err.Error(),
			}).Warn("Failed to delete forwarding rule")
			failed = append(failed, id)
		}
	}
	if len(failed) > 0 {
		return Failure(wingerr.ServiceAPI(ServiceUniFi, unifiCodeRuleDelete, 0,
			fmt.Sprintf("%d of %d forwarding rule(s) could not be removed", len(failed), len(handles.FirewallRuleIDs))))
	}
	return Outcome{Success: true, Message: fmt.Sprintf("%d forwarding rule(s) removed", len(handles.FirewallRuleIDs))}
}

// TestConnectivity logs in and reads the site health endpoint.
func (u *UniFi) TestConnectivity(ctx context.Context) Outcome {
	if err := u.ensureLogin(ctx); err != nil {
		return Failure(err)
	}

	var out unifiResponse
	status, err := u.do(ctx, http.MethodGet, u.apiPath("/api/s/"+u.cfg.Site+"/stat/health"), nil, &out)
	if err != nil {
		return Failure(err)
	}
	if status != http.StatusOK || out.Meta.RC != "ok" {
		return Failure(wingerr.ServiceAPI(ServiceUniFi, unifiCodeHealth, status, "controller health check failed"))
	}
	return Outcome{Success: true, Message: "controller reachable, credentials valid"}
}

func (u *UniFi) createRule(ctx context.Context, subdomain, serverIP string, port int, proto string) (string, error) {
	payload := map[string]interface{}{
		"name":           fmt.Sprintf("wingman-%s-%d", subdomain, port),
		"enabled":        true,
		"src":            "any",
		"dst_port":       fmt.Sprintf("%d", port),
		"fwd":            serverIP,
		"fwd_port":       fmt.Sprintf("%d", port),
		"proto":          proto,
		"log":            false,
		"pfwd_interface": "wan",
	}

	var out unifiResponse
	status, err := u.do(ctx, http.MethodPost, u.apiPath("/api/s/"+u.cfg.Site+"/rest/portforward"), payload, &out)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK || out.Meta.RC != "ok" {
		return "", wingerr.ServiceAPI(ServiceUniFi, unifiCodeRuleCreate, status,
			fmt.Sprintf("forwarding rule for port %d rejected: %s", port, out.Meta.Message))
	}

	var rules []struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(out.Data, &rules); err != nil || len(rules) == 0 {
		return "", wingerr.BadResponse(ServiceUniFi, "decoding forwarding rule", err)
	}
	return rules[0].ID, nil
}

func (u *UniFi) deleteRule(ctx context.Context, id string) error {
	var out unifiResponse
	status, err := u.do(ctx, http.MethodDelete, u.apiPath("/api/s/"+u.cfg.Site+"/rest/portforward/"+id), nil, &out)
	if err != nil {
		return err
	}
	if status != http.StatusOK || out.Meta.RC != "ok" {
		return wingerr.ServiceAPI(ServiceUniFi, unifiCodeRuleDelete, status,
			fmt.Sprintf("forwarding rule %s rejected for deletion: %s", id, out.Meta.Message))
	}
	return nil
}

// cleanupPartial removes rules created before a mid-stage failure. Best
// effort; failures are logged and the original error still wins.
func (u *UniFi) cleanupPartial(ctx context.Context, ids []string) {
	for _, id := range ids {
		if err := u.deleteRule(ctx, id); err != nil {
			logger.WithFields(map[string]interface{}{
				"rule_id": id,
				"error":   err.Error(),
			}).Warn("Failed to clean up partially created forwarding rule")
		}
	}
}

func (u *UniFi) ensureLogin(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.loggedIn {
		return nil
	}

	loginPath := "/api/login"
	if u.cfg.IsUDM {
		loginPath = "/api/auth/login"
	}

	payload := map[string]string{
		"username": u.cfg.Username,
		"password": u.cfg.Password,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.BaseURL+loginPath, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return wingerr.Classify(ServiceUniFi, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return wingerr.ServiceAPI(ServiceUniFi, unifiCodeLogin, resp.StatusCode, "controller login rejected")
	}

	u.csrf = resp.Header.Get("X-Csrf-Token")
	u.loggedIn = true
	logger.WithField("udm", u.cfg.IsUDM).Debug("UniFi controller login established")
	return nil
}

func (u *UniFi) apiPath(p string) string {
	if u.cfg.IsUDM {
		return "/proxy/network" + p
	}
	return p
}

// do issues one API request, retrying once after a fresh login when the
// session cookie has expired between stages.
func (u *UniFi) do(ctx context.Context, method, path string, payload interface{}, out *unifiResponse) (int, error) {
	status, err := u.doOnce(ctx, method, path, payload, out)
	if err != nil || status != http.StatusUnauthorized {
		return status, err
	}

	u.mu.Lock()
	u.loggedIn = false
	u.mu.Unlock()
	if err := u.ensureLogin(ctx); err != nil {
		return status, err
	}
	return u.doOnce(ctx, method, path, payload, out)
}

func (u *UniFi) doOnce(ctx context.Context, method, path string, payload interface{}, out *unifiResponse) (int, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.cfg.BaseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	u.mu.Lock()
	if u.csrf != "" {
		req.Header.Set("X-Csrf-Token", u.csrf)
	}
	u.mu.Unlock()

	resp, err := u.client.Do(req)
	if err != nil {
		return 0, wingerr.Classify(ServiceUniFi, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, wingerr.BadResponse(ServiceUniFi, "decoding response", err)
	}
	return resp.StatusCode, nil
}
