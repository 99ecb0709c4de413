package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/treestandk/wingman/internal/config"
	"github.com/treestandk/wingman/internal/logger"
	"github.com/treestandk/wingman/internal/models"
	"github.com/treestandk/wingman/internal/wingerr"
)

const (
	cloudflareAPIBase = "https://api.cloudflare.com/client/v4"
	publicIPEchoURL   = "https://api.ipify.org"

	cfCodeDNSCreate   = "ERR_CF_DNS_CREATE"
	cfCodeDNSDelete   = "ERR_CF_DNS_DELETE"
	cfCodeVerify      = "ERR_CF_VERIFY"
	cfCodeIPDiscovery = "ERR_CF_IP_DISCOVERY"
)

// Cloudflare manages the DNS stage: one A record per deployment pointing
// the subdomain at the network's public address.
type Cloudflare struct {
	cfg     config.CloudflareConfig
	client  *http.Client
	apiBase string
	echoURL string
}

func NewCloudflare(cfg config.CloudflareConfig) *Cloudflare {
	return &Cloudflare{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		apiBase: cloudflareAPIBase,
		echoURL: publicIPEchoURL,
	}
}

func (c *Cloudflare) Name() string      { return ServiceCloudflare }
func (c *Cloudflare) StageName() string { return "Cloudflare DNS" }

func (c *Cloudflare) IsConfigured() bool { return c.cfg.IsConfigured() }

type cfAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type cfResponse struct {
	Success bool            `json:"success"`
	Errors  []cfAPIError    `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

func (r *cfResponse) firstError() string {
	if len(r.Errors) == 0 {
		return "unknown error"
	}
	return fmt.Sprintf("%s (code %d)", r.Errors[0].Message, r.Errors[0].Code)
}

// Execute creates the A record for the deployment's subdomain. The record
// content is the configured public IP, discovered from the echo service
// when not set.
func (c *Cloudflare) Execute(ctx context.Context, req *models.DeploymentRequest, _ models.Handles) Outcome {
	ip := c.cfg.PublicIP
	if ip == "" {
		discovered, err := c.discoverPublicIP(ctx)
		if err != nil {
			return Failure(err)
		}
		ip = discovered
	}

	fqdn := req.Subdomain + "." + c.cfg.Domain
	payload := map[string]interface{}{
		"type":    "A",
		"name":    req.Subdomain,
		"content": ip,
		"ttl":     1,
		"proxied": false,
		"comment": "managed by wingman",
	}

	var out cfResponse
	status, err := c.do(ctx, http.MethodPost, "/zones/"+c.cfg.ZoneID+"/dns_records", payload, &out)
	if err != nil {
		return Failure(err)
	}
	if status < 200 || status >= 300 || !out.Success {
		return Failure(wingerr.ServiceAPI(ServiceCloudflare, cfCodeDNSCreate, status,
			fmt.Sprintf("DNS record creation failed: %s", out.firstError())))
	}

	var record struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(out.Result, &record); err != nil {
		return Failure(wingerr.BadResponse(ServiceCloudflare, "decoding DNS record", err))
	}

	logger.WithFields(map[string]interface{}{
		"record_id": record.ID,
		"fqdn":      fqdn,
		"content":   ip,
	}).Info("DNS record created")

	return Outcome{
		Success: true,
		Handles: models.Handles{DNSRecordID: record.ID},
		Message: fmt.Sprintf("A record %s -> %s", fqdn, ip),
	}
}

// Compensate removes the A record recorded for the deployment.
func (c *Cloudflare) Compensate(ctx context.Context, handles models.Handles) Outcome {
	if handles.DNSRecordID == "" {
		return Outcome{Success: true, Message: "no DNS record to remove"}
	}

	var out cfResponse
	status, err := c.do(ctx, http.MethodDelete, "/zones/"+c.cfg.ZoneID+"/dns_records/"+handles.DNSRecordID, nil, &out)
	if err != nil {
		return Failure(err)
	}
	if status < 200 || status >= 300 || !out.Success {
		return Failure(wingerr.ServiceAPI(ServiceCloudflare, cfCodeDNSDelete, status,
			fmt.Sprintf("DNS record deletion failed: %s", out.firstError())))
	}

	logger.WithField("record_id", handles.DNSRecordID).Info("DNS record removed")
	return Outcome{Success: true, Message: "DNS record removed"}
}

// TestConnectivity verifies the API token against the token verification
// endpoint.
func (c *Cloudflare) TestConnectivity(ctx context.Context) Outcome {
	var out cfResponse
	status, err := c.do(ctx, http.MethodGet, "/user/tokens/verify", nil, &out)
	if err != nil {
		return Failure(err)
	}
	if status != http.StatusOK || !out.Success {
		return Failure(wingerr.ServiceAPI(ServiceCloudflare, cfCodeVerify, status,
			fmt.Sprintf("token verification failed: %s", out.firstError())))
	}
	return Outcome{Success: true, Message: "API token valid"}
}

func (c *Cloudflare) discoverPublicIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.echoURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating IP discovery request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", wingerr.Classify(ServiceCloudflare, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", wingerr.ServiceAPI(ServiceCloudflare, cfCodeIPDiscovery, resp.StatusCode,
			"public IP discovery failed")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", wingerr.BadResponse(ServiceCloudflare, "reading public IP", err)
	}

	ip := strings.TrimSpace(string(body))
	logger.WithField("public_ip", ip).Debug("Discovered public IP")
	return ip, nil
}

func (c *Cloudflare) do(ctx context.Context, method, path string, payload interface{}, out *cfResponse) (int, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, body)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, wingerr.Classify(ServiceCloudflare, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, wingerr.BadResponse(ServiceCloudflare, "decoding response", err)
	}
	return resp.StatusCode, nil
}
