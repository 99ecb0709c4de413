package models

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// Deployment statuses. Completed, failed and rolled_back are terminal;
// rollback is the only transition out of a terminal status.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusRolledBack = "rolled_back"
)

// Step statuses.
const (
	StepPending   = "pending"
	StepActive    = "active"
	StepCompleted = "completed"
	StepFailed    = "failed"
)

// Protocols accepted for the forwarded game traffic.
const (
	ProtocolTCP    = "tcp"
	ProtocolUDP    = "udp"
	ProtocolTCPUDP = "tcp_udp"
)

// Step tracks one provisioning stage attempted for a deployment.
type Step struct {
	Name        string     `json:"name" dynamodbav:"Name"`
	Status      string     `json:"status" dynamodbav:"Status"` // "pending", "active", "completed", "failed"
	StartedAt   *time.Time `json:"started_at,omitempty" dynamodbav:"StartedAt,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" dynamodbav:"CompletedAt,omitempty"`
}

// LogEntry is a single timestamped line in a deployment's log trail.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp" dynamodbav:"Timestamp"`
	Message   string    `json:"message" dynamodbav:"Message"`
}

// String renders the entry in the log API's display form.
func (e LogEntry) String() string {
	return fmt.Sprintf("[%s] %s", e.Timestamp.Format("2006-01-02 15:04:05"), e.Message)
}

// Handles holds the opaque identifiers returned by external services.
// Each field is recorded only after the owning service reported success;
// rollback correctness depends on that.
type Handles struct {
	DNSRecordID     string   `json:"dns_record_id,omitempty" dynamodbav:"DNSRecordID,omitempty"`
	FirewallRuleIDs []string `json:"firewall_rule_ids,omitempty" dynamodbav:"FirewallRuleIDs,omitempty"`
	ProxyConfigID   string   `json:"proxy_config_id,omitempty" dynamodbav:"ProxyConfigID,omitempty"`
	ServerID        string   `json:"server_id,omitempty" dynamodbav:"ServerID,omitempty"`
	ServerUUID      string   `json:"server_uuid,omitempty" dynamodbav:"ServerUUID,omitempty"`
}

// Empty reports whether no external resource was recorded.
func (h Handles) Empty() bool {
	return h.DNSRecordID == "" && len(h.FirewallRuleIDs) == 0 &&
		h.ProxyConfigID == "" && h.ServerID == ""
}

// Merge copies the set fields of other into h. Stages own disjoint fields,
// so a merge never overwrites another stage's handle.
func (h *Handles) Merge(other Handles) {
	if other.DNSRecordID != "" {
		h.DNSRecordID = other.DNSRecordID
	}
	if len(other.FirewallRuleIDs) > 0 {
		h.FirewallRuleIDs = append(h.FirewallRuleIDs, other.FirewallRuleIDs...)
	}
	if other.ProxyConfigID != "" {
		h.ProxyConfigID = other.ProxyConfigID
	}
	if other.ServerID != "" {
		h.ServerID = other.ServerID
	}
	if other.ServerUUID != "" {
		h.ServerUUID = other.ServerUUID
	}
}

// DeploymentRequest is the desired state captured at creation time.
// It is immutable for the lifetime of the deployment.
type DeploymentRequest struct {
	Subdomain       string `json:"subdomain" dynamodbav:"Subdomain"`
	ServerIP        string `json:"server_ip" dynamodbav:"ServerIP"`
	GamePort        int    `json:"game_port" dynamodbav:"GamePort"`
	GameType        string `json:"game_type,omitempty" dynamodbav:"GameType,omitempty"`
	Protocol        string `json:"protocol,omitempty" dynamodbav:"Protocol,omitempty"`
	AdditionalPorts []int  `json:"additional_ports,omitempty" dynamodbav:"AdditionalPorts,omitempty"`
	MemoryMB        int    `json:"memory_mb,omitempty" dynamodbav:"MemoryMB,omitempty"`
	DiskMB          int    `json:"disk_mb,omitempty" dynamodbav:"DiskMB,omitempty"`
	CPUPercent      int    `json:"cpu_percent,omitempty" dynamodbav:"CPUPercent,omitempty"`
	EnableSSL       bool   `json:"enable_ssl,omitempty" dynamodbav:"EnableSSL,omitempty"`
	EnableMonitor   bool   `json:"enable_monitoring,omitempty" dynamodbav:"EnableMonitor,omitempty"`

	// Hosting-panel selectors; the panel stage only runs when all four are set.
	NestID       int `json:"nest_id,omitempty" dynamodbav:"NestID,omitempty"`
	EggID        int `json:"egg_id,omitempty" dynamodbav:"EggID,omitempty"`
	NodeID       int `json:"node_id,omitempty" dynamodbav:"NodeID,omitempty"`
	AllocationID int `json:"allocation_id,omitempty" dynamodbav:"AllocationID,omitempty"`

	// When set, the request is also stored as a reusable template.
	SaveTemplate bool   `json:"save_template,omitempty" dynamodbav:"-"`
	TemplateName string `json:"template_name,omitempty" dynamodbav:"-"`
}

// HasPanelSelectors reports whether the hosting-panel stage has everything
// it needs for this deployment.
func (r *DeploymentRequest) HasPanelSelectors() bool {
	return r.NestID > 0 && r.EggID > 0 && r.NodeID > 0 && r.AllocationID > 0
}

var subdomainDisallowed = strings.NewReplacer("_", "", "-", "")

// Validate checks the desired state before any background work starts.
func (r *DeploymentRequest) Validate() error {
	if r.Subdomain == "" {
		return fmt.Errorf("subdomain is required")
	}
	if len(r.Subdomain) > 63 {
		return fmt.Errorf("subdomain must be at most 63 characters")
	}
	cleaned := subdomainDisallowed.Replace(r.Subdomain)
	for _, c := range cleaned {
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return fmt.Errorf("subdomain may only contain letters, digits, '-' and '_'")
		}
	}
	if r.ServerIP == "" {
		return fmt.Errorf("server_ip is required")
	}
	if net.ParseIP(r.ServerIP) == nil {
		return fmt.Errorf("server_ip %q is not a valid IP address", r.ServerIP)
	}
	if r.GamePort < 1 || r.GamePort > 65535 {
		return fmt.Errorf("game_port must be between 1 and 65535")
	}
	for _, p := range r.AdditionalPorts {
		if p < 1 || p > 65535 {
			return fmt.Errorf("additional port %d out of range", p)
		}
	}
	switch r.Protocol {
	case "", ProtocolTCP, ProtocolUDP, ProtocolTCPUDP:
	default:
		return fmt.Errorf("protocol must be one of tcp, udp, tcp_udp")
	}
	if r.SaveTemplate && r.TemplateName == "" {
		return fmt.Errorf("template_name is required when save_template is set")
	}
	return nil
}

// EffectiveProtocol returns the protocol with the default applied.
func (r *DeploymentRequest) EffectiveProtocol() string {
	if r.Protocol == "" {
		return ProtocolTCPUDP
	}
	return r.Protocol
}

// Ports returns the game port followed by any additional ports.
func (r *DeploymentRequest) Ports() []int {
	return append([]int{r.GamePort}, r.AdditionalPorts...)
}

// Deployment is the persisted record of one provisioning saga.
type Deployment struct {
	ID           string            `json:"deployment_id" dynamodbav:"ID"`
	Request      DeploymentRequest `json:"request" dynamodbav:"Request"`
	Domain       string            `json:"domain,omitempty" dynamodbav:"Domain,omitempty"` // subdomain.zone, set once DNS config is known
	Status       string            `json:"status" dynamodbav:"Status"`
	State        string            `json:"state,omitempty" dynamodbav:"State,omitempty"` // human-readable phase, e.g. "configuring dns"
	Progress     int               `json:"progress" dynamodbav:"Progress"`
	Steps        []Step            `json:"steps" dynamodbav:"Steps"`
	Handles      Handles           `json:"handles" dynamodbav:"Handles"`
	Logs         []LogEntry        `json:"logs,omitempty" dynamodbav:"Logs,omitempty"`
	Error        string            `json:"error,omitempty" dynamodbav:"Error,omitempty"`
	CreatedAt    time.Time         `json:"created_at" dynamodbav:"CreatedAt"`
	UpdatedAt    time.Time         `json:"updated_at" dynamodbav:"UpdatedAt"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty" dynamodbav:"CompletedAt,omitempty"`
	RolledBackAt *time.Time        `json:"rolled_back_at,omitempty" dynamodbav:"RolledBackAt,omitempty"`

	// Version guards optimistic concurrency in the registry; callers never
	// set it directly.
	Version int64 `json:"-" dynamodbav:"Version"`
}

// Terminal reports whether the deployment reached a final status.
func (d *Deployment) Terminal() bool {
	switch d.Status {
	case StatusCompleted, StatusFailed, StatusRolledBack:
		return true
	}
	return false
}

// AppendLog adds a timestamped line to the deployment's log trail.
func (d *Deployment) AppendLog(message string) LogEntry {
	entry := LogEntry{Timestamp: time.Now().UTC(), Message: message}
	d.Logs = append(d.Logs, entry)
	return entry
}

// StepByName returns the attempted step with the given name, or nil.
func (d *Deployment) StepByName(name string) *Step {
	for i := range d.Steps {
		if d.Steps[i].Name == name {
			return &d.Steps[i]
		}
	}
	return nil
}

// SetStep transitions the named step, appending it on first touch. Progress
// never decreases.
func (d *Deployment) SetStep(name, status string, progress int) {
	now := time.Now().UTC()
	step := d.StepByName(name)
	if step == nil {
		d.Steps = append(d.Steps, Step{Name: name})
		step = &d.Steps[len(d.Steps)-1]
	}
	step.Status = status
	switch status {
	case StepActive:
		if step.StartedAt == nil {
			step.StartedAt = &now
		}
	case StepCompleted, StepFailed:
		if step.StartedAt == nil {
			step.StartedAt = &now
		}
		step.CompletedAt = &now
	}
	if progress > d.Progress {
		d.Progress = progress
	}
	d.UpdatedAt = now
}

// FormatLogs renders the log trail as display lines.
func (d *Deployment) FormatLogs() []string {
	lines := make([]string, 0, len(d.Logs))
	for _, e := range d.Logs {
		lines = append(lines, e.String())
	}
	return lines
}

// Clone returns a deep copy, used by stores handing records across
// goroutine boundaries.
func (d *Deployment) Clone() *Deployment {
	c := *d
	c.Steps = append([]Step(nil), d.Steps...)
	c.Logs = append([]LogEntry(nil), d.Logs...)
	c.Request.AdditionalPorts = append([]int(nil), d.Request.AdditionalPorts...)
	c.Handles.FirewallRuleIDs = append([]string(nil), d.Handles.FirewallRuleIDs...)
	if d.CompletedAt != nil {
		t := *d.CompletedAt
		c.CompletedAt = &t
	}
	if d.RolledBackAt != nil {
		t := *d.RolledBackAt
		c.RolledBackAt = &t
	}
	return &c
}
