package models

import "time"

// StartDeploymentResponse acknowledges an accepted deployment request.
// Execution continues in the background; poll the status endpoint or
// subscribe to the event stream for progress.
type StartDeploymentResponse struct {
	DeploymentID string `json:"deployment_id"`
	Status       string `json:"status"`
	Message      string `json:"message,omitempty"`
}

// DeploymentResponse is the API view of a deployment record. Desired-state
// fields are flattened to the top level.
type DeploymentResponse struct {
	DeploymentID    string     `json:"deployment_id"`
	Subdomain       string     `json:"subdomain"`
	Domain          string     `json:"domain,omitempty"`
	ServerIP        string     `json:"server_ip"`
	GamePort        int        `json:"game_port"`
	GameType        string     `json:"game_type,omitempty"`
	Protocol        string     `json:"protocol"`
	AdditionalPorts []int      `json:"additional_ports,omitempty"`
	MemoryMB        int        `json:"memory_mb,omitempty"`
	DiskMB          int        `json:"disk_mb,omitempty"`
	CPUPercent      int        `json:"cpu_percent,omitempty"`
	Status          string     `json:"status"`
	State           string     `json:"state,omitempty"`
	Progress        int        `json:"progress"`
	Steps           []Step     `json:"steps"`
	Handles         Handles    `json:"handles"`
	Error           string     `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	RolledBackAt    *time.Time `json:"rolled_back_at,omitempty"`
}

// ToResponse converts a domain Deployment to its API representation.
func (d *Deployment) ToResponse() DeploymentResponse {
	return DeploymentResponse{
		DeploymentID:    d.ID,
		Subdomain:       d.Request.Subdomain,
		Domain:          d.Domain,
		ServerIP:        d.Request.ServerIP,
		GamePort:        d.Request.GamePort,
		GameType:        d.Request.GameType,
		Protocol:        d.Request.EffectiveProtocol(),
		AdditionalPorts: d.Request.AdditionalPorts,
		MemoryMB:        d.Request.MemoryMB,
		DiskMB:          d.Request.DiskMB,
		CPUPercent:      d.Request.CPUPercent,
		Status:          d.Status,
		State:           d.State,
		Progress:        d.Progress,
		Steps:           d.Steps,
		Handles:         d.Handles,
		Error:           d.Error,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		CompletedAt:     d.CompletedAt,
		RolledBackAt:    d.RolledBackAt,
	}
}

// DeploymentListResponse is the response for listing deployments
type DeploymentListResponse struct {
	Deployments []DeploymentResponse `json:"deployments"`
	Total       int                  `json:"total"`
}

// LogsResponse carries a deployment's log lines in display form
type LogsResponse struct {
	DeploymentID string   `json:"deployment_id"`
	Logs         []string `json:"logs"`
}

// CompensationResult records the outcome of undoing one provisioned stage
type CompensationResult struct {
	Stage   string `json:"stage"`
	Handle  string `json:"handle"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RollbackResponse reports a completed rollback attempt
type RollbackResponse struct {
	DeploymentID  string               `json:"deployment_id"`
	Status        string               `json:"status"`
	Compensations []CompensationResult `json:"compensations"`
}

// StatsResponse aggregates deployment counts for monitoring
type StatsResponse struct {
	Total         int   `json:"total"`
	Active        int   `json:"active"`
	Completed     int   `json:"completed"`
	Failed        int   `json:"failed"`
	RolledBack    int   `json:"rolled_back"`
	EventsDropped int64 `json:"events_dropped"`
}

// ConnectivityResult reports one service's reachability check
type ConnectivityResult struct {
	Service   string `json:"service"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Code      string `json:"code,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// ServiceValidation reports configuration completeness for one service
type ServiceValidation struct {
	Service string   `json:"service"`
	Valid   bool     `json:"valid"`
	Missing []string `json:"missing,omitempty"`
}

// LoginRequest is the credentials body for the login endpoint
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the issued session token
type LoginResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}
