package models

import (
	"regexp"
	"time"
)

// TemplateNamePattern is the only accepted shape for template names. It is
// enforced before a name is used to address storage, so a hostile name can
// never escape the template root.
var TemplateNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidTemplateName reports whether name is safe to use as a storage key.
func ValidTemplateName(name string) bool {
	return TemplateNamePattern.MatchString(name)
}

// Template is a reusable subset of deployment desired-state fields.
type Template struct {
	Name            string    `json:"name"`
	GameType        string    `json:"game_type,omitempty"`
	GamePort        int       `json:"game_port,omitempty"`
	Protocol        string    `json:"protocol,omitempty"`
	AdditionalPorts []int     `json:"additional_ports,omitempty"`
	MemoryMB        int       `json:"memory_mb,omitempty"`
	DiskMB          int       `json:"disk_mb,omitempty"`
	CPUPercent      int       `json:"cpu_percent,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TemplateFromRequest captures the reusable fields of a deployment request.
func TemplateFromRequest(name string, req *DeploymentRequest) *Template {
	now := time.Now().UTC()
	return &Template{
		Name:            name,
		GameType:        req.GameType,
		GamePort:        req.GamePort,
		Protocol:        req.EffectiveProtocol(),
		AdditionalPorts: append([]int(nil), req.AdditionalPorts...),
		MemoryMB:        req.MemoryMB,
		DiskMB:          req.DiskMB,
		CPUPercent:      req.CPUPercent,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// TemplateListResponse is the response for listing templates
type TemplateListResponse struct {
	Templates []Template `json:"templates"`
	Total     int        `json:"total"`
}
