package models

// Catalog types mirror the hosting panel's application API objects, kept
// to the fields the deployment UI needs for its selection flow.

type Nest struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Egg struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	DockerImage string `json:"docker_image,omitempty"`
	Startup     string `json:"startup,omitempty"`
}

type Node struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	FQDN     string `json:"fqdn"`
	MemoryMB int    `json:"memory_mb"`
	DiskMB   int    `json:"disk_mb"`
}

type Allocation struct {
	ID       int    `json:"id"`
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Alias    string `json:"alias,omitempty"`
	Assigned bool   `json:"assigned"`
}
