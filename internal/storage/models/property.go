package models

// Property is a rentable unit owned by a host.
type Property struct {
	ID     string `json:"id"`
	HostID string `json:"host_id"`
	Name   string `json:"name"`
}

// Host owns properties and the opaque token that guards their exported feeds.
type Host struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ExportToken string `json:"-"`
}
