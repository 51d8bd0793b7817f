package models

// ConnectionStatus is one observation of the tunnel provider. It is fetched
// fresh for every check and never cached across polls; a stale "connected"
// reading is exactly the failure the gate exists to prevent.
type ConnectionStatus struct {
	Connected bool   `json:"connected"`
	Provider  string `json:"provider,omitempty"`
	ServerID  string `json:"server,omitempty"`
	PublicIP  string `json:"address,omitempty"`
	Interface string `json:"interface,omitempty"`
}
