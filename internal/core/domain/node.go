package domain

import (
	"strings"
	"time"
)

// NodeStatus is the liveness state of a node.
type NodeStatus string

const (
	NodeUnknown   NodeStatus = "unknown"
	NodeOffline   NodeStatus = "offline"
	NodeOnline    NodeStatus = "online"
	NodeRebooting NodeStatus = "rebooting"
)

// Hardware identifies the physical device type.
type Hardware string

const (
	HardwareUbntACMesh Hardware = "ubnt_ac_mesh"
	HardwareTPLinkEAP  Hardware = "tl_eap225_3_o"
)

// Node is a mesh node or access point, keyed by its MAC address.
type Node struct {
	MAC          string       `json:"mac"`
	Name         string       `json:"name"`
	MeshName     string       `json:"mesh,omitempty"`
	Description  string       `json:"description,omitempty"`
	Hardware     Hardware     `json:"hardware"`
	IP           string       `json:"ip,omitempty"`
	IsAP         bool         `json:"is_ap"`
	NASName      string       `json:"nas_name,omitempty"`
	Status       NodeStatus   `json:"status"`
	HealthStatus HealthStatus `json:"health_status"`
	// Reachable is nil until the node has been pinged at least once.
	Reachable   *bool      `json:"reachable"`
	RebootFlag  bool       `json:"reboot_flag"`
	LastPing    *time.Time `json:"last_ping,omitempty"`
	LastContact *time.Time `json:"last_contact,omitempty"`
	AdoptedAt   *time.Time `json:"adopted_at,omitempty"`
	Latitude    *float64   `json:"lat,omitempty"`
	Longitude   *float64   `json:"lon,omitempty"`
	Created     time.Time  `json:"created"`
}

// NewNode creates a node with defaults for fields the upstream may omit.
func NewNode(mac, name, meshName string) Node {
	return Node{
		MAC:          NormalizeMAC(mac),
		Name:         name,
		MeshName:     meshName,
		Hardware:     HardwareTPLinkEAP,
		Status:       NodeUnknown,
		HealthStatus: HealthUnknown,
		Created:      time.Now().UTC(),
	}
}

// Online reports whether the node last reported in.
func (n Node) Online() bool {
	return n.Status == NodeOnline
}

// Offline reports whether the node is known to be unreachable.
func (n Node) Offline() bool {
	return n.Status == NodeOffline
}

// Scope returns the alert scope of the node.
func (n Node) Scope() AlertScope {
	return NodeScope(n.MAC, n.MeshName)
}

// NormalizeMAC lower-cases a MAC and uses ':' separators.
func NormalizeMAC(mac string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(mac), "-", ":"))
}

// Report is the normalized liveness report handed over by an upstream
// controller adapter.
type Report struct {
	IP   string
	IsAP bool
	// Mem is memory usage in percent, nil when the report carries none.
	Mem *float64
}

// Mesh is a group of nodes.
type Mesh struct {
	Name         string       `json:"name"`
	Location     string       `json:"location,omitempty"`
	Latitude     float64      `json:"lat"`
	Longitude    float64      `json:"lon"`
	HealthStatus HealthStatus `json:"health_status"`
	Created      time.Time    `json:"created"`
	Settings     MeshSettings `json:"settings"`
}

// MeshSettings holds per-mesh alerting switches and check thresholds.
// A nil threshold falls back to the check default, if the check has one.
type MeshSettings struct {
	AlertsEnabled        bool           `json:"alerts_enabled" yaml:"alerts_enabled"`
	CheckRTT             *float64       `json:"check_rtt" yaml:"check_rtt"`
	CheckCPU             *float64       `json:"check_cpu" yaml:"check_cpu"`
	CheckMem             *float64       `json:"check_mem" yaml:"check_mem"`
	CheckActive          *time.Duration `json:"check_active" yaml:"check_active"`
	CheckPing            *time.Duration `json:"check_ping" yaml:"check_ping"`
	CheckDailyDataUsage  *float64       `json:"check_daily_data_usage" yaml:"check_daily_data_usage"`
	CheckHourlyDataUsage *float64       `json:"check_hourly_data_usage" yaml:"check_hourly_data_usage"`
	CheckDailyUptime     *float64       `json:"check_daily_uptime" yaml:"check_daily_uptime"`
	CheckHourlyUptime    *float64       `json:"check_hourly_uptime" yaml:"check_hourly_uptime"`
}

// Threshold looks up a numeric threshold by setting name. Durations are
// returned in seconds.
func (s *MeshSettings) Threshold(name string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	var f *float64
	var d *time.Duration
	switch name {
	case "check_rtt":
		f = s.CheckRTT
	case "check_cpu":
		f = s.CheckCPU
	case "check_mem":
		f = s.CheckMem
	case "check_daily_data_usage":
		f = s.CheckDailyDataUsage
	case "check_hourly_data_usage":
		f = s.CheckHourlyDataUsage
	case "check_daily_uptime":
		f = s.CheckDailyUptime
	case "check_hourly_uptime":
		f = s.CheckHourlyUptime
	case "check_active":
		d = s.CheckActive
	case "check_ping":
		d = s.CheckPing
	}
	switch {
	case f != nil:
		return *f, true
	case d != nil:
		return d.Seconds(), true
	}
	return 0, false
}
