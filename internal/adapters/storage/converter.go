package storage

import (
	"time"

	"github.com/lcalzada-xor/meshmon/internal/core/domain"
)

func nodeToDomain(m NodeModel) domain.Node {
	return domain.Node{
		MAC:          m.MAC,
		Name:         m.Name,
		MeshName:     m.MeshName,
		Description:  m.Description,
		Hardware:     domain.Hardware(m.Hardware),
		IP:           m.IP,
		IsAP:         m.IsAP,
		NASName:      m.NASName,
		Status:       domain.NodeStatus(m.Status),
		HealthStatus: domain.HealthStatus(m.HealthStatus),
		Reachable:    m.Reachable,
		RebootFlag:   m.RebootFlag,
		LastPing:     m.LastPing,
		LastContact:  m.LastContact,
		AdoptedAt:    m.AdoptedAt,
		Latitude:     m.Latitude,
		Longitude:    m.Longitude,
		Created:      m.Created,
	}
}

func nodeToModel(n domain.Node) NodeModel {
	status := n.Status
	if status == "" {
		status = domain.NodeUnknown
	}
	health := n.HealthStatus
	if health == "" {
		health = domain.HealthUnknown
	}
	return NodeModel{
		MAC:          domain.NormalizeMAC(n.MAC),
		Name:         n.Name,
		MeshName:     n.MeshName,
		Description:  n.Description,
		Hardware:     string(n.Hardware),
		IP:           n.IP,
		IsAP:         n.IsAP,
		NASName:      n.NASName,
		Status:       string(status),
		HealthStatus: string(health),
		Reachable:    n.Reachable,
		RebootFlag:   n.RebootFlag,
		LastPing:     n.LastPing,
		LastContact:  n.LastContact,
		AdoptedAt:    n.AdoptedAt,
		Latitude:     n.Latitude,
		Longitude:    n.Longitude,
		Created:      n.Created,
	}
}

func meshToDomain(m MeshModel) domain.Mesh {
	return domain.Mesh{
		Name:         m.Name,
		Location:     m.Location,
		Latitude:     m.Latitude,
		Longitude:    m.Longitude,
		HealthStatus: domain.HealthStatus(m.HealthStatus),
		Created:      m.Created,
		Settings:     settingsToDomain(m.Settings),
	}
}

func meshToModel(m domain.Mesh) MeshModel {
	health := m.HealthStatus
	if health == "" {
		health = domain.HealthUnknown
	}
	return MeshModel{
		Name:         m.Name,
		Location:     m.Location,
		Latitude:     m.Latitude,
		Longitude:    m.Longitude,
		HealthStatus: string(health),
		Created:      m.Created,
	}
}

func settingsToDomain(m MeshSettingsModel) domain.MeshSettings {
	return domain.MeshSettings{
		AlertsEnabled:        m.AlertsEnabled,
		CheckRTT:             m.CheckRTT,
		CheckCPU:             m.CheckCPU,
		CheckMem:             m.CheckMem,
		CheckActive:          secondsToDuration(m.CheckActive),
		CheckPing:            secondsToDuration(m.CheckPing),
		CheckDailyDataUsage:  m.CheckDailyDataUsage,
		CheckHourlyDataUsage: m.CheckHourlyDataUsage,
		CheckDailyUptime:     m.CheckDailyUptime,
		CheckHourlyUptime:    m.CheckHourlyUptime,
	}
}

func settingsToModel(meshName string, s domain.MeshSettings) MeshSettingsModel {
	return MeshSettingsModel{
		MeshName:             meshName,
		AlertsEnabled:        s.AlertsEnabled,
		CheckRTT:             s.CheckRTT,
		CheckCPU:             s.CheckCPU,
		CheckMem:             s.CheckMem,
		CheckActive:          durationToSeconds(s.CheckActive),
		CheckPing:            durationToSeconds(s.CheckPing),
		CheckDailyDataUsage:  s.CheckDailyDataUsage,
		CheckHourlyDataUsage: s.CheckHourlyDataUsage,
		CheckDailyUptime:     s.CheckDailyUptime,
		CheckHourlyUptime:    s.CheckHourlyUptime,
	}
}

func secondsToDuration(s *int64) *time.Duration {
	if s == nil {
		return nil
	}
	d := time.Duration(*s) * time.Second
	return &d
}

func durationToSeconds(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	s := int64(d.Seconds())
	return &s
}

func alertToDomain(m AlertModel) domain.Alert {
	return domain.Alert{
		ID:       m.ID,
		Level:    domain.AlertLevel(m.Level),
		Status:   domain.AlertStatus(m.Status),
		Title:    m.Title,
		Text:     m.Text,
		NodeMAC:  m.NodeMAC,
		NodeName: m.NodeName,
		MeshName: m.MeshName,
		Created:  m.Created,
		Modified: m.Modified,
	}
}

func alertToModel(a domain.Alert) AlertModel {
	return AlertModel{
		ID:       a.ID,
		Level:    int(a.Level),
		Status:   int(a.Status),
		Title:    a.Title,
		Text:     a.Text,
		NodeMAC:  a.NodeMAC,
		NodeName: a.NodeName,
		MeshName: a.MeshName,
		Created:  a.Created,
		Modified: a.Modified,
	}
}
