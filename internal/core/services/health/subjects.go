package health

import (
	"github.com/lcalzada-xor/meshmon/internal/core/domain"
)

// NodeSubject is a node with the metric values its checks read, loaded up
// front by a Resolver.
type NodeSubject struct {
	Node     domain.Node
	Mesh     *domain.MeshSettings
	Readings map[string]domain.CheckValue
}

func (n *NodeSubject) Scope() domain.AlertScope {
	return n.Node.Scope()
}

func (n *NodeSubject) Name() string { return n.Node.Name }

func (n *NodeSubject) Settings() *domain.MeshSettings { return n.Mesh }

func (n *NodeSubject) Offline() bool { return n.Node.Offline() }

// ValueFor reads liveness keys from the node itself and the rest from the
// preloaded readings.
func (n *NodeSubject) ValueFor(key string) (domain.CheckValue, bool) {
	switch key {
	case KeyLastPing:
		if n.Node.LastPing == nil {
			return domain.CheckValue{}, false
		}
		return domain.TimeValue(*n.Node.LastPing), true
	case KeyLastContact:
		if n.Node.LastContact == nil {
			return domain.CheckValue{}, false
		}
		return domain.TimeValue(*n.Node.LastContact), true
	case KeyReachable:
		if n.Node.Reachable == nil {
			return domain.CheckValue{}, false
		}
		return domain.BoolValue(*n.Node.Reachable), true
	}
	v, ok := n.Readings[key]
	return v, ok
}

// MeshSubject is a mesh with its aggregated readings.
type MeshSubject struct {
	Mesh     domain.Mesh
	Readings map[string]domain.CheckValue
}

func (m *MeshSubject) Scope() domain.AlertScope { return domain.MeshScope(m.Mesh.Name) }

func (m *MeshSubject) Name() string { return m.Mesh.Name }

func (m *MeshSubject) Settings() *domain.MeshSettings { return &m.Mesh.Settings }

func (m *MeshSubject) Offline() bool { return false }

func (m *MeshSubject) ValueFor(key string) (domain.CheckValue, bool) {
	v, ok := m.Readings[key]
	return v, ok
}
