package domain

import (
	"fmt"
	"time"
)

// AlertLevel is the severity of an alert. Levels are ordered.
type AlertLevel int

const (
	LevelWarning  AlertLevel = 1
	LevelError    AlertLevel = 2
	LevelCritical AlertLevel = 3
)

func (l AlertLevel) String() string {
	switch l {
	case LevelWarning:
		return "Warning"
	case LevelError:
		return "Error"
	case LevelCritical:
		return "Critical"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// IsValid reports whether l is a known level.
func (l AlertLevel) IsValid() bool {
	return l >= LevelWarning && l <= LevelCritical
}

// AlertStatus is the lifecycle state of an alert.
type AlertStatus int

const (
	StatusNew      AlertStatus = 1
	StatusUpgraded AlertStatus = 2
	StatusRename   AlertStatus = 3
	StatusResolved AlertStatus = 4
)

func (s AlertStatus) String() string {
	switch s {
	case StatusNew:
		return "New"
	case StatusUpgraded:
		return "Upgraded"
	case StatusRename:
		return "Rename"
	case StatusResolved:
		return "Resolved"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Alert titles and texts.
const (
	TitleOffline        = "Node is offline"
	TitleHealthBad      = "Node's health is bad"
	TitleHealthCritical = "Node's health is critical"

	TextOffline          = "The device is unreachable by ping"
	TextHealthChecks     = "The following health checks failed: %s"
	TextResolved         = "Resolved this alert"
	TextRenamed          = "Renamed %s -> %s"
	eventTimestampFormat = "2006-01-02 15:04:05"
)

// AlertScope identifies what an alert is attached to: a node, or a mesh as a
// whole. Node alerts also carry the mesh of the node for context.
type AlertScope struct {
	NodeMAC  string
	MeshName string
}

// NodeScope returns the scope of node-level alerts.
func NodeScope(mac, meshName string) AlertScope {
	return AlertScope{NodeMAC: mac, MeshName: meshName}
}

// MeshScope returns the scope of mesh-level alerts.
func MeshScope(meshName string) AlertScope {
	return AlertScope{MeshName: meshName}
}

// IsNode reports whether the scope targets a single node.
func (s AlertScope) IsNode() bool {
	return s.NodeMAC != ""
}

// Validate fails with ErrScopeResolution when neither node nor mesh is set.
func (s AlertScope) Validate() error {
	if s.NodeMAC == "" && s.MeshName == "" {
		return ErrScopeResolution
	}
	return nil
}

// Key is a stable identifier for locking and logging.
func (s AlertScope) Key() string {
	if s.IsNode() {
		return "node:" + s.NodeMAC
	}
	return "mesh:" + s.MeshName
}

// Alert is a notification-worthy condition attached to a node or mesh.
type Alert struct {
	ID       string      `json:"id"`
	Level    AlertLevel  `json:"level"`
	Status   AlertStatus `json:"status"`
	Title    string      `json:"title"`
	Text     string      `json:"text"`
	NodeMAC  string      `json:"node,omitempty"`
	NodeName string      `json:"node_name,omitempty"`
	MeshName string      `json:"mesh,omitempty"`
	Created  time.Time   `json:"created"`
	Modified time.Time   `json:"modified"`
}

// NewCandidate builds an unpersisted alert. The text becomes the first
// timestamped line of the event log.
func NewCandidate(scope AlertScope, nodeName string, level AlertLevel, title, text string, now time.Time) (*Alert, error) {
	if !level.IsValid() {
		return nil, ErrInvalidAlertLevel
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return &Alert{
		Level:    level,
		Status:   StatusNew,
		Title:    title,
		Text:     eventLine(now, text),
		NodeMAC:  scope.NodeMAC,
		NodeName: nodeName,
		MeshName: scope.MeshName,
		Created:  now,
		Modified: now,
	}, nil
}

// Scope returns the scope the alert is attached to.
func (a *Alert) Scope() AlertScope {
	return AlertScope{NodeMAC: a.NodeMAC, MeshName: a.MeshName}
}

// IsResolved reports whether the alert reached its terminal state.
func (a *Alert) IsResolved() bool {
	return a.Status == StatusResolved
}

func eventLine(now time.Time, text string) string {
	return fmt.Sprintf("_%s_ %s", now.Format(eventTimestampFormat), text)
}

// AddEvent prepends a timestamped line to the event log. Existing lines are
// never rewritten.
func (a *Alert) AddEvent(now time.Time, text string) {
	line := eventLine(now, text)
	if a.Text == "" {
		a.Text = line
		return
	}
	a.Text = line + "\n" + a.Text
}

// Upgrade escalates the alert to a more severe candidate.
func (a *Alert) Upgrade(candidate *Alert, now time.Time) error {
	if a.IsResolved() {
		return ErrResolvedAlertIsTerminal
	}
	a.Level = candidate.Level
	a.Title = candidate.Title
	a.Text = candidate.Text + "\n" + a.Text
	a.Status = StatusUpgraded
	a.Modified = now
	return nil
}

// Rename retitles the alert for an equally severe candidate.
func (a *Alert) Rename(candidate *Alert, now time.Time) error {
	if a.IsResolved() {
		return ErrResolvedAlertIsTerminal
	}
	old := a.Title
	a.Title = candidate.Title
	a.AddEvent(now, fmt.Sprintf(TextRenamed, old, candidate.Title))
	a.Status = StatusRename
	a.Modified = now
	return nil
}

// Resolve marks the alert resolved. Resolving twice is a no-op.
func (a *Alert) Resolve(now time.Time) {
	if a.IsResolved() {
		return
	}
	a.Status = StatusResolved
	a.AddEvent(now, TextResolved)
	a.Modified = now
}

// Message formats the alert for notification channels.
func (a *Alert) Message() string {
	msg := fmt.Sprintf("[%s %s] %s", a.Status, a.Level, a.Title)
	if a.NodeMAC != "" {
		name := a.NodeName
		if name == "" {
			name = a.NodeMAC
		}
		msg += fmt.Sprintf("\nGenerated by node '%s'", name)
	}
	return msg + "\n" + a.Text
}

// AlertFilter selects alerts for downstream consumers. Zero values match all.
type AlertFilter struct {
	NodeMAC    string
	MeshName   string
	MeshOnly   bool
	Level      AlertLevel
	Status     AlertStatus
	Unresolved bool
	Limit      int
}
