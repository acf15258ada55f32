package domain

// CheckOp names the comparison a configured check applies.
type CheckOp string

const (
	OpLessThan     CheckOp = "lt"
	OpLessEqual    CheckOp = "lte"
	OpGreaterThan  CheckOp = "gt"
	OpGreaterEqual CheckOp = "gte"
	OpWithin       CheckOp = "within"
	OpTruthy       CheckOp = "truthy"
)

// CheckSpec is the declarative form of a health check, as written in the
// checks file.
//
// The threshold is taken from the mesh setting named by Setting when that
// setting is configured, else from Threshold. With neither the check cannot
// decide and yields an unknown result. For OpWithin thresholds are seconds
// and the value must be a timestamp no older than that.
type CheckSpec struct {
	Title     string   `yaml:"title" json:"title"`
	Key       string   `yaml:"key" json:"key"`
	Op        CheckOp  `yaml:"op" json:"op"`
	Threshold *float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Setting   string   `yaml:"setting,omitempty" json:"setting,omitempty"`
	Feedback  Feedback `yaml:"feedback" json:"feedback"`
}

// CheckConfig holds the ordered check lists per entity type.
type CheckConfig struct {
	Node []CheckSpec `yaml:"node" json:"node"`
	Mesh []CheckSpec `yaml:"mesh" json:"mesh"`
}
