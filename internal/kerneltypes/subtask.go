package kerneltypes

// Complexity is the estimated effort of a SubTask or an Assess-phase classification.
// SubTask.EstimatedComplexity never takes ComplexityExtreme; that value is reserved
// for the cell-level Assess classification, which has one more rung than a SubTask's.
type Complexity string

const (
	ComplexityTrivial  Complexity = "trivial"
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityExtreme  Complexity = "extreme"
)

// SubTask is one node in the DAG a cell decomposes its instruction into.
type SubTask struct {
	ID                  string     `json:"id"`
	Description         string     `json:"description"`
	Domain              string     `json:"domain"`
	RequiredTools       []string   `json:"required_tools,omitempty"`
	DependsOn           []string   `json:"depends_on,omitempty"`
	EstimatedComplexity Complexity `json:"estimated_complexity"`
	ExpectedOutput      string     `json:"expected_output"`
	AssignedRole        string     `json:"assigned_role"`

	// Sequence is the dependency-resolved phase this subtask was placed in;
	// subtasks sharing a Sequence value are independent and spawned concurrently.
	Sequence int `json:"sequence"`
}

// Step is one unit of the linear step_plan built for solo/direct mode.
type Step struct {
	Goal             string `json:"goal"`
	PreferredTool    string `json:"preferred_tool,omitempty"`
	SuccessCriterion string `json:"success_criterion"`
}

// Mode is the processing mode the Assess phase selects.
type Mode string

const (
	ModeDirect    Mode = "direct"
	ModeSolo      Mode = "solo"
	ModeDelegate  Mode = "delegate"
	ModeHierarchy Mode = "hierarchy"
	ModeHeal      Mode = "heal"
)

// RoleDirectoryEntry is one row of the configuration-defined role → attributes map
// consulted when the Decompose step resolves a SubTask's assigned_role.
type RoleDirectoryEntry struct {
	PreferredLevel Level    `json:"preferred_level"`
	PreferredTools []string `json:"preferred_tools"`
	Skills         []string `json:"skills"`
}
