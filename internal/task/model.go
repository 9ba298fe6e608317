package task

import "time"

// Status is the lifecycle state of a Task. Monotone:
// pending -> processing -> {completed, failed}.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Mode reflects whether the task was submitted with guidance.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeGuided Mode = "guided"
)

// Phase is the advisory current_phase field: the stage of the most
// recently committed batch.
type Phase string

const (
	PhaseDiagnostic   Phase = "diagnostic"
	PhaseOptimization Phase = "optimization"
	PhaseGeneration   Phase = "generation"
	PhaseVerification Phase = "verification"
	PhaseCleaning     Phase = "cleaning"
)

// Guidance is the explicit configuration record replacing the source's
// dynamic nested map. Unknown keys are ignored by construction: this type
// only has fields for the recognized ones.
type Guidance struct {
	FocusAreas               []string `json:"focus_areas,omitempty"`
	ProblemIndices           []int    `json:"problem_indices,omitempty"`
	OptimizationInstructions string   `json:"optimization_instructions,omitempty"`
	GenerationInstructions   string   `json:"generation_instructions,omitempty"`
}

// HasFocus reports whether the guidance's focus_areas include the named
// area, defaulting to true when no guidance was supplied at all (auto mode
// always runs every diagnostic facet).
func (g *Guidance) HasFocus(area string) bool {
	if g == nil {
		return true
	}
	for _, a := range g.FocusAreas {
		if a == area {
			return true
		}
	}
	return false
}

// Task is the top-level unit of work
type Task struct {
	TaskID           string
	Status           Status
	Mode             Mode
	DatasetSize      int
	BatchSize        int
	TotalBatches     int
	CompletedBatches int
	Progress         float64
	CurrentPhase     Phase
	StartTime        time.Time
	EndTime          *time.Time
	Error            string
	Statistics       map[string]interface{}

	// Internal fields needed to rebuild a job message on resume; not part of
	// the client-visible Task shape but owned by the same store row.
	Dataset       []Record  `json:"-"`
	KnowledgeBase []string  `json:"-"`
	Guidance      *Guidance `json:"-"`
	SaveReports   bool      `json:"-"`
}

// IsTerminal reports whether the task has reached a terminal status.
func (t *Task) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// BatchResult is the per-batch output, keyed by (task_id, batch_index).
// StageIndex/StageTotal carry the stage-local k/K_S used by the progress
// weigher (the "progress = offset(stage) + weight(stage) * k/K_S" rule from
// §4.3) — distinct from BatchIndex, which is the global monotonic batch
// counter described in DESIGN.md.
type BatchResult struct {
	TaskID     string
	BatchIndex int
	Stage      Phase
	Records    []Record
	Counters   map[string]int
	StageIndex int
	StageTotal int
}

// TaskUpdate is a partial-field update for Store.UpdateTask; nil pointer
// fields are left untouched, applying an atomic merge over only the
// listed fields.
type TaskUpdate struct {
	Status           *Status
	Mode             *Mode
	Progress         *float64
	CompletedBatches *int
	CurrentPhase     *Phase
	EndTime          *time.Time
	Error            *string
	Statistics       map[string]interface{}
}
