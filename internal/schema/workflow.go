package schema

import (
	"fmt"
	"time"
)

// Group statuses. Transitions only move forward.
const (
	GroupPending    = "pending"
	GroupInProgress = "in-progress"
	GroupCompleted  = "completed"
)

// AutomationToggles switch cascade side effects on and off.
type AutomationToggles struct {
	GroupReports    bool `json:"group_reports"`
	StageReports    bool `json:"stage_reports"`
	IndexOnComplete bool `json:"index_on_complete"`
}

// StageDescriptor is the stage currently open.
type StageDescriptor struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	Blockers    []string  `json:"blockers,omitempty"`
	BlockReason string    `json:"block_reason,omitempty"`
}

// CompletedWork is one entry in a group's completed list.
type CompletedWork struct {
	Participant string    `json:"participant"`
	Record      string    `json:"record,omitempty"` // work/ file name
	CompletedAt time.Time `json:"completed_at"`
}

// GroupState tracks a set of participants whose completion is awaited
// together.
type GroupState struct {
	ID              string          `json:"id"`
	Status          string          `json:"status"`
	Stage           string          `json:"stage,omitempty"`
	Expected        []string        `json:"expected"`
	Completed       []CompletedWork `json:"completed,omitempty"`
	ReportGenerated bool            `json:"report_generated,omitempty"`
	RegisteredAt    time.Time       `json:"registered_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// Expects reports whether participant is part of the group.
func (g *GroupState) Expects(participant string) bool {
	for _, p := range g.Expected {
		if p == participant {
			return true
		}
	}
	return false
}

// HasCompleted reports whether participant is already in the completed list.
func (g *GroupState) HasCompleted(participant string) bool {
	for _, c := range g.Completed {
		if c.Participant == participant {
			return true
		}
	}
	return false
}

// AllDone reports whether every expected participant appears exactly once
// in the completed list.
func (g *GroupState) AllDone() bool {
	if len(g.Expected) == 0 {
		return false
	}
	seen := make(map[string]int, len(g.Completed))
	for _, c := range g.Completed {
		seen[c.Participant]++
	}
	for _, p := range g.Expected {
		if seen[p] != 1 {
			return false
		}
	}
	return true
}

// Validate checks required fields.
func (g *GroupState) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("group id is required")
	}
	if len(g.Expected) == 0 {
		return fmt.Errorf("group %s has no expected participants", g.ID)
	}
	switch g.Status {
	case GroupPending, GroupInProgress, GroupCompleted:
	default:
		return fmt.Errorf("group %s has invalid status %q", g.ID, g.Status)
	}
	return nil
}

// WorkflowState is the persisted state of the automation pipeline.
type WorkflowState struct {
	CurrentStage    *StageDescriptor       `json:"current_stage,omitempty"`
	Groups          map[string]*GroupState `json:"groups"`
	CompletedStages []string               `json:"completed_stages,omitempty"`
	Automation      AutomationToggles      `json:"automation"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// NewWorkflowState returns the default state.
func NewWorkflowState(toggles AutomationToggles) *WorkflowState {
	return &WorkflowState{
		Groups:     make(map[string]*GroupState),
		Automation: toggles,
	}
}

// GroupFor returns the open group that expects participant, or nil. An
// explicit group id takes priority; otherwise the earliest registered open
// group wins.
func (w *WorkflowState) GroupFor(participant, groupID string) *GroupState {
	if groupID != "" {
		return w.Groups[groupID]
	}
	var best *GroupState
	for _, g := range w.Groups {
		if g.Status == GroupCompleted || !g.Expects(participant) {
			continue
		}
		if best == nil || g.RegisteredAt.Before(best.RegisteredAt) ||
			(g.RegisteredAt.Equal(best.RegisteredAt) && g.ID < best.ID) {
			best = g
		}
	}
	return best
}

// StageGroups returns every group registered under stage.
func (w *WorkflowState) StageGroups(stage string) []*GroupState {
	var out []*GroupState
	for _, g := range w.Groups {
		if g.Stage == stage {
			out = append(out, g)
		}
	}
	return out
}

// StageDone reports whether stage has at least one group and all of them
// are completed.
func (w *WorkflowState) StageDone(stage string) bool {
	groups := w.StageGroups(stage)
	if len(groups) == 0 {
		return false
	}
	for _, g := range groups {
		if g.Status != GroupCompleted {
			return false
		}
	}
	return true
}

// StageCompleted reports whether stage has already been closed.
func (w *WorkflowState) StageCompleted(stage string) bool {
	for _, s := range w.CompletedStages {
		if s == stage {
			return true
		}
	}
	return false
}
