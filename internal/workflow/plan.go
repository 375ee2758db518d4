package workflow

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/steveyegge/atlas/internal/queue"
)

// Plan is a stage manifest:
//
//	[stage]
//	id = "S1"
//	name = "auth rewrite"
//
//	[[group]]
//	id = "G1"
//	expected = ["a", "b"]
type Plan struct {
	Stage  PlanStage   `toml:"stage"`
	Groups []PlanGroup `toml:"group"`
}

// PlanStage opens the plan's stage.
type PlanStage struct {
	ID   string `toml:"id"`
	Name string `toml:"name"`
}

// PlanGroup registers one group under the plan's stage.
type PlanGroup struct {
	ID       string   `toml:"id"`
	Expected []string `toml:"expected"`
}

// LoadPlan decodes the manifest at path.
func LoadPlan(path string) (*Plan, error) {
	var p Plan
	md, err := toml.DecodeFile(path, &p)
	if err != nil {
		return nil, fmt.Errorf("failed to decode plan %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("plan %s has unknown keys: %v", path, undecoded)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", path, err)
	}
	return &p, nil
}

// Validate checks that the plan names a stage and well-formed groups.
func (p *Plan) Validate() error {
	if p.Stage.ID == "" {
		return fmt.Errorf("stage.id is required")
	}
	if len(p.Groups) == 0 {
		return fmt.Errorf("at least one group is required")
	}
	seen := make(map[string]bool, len(p.Groups))
	for i, g := range p.Groups {
		if g.ID == "" {
			return fmt.Errorf("group[%d]: id is required", i)
		}
		if seen[g.ID] {
			return fmt.Errorf("group %s declared twice", g.ID)
		}
		seen[g.ID] = true
		if len(g.Expected) == 0 {
			return fmt.Errorf("group %s: expected must not be empty", g.ID)
		}
	}
	return nil
}

// Events returns the stage-start and group-register events that apply the
// plan, in order.
func (p *Plan) Events() []queue.Event {
	events := []queue.Event{{Type: queue.StageStart, Stage: p.Stage.ID, Name: p.Stage.Name}}
	for _, g := range p.Groups {
		events = append(events, queue.Event{
			Type:     queue.GroupRegister,
			Group:    g.ID,
			Stage:    p.Stage.ID,
			Expected: g.Expected,
		})
	}
	return events
}
