package workflow

import (
	"log"
	"os"
	"time"

	"github.com/steveyegge/atlas/internal/schema"
)

// StateFile is the workflow document name under the state directory.
const StateFile = "workflow.json"

// LoadState reads the workflow document at path. A missing document yields
// the default state; an unreadable one is logged and reset. toggles always
// replace the stored automation settings.
func LoadState(path string, toggles schema.AutomationToggles, logger *log.Logger) *schema.WorkflowState {
	var st schema.WorkflowState
	if err := schema.ReadJSON(path, &st); err != nil {
		if !os.IsNotExist(err) {
			logger.Printf("Warning: resetting unreadable workflow state: %v", err)
		}
		return schema.NewWorkflowState(toggles)
	}
	st.Automation = toggles
	if st.Groups == nil {
		st.Groups = make(map[string]*schema.GroupState)
	}
	for id, g := range st.Groups {
		if g == nil || g.ID != id {
			logger.Printf("Warning: dropping malformed group entry %q", id)
			delete(st.Groups, id)
		}
	}
	return &st
}

// SaveState writes st to path.
func SaveState(path string, st *schema.WorkflowState) error {
	st.UpdatedAt = time.Now().UTC()
	return schema.WriteJSON(path, st)
}
