package jj

import "github.com/steveyegge/atlas/internal/vcs"

// init registers the jj implementation with the VCS factory. Colocated
// repositories resolve to jj unless ATLAS_VCS=git.
func init() {
	vcs.Register(vcs.TypeJJ, func(path string) (vcs.VCS, error) {
		return New(path)
	})
}
