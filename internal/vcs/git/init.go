package git

import "github.com/steveyegge/atlas/internal/vcs"

// init registers the git implementation with the VCS factory.
//
//	import _ "github.com/steveyegge/atlas/internal/vcs/git"
func init() {
	vcs.Register(vcs.TypeGit, func(path string) (vcs.VCS, error) {
		return New(path)
	})
}
