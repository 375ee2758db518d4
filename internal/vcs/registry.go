package vcs

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor creates a VCS instance for a repository root.
// Implementations register themselves with Register() in init().
type Constructor func(repoRoot string) (VCS, error)

var (
	registry      = make(map[Type]Constructor)
	registryMutex sync.RWMutex
)

// Register registers a VCS implementation constructor.
//
//	func init() {
//	    vcs.Register(vcs.TypeGit, func(root string) (vcs.VCS, error) { return New(root) })
//	}
func Register(t Type, constructor Constructor) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if constructor == nil {
		panic(fmt.Sprintf("vcs: Register constructor is nil for type %s", t))
	}
	if _, exists := registry[t]; exists {
		panic(fmt.Sprintf("vcs: Register called twice for type %s", t))
	}
	registry[t] = constructor
}

func getConstructor(t Type) Constructor {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	return registry[t]
}

// RegisteredTypes returns all registered VCS types in sorted order.
func RegisteredTypes() []Type {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	types := make([]Type, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
