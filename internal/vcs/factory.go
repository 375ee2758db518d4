package vcs

import (
	"fmt"
)

// Factory creates VCS instances from detection results.
type Factory struct {
	// preferredType specifies which VCS to prefer in colocated repos
	preferredType Type
}

// FactoryOption configures the factory
type FactoryOption func(*Factory)

// WithPreferredType sets the preferred VCS type for colocated repos. An
// empty type keeps the default.
func WithPreferredType(t Type) FactoryOption {
	return func(f *Factory) {
		f.preferredType = t
	}
}

// NewFactory creates a VCS factory. Colocated repositories use
// PreferredVCS() unless WithPreferredType is given.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create detects the VCS at path and constructs the matching implementation.
func (f *Factory) Create(path string) (VCS, error) {
	result, err := Detect(path)
	if err != nil {
		return nil, err
	}

	implType, err := f.implementationType(result)
	if err != nil {
		return nil, err
	}

	constructor := getConstructor(implType)
	if constructor == nil {
		return nil, fmt.Errorf("%w: no registered constructor for %s (available: %v)", ErrVCSNotAvailable, implType, RegisteredTypes())
	}
	v, err := constructor(result.RepoRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s VCS instance: %w", implType, err)
	}
	return v, nil
}

func (f *Factory) implementationType(result *DetectionResult) (Type, error) {
	hasGit := result.HasGit && IsGitAvailable()
	hasJJ := result.HasJJ && IsJJAvailable()

	switch result.Type {
	case TypeGit:
		if hasGit {
			return TypeGit, nil
		}
	case TypeJJ:
		if hasJJ {
			return TypeJJ, nil
		}
	case TypeColocate:
		preferred := f.preferredType
		if preferred == "" {
			preferred = PreferredVCS()
		}
		if hasGit && (preferred == TypeGit || !hasJJ) {
			return TypeGit, nil
		}
		if hasJJ {
			return TypeJJ, nil
		}
	}
	return "", ErrVCSNotAvailable
}

// GetForPath returns a VCS instance for the specified path.
func GetForPath(path string, opts ...FactoryOption) (VCS, error) {
	return NewFactory(opts...).Create(path)
}
