package projector

import (
	"fmt"
	"sort"
)

// registry tracks Projector instances for different targets
type registry map[string]Projector

var (
	defaultRegistry = make(registry)
)

// RegisteredTargets returns a sorted list of all registered target names.
func RegisteredTargets() []string {
	targets := make([]string, 0, len(defaultRegistry))
	for name := range defaultRegistry {
		targets = append(targets, name)
	}
	sort.Strings(targets)
	return targets
}

func GetProjector(target string) (Projector, bool) {
	proj, ok := defaultRegistry[target]
	return proj, ok
}

// RegisterProjector registers a projector for a given target
// Note: this is NOT thread safe, and should only be called in init()
func RegisterProjector(target string, proj Projector) error {
	if _, ok := defaultRegistry[target]; ok {
		return fmt.Errorf("failed to register projector for target %q: other projector already registered", target)
	}

	defaultRegistry[target] = proj

	return nil
}
