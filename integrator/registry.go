package integrator

import (
	"fmt"
	"sort"
)

var registry = map[string]func(Config) Integrator{
	"mass":      func(cfg Config) Integrator { return NewMass(cfg) },
	"diffusion": func(cfg Config) Integrator { return NewDiffusion(cfg) },
}

// New builds a registered integrator by name
func New(name string, cfg Config) (Integrator, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator %q, have %v", name, Names())
	}
	return ctor(cfg), nil
}

// Names lists the registered integrators in sorted order
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
