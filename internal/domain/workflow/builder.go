package workflow

import (
	"fmt"
	"sort"
)

// StateConfiguration configures the outbound edges of a single source state
type StateConfiguration[S Status] interface {
	// Permit declares each target as directly reachable from the configured state
	Permit(targets ...S) StateConfiguration[S]
}

// Builder assembles a transition table one source state at a time
type Builder[S Status] struct {
	configurations map[S]*stateConfig[S]
}

type stateConfig[S Status] struct {
	fromState S
	targets   map[S]struct{}
}

// NewBuilder creates a new transition table builder
func NewBuilder[S Status]() *Builder[S] {
	return &Builder[S]{
		configurations: make(map[S]*stateConfig[S]),
	}
}

// Configure returns the configuration for the given source state.
// Configuring the same state twice returns the same configuration.
func (b *Builder[S]) Configure(state S) StateConfiguration[S] {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", string(state)))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig[S]{
			fromState: state,
			targets:   make(map[S]struct{}),
		}
		b.configurations[state] = config
	}

	return config
}

// Terminal declares states with no outbound edges. It only validates them; an
// unconfigured state already has an empty outbound set.
func (b *Builder[S]) Terminal(states ...S) *Builder[S] {
	for _, s := range states {
		if !s.IsValid() {
			panic(fmt.Sprintf("invalid terminal state: %s", string(s)))
		}
		if cfg, ok := b.configurations[s]; ok && len(cfg.targets) > 0 {
			panic(fmt.Sprintf("terminal state %s has outbound transitions", string(s)))
		}
	}
	return b
}

// Build produces an immutable table from the configured edges
func (b *Builder[S]) Build() Table[S] {
	edges := make(map[S]map[S]struct{}, len(b.configurations))
	for from, config := range b.configurations {
		targets := make(map[S]struct{}, len(config.targets))
		for to := range config.targets {
			targets[to] = struct{}{}
		}
		edges[from] = targets
	}
	return Table[S]{edges: edges}
}

// Permit declares each target as directly reachable from the configured state
func (c *stateConfig[S]) Permit(targets ...S) StateConfiguration[S] {
	for _, to := range targets {
		if !to.IsValid() {
			panic(fmt.Sprintf("invalid target state: %s", string(to)))
		}
		if to == c.fromState {
			continue
		}
		c.targets[to] = struct{}{}
	}
	return c
}

// Table is an immutable map from a source status to the statuses directly reachable from it
type Table[S Status] struct {
	edges map[S]map[S]struct{}
}

// Allows returns true iff from == to, or to is declared reachable from from.
// Unknown statuses are never allowed.
func (t Table[S]) Allows(from, to S) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}
	if from == to {
		return true
	}
	_, ok := t.edges[from][to]
	return ok
}

// Targets returns the statuses directly reachable from the given status, sorted
func (t Table[S]) Targets(from S) []S {
	targets := make([]S, 0, len(t.edges[from]))
	for to := range t.edges[from] {
		targets = append(targets, to)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	return targets
}

// IsTerminal returns true if no transition leaves the status
func (t Table[S]) IsTerminal(s S) bool {
	return len(t.edges[s]) == 0
}

// States returns every status that has at least one outbound edge, sorted
func (t Table[S]) States() []S {
	states := make([]S, 0, len(t.edges))
	for s, targets := range t.edges {
		if len(targets) > 0 {
			states = append(states, s)
		}
	}
	sort.Slice(states, func(i, j int) bool { return states[i] < states[j] })
	return states
}
