// Package move proposes candidate placement mutations for the annealer.
//
// A Generator is a polymorphic strategy keyed by a move-type tag; strategies
// register themselves in a package-level registry and the annealer looks
// them up by name. Every strategy returns either a complete, legal
// [place.Proposal] or ErrNoValidMove - a routine outcome (empty window,
// incompatible occupant, macro conflict) that the caller counts as a
// rejected trial and moves on from.
package move

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/matzehuels/placemat/pkg/place"
)

// ErrNoValidMove is returned when a strategy cannot produce a legal proposal
// this turn. It is expected and non-fatal: the annealer records a rejected
// trial and continues.
var ErrNoValidMove = errors.New("no valid move")

// Generator proposes a single candidate move within the given range limit
// (half-width of the sampling window in compressed coordinate space).
type Generator interface {
	Propose(rng *rand.Rand, rangeLimit int) (*place.Proposal, error)
}

// Factory builds a generator bound to a placement state.
type Factory func(st *place.State) Generator

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a strategy factory under a move-type tag. Typically called
// from init functions; later registrations replace earlier ones.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// New builds the named strategy for a state.
func New(name string, st *place.State) (Generator, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown move strategy %q (have %v)", name, Names())
	}
	return f(st), nil
}

// Names returns the registered strategy tags, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
