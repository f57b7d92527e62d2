package fact

import (
	"fmt"
	"sync"

	"github.com/c360/factflow/errors"
)

// Registry allocates fact identities within the Width-bounded universe of a
// single rule base. Each rule base owns its own Registry instance; there is
// no process-wide counter, so independent rule bases and parallel tests never
// interfere.
type Registry struct {
	mu     sync.RWMutex
	names  []string
	byName map[string]Fact
}

// NewRegistry creates an empty fact registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Fact),
	}
}

// Allocate registers a named fact and assigns the next free identity.
// It fails once Width facts exist, or when the name is already taken, so a
// rule base that would overflow the vector width is rejected at construction
// time rather than at match time.
func (r *Registry) Allocate(name string) (Fact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return Fact{}, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrDuplicateFact, name),
			"Registry", "Allocate", "check name")
	}
	if len(r.names) >= Width {
		return Fact{}, errors.WrapInvalid(
			fmt.Errorf("%w: limit is %d facts", errors.ErrCapacityExceeded, Width),
			"Registry", "Allocate", "assign identity")
	}

	f := Fact{id: len(r.names), name: name}
	r.names = append(r.names, name)
	r.byName[name] = f
	return f, nil
}

// MustAllocate is Allocate for statically known rule bases; it panics on error.
func (r *Registry) MustAllocate(name string) Fact {
	f, err := r.Allocate(name)
	if err != nil {
		panic(err)
	}
	return f
}

// Lookup resolves a fact by name.
func (r *Registry) Lookup(name string) (Fact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.byName[name]
	return f, ok
}

// Count returns the number of allocated facts.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.names)
}

// Names resolves the facts in a vector back to their registered names,
// in id order. Unregistered bits are skipped.
func (r *Registry) Names(v Vector) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, v.Count())
	for _, id := range v.IDs() {
		if id < len(r.names) {
			names = append(names, r.names[id])
		}
	}
	return names
}
