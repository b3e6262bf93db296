// Package registry implements a process-wide PopulationId -> Population
// handle table, the way internal/evo.RegisterBuiltinOperator keeps a
// process-wide name/id -> operator table. It exists for the optional
// external-handle layer (pkg/genepool) that lets callers reference a
// population by an opaque id across API calls; the engine's driver
// loops never import this package directly.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"genepool/internal/population"
)

// PopulationID is an opaque handle a caller uses to reference a
// registered population across API calls, distinct from any
// model.EntityID or population-internal identifier.
type PopulationID int64

var (
	ErrPopulationNotFound = errors.New("registry: population not found")
)

type registry struct {
	mu     sync.RWMutex
	nextID PopulationID
	byID   map[PopulationID]*population.Population
}

var global = newRegistry()

func newRegistry() *registry {
	return &registry{byID: make(map[PopulationID]*population.Population)}
}

// Register assigns a fresh PopulationID to p and stores it. Never
// called from inside a driver's control loop; only from the
// convenience API layer that hands ids back to a caller.
func Register(p *population.Population) PopulationID {
	global.mu.Lock()
	defer global.mu.Unlock()

	global.nextID++
	id := global.nextID
	global.byID[id] = p
	return id
}

// Lookup returns the population registered under id.
func Lookup(id PopulationID) (*population.Population, error) {
	global.mu.RLock()
	defer global.mu.RUnlock()

	p, ok := global.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id=%d", ErrPopulationNotFound, id)
	}
	return p, nil
}

// Remove deregisters id. Removing an id that is not registered is not
// an error, matching the teacher's idempotent-teardown convention.
func Remove(id PopulationID) {
	global.mu.Lock()
	defer global.mu.Unlock()
	delete(global.byID, id)
}

// RemoveByRef deregisters whichever id (if any) currently maps to p,
// for callers that hold the *population.Population but not the id it
// was registered under.
func RemoveByRef(p *population.Population) {
	global.mu.Lock()
	defer global.mu.Unlock()

	for id, candidate := range global.byID {
		if candidate == p {
			delete(global.byID, id)
			return
		}
	}
}

// Len reports how many populations are currently registered. Test and
// diagnostic use only.
func Len() int {
	global.mu.RLock()
	defer global.mu.RUnlock()
	return len(global.byID)
}
