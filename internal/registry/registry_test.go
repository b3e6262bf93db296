package registry

import (
	"context"
	"errors"
	"testing"

	"genepool/internal/model"
	"genepool/internal/population"
)

type intAllocator struct{}

func (intAllocator) Construct(_ context.Context, e *model.Entity) error {
	e.Chromosomes[0] = 0
	return nil
}

func (intAllocator) Destroy(_ context.Context, e *model.Entity) { e.Chromosomes[0] = nil }

func (intAllocator) Replicate(_ context.Context, src, dst *model.Entity, i int) error {
	dst.Chromosomes[i] = src.Chromosomes[i]
	return nil
}

type sumEvaluator struct{}

func (sumEvaluator) Evaluate(_ context.Context, e *model.Entity) error {
	v, _ := e.Chromosomes[0].(int)
	e.Fitness = float64(v)
	return nil
}

func newTestPopulation(t *testing.T) *population.Population {
	t.Helper()
	p, err := population.New(population.Config{
		NumChromosomes: 1,
		LenChromosomes: 1,
		StableSize:     2,
		MaxSize:        4,
		Seed:           1,
		Bindings: population.Bindings{
			Allocator: intAllocator{},
			Evaluator: sumEvaluator{},
		},
	})
	if err != nil {
		t.Fatalf("new population: %v", err)
	}
	return p
}

func TestRegisterLookupRemove(t *testing.T) {
	p := newTestPopulation(t)
	id := Register(p)
	t.Cleanup(func() { Remove(id) })

	got, err := Lookup(id)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != p {
		t.Fatal("lookup returned a different population")
	}

	Remove(id)
	if _, err := Lookup(id); !errors.Is(err, ErrPopulationNotFound) {
		t.Fatalf("expected ErrPopulationNotFound after remove, got %v", err)
	}
}

func TestRemoveUnknownIDIsNotAnError(t *testing.T) {
	Remove(PopulationID(999999))
}

func TestRemoveByRef(t *testing.T) {
	p := newTestPopulation(t)
	id := Register(p)

	RemoveByRef(p)

	if _, err := Lookup(id); !errors.Is(err, ErrPopulationNotFound) {
		t.Fatalf("expected ErrPopulationNotFound after RemoveByRef, got %v", err)
	}
}

func TestLenTracksRegistrations(t *testing.T) {
	before := Len()

	p1 := newTestPopulation(t)
	p2 := newTestPopulation(t)
	id1 := Register(p1)
	id2 := Register(p2)
	t.Cleanup(func() {
		Remove(id1)
		Remove(id2)
	})

	if got := Len(); got != before+2 {
		t.Fatalf("expected Len()=%d, got %d", before+2, got)
	}
}
