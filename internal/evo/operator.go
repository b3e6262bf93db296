// Package evo defines the operator contract a population is
// parametrised by and the built-in operator registry used to make
// operators addressable from a persisted snapshot. The generational
// and steady-state control loops live in internal/driver.
package evo

import (
	"context"

	"genepool/internal/model"
)

// ChromosomeAllocator constructs and releases the chromosome content
// attached to an entity. Required for every population.
type ChromosomeAllocator interface {
	// Construct allocates and attaches a fresh chromosome set to e.
	Construct(ctx context.Context, e *model.Entity) error
	// Destroy releases the chromosomes attached to e.
	Destroy(ctx context.Context, e *model.Entity)
	// Replicate deep-copies chromosome i from src into dest.
	Replicate(ctx context.Context, src, dest *model.Entity, i int) error
}

// ChromosomeCodec produces and consumes the opaque byte representation
// of a chromosome set, used by migration and snapshot I/O. Required
// only when those operations are invoked.
type ChromosomeCodec interface {
	// ToBytes writes an opaque byte representation of e's chromosomes.
	ToBytes(ctx context.Context, e *model.Entity) ([]byte, error)
	// FromBytes reconstructs chromosome content from buf into e.
	FromBytes(ctx context.Context, e *model.Entity, buf []byte) error
}

// ChromosomeStringer renders a printable form of an entity's
// chromosomes for diagnostics. Optional.
type ChromosomeStringer interface {
	ToString(ctx context.Context, e *model.Entity) string
}

// Evaluator computes and stores an entity's fitness. Required for
// every population.
type Evaluator interface {
	Evaluate(ctx context.Context, e *model.Entity) error
}

// Seeder fills an entity's chromosomes with initial content. Required
// for seeding a population.
type Seeder interface {
	Seed(ctx context.Context, e *model.Entity) error
}

// Adapter returns an adapted clone of e representing one local-search
// step. Required only by Lamarckian/Baldwinian schemes.
type Adapter interface {
	Adapt(ctx context.Context, e *model.Entity) (*model.Entity, error)
}

// Cursor is a stateful iterator over a ranked entity set, tied to one
// generation or phase. The driver resets it (via Reset) at the start
// of every phase that consumes it, per the spec's requirement that
// selection state never leak across phases.
type Cursor interface {
	Reset(ranked []*model.Entity)
}

// Selector picks a single parent per call. Next returns false once the
// iterator is exhausted for the current phase.
type Selector interface {
	Cursor
	Next(ctx context.Context) (*model.Entity, bool)
}

// PairSelector picks a pair of parents per call. Next returns false
// once the iterator is exhausted for the current phase.
type PairSelector interface {
	Cursor
	Next(ctx context.Context) (a, b *model.Entity, ok bool)
}

// Mutator produces a mutated copy of src into dest.
type Mutator interface {
	Mutate(ctx context.Context, src, dest *model.Entity) error
}

// Crossover produces two children c, d from parents a, b.
type Crossover interface {
	Cross(ctx context.Context, a, b, c, d *model.Entity) error
}

// Replacer inserts a newly-scored entity into a population under a
// user policy, used by the steady-state driver. Required only when a
// population's scheme designates user replacement.
type Replacer interface {
	Replace(ctx context.Context, pop Population, next *model.Entity) error
}

// GenerationHook is invoked once per generation. Returning false
// requests clean termination of the generational or archipelago
// driver at the next iteration boundary.
type GenerationHook interface {
	OnGeneration(ctx context.Context, generation int, pop Population) (bool, error)
}

// IterationHook is invoked once per steady-state iteration. Returning
// false requests clean termination.
type IterationHook interface {
	OnIteration(ctx context.Context, iteration int, e *model.Entity) (bool, error)
}

// LocusEditor sets a single integer-valued allele at chromosomeIdx,
// locus without disturbing any other locus. Backs AlleleSearch, the
// spec's auxiliary local-search convenience and canonical example of
// the operator contract in use.
type LocusEditor interface {
	SetAllele(ctx context.Context, e *model.Entity, chromosomeIdx, locus, value int) error
}

// PhenomeManager manages phenome sharing discipline: Retain is called
// on copy, Release on destroy. Required only when phenomes are used.
type PhenomeManager interface {
	Retain(p model.Phenome)
	Release(p model.Phenome)
}

// Population is the minimal surface the operator contract needs from
// a population implementation, kept here (rather than importing the
// population package) to avoid a dependency cycle: population depends
// on evo for the operator interfaces, so evo cannot depend back on
// population's concrete type.
type Population interface {
	Size() int
	StableSize() int
	MaxSize() int
	Generation() int
	EntityAtRank(r int) (*model.Entity, bool)
}
