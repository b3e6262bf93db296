// Package population implements the entity/population data model: the
// id-index/rank-index pair, slot lifecycle (allocate, dereference,
// genocide), sorting, seeding, and the allele-search auxiliary
// operation. It depends on internal/evo only for the operator
// interfaces a Population is bound to; the generational, steady-state
// and archipelago control loops live in internal/driver to avoid a
// population->evo->population import cycle.
package population

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"genepool/internal/evo"
	"genepool/internal/model"
)

var (
	// ErrMissingOperator is returned when an operation is invoked
	// without the operator binding it requires.
	ErrMissingOperator = errors.New("required operator not bound")
	// ErrPopulationFull is returned by GetFreeEntity when max_size is
	// reached and growth is disallowed (max_size explicitly capped).
	ErrPopulationFull = errors.New("population at max size")
	// ErrUnknownEntity is returned when an EntityID does not name a
	// live slot in the calling population.
	ErrUnknownEntity = errors.New("unknown entity id")
)

// Config bundles a population's immutable structural parameters and
// its operator bindings. Validated by New; a Config is never mutated
// after a Population is constructed from it.
type Config struct {
	NumChromosomes int
	LenChromosomes int

	StableSize int
	MaxSize    int

	Rates   model.Rates
	Scheme  model.Scheme
	Elitism model.Elitism
	Island  int

	Seed int64

	Bindings Bindings

	UserData any
}

// Population is a single evolving pool of entities: a fixed-capacity
// id index (slot or empty, ids reused after dereference) and a
// rank index (ordered live-entity sequence, no gaps, valid only
// between mutations of it).
type Population struct {
	cfg Config

	idIndex   []*model.Entity
	freeIDs   []model.EntityID
	rankIndex []*model.Entity

	generation int
	rng        *rand.Rand

	nextLineageTag int32
}

// New allocates an empty population (size 0) from cfg. Island is kept
// as given: the zero value labels the population deme 0, so a
// standalone population sets Island to -1 itself.
func New(cfg Config) (*Population, error) {
	if cfg.NumChromosomes <= 0 {
		return nil, fmt.Errorf("num chromosomes must be > 0")
	}
	if cfg.StableSize <= 0 {
		return nil, fmt.Errorf("stable size must be > 0")
	}
	if cfg.MaxSize < cfg.StableSize {
		return nil, fmt.Errorf("max size must be >= stable size")
	}
	if cfg.Bindings.Allocator == nil {
		return nil, fmt.Errorf("%w: ChromosomeAllocator", ErrMissingOperator)
	}
	if cfg.Bindings.Evaluator == nil {
		return nil, fmt.Errorf("%w: Evaluator", ErrMissingOperator)
	}

	cfg.Rates = cfg.Rates.Clamp()

	return &Population{
		cfg:       cfg,
		idIndex:   make([]*model.Entity, 0, cfg.StableSize),
		rankIndex: make([]*model.Entity, 0, cfg.StableSize),
		rng:       rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// CloneEmpty returns a new, empty population sharing p's Config
// (structural params and operator bindings) but none of its entities.
func CloneEmpty(p *Population) (*Population, error) {
	return New(p.cfg)
}

// Clone returns a deep copy of p: same Config, and every live entity
// replicated via the bound ChromosomeAllocator.Replicate.
func Clone(ctx context.Context, p *Population) (*Population, error) {
	dst, err := New(p.cfg)
	if err != nil {
		return nil, err
	}
	for _, src := range p.rankIndex {
		id, e, err := dst.GetFreeEntity(ctx)
		if err != nil {
			return nil, err
		}
		e.Fitness = src.Fitness
		e.ParentA, e.ParentB, e.LineageTag = src.ParentA, src.ParentB, src.LineageTag
		for i := range src.Chromosomes {
			if err := dst.cfg.Bindings.Allocator.Replicate(ctx, src, e, i); err != nil {
				return nil, fmt.Errorf("clone entity %d chromosome %d: %w", id, i, err)
			}
		}
		dst.rankIndex = append(dst.rankIndex, e)
	}
	return dst, nil
}

// Config returns the population's structural configuration and
// operator bindings.
func (p *Population) Config() Config { return p.cfg }

// Size returns the number of live entities.
func (p *Population) Size() int { return len(p.rankIndex) }

// StableSize returns the target population size elitism and culling
// converge toward.
func (p *Population) StableSize() int { return p.cfg.StableSize }

// MaxSize returns the id index capacity ceiling.
func (p *Population) MaxSize() int { return p.cfg.MaxSize }

// GrowMaxSize raises max_size to n if n exceeds the current ceiling,
// otherwise it is a no-op. Used by the archipelago driver: a migration
// receiver must accept every arriving immigrant even when doing so
// overflows its configured max_size, growing to make room rather than
// failing the round; the deme is culled back to stable_size once the
// migration exchange finishes.
func (p *Population) GrowMaxSize(n int) {
	if n > p.cfg.MaxSize {
		p.cfg.MaxSize = n
	}
}

// Generation returns the number of completed generational or
// archipelago rounds.
func (p *Population) Generation() int { return p.generation }

// Island returns the deme label, -1 for a standalone population.
func (p *Population) Island() int { return p.cfg.Island }

// Rand returns the population's private PRNG. Every stochastic
// operator bound to this population should draw from it rather than
// the global math/rand source, so that two populations never contend
// on shared generator state.
func (p *Population) Rand() *rand.Rand { return p.rng }

// EntityAtRank returns the entity at rank r (0 = fittest, valid only
// immediately after SortPopulation), satisfying evo.Population.
func (p *Population) EntityAtRank(r int) (*model.Entity, bool) {
	if r < 0 || r >= len(p.rankIndex) {
		return nil, false
	}
	return p.rankIndex[r], true
}

// ByID returns the live entity with the given id.
func (p *Population) ByID(id model.EntityID) (*model.Entity, error) {
	if int(id) < 0 || int(id) >= len(p.idIndex) || p.idIndex[id] == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEntity, id)
	}
	return p.idIndex[id], nil
}

// RankIndex returns the current rank-ordered live entity slice. The
// returned slice is owned by the population and must not be retained
// past the next mutating call.
func (p *Population) RankIndex() []*model.Entity { return p.rankIndex }

// SetRankIndex replaces the rank index wholesale with set. Used by
// internal/driver when assembling a new survivor pool at the end of a
// generational step; it does not touch the id index, so callers are
// responsible for dereferencing any entity dropped from set first.
func (p *Population) SetRankIndex(set []*model.Entity) { p.rankIndex = set }

// GetFreeEntity returns a slot for a new entity: an id reused from a
// prior Dereference if one is available (backward scan of the free
// list, amortised O(1)), otherwise a freshly allocated slot grown by
// the id index's geometric x1.5 policy. The returned entity is
// attached to the rank index by the caller once its chromosomes and
// fitness are populated; GetFreeEntity does not append to the rank
// index itself, since callers that discard a candidate (e.g. a losing
// crossover attempt) should not pay for a rank-index mutation.
func (p *Population) GetFreeEntity(ctx context.Context) (model.EntityID, *model.Entity, error) {
	if n := len(p.freeIDs); n > 0 {
		id := p.freeIDs[n-1]
		p.freeIDs = p.freeIDs[:n-1]
		e := model.NewEntity(id, p.cfg.NumChromosomes)
		if err := p.cfg.Bindings.Allocator.Construct(ctx, e); err != nil {
			p.freeIDs = append(p.freeIDs, id)
			return 0, nil, fmt.Errorf("construct entity %d: %w", id, err)
		}
		p.idIndex[id] = e
		return id, e, nil
	}

	if len(p.idIndex) >= p.cfg.MaxSize {
		return 0, nil, ErrPopulationFull
	}

	id := model.EntityID(len(p.idIndex))
	e := model.NewEntity(id, p.cfg.NumChromosomes)
	if err := p.cfg.Bindings.Allocator.Construct(ctx, e); err != nil {
		return 0, nil, fmt.Errorf("construct entity %d: %w", id, err)
	}

	newCap := grow(cap(p.idIndex))
	if newCap > p.cfg.MaxSize {
		newCap = p.cfg.MaxSize
	}
	if cap(p.idIndex) < newCap {
		grown := make([]*model.Entity, len(p.idIndex), newCap)
		copy(grown, p.idIndex)
		p.idIndex = grown
	}
	p.idIndex = append(p.idIndex, e)
	return id, e, nil
}

// grow applies the geometric x1.5 growth policy the id index uses when
// no free slot can satisfy GetFreeEntity.
func grow(oldCap int) int {
	if oldCap == 0 {
		return 4
	}
	return oldCap + oldCap/2
}

// Dereference removes id from the rank index (left-shift compaction,
// preserving relative order of survivors) and the id index, invoking
// the bound PhenomeManager.Release for any attached phenomes and the
// ChromosomeAllocator.Destroy hook, then returns the slot to the free
// list for reuse.
func (p *Population) Dereference(ctx context.Context, id model.EntityID) error {
	e, err := p.ByID(id)
	if err != nil {
		return err
	}

	for i, cand := range p.rankIndex {
		if cand.ID != id {
			continue
		}
		copy(p.rankIndex[i:], p.rankIndex[i+1:])
		p.rankIndex = p.rankIndex[:len(p.rankIndex)-1]
		break
	}

	if p.cfg.Bindings.Phenome != nil {
		for _, ph := range e.Phenomes {
			if ph != nil {
				p.cfg.Bindings.Phenome.Release(ph)
			}
		}
	}
	p.cfg.Bindings.Allocator.Destroy(ctx, e)

	p.idIndex[id] = nil
	p.freeIDs = append(p.freeIDs, id)
	return nil
}

// Genocide dereferences every live entity, returning the population to
// size 0 while keeping its Config and generation counter intact.
func (p *Population) Genocide(ctx context.Context) error {
	ids := make([]model.EntityID, len(p.rankIndex))
	for i, e := range p.rankIndex {
		ids[i] = e.ID
	}
	for _, id := range ids {
		if err := p.Dereference(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// SortPopulation reorders the rank index by monotone non-increasing
// fitness. The ordering is stable so that entities of equal fitness
// keep their prior relative rank, matching the spec's rank-vs-id
// invariant ("monotone non-increasing fitness by rank only
// immediately after a sort").
func (p *Population) SortPopulation() {
	sort.SliceStable(p.rankIndex, func(i, j int) bool {
		return p.rankIndex[i].Fitness > p.rankIndex[j].Fitness
	})
}

// IncrementGeneration advances the generation counter. Called by the
// driver package once per completed generational round; the
// steady-state driver does not advance it.
func (p *Population) IncrementGeneration() { p.generation++ }

// Attach appends e to the rank index. Used by the driver package after
// GetFreeEntity has populated a new entity's chromosomes and fitness.
func (p *Population) Attach(e *model.Entity) {
	p.rankIndex = append(p.rankIndex, e)
}

// Seed fills the population up to StableSize with freshly constructed
// entities via the bound Seeder, evaluates each with the bound
// Evaluator, and sorts the result. Requires both a Seeder and an
// Evaluator to be bound.
func (p *Population) Seed(ctx context.Context) error {
	if p.cfg.Bindings.Seeder == nil {
		return fmt.Errorf("%w: Seeder", ErrMissingOperator)
	}
	for p.Size() < p.cfg.StableSize {
		_, e, err := p.GetFreeEntity(ctx)
		if err != nil {
			return err
		}
		if err := p.cfg.Bindings.Seeder.Seed(ctx, e); err != nil {
			return fmt.Errorf("seed entity %d: %w", e.ID, err)
		}
		if err := p.cfg.Bindings.Evaluator.Evaluate(ctx, e); err != nil {
			return fmt.Errorf("evaluate seeded entity %d: %w", e.ID, err)
		}
		e.LineageTag = p.NextLineageTag()
		p.Attach(e)
	}
	p.SortPopulation()
	return nil
}

// NextLineageTag returns a fresh lineage tag, unique within this
// population's lifetime. Seeded entities each get their own tag;
// crossover children inherit a tag only when both parents share one
// (see internal/driver's purebred-only elitism handling), otherwise
// they are tagged mixed.
func (p *Population) NextLineageTag() int32 {
	p.nextLineageTag++
	return p.nextLineageTag
}

// MixedLineageTag marks an entity produced from two parents with
// different lineage tags.
const MixedLineageTag int32 = -1

// AlleleSearch exhaustively scans integer values over the
// inclusive-exclusive range [min, max) for the locus'th allele of
// chromosome chromosomeIdx on a working copy seeded from start, using
// the bound LocusEditor to set each candidate value and the bound
// Evaluator to score it, and returns the best-scoring entity found. It
// touches no locus other than the one under scan; the working entity
// is dereferenced-equivalent (destroyed) before return, only its clone
// via Replicate is handed back to the caller.
func (p *Population) AlleleSearch(ctx context.Context, chromosomeIdx, locus, min, max int, start *model.Entity) (*model.Entity, error) {
	if p.cfg.Bindings.LocusEditor == nil {
		return nil, fmt.Errorf("%w: LocusEditor", ErrMissingOperator)
	}
	if min >= max {
		return nil, fmt.Errorf("allele search: empty range [%d, %d)", min, max)
	}

	_, work, err := p.GetFreeEntity(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		p.cfg.Bindings.Allocator.Destroy(ctx, work)
		p.idIndex[work.ID] = nil
		p.freeIDs = append(p.freeIDs, work.ID)
	}()

	for i := range start.Chromosomes {
		if err := p.cfg.Bindings.Allocator.Replicate(ctx, start, work, i); err != nil {
			return nil, fmt.Errorf("allele search: seed working copy: %w", err)
		}
	}

	var best *model.Entity
	bestFitness := model.MinFitness

	for v := min; v < max; v++ {
		if err := p.cfg.Bindings.LocusEditor.SetAllele(ctx, work, chromosomeIdx, locus, v); err != nil {
			return nil, fmt.Errorf("allele search: set allele %d: %w", v, err)
		}
		if err := p.cfg.Bindings.Evaluator.Evaluate(ctx, work); err != nil {
			return nil, fmt.Errorf("allele search: evaluate allele %d: %w", v, err)
		}
		if best == nil || work.Fitness > bestFitness {
			bestFitness = work.Fitness
			_, candidate, err := p.GetFreeEntity(ctx)
			if err != nil {
				return nil, err
			}
			if best != nil {
				p.cfg.Bindings.Allocator.Destroy(ctx, best)
				p.idIndex[best.ID] = nil
				p.freeIDs = append(p.freeIDs, best.ID)
			}
			for i := range work.Chromosomes {
				if err := p.cfg.Bindings.Allocator.Replicate(ctx, work, candidate, i); err != nil {
					return nil, fmt.Errorf("allele search: snapshot best: %w", err)
				}
			}
			candidate.Fitness = work.Fitness
			best = candidate
		}
	}

	return best, nil
}

var _ evo.Population = (*Population)(nil)
