// Package driver implements the generational and steady-state
// evolutionary control loops over an internal/population.Population,
// consulting the operator bindings the population was constructed
// with. It is a separate package from internal/population so that
// internal/evo's operator interfaces never need to depend on the
// concrete Population type: driver is the one package that imports
// both.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"genepool/internal/model"
	"genepool/internal/population"
)

// ErrTerminatedByHook names the hook-requested stop condition. The
// drivers never return it: a hook requesting termination is a clean
// stop, reported through the outcome's Terminated field, not a failure.
var ErrTerminatedByHook = errors.New("terminated by hook")

// GenerationOutcome summarises one completed generational round.
type GenerationOutcome struct {
	Generation     int
	PopulationSize int
	BestFitness    float64
	Terminated     bool
}

// IterationOutcome summarises one completed steady-state iteration.
type IterationOutcome struct {
	Iteration   int
	BestFitness float64
	Terminated  bool
}

// RunGenerational executes generations rounds of the nine-step
// generational sequence (sort, pre-adaptation, crossover, mutation,
// score, post-adaptation, sort, elitism, dereference non-survivors),
// stopping early if the population's bound GenerationHook returns
// false. The final outcome's Terminated field distinguishes an
// early hook stop from exhausting the requested generation count.
func RunGenerational(ctx context.Context, p *population.Population, generations int) (GenerationOutcome, error) {
	var outcome GenerationOutcome
	for g := 0; g < generations; g++ {
		var err error
		outcome, err = stepGenerational(ctx, p)
		if err != nil {
			return outcome, err
		}
		if outcome.Terminated {
			return outcome, nil
		}
	}
	return outcome, nil
}

func stepGenerational(ctx context.Context, p *population.Population) (GenerationOutcome, error) {
	cfg := p.Config()

	// 1. sort
	p.SortPopulation()

	// 2. pre-adaptation (scheme-gated)
	if cfg.Scheme.AdaptsParents() {
		if err := adaptInPlace(ctx, p, p.RankIndex()); err != nil {
			return GenerationOutcome{}, fmt.Errorf("pre-adaptation: %w", err)
		}
	}

	parents := append([]*model.Entity(nil), p.RankIndex()...)

	// 3. crossover, 4. mutation: two independent Bernoulli-gated passes
	// over the ranked population, each stopping at its first failed
	// draw or an exhausted selector.
	children, err := reproduce(ctx, p)
	if err != nil {
		return GenerationOutcome{}, err
	}

	// 5. score new entities
	for _, c := range children {
		if err := cfg.Bindings.Evaluator.Evaluate(ctx, c); err != nil {
			return GenerationOutcome{}, fmt.Errorf("evaluate child %d: %w", c.ID, err)
		}
	}

	// 6. post-adaptation (scheme-gated)
	if cfg.Scheme.AdaptsChildren() {
		if err := adaptInPlace(ctx, p, children); err != nil {
			return GenerationOutcome{}, fmt.Errorf("post-adaptation: %w", err)
		}
	}

	// 7. sort + 8. elitism: assemble survivor pool, cull to StableSize.
	survivors, culled, err := applyElitism(ctx, p, parents, children)
	if err != nil {
		return GenerationOutcome{}, err
	}

	// 9. dereference non-survivors
	for _, e := range culled {
		if err := p.Dereference(ctx, e.ID); err != nil {
			return GenerationOutcome{}, fmt.Errorf("dereference culled entity %d: %w", e.ID, err)
		}
	}

	rebuildRankIndex(p, survivors)
	p.SortPopulation()

	p.IncrementGeneration()

	outcome := GenerationOutcome{
		Generation:     p.Generation(),
		PopulationSize: p.Size(),
	}
	if best, ok := p.EntityAtRank(0); ok {
		outcome.BestFitness = best.Fitness
	}

	if cfg.Bindings.GenerationHook != nil {
		cont, err := cfg.Bindings.GenerationHook.OnGeneration(ctx, p.Generation(), p)
		if err != nil {
			return outcome, fmt.Errorf("generation hook: %w", err)
		}
		if !cont {
			outcome.Terminated = true
		}
	}

	return outcome, nil
}

// adaptInPlace runs the bound Adapter over each entity in set, writing
// the adapted fitness back always and the adapted chromosomes back
// only under a Lamarckian scheme (Baldwinian keeps the original
// chromosomes with the adapted fitness).
func adaptInPlace(ctx context.Context, p *population.Population, set []*model.Entity) error {
	cfg := p.Config()
	if cfg.Bindings.Adapter == nil {
		return fmt.Errorf("%w: Adapter", population.ErrMissingOperator)
	}
	for _, e := range set {
		adapted, err := cfg.Bindings.Adapter.Adapt(ctx, e)
		if err != nil {
			return fmt.Errorf("adapt entity %d: %w", e.ID, err)
		}
		e.Fitness = adapted.Fitness
		if cfg.Scheme.Lamarckian() {
			for i := range e.Chromosomes {
				if err := cfg.Bindings.Allocator.Replicate(ctx, adapted, e, i); err != nil {
					return fmt.Errorf("write back adapted entity %d: %w", e.ID, err)
				}
			}
		}
	}
	return nil
}

// reproduce runs two independent passes over the ranked population: a
// crossover pass over select_two and a mutation pass over select_one.
// Each pass resets its selector once, then repeatedly draws the next
// candidate(s) and a Bernoulli trial at the pass's rate; it appends a
// child on every success and stops at the first failed draw or once
// its selector reports exhaustion. Rates.Crossover and Rates.Mutation
// therefore gate how many children each pass produces, not a per-slot
// choice between the two mechanisms. The number of children a pass
// produces has no fixed upper bound: a selector that never reports
// exhaustion leaves the pass running until a draw fails, and
// GetFreeEntity returns ErrPopulationFull once MaxSize ids are in use.
func reproduce(ctx context.Context, p *population.Population) ([]*model.Entity, error) {
	cfg := p.Config()
	var children []*model.Entity

	if cfg.Bindings.PairSelector != nil && cfg.Bindings.Crossover != nil {
		cfg.Bindings.PairSelector.Reset(p.RankIndex())
		for {
			a, b, ok := cfg.Bindings.PairSelector.Next(ctx)
			if !ok || p.Rand().Float64() >= cfg.Rates.Crossover {
				break
			}
			_, c, err := p.GetFreeEntity(ctx)
			if err != nil {
				return nil, err
			}
			_, d, err := p.GetFreeEntity(ctx)
			if err != nil {
				return nil, err
			}
			if err := cfg.Bindings.Crossover.Cross(ctx, a, b, c, d); err != nil {
				return nil, fmt.Errorf("cross entities %d,%d: %w", a.ID, b.ID, err)
			}
			tagPair(c, a, b)
			tagPair(d, a, b)
			children = append(children, c, d)
		}
	}

	if cfg.Bindings.Selector != nil && cfg.Bindings.Mutator != nil {
		cfg.Bindings.Selector.Reset(p.RankIndex())
		for {
			src, ok := cfg.Bindings.Selector.Next(ctx)
			if !ok || p.Rand().Float64() >= cfg.Rates.Mutation {
				break
			}
			_, dest, err := p.GetFreeEntity(ctx)
			if err != nil {
				return nil, err
			}
			if err := cfg.Bindings.Mutator.Mutate(ctx, src, dest); err != nil {
				return nil, fmt.Errorf("mutate entity %d: %w", src.ID, err)
			}
			dest.ParentA, dest.ParentB = src.ID, src.ID
			dest.LineageTag = src.LineageTag
			children = append(children, dest)
		}
	}

	return children, nil
}

func tagPair(child, a, b *model.Entity) {
	child.ParentA, child.ParentB = a.ID, b.ID
	if a.LineageTag != 0 && a.LineageTag == b.LineageTag {
		child.LineageTag = a.LineageTag
	} else {
		child.LineageTag = population.MixedLineageTag
	}
}

// applyElitism assembles the survivor pool per the population's
// elitism qualifier and returns the entities to keep and the entities
// to cull (dereference). See DESIGN.md for the interpretation of each
// qualifier against the spec's prose description.
func applyElitism(ctx context.Context, p *population.Population, parents, children []*model.Entity) (survivors, culled []*model.Entity, err error) {
	cfg := p.Config()

	pool := make([]*model.Entity, 0, len(parents)+len(children))

	switch cfg.Elitism {
	case model.ElitismNone, model.ElitismUnknown:
		pool = append(pool, children...)

	case model.ElitismParentsSurvive:
		pool = append(pool, parents...)
		pool = append(pool, children...)

	case model.ElitismOneParentSurvives:
		seen := make(map[model.EntityID]bool, len(parents))
		for _, c := range children {
			survivor := betterParent(p, c.ParentA, c.ParentB)
			if survivor != model.NoParent && !seen[survivor] {
				seen[survivor] = true
				if e, err := p.ByID(survivor); err == nil {
					pool = append(pool, e)
				}
			}
		}
		pool = append(pool, children...)

	case model.ElitismRescoreParents:
		for _, e := range parents {
			if err := cfg.Bindings.Evaluator.Evaluate(ctx, e); err != nil {
				return nil, nil, fmt.Errorf("rescore parent %d: %w", e.ID, err)
			}
		}
		pool = append(pool, parents...)
		pool = append(pool, children...)

	case model.ElitismPurebredOnly:
		pool = append(pool, parents...)
		for _, c := range children {
			if c.LineageTag == population.MixedLineageTag {
				culled = append(culled, c)
				continue
			}
			pool = append(pool, c)
		}

	default:
		pool = append(pool, children...)
	}

	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].Fitness > pool[j].Fitness
	})

	target := cfg.StableSize
	if len(pool) <= target {
		return pool, culled, nil
	}
	return pool[:target], append(culled, pool[target:]...), nil
}

func betterParent(p *population.Population, a, b model.EntityID) model.EntityID {
	ea, errA := p.ByID(a)
	eb, errB := p.ByID(b)
	switch {
	case errA != nil && errB != nil:
		return model.NoParent
	case errA != nil:
		return b
	case errB != nil:
		return a
	case ea.Fitness >= eb.Fitness:
		return a
	default:
		return b
	}
}

// rebuildRankIndex replaces p's rank index wholesale with set, without
// touching the id index. Used internally while assembling a new
// survivor pool ahead of a final sort.
func rebuildRankIndex(p *population.Population, set []*model.Entity) {
	idx := p.RankIndex()
	idx = idx[:0]
	idx = append(idx, set...)
	p.SetRankIndex(idx)
}
