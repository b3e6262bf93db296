package driver

import (
	"context"
	"fmt"

	"genepool/internal/model"
	"genepool/internal/population"
)

// RunSteadyState executes iterations rounds of the steady-state
// per-iteration sequence (select two parents, crossover-or-clone into
// two children, mutate-or-not each, score each, replace each),
// stopping early if the population's bound IterationHook returns
// false.
func RunSteadyState(ctx context.Context, p *population.Population, iterations int) (IterationOutcome, error) {
	cfg := p.Config()
	if cfg.Bindings.PairSelector == nil {
		return IterationOutcome{}, fmt.Errorf("%w: PairSelector", population.ErrMissingOperator)
	}

	var outcome IterationOutcome
	cfg.Bindings.PairSelector.Reset(p.RankIndex())

	for i := 0; i < iterations; i++ {
		var err error
		outcome, err = stepSteadyState(ctx, p, i)
		if err != nil {
			return outcome, err
		}
		if outcome.Terminated {
			return outcome, nil
		}
	}
	return outcome, nil
}

func stepSteadyState(ctx context.Context, p *population.Population, iteration int) (IterationOutcome, error) {
	cfg := p.Config()

	children, err := produceTwo(ctx, p)
	if err != nil {
		return IterationOutcome{}, err
	}

	for _, c := range children {
		if err := cfg.Bindings.Evaluator.Evaluate(ctx, c); err != nil {
			return IterationOutcome{}, fmt.Errorf("evaluate iteration entity %d: %w", c.ID, err)
		}
	}

	if cfg.Scheme.AdaptsChildren() {
		if err := adaptInPlace(ctx, p, children[:]); err != nil {
			return IterationOutcome{}, err
		}
	}

	for _, c := range children {
		if err := replace(ctx, p, c); err != nil {
			return IterationOutcome{}, err
		}
	}

	p.SortPopulation()

	outcome := IterationOutcome{Iteration: iteration + 1}
	if best, ok := p.EntityAtRank(0); ok {
		outcome.BestFitness = best.Fitness
	}

	if cfg.Bindings.IterationHook != nil {
		reported := children[0]
		if children[1].Fitness > reported.Fitness {
			reported = children[1]
		}
		cont, err := cfg.Bindings.IterationHook.OnIteration(ctx, iteration+1, reported)
		if err != nil {
			return outcome, fmt.Errorf("iteration hook: %w", err)
		}
		if !cont {
			outcome.Terminated = true
		}
	}

	return outcome, nil
}

// produceTwo selects a parent pair and always produces two children
// from it: a crossover pair when Crossover is bound and Rates.Crossover
// fires, otherwise a mutation-clone of each parent individually. Each
// child is then, independently, additionally mutated with probability
// Rates.Mutation. This mirrors the generational driver's per-round
// production of a full child batch, scaled down to the two children a
// steady-state iteration replaces.
func produceTwo(ctx context.Context, p *population.Population) ([2]*model.Entity, error) {
	cfg := p.Config()
	var children [2]*model.Entity

	a, b, ok := cfg.Bindings.PairSelector.Next(ctx)
	if !ok {
		cfg.Bindings.PairSelector.Reset(p.RankIndex())
		a, b, ok = cfg.Bindings.PairSelector.Next(ctx)
		if !ok {
			return children, fmt.Errorf("pair selector exhausted with no candidates")
		}
	}

	_, c, err := p.GetFreeEntity(ctx)
	if err != nil {
		return children, err
	}
	_, d, err := p.GetFreeEntity(ctx)
	if err != nil {
		return children, err
	}

	if cfg.Bindings.Crossover != nil && p.Rand().Float64() < cfg.Rates.Crossover {
		if err := cfg.Bindings.Crossover.Cross(ctx, a, b, c, d); err != nil {
			return children, fmt.Errorf("cross entities %d,%d: %w", a.ID, b.ID, err)
		}
		tagPair(c, a, b)
		tagPair(d, a, b)
	} else {
		if cfg.Bindings.Mutator == nil {
			return children, fmt.Errorf("%w: Mutator", population.ErrMissingOperator)
		}
		if err := cfg.Bindings.Mutator.Mutate(ctx, a, c); err != nil {
			return children, fmt.Errorf("mutate entity %d: %w", a.ID, err)
		}
		c.ParentA, c.ParentB = a.ID, a.ID
		c.LineageTag = a.LineageTag
		if err := cfg.Bindings.Mutator.Mutate(ctx, b, d); err != nil {
			return children, fmt.Errorf("mutate entity %d: %w", b.ID, err)
		}
		d.ParentA, d.ParentB = b.ID, b.ID
		d.LineageTag = b.LineageTag
	}

	children[0], children[1] = c, d

	if cfg.Bindings.Mutator != nil && cfg.Rates.Mutation > 0 {
		for _, child := range children {
			if p.Rand().Float64() < cfg.Rates.Mutation {
				if err := cfg.Bindings.Mutator.Mutate(ctx, child, child); err != nil {
					return children, fmt.Errorf("mutate candidate %d: %w", child.ID, err)
				}
			}
		}
	}

	return children, nil
}

// replace inserts next into p under the bound Replacer policy, or the
// default policy (replace the current worst-ranked entity if next
// beats it) when no Replacer is bound.
func replace(ctx context.Context, p *population.Population, next *model.Entity) error {
	cfg := p.Config()

	if cfg.Bindings.Replacer != nil {
		return cfg.Bindings.Replacer.Replace(ctx, p, next)
	}

	if p.Size() < p.StableSize() {
		p.Attach(next)
		return nil
	}

	worstRank := p.Size() - 1
	worst, ok := p.EntityAtRank(worstRank)
	if !ok {
		p.Attach(next)
		return nil
	}
	if next.Fitness <= worst.Fitness {
		if err := p.Dereference(ctx, next.ID); err != nil {
			return err
		}
		return nil
	}
	if err := p.Dereference(ctx, worst.ID); err != nil {
		return err
	}
	p.Attach(next)
	return nil
}
