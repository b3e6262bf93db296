package driver

import (
	"context"
	"math/rand"
	"testing"

	"genepool/internal/evo"
	"genepool/internal/model"
	"genepool/internal/population"
)

const intGenomeLength = 5
const intAlleleMax = 9

type intVectorAllocator struct{}

func (intVectorAllocator) Construct(_ context.Context, e *model.Entity) error {
	e.Chromosomes[0] = make([]int, intGenomeLength)
	return nil
}

func (intVectorAllocator) Destroy(_ context.Context, e *model.Entity) {
	e.Chromosomes[0] = nil
}

func (intVectorAllocator) Replicate(_ context.Context, src, dst *model.Entity, i int) error {
	srcGenome := src.Chromosomes[i].([]int)
	dstGenome := make([]int, len(srcGenome))
	copy(dstGenome, srcGenome)
	dst.Chromosomes[i] = dstGenome
	return nil
}

type sumMaximiseEvaluator struct{}

func (sumMaximiseEvaluator) Evaluate(_ context.Context, e *model.Entity) error {
	genome := e.Chromosomes[0].([]int)
	sum := 0
	for _, v := range genome {
		sum += v
	}
	e.Fitness = float64(sum)
	return nil
}

type randomIntSeeder struct{ rng *rand.Rand }

func (s randomIntSeeder) Seed(_ context.Context, e *model.Entity) error {
	genome := e.Chromosomes[0].([]int)
	for i := range genome {
		genome[i] = s.rng.Intn(intAlleleMax + 1)
	}
	return nil
}

// cyclicSelector cycles through the ranked slice it was last Reset
// with, never reporting exhaustion, sufficient for a test driver that
// only needs a deterministic, always-available parent stream.
type cyclicSelector struct {
	ranked []*model.Entity
	i      int
}

func (s *cyclicSelector) Reset(ranked []*model.Entity) { s.ranked = ranked; s.i = 0 }

func (s *cyclicSelector) Next(_ context.Context) (*model.Entity, bool) {
	if len(s.ranked) == 0 {
		return nil, false
	}
	e := s.ranked[s.i%len(s.ranked)]
	s.i++
	return e, true
}

type cyclicPairSelector struct {
	ranked []*model.Entity
	i      int
}

func (s *cyclicPairSelector) Reset(ranked []*model.Entity) { s.ranked = ranked; s.i = 0 }

func (s *cyclicPairSelector) Next(_ context.Context) (a, b *model.Entity, ok bool) {
	if len(s.ranked) < 2 {
		return nil, nil, false
	}
	a = s.ranked[s.i%len(s.ranked)]
	b = s.ranked[(s.i+1)%len(s.ranked)]
	s.i += 2
	return a, b, true
}

type onePointCrossover struct{ rng *rand.Rand }

func (x onePointCrossover) Cross(_ context.Context, a, b, c, d *model.Entity) error {
	ga := a.Chromosomes[0].([]int)
	gb := b.Chromosomes[0].([]int)
	gc := c.Chromosomes[0].([]int)
	gd := d.Chromosomes[0].([]int)
	point := x.rng.Intn(len(ga))
	for i := range ga {
		if i < point {
			gc[i], gd[i] = ga[i], gb[i]
		} else {
			gc[i], gd[i] = gb[i], ga[i]
		}
	}
	return nil
}

type stepMutator struct{ rng *rand.Rand }

func (m stepMutator) Mutate(_ context.Context, src, dst *model.Entity) error {
	srcGenome := src.Chromosomes[0].([]int)
	dstGenome, _ := dst.Chromosomes[0].([]int)
	if dstGenome == nil || &dstGenome[0] == &srcGenome[0] {
		dstGenome = make([]int, len(srcGenome))
	}
	copy(dstGenome, srcGenome)
	locus := m.rng.Intn(len(dstGenome))
	delta := 1
	if m.rng.Intn(2) == 0 {
		delta = -1
	}
	v := dstGenome[locus] + delta
	if v < 0 {
		v = 0
	}
	if v > intAlleleMax {
		v = intAlleleMax
	}
	dstGenome[locus] = v
	dst.Chromosomes[0] = dstGenome
	return nil
}

func newIntConfig(rng *rand.Rand, elitism model.Elitism) population.Config {
	return population.Config{
		NumChromosomes: 1,
		LenChromosomes: intGenomeLength,
		StableSize:     8,
		MaxSize:        64,
		Seed:           7,
		Rates: model.Rates{
			Crossover: 0.7,
			Mutation:  0.3,
		},
		Scheme:  model.SchemeDarwin,
		Elitism: elitism,
		Bindings: population.Bindings{
			Allocator:    intVectorAllocator{},
			Evaluator:    sumMaximiseEvaluator{},
			Seeder:       randomIntSeeder{rng: rng},
			Selector:     &cyclicSelector{},
			PairSelector: &cyclicPairSelector{},
			Mutator:      stepMutator{rng: rng},
			Crossover:    onePointCrossover{rng: rng},
		},
	}
}

// TestScenarioBSmallIntegerMaximise exercises the generational driver
// over a small integer-vector maximisation problem. Under
// parents-survive elitism the previous generation's full rank index is
// always part of the survivor pool, so the population's best fitness
// is provably monotone non-decreasing across generations regardless of
// how mutation/crossover land on any given run; this test asserts that
// invariant rather than a specific converged value.
func TestScenarioBSmallIntegerMaximise(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	cfg := newIntConfig(rng, model.ElitismParentsSurvive)

	p, err := population.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Seed(ctx); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	best0, _ := p.EntityAtRank(0)
	prevBest := best0.Fitness

	for g := 0; g < 25; g++ {
		outcome, err := stepGenerational(ctx, p)
		if err != nil {
			t.Fatalf("generation %d: %v", g, err)
		}
		if outcome.BestFitness < prevBest {
			t.Fatalf("generation %d: best fitness regressed from %v to %v", g, prevBest, outcome.BestFitness)
		}
		prevBest = outcome.BestFitness
		if p.Size() < 0 || p.Size() > p.MaxSize() {
			t.Fatalf("generation %d: size invariant violated: %d", g, p.Size())
		}
	}

	if prevBest > float64(intGenomeLength*intAlleleMax) {
		t.Fatalf("best fitness %v exceeds theoretical maximum %v", prevBest, intGenomeLength*intAlleleMax)
	}
}

// TestGenerationalHookStopsDriver covers the hook-requested early
// termination path (spec scenario F): a GenerationHook returning false
// must stop RunGenerational before the requested generation count is
// exhausted, and the outcome must record that.
func TestGenerationalHookStopsDriver(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(1))
	cfg := newIntConfig(rng, model.ElitismParentsSurvive)
	cfg.Bindings.GenerationHook = stopAfter{n: 3}

	p, err := population.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Seed(ctx); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	outcome, err := RunGenerational(ctx, p, 100)
	if err != nil {
		t.Fatalf("RunGenerational: %v", err)
	}
	if !outcome.Terminated {
		t.Fatal("expected hook-requested termination")
	}
	if outcome.Generation != 3 {
		t.Fatalf("expected termination at generation 3, got %d", outcome.Generation)
	}
}

type stopAfter struct{ n int }

func (s stopAfter) OnGeneration(_ context.Context, generation int, _ evo.Population) (bool, error) {
	return generation < s.n, nil
}
