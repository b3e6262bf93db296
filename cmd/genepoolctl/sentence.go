package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"

	"genepool/internal/evo"
	"genepool/internal/model"
	"genepool/internal/population"
	"genepool/pkg/genepool"
)

const defaultTarget = "METHINKS IT IS LIKE A WEASEL"

const printableLow, printableHigh = 32, 126 // space through '~'

// runSentence wires scenario A: a population of fixed-length byte
// strings evolves toward a target sentence by single-character
// mutation and single-point crossover, fitness being the count of
// characters already matching the target. Mirrors GAUL's own
// "struggle" demo.
func runSentence(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sentence", flag.ContinueOnError)
	target := fs.String("target", defaultTarget, "target sentence")
	populationSize := fs.Int("population", 100, "stable population size")
	generations := fs.Int("generations", 200, "generations to run")
	seed := fs.Int64("seed", 1, "PRNG seed")
	crossoverRate := fs.Float64("crossover-rate", 0.7, "probability that the crossover pass draws another parent pair (two children per pair)")
	mutationRate := fs.Float64("mutation-rate", 0.2, "probability that the mutation pass draws another parent (one child per draw)")
	storeKind := fs.String("store", "memory", "history store backend: memory|sqlite")
	dbPath := fs.String("db-path", "genepoolctl.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(*target) == 0 {
		return fmt.Errorf("target must not be empty")
	}
	// rankSelector/rankPairSelector draw with replacement and never
	// report exhaustion, so a rate of exactly 1.0 would keep the
	// reproduction pass's Bernoulli draw succeeding forever.
	if *crossoverRate >= 1 || *mutationRate >= 1 {
		return fmt.Errorf("crossover-rate and mutation-rate must each be below 1.0")
	}

	client, err := genepool.New(genepool.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	rng := rand.New(rand.NewSource(*seed))
	cfg := population.Config{
		NumChromosomes: 1,
		LenChromosomes: len(*target),
		StableSize:     *populationSize,
		MaxSize:        *populationSize * 4,
		Seed:           *seed,
		Rates: model.Rates{
			Crossover: *crossoverRate,
			Mutation:  *mutationRate,
		},
		Elitism: model.ElitismParentsSurvive,
		Bindings: population.Bindings{
			Allocator:    sentenceAllocator{length: len(*target)},
			Evaluator:    sentenceEvaluator{target: []byte(*target)},
			Seeder:       sentenceSeeder{rng: rng},
			Selector:     newRankSelector(rng),
			PairSelector: newRankPairSelector(rng),
			Mutator:      sentenceMutator{rng: rng},
			Crossover:    sentenceCrossover{rng: rng},
		},
	}

	summary, id, err := client.RunGenerational(ctx, genepool.RunRequest{
		RunID:       fmt.Sprintf("sentence-%d", *seed),
		Config:      cfg,
		Generations: *generations,
		Hook:        printProgressHook{target: []byte(*target), every: 20},
	})
	if err != nil {
		return err
	}
	defer client.Release(id)

	fmt.Printf("final best fitness: %.0f/%d\n", summary.FinalBestFitness, len(*target))
	return nil
}

type sentenceAllocator struct{ length int }

func (a sentenceAllocator) Construct(_ context.Context, e *model.Entity) error {
	e.Chromosomes[0] = make([]byte, a.length)
	return nil
}

func (sentenceAllocator) Destroy(_ context.Context, e *model.Entity) { e.Chromosomes[0] = nil }

func (sentenceAllocator) Replicate(_ context.Context, src, dst *model.Entity, i int) error {
	srcGenome := src.Chromosomes[i].([]byte)
	dstGenome := make([]byte, len(srcGenome))
	copy(dstGenome, srcGenome)
	dst.Chromosomes[i] = dstGenome
	return nil
}

type sentenceEvaluator struct{ target []byte }

func (v sentenceEvaluator) Evaluate(_ context.Context, e *model.Entity) error {
	genome := e.Chromosomes[0].([]byte)
	matches := 0
	for i, c := range genome {
		if i < len(v.target) && c == v.target[i] {
			matches++
		}
	}
	e.Fitness = float64(matches)
	return nil
}

type sentenceSeeder struct{ rng *rand.Rand }

func (s sentenceSeeder) Seed(_ context.Context, e *model.Entity) error {
	genome := e.Chromosomes[0].([]byte)
	for i := range genome {
		genome[i] = byte(printableLow + s.rng.Intn(printableHigh-printableLow+1))
	}
	return nil
}

type sentenceMutator struct{ rng *rand.Rand }

func (m sentenceMutator) Mutate(_ context.Context, src, dst *model.Entity) error {
	srcGenome := src.Chromosomes[0].([]byte)
	dstGenome := make([]byte, len(srcGenome))
	copy(dstGenome, srcGenome)
	locus := m.rng.Intn(len(dstGenome))
	dstGenome[locus] = byte(printableLow + m.rng.Intn(printableHigh-printableLow+1))
	dst.Chromosomes[0] = dstGenome
	return nil
}

type sentenceCrossover struct{ rng *rand.Rand }

func (x sentenceCrossover) Cross(_ context.Context, a, b, c, d *model.Entity) error {
	ga := a.Chromosomes[0].([]byte)
	gb := b.Chromosomes[0].([]byte)
	gc := make([]byte, len(ga))
	gd := make([]byte, len(ga))
	point := x.rng.Intn(len(ga))
	for i := range ga {
		if i < point {
			gc[i], gd[i] = ga[i], gb[i]
		} else {
			gc[i], gd[i] = gb[i], ga[i]
		}
	}
	c.Chromosomes[0], d.Chromosomes[0] = gc, gd
	return nil
}

// rankSelector draws a single parent per call with linear-rank-biased
// probability: the fittest entity in the current ranked slice is
// (len(ranked)) times as likely to be drawn as the least fit.
type rankSelector struct {
	rng    *rand.Rand
	ranked []*model.Entity
}

func newRankSelector(rng *rand.Rand) *rankSelector { return &rankSelector{rng: rng} }

func (s *rankSelector) Reset(ranked []*model.Entity) { s.ranked = ranked }

func (s *rankSelector) Next(_ context.Context) (*model.Entity, bool) {
	if len(s.ranked) == 0 {
		return nil, false
	}
	return s.ranked[pickRank(s.rng, len(s.ranked))], true
}

type rankPairSelector struct {
	rng    *rand.Rand
	ranked []*model.Entity
}

func newRankPairSelector(rng *rand.Rand) *rankPairSelector { return &rankPairSelector{rng: rng} }

func (s *rankPairSelector) Reset(ranked []*model.Entity) { s.ranked = ranked }

func (s *rankPairSelector) Next(_ context.Context) (a, b *model.Entity, ok bool) {
	if len(s.ranked) < 2 {
		return nil, nil, false
	}
	ia := pickRank(s.rng, len(s.ranked))
	ib := pickRank(s.rng, len(s.ranked))
	for ib == ia {
		ib = pickRank(s.rng, len(s.ranked))
	}
	return s.ranked[ia], s.ranked[ib], true
}

// pickRank draws an index in [0, n) with linear-rank weighting: index
// 0 (the fittest, since the rank index is sorted descending) is n
// times as likely as index n-1.
func pickRank(rng *rand.Rand, n int) int {
	total := n * (n + 1) / 2
	r := rng.Intn(total)
	weight := n
	idx := 0
	for r >= weight {
		r -= weight
		weight--
		idx++
	}
	return idx
}

// printProgressHook reports the best decoded sentence every `every`
// generations to stdout, standing in for the diagnostics stream the
// spec keeps out of the engine core.
type printProgressHook struct {
	target []byte
	every  int
}

func (h printProgressHook) OnGeneration(_ context.Context, generation int, pop evo.Population) (bool, error) {
	if h.every <= 0 || generation%h.every != 0 {
		return true, nil
	}
	best, ok := pop.EntityAtRank(0)
	if !ok {
		return true, nil
	}
	genome, _ := best.Chromosomes[0].([]byte)
	fmt.Printf("generation %4d: %q (%d/%d)\n", generation, string(genome), int(best.Fitness), len(h.target))
	return true, nil
}
