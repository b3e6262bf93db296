package population

import "genepool/internal/evo"

// Bindings collects every operator slot a Population can be
// parametrised by. A nil field means that slot was never bound;
// invoking an operation that requires it is a contract violation
// (ErrMissingOperator).
type Bindings struct {
	Allocator      evo.ChromosomeAllocator
	Codec          evo.ChromosomeCodec
	Stringer       evo.ChromosomeStringer
	Evaluator      evo.Evaluator
	Seeder         evo.Seeder
	Adapter        evo.Adapter
	Selector       evo.Selector
	PairSelector   evo.PairSelector
	Mutator        evo.Mutator
	Crossover      evo.Crossover
	Replacer       evo.Replacer
	GenerationHook evo.GenerationHook
	IterationHook  evo.IterationHook
	Phenome        evo.PhenomeManager
	LocusEditor    evo.LocusEditor
}
