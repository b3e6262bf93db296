// Package genepool is the public convenience API over the engine's
// internal packages: it wires a population, a driver, and a run-history
// store together behind a small Client, the way the teacher's
// pkg/protogonos package wraps internal/platform.Polis and
// internal/storage.Store behind pkg/protogonos.Client.
package genepool

import (
	"context"
	"errors"
	"fmt"
	"io"

	"genepool/internal/driver"
	"genepool/internal/evo"
	"genepool/internal/history"
	"genepool/internal/model"
	"genepool/internal/population"
	"genepool/internal/registry"
	"genepool/internal/snapshot"
)

const defaultDBPath = "genepool.db"

// Options configures a Client's run-history backend.
type Options struct {
	StoreKind string // "memory" (default) or "sqlite"
	DBPath    string // used only when StoreKind == "sqlite"
}

// Client bundles a run-history Store with the process-wide population
// registry, giving callers a single entry point to run an evolutionary
// population and query its history afterward.
type Client struct {
	store history.Store
}

// New builds a Client. The default backend is an in-memory store; pass
// Options{StoreKind: "sqlite", DBPath: "..."} for a build tagged with
// -tags sqlite to persist run history across process restarts.
func New(opts Options) (*Client, error) {
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	store, err := history.NewStore(opts.StoreKind, dbPath)
	if err != nil {
		return nil, err
	}
	return &Client{store: store}, nil
}

// Close releases the underlying store's resources, if any.
func (c *Client) Close() error {
	return history.CloseIfSupported(c.store)
}

// RunRequest configures one generational-driver run.
type RunRequest struct {
	RunID       string
	Config      population.Config
	Generations int
	Hook        evo.GenerationHook
}

// RunSummary is what a caller gets back after a run completes: the
// run id it was recorded under, the fitness trajectory, and how the
// run ended.
type RunSummary struct {
	RunID            string
	BestByGeneration []float64
	FinalBestFitness float64
	Terminated       bool
}

// RunGenerational seeds a fresh population from req.Config, drives it
// for req.Generations generations, records one history.GenerationRecord
// per generation, and returns a summary. The returned population is
// also registered under a fresh registry.PopulationID so a caller can
// keep inspecting or snapshotting it afterward via Lookup.
func (c *Client) RunGenerational(ctx context.Context, req RunRequest) (RunSummary, registry.PopulationID, error) {
	if req.RunID == "" {
		return RunSummary{}, 0, errors.New("genepool: run id is required")
	}

	if err := c.store.Init(ctx); err != nil {
		return RunSummary{}, 0, fmt.Errorf("genepool: init history store: %w", err)
	}

	summary := RunSummary{RunID: req.RunID}
	cfg := req.Config
	cfg.Bindings.GenerationHook = historyHook{store: c.store, runID: req.RunID, summary: &summary, next: req.Hook}

	p, err := population.New(cfg)
	if err != nil {
		return RunSummary{}, 0, fmt.Errorf("genepool: build population: %w", err)
	}
	if err := p.Seed(ctx); err != nil {
		return RunSummary{}, 0, fmt.Errorf("genepool: seed population: %w", err)
	}

	outcome, err := driver.RunGenerational(ctx, p, req.Generations)
	if err != nil && !errors.Is(err, driver.ErrTerminatedByHook) {
		return RunSummary{}, 0, err
	}

	summary.FinalBestFitness = outcome.BestFitness
	summary.Terminated = outcome.Terminated

	if err := c.store.SaveRunSummary(ctx, history.RunSummary{
		RunID:            req.RunID,
		Generations:      outcome.Generation,
		BestFitness:      outcome.BestFitness,
		TerminatedByHook: outcome.Terminated,
	}); err != nil {
		return RunSummary{}, 0, fmt.Errorf("genepool: save run summary: %w", err)
	}

	id := registry.Register(p)
	return summary, id, nil
}

// GenerationHistory returns the recorded per-generation fitness
// trajectory for a run started with RunGenerational.
func (c *Client) GenerationHistory(ctx context.Context, runID string) ([]history.GenerationRecord, error) {
	records, ok, err := c.store.GenerationHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("genepool: no history for run %q", runID)
	}
	return records, nil
}

// Lookup returns the population registered under id, e.g. one returned
// by RunGenerational, so a caller can keep driving or snapshotting it.
func (c *Client) Lookup(id registry.PopulationID) (*population.Population, error) {
	return registry.Lookup(id)
}

// Release deregisters id. Callers that no longer need a run's
// in-memory population should call this to let it be garbage
// collected; the registry itself never expires entries on its own.
func (c *Client) Release(id registry.PopulationID) {
	registry.Remove(id)
}

// historyHook wraps an optional caller-supplied GenerationHook,
// appending one history.GenerationRecord per generation before
// delegating the termination decision.
type historyHook struct {
	store   history.Store
	runID   string
	summary *RunSummary
	next    evo.GenerationHook
}

func (h historyHook) OnGeneration(ctx context.Context, generation int, pop evo.Population) (bool, error) {
	best, mean, worst := fitnessStats(pop)
	h.summary.BestByGeneration = append(h.summary.BestByGeneration, best)

	if err := h.store.AppendGeneration(ctx, h.runID, history.GenerationRecord{
		Generation:     generation,
		BestFitness:    best,
		MeanFitness:    mean,
		WorstFitness:   worst,
		PopulationSize: pop.Size(),
		Island:         -1,
	}); err != nil {
		return false, fmt.Errorf("genepool: append generation history: %w", err)
	}

	if h.next != nil {
		return h.next.OnGeneration(ctx, generation, pop)
	}
	return true, nil
}

func fitnessStats(pop evo.Population) (best, mean, worst float64) {
	n := pop.Size()
	if n == 0 {
		return model.MinFitness, model.MinFitness, model.MinFitness
	}
	best, worst = model.MinFitness, 0
	first := true
	var sum float64
	for r := 0; r < n; r++ {
		e, ok := pop.EntityAtRank(r)
		if !ok {
			continue
		}
		sum += e.Fitness
		if first || e.Fitness > best {
			best = e.Fitness
		}
		if first || e.Fitness < worst {
			worst = e.Fitness
		}
		first = false
	}
	return best, sum / float64(n), worst
}

// SaveSnapshot writes p's live entities, in rank order, as a binary
// population snapshot via internal/snapshot's wire format. Bound
// operators are recorded as builtin-registry ids where recognised
// (evo.UnknownOperatorID otherwise); a snapshot never carries live
// callback values, only the id a caller can resolve back through
// evo.ResolveBuiltinOperatorByID.
func (c *Client) SaveSnapshot(ctx context.Context, w io.Writer, p *population.Population) error {
	cfg := p.Config()
	if cfg.Bindings.Codec == nil {
		return fmt.Errorf("genepool: snapshot requires a bound ChromosomeCodec")
	}

	p.SortPopulation()

	hdr := snapshot.PopulationHeader{
		StableSize:     uint32(cfg.StableSize),
		NumChromosomes: uint32(cfg.NumChromosomes),
		LenChromosomes: uint32(cfg.LenChromosomes),
		Rates:          cfg.Rates,
		Scheme:         int32(cfg.Scheme),
		Elitism:        int32(cfg.Elitism),
		Island:         int32(cfg.Island),
		HasIsland:      true,
		Callbacks:      bindingCallbackSlots(cfg.Bindings),
	}

	entities := make([]snapshot.EntityRecord, 0, p.Size())
	for r := 0; r < p.Size(); r++ {
		e, _ := p.EntityAtRank(r)
		buf, err := cfg.Bindings.Codec.ToBytes(ctx, e)
		if err != nil {
			return fmt.Errorf("genepool: encode entity %d for snapshot: %w", e.ID, err)
		}
		entities = append(entities, snapshot.EntityRecord{Fitness: e.Fitness, Chromosome: buf})
	}

	return snapshot.EncodePopulation(w, hdr, entities)
}

// LoadSnapshot reads a binary population snapshot from r and rebuilds
// a population from it. bindings must be supplied fresh by the caller
// (at minimum a ChromosomeAllocator, Evaluator, and ChromosomeCodec
// matching what produced the snapshot); seed drives the rebuilt
// population's own random source, since a snapshot never carries one.
// The snapshot's recorded callback ids are informational only — this
// call does not attempt to resolve or verify them against bindings.
func (c *Client) LoadSnapshot(ctx context.Context, r io.Reader, bindings population.Bindings, seed int64) (*population.Population, error) {
	hdr, entities, err := snapshot.DecodePopulation(r)
	if err != nil {
		return nil, fmt.Errorf("genepool: decode snapshot: %w", err)
	}
	if bindings.Codec == nil {
		return nil, fmt.Errorf("genepool: snapshot restore requires a bound ChromosomeCodec")
	}

	maxSize := int(hdr.StableSize)
	if int(hdr.Size) > maxSize {
		maxSize = int(hdr.Size)
	}

	cfg := population.Config{
		NumChromosomes: int(hdr.NumChromosomes),
		LenChromosomes: int(hdr.LenChromosomes),
		StableSize:     int(hdr.StableSize),
		MaxSize:        maxSize,
		Island:         int(hdr.Island),
		Seed:           seed,
		Rates:          hdr.Rates,
		Scheme:         model.Scheme(hdr.Scheme),
		Elitism:        model.Elitism(hdr.Elitism),
		Bindings:       bindings,
	}

	p, err := population.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("genepool: rebuild population from snapshot: %w", err)
	}

	for i, rec := range entities {
		_, e, err := p.GetFreeEntity(ctx)
		if err != nil {
			return nil, fmt.Errorf("genepool: allocate slot for snapshot entity %d: %w", i, err)
		}
		if err := bindings.Codec.FromBytes(ctx, e, rec.Chromosome); err != nil {
			return nil, fmt.Errorf("genepool: decode snapshot entity %d: %w", i, err)
		}
		e.Fitness = rec.Fitness
		p.Attach(e)
	}
	p.SortPopulation()

	return p, nil
}

// bindingCallbackSlots maps a Bindings value onto the snapshot's fixed
// 18-slot callback table, in field-declaration order; the trailing
// slots the table budgets for future operator kinds stay
// evo.NullOperatorID.
func bindingCallbackSlots(b population.Bindings) snapshot.CallbackSlots {
	ops := []any{
		b.Allocator, b.Codec, b.Stringer, b.Evaluator, b.Seeder, b.Adapter,
		b.Selector, b.PairSelector, b.Mutator, b.Crossover, b.Replacer,
		b.GenerationHook, b.IterationHook, b.Phenome, b.LocusEditor,
	}
	var slots snapshot.CallbackSlots
	for i, op := range ops {
		slots[i] = evo.BuiltinOperatorID(op)
	}
	return slots
}
