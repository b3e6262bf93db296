package island

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"github.com/katalvlaran/lvlath/core"

	"genepool/internal/driver"
	"genepool/internal/evo"
	"genepool/internal/model"
	"genepool/internal/population"
	"genepool/internal/transport"
)

// Outcome summarises one completed archipelago round: one generational
// step per deme plus a migration exchange.
type Outcome struct {
	Generation  int
	DemeOutcome []driver.GenerationOutcome
	Terminated  bool
}

// Archipelago runs a fixed set of demes (populations) through the
// generational driver in lock-step, migrating individuals between
// rounds according to a topology graph.
type Archipelago struct {
	demes    []*population.Population
	topology *core.Graph
	hook     evo.GenerationHook
}

// NewArchipelago builds an archipelago over demes. If topology is nil,
// the default ring over len(demes) is used, per spec §4.5.
func NewArchipelago(demes []*population.Population, topology *core.Graph, hook evo.GenerationHook) (*Archipelago, error) {
	if len(demes) == 0 {
		return nil, fmt.Errorf("island: archipelago requires at least one deme")
	}
	if topology == nil {
		var err error
		topology, err = BuildRingTopology(len(demes))
		if err != nil {
			return nil, err
		}
	}
	return &Archipelago{demes: demes, topology: topology, hook: hook}, nil
}

// RunGenerations executes generations archipelago rounds sequentially:
// each round runs one generational step per deme, then a migration
// exchange, then the per-deme hook (any false stops every deme).
func (a *Archipelago) RunGenerations(ctx context.Context, generations int) (Outcome, error) {
	var outcome Outcome
	for g := 0; g < generations; g++ {
		var err error
		outcome, err = a.stepRound(ctx)
		if err != nil {
			return outcome, err
		}
		if outcome.Terminated {
			return outcome, nil
		}
	}
	return outcome, nil
}

// RunGenerationsSupervised is the process-parallel variant: each
// deme's per-generation step runs as a Supervisor-managed goroutine,
// bounded to workers concurrent demes at a time (workers <= 0 uses
// WorkersFromEnv). A deme worker never restarts mid-round
// (SupervisorRestartTemporary): if any deme fails, the whole round
// fails, since a stale migration barrier cannot be resumed.
func (a *Archipelago) RunGenerationsSupervised(ctx context.Context, generations, workers int) (Outcome, error) {
	if workers <= 0 {
		workers = WorkersFromEnv()
	}
	var outcome Outcome
	for g := 0; g < generations; g++ {
		var err error
		outcome, err = a.stepRoundSupervised(ctx, workers)
		if err != nil {
			return outcome, err
		}
		if outcome.Terminated {
			return outcome, nil
		}
	}
	return outcome, nil
}

func (a *Archipelago) stepRound(ctx context.Context) (Outcome, error) {
	demeOutcomes := make([]driver.GenerationOutcome, len(a.demes))
	for i, deme := range a.demes {
		out, err := driver.RunGenerational(ctx, deme, 1)
		if err != nil {
			return Outcome{}, fmt.Errorf("island: deme %d: %w", i, err)
		}
		demeOutcomes[i] = out
	}
	return a.finishRound(ctx, demeOutcomes)
}

func (a *Archipelago) stepRoundSupervised(ctx context.Context, workers int) (Outcome, error) {
	sup := NewSupervisor(SupervisorPolicy{})
	demeOutcomes := make([]driver.GenerationOutcome, len(a.demes))
	errs := make([]error, len(a.demes))

	sem := make(chan struct{}, workers)
	for i := range a.demes {
		i := i
		sem <- struct{}{}
		err := sup.Start(DemeSpec{Deme: i, Restart: SupervisorRestartTemporary}, func(ctx context.Context) error {
			defer func() { <-sem }()
			out, err := driver.RunGenerational(ctx, a.demes[i], 1)
			demeOutcomes[i] = out
			errs[i] = err
			return err
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("island: start deme %d: %w", i, err)
		}
	}
	sup.Wait()

	for i, err := range errs {
		if err != nil {
			return Outcome{}, fmt.Errorf("island: deme %d: %w", i, err)
		}
	}

	return a.finishRound(ctx, demeOutcomes)
}

func (a *Archipelago) finishRound(ctx context.Context, demeOutcomes []driver.GenerationOutcome) (Outcome, error) {
	if err := a.migrate(ctx); err != nil {
		return Outcome{}, fmt.Errorf("island: migration: %w", err)
	}

	outcome := Outcome{DemeOutcome: demeOutcomes}
	if len(a.demes) > 0 {
		outcome.Generation = a.demes[0].Generation()
	}

	if a.hook != nil {
		for i, deme := range a.demes {
			cont, err := a.hook.OnGeneration(ctx, deme.Generation(), deme)
			if err != nil {
				return outcome, fmt.Errorf("island: deme %d hook: %w", i, err)
			}
			if !cont {
				outcome.Terminated = true
			}
		}
	}
	return outcome, nil
}

// migrate runs one migration round: for every deme d with an outgoing
// topology edge, m_d = round(migration_ratio_d * stable_size_d)
// fittest emigrants are framed into a transport.WriteBatch wire batch
// (NUMENTITIES, ENTITYLEN, then one ENTITYFITNESS/ENTITYCHROMOSOME pair
// per entity, per spec §6.2) and read back with transport.ReadBatch on
// the receiving side, which grows on overflow and is culled back to
// stable_size afterward. The batch carries the sender's already-scored
// fitness across the wire; the receiver installs it directly rather
// than re-evaluating the immigrant.
func (a *Archipelago) migrate(ctx context.Context) error {
	type inbound struct {
		from    int
		records []transport.EntityRecord
	}

	byTarget := make(map[int][]inbound)

	for d, deme := range a.demes {
		targets, err := EmigrationTargets(a.topology, d)
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			continue
		}
		cfg := deme.Config()
		if cfg.Rates.Migration <= 0 || cfg.Bindings.Codec == nil {
			continue
		}
		m := int(math.Round(cfg.Rates.Migration * float64(deme.StableSize())))
		if m <= 0 {
			continue
		}
		deme.SortPopulation()

		records := make([]transport.EntityRecord, 0, m)
		for i := 0; i < m && i < deme.Size(); i++ {
			e, _ := deme.EntityAtRank(i)
			buf, err := cfg.Bindings.Codec.ToBytes(ctx, e)
			if err != nil {
				return fmt.Errorf("encode emigrant from deme %d: %w", d, err)
			}
			records = append(records, transport.EntityRecord{Fitness: e.Fitness, Chromosome: buf})
		}

		var wire bytes.Buffer
		if err := transport.WriteBatch(&wire, records); err != nil {
			return fmt.Errorf("frame migration batch from deme %d: %w", d, err)
		}
		decoded, err := transport.ReadBatch(&wire)
		if err != nil {
			return fmt.Errorf("read migration batch from deme %d: %w", d, err)
		}

		for _, t := range targets {
			byTarget[t] = append(byTarget[t], inbound{from: d, records: decoded})
		}
	}

	for target, groups := range byTarget {
		deme := a.demes[target]
		cfg := deme.Config()
		if cfg.Bindings.Codec == nil {
			continue
		}

		total := 0
		for _, g := range groups {
			total += len(g.records)
		}
		if needed := deme.Size() + total; needed > deme.MaxSize() {
			deme.GrowMaxSize(needed)
		}

		for _, g := range groups {
			for _, rec := range g.records {
				_, e, err := deme.GetFreeEntity(ctx)
				if err != nil {
					return fmt.Errorf("allocate immigrant slot on deme %d: %w", target, err)
				}
				if err := cfg.Bindings.Codec.FromBytes(ctx, e, rec.Chromosome); err != nil {
					return fmt.Errorf("decode immigrant from deme %d into deme %d: %w", g.from, target, err)
				}
				e.Fitness = rec.Fitness
				e.ParentA, e.ParentB = model.NoParent, model.NoParent
				deme.Attach(e)
			}
		}
	}

	for _, deme := range a.demes {
		if err := cullToStableSize(ctx, deme); err != nil {
			return err
		}
	}
	return nil
}

// cullToStableSize sorts deme and dereferences the least-fit entities
// beyond stable_size, per the migration round's "receiver grows on
// overflow; cull to stable_size" rule.
func cullToStableSize(ctx context.Context, deme *population.Population) error {
	deme.SortPopulation()
	for deme.Size() > deme.StableSize() {
		worst, ok := deme.EntityAtRank(deme.Size() - 1)
		if !ok {
			break
		}
		if err := deme.Dereference(ctx, worst.ID); err != nil {
			return err
		}
	}
	return nil
}
