package history

import (
	"context"
	"testing"
)

func TestMemoryStoreGenerationHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	if err := store.AppendGeneration(ctx, "run-1", GenerationRecord{Generation: 0, BestFitness: 0.4, PopulationSize: 10, Island: -1}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendGeneration(ctx, "run-1", GenerationRecord{Generation: 1, BestFitness: 0.6, PopulationSize: 10, Island: -1}); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, ok, err := store.GenerationHistory(ctx, "run-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted generation history")
	}
	if len(got) != 2 || got[1].BestFitness != 0.6 {
		t.Fatalf("unexpected history: %+v", got)
	}
}

func TestMemoryStoreGenerationHistoryUnknownRun(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	_, ok, err := store.GenerationHistory(ctx, "missing")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if ok {
		t.Fatal("expected no history for unknown run")
	}
}

func TestMemoryStoreTopEntitiesRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	top := []TopEntityRecord{
		{Generation: 3, Rank: 0, EntityID: 5, Fitness: 9.5, Chromosome: []byte{1, 2}},
		{Generation: 3, Rank: 1, EntityID: 2, Fitness: 8.1, Chromosome: []byte{3, 4}},
	}
	if err := store.SaveTopEntities(ctx, "run-1", top); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := store.TopEntities(ctx, "run-1")
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if !ok || len(got) != 2 || got[0].EntityID != 5 {
		t.Fatalf("unexpected top entities: %+v", got)
	}
}

func TestMemoryStoreRunSummaryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	summary := RunSummary{RunID: "run-1", Generations: 40, BestFitness: 12.5, TerminatedByHook: true}
	if err := store.SaveRunSummary(ctx, summary); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := store.GetRunSummary(ctx, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || got != summary {
		t.Fatalf("unexpected summary: %+v", got)
	}
}
