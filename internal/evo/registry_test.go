package evo

import (
	"context"
	"errors"
	"testing"

	"genepool/internal/model"
)

type noopSeeder struct{ name string }

func (s noopSeeder) Seed(_ context.Context, e *model.Entity) error {
	e.Chromosomes[0] = s.name
	return nil
}

func TestRegisterAndResolveBuiltinOperatorByName(t *testing.T) {
	resetBuiltinRegistryForTests()
	t.Cleanup(resetBuiltinRegistryForTests)

	if err := RegisterBuiltinOperator("seed.const", 101, noopSeeder{name: "x"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	impl, err := ResolveBuiltinOperatorByName("seed.const")
	if err != nil {
		t.Fatalf("resolve by name: %v", err)
	}
	seeder, ok := impl.(Seeder)
	if !ok {
		t.Fatalf("resolved impl does not satisfy Seeder")
	}
	e := &model.Entity{Chromosomes: make([]model.Chromosome, 1)}
	if err := seeder.Seed(context.Background(), e); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if e.Chromosomes[0] != "x" {
		t.Fatalf("unexpected seeded value: %v", e.Chromosomes[0])
	}
}

func TestRegisterAndResolveBuiltinOperatorByID(t *testing.T) {
	resetBuiltinRegistryForTests()
	t.Cleanup(resetBuiltinRegistryForTests)

	impl := noopSeeder{name: "y"}
	if err := RegisterBuiltinOperator("seed.y", 5, impl); err != nil {
		t.Fatalf("register: %v", err)
	}

	resolved, err := ResolveBuiltinOperatorByID(5)
	if err != nil {
		t.Fatalf("resolve by id: %v", err)
	}
	if resolved.(noopSeeder).name != "y" {
		t.Fatalf("unexpected resolved impl: %+v", resolved)
	}

	if id := BuiltinOperatorID(impl); id != 5 {
		t.Fatalf("expected id 5, got %d", id)
	}
	if id := BuiltinOperatorID(noopSeeder{name: "unregistered"}); id != UnknownOperatorID {
		t.Fatalf("expected UnknownOperatorID for unregistered impl, got %d", id)
	}
	if id := BuiltinOperatorID(nil); id != NullOperatorID {
		t.Fatalf("expected NullOperatorID for nil impl, got %d", id)
	}
}

func TestRegisterBuiltinOperatorDuplicate(t *testing.T) {
	resetBuiltinRegistryForTests()
	t.Cleanup(resetBuiltinRegistryForTests)

	if err := RegisterBuiltinOperator("dup", 1, noopSeeder{}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := RegisterBuiltinOperator("dup", 2, noopSeeder{}); !errors.Is(err, ErrOperatorExists) {
		t.Fatalf("expected ErrOperatorExists, got: %v", err)
	}
	if err := RegisterBuiltinOperator("dup2", 1, noopSeeder{}); !errors.Is(err, ErrOperatorIDInUse) {
		t.Fatalf("expected ErrOperatorIDInUse, got: %v", err)
	}
}

func TestRegisterBuiltinOperatorValidation(t *testing.T) {
	resetBuiltinRegistryForTests()
	t.Cleanup(resetBuiltinRegistryForTests)

	if err := RegisterBuiltinOperator("", 1, noopSeeder{}); err == nil {
		t.Fatal("expected empty name error")
	}
	if err := RegisterBuiltinOperator("nil-impl", 1, nil); err == nil {
		t.Fatal("expected nil implementation error")
	}
	if err := RegisterBuiltinOperator("reserved-null", NullOperatorID, noopSeeder{}); err == nil {
		t.Fatal("expected reserved id error for NullOperatorID")
	}
	if err := RegisterBuiltinOperator("reserved-unknown", UnknownOperatorID, noopSeeder{}); err == nil {
		t.Fatal("expected reserved id error for UnknownOperatorID")
	}
}

func TestResolveBuiltinOperatorNotFound(t *testing.T) {
	resetBuiltinRegistryForTests()
	t.Cleanup(resetBuiltinRegistryForTests)

	if _, err := ResolveBuiltinOperatorByName("missing"); !errors.Is(err, ErrOperatorNotFound) {
		t.Fatalf("expected ErrOperatorNotFound, got: %v", err)
	}
	if _, err := ResolveBuiltinOperatorByID(999); !errors.Is(err, ErrOperatorNotFound) {
		t.Fatalf("expected ErrOperatorNotFound, got: %v", err)
	}
}

func TestListBuiltinOperatorsSorted(t *testing.T) {
	resetBuiltinRegistryForTests()
	t.Cleanup(resetBuiltinRegistryForTests)

	if err := RegisterBuiltinOperator("b-op", 1, noopSeeder{}); err != nil {
		t.Fatalf("register b-op: %v", err)
	}
	if err := RegisterBuiltinOperator("a-op", 2, noopSeeder{}); err != nil {
		t.Fatalf("register a-op: %v", err)
	}

	names := ListBuiltinOperators()
	if len(names) != 2 || names[0] != "a-op" || names[1] != "b-op" {
		t.Fatalf("unexpected operator list: %+v", names)
	}
}
