package main

import (
	"context"
	"math/rand"
	"testing"
)

func TestRunSentenceCommandCompletes(t *testing.T) {
	args := []string{
		"sentence",
		"--target", "HELLO WORLD",
		"--population", "12",
		"--generations", "20",
		"--seed", "3",
		"--store", "memory",
	}

	if err := run(context.Background(), args); err != nil {
		t.Fatalf("run sentence: %v", err)
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	if err := run(context.Background(), []string{"bogus"}); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestRunRejectsEmptyArgs(t *testing.T) {
	if err := run(context.Background(), nil); err == nil {
		t.Fatal("expected error for missing command")
	}
}

func TestPickRankFavoursLowerIndices(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	counts := make([]int, 5)
	for i := 0; i < 5000; i++ {
		counts[pickRank(rng, 5)]++
	}
	for i := 0; i < 4; i++ {
		if counts[i] <= counts[i+1] {
			t.Fatalf("expected rank %d to be drawn more often than rank %d: counts=%v", i, i+1, counts)
		}
	}
}
