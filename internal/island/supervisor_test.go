package island

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSupervisorRunsAllDemesToCompletion(t *testing.T) {
	sup := NewSupervisor(SupervisorPolicy{})
	done := make(chan int, 3)

	for d := 0; d < 3; d++ {
		d := d
		if err := sup.Start(DemeSpec{Deme: d, Restart: SupervisorRestartTemporary}, func(ctx context.Context) error {
			done <- d
			return nil
		}); err != nil {
			t.Fatalf("start deme %d: %v", d, err)
		}
	}
	sup.Wait()
	close(done)

	seen := make(map[int]bool)
	for d := range done {
		seen[d] = true
	}
	for d := 0; d < 3; d++ {
		if !seen[d] {
			t.Fatalf("deme %d never ran", d)
		}
	}
}

func TestSupervisorTemporaryRestartNeverRetries(t *testing.T) {
	sup := NewSupervisor(SupervisorPolicy{InitialBackoff: time.Millisecond})
	runs := make(chan struct{}, 4)

	err := sup.Start(DemeSpec{Deme: 0, Restart: SupervisorRestartTemporary}, func(ctx context.Context) error {
		runs <- struct{}{}
		return errors.New("boom")
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	sup.Wait()
	close(runs)

	count := 0
	for range runs {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one run under temporary restart policy, got %d", count)
	}

	statuses := sup.Statuses()
	if len(statuses) != 1 || statuses[0].RestartCount != 0 {
		t.Fatalf("expected a single finished status with no restarts, got %+v", statuses)
	}
}

func TestSupervisorTransientRestartRetriesUntilLimit(t *testing.T) {
	sup := NewSupervisor(SupervisorPolicy{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		MaxRestarts:    2,
	})

	attempts := 0
	done := make(chan struct{})
	err := sup.Start(DemeSpec{Deme: 0, Restart: SupervisorRestartTransient}, func(ctx context.Context) error {
		attempts++
		if attempts >= 3 {
			close(done)
		}
		return errors.New("still failing")
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for retries")
	}
	sup.Wait()

	statuses := sup.Statuses()
	if len(statuses) != 1 {
		t.Fatalf("expected one finished status, got %+v", statuses)
	}
	if !statuses[0].PermanentFailed {
		t.Fatalf("expected permanent failure once MaxRestarts is exhausted, got %+v", statuses[0])
	}
}

func TestSupervisorStopAllCancelsRunningDemes(t *testing.T) {
	sup := NewSupervisor(SupervisorPolicy{})
	started := make(chan struct{})

	err := sup.Start(DemeSpec{Deme: 0, Restart: SupervisorRestartPermanent}, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("deme worker never started")
	}

	sup.StopAll()
}

func TestSupervisorRejectsDuplicateDemeIndex(t *testing.T) {
	sup := NewSupervisor(SupervisorPolicy{})
	block := make(chan struct{})

	err := sup.Start(DemeSpec{Deme: 0}, func(ctx context.Context) error {
		<-block
		return nil
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := sup.Start(DemeSpec{Deme: 0}, func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("expected an error starting a duplicate deme index")
	}

	close(block)
	sup.Wait()
}
