package island

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// SupervisorPolicy governs restart backoff for a Supervisor's demes.
// Adapted from the platform-level task supervisor the teacher uses for
// long-running services: here every child is a single deme's
// generational worker, and the archipelago's process-parallel driver
// is the only caller.
type SupervisorPolicy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	MaxRestarts    int
}

// DemeRestartPolicy names whether a deme worker is restarted after it
// returns an error. The archipelago's migration barrier makes
// SupervisorRestartTemporary the only sound choice for a per-generation
// deme task: a deme that fails mid-round should fail the whole round,
// per the spec's "surfaces to the archipelago driver which terminates
// the generation" (§7), not silently retry into a stale migration
// barrier.
type DemeRestartPolicy string

const (
	SupervisorRestartPermanent DemeRestartPolicy = "permanent"
	SupervisorRestartTransient DemeRestartPolicy = "transient"
	SupervisorRestartTemporary DemeRestartPolicy = "temporary"
)

func defaultSupervisorPolicy() SupervisorPolicy {
	return SupervisorPolicy{
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     200 * time.Millisecond,
		BackoffFactor:  2.0,
		MaxRestarts:    0,
	}
}

func normalizeSupervisorPolicy(policy SupervisorPolicy) SupervisorPolicy {
	def := defaultSupervisorPolicy()
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = def.InitialBackoff
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = def.MaxBackoff
	}
	if policy.MaxBackoff < policy.InitialBackoff {
		policy.MaxBackoff = policy.InitialBackoff
	}
	if policy.BackoffFactor < 1 {
		policy.BackoffFactor = def.BackoffFactor
	}
	return policy
}

// DemeSpec names one supervised deme worker.
type DemeSpec struct {
	Deme    int
	Restart DemeRestartPolicy
}

// DemeStatus reports the outcome of a finished or failed deme worker.
type DemeStatus struct {
	Deme            int
	RestartCount    int
	LastError       string
	PermanentFailed bool
}

// Supervisor runs one goroutine per deme, restarting according to each
// deme's DemeRestartPolicy. Grounded on the teacher's one-for-one
// task supervisor; the one-for-all sibling-restart strategy is
// dropped here since an archipelago's demes are independent between
// migration barriers, not a single-unit dependency group.
type Supervisor struct {
	policy SupervisorPolicy

	mu       sync.Mutex
	tasks    map[int]*demeTask
	finished map[int]DemeStatus
}

type demeTask struct {
	cancel context.CancelFunc
	done   chan struct{}
	spec   DemeSpec
	run    func(ctx context.Context) error

	restartCount    int
	lastErr         error
	permanentFailed bool
}

func NewSupervisor(policy SupervisorPolicy) *Supervisor {
	return &Supervisor{
		policy:   normalizeSupervisorPolicy(policy),
		tasks:    make(map[int]*demeTask),
		finished: make(map[int]DemeStatus),
	}
}

// Start launches run as deme's supervised worker.
func (s *Supervisor) Start(spec DemeSpec, run func(ctx context.Context) error) error {
	if run == nil {
		return errors.New("island: deme worker is required")
	}
	if spec.Restart == "" {
		spec.Restart = SupervisorRestartTemporary
	}
	switch spec.Restart {
	case SupervisorRestartPermanent, SupervisorRestartTransient, SupervisorRestartTemporary:
	default:
		spec.Restart = SupervisorRestartTemporary
	}

	s.mu.Lock()
	if _, exists := s.tasks[spec.Deme]; exists {
		s.mu.Unlock()
		return fmt.Errorf("island: deme %d already running", spec.Deme)
	}
	delete(s.finished, spec.Deme)
	ctx, cancel := context.WithCancel(context.Background())
	task := &demeTask{cancel: cancel, done: make(chan struct{}), spec: spec, run: run}
	s.tasks[spec.Deme] = task
	s.mu.Unlock()

	go s.runTask(spec.Deme, task, ctx, run)
	return nil
}

func (s *Supervisor) runTask(deme int, task *demeTask, ctx context.Context, run func(ctx context.Context) error) {
	defer func() {
		s.mu.Lock()
		if current, ok := s.tasks[deme]; ok && current == task {
			s.finished[deme] = DemeStatus{
				Deme:            deme,
				RestartCount:    task.restartCount,
				LastError:       errString(task.lastErr),
				PermanentFailed: task.permanentFailed,
			}
			delete(s.tasks, deme)
		}
		s.mu.Unlock()
		close(task.done)
	}()

	backoff := s.policy.InitialBackoff

	for {
		err := run(ctx)
		if ctx.Err() != nil {
			return
		}
		if !shouldRestart(task.spec.Restart, err) {
			s.mu.Lock()
			task.lastErr = err
			s.mu.Unlock()
			return
		}
		s.mu.Lock()
		task.lastErr = err
		restarts := task.restartCount
		s.mu.Unlock()
		if s.policy.MaxRestarts > 0 && restarts >= s.policy.MaxRestarts {
			s.mu.Lock()
			task.permanentFailed = true
			s.mu.Unlock()
			return
		}
		s.mu.Lock()
		task.restartCount = restarts + 1
		s.mu.Unlock()

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		next := time.Duration(float64(backoff) * s.policy.BackoffFactor)
		if next > s.policy.MaxBackoff {
			next = s.policy.MaxBackoff
		}
		backoff = next
	}
}

func shouldRestart(policy DemeRestartPolicy, err error) bool {
	switch policy {
	case SupervisorRestartPermanent:
		return true
	case SupervisorRestartTransient:
		return err != nil
	case SupervisorRestartTemporary:
		return false
	default:
		return false
	}
}

// Wait blocks until every started deme worker has returned.
func (s *Supervisor) Wait() {
	s.mu.Lock()
	tasks := make([]*demeTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()
	for _, t := range tasks {
		<-t.done
	}
}

// StopAll cancels every running deme worker and waits for it to exit.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	tasks := make([]*demeTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()
	for _, t := range tasks {
		t.cancel()
	}
	for _, t := range tasks {
		<-t.done
	}
}

// Statuses returns the terminal status of every deme that has finished
// (successfully or not), sorted by deme index.
func (s *Supervisor) Statuses() []DemeStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DemeStatus, 0, len(s.finished))
	for _, st := range s.finished {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deme < out[j].Deme })
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
