// Package stress implements the stress execution strategy: real
// OS/goroutine threads, a start barrier so every thread begins its parallel
// part as close to simultaneously as possible, and deterministic timing
// jitter so a fixed seed reproduces the same interleaving distribution run
// to run.
package stress

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/concurrit/lincheck/internal/goroutineid"
	"github.com/concurrit/lincheck/internal/prng"
	"github.com/concurrit/lincheck/internal/telemetry"
	"github.com/concurrit/lincheck/oracle"
	"github.com/concurrit/lincheck/scenario"
)

// DeadlockError is returned by Execute when an invocation does not finish
// within its deadline, carrying a goroutine dump filtered to the worker
// goroutines Runner itself spawned.
type DeadlockError struct {
	Dump string
}

func (e *DeadlockError) Error() string {
	return "stress: invocation timed out (suspected deadlock or livelock)"
}

// Jitter controls the per-actor spin-delay schedule. MaxDelay defaults to
// 50 microseconds if zero.
type Jitter struct {
	MaxDelay time.Duration
}

func (j Jitter) maxDelay() time.Duration {
	if j.MaxDelay <= 0 {
		return 50 * time.Microsecond
	}
	return j.MaxDelay
}

// Runner executes a Scenario's parallel part using real goroutines.
type Runner struct {
	jitter Jitter
	logger *telemetry.Logger
}

// New constructs a Runner with the given jitter configuration.
func New(jitter Jitter) *Runner {
	return &Runner{jitter: jitter, logger: telemetry.Noop()}
}

// SetLogger replaces the Runner's logger.
func (r *Runner) SetLogger(logger *telemetry.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Execute runs s against instance once, returning the observed
// ExecutionResult. deadline, if non-zero, bounds the whole parallel part; a
// deadline excess surfaces as a *DeadlockError, never folded into the
// returned ExecutionResult.
func (r *Runner) Execute(ctx context.Context, instance any, s *scenario.Scenario, deadline time.Duration) (*scenario.ExecutionResult, error) {
	r.logger.Debug().Int(`threads`, s.Threads()).Log(`stress execute start`)
	o := oracle.New(instance)

	result := &scenario.ExecutionResult{
		InitResults:     make([]scenario.Result, len(s.Init)),
		ParallelResults: make([][]scenario.ResultWithClock, s.Threads()),
		PostResults:     make([]scenario.Result, len(s.Post)),
	}

	for i, a := range s.Init {
		rv, err := o.Apply(instance, a)
		if err != nil {
			return nil, err
		}
		result.InitResults[i] = rv
	}

	if err := r.runParallel(ctx, o, instance, s, result, deadline); err != nil {
		return nil, err
	}

	for i, a := range s.Post {
		rv, err := o.Apply(instance, a)
		if err != nil {
			return nil, err
		}
		result.PostResults[i] = rv
	}

	return result, nil
}

type progress struct {
	mu    sync.Mutex
	count []int
}

func (p *progress) snapshot() scenario.Clock {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := make(scenario.Clock, len(p.count))
	copy(c, p.count)
	return c
}

func (p *progress) advance(thread int) {
	p.mu.Lock()
	p.count[thread]++
	p.mu.Unlock()
}

// runParallel is the two-phase barrier: every worker goroutine signals
// readiness on startBarrier, Runner releases them together via the closed
// ready channel, then waits for doneBarrier (the errgroup) while a
// cancellation-driver goroutine resolves eligible pending suspensions and
// the context deadline (when deadline > 0) detects a hung invocation.
func (r *Runner) runParallel(ctx context.Context, o *oracle.Oracle, instance any, s *scenario.Scenario, result *scenario.ExecutionResult, deadline time.Duration) error {
	threads := s.Threads()
	if threads == 0 {
		return nil
	}

	ready := make(chan struct{})
	var startBarrier sync.WaitGroup
	startBarrier.Add(threads)

	var gids sync.Map // goroutine id -> thread index, for deadlock dumps
	var pendingMu sync.Mutex
	pending := map[scenario.ActorID]*oracle.Continuation{}

	runCtx := ctx
	var cancel context.CancelFunc
	if deadline > 0 {
		runCtx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(runCtx)
	prog := newProgress(threads)

	for t := 0; t < threads; t++ {
		t := t
		result.ParallelResults[t] = make([]scenario.ResultWithClock, len(s.Parallel[t]))
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("stress: worker %d panicked: %v", t, p)
				}
			}()

			if id, ok := goroutineid.Current(); ok {
				gids.Store(id, t)
			}

			startBarrier.Done()
			select {
			case <-ready:
			case <-gctx.Done():
				return gctx.Err()
			}

			for p, a := range s.Parallel[t] {
				if delay := spinDelay(s.Seed, t, p, r.jitter.maxDelay()); delay > 0 {
					time.Sleep(delay)
				}

				clock := prog.snapshot()
				clock[t] = p

				rv, err := applyOne(gctx, o, instance, a, &pendingMu, pending, scenario.ActorID{Thread: t, Index: p})
				if err != nil {
					return err
				}
				result.ParallelResults[t][p] = scenario.ResultWithClock{Result: rv, Clock: clock}
				prog.advance(t)

				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
			}
			return nil
		})
	}

	go func() {
		startBarrier.Wait()
		close(ready)
	}()

	go r.cancellationDriver(gctx, s, &pendingMu, pending)

	err := g.Wait()
	if err != nil {
		if deadline > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			r.logger.Warning().Log(`invocation timed out, suspected deadlock or livelock`)
			return &DeadlockError{Dump: dumpFiltered(&gids)}
		}
		r.logger.Err().Err(err).Log(`worker goroutine failed`)
		return err
	}
	return nil
}

func newProgress(threads int) *progress {
	return &progress{count: make([]int, threads)}
}

// cancellationDriver periodically scans pending for suspended actors
// declaring CancelOnSuspension, and cancels each at a seeded random offset
// after it first observes it pending, so a scenario exercising cancellation
// behaves reproducibly under a fixed seed.
func (r *Runner) cancellationDriver(ctx context.Context, s *scenario.Scenario, pendingMu *sync.Mutex, pending map[scenario.ActorID]*oracle.Continuation) {
	firstSeenAt := map[scenario.ActorID]time.Time{}
	threshold := map[scenario.ActorID]time.Duration{}

	ticker := time.NewTicker(200 * time.Microsecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			pendingMu.Lock()
			for id, cont := range pending {
				actor := s.Parallel[id.Thread][id.Index]
				if !actor.CancelOnSuspension {
					continue
				}
				seen, ok := firstSeenAt[id]
				if !ok {
					firstSeenAt[id] = now
					rnd := prng.Derive(s.Seed, int64(id.Thread), int64(id.Index), 0x5a17)
					threshold[id] = time.Duration(rnd.Intn(int(r.jitter.maxDelay())*20 + 1))
					continue
				}
				if now.Sub(seen) >= threshold[id] {
					cont.Cancel()
				}
			}
			pendingMu.Unlock()
		}
	}
}

// applyOne dispatches a. If a suspends, it registers a's Continuation in
// pending (where the cancellation driver can see it), blocks on it until
// another thread's actor resumes it, it is cancelled, or ctx ends, and then
// removes it from pending.
func applyOne(ctx context.Context, o *oracle.Oracle, instance any, a scenario.Actor, pendingMu *sync.Mutex, pending map[scenario.ActorID]*oracle.Continuation, id scenario.ActorID) (scenario.Result, error) {
	if !a.IsSuspendable {
		return o.Apply(instance, a)
	}

	rv, cont, err := o.ApplySuspendable(instance, a)
	if err != nil {
		return scenario.Result{}, err
	}
	if rv.Kind() == scenario.KindSuspended {
		pendingMu.Lock()
		pending[id] = cont
		pendingMu.Unlock()
		resolved, err := cont.AwaitContext(ctx)
		pendingMu.Lock()
		delete(pending, id)
		pendingMu.Unlock()
		if err != nil {
			return scenario.Result{}, err
		}
		return resolved, nil
	}
	return rv, nil
}

// spinDelay derives a deterministic, seed-and-position-keyed delay in
// [0, maxDelay).
func spinDelay(seed uint64, thread, pos int, maxDelay time.Duration) time.Duration {
	if maxDelay <= 0 {
		return 0
	}
	rnd := prng.Derive(seed, int64(thread), int64(pos))
	return time.Duration(rnd.Intn(int(maxDelay)))
}

func dumpFiltered(gids *sync.Map) string {
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	buf = buf[:n]

	var out bytes.Buffer
	for _, block := range bytes.Split(buf, []byte("\n\n")) {
		nl := bytes.IndexByte(block, '\n')
		header := block
		if nl >= 0 {
			header = block[:nl]
		}
		if ownsAny(gids, header) {
			out.Write(block)
			out.WriteString("\n\n")
		}
	}
	if out.Len() == 0 {
		return string(buf)
	}
	return out.String()
}

func ownsAny(gids *sync.Map, header []byte) bool {
	found := false
	gids.Range(func(key, _ any) bool {
		id, ok := key.(uint64)
		if !ok {
			return true
		}
		if bytes.Contains(header, []byte(fmt.Sprintf("goroutine %d ", id))) {
			found = true
			return false
		}
		return true
	})
	return found
}
