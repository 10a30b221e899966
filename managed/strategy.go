package managed

import (
	"fmt"
	"sync"

	"github.com/concurrit/lincheck/internal/prng"
	"github.com/concurrit/lincheck/internal/telemetry"
)

// SearchDriver picks which ready thread runs next at each switch-point,
// resolving the managed strategy's trajectory enumeration policy. The default
// implementation, RandomSearchDriver, picks uniformly at random at every
// switch-point from a stream re-seeded per invocation (documented in
// DESIGN.md); no history is kept, so two invocations may follow the same
// trajectory. ready is every non-finished, non-parked thread id; current is
// the thread that just hit a switch-point, parked, or finished its body (a
// parked or finished current is not in ready). Thread 0 always runs first
// without consulting the driver. Returning current itself is a valid
// choice, meaning "continue running the same thread".
type SearchDriver interface {
	Next(ready []int, current int) int
}

// RandomSearchDriver is the default SearchDriver: a seeded uniform pick over
// ready threads every time, reproducible from (seed, invocation index).
type RandomSearchDriver struct {
	rnd *prng.Source
}

// NewRandomSearchDriver builds a RandomSearchDriver from a run-global seed
// and invocation index, via internal/prng.Derive exactly as generator and
// stress do.
func NewRandomSearchDriver(seed uint64, invocationIndex int64) *RandomSearchDriver {
	return &RandomSearchDriver{rnd: prng.Derive(seed, invocationIndex)}
}

func (d *RandomSearchDriver) Next(ready []int, current int) int {
	if len(ready) == 0 {
		return -1
	}
	return ready[d.rnd.Intn(len(ready))]
}

// ThreadView is the EventTracker handed to thread id's body. Lock, wait,
// notify, field/array access, method-call and Unpark callbacks are potential
// switch-points, funneled through Strategy.switchPoint; Park yields through
// Strategy.park; the remaining callbacks never yield.
type ThreadView struct {
	s  *Strategy
	id int
}

func (v *ThreadView) LockAcquire(monitor any, loc int) { v.switchUnlessLocal(monitor) }
func (v *ThreadView) LockRelease(monitor any, loc int) { v.switchUnlessLocal(monitor) }
func (v *ThreadView) Park(loc int)                     { v.s.park(v.id) }
func (v *ThreadView) Unpark(target int, loc int)       { v.s.unpark(target); v.s.switchPoint(v.id) }
func (v *ThreadView) Wait(monitor any, loc int, withTimeout bool) { v.switchUnlessLocal(monitor) }
func (v *ThreadView) Notify(monitor any, loc int, all bool)       { v.switchUnlessLocal(monitor) }
func (v *ThreadView) BeforeReadField(owner any, name string, loc int)      { v.switchUnlessLocal(owner) }
func (v *ThreadView) BeforeReadArrayElement(array any, index int, loc int) { v.switchUnlessLocal(array) }
func (v *ThreadView) AfterRead(value any)                                  {}
func (v *ThreadView) BeforeWriteField(owner any, name string, loc int)      { v.switchUnlessLocal(owner) }
func (v *ThreadView) BeforeWriteArrayElement(array any, index int, loc int) { v.switchUnlessLocal(array) }
func (v *ThreadView) AfterWrite()                                           {}
func (v *ThreadView) BeforeMethodCall(owner any, class, method string, loc int, params []any) {
	v.switchUnlessLocal(owner)
}
func (v *ThreadView) BeforeAtomicMethodCall(owner any, loc int)   { v.switchUnlessLocal(owner) }
func (v *ThreadView) OnMethodCallFinishedSuccessfully(result any) {}
func (v *ThreadView) OnMethodCallThrewException(err error)        {}

// OnNewObjectCreation registers obj as invocation-local with the shared
// LocalObjectTracker, per object.go's escape analysis.
func (v *ThreadView) OnNewObjectCreation(obj any) { v.s.tracker.Track(obj) }

// AddDependency records that receiver now holds a reference to value,
// propagating receiver's escaped status to value transitively.
func (v *ThreadView) AddDependency(receiver, value any) { v.s.tracker.AddDependency(receiver, value) }

func (v *ThreadView) RandomNextInt() int   { return v.s.randomNextInt() }
func (v *ThreadView) EnterIgnoredSection() { v.s.enterIgnored(v.id) }
func (v *ThreadView) LeaveIgnoredSection() { v.s.leaveIgnored(v.id) }

// switchUnlessLocal skips the switch-point entirely when obj is still
// believed invocation-local: no other thread can yet observe it, so there is
// nothing to interleave against (see object.go).
func (v *ThreadView) switchUnlessLocal(obj any) {
	if v.s.tracker.IsLocal(obj) {
		return
	}
	v.s.switchPoint(v.id)
}

// ObstructionFreedomViolation is returned by Run when, at the moment a
// thread finishes its body, its switch-point count exceeds that of the
// slowest thread still ready by more than hangingThreshold.
type ObstructionFreedomViolation struct {
	Thread int
}

func (e *ObstructionFreedomViolation) Error() string {
	return fmt.Sprintf("managed: thread %d may be starving its peers (obstruction-freedom threshold exceeded)", e.Thread)
}

// Strategy is the single-threaded cooperative scheduler:
// at most one thread's body is ever actually running; every other thread
// sits blocked on its own gate channel.
type Strategy struct {
	mu          sync.Mutex
	driver      SearchDriver
	gates       []chan struct{}
	parked      []bool
	finished    []bool
	ignored     []int
	switchCount []int
	tracker     *LocalObjectTracker

	hangingThreshold int
	randSource       *prng.Source
	logger           *telemetry.Logger
}

// NewStrategy builds a Strategy for the given thread count, driven by
// driver, with hangingThreshold controlling obstruction-freedom checking (0
// disables it).
func NewStrategy(threads int, driver SearchDriver, hangingThreshold int, randSeed uint64) *Strategy {
	s := &Strategy{
		driver:           driver,
		gates:            make([]chan struct{}, threads),
		parked:           make([]bool, threads),
		finished:         make([]bool, threads),
		ignored:          make([]int, threads),
		switchCount:      make([]int, threads),
		tracker:          NewLocalObjectTracker(),
		hangingThreshold: hangingThreshold,
		randSource:       prng.New(randSeed),
		logger:           telemetry.Noop(),
	}
	for i := range s.gates {
		s.gates[i] = make(chan struct{})
	}
	return s
}

// SetLogger replaces the Strategy's logger, used by Runner to forward its own
// configured logger down to per-thread scheduling events.
func (s *Strategy) SetLogger(logger *telemetry.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Run executes one body per thread, interleaved entirely under Strategy's
// control. It returns the first error any body returns, or an
// *ObstructionFreedomViolation if the threshold is exceeded.
func (s *Strategy) Run(bodies []func(tracker EventTracker) error) error {
	threads := len(bodies)
	s.logger.Debug().Int(`threads`, threads).Log(`managed strategy run start`)
	errs := make([]error, threads)
	var obstruction error
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(threads)

	for i := 0; i < threads; i++ {
		i := i
		go func() {
			defer wg.Done()
			if i != 0 {
				<-s.gates[i]
			}
			err := bodies[i](&ThreadView{s: s, id: i})

			s.mu.Lock()
			s.finished[i] = true
			s.logger.Trace().Int(`thread`, i).Log(`thread finished`)
			next := s.driver.Next(s.readyLocked(), i)
			if ofe := s.checkObstructionLocked(i); ofe != nil {
				s.logger.Warning().Int(`thread`, i).Log(`obstruction-freedom violation detected`)
				mu.Lock()
				obstruction = ofe
				mu.Unlock()
			}
			s.mu.Unlock()

			if err != nil {
				errs[i] = err
			}
			if next >= 0 {
				s.gates[next] <- struct{}{}
			}
		}()
	}

	wg.Wait()

	if obstruction != nil {
		return obstruction
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// switchPoint is the common funnel every EventTracker callback passes
// through: decide whether the calling thread keeps running or must yield.
func (s *Strategy) switchPoint(id int) {
	s.mu.Lock()
	if s.ignored[id] > 0 {
		s.mu.Unlock()
		return
	}
	s.switchCount[id]++
	ready := s.readyLocked()
	next := s.driver.Next(ready, id)
	s.mu.Unlock()

	// Obstruction-freedom is re-checked once each thread's body finishes
	// (in Run): a thread cannot be forcibly unwound mid-body from here
	// without its own cooperation, so a true livelock is instead caught by
	// the invocation-wide timeout the runner wraps Run in.
	if next == id || next < 0 {
		return
	}
	s.gates[next] <- struct{}{}
	<-s.gates[id]
}

func (s *Strategy) park(id int) {
	s.mu.Lock()
	s.parked[id] = true
	ready := s.readyLocked()
	next := s.driver.Next(ready, id)
	s.mu.Unlock()

	if next >= 0 && next != id {
		s.gates[next] <- struct{}{}
	}
	<-s.gates[id]
}

func (s *Strategy) unpark(target int) {
	s.mu.Lock()
	s.parked[target] = false
	s.mu.Unlock()
}

func (s *Strategy) enterIgnored(id int) {
	s.mu.Lock()
	s.ignored[id]++
	s.mu.Unlock()
}

func (s *Strategy) leaveIgnored(id int) {
	s.mu.Lock()
	if s.ignored[id] > 0 {
		s.ignored[id]--
	}
	s.mu.Unlock()
}

func (s *Strategy) randomNextInt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.randSource.Uint64() >> 1)
}

func (s *Strategy) readyLocked() []int {
	out := make([]int, 0, len(s.finished))
	for i := range s.finished {
		if !s.finished[i] && !s.parked[i] {
			out = append(out, i)
		}
	}
	return out
}

// checkObstructionLocked implements the obstruction-freedom
// check: if one ready thread's switch-point count has outrun the minimum
// among its ready peers by more than hangingThreshold, some thread may be
// starving the others indefinitely.
func (s *Strategy) checkObstructionLocked(id int) *ObstructionFreedomViolation {
	if s.hangingThreshold <= 0 {
		return nil
	}
	// others is every thread besides id that is still (or was, if id just
	// finished) able to make progress; readyLocked already excludes id
	// itself once it is marked finished or parked.
	others := s.readyLocked()
	if len(others) == 0 {
		return nil
	}
	min := s.switchCount[others[0]]
	for _, t := range others[1:] {
		if s.switchCount[t] < min {
			min = s.switchCount[t]
		}
	}
	if s.switchCount[id]-min > s.hangingThreshold {
		return &ObstructionFreedomViolation{Thread: id}
	}
	return nil
}
