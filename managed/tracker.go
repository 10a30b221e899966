// Package managed implements the managed (interleaving-exploration)
// execution strategy: a deterministic, single-threaded
// cooperative scheduler that consumes an EventTracker capability the
// instrumented code under test reports every potentially-shared event to.
//
// The bytecode-instrumentation layer itself is out of scope here; this
// package only defines the EventTracker contract and the Strategy that
// implements it.
package managed

// EventTracker is the full instrumentation contract a tested type's
// instrumented code reports to.
// Instrumented code under test calls these methods at every potentially
// shared-memory or scheduling-relevant event, passing a stable
// internal/codeloc id wherever the original names a "loc" parameter.
type EventTracker interface {
	LockAcquire(monitor any, loc int)
	LockRelease(monitor any, loc int)

	Park(loc int)
	Unpark(target int, loc int)

	Wait(monitor any, loc int, withTimeout bool)
	Notify(monitor any, loc int, all bool)

	BeforeReadField(owner any, name string, loc int)
	BeforeReadArrayElement(array any, index int, loc int)
	AfterRead(value any)

	BeforeWriteField(owner any, name string, loc int)
	BeforeWriteArrayElement(array any, index int, loc int)
	AfterWrite()

	BeforeMethodCall(owner any, class, method string, loc int, params []any)
	BeforeAtomicMethodCall(owner any, loc int)
	OnMethodCallFinishedSuccessfully(result any)
	OnMethodCallThrewException(err error)

	OnNewObjectCreation(obj any)
	AddDependency(receiver, value any)

	RandomNextInt() int

	EnterIgnoredSection()
	LeaveIgnoredSection()
}
