package scenario

import (
	"fmt"
	"reflect"

	"github.com/google/go-cmp/cmp"
)

// ResultKind tags the closed set of Result variants, a sealed-variant
// design: add new cases only by extending the tag and every matching site
// exhaustively.
type ResultKind uint8

const (
	// KindValue wraps a concrete return value.
	KindValue ResultKind = iota
	// KindVoid is the result of a void-returning operation.
	KindVoid
	// KindSuspended is the result of a suspendable actor that did not
	// complete synchronously.
	KindSuspended
	// KindCancelled is the result of a suspended actor cancelled prior to
	// (or in place of) resumption.
	KindCancelled
	// KindException wraps a canonical exception/error class name.
	KindException
	// KindNoResult denotes an actor that was never executed (e.g. dropped
	// by the minimizer, or beyond the observed prefix).
	KindNoResult
	// kindResumed is an internal-only variant used during verification: it
	// additionally carries the resuming actor identity and the suspension
	// point value. Never produced by an oracle or a strategy directly.
	kindResumed
)

// Equaler allows a sequential specification to supply custom equality for
// KindValue payloads, since "Result contract" requires deep-by-value
// equality using the sequential model's own equality, not Go's.
type Equaler interface {
	EqualResult(other any) bool
}

// Result is the tagged union described in the correctness model: Value(v), Void,
// Suspended, Cancelled, Exception(class), NoResult, plus the internal-only
// ResumedResult variant.
type Result struct {
	kind  ResultKind
	value any    // KindValue payload
	class string // KindException canonical class name

	// kindResumed-only fields.
	resumedBy     ActorID
	suspendedWith any
}

// ActorID identifies an Actor within a Scenario (its thread index and
// position within that thread's sequence, for parallel actors; a negative
// thread index for init/post actors).
type ActorID struct {
	// Thread is the parallel thread index, or -1 for init, -2 for post.
	Thread int
	// Index is the position within Thread's sequence.
	Index int
}

const (
	// ThreadInit identifies the init sequence in an ActorID.
	ThreadInit = -1
	// ThreadPost identifies the post sequence in an ActorID.
	ThreadPost = -2
)

func (id ActorID) String() string {
	switch id.Thread {
	case ThreadInit:
		return fmt.Sprintf("init[%d]", id.Index)
	case ThreadPost:
		return fmt.Sprintf("post[%d]", id.Index)
	default:
		return fmt.Sprintf("thread[%d][%d]", id.Thread, id.Index)
	}
}

// Value constructs a KindValue Result.
func Value(v any) Result { return Result{kind: KindValue, value: v} }

// Void constructs a KindVoid Result.
func Void() Result { return Result{kind: KindVoid} }

// Suspended constructs a KindSuspended Result.
func Suspended() Result { return Result{kind: KindSuspended} }

// Cancelled constructs a KindCancelled Result.
func Cancelled() Result { return Result{kind: KindCancelled} }

// Exception constructs a KindException Result from a canonical class name.
// Equality on Exception results is structural on this name only.
func Exception(canonicalClassName string) Result {
	return Result{kind: KindException, class: canonicalClassName}
}

// NoResult constructs a KindNoResult Result.
func NoResult() Result { return Result{kind: KindNoResult} }

// Resumed constructs the internal-only ResumedResult variant, used solely by
// the verifier while replaying suspension/resumption pairs.
func Resumed(by ActorID, suspendedValue any) Result {
	return Result{kind: kindResumed, resumedBy: by, suspendedWith: suspendedValue}
}

// Kind returns the tag of this Result.
func (r Result) Kind() ResultKind { return r.kind }

// ValuePayload returns the KindValue payload, or nil if r is not a KindValue.
func (r Result) ValuePayload() any { return r.value }

// ClassName returns the canonical exception class name, or "" if r is not a
// KindException.
func (r Result) ClassName() string { return r.class }

// ResumedBy returns the resuming actor's id, valid only for the internal
// ResumedResult variant.
func (r Result) ResumedBy() ActorID { return r.resumedBy }

// Equal implements Result's equality rules: deep-by-value for KindValue
// (delegating to Equaler when the payload implements it, otherwise a plain
// == comparison for comparable payloads, and go-cmp's cmp.Equal for
// everything else, see valuesEqual); structural-by-class-name for KindException;
// identity-like (kind-only) for every singleton variant.
func (r Result) Equal(other Result) bool {
	if r.kind != other.kind {
		return false
	}
	switch r.kind {
	case KindValue:
		return valuesEqual(r.value, other.value)
	case KindException:
		return r.class == other.class
	case kindResumed:
		return r.resumedBy == other.resumedBy && valuesEqual(r.suspendedWith, other.suspendedWith)
	default:
		// Void, Suspended, Cancelled, NoResult: the kind tag is the whole
		// identity of the result.
		return true
	}
}

// valuesEqual implements the fallback leg of Result's equality contract:
// Equaler payloads defer to their own EqualResult, and everything
// else compares by value. Actor arguments/return values are free-form "any"
// payloads, so a plain a == b would panic the whole verifier the moment a
// sequential specification returns a slice or map; go-cmp.Equal handles
// those deeply instead, the same way logiface's tests compare structured
// log output.
func valuesEqual(a, b any) bool {
	if eq, ok := a.(Equaler); ok {
		return eq.EqualResult(b)
	}
	if eq, ok := b.(Equaler); ok {
		return eq.EqualResult(a)
	}
	if !isComparable(a) || !isComparable(b) {
		return cmp.Equal(a, b)
	}
	return a == b
}

func isComparable(v any) bool {
	if v == nil {
		return true
	}
	return reflect.TypeOf(v).Comparable()
}

func (r Result) String() string {
	switch r.kind {
	case KindValue:
		return fmt.Sprintf("Value(%v)", r.value)
	case KindVoid:
		return "Void"
	case KindSuspended:
		return "Suspended"
	case KindCancelled:
		return "Cancelled"
	case KindException:
		return fmt.Sprintf("Exception(%s)", r.class)
	case KindNoResult:
		return "NoResult"
	case kindResumed:
		return fmt.Sprintf("Resumed(by=%s, with=%v)", r.resumedBy, r.suspendedWith)
	default:
		return "Result(?)"
	}
}
