// Package override implements the override strategies applied to matched
// components and the mutable component handles they act on.
//
// A Handle exposes a live component as named field slots, invocable methods
// and reset operations. A Strategy installed on a handle intercepts the
// selected methods:
//
//   - ReplaceReturnValue returns the payload instead of running the method.
//     The wrapped variant runs the method, keeps its results and then runs a
//     reset operation.
//   - ReplaceFieldBeforeCall and ReplaceFieldAfterCall overwrite fields
//     around the original body.
//   - ResetCachedState re-asserts fields and runs a reset operation, so
//     components that cached state before the override was installed pick
//     up the current payload.
//
// Writes to the live component happen once per payload generation, under
// the write side of the handle's call lock. Calls hold the read side, so a
// library never observes a field while it is being rewritten.
//
// Payloads are read from a Source at call time. Payloads implementing
// Adapter are converted to the type of the member they override.
package override
