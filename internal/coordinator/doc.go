// Package coordinator runs facade operations inside engine transactions.
//
// Every operation carries its caller in the context (see WithCaller).
// The coordinator opens a transaction, clears the caller's identity while
// it works on storage, applies one or more operations through the
// addressed Handler and then either:
//
//   - commits and notifies each touched address once, or
//   - rolls back and returns the first error, notifying nobody.
//
// Batches apply an ordered list of operations in one transaction. Between
// operations that allow it the coordinator yields the processor; the
// transaction stays open, so a batch is always all-or-nothing.
//
// Per-caller statistics are kept for the diagnostic dump. They never gate
// or delay an operation.
package coordinator
