// Package state stores small keyed values, such as personal best comparisons
// and attempt counters, behind an optimistic concurrency contract.
//
// Store[T] loads and saves one value per Ref. Save succeeds only when the
// caller passes the ETag it last loaded (an empty ETag when the value must not
// exist yet) and returns the new Meta; any other ETag yields ErrETagMismatch.
//
// Update wraps the load, mutate, save cycle and retries on ErrETagMismatch:
//
//	Store.Load -> Mutator -> Validate -> Store.Save(expected ETag)
//	    ^                                      |
//	    +------------ ErrETagMismatch ---------+
//
// Implementations live in this package (MemoryStore) and in sqlitestore.
package state
