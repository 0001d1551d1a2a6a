// Package worker defines the worker registry — the authoritative model for
// worker capacity, channel capabilities, queue memberships, and live offers.
//
// Two invariants hold for every worker at all times:
//
//   - the capacity cost of outstanding offers plus active assignments never
//     exceeds the worker's total capacity, and
//   - the number of outstanding offers never exceeds the worker's
//     concurrent-offer cap.
//
// Both are enforced inside [Store.RecordOffer], which is a single atomic
// check-then-commit so that two concurrent dispatch passes cannot
// double-book a worker.
package worker
