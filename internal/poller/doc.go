// Package poller implements the queue snapshot poller.
//
// The poller:
//   - Re-reads the tenant's queue from the database on an interval
//   - Feeds snapshots to a handler (display refresh, metrics)
//   - Keeps serving the previous snapshot when a read fails
package poller
