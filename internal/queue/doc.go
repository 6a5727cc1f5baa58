// Package queue persists the singer queue for each tenant.
//
// Entries move through waiting, called, performing, and done. Host
// controls that need transactional semantics (advancing the rotation,
// pausing intake) run through stored procedures so concurrent hosts
// cannot double-advance the queue.
package queue
