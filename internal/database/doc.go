// Package database provides connection pool management for PostgreSQL.
//
// A single pool backs queue state: tenants, queue entries, and the stored
// procedures the host controls run through.
package database
