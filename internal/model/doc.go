// Package model defines the shared domain types for the KaraQR realtime
// client: queue entries, tenants, and their status enums.
//
// These types mirror the hosted backend's table schema and are used by the
// queue store, the poller, and the daemons.
package model
