package model

import "time"

// QueueStatus is the lifecycle state of a queue entry.
// Mirrors the queue_status enum in the backing schema.
type QueueStatus string

const (
	StatusWaiting    QueueStatus = "waiting"
	StatusCalled     QueueStatus = "called"
	StatusPerforming QueueStatus = "performing"
	StatusDone       QueueStatus = "done"
)

// Valid reports whether s is one of the known queue statuses.
func (s QueueStatus) Valid() bool {
	switch s {
	case StatusWaiting, StatusCalled, StatusPerforming, StatusDone:
		return true
	}
	return false
}

// Active reports whether an entry with this status still occupies the queue.
func (s QueueStatus) Active() bool {
	return s == StatusWaiting || s == StatusCalled || s == StatusPerforming
}

// QueueEntry is one singer's request in a tenant's queue.
type QueueEntry struct {
	ID         string      // Primary key (uuid)
	TenantID   string      // Venue this entry belongs to
	SingerName string      // Display name entered on the join form
	SongTitle  string      // Raw title as typed ("title_raw" in the schema)
	YoutubeURL string      // Optional video link for the stage overlay
	Status     QueueStatus // Current lifecycle state
	CreatedAt  time.Time   // Insertion time, queue order key
}

// Tenant is a logical venue whose queue and reaction stream are isolated
// from others sharing the same infrastructure.
type Tenant struct {
	ID        string
	Name      string
	Slug      string // Short code used in join URLs and QR codes
	Active    bool
	CreatedAt time.Time
}
