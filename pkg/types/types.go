// Package types holds the data model shared by every stage of the
// scrape/filter/distribute pipeline.
package types

import "time"

// Status represents the platform-reported standing of a scraped user.
type Status string

// Known user statuses.
const (
	// StatusActive indicates a user who is currently participating
	StatusActive Status = "active"
	// StatusInactive indicates a user with no recent activity
	StatusInactive Status = "inactive"
	// StatusBanned indicates a user removed or restricted by the platform
	StatusBanned Status = "banned"
)

// Record is one scraped user identity with its descriptive attributes.
// It is created by the fetch path on a successful request and is treated
// as read-only from that point on.
type Record struct {
	// UID is the platform-assigned numeric identifier
	UID int64 `json:"uid"`
	// Username is the display name, empty when the user has none
	Username string `json:"username,omitempty"`
	// Status is the user's platform standing
	Status Status `json:"status"`
	// ActivityLevel is a bounded activity score
	ActivityLevel int `json:"activity_level"`
	// JoinDate records when the user joined the group
	JoinDate time.Time `json:"join_date"`
	// LastSeen records the most recent observed activity
	LastSeen time.Time `json:"last_seen"`
	// MessageCount is the user's message total within the group
	MessageCount int `json:"message_count"`
	// IsAdmin marks group administrators
	IsAdmin bool `json:"is_admin"`
	// Metadata carries open extensible attributes
	Metadata map[string]any `json:"metadata,omitempty"`

	// Group names the source group the record was scraped from
	Group string `json:"group,omitempty"`
	// Seq is the zero-based fetch position within the source group
	Seq int `json:"seq"`
}

// MemberPage is one page of members returned by a source, with an opaque
// cursor for the next page. An empty NextCursor means the group is exhausted.
type MemberPage struct {
	Members    []Record `json:"members"`
	NextCursor string   `json:"next_cursor,omitempty"`
}
