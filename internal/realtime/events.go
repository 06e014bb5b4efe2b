// Package realtime defines the domain events published over the pub/sub
// bus. Events are commentary, not state: everything they carry can be
// re-read from the API, so a dropped message costs a consumer one poll,
// never data.
package realtime

import "time"

// Channels events are published on.
const (
	ChannelLoads = "taxonomy.loads"
)

// Event types.
const (
	EventLoadStatusChanged = "load_status_changed"
)

// Event is the wire shape of every published message.
type Event struct {
	Type       string    `json:"type"`
	LoadID     string    `json:"load_id,omitempty"`
	TaxonomyID int64     `json:"taxonomy_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	At         time.Time `json:"at"`
}

// LoadStatusChanged announces a load reaching a new status: opened,
// finalized, or withdrawn.
func LoadStatusChanged(loadID string, taxonomyID int64, status string) Event {
	return Event{
		Type:       EventLoadStatusChanged,
		LoadID:     loadID,
		TaxonomyID: taxonomyID,
		Status:     status,
		At:         time.Now().UTC(),
	}
}
