package monitor

import (
	"errors"
	"time"
)

var (
	ErrInvalidEvent     = errors.New("invalid file event")
	ErrInvalidHeartbeat = errors.New("invalid heartbeat")
)

// FileEvent is a change reported by an agent.
type FileEvent struct {
	Host       string `json:"host"`
	Path       string `json:"path"`
	EventType  string `json:"event_type"` // created, modified, deleted, moved
	Timestamp  string `json:"timestamp"`
	DestPath   string `json:"dest_path,omitempty"`
	ServerTime string `json:"server_time,omitempty"`
}

func (e FileEvent) Validate() error {
	switch {
	case e.Host == "":
		return errors.Join(ErrInvalidEvent, errors.New("host is required"))
	case e.Path == "":
		return errors.Join(ErrInvalidEvent, errors.New("path is required"))
	case e.EventType == "":
		return errors.Join(ErrInvalidEvent, errors.New("event_type is required"))
	}
	return nil
}

// Heartbeat is the periodic liveness report of an agent. ReportedAt is the
// agent's own clock reading, in whatever format it sent.
type Heartbeat struct {
	ClientID   string `json:"client_id"`
	Hostname   string `json:"hostname"`
	IP         string `json:"ip"`
	ReportedAt string `json:"timestamp"`
}

// ClientStatus is one entry of the /sse/data payload.
type ClientStatus struct {
	Hostname string    `json:"hostname"`
	IP       string    `json:"ip"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`

	// ReportedAt is the agent's timestamp of the last heartbeat.
	ReportedAt string `json:"reported_at,omitempty"`
}

// DataPayload is streamed on /sse/data.
type DataPayload struct {
	Timestamp           string                  `json:"timestamp"`
	ClientsActiveStatus map[string]ClientStatus `json:"clients_activeStatus"`
}

// ClientOnline is one entry of the /sse/updates client map.
type ClientOnline struct {
	Online bool `json:"online"`
}

// UpdatesPayload is streamed on /sse/updates.
type UpdatesPayload struct {
	Clients      map[string]ClientOnline `json:"clients"`
	RecentEvents []FileEvent             `json:"recent_events"`
}
