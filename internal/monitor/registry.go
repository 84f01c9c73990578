package monitor

import (
	"errors"
	"sync"
	"time"
)

const DefaultHeartbeatTimeout = 90 * time.Second

// ClientRegistry tracks the last heartbeat of every agent. Liveness is judged
// on the server clock only.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]clientRecord
	timeout time.Duration
}

type clientRecord struct {
	hb       Heartbeat
	lastSeen time.Time
}

func NewClientRegistry(timeout time.Duration) *ClientRegistry {
	if timeout <= 0 {
		timeout = DefaultHeartbeatTimeout
	}
	return &ClientRegistry{
		clients: make(map[string]clientRecord),
		timeout: timeout,
	}
}

// Heartbeat records hb as received at receivedAt. hb.ReportedAt is kept
// verbatim and never used for liveness.
func (r *ClientRegistry) Heartbeat(hb Heartbeat, receivedAt time.Time) error {
	if hb.ClientID == "" {
		return errors.Join(ErrInvalidHeartbeat, errors.New("client_id is required"))
	}
	if hb.Hostname == "" {
		hb.Hostname = hb.ClientID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.clients[hb.ClientID]; ok && prev.lastSeen.After(receivedAt) {
		// out of order, keep the newer one
		return nil
	}
	r.clients[hb.ClientID] = clientRecord{hb: hb, lastSeen: receivedAt}
	return nil
}

// Snapshot reports every known client; a client is online when its last
// heartbeat is no older than the timeout.
func (r *ClientRegistry) Snapshot(now time.Time) map[string]ClientStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]ClientStatus, len(r.clients))
	for id, rec := range r.clients {
		out[id] = ClientStatus{
			Hostname:   rec.hb.Hostname,
			IP:         rec.hb.IP,
			Online:     now.Sub(rec.lastSeen) <= r.timeout,
			LastSeen:   rec.lastSeen.UTC(),
			ReportedAt: rec.hb.ReportedAt,
		}
	}
	return out
}

func (r *ClientRegistry) OnlineCount(now time.Time) int {
	n := 0
	for _, st := range r.Snapshot(now) {
		if st.Online {
			n++
		}
	}
	return n
}

func (r *ClientRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
