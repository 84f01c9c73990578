package monitor

import "time"

const DefaultTimeFormat = "2006-01-02 15:04:05"

// Monitor joins the registry and the event log into the streamed payloads.
type Monitor struct {
	Clients    *ClientRegistry
	Events     *EventLog
	TimeFormat string
}

func New(clients *ClientRegistry, events *EventLog, timeFormat string) *Monitor {
	if timeFormat == "" {
		timeFormat = DefaultTimeFormat
	}
	return &Monitor{Clients: clients, Events: events, TimeFormat: timeFormat}
}

func (m *Monitor) TimePayload(now time.Time) string {
	return now.Format(m.TimeFormat)
}

func (m *Monitor) DataPayload(now time.Time) DataPayload {
	return DataPayload{
		Timestamp:           m.TimePayload(now),
		ClientsActiveStatus: m.Clients.Snapshot(now),
	}
}

func (m *Monitor) UpdatesPayload(now time.Time) UpdatesPayload {
	snapshot := m.Clients.Snapshot(now)
	clients := make(map[string]ClientOnline, len(snapshot))
	for id, st := range snapshot {
		clients[id] = ClientOnline{Online: st.Online}
	}
	return UpdatesPayload{
		Clients:      clients,
		RecentEvents: m.Events.Recent(),
	}
}
