// Package dashboard turns decoded stream events into terminal views.
package dashboard

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go-status-sse/internal/monitor"
	"go-status-sse/internal/streamclient"
)

const LastSeenFormat = "2006-01-02 15:04:05"

// View consumes events of one endpoint.
type View interface {
	Apply(ev streamclient.Event) error
}

// TimeView shows the server clock exactly as streamed.
type TimeView struct {
	mu   sync.RWMutex
	text string
}

func (v *TimeView) Apply(ev streamclient.Event) error {
	v.mu.Lock()
	v.text = ev.Raw
	v.mu.Unlock()
	return nil
}

func (v *TimeView) Text() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.text
}

// Card is one client on the board.
type Card struct {
	ClientID    string
	Hostname    string
	IP          string
	Online      bool
	LastSeen    string
	Class       string
	Indicator   string
	StatusLabel string
}

func newCard(id string, st monitor.ClientStatus, loc *time.Location) Card {
	c := Card{
		ClientID:    id,
		Hostname:    st.Hostname,
		IP:          st.IP,
		Online:      st.Online,
		LastSeen:    st.LastSeen.In(loc).Format(LastSeenFormat),
		Class:       "client-card",
		Indicator:   "status-online",
		StatusLabel: "online",
	}
	if !st.Online {
		c.Class = "client-card offline"
		c.Indicator = "status-offline"
		c.StatusLabel = "offline"
	}
	return c
}

// ClientBoard renders /sse/data snapshots, one card per client.
type ClientBoard struct {
	loc *time.Location

	mu        sync.RWMutex
	cards     []Card
	timestamp string
}

// NewClientBoard formats last-seen times in loc; nil means local time.
func NewClientBoard(loc *time.Location) *ClientBoard {
	if loc == nil {
		loc = time.Local
	}
	return &ClientBoard{loc: loc}
}

// Apply replaces the board with the snapshot in ev. A payload that does not
// match leaves the board unchanged.
func (b *ClientBoard) Apply(ev streamclient.Event) error {
	var payload monitor.DataPayload
	if err := ev.Decode(&payload); err != nil {
		return fmt.Errorf("client board: %w", err)
	}

	cards := make([]Card, 0, len(payload.ClientsActiveStatus))
	for id, st := range payload.ClientsActiveStatus {
		cards = append(cards, newCard(id, st, b.loc))
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].ClientID < cards[j].ClientID })

	b.mu.Lock()
	b.cards = cards
	b.timestamp = payload.Timestamp
	b.mu.Unlock()
	return nil
}

func (b *ClientBoard) Cards() []Card {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Card(nil), b.cards...)
}

func (b *ClientBoard) Timestamp() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.timestamp
}

// Slice is one segment of the online summary chart.
type Slice struct {
	Name  string
	Value int
}

// PieSummary renders the /sse/updates client map as chart slices.
type PieSummary struct {
	mu     sync.RWMutex
	slices []Slice
}

func (p *PieSummary) Apply(ev streamclient.Event) error {
	var payload monitor.UpdatesPayload
	if err := ev.Decode(&payload); err != nil {
		return fmt.Errorf("pie summary: %w", err)
	}

	slices := make([]Slice, 0, len(payload.Clients))
	for name, c := range payload.Clients {
		s := Slice{Name: name + " (offline)"}
		if c.Online {
			s = Slice{Name: name + " (online)", Value: 1}
		}
		slices = append(slices, s)
	}
	sort.Slice(slices, func(i, j int) bool { return slices[i].Name < slices[j].Name })

	p.mu.Lock()
	p.slices = slices
	p.mu.Unlock()
	return nil
}

func (p *PieSummary) Slices() []Slice {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Slice(nil), p.slices...)
}

// Online returns the online count and the total.
func (p *PieSummary) Online() (online, total int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.slices {
		online += s.Value
	}
	return online, len(p.slices)
}

// EventList keeps the recent events of the last /sse/updates payload.
type EventList struct {
	mu     sync.RWMutex
	events []monitor.FileEvent
}

func (l *EventList) Apply(ev streamclient.Event) error {
	var payload monitor.UpdatesPayload
	if err := ev.Decode(&payload); err != nil {
		return fmt.Errorf("event list: %w", err)
	}

	l.mu.Lock()
	l.events = payload.RecentEvents
	l.mu.Unlock()
	return nil
}

// Events returns the events newest first.
func (l *EventList) Events() []monitor.FileEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]monitor.FileEvent, len(l.events))
	for i, ev := range l.events {
		out[len(l.events)-1-i] = ev
	}
	return out
}
