package dashboard

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"go-status-sse/internal/streamclient"
)

const maxListedEvents = 10

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
)

// Dashboard composes the views fed by the three subscriptions.
type Dashboard struct {
	Time    *TimeView
	Clients *ClientBoard
	Pie     *PieSummary
	Events  *EventList

	mu      sync.Mutex
	lastErr string
}

func New() *Dashboard {
	return &Dashboard{
		Time:    &TimeView{},
		Clients: NewClientBoard(nil),
		Pie:     &PieSummary{},
		Events:  &EventList{},
	}
}

// Handler applies each event to views in order and then calls changed.
func (d *Dashboard) Handler(changed func(), views ...View) streamclient.Handler {
	return func(ev streamclient.Event) {
		for _, v := range views {
			if err := v.Apply(ev); err != nil {
				d.ReportError(err)
			}
		}
		if changed != nil {
			changed()
		}
	}
}

// ReportError shows err in the footer until the next error.
func (d *Dashboard) ReportError(err error) {
	d.mu.Lock()
	d.lastErr = err.Error()
	d.mu.Unlock()
}

// View renders the whole dashboard.
func (d *Dashboard) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		d.renderHeader(),
		panelStyle.Render(d.renderClients()),
		panelStyle.Render(d.renderSummary()),
		panelStyle.Render(d.renderEvents()),
		d.renderFooter(),
	)
}

func (d *Dashboard) renderHeader() string {
	clock := d.Time.Text()
	if clock == "" {
		clock = "waiting for server time..."
	}
	return lipgloss.JoinHorizontal(lipgloss.Left,
		titleStyle.Render("File Monitor Status"),
		"  ",
		mutedStyle.Render(clock),
	)
}

func (d *Dashboard) renderClients() string {
	cards := d.Clients.Cards()
	if len(cards) == 0 {
		return mutedStyle.Render("No clients reported yet")
	}

	rows := []string{headerStyle.Render(fmt.Sprintf("  %-16s %-16s %-15s %-19s", "CLIENT", "HOSTNAME", "IP", "LAST SEEN"))}
	for _, c := range cards {
		indicator := onlineStyle.Render("●")
		if !c.Online {
			indicator = offlineStyle.Render("●")
		}
		rows = append(rows, fmt.Sprintf("%s %-16s %-16s %-15s %-19s %s",
			indicator, c.ClientID, c.Hostname, c.IP, c.LastSeen, c.StatusLabel))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (d *Dashboard) renderSummary() string {
	online, total := d.Pie.Online()
	if total == 0 {
		return mutedStyle.Render("No client summary yet")
	}

	parts := make([]string, 0, total)
	for _, s := range d.Pie.Slices() {
		style := offlineStyle
		if s.Value == 1 {
			style = onlineStyle
		}
		parts = append(parts, style.Render(s.Name))
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render(fmt.Sprintf("Online %d/%d", online, total)),
		strings.Join(parts, "  "),
	)
}

func (d *Dashboard) renderEvents() string {
	events := d.Events.Events()
	if len(events) == 0 {
		return mutedStyle.Render("No recent events")
	}
	if len(events) > maxListedEvents {
		events = events[:maxListedEvents]
	}

	rows := []string{headerStyle.Render("Recent events")}
	for _, ev := range events {
		line := fmt.Sprintf("%s  %-12s %-9s %s", ev.Timestamp, ev.Host, ev.EventType, ev.Path)
		if ev.DestPath != "" {
			line += " -> " + ev.DestPath
		}
		rows = append(rows, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (d *Dashboard) renderFooter() string {
	d.mu.Lock()
	lastErr := d.lastErr
	d.mu.Unlock()

	if lastErr == "" {
		return mutedStyle.Render("ctrl+c to quit")
	}
	return errorStyle.Render("last error: " + lastErr)
}
