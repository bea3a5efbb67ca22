package watch

import (
	"encoding/json"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/gpgbridge/internal/events"
)

const maxEventLog = 50

// Model is the bubbletea model for the watch TUI.
type Model struct {
	client *Client

	width  int
	height int

	health   HealthState
	requests *requestLog
	table    table.Model
	eventLog []events.Event
	lastID   int64
	warning  string
	activity Activity
	theme    Theme

	hubEvents chan events.Event
	lastError string
}

// New creates a watch model for the server at apiURL.
func New(apiURL, token string) *Model {
	return &Model{
		client:    NewClient(apiURL, token),
		requests:  newRequestLog(),
		table:     newRequestTable(),
		hubEvents: make(chan events.Event, 100),
		theme:     NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribe(m.client, 0, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.client) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "c":
			m.warning = ""
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(m.width - 6)
		m.table.SetHeight(max(m.height/2-4, 3))
		return m, nil

	case tickMsg:
		m.activity.Decay(time.Time(msg))
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		m.handleEvent(events.Event(msg))
		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.State = msg.State
		m.health.Version = msg.Version
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.client)
		})

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		// the pending receiveNextEvent keeps reading from hubEvents
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, subscribe(m.client, m.lastID, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.client)
		})
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) handleEvent(e events.Event) {
	if e.ID > m.lastID {
		m.lastID = e.ID
	}

	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > maxEventLog {
		m.eventLog = m.eventLog[:maxEventLog]
	}
	m.activity.OnEvent(time.Now())
	m.health.Connected = true
	m.lastError = ""

	switch e.Type {
	case events.TypeLifecycleState:
		var d events.LifecycleState
		if json.Unmarshal(e.Data, &d) == nil {
			m.health.State = d.State
		}
	case events.TypeLifecycleWarning:
		var d events.Warning
		if json.Unmarshal(e.Data, &d) == nil {
			m.warning = d.Message
		}
	default:
		if m.requests.apply(e) {
			m.table.SetRows(m.requests.rows(m.theme))
		}
	}
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting..."
	}

	total, failed := m.requests.counts()
	header := renderHeader(m.health, m.activity, m.warning, total, failed, m.theme, m.width)
	requests := m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("REQUESTS"),
			m.table.View(),
		),
	)
	stream := renderEventStream(m.eventLog, m.theme, m.width)

	parts := []string{header, requests, stream}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(" ⚠ "+m.lastError))
	}
	parts = append(parts, lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Scroll • [c] Clear warning"))

	return lipgloss.NewStyle().Margin(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}
