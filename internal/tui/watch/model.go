package watch

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/hookgate/internal/events"
)

const maxRows = 50

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// admissionRow pins an admission to the moment it arrived; rebuilding the
// table must not restamp old rows.
type admissionRow struct {
	at time.Time
	events.Admission
}

// Model is the bubbletea model for `hookgate watch`.
type Model struct {
	baseURL string
	token   string

	width  int
	height int

	table      table.Model
	admissions []admissionRow
	health     healthMsg
	connected  bool
	lastError  string

	hubEvents chan events.Event
}

// New creates a watch model pointed at a gateway base URL. A non-empty token
// is sent as a bearer credential on every request.
func New(baseURL, token string) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Time", Width: 8},
			{Title: "Service", Width: 14},
			{Title: "Role", Width: 10},
			{Title: "Identifier", Width: 18},
			{Title: "Status", Width: 6},
			{Title: "Code", Width: 18},
			{Title: "Left", Width: 5},
		}),
		table.WithFocused(true),
		table.WithHeight(20),
	)

	return &Model{
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     token,
		table:     t,
		hubEvents: make(chan events.Event, 100),
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.baseURL, m.token, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.baseURL, m.token) },
		tea.Tick(5*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(max(5, m.height-6))

	case tickMsg:
		return m, tea.Batch(
			func() tea.Msg { return fetchHealth(m.baseURL, m.token) },
			tea.Tick(5*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		)

	case healthMsg:
		m.health = msg
		m.connected = true
		m.lastError = ""

	case eventMsg:
		var a events.Admission
		if err := json.Unmarshal(msg.Data, &a); err == nil {
			m.admissions = append([]admissionRow{{at: msg.At, Admission: a}}, m.admissions...)
			if len(m.admissions) > maxRows {
				m.admissions = m.admissions[:maxRows]
			}
			m.rebuildRows()
		}
		m.connected = true
		return m, receiveNextEvent(m.hubEvents)

	case sseDisconnectedMsg:
		m.connected = false
		return m, tea.Tick(2*time.Second, func(time.Time) tea.Msg {
			return subscribeToEvents(m.baseURL, m.token, m.hubEvents)()
		})

	case errMsg:
		m.lastError = msg.Error()
	}

	return m, nil
}

func (m *Model) rebuildRows() {
	rows := make([]table.Row, 0, len(m.admissions))
	for _, a := range m.admissions {
		rows = append(rows, table.Row{
			a.at.Format("15:04:05"),
			a.Service,
			a.Role,
			truncate(a.Identifier, 18),
			strconv.Itoa(a.Status),
			a.Code,
			strconv.Itoa(a.Remaining),
		})
	}
	m.table.SetRows(rows)
}

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("hookgate watch"))
	b.WriteString("  ")
	if m.connected {
		b.WriteString(okStyle.Render("● connected"))
	} else {
		b.WriteString(errStyle.Render("○ disconnected"))
	}
	if m.health.Status != "" {
		b.WriteString(subtleStyle.Render(fmt.Sprintf(
			"  up %s  handlers: %s",
			(time.Duration(m.health.UptimeSeconds) * time.Second).String(),
			strings.Join(m.health.Handlers, ", "),
		)))
	}
	b.WriteString("\n\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")
	if m.lastError != "" {
		b.WriteString(warnStyle.Render("error: " + m.lastError))
		b.WriteString("\n")
	}
	b.WriteString(subtleStyle.Render("q to quit"))
	return b.String()
}

// Run starts the TUI and blocks until exit.
func Run(baseURL, token string) error {
	_, err := tea.NewProgram(New(baseURL, token), tea.WithAltScreen()).Run()
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
