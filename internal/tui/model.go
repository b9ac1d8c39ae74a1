// Package tui renders a search session in the terminal. Every keypress
// maps to exactly one session action, so the on-screen state machine is
// the same one the MCP browse tool exposes.
package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mnemohq/mnemo-mcp/internal/session"
	"github.com/mnemohq/mnemo-mcp/internal/store"
)

// SearchPort is the TUI-facing subset of the search stack.
type SearchPort interface {
	Search(query string) ([]store.SearchHit, error)
	Preview(hit store.SearchHit) (string, error)
}

type inputMode int

const (
	inputNone inputMode = iota
	inputQuery
	inputFilter
)

type Model struct {
	port     SearchPort
	sessions *session.Manager
	current  *session.Session

	input    textinput.Model
	viewport viewport.Model
	mode     inputMode
	status   string
	ready    bool
}

func New(port SearchPort, sessions *session.Manager) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		port:     port,
		sessions: sessions,
		input:    ti,
		viewport: vp,
		status:   "Press / to search.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultStyle.GetFrameSize()
		_, qh := queryStyle.GetFrameSize()
		vh := msg.Height - rh - qh - 4
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = maxInt(20, msg.Width)
		m.viewport.Height = vh
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if m.mode != inputNone {
			return m.updateInput(msg)
		}
		return m.updateKeys(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		value := strings.TrimSpace(m.input.Value())
		mode := m.mode
		m.mode = inputNone
		m.input.Blur()
		m.input.SetValue("")
		switch mode {
		case inputQuery:
			if value != "" {
				m.runSearch(value)
			}
		case inputFilter:
			m.applyFilter(value)
		}
		m.refresh()
		return m, nil
	case "esc":
		m.mode = inputNone
		m.input.Blur()
		m.input.SetValue("")
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	switch key {
	case "q":
		if m.current != nil {
			m.sessions.Quit(m.current)
		}
		return *m, tea.Quit
	case "/":
		m.mode = inputQuery
		m.input.Placeholder = "search query"
		m.input.Focus()
		return *m, textinput.Blink
	}

	if m.current == nil {
		return *m, nil
	}

	switch key {
	case "n", "right":
		m.act(m.current.Next())
	case "p", "left":
		m.act(m.current.Prev())
	case "c":
		m.act(m.current.Cluster())
	case "u":
		m.act(m.current.Uncluster())
	case "b", "esc":
		m.act(m.current.Back())
	case "f":
		m.mode = inputFilter
		m.input.Placeholder = "filter: kind=value (folder, phrase, after)"
		m.input.Focus()
		return *m, textinput.Blink
	case "x":
		m.act(m.current.ClearFilters())
	case "down":
		m.viewport.LineDown(1)
	case "up":
		m.viewport.LineUp(1)
	default:
		if n, err := strconv.Atoi(key); err == nil {
			m.act(m.current.View(n))
		}
	}

	m.refresh()
	return *m, nil
}

func (m *Model) runSearch(query string) {
	hits, err := m.port.Search(query)
	if err != nil {
		m.status = warnStyle.Render("search failed: " + err.Error())
		return
	}
	s, err := m.sessions.Create(query, hits, 0)
	if err != nil {
		m.status = warnStyle.Render(err.Error())
		return
	}
	m.current = s
	m.status = fmt.Sprintf("%d results for %q", len(hits), query)
}

func (m *Model) applyFilter(value string) {
	if m.current == nil || value == "" {
		return
	}
	kind, val, found := strings.Cut(value, "=")
	if !found {
		m.status = warnStyle.Render("filter syntax: kind=value")
		return
	}
	m.act(m.current.Filter(strings.TrimSpace(kind), strings.TrimSpace(val)))
}

// act records a session action outcome: persist on success, show the
// no-op message otherwise.
func (m *Model) act(message string, ok bool) {
	if ok {
		if err := m.sessions.Save(m.current); err != nil {
			m.status = warnStyle.Render("save failed: " + err.Error())
			return
		}
		m.status = ""
		return
	}
	m.status = warnStyle.Render(message)
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderBody())
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := headerStyle.Render("mnemo browse")
	var context string
	if m.current != nil {
		context = dimStyle.Render(fmt.Sprintf("query: %q  state: %s  page %d/%d  filters: %s",
			m.current.Query, m.current.State, m.current.Page, m.current.TotalPages(), renderFilters(m.current.Filters)))
	} else {
		context = dimStyle.Render("no active session")
	}

	body := resultStyle.Render(m.viewport.View())
	status := statusStyle.Render(m.status)

	if m.mode != inputNone {
		return header + "\n" + context + "\n" + body + "\n" + queryStyle.Render(m.input.View()) + "\n" + status
	}
	help := dimStyle.Render("/ search  n/p page  c cluster  u uncluster  1-9 view  b back  f filter  x clear  q quit")
	return header + "\n" + context + "\n" + body + "\n" + help + "\n" + status
}

func (m Model) renderBody() string {
	if m.current == nil {
		return "No session. Press / and type a query."
	}

	switch m.current.State {
	case session.StateClustered:
		return m.renderClusters()
	case session.StatePreview:
		return m.renderPreview()
	case session.StateExit:
		return "Session ended."
	default:
		return m.renderPage()
	}
}

func (m Model) renderPage() string {
	hits := m.current.PageHits()
	if len(hits) == 0 {
		return "No results on this page."
	}

	var b strings.Builder
	for i, hit := range hits {
		fmt.Fprintf(&b, "%d. %s %s\n", i+1,
			titleStyle.Render(hit.Title),
			dimStyle.Render(fmt.Sprintf("[%s] %.1f", hit.SpecFolder, hit.Similarity)))
		if len(hit.TriggerPhrases) > 0 {
			fmt.Fprintf(&b, "   %s\n", dimStyle.Render(strings.Join(hit.TriggerPhrases, ", ")))
		}
	}
	return b.String()
}

func (m Model) renderClusters() string {
	var b strings.Builder
	for _, folder := range m.current.ClusterFolders() {
		hits := m.current.ClusteredResults[folder]
		fmt.Fprintf(&b, "%s (%d)\n", clusterStyle.Render(folder), len(hits))
		for _, hit := range hits {
			fmt.Fprintf(&b, "  %s %s\n", hit.Title, dimStyle.Render(fmt.Sprintf("%.1f", hit.Similarity)))
		}
	}
	if b.Len() == 0 {
		return "No clusters."
	}
	return b.String()
}

func (m Model) renderPreview() string {
	hit := m.current.SelectedResult
	if hit == nil {
		return "Nothing selected."
	}
	content, err := m.port.Preview(*hit)
	if err != nil {
		return warnStyle.Render("preview failed: " + err.Error())
	}
	header := titleStyle.Render(hit.Title) + " " + dimStyle.Render(hit.FilePath)
	return header + "\n\n" + content
}

func renderFilters(filters map[string]string) string {
	if len(filters) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(filters))
	for kind, value := range filters {
		parts = append(parts, kind+"="+value)
	}
	return strings.Join(parts, " ")
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
